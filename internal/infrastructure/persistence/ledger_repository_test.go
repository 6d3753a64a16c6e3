package persistence

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ledgerTestNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

// setupLedgerTestDB opens a file-backed SQLite database in WAL mode, so reads
// outside a transaction do not wait for the open writer.
func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrateLedger(db))
	return db
}

func newLedgerScope() ledger.Scope {
	return ledger.NewScope(uuid.New(), uuid.New())
}

func newDraftEntry(t *testing.T, scope ledger.Scope, ref string, amount int64) *ledger.JournalEntry {
	t.Helper()
	e, err := ledger.NewJournalEntry(scope, uuid.New(), ledger.EntryMetadata{
		Type:       ledger.EntryTypeStandard,
		Reference:  ref,
		PeriodCode: "2026-03",
		Currency:   "USD",
		EntryDate:  ledgerTestNow,
	}, []ledger.JournalLine{
		{AccountCode: "6000", Debit: amount, Memo: "rent"},
		{AccountCode: "1000", Credit: amount, Dimensions: map[string]string{"dept": "ops"}},
	}, ledgerTestNow)
	require.NoError(t, err)
	return e
}

func TestJournalEntryRepository_CreateAndFind(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	e := newDraftEntry(t, scope, "JE-1", 12500)
	require.NoError(t, repo.Create(ctx, e))
	require.NoError(t, repo.Create(ctx, newDraftEntry(t, scope, "JE-2", 300)))

	found, err := repo.FindByID(ctx, scope, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "JE-1", found.Reference)
	assert.Equal(t, ledger.EntryStatusDraft, found.Status)
	assert.Equal(t, int64(12500), found.TotalDebit)
	require.Len(t, found.Lines, 2)
	assert.Equal(t, "6000", found.Lines[0].AccountCode)
	assert.Equal(t, "ops", found.Lines[1].Dimensions["dept"])

	byRef, err := repo.FindByReference(ctx, scope, "JE-1")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, e.ID, byRef.ID)

	missing, err := repo.FindByReference(ctx, scope, "JE-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, total, err := repo.FindAll(ctx, scope, ledger.EntryFilter{PeriodCode: "2026-03"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.Equal(t, "JE-1", all[0].Reference)

	n, err := repo.CountInPeriod(ctx, scope, "2026-03", ledger.EntryStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestJournalEntryRepository_ScopeIsolation(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	e := newDraftEntry(t, scope, "JE-1", 100)
	require.NoError(t, repo.Create(ctx, e))

	other := ledger.NewScope(scope.TenantID, uuid.New())
	_, err := repo.FindByID(ctx, other, e.ID)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)

	// the same reference is free in another company
	require.NoError(t, repo.Create(ctx, newDraftEntry(t, other, "JE-1", 100)))
}

func TestJournalEntryRepository_DuplicateReference(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	require.NoError(t, repo.Create(ctx, newDraftEntry(t, scope, "JE-1", 100)))
	err := repo.Create(ctx, newDraftEntry(t, scope, "JE-1", 200))

	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)
}

func TestJournalEntryRepository_SaveWithLock(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	e := newDraftEntry(t, scope, "JE-1", 100)
	require.NoError(t, repo.Create(ctx, e))

	first, err := repo.FindByID(ctx, scope, e.ID)
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, scope, e.ID)
	require.NoError(t, err)

	require.NoError(t, first.Submit(first.CreatedBy, uuid.New(), ledgerTestNow))
	require.NoError(t, repo.SaveWithLock(ctx, first))

	require.NoError(t, stale.Submit(stale.CreatedBy, uuid.New(), ledgerTestNow))
	err = repo.SaveWithLock(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrVersionConflict)

	stored, err := repo.FindByID(ctx, scope, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.EntryStatusSubmitted, stored.Status)
	assert.Equal(t, first.Version, stored.Version)
	assert.Equal(t, first.RouteID, stored.RouteID)
	assert.Len(t, stored.Lines, 2)
}

func TestJournalEntryRepository_SaveWithLock_RewritesLinesOnlyOnRevise(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	var lineDeletes int
	require.NoError(t, db.Callback().Delete().After("gorm:delete").Register("test:count_line_deletes", func(tx *gorm.DB) {
		if tx.Statement.Table == "journal_lines" {
			lineDeletes++
		}
	}))

	e := newDraftEntry(t, scope, "JE-1", 100)
	require.NoError(t, repo.Create(ctx, e))

	loaded, err := repo.FindByID(ctx, scope, e.ID)
	require.NoError(t, err)
	assert.False(t, loaded.LinesRevised())
	require.NoError(t, loaded.Approve(uuid.New(), ledgerTestNow))
	require.NoError(t, repo.SaveWithLock(ctx, loaded))
	require.NoError(t, loaded.MarkPosted(1, uuid.New(), ledgerTestNow))
	require.NoError(t, repo.SaveWithLock(ctx, loaded))
	assert.Zero(t, lineDeletes)

	posted, err := repo.FindByID(ctx, scope, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.EntryStatusPosted, posted.Status)
	require.Len(t, posted.Lines, 2)
	for i, l := range posted.Lines {
		assert.Equal(t, e.Lines[i].AccountCode, l.AccountCode)
		assert.Equal(t, e.Lines[i].Amount(), l.Amount())
	}
	assert.Equal(t, "rent", posted.Lines[0].Memo)

	draft := newDraftEntry(t, scope, "JE-2", 100)
	require.NoError(t, repo.Create(ctx, draft))
	draft, err = repo.FindByID(ctx, scope, draft.ID)
	require.NoError(t, err)
	require.NoError(t, draft.Revise(ledger.EntryMetadata{
		Reference:  "JE-2",
		PeriodCode: "2026-03",
		Currency:   "USD",
	}, []ledger.JournalLine{
		{AccountCode: "6000", Debit: 250},
		{AccountCode: "2000", Credit: 250},
	}, false, ledgerTestNow))
	assert.True(t, draft.LinesRevised())
	require.NoError(t, repo.SaveWithLock(ctx, draft))
	assert.Equal(t, 1, lineDeletes)

	revised, err := repo.FindByID(ctx, scope, draft.ID)
	require.NoError(t, err)
	require.Len(t, revised.Lines, 2)
	assert.Equal(t, "2000", revised.Lines[1].AccountCode)
	assert.Equal(t, int64(250), revised.TotalDebit)
}

func TestPeriodRepository_SaveWithLock_VersionConflict(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	p, err := ledger.NewPeriod(newLedgerScope(), "2026-03",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		nil, uuid.New(), ledgerTestNow)
	require.NoError(t, err)
	p.Version = 3

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "fiscal_periods" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewGormPeriodRepository(db).SaveWithLock(context.Background(), p)

	assert.ErrorIs(t, err, shared.ErrVersionConflict)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "2", de.Details["expected_version"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepository_CreateAndFind(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormPeriodRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p, err := ledger.NewPeriod(scope, "2026-03", start, start.AddDate(0, 1, -1),
		[]string{"bank_reconciliation"}, uuid.New(), ledgerTestNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p))

	found, err := repo.FindByCode(ctx, scope, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodStatusOpen, found.Status)
	require.Len(t, found.Checklist, 1)
	assert.True(t, found.StartDate.Equal(start))

	_, err = repo.FindByCode(ctx, scope, "2026-04")
	assert.ErrorIs(t, err, ledger.ErrPeriodNotFound)

	overlap, err := repo.FindOverlapping(ctx, scope, start.AddDate(0, 0, 10), start.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.Len(t, overlap, 1)

	dup, err := ledger.NewPeriod(scope, "2026-03", start, start, nil, uuid.New(), ledgerTestNow)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)
}

func TestGormSequence_Next(t *testing.T) {
	db := setupLedgerTestDB(t)
	seq := NewGormSequence(db, shared.NewManualClock(ledgerTestNow))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "tenant-a:company-a")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := seq.Next(ctx, "tenant-a:company-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestGormSequence_RollsBackWithTransaction(t *testing.T) {
	db := setupLedgerTestDB(t)
	ctx := context.Background()

	_ = db.Transaction(func(tx *gorm.DB) error {
		n, err := NewGormSequence(tx, nil).Next(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return assert.AnError
	})

	n, err := NewGormSequence(db, nil).Next(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAccountDirectory_ResolveAndUpsert(t *testing.T) {
	db := setupLedgerTestDB(t)
	dir := NewGormAccountDirectory(db)
	ctx := context.Background()
	scope := newLedgerScope()

	info, err := dir.Resolve(ctx, scope, "1000")
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, "1000", info.Code)

	require.NoError(t, dir.Upsert(ctx, scope, ledger.AccountInfo{Code: "1000", Name: "Cash", Active: true, Postable: true}, ledgerTestNow))
	info, err = dir.Resolve(ctx, scope, "1000")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.True(t, info.Active)
	assert.Equal(t, "Cash", info.Name)

	require.NoError(t, dir.Upsert(ctx, scope, ledger.AccountInfo{Code: "1000", Name: "Cash", Active: false, Postable: true}, ledgerTestNow))
	info, err = dir.Resolve(ctx, scope, "1000")
	require.NoError(t, err)
	assert.False(t, info.Active)

	other, err := dir.Resolve(ctx, newLedgerScope(), "1000")
	require.NoError(t, err)
	assert.False(t, other.Exists)
}

func TestAccountDirectory_StoresHeaderAndInactiveAccounts(t *testing.T) {
	db := setupLedgerTestDB(t)
	dir := NewGormAccountDirectory(db)
	ctx := context.Background()
	scope := newLedgerScope()

	require.NoError(t, dir.Upsert(ctx, scope, ledger.AccountInfo{Code: "1000", Name: "Assets", Active: true, Postable: false}, ledgerTestNow))
	require.NoError(t, dir.Upsert(ctx, scope, ledger.AccountInfo{Code: "1900", Name: "Legacy", Active: false, Postable: true}, ledgerTestNow))

	header, err := dir.Resolve(ctx, scope, "1000")
	require.NoError(t, err)
	assert.True(t, header.Exists)
	assert.True(t, header.Active)
	assert.False(t, header.Postable)

	legacy, err := dir.Resolve(ctx, scope, "1900")
	require.NoError(t, err)
	assert.False(t, legacy.Active)

	err = ledger.CheckPostable(ctx, dir, scope, []string{"1000"})
	assert.ErrorIs(t, err, ledger.ErrAccountNotPostable)
	err = ledger.CheckPostable(ctx, dir, scope, []string{"1900"})
	assert.ErrorIs(t, err, ledger.ErrAccountInactive)
}

func TestScopeLister_ListScopes(t *testing.T) {
	db := setupLedgerTestDB(t)
	periods := NewGormPeriodRepository(db)
	ctx := context.Background()
	a, b := newLedgerScope(), newLedgerScope()

	for i, scope := range []ledger.Scope{a, a, b} {
		start := time.Date(2026, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		p, err := ledger.NewPeriod(scope, start.Format("2006-01"), start, start.AddDate(0, 1, -1), nil, uuid.New(), ledgerTestNow)
		require.NoError(t, err)
		require.NoError(t, periods.Create(ctx, p))
	}

	scopes, err := NewGormScopeLister(db).ListScopes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ledger.Scope{a, b}, scopes)
}
