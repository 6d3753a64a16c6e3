package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

// testEvent implements ScopedEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	root := &shared.TenantAggregateRoot{TenantID: tenantID, CompanyID: uuid.New()}
	root.ID = uuid.New()
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", root, uuid.New(), testNow),
		Data:            "test data",
	}
}

func newTestEntry(t *testing.T) *shared.OutboxEntry {
	t.Helper()
	event := newTestEvent(ledger.EventTypeEntryPosted, uuid.New())
	return shared.NewOutboxEntry(event, []byte(`{"data":"test data"}`), testNow)
}

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.OutboxEntryModel{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// mockOutboxRepository is an in-memory OutboxRepository for dispatcher tests
type mockOutboxRepository struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]*shared.OutboxEntry
	updateErr error
}

func newMockOutboxRepository(entries ...*shared.OutboxEntry) *mockOutboxRepository {
	r := &mockOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return r
}

func (r *mockOutboxRepository) get(id uuid.UUID) shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.entries[id]
}

func (r *mockOutboxRepository) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepository) FindPending(_ context.Context, limit int) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusPending && len(result) < limit {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) FindRetryable(_ context.Context, before, staleBefore time.Time, limit int) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		due := e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(before)
		if (due || e.IsStale(staleBefore)) && len(result) < limit {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) MarkProcessing(_ context.Context, ids []uuid.UUID, now, staleBefore time.Time) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok || e.Claim(now, staleBefore) != nil {
			continue
		}
		c := *e
		result = append(result, &c)
	}
	return result, nil
}

func (r *mockOutboxRepository) Update(_ context.Context, entry *shared.OutboxEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *entry
	r.entries[entry.ID] = &c
	return nil
}

func (r *mockOutboxRepository) DeleteSentBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.entries {
		if e.Status == shared.OutboxStatusSent && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *mockOutboxRepository) FindDead(_ context.Context, _, _ int) ([]*shared.OutboxEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			result = append(result, e)
		}
	}
	return result, int64(len(result)), nil
}

func (r *mockOutboxRepository) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, shared.ErrNotFound
}

func (r *mockOutboxRepository) CountByStatus(_ context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

// recordingSink collects appended events and fails while err is set
type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []ledger.AuditEvent
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Append(_ context.Context, event ledger.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, event)
	return nil
}

func (s *recordingSink) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *recordingSink) events() []ledger.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.AuditEvent(nil), s.got...)
}

var errSinkDown = errors.New("sink down")
