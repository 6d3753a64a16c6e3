package persistence

import (
	"context"
	"testing"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns DESC", "", "DESC"},
		{"asc lowercase returns ASC", "asc", "ASC"},
		{"invalid value returns DESC", "INVALID", "DESC"},
		{"sql injection attempt returns DESC", "ASC; DROP TABLE ledger_lines;--", "DESC"},
		{"whitespace around ASC returns ASC", "  asc  ", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns default", "", "reference"},
		{"valid field returns field", "entry_date", "entry_date"},
		{"case sensitive", "ENTRY_DATE", "reference"},
		{"sql injection attempt returns default", "id; DROP TABLE postings;--", "reference"},
		{"subquery returns default", "id, (SELECT hash FROM tb_snapshots)", "reference"},
		{"whitespace around valid field returns field", "  status  ", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, EntrySortFields, "reference"))
		})
	}
}

func TestEntryOrder(t *testing.T) {
	assert.Equal(t, "reference ASC", entryOrder(ledger.EntryFilter{}))
	assert.Equal(t, "total_debit DESC", entryOrder(ledger.EntryFilter{SortBy: "total_debit"}))
	assert.Equal(t, "entry_date ASC", entryOrder(ledger.EntryFilter{SortBy: "entry_date", SortOrder: "asc"}))
	assert.Equal(t, "reference DESC", entryOrder(ledger.EntryFilter{SortBy: "hash"}))
}

func TestJournalEntryRepository_FindAllSorted(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()
	scope := newLedgerScope()

	require.NoError(t, repo.Create(ctx, newDraftEntry(t, scope, "JE-1", 500)))
	require.NoError(t, repo.Create(ctx, newDraftEntry(t, scope, "JE-2", 9000)))
	require.NoError(t, repo.Create(ctx, newDraftEntry(t, scope, "JE-3", 40)))

	byAmount, _, err := repo.FindAll(ctx, scope, ledger.EntryFilter{SortBy: "total_debit"})
	require.NoError(t, err)
	require.Len(t, byAmount, 3)
	assert.Equal(t, []string{"JE-2", "JE-1", "JE-3"}, []string{byAmount[0].Reference, byAmount[1].Reference, byAmount[2].Reference})

	byRef, _, err := repo.FindAll(ctx, scope, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, "JE-1", byRef[0].Reference)
}
