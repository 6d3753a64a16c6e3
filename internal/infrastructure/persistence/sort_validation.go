package persistence

import (
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// EntrySortFields contains allowed sort fields for journal entries
var EntrySortFields = map[string]bool{
	"reference":        true,
	"entry_date":       true,
	"created_at":       true,
	"updated_at":       true,
	"status":           true,
	"total_debit":      true,
	"posting_sequence": true,
}

// entryOrder builds the ORDER BY clause of an entry listing; unsorted
// listings follow the reference.
func entryOrder(filter ledger.EntryFilter) string {
	if strings.TrimSpace(filter.SortBy) == "" {
		return "reference ASC"
	}
	return ValidateSortField(filter.SortBy, EntrySortFields, "reference") + " " + ValidateSortOrder(filter.SortOrder)
}
