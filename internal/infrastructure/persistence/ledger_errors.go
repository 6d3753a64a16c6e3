package persistence

import (
	"errors"
	"strconv"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports a unique index violation from postgres or sqlite,
// with or without gorm's TranslateError.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// versionConflict is returned when a compare-and-swap update touched no rows
func versionConflict(kind string, id string, expected int) error {
	return shared.ErrVersionConflict.WithDetails(map[string]string{
		kind:               id,
		"expected_version": strconv.Itoa(expected),
	})
}

// scopeWhere restricts a query to one set of books
func scopeWhere(db *gorm.DB, scope ledger.Scope) *gorm.DB {
	return db.Where("tenant_id = ? AND company_id = ?", scope.TenantID, scope.CompanyID)
}
