package ledger

import (
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Scope identifies the books being operated on: one company inside a tenant.
type Scope struct {
	TenantID  uuid.UUID
	CompanyID uuid.UUID
}

// NewScope builds a Scope
func NewScope(tenantID, companyID uuid.UUID) Scope {
	return Scope{TenantID: tenantID, CompanyID: companyID}
}

// Validate rejects zero identifiers
func (s Scope) Validate() error {
	if s.TenantID == uuid.Nil || s.CompanyID == uuid.Nil {
		return shared.ErrInvalidInput.WithDetail("field", "scope")
	}
	return nil
}

// Key returns a stable string used for sequence scopes and lock names.
func (s Scope) Key() string {
	return s.TenantID.String() + ":" + s.CompanyID.String()
}

// ScopeOf returns the scope an aggregate belongs to
func ScopeOf(root *shared.TenantAggregateRoot) Scope {
	return Scope{TenantID: root.TenantID, CompanyID: root.CompanyID}
}
