package policy

import (
	"context"
	"sync"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
)

// RoleDirectory answers HasRole from the bindings of a policy file.
// Replace swaps the bindings atomically, for reloads.
type RoleDirectory struct {
	mu       sync.RWMutex
	bindings []RoleBinding
}

// NewRoleDirectory creates a directory over bindings
func NewRoleDirectory(bindings []RoleBinding) *RoleDirectory {
	d := &RoleDirectory{}
	d.Replace(bindings)
	return d
}

// Replace installs a new set of bindings
func (d *RoleDirectory) Replace(bindings []RoleBinding) {
	cp := make([]RoleBinding, len(bindings))
	copy(cp, bindings)
	d.mu.Lock()
	d.bindings = cp
	d.mu.Unlock()
}

// HasRole reports whether any binding matching scope and actor grants role
func (d *RoleDirectory) HasRole(_ context.Context, scope ledger.Scope, actor uuid.UUID, role string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, b := range d.bindings {
		if !b.matches(scope, actor) {
			continue
		}
		for _, r := range b.Roles {
			if r == role {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b RoleBinding) matches(scope ledger.Scope, actor uuid.UUID) bool {
	if b.TenantID != "" && b.TenantID != scope.TenantID.String() {
		return false
	}
	if b.CompanyID != "" && b.CompanyID != scope.CompanyID.String() {
		return false
	}
	return b.Actor == AnyActor || b.Actor == actor.String()
}

// Ensure RoleDirectory implements PolicyPort
var _ ledger.PolicyPort = (*RoleDirectory)(nil)
