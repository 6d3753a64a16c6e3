package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountDirectory resolves account codes against the ledger_accounts
// read model
type GormAccountDirectory struct {
	db *gorm.DB
}

// NewGormAccountDirectory creates a new GormAccountDirectory
func NewGormAccountDirectory(db *gorm.DB) *GormAccountDirectory {
	return &GormAccountDirectory{db: db}
}

// Resolve returns AccountInfo with Exists=false for unknown codes
func (d *GormAccountDirectory) Resolve(ctx context.Context, scope ledger.Scope, code string) (ledger.AccountInfo, error) {
	var m models.AccountModel
	err := scopeWhere(d.db.WithContext(ctx), scope).Where("code = ?", code).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.AccountInfo{Code: code}, nil
	}
	if err != nil {
		return ledger.AccountInfo{}, err
	}
	return m.ToDomain(), nil
}

// Upsert creates or replaces an account row
func (d *GormAccountDirectory) Upsert(ctx context.Context, scope ledger.Scope, info ledger.AccountInfo, now time.Time) error {
	m := &models.AccountModel{
		TenantID:  scope.TenantID,
		CompanyID: scope.CompanyID,
		Code:      info.Code,
		Name:      info.Name,
		Active:    info.Active,
		Postable:  info.Postable,
		UpdatedAt: now,
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "company_id"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "postable", "updated_at"}),
	}).Create(m).Error
}

// Ensure GormAccountDirectory implements AccountDirectory
var _ ledger.AccountDirectory = (*GormAccountDirectory)(nil)

// GormScopeLister lists every tenant and company that has fiscal periods
type GormScopeLister struct {
	db *gorm.DB
}

// NewGormScopeLister creates a new GormScopeLister
func NewGormScopeLister(db *gorm.DB) *GormScopeLister {
	return &GormScopeLister{db: db}
}

// ListScopes returns the distinct scopes owning periods
func (l *GormScopeLister) ListScopes(ctx context.Context) ([]ledger.Scope, error) {
	var rows []struct {
		TenantID  uuid.UUID
		CompanyID uuid.UUID
	}
	if err := l.db.WithContext(ctx).
		Model(&models.PeriodModel{}).
		Distinct("tenant_id", "company_id").
		Order("tenant_id, company_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	scopes := make([]ledger.Scope, len(rows))
	for i, r := range rows {
		scopes[i] = ledger.NewScope(r.TenantID, r.CompanyID)
	}
	return scopes, nil
}

// Ensure GormScopeLister implements ScopeLister
var _ ledger.ScopeLister = (*GormScopeLister)(nil)
