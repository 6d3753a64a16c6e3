package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTBSnapshotRepository persists trial balance snapshots. Rows are only
// ever updated to mark them superseded.
type GormTBSnapshotRepository struct {
	db *gorm.DB
}

// NewGormTBSnapshotRepository creates a new GormTBSnapshotRepository
func NewGormTBSnapshotRepository(db *gorm.DB) *GormTBSnapshotRepository {
	return &GormTBSnapshotRepository{db: db}
}

// FindByID fails with ErrSnapshotNotFound
func (r *GormTBSnapshotRepository) FindByID(ctx context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.TBSnapshot, error) {
	var m models.TBSnapshotModel
	err := scopeWhere(r.db.WithContext(ctx), scope).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrSnapshotNotFound.WithDetail("snapshot_id", id.String())
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindActiveByPeriod returns nil, nil when the period has no active snapshot
func (r *GormTBSnapshotRepository) FindActiveByPeriod(ctx context.Context, scope ledger.Scope, periodCode string) (*ledger.TBSnapshot, error) {
	var m models.TBSnapshotModel
	err := scopeWhere(r.db.WithContext(ctx), scope).
		Where("period_code = ? AND superseded = ?", periodCode, false).
		Order("revision DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindLatestActiveBefore returns the active snapshot of the latest period
// starting before the given date, or nil, nil
func (r *GormTBSnapshotRepository) FindLatestActiveBefore(ctx context.Context, scope ledger.Scope, before time.Time) (*ledger.TBSnapshot, error) {
	var m models.TBSnapshotModel
	err := r.db.WithContext(ctx).
		Table("tb_snapshots AS s").
		Select("s.*").
		Joins("JOIN fiscal_periods AS p ON p.tenant_id = s.tenant_id AND p.company_id = s.company_id AND p.code = s.period_code").
		Where("s.tenant_id = ? AND s.company_id = ?", scope.TenantID, scope.CompanyID).
		Where("s.superseded = ? AND p.start_date < ?", false, before).
		Order("p.start_date DESC").
		Order("s.revision DESC").
		Limit(1).
		Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return m.ToDomain(), nil
}

// FindAllActive lists every active snapshot of the scope in generation order
func (r *GormTBSnapshotRepository) FindAllActive(ctx context.Context, scope ledger.Scope) ([]*ledger.TBSnapshot, error) {
	var rows []models.TBSnapshotModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).
		Where("superseded = ?", false).
		Order("generated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return snapshotsToDomain(rows), nil
}

// FindByPeriod lists every revision of a period
func (r *GormTBSnapshotRepository) FindByPeriod(ctx context.Context, scope ledger.Scope, periodCode string) ([]*ledger.TBSnapshot, error) {
	var rows []models.TBSnapshotModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).
		Where("period_code = ?", periodCode).
		Order("revision ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return snapshotsToDomain(rows), nil
}

// MaxRevision returns the highest revision of a period, zero when none exists
func (r *GormTBSnapshotRepository) MaxRevision(ctx context.Context, scope ledger.Scope, periodCode string) (int, error) {
	var highest *int
	err := scopeWhere(r.db.WithContext(ctx).Model(&models.TBSnapshotModel{}), scope).
		Where("period_code = ?", periodCode).
		Select("MAX(revision)").
		Scan(&highest).Error
	if err != nil || highest == nil {
		return 0, err
	}
	return *highest, nil
}

// Create inserts a sealed snapshot
func (r *GormTBSnapshotRepository) Create(ctx context.Context, snapshot *ledger.TBSnapshot) error {
	return r.db.WithContext(ctx).Create(models.TBSnapshotModelFromDomain(snapshot)).Error
}

// MarkSuperseded flags a snapshot as superseded. Nothing else about a
// snapshot row ever changes.
func (r *GormTBSnapshotRepository) MarkSuperseded(ctx context.Context, snapshot *ledger.TBSnapshot) error {
	result := r.db.WithContext(ctx).
		Model(&models.TBSnapshotModel{}).
		Where("id = ? AND version = ?", snapshot.ID, snapshot.Version-1).
		Updates(map[string]any{
			"superseded":    true,
			"superseded_at": snapshot.SupersededAt,
			"version":       snapshot.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict("snapshot_id", snapshot.ID.String(), snapshot.Version-1)
	}
	return nil
}

func snapshotsToDomain(rows []models.TBSnapshotModel) []*ledger.TBSnapshot {
	out := make([]*ledger.TBSnapshot, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormTBSnapshotRepository implements TBSnapshotRepository
var _ ledger.TBSnapshotRepository = (*GormTBSnapshotRepository)(nil)
