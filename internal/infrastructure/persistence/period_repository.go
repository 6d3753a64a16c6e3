package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPeriodRepository implements PeriodRepository using GORM
type GormPeriodRepository struct {
	db *gorm.DB
}

// NewGormPeriodRepository creates a new GormPeriodRepository
func NewGormPeriodRepository(db *gorm.DB) *GormPeriodRepository {
	return &GormPeriodRepository{db: db}
}

func (r *GormPeriodRepository) findOne(ctx context.Context, scope ledger.Scope, query string, arg any) (*ledger.Period, error) {
	var m models.PeriodModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).Where(query, arg).First(&m).Error; err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByCode fails with ErrPeriodNotFound
func (r *GormPeriodRepository) FindByCode(ctx context.Context, scope ledger.Scope, code string) (*ledger.Period, error) {
	p, err := r.findOne(ctx, scope, "code = ?", code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrPeriodNotFound.WithDetail("period", code)
	}
	return p, err
}

// FindByID fails with ErrPeriodNotFound
func (r *GormPeriodRepository) FindByID(ctx context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.Period, error) {
	p, err := r.findOne(ctx, scope, "id = ?", id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrPeriodNotFound.WithDetail("period_id", id.String())
	}
	return p, err
}

// FindOverlapping returns periods whose date range intersects [start, end]
func (r *GormPeriodRepository) FindOverlapping(ctx context.Context, scope ledger.Scope, start, end time.Time) ([]*ledger.Period, error) {
	var rows []models.PeriodModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Order("start_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return periodsToDomain(rows), nil
}

// FindAll lists the periods of the scope by start date
func (r *GormPeriodRepository) FindAll(ctx context.Context, scope ledger.Scope) ([]*ledger.Period, error) {
	var rows []models.PeriodModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).
		Order("start_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return periodsToDomain(rows), nil
}

// Create inserts a new period. The code is unique per scope.
func (r *GormPeriodRepository) Create(ctx context.Context, period *ledger.Period) error {
	err := r.db.WithContext(ctx).Create(models.PeriodModelFromDomain(period)).Error
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists.WithDetail("period", period.Code)
	}
	return err
}

// SaveWithLock updates a period whose Version was already incremented by the domain
func (r *GormPeriodRepository) SaveWithLock(ctx context.Context, period *ledger.Period) error {
	m := models.PeriodModelFromDomain(period)
	result := r.db.WithContext(ctx).
		Model(m).
		Where("version = ?", period.Version-1).
		Select("status", "checklist", "closed_at", "closed_by", "reopen_deadline",
			"reopen_count", "last_reopen_reason", "snapshot_id", "version", "updated_at").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict("period", period.Code, period.Version-1)
	}
	return nil
}

func periodsToDomain(rows []models.PeriodModel) []*ledger.Period {
	out := make([]*ledger.Period, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormPeriodRepository implements PeriodRepository
var _ ledger.PeriodRepository = (*GormPeriodRepository)(nil)
