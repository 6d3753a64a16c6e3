package persistence

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormApprovalRouteRepository implements ApprovalRouteRepository using GORM
type GormApprovalRouteRepository struct {
	db *gorm.DB
}

// NewGormApprovalRouteRepository creates a new GormApprovalRouteRepository
func NewGormApprovalRouteRepository(db *gorm.DB) *GormApprovalRouteRepository {
	return &GormApprovalRouteRepository{db: db}
}

func recordsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("decided_at ASC, level ASC")
}

// FindByID finds a route with its records
func (r *GormApprovalRouteRepository) FindByID(ctx context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.ApprovalRoute, error) {
	var m models.ApprovalRouteModel
	err := scopeWhere(r.db.WithContext(ctx), scope).
		Preload("Records", recordsInOrder).
		Where("id = ?", id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound.WithDetail("route_id", id.String())
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByEntryID returns the most recent route of an entry
func (r *GormApprovalRouteRepository) FindByEntryID(ctx context.Context, scope ledger.Scope, entryID uuid.UUID) (*ledger.ApprovalRoute, error) {
	var m models.ApprovalRouteModel
	err := scopeWhere(r.db.WithContext(ctx), scope).
		Preload("Records", recordsInOrder).
		Where("entry_id = ?", entryID).
		Order("created_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound.WithDetail("entry_id", entryID.String())
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindPending lists routes still waiting for a decision, oldest first
func (r *GormApprovalRouteRepository) FindPending(ctx context.Context, scope ledger.Scope, page shared.Page) ([]*ledger.ApprovalRoute, int64, error) {
	page = page.Normalize()
	var total int64
	if err := scopeWhere(r.db.WithContext(ctx).Model(&models.ApprovalRouteModel{}), scope).
		Where("status = ?", string(ledger.RouteStatusPending)).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ApprovalRouteModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).
		Preload("Records", recordsInOrder).
		Where("status = ?", string(ledger.RouteStatusPending)).
		Order("created_at ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*ledger.ApprovalRoute, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a new route and any records it already carries
func (r *GormApprovalRouteRepository) Create(ctx context.Context, route *ledger.ApprovalRoute) error {
	m := models.ApprovalRouteModelFromDomain(route)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			return err
		}
		if len(m.Records) == 0 {
			return nil
		}
		return tx.Create(&m.Records).Error
	})
}

// SaveWithLock updates the route with compare-and-swap on version and
// appends the records not yet stored. Levels and records are never updated.
func (r *GormApprovalRouteRepository) SaveWithLock(ctx context.Context, route *ledger.ApprovalRoute) error {
	m := models.ApprovalRouteModelFromDomain(route)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ApprovalRouteModel{}).
			Where("id = ? AND version = ?", route.ID, route.Version-1).
			Updates(map[string]any{
				"current_level": m.CurrentLevel,
				"status":        m.Status,
				"resolved_at":   m.ResolvedAt,
				"version":       m.Version,
				"updated_at":    m.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return versionConflict("route_id", route.ID.String(), route.Version-1)
		}

		var stored []uuid.UUID
		if err := tx.Model(&models.ApprovalRecordModel{}).
			Where("route_id = ?", route.ID).
			Pluck("id", &stored).Error; err != nil {
			return err
		}
		known := make(map[uuid.UUID]struct{}, len(stored))
		for _, id := range stored {
			known[id] = struct{}{}
		}
		var fresh []models.ApprovalRecordModel
		for _, rec := range m.Records {
			if _, ok := known[rec.ID]; !ok {
				fresh = append(fresh, rec)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		return tx.Create(&fresh).Error
	})
	if isUniqueViolation(err) {
		return ledger.ErrApprovalAlreadyActioned.WithDetail("route_id", route.ID.String())
	}
	return err
}

// Ensure GormApprovalRouteRepository implements ApprovalRouteRepository
var _ ledger.ApprovalRouteRepository = (*GormApprovalRouteRepository)(nil)
