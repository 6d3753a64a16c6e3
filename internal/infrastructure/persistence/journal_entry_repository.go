package persistence

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormJournalEntryRepository implements JournalEntryRepository using GORM
type GormJournalEntryRepository struct {
	db *gorm.DB
}

// NewGormJournalEntryRepository creates a new GormJournalEntryRepository
func NewGormJournalEntryRepository(db *gorm.DB) *GormJournalEntryRepository {
	return &GormJournalEntryRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_no ASC")
}

func (r *GormJournalEntryRepository) findOne(ctx context.Context, scope ledger.Scope, query string, args ...any) (*ledger.JournalEntry, error) {
	var m models.JournalEntryModel
	err := scopeWhere(r.db.WithContext(ctx), scope).
		Preload("Lines", orderedLines).
		Where(query, args...).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByID finds an entry within the scope
func (r *GormJournalEntryRepository) FindByID(ctx context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.JournalEntry, error) {
	e, err := r.findOne(ctx, scope, "id = ?", id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrEntryNotFound.WithDetail("entry_id", id.String())
	}
	return e, err
}

// FindByReference returns nil, nil when the reference is unused
func (r *GormJournalEntryRepository) FindByReference(ctx context.Context, scope ledger.Scope, reference string) (*ledger.JournalEntry, error) {
	e, err := r.findOne(ctx, scope, "reference = ?", reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return e, err
}

// FindReversalOf returns the reversal entry of an original, or nil, nil
func (r *GormJournalEntryRepository) FindReversalOf(ctx context.Context, scope ledger.Scope, originalID uuid.UUID) (*ledger.JournalEntry, error) {
	e, err := r.findOne(ctx, scope, "reversal_of_id = ?", originalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return e, err
}

func (r *GormJournalEntryRepository) applyFilter(query *gorm.DB, filter ledger.EntryFilter) *gorm.DB {
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.EntryType != nil {
		query = query.Where("entry_type = ?", string(*filter.EntryType))
	}
	if filter.PeriodCode != "" {
		query = query.Where("period_code = ?", filter.PeriodCode)
	}
	if filter.Reference != "" {
		query = query.Where("reference LIKE ?", "%"+filter.Reference+"%")
	}
	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
	}
	if filter.FromDate != nil {
		query = query.Where("entry_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("entry_date <= ?", *filter.ToDate)
	}
	return query
}

// FindAll lists entries matching the filter and the total before paging
func (r *GormJournalEntryRepository) FindAll(ctx context.Context, scope ledger.Scope, filter ledger.EntryFilter) ([]*ledger.JournalEntry, int64, error) {
	base := r.applyFilter(scopeWhere(r.db.WithContext(ctx).Model(&models.JournalEntryModel{}), scope), filter)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page.Normalize()
	var rows []models.JournalEntryModel
	if err := r.applyFilter(scopeWhere(r.db.WithContext(ctx), scope), filter).
		Preload("Lines", orderedLines).
		Order(entryOrder(filter)).
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*ledger.JournalEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// CountInPeriod counts entries of the period in any of the given statuses
func (r *GormJournalEntryRepository) CountInPeriod(ctx context.Context, scope ledger.Scope, periodCode string, statuses ...ledger.EntryStatus) (int64, error) {
	var n int64
	err := r.applyFilter(
		scopeWhere(r.db.WithContext(ctx).Model(&models.JournalEntryModel{}), scope),
		ledger.EntryFilter{PeriodCode: periodCode, Statuses: statuses},
	).Count(&n).Error
	return n, err
}

// Create inserts a new entry with its lines
func (r *GormJournalEntryRepository) Create(ctx context.Context, entry *ledger.JournalEntry) error {
	m := models.JournalEntryModelFromDomain(entry)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			return err
		}
		return createLines(tx, m.Lines)
	})
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateReference.WithDetail("reference", entry.Reference)
	}
	return err
}

// SaveWithLock updates an entry whose Version was already incremented by the
// domain. Lines are rewritten only when the entry was revised.
func (r *GormJournalEntryRepository) SaveWithLock(ctx context.Context, entry *ledger.JournalEntry) error {
	m := models.JournalEntryModelFromDomain(entry)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.JournalEntryModel{}).
			Where("id = ? AND version = ?", entry.ID, entry.Version-1).
			Updates(map[string]any{
				"status":           m.Status,
				"total_debit":      m.TotalDebit,
				"total_credit":     m.TotalCredit,
				"currency":         m.Currency,
				"period_code":      m.PeriodCode,
				"reference":        m.Reference,
				"description":      m.Description,
				"entry_date":       m.EntryDate,
				"route_id":         m.RouteID,
				"reversed_by_id":   m.ReversedByID,
				"reversal_reason":  m.ReversalReason,
				"rejection_reason": m.RejectionReason,
				"submitted_by":     m.SubmittedBy,
				"submitted_at":     m.SubmittedAt,
				"approved_at":      m.ApprovedAt,
				"rejected_at":      m.RejectedAt,
				"posted_by":        m.PostedBy,
				"posted_at":        m.PostedAt,
				"posting_sequence": m.PostingSequence,
				"version":          m.Version,
				"updated_at":       m.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return versionConflict("entry_id", entry.ID.String(), entry.Version-1)
		}
		if !entry.LinesRevised() {
			return nil
		}
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.JournalLineModel{}).Error; err != nil {
			return err
		}
		return createLines(tx, m.Lines)
	})
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateReference.WithDetail("reference", entry.Reference)
	}
	return err
}

func createLines(tx *gorm.DB, lines []models.JournalLineModel) error {
	if len(lines) == 0 {
		return nil
	}
	return tx.Create(&lines).Error
}

// Ensure GormJournalEntryRepository implements JournalEntryRepository
var _ ledger.JournalEntryRepository = (*GormJournalEntryRepository)(nil)
