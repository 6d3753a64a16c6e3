package persistence

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerLineRepository is the append-only store of posted lines. It has
// no update or delete methods.
type GormLedgerLineRepository struct {
	db *gorm.DB
}

// NewGormLedgerLineRepository creates a new GormLedgerLineRepository
func NewGormLedgerLineRepository(db *gorm.DB) *GormLedgerLineRepository {
	return &GormLedgerLineRepository{db: db}
}

// Append inserts posted lines in one batch
func (r *GormLedgerLineRepository) Append(ctx context.Context, lines []ledger.LedgerLine) error {
	if len(lines) == 0 {
		return nil
	}
	rows := make([]models.LedgerLineModel, len(lines))
	for i, l := range lines {
		rows[i] = models.LedgerLineModelFromDomain(l)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *GormLedgerLineRepository) find(ctx context.Context, scope ledger.Scope, query string, arg any) ([]ledger.LedgerLine, error) {
	var rows []models.LedgerLineModel
	if err := scopeWhere(r.db.WithContext(ctx), scope).
		Where(query, arg).
		Order("sequence ASC, line_no ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.LedgerLine, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByEntry returns the posted lines of one entry
func (r *GormLedgerLineRepository) FindByEntry(ctx context.Context, scope ledger.Scope, entryID uuid.UUID) ([]ledger.LedgerLine, error) {
	return r.find(ctx, scope, "entry_id = ?", entryID)
}

// FindByPeriod returns every posted line of a period in posting order
func (r *GormLedgerLineRepository) FindByPeriod(ctx context.Context, scope ledger.Scope, periodCode string) ([]ledger.LedgerLine, error) {
	return r.find(ctx, scope, "period_code = ?", periodCode)
}

// CountByEntry counts the posted lines of one entry
func (r *GormLedgerLineRepository) CountByEntry(ctx context.Context, scope ledger.Scope, entryID uuid.UUID) (int64, error) {
	var n int64
	err := scopeWhere(r.db.WithContext(ctx).Model(&models.LedgerLineModel{}), scope).
		Where("entry_id = ?", entryID).
		Count(&n).Error
	return n, err
}

// GormPostingRepository indexes postings by their idempotency key
type GormPostingRepository struct {
	db *gorm.DB
}

// NewGormPostingRepository creates a new GormPostingRepository
func NewGormPostingRepository(db *gorm.DB) *GormPostingRepository {
	return &GormPostingRepository{db: db}
}

// FindBySource returns nil, nil when the source key was never posted
func (r *GormPostingRepository) FindBySource(ctx context.Context, scope ledger.Scope, sourceType, sourceID string) (*ledger.Posting, error) {
	var m models.PostingModel
	err := scopeWhere(r.db.WithContext(ctx), scope).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Create inserts the posting; a taken source key fails with shared.ErrAlreadyExists
func (r *GormPostingRepository) Create(ctx context.Context, posting *ledger.Posting) error {
	err := r.db.WithContext(ctx).Create(models.PostingModelFromDomain(posting)).Error
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists.WithDetails(map[string]string{
			"source_type": posting.SourceType,
			"source_id":   posting.SourceID,
		})
	}
	return err
}

// Ensure the repositories implement their ports
var (
	_ ledger.LedgerLineRepository = (*GormLedgerLineRepository)(nil)
	_ ledger.PostingRepository    = (*GormPostingRepository)(nil)
)
