package persistence

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"gorm.io/gorm"
)

const nextSequenceSQL = `INSERT INTO ledger_sequences (scope, value, updated_at) VALUES (?, 1, ?)
ON CONFLICT (scope) DO UPDATE SET value = ledger_sequences.value + 1, updated_at = excluded.updated_at
RETURNING value`

// GormSequence hands out posting sequence numbers from the ledger_sequences
// table. Used inside the posting transaction, a rolled back posting also
// gives its number back, so the sequence stays gap free.
type GormSequence struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewGormSequence creates a new GormSequence
func NewGormSequence(db *gorm.DB, clock shared.Clock) *GormSequence {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &GormSequence{db: db, clock: clock}
}

// Next increments and returns the counter of scope
func (s *GormSequence) Next(ctx context.Context, scope string) (int64, error) {
	var value int64
	if err := s.db.WithContext(ctx).Raw(nextSequenceSQL, scope, s.clock.Now()).Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", scope, err)
	}
	return value, nil
}

// Ensure GormSequence implements SequencePort
var _ ledger.SequencePort = (*GormSequence)(nil)
