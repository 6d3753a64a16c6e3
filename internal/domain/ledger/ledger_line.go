package ledger

import (
	"time"

	"github.com/google/uuid"
)

// LedgerLine is an immutable row of the general ledger. Only the posting
// engine creates ledger lines.
type LedgerLine struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CompanyID    uuid.UUID
	EntryID      uuid.UUID
	LineNo       int
	AccountCode  string
	Debit        int64
	Credit       int64
	Currency     string
	PeriodCode   string
	PostedAt     time.Time
	Sequence     int64
	SourceType   string
	SourceID     string
	ReversalOfID *uuid.UUID
	Dimensions   map[string]string
}

// Posting records that a source key was materialized into ledger lines.
// The (tenant, company, source type, source id) tuple is unique.
type Posting struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CompanyID   uuid.UUID
	EntryID     uuid.UUID
	SourceType  string
	SourceID    string
	Sequence    int64
	LineIDs     []uuid.UUID
	TotalDebit  int64
	TotalCredit int64
	Currency    string
	PeriodCode  string
	PostedBy    uuid.UUID
	PostedAt    time.Time
}

// PostingResult is returned by every post call. A replay returns the
// original result field for field. Replayed is response metadata and is not
// part of the recorded outcome.
type PostingResult struct {
	PostingID   uuid.UUID
	EntryID     uuid.UUID
	SourceType  string
	SourceID    string
	Sequence    int64
	LineIDs     []uuid.UUID
	TotalDebit  int64
	TotalCredit int64
	Currency    string
	PostedAt    time.Time
	Replayed    bool
}

// Result converts a stored posting to the caller-facing result
func (p *Posting) Result(replayed bool) PostingResult {
	return PostingResult{
		PostingID:   p.ID,
		EntryID:     p.EntryID,
		SourceType:  p.SourceType,
		SourceID:    p.SourceID,
		Sequence:    p.Sequence,
		LineIDs:     append([]uuid.UUID(nil), p.LineIDs...),
		TotalDebit:  p.TotalDebit,
		TotalCredit: p.TotalCredit,
		Currency:    p.Currency,
		PostedAt:    p.PostedAt,
		Replayed:    replayed,
	}
}

// MaterializeLines turns an entry's lines into ledger rows stamped with the
// posting sequence, and the posting record that indexes them.
func MaterializeLines(e *JournalEntry, sequence int64, actor uuid.UUID, now time.Time) ([]LedgerLine, *Posting) {
	rows := make([]LedgerLine, len(e.Lines))
	ids := make([]uuid.UUID, len(e.Lines))
	for i, l := range e.Lines {
		id := uuid.New()
		ids[i] = id
		rows[i] = LedgerLine{
			ID:           id,
			TenantID:     e.TenantID,
			CompanyID:    e.CompanyID,
			EntryID:      e.ID,
			LineNo:       l.LineNo,
			AccountCode:  l.AccountCode,
			Debit:        l.Debit,
			Credit:       l.Credit,
			Currency:     e.Currency,
			PeriodCode:   e.PeriodCode,
			PostedAt:     now,
			Sequence:     sequence,
			SourceType:   e.SourceType,
			SourceID:     e.SourceID,
			ReversalOfID: e.ReversalOfID,
			Dimensions:   copyDimensions(l.Dimensions),
		}
	}
	posting := &Posting{
		ID:          uuid.New(),
		TenantID:    e.TenantID,
		CompanyID:   e.CompanyID,
		EntryID:     e.ID,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID,
		Sequence:    sequence,
		LineIDs:     ids,
		TotalDebit:  e.TotalDebit,
		TotalCredit: e.TotalCredit,
		Currency:    e.Currency,
		PeriodCode:  e.PeriodCode,
		PostedBy:    actor,
		PostedAt:    now,
	}
	return rows, posting
}
