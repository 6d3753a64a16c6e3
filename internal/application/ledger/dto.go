package ledger

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// ScopeRequest identifies the books and the acting user of a request
type ScopeRequest struct {
	TenantID  uuid.UUID `json:"tenant_id" validate:"required"`
	CompanyID uuid.UUID `json:"company_id" validate:"required"`
	ActorID   uuid.UUID `json:"actor_id" validate:"required"`
}

// Scope returns the ledger scope of the request
func (r ScopeRequest) Scope() ledger.Scope {
	return ledger.NewScope(r.TenantID, r.CompanyID)
}

// LineInput is one journal line in minor units
type LineInput struct {
	AccountCode string            `json:"account_code" validate:"max=32"`
	Debit       int64             `json:"debit"`
	Credit      int64             `json:"credit"`
	Memo        string            `json:"memo" validate:"max=255"`
	Dimensions  map[string]string `json:"dimensions,omitempty"`
}

func toDomainLines(in []LineInput) []ledger.JournalLine {
	out := make([]ledger.JournalLine, len(in))
	for i, l := range in {
		out[i] = ledger.JournalLine{
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        l.Memo,
			Dimensions:  l.Dimensions,
		}
	}
	return out
}

// EntryInput carries the editable content of a journal entry
type EntryInput struct {
	Reference   string      `json:"reference" validate:"required,max=64"`
	Description string      `json:"description" validate:"max=500"`
	PeriodCode  string      `json:"period_code" validate:"required,max=32"`
	Currency    string      `json:"currency" validate:"required,len=3"`
	EntryDate   time.Time   `json:"entry_date"`
	Lines       []LineInput `json:"lines" validate:"dive"`
}

func (in EntryInput) metadata(entryType ledger.EntryType) ledger.EntryMetadata {
	return ledger.EntryMetadata{
		Type:        entryType,
		Reference:   in.Reference,
		Description: in.Description,
		PeriodCode:  in.PeriodCode,
		Currency:    in.Currency,
		EntryDate:   in.EntryDate,
	}
}

// CreateEntryRequest creates a DRAFT journal entry
type CreateEntryRequest struct {
	ScopeRequest
	EntryInput
	Type string `json:"type" validate:"required,oneof=STANDARD ADJUSTMENT REVERSAL"`
}

// UpdateEntryRequest revises an editable entry
type UpdateEntryRequest struct {
	ScopeRequest
	EntryInput
	EntryID         uuid.UUID `json:"entry_id" validate:"required"`
	ExpectedVersion int       `json:"expected_version" validate:"gte=0"`
}

// EntryActionRequest addresses one entry at an observed version
type EntryActionRequest struct {
	ScopeRequest
	EntryID         uuid.UUID `json:"entry_id" validate:"required"`
	ExpectedVersion int       `json:"expected_version" validate:"gte=0"`
}

// ReverseEntryRequest reverses a posted entry
type ReverseEntryRequest struct {
	ScopeRequest
	EntryID uuid.UUID `json:"entry_id" validate:"required"`
	Reason  string    `json:"reason" validate:"required,max=500"`
	// PeriodCode books the reversal into another period; empty keeps the original's
	PeriodCode string `json:"period_code" validate:"max=32"`
}

// SourceDocumentRequest posts an upstream document straight to the ledger,
// keyed by its source type and id.
type SourceDocumentRequest struct {
	ScopeRequest
	EntryInput
	SourceType string `json:"source_type" validate:"required,max=64"`
	SourceID   string `json:"source_id" validate:"required,max=128"`
}

// ListEntriesRequest filters entries
type ListEntriesRequest struct {
	ScopeRequest
	Statuses   []string `json:"statuses" validate:"dive,oneof=DRAFT SUBMITTED APPROVED REJECTED POSTED REVERSED"`
	PeriodCode string   `json:"period_code"`
	Reference  string   `json:"reference"`
	Page       int      `json:"page" validate:"gte=0"`
	PageSize   int      `json:"page_size" validate:"gte=0,max=500"`
	SortBy     string   `json:"sort_by"`
	SortOrder  string   `json:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// EntryResponse is the caller-facing view of an entry
type EntryResponse struct {
	ID              uuid.UUID   `json:"id"`
	Type            string      `json:"type"`
	Status          string      `json:"status"`
	Reference       string      `json:"reference"`
	Description     string      `json:"description"`
	PeriodCode      string      `json:"period_code"`
	Currency        string      `json:"currency"`
	TotalDebit      int64       `json:"total_debit"`
	TotalCredit     int64       `json:"total_credit"`
	DisplayTotal    string      `json:"display_total"`
	Lines           []LineInput `json:"lines"`
	SourceType      string      `json:"source_type"`
	SourceID        string      `json:"source_id"`
	RouteID         *uuid.UUID  `json:"route_id,omitempty"`
	ReversalOfID    *uuid.UUID  `json:"reversal_of_id,omitempty"`
	ReversedByID    *uuid.UUID  `json:"reversed_by_id,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	PostingSequence int64       `json:"posting_sequence,omitempty"`
	CreatedBy       uuid.UUID   `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	PostedAt        *time.Time  `json:"posted_at,omitempty"`
	Version         int         `json:"version"`
}

// ToEntryResponse converts a domain entry to its response
func ToEntryResponse(e *ledger.JournalEntry) EntryResponse {
	lines := make([]LineInput, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = LineInput{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo, Dimensions: l.Dimensions}
	}
	return EntryResponse{
		ID:              e.ID,
		Type:            string(e.EntryType),
		Status:          string(e.Status),
		Reference:       e.Reference,
		Description:     e.Description,
		PeriodCode:      e.PeriodCode,
		Currency:        e.Currency,
		TotalDebit:      e.TotalDebit,
		TotalCredit:     e.TotalCredit,
		DisplayTotal:    ledger.FormatMinor(e.TotalDebit, e.Currency),
		Lines:           lines,
		SourceType:      e.SourceType,
		SourceID:        e.SourceID,
		RouteID:         e.RouteID,
		ReversalOfID:    e.ReversalOfID,
		ReversedByID:    e.ReversedByID,
		RejectionReason: e.RejectionReason,
		PostingSequence: e.PostingSequence,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
		PostedAt:        e.PostedAt,
		Version:         e.Version,
	}
}

// ReversalResponse reports a reversal and, when it was posted at once, its posting
type ReversalResponse struct {
	Reversal EntryResponse         `json:"reversal"`
	Posting  *ledger.PostingResult `json:"posting,omitempty"`
}

// DecideRequest records an approval decision at a level
type DecideRequest struct {
	ScopeRequest
	RouteID         uuid.UUID `json:"route_id" validate:"required"`
	Level           int       `json:"level" validate:"gte=1"`
	Decision        string    `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Comments        string    `json:"comments" validate:"max=1000"`
	ExpectedVersion int       `json:"expected_version" validate:"gte=0"`
}

// DecisionResponse reports the route and entry after a decision
type DecisionResponse struct {
	Record       ledger.ApprovalRecord `json:"record"`
	RouteStatus  string                `json:"route_status"`
	CurrentLevel int                   `json:"current_level"`
	RouteVersion int                   `json:"route_version"`
	Entry        *EntryResponse        `json:"entry,omitempty"`
	Posting      *ledger.PostingResult `json:"posting,omitempty"`
}

// PostRequest posts an APPROVED entry
type PostRequest struct {
	ScopeRequest
	EntryID         uuid.UUID `json:"entry_id" validate:"required"`
	ExpectedVersion int       `json:"expected_version" validate:"gte=0"`
}

// CreatePeriodRequest defines a new fiscal period
type CreatePeriodRequest struct {
	ScopeRequest
	Code      string    `json:"code" validate:"required,max=32"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	// Checklist overrides the configured default checklist when set
	Checklist []string `json:"checklist" validate:"dive,required,max=64"`
}

// PeriodActionRequest addresses one period at an observed version
type PeriodActionRequest struct {
	ScopeRequest
	PeriodCode      string `json:"period_code" validate:"required"`
	ExpectedVersion int    `json:"expected_version" validate:"gte=0"`
}

// CompleteTaskRequest ticks a checklist task
type CompleteTaskRequest struct {
	PeriodActionRequest
	Task string `json:"task" validate:"required"`
}

// ReopenRequest reopens a closed period
type ReopenRequest struct {
	PeriodActionRequest
	Reason string `json:"reason" validate:"required,max=500"`
}

// CancelCloseRequest takes a PENDING_CLOSE period back to OPEN
type CancelCloseRequest struct {
	PeriodActionRequest
	Reason string `json:"reason" validate:"required,max=500"`
}

// CloseResponse reports a completed close
type CloseResponse struct {
	Period   *ledger.Period     `json:"period"`
	Snapshot *ledger.TBSnapshot `json:"snapshot"`
}

// SnapshotRequest addresses a snapshot by id
type SnapshotRequest struct {
	ScopeRequest
	SnapshotID uuid.UUID `json:"snapshot_id" validate:"required"`
}

// PeriodRequest addresses a period by code
type PeriodRequest struct {
	ScopeRequest
	PeriodCode string `json:"period_code" validate:"required"`
}

// VerificationResult is the outcome of re-verifying one snapshot
type VerificationResult struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	PeriodCode string    `json:"period_code"`
	Revision   int       `json:"revision"`
	Hash       string    `json:"hash"`
	Valid      bool      `json:"valid"`
	Error      string    `json:"error,omitempty"`
}

// VarianceResponse is the per-account change against the prior period
type VarianceResponse struct {
	PeriodCode      string                `json:"period_code"`
	PriorPeriodCode string                `json:"prior_period_code,omitempty"`
	Currency        string                `json:"currency"`
	Lines           []ledger.VarianceLine `json:"lines"`
}

func pageOf(page, size int) shared.Page {
	return shared.Page{Page: page, PageSize: size}.Normalize()
}
