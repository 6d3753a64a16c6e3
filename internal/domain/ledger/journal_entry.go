package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// EntryType classifies journal entries
type EntryType string

const (
	EntryTypeStandard   EntryType = "STANDARD"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypeReversal   EntryType = "REVERSAL"
)

// IsValid checks if the entry type is known
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeStandard, EntryTypeAdjustment, EntryTypeReversal:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a journal entry
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "DRAFT"
	EntryStatusSubmitted EntryStatus = "SUBMITTED"
	EntryStatusApproved  EntryStatus = "APPROVED"
	EntryStatusRejected  EntryStatus = "REJECTED"
	EntryStatusPosted    EntryStatus = "POSTED"
	EntryStatusReversed  EntryStatus = "REVERSED"
)

// IsTerminal reports whether the entry no longer blocks a period close.
func (s EntryStatus) IsTerminal() bool {
	switch s {
	case EntryStatusPosted, EntryStatusRejected, EntryStatusReversed:
		return true
	}
	return false
}

// PendingEntryStatuses are the statuses that block a period close.
func PendingEntryStatuses() []EntryStatus {
	return []EntryStatus{EntryStatusDraft, EntryStatusSubmitted, EntryStatusApproved}
}

// SourceTypeJournal is the idempotency source type of manual journal entries.
const SourceTypeJournal = "journal_entry"

// SourceTypeReversal is the idempotency source type of reversal postings;
// the source id is the original entry id, so an entry reverses at most once.
const SourceTypeReversal = "reversal"

// JournalLine is one debit or credit against an account.
type JournalLine struct {
	LineNo      int
	AccountCode string
	Debit       int64
	Credit      int64
	Memo        string
	Dimensions  map[string]string
}

// Amount returns the non-zero side of the line
func (l JournalLine) Amount() int64 {
	if l.Debit != 0 {
		return l.Debit
	}
	return l.Credit
}

// Swapped returns the line with debit and credit exchanged
func (l JournalLine) Swapped() JournalLine {
	cp := l
	cp.Debit, cp.Credit = l.Credit, l.Debit
	cp.Dimensions = copyDimensions(l.Dimensions)
	return cp
}

func (l JournalLine) validate() error {
	if strings.TrimSpace(l.AccountCode) == "" {
		return lineError(ErrMissingAccountCode, l.LineNo, l.AccountCode)
	}
	if l.Debit < 0 || l.Credit < 0 {
		return lineError(ErrNegativeAmount, l.LineNo, l.AccountCode)
	}
	if l.Debit != 0 && l.Credit != 0 {
		return lineError(ErrLineDebitCreditBoth, l.LineNo, l.AccountCode)
	}
	if l.Debit == 0 && l.Credit == 0 {
		return lineError(ErrLineDebitCreditMissing, l.LineNo, l.AccountCode)
	}
	return nil
}

// normalizeLines numbers lines from 1 and trims account codes.
func normalizeLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, len(lines))
	for i, l := range lines {
		l.LineNo = i + 1
		l.AccountCode = strings.TrimSpace(l.AccountCode)
		l.Dimensions = copyDimensions(l.Dimensions)
		out[i] = l
	}
	return out
}

// ValidateLineShapes checks line count and the debit-xor-credit rule, and
// returns the totals. It does not require the totals to balance.
func ValidateLineShapes(lines []JournalLine) (debit, credit int64, err error) {
	if len(lines) < 2 {
		return 0, 0, ErrMinimumLinesRequired.WithDetail("lines", strconv.Itoa(len(lines)))
	}
	var ok bool
	for _, l := range lines {
		if err := l.validate(); err != nil {
			return 0, 0, err
		}
		if debit, ok = addAmounts(debit, l.Debit); !ok {
			return 0, 0, lineError(ErrAmountOverflow, l.LineNo, l.AccountCode)
		}
		if credit, ok = addAmounts(credit, l.Credit); !ok {
			return 0, 0, lineError(ErrAmountOverflow, l.LineNo, l.AccountCode)
		}
	}
	return debit, credit, nil
}

// ValidateLines is ValidateLineShapes plus the balance rule.
func ValidateLines(lines []JournalLine, currency string) (debit, credit int64, err error) {
	debit, credit, err = ValidateLineShapes(lines)
	if err != nil {
		return 0, 0, err
	}
	if debit != credit {
		return 0, 0, EntryNotBalanced(debit, credit, currency)
	}
	return debit, credit, nil
}

// EntryMetadata carries the header fields of an entry
type EntryMetadata struct {
	Type        EntryType
	Reference   string
	Description string
	PeriodCode  string
	Currency    string
	EntryDate   time.Time
	SourceType  string
	SourceID    string
}

func (m EntryMetadata) validate() error {
	if !m.Type.IsValid() {
		return shared.ErrInvalidInput.WithDetail("field", "type")
	}
	if strings.TrimSpace(m.Reference) == "" {
		return shared.ErrInvalidInput.WithDetail("field", "reference")
	}
	if strings.TrimSpace(m.PeriodCode) == "" {
		return shared.ErrInvalidInput.WithDetail("field", "period_code")
	}
	if !ValidCurrency(m.Currency) {
		return ErrInvalidCurrency.WithDetail("currency", m.Currency)
	}
	return nil
}

// JournalEntry is the aggregate root for a double-entry journal entry.
type JournalEntry struct {
	shared.TenantAggregateRoot
	EntryType       EntryType
	Status          EntryStatus
	Lines           []JournalLine
	TotalDebit      int64
	TotalCredit     int64
	Currency        string
	PeriodCode      string
	Reference       string
	Description     string
	EntryDate       time.Time
	SourceType      string
	SourceID        string
	RouteID         *uuid.UUID
	ReversalOfID    *uuid.UUID
	ReversedByID    *uuid.UUID
	ReversalReason  string
	RejectionReason string
	SubmittedBy     *uuid.UUID
	SubmittedAt     *time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	PostedBy        *uuid.UUID
	PostedAt        *time.Time
	PostingSequence int64

	linesRevised bool
}

// NewJournalEntry creates a DRAFT entry after full validation.
func NewJournalEntry(scope Scope, createdBy uuid.UUID, meta EntryMetadata, lines []JournalLine, now time.Time) (*JournalEntry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	lines = normalizeLines(lines)
	debit, credit, err := ValidateLines(lines, meta.Currency)
	if err != nil {
		return nil, err
	}
	e := newEntry(scope, createdBy, meta, lines, debit, credit, now)
	e.AddDomainEvent(NewJournalEntryCreatedEvent(e, now))
	return e, nil
}

// NewSourceEntry creates an entry for a source document that goes straight to
// posting. Only line shapes are checked here; the balance is re-validated by
// the posting step so that an unbalanced document fails there with details.
func NewSourceEntry(scope Scope, actor uuid.UUID, meta EntryMetadata, lines []JournalLine, now time.Time) (*JournalEntry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(meta.SourceType) == "" || strings.TrimSpace(meta.SourceID) == "" {
		return nil, shared.ErrInvalidInput.WithDetail("field", "source")
	}
	lines = normalizeLines(lines)
	debit, credit, err := ValidateLineShapes(lines)
	if err != nil {
		return nil, err
	}
	e := newEntry(scope, actor, meta, lines, debit, credit, now)
	e.Status = EntryStatusApproved
	e.ApprovedAt = &now
	return e, nil
}

func newEntry(scope Scope, createdBy uuid.UUID, meta EntryMetadata, lines []JournalLine, debit, credit int64, now time.Time) *JournalEntry {
	e := &JournalEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(scope.TenantID, scope.CompanyID, createdBy, now),
		EntryType:           meta.Type,
		Status:              EntryStatusDraft,
		Lines:               lines,
		TotalDebit:          debit,
		TotalCredit:         credit,
		Currency:            meta.Currency,
		PeriodCode:          strings.TrimSpace(meta.PeriodCode),
		Reference:           strings.TrimSpace(meta.Reference),
		Description:         meta.Description,
		EntryDate:           meta.EntryDate,
		SourceType:          meta.SourceType,
		SourceID:            meta.SourceID,
	}
	if e.EntryDate.IsZero() {
		e.EntryDate = now
	}
	if e.SourceType == "" {
		e.SourceType = SourceTypeJournal
		e.SourceID = e.ID.String()
	}
	return e
}

// Scope returns the books the entry belongs to
func (e *JournalEntry) Scope() Scope {
	return ScopeOf(&e.TenantAggregateRoot)
}

// IsEditable reports whether lines and header may still change.
func (e *JournalEntry) IsEditable(allowRejected bool) bool {
	return e.Status == EntryStatusDraft || (allowRejected && e.Status == EntryStatusRejected)
}

// Revise replaces header fields and lines of an editable entry. A revised
// REJECTED entry returns to DRAFT and needs a fresh approval route.
func (e *JournalEntry) Revise(meta EntryMetadata, lines []JournalLine, allowRejected bool, now time.Time) error {
	if !e.IsEditable(allowRejected) {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "revise"})
	}
	meta.Type = e.EntryType
	if err := meta.validate(); err != nil {
		return err
	}
	lines = normalizeLines(lines)
	debit, credit, err := ValidateLines(lines, meta.Currency)
	if err != nil {
		return err
	}
	e.Lines = lines
	e.linesRevised = true
	e.TotalDebit, e.TotalCredit = debit, credit
	e.Currency = meta.Currency
	e.PeriodCode = strings.TrimSpace(meta.PeriodCode)
	e.Reference = strings.TrimSpace(meta.Reference)
	e.Description = meta.Description
	if !meta.EntryDate.IsZero() {
		e.EntryDate = meta.EntryDate
	}
	e.Status = EntryStatusDraft
	e.RouteID = nil
	e.RejectionReason = ""
	e.RejectedAt = nil
	e.Touch(now)
	e.IncrementVersion()
	return nil
}

// LinesRevised reports whether Revise replaced the lines since the entry was
// loaded
func (e *JournalEntry) LinesRevised() bool {
	return e.linesRevised
}

// Submit moves a DRAFT entry to SUBMITTED under the given approval route.
func (e *JournalEntry) Submit(actor, routeID uuid.UUID, now time.Time) error {
	if e.Status != EntryStatusDraft {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "submit"})
	}
	e.Status = EntryStatusSubmitted
	e.RouteID = &routeID
	e.SubmittedBy = &actor
	e.SubmittedAt = &now
	e.Touch(now)
	e.IncrementVersion()
	e.AddDomainEvent(NewJournalEntrySubmittedEvent(e, actor, now))
	return nil
}

// ApplyRouteOutcome transitions a SUBMITTED entry after its route terminates.
func (e *JournalEntry) ApplyRouteOutcome(outcome RouteStatus, actor uuid.UUID, reason string, now time.Time) error {
	if e.Status != EntryStatusSubmitted {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "resolve_approval"})
	}
	switch outcome {
	case RouteStatusApproved:
		if e.TotalDebit != e.TotalCredit {
			return EntryNotBalanced(e.TotalDebit, e.TotalCredit, e.Currency)
		}
		e.Status = EntryStatusApproved
		e.ApprovedAt = &now
		e.AddDomainEvent(NewJournalEntryApprovedEvent(e, actor, now))
	case RouteStatusRejected:
		e.Status = EntryStatusRejected
		e.RejectedAt = &now
		e.RejectionReason = reason
		e.AddDomainEvent(NewJournalEntryRejectedEvent(e, actor, reason, now))
	default:
		return shared.ErrInvalidInput.WithDetail("route_status", string(outcome))
	}
	e.Touch(now)
	e.IncrementVersion()
	return nil
}

// RecomputeTotals sums the lines without trusting the stored totals.
func (e *JournalEntry) RecomputeTotals() (debit, credit int64, err error) {
	var ok bool
	for _, l := range e.Lines {
		if debit, ok = addAmounts(debit, l.Debit); !ok {
			return 0, 0, lineError(ErrAmountOverflow, l.LineNo, l.AccountCode)
		}
		if credit, ok = addAmounts(credit, l.Credit); !ok {
			return 0, 0, lineError(ErrAmountOverflow, l.LineNo, l.AccountCode)
		}
	}
	return debit, credit, nil
}

// CheckPostingBalance re-validates the double-entry rule in minor units.
func (e *JournalEntry) CheckPostingBalance() error {
	if len(e.Lines) < 2 {
		return ErrMinimumLinesRequired.WithDetail("lines", strconv.Itoa(len(e.Lines)))
	}
	for _, l := range e.Lines {
		if err := l.validate(); err != nil {
			return err
		}
	}
	debit, credit, err := e.RecomputeTotals()
	if err != nil {
		return err
	}
	if debit != credit || debit != e.TotalDebit || credit != e.TotalCredit {
		return UnbalancedEntry(debit, credit, e.Currency)
	}
	return nil
}

// MarkPosted records a successful posting.
func (e *JournalEntry) MarkPosted(sequence int64, actor uuid.UUID, now time.Time) error {
	if e.Status != EntryStatusApproved {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "post"})
	}
	e.Status = EntryStatusPosted
	e.PostingSequence = sequence
	e.PostedBy = &actor
	e.PostedAt = &now
	e.Touch(now)
	e.IncrementVersion()
	e.AddDomainEvent(NewJournalEntryPostedEvent(e, actor, now))
	return nil
}

// CheckReversible fails unless the entry is POSTED and not yet reversed.
func (e *JournalEntry) CheckReversible() error {
	if e.Status == EntryStatusReversed || e.ReversedByID != nil {
		return ErrEntryAlreadyReversed.WithDetail("entry_id", e.ID.String())
	}
	if e.Status != EntryStatusPosted {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "reverse"})
	}
	return nil
}

// MarkReversed links a posted entry to the reversal that nets it to zero.
func (e *JournalEntry) MarkReversed(reversalID, actor uuid.UUID, reason string, now time.Time) error {
	if e.Status == EntryStatusReversed {
		return ErrAlreadyReversed.WithDetail("entry_id", e.ID.String())
	}
	if e.Status != EntryStatusPosted {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "mark_reversed"})
	}
	e.Status = EntryStatusReversed
	e.ReversedByID = &reversalID
	e.ReversalReason = reason
	e.Touch(now)
	e.IncrementVersion()
	e.AddDomainEvent(NewJournalEntryReversedEvent(e, reversalID, actor, reason, now))
	return nil
}

// BuildReversal creates the mirror entry of a posted entry: every line's debit
// and credit swapped, same totals, linked through ReversalOfID.
func (e *JournalEntry) BuildReversal(actor uuid.UUID, reason, periodCode string, now time.Time) (*JournalEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired.WithDetail("operation", "reverse")
	}
	if err := e.CheckReversible(); err != nil {
		return nil, err
	}
	if periodCode == "" {
		periodCode = e.PeriodCode
	}
	lines := make([]JournalLine, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = l.Swapped()
	}
	meta := EntryMetadata{
		Type:        EntryTypeReversal,
		Reference:   "REV-" + e.Reference,
		Description: reason,
		PeriodCode:  periodCode,
		Currency:    e.Currency,
		EntryDate:   now,
		SourceType:  SourceTypeReversal,
		SourceID:    e.ID.String(),
	}
	rev, err := NewJournalEntry(e.Scope(), actor, meta, lines, now)
	if err != nil {
		return nil, err
	}
	originalID := e.ID
	rev.ReversalOfID = &originalID
	rev.ReversalReason = reason
	return rev, nil
}

// Approve marks a system-generated entry approved without a route; used for
// reversals configured to post automatically.
func (e *JournalEntry) Approve(actor uuid.UUID, now time.Time) error {
	if e.Status != EntryStatusDraft {
		return shared.ErrInvalidState.WithDetails(map[string]string{"entry_status": string(e.Status), "operation": "approve"})
	}
	e.Status = EntryStatusApproved
	e.ApprovedAt = &now
	e.Touch(now)
	e.IncrementVersion()
	e.AddDomainEvent(NewJournalEntryApprovedEvent(e, actor, now))
	return nil
}

// AccountCodes returns the account codes of the lines in line order.
func (e *JournalEntry) AccountCodes() []string {
	codes := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		codes[i] = l.AccountCode
	}
	return codes
}

func copyDimensions(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
