package ledger

import (
	"strconv"

	"github.com/erp/ledger/internal/domain/shared"
)

// Validation errors: rejected before any write.
var (
	ErrEntryNotBalanced       = shared.NewDomainError("ENTRY_NOT_BALANCED", "Journal entry debits and credits do not balance")
	ErrMinimumLinesRequired   = shared.NewDomainError("MINIMUM_LINES_REQUIRED", "Journal entry requires at least two lines")
	ErrLineDebitCreditBoth    = shared.NewDomainError("LINE_DEBIT_CREDIT_BOTH", "Journal line carries both a debit and a credit")
	ErrLineDebitCreditMissing = shared.NewDomainError("LINE_DEBIT_CREDIT_MISSING", "Journal line carries neither a debit nor a credit")
	ErrNegativeAmount         = shared.NewDomainError("NEGATIVE_AMOUNT", "Amounts must not be negative")
	ErrInvalidAmount          = shared.NewDomainError("INVALID_AMOUNT", "Amount is not a valid value in minor units")
	ErrAmountOverflow         = shared.NewDomainError("AMOUNT_OVERFLOW", "Amount exceeds the representable range")
	ErrMissingAccountCode     = shared.NewDomainError("MISSING_ACCOUNT_CODE", "Journal line requires an account code")
	ErrInvalidCurrency        = shared.NewDomainError("INVALID_CURRENCY", "Currency must be an ISO 4217 code")
	ErrCurrencyMismatch       = shared.NewDomainError("CURRENCY_MISMATCH", "Entry currency differs from the ledger currency")
	ErrDuplicateReference     = shared.NewDomainError("DUPLICATE_REFERENCE", "Reference already used in this company")
	ErrEntryTypeNotAllowed    = shared.NewDomainError("ENTRY_TYPE_NOT_ALLOWED", "Entry type cannot be submitted manually")
	ErrNoApprovalPolicy       = shared.NewDomainError("NO_APPROVAL_POLICY", "No approval policy matches the entry")
	ErrInvalidApprovalPolicy  = shared.NewDomainError("INVALID_APPROVAL_POLICY", "Approval policy table is invalid")
	ErrUnbalancedEntry        = shared.NewDomainError("UNBALANCED_ENTRY", "Entry does not balance and cannot be posted")
	ErrAccountNotFound        = shared.NewDomainError("ACCOUNT_NOT_FOUND", "Account does not exist")
	ErrAccountInactive        = shared.NewDomainError("ACCOUNT_INACTIVE", "Account is inactive")
	ErrAccountNotPostable     = shared.NewDomainError("ACCOUNT_NOT_POSTABLE", "Account is a header account and cannot be posted to")
	ErrPeriodOverlap          = shared.NewDomainError("PERIOD_OVERLAP", "Period overlaps an existing period")
	ErrInvalidPeriodRange     = shared.NewDomainError("INVALID_PERIOD_RANGE", "Period end must not be before its start")
	ErrUnknownChecklistTask   = shared.NewDomainError("UNKNOWN_CHECKLIST_TASK", "Checklist task does not exist for this period")
	ErrReasonRequired         = shared.NewDomainError("REASON_REQUIRED", "A reason is required")
)

// State-conflict errors: refetch and retry.
var (
	ErrPeriodClosed            = shared.NewKindError(shared.KindStateConflict, "PERIOD_CLOSED", "Period is not open for postings")
	ErrAlreadyClosed           = shared.NewKindError(shared.KindStateConflict, "ALREADY_CLOSED", "Period is already closed")
	ErrPeriodNotClosed         = shared.NewKindError(shared.KindStateConflict, "PERIOD_NOT_CLOSED", "Period is not closed")
	ErrReopenWindowExpired     = shared.NewKindError(shared.KindStateConflict, "REOPEN_WINDOW_EXPIRED", "Reopen window for the period has expired")
	ErrChecklistIncomplete     = shared.NewKindError(shared.KindStateConflict, "CHECKLIST_INCOMPLETE", "Close checklist has undone tasks")
	ErrPendingEntries          = shared.NewKindError(shared.KindStateConflict, "PENDING_ENTRIES", "Period has entries that are not in a terminal state")
	ErrApprovalAlreadyActioned = shared.NewKindError(shared.KindStateConflict, "APPROVAL_ALREADY_ACTIONED", "Approval level was already actioned")
	ErrAlreadyApproved         = shared.NewKindError(shared.KindStateConflict, "ALREADY_APPROVED", "Approval route is already approved")
	ErrAlreadyRejected         = shared.NewKindError(shared.KindStateConflict, "ALREADY_REJECTED", "Approval route is already rejected")
	ErrEntryAlreadyReversed    = shared.NewKindError(shared.KindStateConflict, "ENTRY_ALREADY_REVERSED", "Journal entry was already reversed")
	ErrAlreadyReversed         = shared.NewKindError(shared.KindStateConflict, "ALREADY_REVERSED", "Posting was already reversed")
	ErrSnapshotAlreadyExists   = shared.NewKindError(shared.KindStateConflict, "SNAPSHOT_ALREADY_EXISTS", "Period already has an active trial balance snapshot")
	ErrSnapshotSuperseded      = shared.NewKindError(shared.KindStateConflict, "SNAPSHOT_SUPERSEDED", "Snapshot was superseded by a later revision")
	ErrPeriodNotFound          = shared.NewKindError(shared.KindNotFound, "PERIOD_NOT_FOUND", "Period not found")
	ErrEntryNotFound           = shared.NewKindError(shared.KindNotFound, "ENTRY_NOT_FOUND", "Journal entry not found")
	ErrSnapshotNotFound        = shared.NewKindError(shared.KindNotFound, "SNAPSHOT_NOT_FOUND", "Trial balance snapshot not found")
)

// Authorization errors: never retried.
var (
	ErrSoDViolation           = shared.NewKindError(shared.KindAuthorization, "SOD_VIOLATION", "Creator of an entry cannot decide its approval")
	ErrNotAuthorizedToApprove = shared.NewKindError(shared.KindAuthorization, "NOT_AUTHORIZED_TO_APPROVE", "Actor lacks the role required at this approval level")
)

// Integrity errors: critical, halt close and reporting.
var (
	ErrTrialBalanceUnbalanced = shared.NewKindError(shared.KindIntegrity, "TRIAL_BALANCE_UNBALANCED", "Posted ledger lines do not balance for the period")
	ErrHashMismatch           = shared.NewKindError(shared.KindIntegrity, "HASH_MISMATCH", "Snapshot hash does not match the ledger")
)

// Transactional errors: nothing was committed.
var (
	ErrTransactionFailed = shared.ErrTransaction
	ErrTBSnapshotFailed  = shared.NewKindError(shared.KindTransactional, "TB_SNAPSHOT_FAILED", "Trial balance snapshot could not be generated; period left pending close")
)

// UnbalancedEntry builds the posting-time balance error with formatted amounts.
func UnbalancedEntry(debit, credit int64, currency string) error {
	return ErrUnbalancedEntry.WithDetails(map[string]string{
		"debit":  FormatMinor(debit, currency),
		"credit": FormatMinor(credit, currency),
	})
}

// EntryNotBalanced builds the creation-time balance error with formatted amounts.
func EntryNotBalanced(debit, credit int64, currency string) error {
	return ErrEntryNotBalanced.WithDetails(map[string]string{
		"debit":  FormatMinor(debit, currency),
		"credit": FormatMinor(credit, currency),
	})
}

func lineError(err *shared.DomainError, lineNo int, account string) error {
	return err.WithDetails(map[string]string{
		"line":    strconv.Itoa(lineNo),
		"account": account,
	})
}
