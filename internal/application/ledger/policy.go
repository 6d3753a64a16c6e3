package ledger

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
)

// ReversalMode selects how reversal entries reach the ledger
type ReversalMode string

const (
	// ReversalModeApproval submits reversals through the approval chain
	ReversalModeApproval ReversalMode = "approval"
	// ReversalModeAutoPost posts reversals immediately
	ReversalModeAutoPost ReversalMode = "auto_post"
)

// Policy holds the configurable ledger rules. It has no defaults of its own;
// the config layer supplies every value.
type Policy struct {
	// RejectedEntriesEditable lets REJECTED entries be revised back to DRAFT
	RejectedEntriesEditable bool
	// ReversalMode decides whether reversals need approval
	ReversalMode ReversalMode
	// ReopenWindow is how long after closing a period may be reopened; zero disables reopening
	ReopenWindow time.Duration
	// AutoPostOnApproval posts entries in the same transaction that approves them
	AutoPostOnApproval bool
	// FunctionalCurrency is the only currency entries may carry
	FunctionalCurrency string
	// DefaultChecklist seeds the close checklist of new periods
	DefaultChecklist []string
}

// Validate rejects unknown modes and malformed values
func (p Policy) Validate() error {
	switch p.ReversalMode {
	case ReversalModeApproval, ReversalModeAutoPost:
	default:
		return shared.ErrInvalidInput.WithDetails(map[string]string{"field": "reversal_mode", "value": string(p.ReversalMode)})
	}
	if p.ReopenWindow < 0 {
		return shared.ErrInvalidInput.WithDetail("field", "reopen_window")
	}
	if !ledger.ValidCurrency(p.FunctionalCurrency) {
		return ledger.ErrInvalidCurrency.WithDetail("currency", p.FunctionalCurrency)
	}
	return nil
}

func (p Policy) checkCurrency(currency string) error {
	if currency != p.FunctionalCurrency {
		return ledger.ErrCurrencyMismatch.WithDetails(map[string]string{
			"currency": currency,
			"expected": p.FunctionalCurrency,
		})
	}
	return nil
}
