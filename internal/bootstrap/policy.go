package bootstrap

import (
	"errors"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/policy"
)

// ErrPolicyFileRequired is returned in production when no policy file is set
var ErrPolicyFileRequired = errors.New("ledger.policy_file is required in production")

// LoadPolicy reads the configured policy file. Outside production a missing
// file setting falls back to the development policy.
func LoadPolicy(cfg *config.Config) (*policy.File, error) {
	if cfg.Ledger.PolicyFile != "" {
		return policy.Load(cfg.Ledger.PolicyFile)
	}
	if cfg.App.Env == "production" {
		return nil, ErrPolicyFileRequired
	}
	return policy.Development(), nil
}

// LedgerPolicy maps the ledger config section onto the service policy
func LedgerPolicy(cfg config.LedgerConfig) appledger.Policy {
	return appledger.Policy{
		RejectedEntriesEditable: cfg.RejectedEntriesEditable,
		ReversalMode:            appledger.ReversalMode(cfg.ReversalMode),
		ReopenWindow:            cfg.ReopenWindow,
		AutoPostOnApproval:      cfg.AutoPostOnApproval,
		FunctionalCurrency:      cfg.FunctionalCurrency,
		DefaultChecklist:        cfg.CloseChecklist,
	}
}
