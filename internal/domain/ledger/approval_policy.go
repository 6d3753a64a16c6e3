package ledger

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ApprovalStep is one level of a threshold rule.
type ApprovalStep struct {
	Level        int           `yaml:"level"`
	Roles        []string      `yaml:"roles"`
	RequireAll   bool          `yaml:"require_all"`
	MinApprovals int           `yaml:"min_approvals"`
	SLA          time.Duration `yaml:"sla"`
}

// ThresholdRule routes entries whose amount falls in [MinAmount, MaxAmount).
// MaxAmount 0 means unbounded; empty EntryTypes matches every type.
type ThresholdRule struct {
	Name       string         `yaml:"name"`
	EntryTypes []EntryType    `yaml:"entry_types"`
	MinAmount  int64          `yaml:"min_amount"`
	MaxAmount  int64          `yaml:"max_amount"`
	Steps      []ApprovalStep `yaml:"steps"`
}

func (r ThresholdRule) matches(amount int64, entryType EntryType) bool {
	if amount < r.MinAmount {
		return false
	}
	if r.MaxAmount > 0 && amount >= r.MaxAmount {
		return false
	}
	if len(r.EntryTypes) == 0 {
		return true
	}
	for _, t := range r.EntryTypes {
		if t == entryType {
			return true
		}
	}
	return false
}

// PolicyTable is the ordered set of threshold rules used to build routes.
type PolicyTable struct {
	Rules []ThresholdRule `yaml:"rules"`
}

// Validate checks the table is usable: every rule has at least one step,
// every step names a role, and bounds are consistent.
func (t PolicyTable) Validate() error {
	if len(t.Rules) == 0 {
		return ErrInvalidApprovalPolicy.WithDetail("reason", "no rules")
	}
	for i, r := range t.Rules {
		name := r.Name
		if name == "" {
			name = "#" + strconv.Itoa(i+1)
		}
		if r.MinAmount < 0 || r.MaxAmount < 0 {
			return ErrInvalidApprovalPolicy.WithDetails(map[string]string{"rule": name, "reason": "negative bound"})
		}
		if r.MaxAmount > 0 && r.MaxAmount <= r.MinAmount {
			return ErrInvalidApprovalPolicy.WithDetails(map[string]string{"rule": name, "reason": "max_amount must exceed min_amount"})
		}
		if len(r.Steps) == 0 {
			return ErrInvalidApprovalPolicy.WithDetails(map[string]string{"rule": name, "reason": "no steps"})
		}
		for _, s := range r.Steps {
			if len(s.Roles) == 0 {
				return ErrInvalidApprovalPolicy.WithDetails(map[string]string{"rule": name, "reason": "step without roles"})
			}
			for _, role := range s.Roles {
				if strings.TrimSpace(role) == "" {
					return ErrInvalidApprovalPolicy.WithDetails(map[string]string{"rule": name, "reason": "empty role"})
				}
			}
		}
		for _, et := range r.EntryTypes {
			if !et.IsValid() {
				return ErrInvalidApprovalPolicy.WithDetails(map[string]string{"rule": name, "reason": "unknown entry type " + string(et)})
			}
		}
	}
	return nil
}

// Match returns the first rule, by ascending MinAmount, that covers the
// amount and entry type. Rules with equal MinAmount keep table order.
func (t PolicyTable) Match(amount int64, entryType EntryType) (ThresholdRule, error) {
	rules := make([]ThresholdRule, len(t.Rules))
	copy(rules, t.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].MinAmount < rules[j].MinAmount
	})
	for _, r := range rules {
		if r.matches(amount, entryType) {
			return r, nil
		}
	}
	return ThresholdRule{}, ErrNoApprovalPolicy.WithDetails(map[string]string{
		"amount":     strconv.FormatInt(amount, 10),
		"entry_type": string(entryType),
	})
}
