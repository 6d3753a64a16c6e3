package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the previous hash of the first snapshot in a chain.
var GenesisHash = strings.Repeat("0", 64)

// TrialBalanceLine is the per-account aggregate of posted ledger lines.
type TrialBalanceLine struct {
	AccountCode string `json:"account_code"`
	DebitTotal  int64  `json:"debit_total"`
	CreditTotal int64  `json:"credit_total"`
}

// Net returns debit minus credit
func (l TrialBalanceLine) Net() int64 {
	return l.DebitTotal - l.CreditTotal
}

// TBSnapshot is an immutable, hash-chained trial balance for one period.
// Reopening a period supersedes its active snapshot; the next close writes
// a new revision.
type TBSnapshot struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CompanyID    uuid.UUID
	PeriodCode   string
	Revision     int
	Lines        []TrialBalanceLine
	TotalDebit   int64
	TotalCredit  int64
	Currency     string
	Hash         string
	PreviousHash string
	GeneratedAt  time.Time
	GeneratedBy  uuid.UUID
	Immutable    bool
	Superseded   bool
	SupersededAt *time.Time
	Version      int
}

// AggregateLines sums ledger lines per account code, sorted by code.
func AggregateLines(rows []LedgerLine) (lines []TrialBalanceLine, debit, credit int64, err error) {
	byAccount := make(map[string]*TrialBalanceLine)
	var ok bool
	for _, r := range rows {
		tb, exists := byAccount[r.AccountCode]
		if !exists {
			tb = &TrialBalanceLine{AccountCode: r.AccountCode}
			byAccount[r.AccountCode] = tb
		}
		if tb.DebitTotal, ok = addAmounts(tb.DebitTotal, r.Debit); !ok {
			return nil, 0, 0, ErrAmountOverflow.WithDetail("account", r.AccountCode)
		}
		if tb.CreditTotal, ok = addAmounts(tb.CreditTotal, r.Credit); !ok {
			return nil, 0, 0, ErrAmountOverflow.WithDetail("account", r.AccountCode)
		}
		if debit, ok = addAmounts(debit, r.Debit); !ok {
			return nil, 0, 0, ErrAmountOverflow.WithDetail("account", r.AccountCode)
		}
		if credit, ok = addAmounts(credit, r.Credit); !ok {
			return nil, 0, 0, ErrAmountOverflow.WithDetail("account", r.AccountCode)
		}
	}
	lines = make([]TrialBalanceLine, 0, len(byAccount))
	for _, tb := range byAccount {
		lines = append(lines, *tb)
	}
	SortLines(lines)
	return lines, debit, credit, nil
}

// SortLines orders trial balance lines by account code
func SortLines(lines []TrialBalanceLine) {
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].AccountCode < lines[j].AccountCode
	})
}

// CanonicalLines is the canonical serialization of sorted trial balance lines.
func CanonicalLines(lines []TrialBalanceLine) ([]byte, error) {
	sorted := append([]TrialBalanceLine(nil), lines...)
	SortLines(sorted)
	arr := make([]any, len(sorted))
	for i, l := range sorted {
		arr[i] = map[string]any{
			"account": l.AccountCode,
			"credit":  l.CreditTotal,
			"debit":   l.DebitTotal,
		}
	}
	return MarshalCanonical(arr)
}

// CanonicalTotals is the canonical serialization of snapshot totals.
func CanonicalTotals(debit, credit int64, currency string) ([]byte, error) {
	return MarshalCanonical(map[string]any{
		"credit":   credit,
		"currency": currency,
		"debit":    debit,
	})
}

// ComputeSnapshotHash returns the hex SHA-256 over the canonical lines, the
// canonical totals, the period code and the previous hash, each separated by
// a zero byte.
func ComputeSnapshotHash(lines []TrialBalanceLine, debit, credit int64, currency, periodCode, previousHash string) (string, error) {
	cl, err := CanonicalLines(lines)
	if err != nil {
		return "", fmt.Errorf("canonical lines: %w", err)
	}
	ct, err := CanonicalTotals(debit, credit, currency)
	if err != nil {
		return "", fmt.Errorf("canonical totals: %w", err)
	}
	h := sha256.New()
	h.Write(cl)
	h.Write([]byte{0x00})
	h.Write(ct)
	h.Write([]byte{0x00})
	h.Write([]byte(periodCode))
	h.Write([]byte{0x00})
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewTBSnapshot aggregates posted rows into a sealed snapshot chained to
// previousHash. Unbalanced aggregates fail with ErrTrialBalanceUnbalanced.
func NewTBSnapshot(scope Scope, periodCode, currency string, revision int, rows []LedgerLine, previousHash string, actor uuid.UUID, now time.Time) (*TBSnapshot, error) {
	lines, debit, credit, err := AggregateLines(rows)
	if err != nil {
		return nil, err
	}
	if debit != credit {
		return nil, ErrTrialBalanceUnbalanced.WithDetails(map[string]string{
			"period": periodCode,
			"debit":  FormatMinor(debit, currency),
			"credit": FormatMinor(credit, currency),
		})
	}
	if previousHash == "" {
		previousHash = GenesisHash
	}
	hash, err := ComputeSnapshotHash(lines, debit, credit, currency, periodCode, previousHash)
	if err != nil {
		return nil, err
	}
	return &TBSnapshot{
		ID:           uuid.New(),
		TenantID:     scope.TenantID,
		CompanyID:    scope.CompanyID,
		PeriodCode:   periodCode,
		Revision:     revision,
		Lines:        lines,
		TotalDebit:   debit,
		TotalCredit:  credit,
		Currency:     currency,
		Hash:         hash,
		PreviousHash: previousHash,
		GeneratedAt:  now,
		GeneratedBy:  actor,
		Immutable:    true,
		Version:      1,
	}, nil
}

// Scope returns the books the snapshot belongs to
func (s *TBSnapshot) Scope() Scope {
	return Scope{TenantID: s.TenantID, CompanyID: s.CompanyID}
}

// VerifyAgainst recomputes the hash from the given ledger rows and compares
// it, and the stored totals, to what was sealed.
func (s *TBSnapshot) VerifyAgainst(rows []LedgerLine) error {
	if s.Superseded {
		return ErrSnapshotSuperseded.WithDetails(map[string]string{"snapshot_id": s.ID.String(), "period": s.PeriodCode})
	}
	lines, debit, credit, err := AggregateLines(rows)
	if err != nil {
		return err
	}
	stored, err := ComputeSnapshotHash(s.Lines, s.TotalDebit, s.TotalCredit, s.Currency, s.PeriodCode, s.PreviousHash)
	if err != nil {
		return err
	}
	if stored != s.Hash {
		return s.mismatch(stored, "stored_lines")
	}
	current, err := ComputeSnapshotHash(lines, debit, credit, s.Currency, s.PeriodCode, s.PreviousHash)
	if err != nil {
		return err
	}
	if current != s.Hash {
		return s.mismatch(current, "ledger")
	}
	return nil
}

// VerifyChain checks the stored link to the previous snapshot's hash.
func (s *TBSnapshot) VerifyChain(previousHash string) error {
	if previousHash == "" {
		previousHash = GenesisHash
	}
	if s.PreviousHash != previousHash {
		return ErrHashMismatch.WithDetails(map[string]string{
			"snapshot_id": s.ID.String(),
			"period":      s.PeriodCode,
			"source":      "chain",
			"expected":    previousHash,
			"stored":      s.PreviousHash,
		})
	}
	return nil
}

func (s *TBSnapshot) mismatch(computed, source string) error {
	return ErrHashMismatch.WithDetails(map[string]string{
		"snapshot_id": s.ID.String(),
		"period":      s.PeriodCode,
		"source":      source,
		"stored":      s.Hash,
		"computed":    computed,
	})
}

// Supersede retires the snapshot when its period is reopened
func (s *TBSnapshot) Supersede(now time.Time) {
	if s.Superseded {
		return
	}
	s.Superseded = true
	s.SupersededAt = &now
	s.Version++
}

// VarianceLine is the per-account change between two snapshots.
type VarianceLine struct {
	AccountCode   string
	CurrentDebit  int64
	CurrentCredit int64
	PriorDebit    int64
	PriorCredit   int64
	NetChange     int64
}

// ComputeVariance diffs current against prior per account, covering accounts
// present in either snapshot. A nil prior is treated as empty.
func ComputeVariance(current, prior []TrialBalanceLine) []VarianceLine {
	byAccount := make(map[string]*VarianceLine)
	get := func(code string) *VarianceLine {
		v, ok := byAccount[code]
		if !ok {
			v = &VarianceLine{AccountCode: code}
			byAccount[code] = v
		}
		return v
	}
	for _, l := range current {
		v := get(l.AccountCode)
		v.CurrentDebit, v.CurrentCredit = l.DebitTotal, l.CreditTotal
	}
	for _, l := range prior {
		v := get(l.AccountCode)
		v.PriorDebit, v.PriorCredit = l.DebitTotal, l.CreditTotal
	}
	out := make([]VarianceLine, 0, len(byAccount))
	for _, v := range byAccount {
		v.NetChange = (v.CurrentDebit - v.CurrentCredit) - (v.PriorDebit - v.PriorCredit)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out
}
