package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testApril = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

// closedPeriod posts the given entries into a new period and closes it
func (h *harness) closedPeriod(code string, start time.Time, amounts ...int64) *CloseResponse {
	h.t.Helper()
	h.createPeriod(code, start)
	for i, amt := range amounts {
		h.postedEntry(code+"-JE-"+string(rune('A'+i)), code, lines("6000", "1000", amt))
	}
	h.completeChecklist(code)
	resp, err := h.close(code)
	require.NoError(h.t, err)
	h.clock.Advance(time.Hour)
	return resp
}

func (h *harness) verify(snapshot *ledger.TBSnapshot) (*VerificationResult, error) {
	return h.svc.TrialBalance.Verify(h.ctx, SnapshotRequest{ScopeRequest: h.as(h.closer), SnapshotID: snapshot.ID})
}

func TestSnapshot_SealedOnClose(t *testing.T) {
	h := newHarness(t)
	closed := h.closedPeriod("2026-03", testStart, 100000, 25000)

	s := closed.Snapshot
	assert.Equal(t, "2026-03", s.PeriodCode)
	assert.Equal(t, 1, s.Revision)
	assert.Equal(t, ledger.GenesisHash, s.PreviousHash)
	assert.Equal(t, int64(125000), s.TotalDebit)
	assert.Equal(t, s.TotalDebit, s.TotalCredit)
	require.Len(t, s.Lines, 2)
	assert.Equal(t, "1000", s.Lines[0].AccountCode)
	assert.Equal(t, int64(125000), s.Lines[0].CreditTotal)
	assert.Len(t, s.Hash, 64)
	assert.Contains(t, h.store.eventTypes(), ledger.EventTypeSnapshotGenerated)

	res, err := h.verify(s)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, s.Hash, res.Hash)
}

func TestSnapshot_ChainsToPreviousPeriod(t *testing.T) {
	h := newHarness(t)
	march := h.closedPeriod("2026-03", testStart, 100)
	april := h.closedPeriod("2026-04", testApril, 300)

	assert.Equal(t, march.Snapshot.Hash, april.Snapshot.PreviousHash)

	results, err := h.svc.TrialBalance.VerifyAll(h.ctx, h.scope())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Valid)
	}
}

func TestVerify_DetectsTamperedLedgerLine(t *testing.T) {
	mutations := map[string]func(l *ledger.LedgerLine){
		"debit amount":  func(l *ledger.LedgerLine) { l.Debit++ },
		"account code":  func(l *ledger.LedgerLine) { l.AccountCode = "6001" },
		"moved period":  func(l *ledger.LedgerLine) { l.PeriodCode = "2026-02" },
		"credit amount": func(l *ledger.LedgerLine) { l.Credit += 10 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			closed := h.closedPeriod("2026-03", testStart, 100000)

			h.store.mu.Lock()
			for i := range h.store.state.lines {
				l := &h.store.state.lines[i]
				if (name == "credit amount") == (l.Credit > 0) {
					mutate(l)
					break
				}
			}
			h.store.mu.Unlock()

			res, err := h.verify(closed.Snapshot)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrHashMismatch)
			assert.True(t, shared.IsCritical(err))
			require.NotNil(t, res)
			assert.False(t, res.Valid)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestVerify_DetectsTamperedSnapshot(t *testing.T) {
	h := newHarness(t)
	march := h.closedPeriod("2026-03", testStart, 100)
	april := h.closedPeriod("2026-04", testApril, 300)

	t.Run("stored lines", func(t *testing.T) {
		h.store.mu.Lock()
		h.store.state.snapshots[april.Snapshot.ID].Lines[0].CreditTotal++
		h.store.mu.Unlock()

		_, err := h.verify(april.Snapshot)
		require.ErrorIs(t, err, ledger.ErrHashMismatch)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, "stored_lines", de.Details["source"])
	})

	t.Run("broken chain", func(t *testing.T) {
		h.store.mu.Lock()
		h.store.state.snapshots[april.Snapshot.ID].Lines[0].CreditTotal--
		h.store.state.snapshots[march.Snapshot.ID].Hash = ledger.GenesisHash
		h.store.mu.Unlock()

		_, err := h.verify(april.Snapshot)
		require.ErrorIs(t, err, ledger.ErrHashMismatch)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, "chain", de.Details["source"])
	})
}

func TestVerify_ChainSurvivesReopenOfEarlierPeriod(t *testing.T) {
	h := newHarness(t)
	march := h.closedPeriod("2026-03", testStart, 100)
	april := h.closedPeriod("2026-04", testApril, 300)

	h.reopen("2026-03", "late accrual")
	h.postedEntry("2026-03-JE-LATE", "2026-03", lines("6000", "1000", 50))
	h.completeChecklist("2026-03")
	reclosed, err := h.close("2026-03")
	require.NoError(t, err)

	assert.Equal(t, 2, reclosed.Snapshot.Revision)
	assert.NotEqual(t, march.Snapshot.Hash, reclosed.Snapshot.Hash)

	res, err := h.verify(april.Snapshot)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	_, err = h.verify(march.Snapshot)
	assert.ErrorIs(t, err, ledger.ErrSnapshotSuperseded)

	history, err := h.svc.TrialBalance.History(h.ctx, h.scope(), "2026-03")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []int{1, 2}, []int{history[0].Revision, history[1].Revision})
	assert.True(t, history[0].Superseded)
	assert.False(t, history[1].Superseded)
	assert.Equal(t, reclosed.Snapshot.ID, history[1].ID)
}

func TestVariance(t *testing.T) {
	h := newHarness(t)
	h.closedPeriod("2026-03", testStart, 100)
	h.createPeriod("2026-04", testApril)
	h.postedEntry("2026-04-JE-A", "2026-04", lines("6000", "1000", 300))
	h.postedEntry("2026-04-JE-B", "2026-04", lines("1100", "4000", 70))
	h.completeChecklist("2026-04")
	_, err := h.close("2026-04")
	require.NoError(t, err)

	resp, err := h.svc.TrialBalance.Variance(h.ctx, PeriodRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-04"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03", resp.PriorPeriodCode)

	byAccount := map[string]ledger.VarianceLine{}
	for _, l := range resp.Lines {
		byAccount[l.AccountCode] = l
	}
	require.Len(t, byAccount, 4)
	assert.Equal(t, int64(200), byAccount["6000"].NetChange)
	assert.Equal(t, int64(-200), byAccount["1000"].NetChange)
	assert.Equal(t, int64(70), byAccount["1100"].NetChange)
	assert.Equal(t, int64(0), byAccount["4000"].PriorCredit)

	t.Run("no snapshot", func(t *testing.T) {
		h.createPeriod("2026-05", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
		_, err := h.svc.TrialBalance.Variance(h.ctx, PeriodRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-05"})
		assert.ErrorIs(t, err, ledger.ErrSnapshotNotFound)
	})
}

func TestGenerate_RequiresPendingClose(t *testing.T) {
	h := newHarness(t)
	h.createPeriod("2026-03", testStart)

	_, err := h.svc.TrialBalance.Generate(h.ctx, PeriodRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-03"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestGenerate_UnbalancedLedgerIsCritical(t *testing.T) {
	h := newHarness(t)
	h.createPeriod("2026-03", testStart)
	h.postedEntry("JE-1", "2026-03", lines("6000", "1000", 100))
	h.completeChecklist("2026-03")

	h.store.mu.Lock()
	h.store.state.lines[0].Debit = 999
	h.store.mu.Unlock()

	_, err := h.close("2026-03")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTBSnapshotFailed)
	assert.ErrorIs(t, err, ledger.ErrTrialBalanceUnbalanced)
	assert.True(t, shared.IsCritical(err))

	p, err := h.svc.Periods.Get(h.ctx, h.scope(), "2026-03")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodStatusPendingClose, p.Status)
}

func TestArchiver(t *testing.T) {
	archiver := new(MockSnapshotArchiver)
	h := newHarness(t, func(d *Dependencies) { d.Archiver = archiver })

	archiver.On("Archive", mock.Anything, mock.MatchedBy(func(s *ledger.TBSnapshot) bool {
		return s.PeriodCode == "2026-03"
	})).Return(errors.New("bucket unavailable")).Once()

	closed := h.closedPeriod("2026-03", testStart, 100)

	// archive failures never fail the close
	assert.Equal(t, ledger.PeriodStatusClosed, closed.Period.Status)
	archiver.AssertExpectations(t)
}
