package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) reopen(code, reason string) *ledger.Period {
	h.t.Helper()
	p, err := h.svc.Periods.Reopen(h.ctx, ReopenRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: code},
		Reason:              reason,
	})
	require.NoError(h.t, err)
	return p
}

func TestCreatePeriod(t *testing.T) {
	h := newHarness(t)
	p := h.createPeriod("2026-03", testStart)
	assert.Equal(t, ledger.PeriodStatusOpen, p.Status)
	require.Len(t, p.Checklist, 1)
	assert.Equal(t, "bank_reconciliation", p.Checklist[0].Name)

	t.Run("overlap", func(t *testing.T) {
		_, err := h.svc.Periods.CreatePeriod(h.ctx, CreatePeriodRequest{
			ScopeRequest: h.as(h.closer),
			Code:         "2026-03B",
			StartDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			EndDate:      time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		})
		assert.ErrorIs(t, err, ledger.ErrPeriodOverlap)
	})

	t.Run("same code", func(t *testing.T) {
		_, err := h.svc.Periods.CreatePeriod(h.ctx, CreatePeriodRequest{
			ScopeRequest: h.as(h.closer),
			Code:         "2026-03",
			StartDate:    time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
			EndDate:      time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := h.svc.Periods.CreatePeriod(h.ctx, CreatePeriodRequest{
			ScopeRequest: h.as(h.closer),
			Code:         "BAD",
			StartDate:    time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
			EndDate:      time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidPeriodRange)
	})

	t.Run("adjacent period with own checklist", func(t *testing.T) {
		p, err := h.svc.Periods.CreatePeriod(h.ctx, CreatePeriodRequest{
			ScopeRequest: h.as(h.closer),
			Code:         "2026-04",
			StartDate:    testApril,
			EndDate:      time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
			Checklist:    []string{"accruals", "fx_revaluation"},
		})
		require.NoError(t, err)
		assert.Len(t, p.Checklist, 2)
	})

	periods, err := h.svc.Periods.List(h.ctx, h.scope())
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "2026-03", periods[0].Code)
}

func TestStartClose_ChecklistIncomplete(t *testing.T) {
	h := newHarness(t)
	h.createPeriod("2026-03", testStart)

	_, err := h.close("2026-03")
	assert.ErrorIs(t, err, ledger.ErrChecklistIncomplete)

	_, err = h.svc.Periods.CompleteTask(h.ctx, CompleteTaskRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-03"},
		Task:                "inventory_count",
	})
	assert.ErrorIs(t, err, ledger.ErrUnknownChecklistTask)
}

func TestStartClose_Gating(t *testing.T) {
	for _, blocking := range []ledger.EntryStatus{ledger.EntryStatusDraft, ledger.EntryStatusSubmitted, ledger.EntryStatusApproved} {
		t.Run(string(blocking), func(t *testing.T) {
			h := newHarness(t)
			h.createPeriod("2026-03", testStart)
			h.completeChecklist("2026-03")
			h.postedEntry("JE-DONE", "2026-03", lines("6000", "1000", 100))

			e := h.createEntry("JE-OPEN", "2026-03", lines("6000", "1000", 100))
			if blocking != ledger.EntryStatusDraft {
				e = h.submit(e)
			}
			if blocking == ledger.EntryStatusApproved {
				_, err := h.decide(*e.RouteID, 1, h.approver, "APPROVE")
				require.NoError(t, err)
			}
			require.Equal(t, blocking, h.store.entry(e.ID).Status)

			_, err := h.close("2026-03")
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrPendingEntries)

			p, err := h.svc.Periods.Get(h.ctx, h.scope(), "2026-03")
			require.NoError(t, err)
			assert.Equal(t, ledger.PeriodStatusOpen, p.Status)
		})
	}

	t.Run("terminal entries only", func(t *testing.T) {
		h := newHarness(t)
		h.createPeriod("2026-03", testStart)
		h.completeChecklist("2026-03")
		h.postedEntry("JE-POSTED", "2026-03", lines("6000", "1000", 100))

		rejected := h.submit(h.createEntry("JE-REJ", "2026-03", lines("6000", "1000", 100)))
		_, err := h.decide(*rejected.RouteID, 1, h.approver, "REJECT")
		require.NoError(t, err)

		resp, err := h.close("2026-03")
		require.NoError(t, err)
		assert.Equal(t, ledger.PeriodStatusClosed, resp.Period.Status)
		assert.Equal(t, resp.Snapshot.ID, *resp.Period.SnapshotID)
		require.NotNil(t, resp.Period.ReopenDeadline)
		assert.Equal(t, testNow.Add(30*24*time.Hour), *resp.Period.ReopenDeadline)
	})
}

func TestStartClose_AlreadyClosed(t *testing.T) {
	h := newHarness(t)
	h.closedPeriod("2026-03", testStart)

	_, err := h.close("2026-03")
	assert.ErrorIs(t, err, ledger.ErrAlreadyClosed)
}

func TestStartClose_SnapshotFailureLeavesPendingClose(t *testing.T) {
	h := newHarness(t)
	h.createPeriod("2026-03", testStart)
	h.postedEntry("JE-1", "2026-03", lines("6000", "1000", 100))
	h.completeChecklist("2026-03")

	h.store.failSnapshotCreate = errors.New("disk full")
	_, err := h.close("2026-03")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTBSnapshotFailed)
	assert.Equal(t, shared.KindTransactional, shared.KindOf(err))
	assert.True(t, shared.IsRetryable(err))

	p, err := h.svc.Periods.Get(h.ctx, h.scope(), "2026-03")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodStatusPendingClose, p.Status)

	t.Run("postings are refused while pending close", func(t *testing.T) {
		_, err := h.svc.Posting.PostDocument(h.ctx, h.document("inv-1", "INV-1", lines("1100", "4000", 10)))
		assert.ErrorIs(t, err, ledger.ErrPeriodClosed)
	})

	t.Run("retry completes the close", func(t *testing.T) {
		h.store.failSnapshotCreate = nil
		resp, err := h.close("2026-03")
		require.NoError(t, err)
		assert.Equal(t, ledger.PeriodStatusClosed, resp.Period.Status)
		assert.Equal(t, 1, resp.Snapshot.Revision)
	})
}

func TestReopen(t *testing.T) {
	h := newHarness(t)
	closed := h.closedPeriod("2026-03", testStart, 100)

	_, err := h.svc.Periods.Reopen(h.ctx, ReopenRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-03", ExpectedVersion: closed.Period.Version - 1},
		Reason:              "late invoice",
	})
	assert.ErrorIs(t, err, shared.ErrVersionConflict)

	p := h.reopen("2026-03", "late invoice")
	assert.Equal(t, ledger.PeriodStatusOpen, p.Status)
	assert.Equal(t, 1, p.ReopenCount)
	assert.Equal(t, "late invoice", p.LastReopenReason)
	assert.Nil(t, p.SnapshotID)
	assert.NotEmpty(t, p.UndoneTasks())

	snap, err := h.svc.TrialBalance.GetSnapshot(h.ctx, h.scope(), closed.Snapshot.ID)
	require.NoError(t, err)
	assert.True(t, snap.Superseded)

	events := h.store.eventTypes()
	assert.Contains(t, events, ledger.EventTypePeriodReopened)
	assert.Contains(t, events, ledger.EventTypeSnapshotRetired)

	_, err = h.svc.Periods.Reopen(h.ctx, ReopenRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-03"},
		Reason:              "again",
	})
	assert.ErrorIs(t, err, ledger.ErrPeriodNotClosed)
}

func TestReopen_WindowExpired(t *testing.T) {
	h := newHarness(t)
	h.closedPeriod("2026-03", testStart)

	h.clock.Advance(31 * 24 * time.Hour)
	_, err := h.svc.Periods.Reopen(h.ctx, ReopenRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-03"},
		Reason:              "too late",
	})
	assert.ErrorIs(t, err, ledger.ErrReopenWindowExpired)
}

func TestReopen_UnknownPeriod(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Periods.Reopen(h.ctx, ReopenRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: "1999-01"},
		Reason:              "x",
	})
	assert.ErrorIs(t, err, ledger.ErrPeriodNotFound)
}

func (h *harness) cancelClose(code, reason string) (*ledger.Period, error) {
	p, err := h.svc.Periods.Get(h.ctx, h.scope(), code)
	require.NoError(h.t, err)
	return h.svc.Periods.CancelClose(h.ctx, CancelCloseRequest{
		PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: code, ExpectedVersion: p.Version},
		Reason:              reason,
	})
}

// pendingClosePeriod leaves a period with one posted entry in PENDING_CLOSE
func (h *harness) pendingClosePeriod(code string, start time.Time) {
	h.t.Helper()
	h.createPeriod(code, start)
	h.postedEntry("JE-"+code, code, lines("6000", "1000", 100))
	h.completeChecklist(code)

	h.store.failSnapshotCreate = errors.New("disk full")
	_, err := h.close(code)
	require.ErrorIs(h.t, err, ledger.ErrTBSnapshotFailed)
	h.store.failSnapshotCreate = nil
}

func TestStartClose_DraftBetweenStepsIsNotASnapshotFailure(t *testing.T) {
	var hooked *hookedScope
	h := newHarness(t, func(d *Dependencies) {
		hooked = &hookedScope{memStore: d.Scope.(*memStore)}
		d.Scope = hooked
	})
	h.createPeriod("2026-03", testStart)
	h.createPeriod("2026-04", testStart.AddDate(0, 1, 0))
	h.completeChecklist("2026-03")
	late := h.createEntry("JE-LATE", "2026-04", lines("6000", "1000", 100))

	hooked.afterCommit = func(s *memState) {
		for _, p := range s.periods {
			if p.Code == "2026-03" && p.Status == ledger.PeriodStatusPendingClose {
				s.entries[late.ID].PeriodCode = "2026-03"
				hooked.afterCommit = nil
			}
		}
	}

	_, err := h.close("2026-03")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrPendingEntries)
	assert.False(t, errors.Is(err, ledger.ErrTBSnapshotFailed))
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, ledger.ErrPendingEntries.Code, de.Code)

	p, err := h.svc.Periods.Get(h.ctx, h.scope(), "2026-03")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodStatusPendingClose, p.Status)

	t.Run("the stranded draft cannot be edited", func(t *testing.T) {
		_, err := h.svc.Journal.Update(h.ctx, UpdateEntryRequest{
			ScopeRequest: h.as(h.preparer),
			EntryInput:   EntryInput{Reference: "JE-LATE", PeriodCode: "2026-03", Currency: "USD", Lines: lines("6000", "1000", 200)},
			EntryID:      late.ID,
		})
		assert.ErrorIs(t, err, ledger.ErrPeriodClosed)
	})

	t.Run("cancelling the close frees the draft", func(t *testing.T) {
		reopened, err := h.cancelClose("2026-03", "late draft")
		require.NoError(t, err)
		assert.Equal(t, ledger.PeriodStatusOpen, reopened.Status)

		e, err := h.svc.Journal.Get(h.ctx, h.scope(), late.ID)
		require.NoError(t, err)
		_, err = h.svc.Journal.Update(h.ctx, UpdateEntryRequest{
			ScopeRequest:    h.as(h.preparer),
			EntryInput:      EntryInput{Reference: "JE-LATE", PeriodCode: "2026-03", Currency: "USD", Lines: lines("6000", "1000", 200)},
			EntryID:         late.ID,
			ExpectedVersion: e.Version,
		})
		require.NoError(t, err)
	})
}

func TestCancelClose(t *testing.T) {
	h := newHarness(t)
	h.pendingClosePeriod("2026-03", testStart)

	draft, err := h.svc.TrialBalance.Generate(h.ctx, PeriodRequest{ScopeRequest: h.as(h.closer), PeriodCode: "2026-03"})
	require.NoError(t, err)

	_, err = h.cancelClose("2026-03", " ")
	assert.ErrorIs(t, err, ledger.ErrReasonRequired)

	p, err := h.cancelClose("2026-03", "vendor invoice still missing")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodStatusOpen, p.Status)
	assert.Empty(t, p.UndoneTasks())
	assert.Nil(t, p.SnapshotID)

	snap, err := h.svc.TrialBalance.GetSnapshot(h.ctx, h.scope(), draft.ID)
	require.NoError(t, err)
	assert.True(t, snap.Superseded)

	events := h.store.eventTypes()
	assert.Contains(t, events, ledger.EventTypeCloseCancelled)
	assert.Contains(t, events, ledger.EventTypeSnapshotRetired)

	_, err = h.cancelClose("2026-03", "again")
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	t.Run("drafting resumes and the next close seals a new revision", func(t *testing.T) {
		h.postedEntry("JE-2", "2026-03", lines("6000", "1000", 50))
		resp, err := h.close("2026-03")
		require.NoError(t, err)
		assert.Equal(t, ledger.PeriodStatusClosed, resp.Period.Status)
		assert.Equal(t, 2, resp.Snapshot.Revision)
		assert.NotEqual(t, draft.ID, resp.Snapshot.ID)
	})
}

func TestCancelClose_ClosedPeriod(t *testing.T) {
	h := newHarness(t)
	h.closedPeriod("2026-03", testStart)

	_, err := h.cancelClose("2026-03", "too late")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
