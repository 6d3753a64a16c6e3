package ledger

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestPeriod(t *testing.T, checklist ...string) *Period {
	t.Helper()
	p, err := NewPeriod(testScope(), "2026-03", day(2026, 3, 1), day(2026, 3, 31), checklist, uuid.New(), testNow)
	require.NoError(t, err)
	return p
}

func TestNewPeriod(t *testing.T) {
	p := newTestPeriod(t, "bank_rec", "accruals", "bank_rec", " ")
	assert.Equal(t, PeriodStatusOpen, p.Status)
	require.Len(t, p.Checklist, 2)
	assert.Equal(t, "bank_rec", p.Checklist[0].Name)

	_, err := NewPeriod(testScope(), "bad", day(2026, 3, 31), day(2026, 3, 1), nil, uuid.New(), testNow)
	assert.ErrorIs(t, err, ErrInvalidPeriodRange)

	_, err = NewPeriod(testScope(), "", day(2026, 3, 1), day(2026, 3, 31), nil, uuid.New(), testNow)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestPeriodOverlaps(t *testing.T) {
	p := newTestPeriod(t)
	assert.True(t, p.Overlaps(day(2026, 3, 31), day(2026, 4, 30)))
	assert.True(t, p.Overlaps(day(2026, 2, 1), day(2026, 3, 1)))
	assert.True(t, p.Overlaps(day(2026, 3, 10), day(2026, 3, 12)))
	assert.False(t, p.Overlaps(day(2026, 4, 1), day(2026, 4, 30)))
	assert.False(t, p.Overlaps(day(2026, 2, 1), day(2026, 2, 28)))
	assert.True(t, p.Contains(time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)))
}

func TestPeriodCloseCycle(t *testing.T) {
	actor := uuid.New()
	window := 72 * time.Hour

	t.Run("checklist gates close", func(t *testing.T) {
		p := newTestPeriod(t, "bank_rec")
		err := p.BeginClose(actor, testNow)
		require.ErrorIs(t, err, ErrChecklistIncomplete)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, "bank_rec", de.Details["tasks"])
		assert.Equal(t, PeriodStatusOpen, p.Status)

		assert.ErrorIs(t, p.CompleteTask("nope", actor, testNow), ErrUnknownChecklistTask)
		require.NoError(t, p.CompleteTask("bank_rec", actor, testNow))
		require.NoError(t, p.BeginClose(actor, testNow))
		assert.Equal(t, PeriodStatusPendingClose, p.Status)
		require.NoError(t, p.BeginClose(actor, testNow), "retry from pending close")
	})

	t.Run("close, reopen inside window, resume", func(t *testing.T) {
		p := newTestPeriod(t)
		require.NoError(t, p.BeginClose(actor, testNow))
		snap := uuid.New()
		require.NoError(t, p.CompleteClose(snap, actor, window, testNow))
		assert.Equal(t, PeriodStatusClosed, p.Status)
		assert.Equal(t, testNow.Add(window), *p.ReopenDeadline)
		assert.False(t, p.Status.AcceptsPostings())

		assert.ErrorIs(t, p.BeginClose(actor, testNow), ErrAlreadyClosed)
		assert.ErrorIs(t, p.Reopen(actor, "", testNow), ErrReasonRequired)

		require.NoError(t, p.Reopen(actor, "late invoice", testNow.Add(time.Hour)))
		assert.Equal(t, PeriodStatusReopened, p.Status)
		assert.True(t, p.Status.AcceptsPostings())
		assert.Equal(t, 1, p.ReopenCount)
		assert.Nil(t, p.SnapshotID)

		require.NoError(t, p.ResumeOpen(testNow))
		assert.Equal(t, PeriodStatusOpen, p.Status)
		assert.Nil(t, p.ReopenDeadline)
	})

	t.Run("reopen after the window", func(t *testing.T) {
		p := newTestPeriod(t)
		require.NoError(t, p.BeginClose(actor, testNow))
		require.NoError(t, p.CompleteClose(uuid.New(), actor, window, testNow))
		err := p.Reopen(actor, "late", testNow.Add(window))
		assert.ErrorIs(t, err, ErrReopenWindowExpired)
		assert.Equal(t, PeriodStatusClosed, p.Status)
	})

	t.Run("zero window never reopens", func(t *testing.T) {
		p := newTestPeriod(t)
		require.NoError(t, p.BeginClose(actor, testNow))
		require.NoError(t, p.CompleteClose(uuid.New(), actor, 0, testNow))
		assert.ErrorIs(t, p.Reopen(actor, "late", testNow), ErrReopenWindowExpired)
	})

	t.Run("reopen of an open period", func(t *testing.T) {
		p := newTestPeriod(t)
		assert.ErrorIs(t, p.Reopen(actor, "why", testNow), ErrPeriodNotClosed)
	})
}
