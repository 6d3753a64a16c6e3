package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type funcTask struct {
	runs int32
	fn   func(ctx context.Context) error
}

func (f *funcTask) Name() string { return "test_task" }

func (f *funcTask) Run(ctx context.Context) error {
	atomic.AddInt32(&f.runs, 1)
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx)
}

type heldLocker struct{}

func (heldLocker) TryLock(context.Context, string, time.Duration) (UnlockFunc, error) {
	return nil, ErrLockHeld
}

type MockScopeLister struct{ mock.Mock }

func (m *MockScopeLister) ListScopes(ctx context.Context) ([]ledger.Scope, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Scope), args.Error(1)
}

type MockVerifier struct{ mock.Mock }

func (m *MockVerifier) VerifyAll(ctx context.Context, scope ledger.Scope) ([]appledger.VerificationResult, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]appledger.VerificationResult), args.Error(1)
}

func TestScheduler_RunNow(t *testing.T) {
	ctx := context.Background()

	t.Run("records a successful run", func(t *testing.T) {
		task := &funcTask{}
		s := NewScheduler(Config{Interval: time.Hour, JobTimeout: time.Minute}, task, zap.NewNop())

		require.NoError(t, s.RunNow(ctx))
		last := s.LastRun()
		require.NotNil(t, last)
		assert.Equal(t, JobStatusSuccess, last.Status)
		assert.Equal(t, "test_task", last.Task)
		assert.NotNil(t, last.CompletedAt)
	})

	t.Run("records a failed run", func(t *testing.T) {
		task := &funcTask{fn: func(context.Context) error { return errors.New("boom") }}
		s := NewScheduler(Config{Interval: time.Hour}, task, zap.NewNop())

		assert.EqualError(t, s.RunNow(ctx), "boom")
		assert.Equal(t, JobStatusFailed, s.LastRun().Status)
		assert.Equal(t, "boom", s.LastRun().Error)
	})

	t.Run("applies the job timeout", func(t *testing.T) {
		task := &funcTask{fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}
		s := NewScheduler(Config{Interval: time.Hour, JobTimeout: 10 * time.Millisecond}, task, zap.NewNop())

		assert.ErrorIs(t, s.RunNow(ctx), context.DeadlineExceeded)
	})

	t.Run("skips when the lock is held elsewhere", func(t *testing.T) {
		task := &funcTask{}
		s := NewScheduler(Config{Interval: time.Hour}, task, zap.NewNop(), WithLocker(heldLocker{}))

		assert.ErrorIs(t, s.RunNow(ctx), ErrLockHeld)
		assert.Equal(t, int32(0), atomic.LoadInt32(&task.runs))
		assert.Equal(t, JobStatusSkipped, s.LastRun().Status)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	task := &funcTask{}
	s := NewScheduler(Config{Interval: 5 * time.Millisecond}, task, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&task.runs) >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")
}

func TestScheduler_StartRejectsZeroInterval(t *testing.T) {
	s := NewScheduler(Config{}, &funcTask{}, zap.NewNop())
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidConfig)
}

func TestRedsyncLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	first := NewRedsyncLocker(client)
	second := NewRedsyncLocker(client)

	unlock, err := first.TryLock(ctx, "ledger:scheduler:sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:scheduler:sweep"))

	_, err = second.TryLock(ctx, "ledger:scheduler:sweep", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("ledger:scheduler:sweep"))

	unlock, err = second.TryLock(ctx, "ledger:scheduler:sweep", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	_, err = first.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
	_, err = first.TryLock(ctx, "k", 0)
	assert.Error(t, err)
}

func TestIntegritySweep(t *testing.T) {
	ctx := context.Background()
	good := ledger.NewScope(uuid.New(), uuid.New())
	bad := ledger.NewScope(uuid.New(), uuid.New())
	broken := ledger.NewScope(uuid.New(), uuid.New())
	badID := uuid.New()

	lister := new(MockScopeLister)
	lister.On("ListScopes", mock.Anything).Return([]ledger.Scope{good, bad, broken}, nil)

	verifier := new(MockVerifier)
	verifier.On("VerifyAll", mock.Anything, good).Return([]appledger.VerificationResult{
		{SnapshotID: uuid.New(), PeriodCode: "2026-03", Revision: 1, Valid: true},
	}, nil)
	verifier.On("VerifyAll", mock.Anything, bad).Return([]appledger.VerificationResult{
		{SnapshotID: uuid.New(), PeriodCode: "2026-03", Revision: 1, Valid: true},
		{SnapshotID: badID, PeriodCode: "2026-04", Revision: 2, Valid: false, Error: "HASH_MISMATCH"},
	}, ledger.ErrHashMismatch)
	verifier.On("VerifyAll", mock.Anything, broken).Return(nil, errors.New("connection reset"))

	core, logs := observer.New(zap.ErrorLevel)
	sweep := NewIntegritySweep(lister, verifier, zap.New(core))

	report, err := sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scopes)
	assert.Equal(t, 3, report.Verified)
	require.Len(t, report.Invalid, 2)
	assert.Equal(t, badID.String(), report.Invalid[0].SnapshotID)
	assert.Equal(t, "2026-04", report.Invalid[0].PeriodCode)
	assert.Equal(t, broken, report.Invalid[1].Scope)
	assert.Equal(t, 1, logs.FilterMessage("Trial balance snapshot failed verification").Len())

	err = sweep.Run(ctx)
	assert.ErrorIs(t, err, ErrIntegrityViolation)

	verifier.AssertExpectations(t)
}

func TestIntegritySweep_AllValid(t *testing.T) {
	scope := ledger.NewScope(uuid.New(), uuid.New())
	lister := new(MockScopeLister)
	lister.On("ListScopes", mock.Anything).Return([]ledger.Scope{scope}, nil)
	verifier := new(MockVerifier)
	verifier.On("VerifyAll", mock.Anything, scope).Return([]appledger.VerificationResult{{Valid: true}}, nil)

	sweep := NewIntegritySweep(lister, verifier, zap.NewNop())
	assert.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, "integrity_sweep", sweep.Name())
}

func TestIntegritySweep_ListError(t *testing.T) {
	lister := new(MockScopeLister)
	lister.On("ListScopes", mock.Anything).Return(nil, errors.New("db down"))

	sweep := NewIntegritySweep(lister, new(MockVerifier), zap.NewNop())
	err := sweep.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
