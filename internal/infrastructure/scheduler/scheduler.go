// Package scheduler runs periodic background jobs such as the integrity sweep.
// With a distributed Locker only one ledgerd replica runs a job at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a job run
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// Task is a unit of periodic work
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Job records one run of a task
type Job struct {
	ID          uuid.UUID
	Task        string
	Status      JobStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

func newJob(task string, now time.Time) *Job {
	return &Job{
		ID:        uuid.New(),
		Task:      task,
		Status:    JobStatusRunning,
		StartedAt: now,
	}
}

func (j *Job) finish(status JobStatus, err error, now time.Time) {
	j.Status = status
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
}

// Config holds scheduler timing
type Config struct {
	Interval   time.Duration
	JobTimeout time.Duration
	LockTTL    time.Duration
}

// Scheduler runs one task every Interval
type Scheduler struct {
	config Config
	task   Task
	locker Locker
	clock  shared.Clock
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   *Job
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLocker makes runs mutually exclusive across replicas
func WithLocker(locker Locker) Option {
	return func(s *Scheduler) {
		s.locker = locker
	}
}

// WithClock sets the clock used for job timestamps
func WithClock(clock shared.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// NewScheduler creates a scheduler for task
func NewScheduler(config Config, task Task, logger *zap.Logger, opts ...Option) *Scheduler {
	if config.LockTTL <= 0 {
		config.LockTTL = config.JobTimeout
	}
	s := &Scheduler{
		config: config,
		task:   task,
		locker: noopLocker{},
		clock:  shared.SystemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the task every Interval until Stop
func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return ErrInvalidConfig
	}
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Scheduler started",
		zap.String("task", s.task.Name()),
		zap.Duration("interval", s.config.Interval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop waits for a running job to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped", zap.String("task", s.task.Name()))
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out", zap.String("task", s.task.Name()))
		return ctx.Err()
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunNow(ctx)
		}
	}
}

// RunNow runs the task once under the lock. A run skipped because another
// replica holds the lock returns ErrLockHeld.
func (s *Scheduler) RunNow(ctx context.Context) error {
	job := newJob(s.task.Name(), s.clock.Now())

	unlock, err := s.locker.TryLock(ctx, "ledger:scheduler:"+s.task.Name(), s.config.LockTTL)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			job.finish(JobStatusSkipped, nil, s.clock.Now())
			s.record(job)
			s.logger.Debug("Job skipped, lock held elsewhere", zap.String("task", job.Task))
		} else {
			job.finish(JobStatusFailed, err, s.clock.Now())
			s.record(job)
			s.logger.Error("Failed to acquire job lock", zap.String("task", job.Task), zap.Error(err))
		}
		return err
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.logger.Warn("Failed to release job lock", zap.String("task", job.Task), zap.Error(err))
		}
	}()

	jobCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	s.logger.Info("Job started", zap.String("task", job.Task), zap.String("job_id", job.ID.String()))
	if err := s.task.Run(jobCtx); err != nil {
		job.finish(JobStatusFailed, err, s.clock.Now())
		s.record(job)
		s.logger.Error("Job failed",
			zap.String("task", job.Task),
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return err
	}

	job.finish(JobStatusSuccess, nil, s.clock.Now())
	s.record(job)
	s.logger.Info("Job completed",
		zap.String("task", job.Task),
		zap.String("job_id", job.ID.String()),
		zap.Duration("duration", job.CompletedAt.Sub(job.StartedAt)),
	)
	return nil
}

func (s *Scheduler) record(job *Job) {
	s.mu.Lock()
	s.lastRun = job
	s.mu.Unlock()
}

// LastRun returns a copy of the most recent run, or nil
func (s *Scheduler) LastRun() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	cp := *s.lastRun
	return &cp
}
