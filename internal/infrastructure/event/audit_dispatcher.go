package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatcherConfig holds configuration for the audit dispatcher
type DispatcherConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// ProcessingLease is how long a claim may stay PROCESSING before another
	// pass takes the entry over
	ProcessingLease time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
		ProcessingLease:  5 * time.Minute,
	}
}

// DispatchResult summarizes one dispatch pass
type DispatchResult struct {
	Claimed int
	Sent    int
	Failed  int
	Dead    int
}

// AuditDispatcher delivers outbox entries to audit sinks with at-least-once
// semantics. An entry is SENT once every sink accepted it; otherwise it is
// retried with backoff until it goes DEAD.
type AuditDispatcher struct {
	repo    shared.OutboxRepository
	sinks   []ledger.AuditSink
	config  DispatcherConfig
	clock   shared.Clock
	metrics *telemetry.LedgerMetrics
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAuditDispatcher creates a new dispatcher
func NewAuditDispatcher(
	repo shared.OutboxRepository,
	sinks []ledger.AuditSink,
	config DispatcherConfig,
	clock shared.Clock,
	metrics *telemetry.LedgerMetrics,
	logger *zap.Logger,
) *AuditDispatcher {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultDispatcherConfig().BatchSize
	}
	if config.ProcessingLease <= 0 {
		config.ProcessingLease = DefaultDispatcherConfig().ProcessingLease
	}
	return &AuditDispatcher{
		repo:    repo,
		sinks:   sinks,
		config:  config,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Start starts the background processing
func (d *AuditDispatcher) Start(ctx context.Context) error {
	if len(d.sinks) == 0 {
		return errors.New("audit dispatcher: no sinks configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.processLoop(ctx)

	if d.config.CleanupEnabled {
		d.wg.Add(1)
		go d.cleanupLoop(ctx)
	}

	d.logger.Info("audit dispatcher started",
		zap.Int("batch_size", d.config.BatchSize),
		zap.Duration("poll_interval", d.config.PollInterval),
		zap.Int("sinks", len(d.sinks)),
	)
	return nil
}

// Stop gracefully stops the dispatcher
func (d *AuditDispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("audit dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AuditDispatcher) processLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("audit dispatch failed", zap.Error(err))
			}
		}
	}
}

// DispatchOnce delivers one batch of pending entries and one batch of
// entries due for retry, including claims abandoned past the lease
func (d *AuditDispatcher) DispatchOnce(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult

	pending, err := d.repo.FindPending(ctx, d.config.BatchSize)
	if err != nil {
		return result, err
	}
	if err := d.processEntries(ctx, pending, &result); err != nil {
		return result, err
	}

	now := d.clock.Now()
	retryable, err := d.repo.FindRetryable(ctx, now, d.staleBefore(now), d.config.BatchSize)
	if err != nil {
		return result, err
	}
	return result, d.processEntries(ctx, retryable, &result)
}

func (d *AuditDispatcher) processEntries(ctx context.Context, entries []*shared.OutboxEntry, result *DispatchResult) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	now := d.clock.Now()
	claimed, err := d.repo.MarkProcessing(ctx, ids, now, d.staleBefore(now))
	if err != nil {
		return err
	}
	result.Claimed += len(claimed)

	for _, entry := range claimed {
		d.processEntry(ctx, entry, result)
	}
	return nil
}

func (d *AuditDispatcher) staleBefore(now time.Time) time.Time {
	return now.Add(-d.config.ProcessingLease)
}

func (d *AuditDispatcher) processEntry(ctx context.Context, entry *shared.OutboxEntry, result *DispatchResult) {
	event := AuditEventFromEntry(entry)

	var failure error
	for _, sink := range d.sinks {
		if err := sink.Append(ctx, event); err != nil {
			d.metrics.RecordOutboxDispatch(ctx, sink.Name(), "failed")
			d.logger.Warn("audit sink rejected event",
				zap.String("sink", sink.Name()),
				zap.String("event_id", entry.EventID.String()),
				zap.String("event_type", entry.EventType),
				zap.Error(err),
			)
			failure = errors.Join(failure, err)
			continue
		}
		d.metrics.RecordOutboxDispatch(ctx, sink.Name(), "sent")
	}

	now := d.clock.Now()
	if failure != nil {
		entry.MarkFailed(failure.Error(), now)
		if entry.IsDead() {
			result.Dead++
			d.logger.Error("audit event moved to dead letter queue",
				zap.String("event_id", entry.EventID.String()),
				zap.String("event_type", entry.EventType),
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		} else {
			result.Failed++
		}
	} else {
		entry.MarkSent(now)
		result.Sent++
	}

	if err := d.repo.Update(ctx, entry); err != nil {
		d.logger.Error("failed to update outbox entry",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
	}
}

// RetryDead moves a dead entry back to pending
func (d *AuditDispatcher) RetryDead(ctx context.Context, id uuid.UUID) error {
	entry, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := entry.ResetForRetry(d.clock.Now()); err != nil {
		return err
	}
	return d.repo.Update(ctx, entry)
}

// Stats returns the number of outbox entries per status
func (d *AuditDispatcher) Stats(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	return d.repo.CountByStatus(ctx)
}

func (d *AuditDispatcher) cleanupLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Cleanup(ctx)
		}
	}
}

// Cleanup removes delivered entries older than the retention
func (d *AuditDispatcher) Cleanup(ctx context.Context) int64 {
	cutoff := d.clock.Now().Add(-d.config.CleanupRetention)
	deleted, err := d.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		d.logger.Error("failed to cleanup old outbox entries", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		d.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted
}

// AuditEventFromEntry converts an outbox entry to the sink-facing event
func AuditEventFromEntry(entry *shared.OutboxEntry) ledger.AuditEvent {
	occurredAt := entry.CreatedAt
	var envelope struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(entry.Payload, &envelope); err == nil && !envelope.Timestamp.IsZero() {
		occurredAt = envelope.Timestamp
	}
	return ledger.AuditEvent{
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		TenantID:      entry.TenantID,
		CompanyID:     entry.CompanyID,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		OccurredAt:    occurredAt,
		Payload:       json.RawMessage(entry.Payload),
	}
}
