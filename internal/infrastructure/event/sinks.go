package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// LogSink writes audit events to a zap logger. It never fails.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Name returns the sink name
func (s *LogSink) Name() string { return "log" }

// Append logs the event
func (s *LogSink) Append(_ context.Context, event ledger.AuditEvent) error {
	s.logger.Info("audit event",
		zap.String("event_id", event.EventID.String()),
		zap.String("event_type", event.EventType),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("company_id", event.CompanyID.String()),
		zap.String("aggregate_type", event.AggregateType),
		zap.String("aggregate_id", event.AggregateID.String()),
		zap.Time("occurred_at", event.OccurredAt),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

// RedisStreamSink appends audit events to a Redis stream
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink appending to stream. A positive maxLen
// trims the stream approximately to that many entries.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Name returns the sink name
func (s *RedisStreamSink) Name() string { return "redis_stream" }

// Append adds the event to the stream
func (s *RedisStreamSink) Append(ctx context.Context, event ledger.AuditEvent) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":       event.EventID.String(),
			"event_type":     event.EventType,
			"tenant_id":      event.TenantID.String(),
			"company_id":     event.CompanyID.String(),
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    event.OccurredAt.UTC().Format(time.RFC3339Nano),
			"payload":        string(event.Payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// BreakerConfig configures the circuit breaker around a sink
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns default breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// ErrSinkUnavailable is returned while the breaker of a sink is open
var ErrSinkUnavailable = errors.New("audit sink unavailable")

// BreakerSink stops calling a failing sink for a while. Rejected calls fail
// like any other delivery error so the outbox schedules a retry.
type BreakerSink struct {
	sink    ledger.AuditSink
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps sink with a circuit breaker
func NewBreakerSink(sink ledger.AuditSink, cfg BreakerConfig, logger *zap.Logger) *BreakerSink {
	settings := gobreaker.Settings{
		Name:        "audit-" + sink.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("audit sink breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerSink{sink: sink, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the wrapped sink name
func (s *BreakerSink) Name() string { return s.sink.Name() }

// State returns the breaker state
func (s *BreakerSink) State() gobreaker.State { return s.breaker.State() }

// Append forwards the event unless the breaker is open
func (s *BreakerSink) Append(ctx context.Context, event ledger.AuditEvent) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.sink.Append(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, s.sink.Name(), err)
	}
	return err
}

// IdempotentSink skips events a sink has already accepted. The key is
// remembered only after a successful append, so a failed delivery is retried.
type IdempotentSink struct {
	sink   ledger.AuditSink
	store  shared.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentSink wraps sink with a delivery guard
func NewIdempotentSink(sink ledger.AuditSink, store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentSink {
	return &IdempotentSink{sink: sink, store: store, ttl: ttl, logger: logger}
}

// Name returns the wrapped sink name
func (s *IdempotentSink) Name() string { return s.sink.Name() }

func (s *IdempotentSink) key(event ledger.AuditEvent) string {
	return s.sink.Name() + ":" + event.EventID.String()
}

// Append forwards the event once per sink
func (s *IdempotentSink) Append(ctx context.Context, event ledger.AuditEvent) error {
	key := s.key(event)
	done, err := s.store.IsProcessed(ctx, key)
	if err != nil {
		s.logger.Warn("failed to check delivery guard, delivering anyway",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if done {
		s.logger.Debug("duplicate audit delivery skipped", zap.String("key", key))
		return nil
	}

	if err := s.sink.Append(ctx, event); err != nil {
		return err
	}

	if _, err := s.store.MarkProcessed(ctx, key, s.ttl); err != nil {
		s.logger.Warn("failed to record delivery", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Ensure the sinks implement AuditSink
var (
	_ ledger.AuditSink = (*LogSink)(nil)
	_ ledger.AuditSink = (*RedisStreamSink)(nil)
	_ ledger.AuditSink = (*BreakerSink)(nil)
	_ ledger.AuditSink = (*IdempotentSink)(nil)
)
