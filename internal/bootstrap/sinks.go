package bootstrap

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DispatcherConfig maps the event config section onto the dispatcher
func DispatcherConfig(cfg config.EventConfig) event.DispatcherConfig {
	return event.DispatcherConfig{
		BatchSize:        cfg.BatchSize,
		PollInterval:     cfg.PollInterval,
		CleanupEnabled:   cfg.CleanupEnabled,
		CleanupRetention: cfg.CleanupRetention,
		CleanupInterval:  cfg.CleanupInterval,
		ProcessingLease:  cfg.ProcessingLease,
	}
}

// BuildSinks creates the configured audit sinks. Remote sinks sit behind a
// circuit breaker and every sink behind the delivery idempotency guard.
func BuildSinks(cfg config.EventConfig, client *redis.Client, log *zap.Logger) ([]ledger.AuditSink, error) {
	store, err := cache.NewIdempotencyStoreFactory(client,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IdempotencyRequired),
	).CreateStore()
	if err != nil {
		return nil, err
	}

	breaker := event.DefaultBreakerConfig()
	breaker.ConsecutiveFailures = cfg.BreakerFailures
	breaker.Timeout = cfg.BreakerTimeout

	sinks := make([]ledger.AuditSink, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		var sink ledger.AuditSink
		switch name {
		case "log":
			sink = event.NewLogSink(log.Named("audit"))
		case "redis_stream":
			if client == nil {
				return nil, fmt.Errorf("audit sink %s requires redis", name)
			}
			sink = event.NewBreakerSink(event.NewRedisStreamSink(client, cfg.StreamName, cfg.StreamMaxLen), breaker, log)
		default:
			return nil, fmt.Errorf("unknown audit sink %q", name)
		}
		sinks = append(sinks, event.NewIdempotentSink(sink, store, cfg.IdempotencyTTL, log))
	}
	return sinks, nil
}
