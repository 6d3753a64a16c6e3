package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures query spans
type DBTracingConfig struct {
	Enabled         bool
	DBName          string
	LogFullSQL      bool // include bound variables; never in production
	SlowQueryThresh time.Duration
}

// callback names registered by InstrumentDB
const (
	slowQueryStart = "ledger:slow_query_start"
	slowQueryEnd   = "ledger:slow_query_end"

	queryStartedAt = "ledger:query_started_at"
)

// InstrumentDB installs the otelgorm plugin and marks queries slower than
// SlowQueryThresh on their span and in the log.
func InstrumentDB(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	// The slow query hooks go in ahead of otelgorm so the end hook still sees
	// the statement span before the plugin ends it and restores the parent
	// context.
	start := func(tx *gorm.DB) { tx.InstanceSet(queryStartedAt, time.Now()) }
	end := func(tx *gorm.DB) { markSlowQuery(tx, cfg.SlowQueryThresh, logger) }

	cb := db.Callback()
	registrations := []struct {
		before func() error
		after  func() error
	}{
		{
			func() error { return cb.Create().Before("gorm:create").Register(slowQueryStart, start) },
			func() error { return cb.Create().After("gorm:create").Register(slowQueryEnd, end) },
		},
		{
			func() error { return cb.Query().Before("gorm:query").Register(slowQueryStart, start) },
			func() error { return cb.Query().After("gorm:query").Register(slowQueryEnd, end) },
		},
		{
			func() error { return cb.Update().Before("gorm:update").Register(slowQueryStart, start) },
			func() error { return cb.Update().After("gorm:update").Register(slowQueryEnd, end) },
		},
		{
			func() error { return cb.Delete().Before("gorm:delete").Register(slowQueryStart, start) },
			func() error { return cb.Delete().After("gorm:delete").Register(slowQueryEnd, end) },
		},
		{
			func() error { return cb.Raw().Before("gorm:raw").Register(slowQueryStart, start) },
			func() error { return cb.Raw().After("gorm:raw").Register(slowQueryEnd, end) },
		},
		{
			func() error { return cb.Row().Before("gorm:row").Register(slowQueryStart, start) },
			func() error { return cb.Row().After("gorm:row").Register(slowQueryEnd, end) },
		},
	}
	for _, r := range registrations {
		if err := r.before(); err != nil {
			return err
		}
		if err := r.after(); err != nil {
			return err
		}
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func markSlowQuery(tx *gorm.DB, thresh time.Duration, logger *zap.Logger) {
	if thresh <= 0 {
		return
	}
	v, ok := tx.InstanceGet(queryStartedAt)
	if !ok {
		return
	}
	started, ok := v.(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(started)
	if elapsed < thresh {
		return
	}
	if ctx := tx.Statement.Context; ctx != nil {
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
	fields := []zap.Field{
		zap.String("table", tx.Statement.Table),
		zap.Duration("elapsed", elapsed),
		zap.Duration("threshold", thresh),
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		fields = append(fields, zap.Error(tx.Error))
	}
	logger.Warn("Slow ledger query", fields...)
}
