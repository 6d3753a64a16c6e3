package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AttrPool names the connection pool a gauge describes
var AttrPool = attribute.Key("pool")

// RegisterPoolMetrics exports database pool counters as observable
// instruments read from stats at every collection. Unregister the returned
// registration before closing the pool.
func RegisterPoolMetrics(meter metric.Meter, pool string, stats func() sql.DBStats) (metric.Registration, error) {
	if meter == nil || stats == nil {
		return nil, &MetricsError{Op: "RegisterPoolMetrics", Err: "meter and stats are required"}
	}
	open, err := meter.Int64ObservableGauge("ledger_db_connections_open",
		metric.WithDescription("Open connections, in use plus idle"), metric.WithUnit("{connections}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge ledger_db_connections_open: %w", err)
	}
	inUse, err := meter.Int64ObservableGauge("ledger_db_connections_in_use",
		metric.WithDescription("Connections currently in use"), metric.WithUnit("{connections}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge ledger_db_connections_in_use: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("ledger_db_connections_idle",
		metric.WithDescription("Idle connections"), metric.WithUnit("{connections}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge ledger_db_connections_idle: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("ledger_db_connection_waits_total",
		metric.WithDescription("Times a caller waited for a free connection"), metric.WithUnit("{waits}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter ledger_db_connection_waits_total: %w", err)
	}
	waited, err := meter.Float64ObservableCounter("ledger_db_connection_wait_seconds_total",
		metric.WithDescription("Total time spent waiting for a connection"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter ledger_db_connection_wait_seconds_total: %w", err)
	}

	attrs := metric.WithAttributes(AttrPool.String(pool))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(open, int64(s.OpenConnections), attrs)
		o.ObserveInt64(inUse, int64(s.InUse), attrs)
		o.ObserveInt64(idle, int64(s.Idle), attrs)
		o.ObserveInt64(waits, s.WaitCount, attrs)
		o.ObserveFloat64(waited, s.WaitDuration.Seconds(), attrs)
		return nil
	}, open, inUse, idle, waits, waited)
}
