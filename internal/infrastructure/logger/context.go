package logger

import (
	"context"

	"github.com/erp/ledger/internal/domain/ledger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	scopeKey
	actorKey
	correlationKey
)

// WithContext attaches logger to ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithScope records the tenant and company an operation runs in
func WithScope(ctx context.Context, scope ledger.Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFrom returns the scope recorded by WithScope
func ScopeFrom(ctx context.Context) (ledger.Scope, bool) {
	s, ok := ctx.Value(scopeKey).(ledger.Scope)
	return s, ok
}

// WithActor records the user or job acting on the ledger
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor recorded by WithActor, or ""
func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey).(string)
	return s
}

// WithCorrelationID records the id tying a command to its audit events
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFrom returns the id recorded by WithCorrelationID, or ""
func CorrelationIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(correlationKey).(string)
	return s
}

// Fields returns the ledger fields carried by ctx, trace ids included
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if s, ok := ScopeFrom(ctx); ok {
		fields = append(fields,
			zap.String("tenant_id", s.TenantID.String()),
			zap.String("company_id", s.CompanyID.String()),
		)
	}
	if a := ActorFrom(ctx); a != "" {
		fields = append(fields, zap.String("actor", a))
	}
	if c := CorrelationIDFrom(ctx); c != "" {
		fields = append(fields, zap.String("correlation_id", c))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return fields
}

// For enriches base with the fields carried by ctx. A nil base uses the
// logger attached to ctx.
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = FromContext(ctx)
	}
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
