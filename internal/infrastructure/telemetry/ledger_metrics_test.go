package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNewLedgerMetrics(t *testing.T) {
	m, err := telemetry.NewLedgerMetrics(noop.NewMeterProvider().Meter("test"), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordPosting(ctx, uuid.New(), false)
	m.RecordPostingDuration(ctx, 15*time.Millisecond)
	m.RecordRejection(ctx, "post", "PERIOD_CLOSED")
	m.RecordIntegrityFailure(ctx, "ledger")
	m.RecordSnapshotVerified(ctx, true)
	m.RecordApprovalDecision(ctx, "APPROVE")
	m.RecordPeriodTransition(ctx, "CLOSED")
	m.RecordOutboxDispatch(ctx, "log", "sent")
}

func TestNewLedgerMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewLedgerMetrics(nil, nil)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, "NewLedgerMetrics: meter cannot be nil", err.Error())
}

func TestLedgerMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *telemetry.LedgerMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordPosting(ctx, uuid.New(), true)
		m.RecordPostingDuration(ctx, time.Second)
		m.RecordRejection(ctx, "submit", "SOD_VIOLATION")
		m.RecordIntegrityFailure(ctx, "chain")
		m.RecordSnapshotVerified(ctx, false)
		m.RecordApprovalDecision(ctx, "REJECT")
		m.RecordPeriodTransition(ctx, "REOPENED")
		m.RecordOutboxDispatch(ctx, "redis", "failed")
	})
}

func TestLedgerOperationLabels(t *testing.T) {
	tenantID := uuid.New()
	labels := telemetry.LedgerOperationLabels(telemetry.OperationPostEntry, tenantID)
	assert.Equal(t, "post_entry", labels[telemetry.ProfilingLabelOperation])
	assert.Equal(t, tenantID.String(), labels[telemetry.ProfilingLabelTenantID])
}
