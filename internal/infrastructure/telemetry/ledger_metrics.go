package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Ledger attribute keys
var (
	AttrOperation    = attribute.Key("operation")
	AttrErrorCode    = attribute.Key("error_code")
	AttrReplayed     = attribute.Key("replayed")
	AttrCheck        = attribute.Key("check")
	AttrDecision     = attribute.Key("decision")
	AttrPeriodStatus = attribute.Key("period_status")
	AttrSink         = attribute.Key("sink")
	AttrOutcome      = attribute.Key("outcome")
)

// LedgerMetrics records ledger activity. A nil *LedgerMetrics is valid and
// records nothing, so services and tests can run without a meter.
type LedgerMetrics struct {
	logger *zap.Logger

	postingsTotal       *Counter
	postingDuration     *Histogram
	rejectionsTotal     *Counter
	integrityFailures   *Counter
	approvalDecisions   *Counter
	periodTransitions   *Counter
	outboxDispatchTotal *Counter
	snapshotsVerified   *Counter
}

// NewLedgerMetrics registers the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter, logger *zap.Logger) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &LedgerMetrics{logger: logger}

	var err error
	if m.postingsTotal, err = NewCounter(meter, "ledger_postings_total", "Posting calls that produced or replayed ledger lines", "{postings}"); err != nil {
		return nil, err
	}
	if m.postingDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_posting_duration_seconds",
		Description: "Duration of the posting transaction",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}); err != nil {
		return nil, err
	}
	if m.rejectionsTotal, err = NewCounter(meter, "ledger_rejections_total", "Operations rejected with a domain error", "{errors}"); err != nil {
		return nil, err
	}
	if m.integrityFailures, err = NewCounter(meter, "ledger_integrity_failures_total", "Critical integrity check failures", "{failures}"); err != nil {
		return nil, err
	}
	if m.approvalDecisions, err = NewCounter(meter, "ledger_approval_decisions_total", "Approval decisions recorded", "{decisions}"); err != nil {
		return nil, err
	}
	if m.periodTransitions, err = NewCounter(meter, "ledger_period_transitions_total", "Fiscal period status transitions", "{transitions}"); err != nil {
		return nil, err
	}
	if m.outboxDispatchTotal, err = NewCounter(meter, "ledger_outbox_dispatch_total", "Audit events handed to sinks", "{events}"); err != nil {
		return nil, err
	}
	if m.snapshotsVerified, err = NewCounter(meter, "ledger_snapshots_verified_total", "Trial balance snapshot verifications", "{snapshots}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPosting counts a posting call
func (m *LedgerMetrics) RecordPosting(ctx context.Context, tenantID uuid.UUID, replayed bool) {
	if m == nil {
		return
	}
	m.postingsTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrReplayed.Bool(replayed))
}

// RecordPostingDuration records how long a posting transaction took
func (m *LedgerMetrics) RecordPostingDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.postingDuration.RecordDuration(ctx, d)
}

// RecordRejection counts an operation that failed with a domain error code
func (m *LedgerMetrics) RecordRejection(ctx context.Context, operation, code string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.Inc(ctx, AttrOperation.String(operation), AttrErrorCode.String(code))
}

// RecordIntegrityFailure counts a failed hash, chain or balance check
func (m *LedgerMetrics) RecordIntegrityFailure(ctx context.Context, check string) {
	if m == nil {
		return
	}
	m.integrityFailures.Inc(ctx, AttrCheck.String(check))
	m.logger.Error("ledger integrity failure", zap.String("check", check))
}

// RecordSnapshotVerified counts a snapshot verification and its result
func (m *LedgerMetrics) RecordSnapshotVerified(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	m.snapshotsVerified.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordApprovalDecision counts an approval decision
func (m *LedgerMetrics) RecordApprovalDecision(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.approvalDecisions.Inc(ctx, AttrDecision.String(decision))
}

// RecordPeriodTransition counts a period entering status
func (m *LedgerMetrics) RecordPeriodTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.periodTransitions.Inc(ctx, AttrPeriodStatus.String(status))
}

// RecordOutboxDispatch counts an audit event delivery attempt per sink
func (m *LedgerMetrics) RecordOutboxDispatch(ctx context.Context, sink, outcome string) {
	if m == nil {
		return
	}
	m.outboxDispatchTotal.Inc(ctx, AttrSink.String(sink), AttrOutcome.String(outcome))
}

// Ledger profiling operations
const (
	OperationPostEntry        = "post_entry"
	OperationGenerateSnapshot = "generate_snapshot"
	OperationVerifySnapshot   = "verify_snapshot"
	OperationClosePeriod      = "close_period"
)

// LedgerOperationLabels returns profiling labels for a ledger operation
func LedgerOperationLabels(operation string, tenantID uuid.UUID) map[string]string {
	return OperationLabels(operation, map[string]string{ProfilingLabelTenantID: tenantID.String()})
}
