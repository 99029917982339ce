package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "commission-service/internal/observability"

// Metrics holds the engine's counters. Instruments that fail to register are left nil and skipped.
type Metrics struct {
	auditFailures      metric.Int64Counter
	commissionOutcomes metric.Int64Counter
}

// NewMetrics registers counters on meter, or on the global meter provider when meter is nil.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	m := &Metrics{}
	if counter, err := meter.Int64Counter(
		"commission.audit.write_failures",
		metric.WithDescription("Audit entries that could not be persisted"),
	); err == nil {
		m.auditFailures = counter
	}
	if counter, err := meter.Int64Counter(
		"commission.create.outcomes",
		metric.WithDescription("createCommission results by outcome"),
	); err == nil {
		m.commissionOutcomes = counter
	}
	return m
}

// AuditWriteFailed counts an audit entry lost for entityType/action
func (m *Metrics) AuditWriteFailed(ctx context.Context, entityType, action string) {
	if m == nil || m.auditFailures == nil {
		return
	}
	m.auditFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", entityType),
		attribute.String("action", action),
	))
}

// CommissionOutcome counts a createCommission result (created, duplicate_ignored, no_eligible_commission)
func (m *Metrics) CommissionOutcome(ctx context.Context, outcome string) {
	if m == nil || m.commissionOutcomes == nil {
		return
	}
	m.commissionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
