package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "medforge"

// Metrics holds all MedForge metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	ConsultationsStarted   metric.Int64Counter
	ConsultationsCompleted metric.Int64Counter
	ConsultationsFailed    metric.Int64Counter
	ReviewsRequired        metric.Int64Counter
	ActiveConsultations    metric.Int64UpDownCounter
	EnrichmentFailures     metric.Int64Counter
	ConsultationDuration   metric.Float64Histogram
	ComplexityScore        metric.Float64Histogram
	AgentCount             metric.Int64Histogram
	SafetyScore            metric.Int64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ConsultationsStarted, err = meter.Int64Counter("medforge.consultations.started",
		metric.WithDescription("Number of consultations submitted to the delegate"))
	if err != nil {
		return nil, err
	}

	m.ConsultationsCompleted, err = meter.Int64Counter("medforge.consultations.completed",
		metric.WithDescription("Number of consultations completed"))
	if err != nil {
		return nil, err
	}

	m.ConsultationsFailed, err = meter.Int64Counter("medforge.consultations.failed",
		metric.WithDescription("Number of consultations failed, timed out or cancelled"))
	if err != nil {
		return nil, err
	}

	m.ReviewsRequired, err = meter.Int64Counter("medforge.consultations.review_required",
		metric.WithDescription("Number of results flagged for human review"))
	if err != nil {
		return nil, err
	}

	m.ActiveConsultations, err = meter.Int64UpDownCounter("medforge.consultations.active",
		metric.WithDescription("Consultations currently in flight"))
	if err != nil {
		return nil, err
	}

	m.EnrichmentFailures, err = meter.Int64Counter("medforge.enrichment.failures",
		metric.WithDescription("Enrichment branch failures by branch"))
	if err != nil {
		return nil, err
	}

	m.ConsultationDuration, err = meter.Float64Histogram("medforge.consultation.duration_seconds",
		metric.WithDescription("Consultation wall time from start to terminal state"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.ComplexityScore, err = meter.Float64Histogram("medforge.complexity.score",
		metric.WithDescription("Normalized complexity score of incoming cases"))
	if err != nil {
		return nil, err
	}

	m.AgentCount, err = meter.Int64Histogram("medforge.consultation.agents",
		metric.WithDescription("Agents spawned per consultation"))
	if err != nil {
		return nil, err
	}

	m.SafetyScore, err = meter.Int64Histogram("medforge.safety.score",
		metric.WithDescription("Safety gate score of released results"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordStarted records a submitted consultation.
func (m *Metrics) RecordStarted(ctx context.Context, level string, score float64, agents int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("complexity.level", level))
	m.ConsultationsStarted.Add(ctx, 1, attrs)
	m.ActiveConsultations.Add(ctx, 1)
	m.ComplexityScore.Record(ctx, score, attrs)
	m.AgentCount.Record(ctx, int64(agents), attrs)
}

// RecordFinished records a consultation leaving the active set.
func (m *Metrics) RecordFinished(ctx context.Context, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ActiveConsultations.Add(ctx, -1)
	m.ConsultationDuration.Record(ctx, seconds, attrs)
	if status == "completed" {
		m.ConsultationsCompleted.Add(ctx, 1)
		return
	}
	m.ConsultationsFailed.Add(ctx, 1, attrs)
}

// RecordSafety records a safety gate outcome.
func (m *Metrics) RecordSafety(ctx context.Context, score int, review bool) {
	if m == nil {
		return
	}
	m.SafetyScore.Record(ctx, int64(score))
	if review {
		m.ReviewsRequired.Add(ctx, 1)
	}
}

// RecordEnrichmentFailure records one failed enrichment branch.
func (m *Metrics) RecordEnrichmentFailure(ctx context.Context, branch string) {
	if m == nil {
		return
	}
	m.EnrichmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branch)))
}
