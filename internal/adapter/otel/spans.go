package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "medforge"

// StartConsultationSpan starts a span for a consultation operation.
func StartConsultationSpan(ctx context.Context, op, consultationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consultation."+op,
		trace.WithAttributes(
			attribute.String("consultation.id", consultationID),
		),
	)
}

// StartEnrichmentSpan starts a span for one enrichment branch.
func StartEnrichmentSpan(ctx context.Context, branch string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "enrichment",
		trace.WithAttributes(
			attribute.String("enrichment.branch", branch),
		),
	)
}

// StartSafetySpan starts a span for the safety gate.
func StartSafetySpan(ctx context.Context, recommendations int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "safety.validate",
		trace.WithAttributes(attribute.Int("safety.recommendations", recommendations)),
	)
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
