package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "exam-judge"

// Tracer wraps OpenTelemetry tracing for the judging engine.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("judge.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// Common attribute keys for grading traces.
var (
	AttrGradeID   = attribute.Key("judge.grade.id")
	AttrUserID    = attribute.Key("judge.user.id")
	AttrLanguage  = attribute.Key("judge.language")
	AttrCaseIndex = attribute.Key("judge.case.index")
	AttrGraded    = attribute.Key("judge.graded")
)
