package observer

import (
	"context"
	"time"

	"github.com/finsight/copilot"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedGeneration wraps a copilot.GenerationProvider with OTEL instrumentation.
type ObservedGeneration struct {
	inner copilot.GenerationProvider
	inst  *Instruments
}

var _ copilot.GenerationProvider = (*ObservedGeneration)(nil)

// WrapGeneration returns an instrumented generation provider.
func WrapGeneration(inner copilot.GenerationProvider, inst *Instruments) *ObservedGeneration {
	return &ObservedGeneration{inner: inner, inst: inst}
}

func (o *ObservedGeneration) Name() string { return o.inner.Name() }

func (o *ObservedGeneration) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		AttrProvider.String(o.inner.Name()),
		AttrPromptLength.Int(len(prompt)),
	))
	defer span.End()
	start := time.Now()

	text, err := o.inner.Generate(ctx, prompt)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrResponseLength.Int(len(text)))
	}

	o.inst.GenRequests.Add(ctx, 1, metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.GenDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("generation completed"))
	rec.AddAttributes(
		otellog.String("llm.provider", o.inner.Name()),
		otellog.Int("llm.prompt_length", len(prompt)),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return text, err
}
