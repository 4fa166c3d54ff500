package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/selfheal/pkg/envelope"
	"github.com/itsneelabh/selfheal/pkg/errclass"
)

// Instrumentation records OTel counters for process_attempt outcomes,
// grounded on resilience/metrics_otel.go's OTelMetricsCollector, adapted
// from the teacher's circuit-breaker success/failure/rejection counters to
// this engine's own verdict and rate-limit events.
type Instrumentation struct {
	verdicts    metric.Int64Counter
	rateLimited metric.Int64Counter
}

// NewInstrumentation builds an Instrumentation from meter. A nil meter
// yields a no-op Instrumentation, so OTel wiring is entirely optional.
func NewInstrumentation(meter metric.Meter) *Instrumentation {
	if meter == nil {
		return &Instrumentation{}
	}
	verdicts, _ := meter.Int64Counter("selfheal.engine.verdicts",
		metric.WithDescription("process_attempt verdicts by outcome and error class"))
	rateLimited, _ := meter.Int64Counter("selfheal.engine.rate_limited",
		metric.WithDescription("process_attempt calls rejected by the rate limiter"))
	return &Instrumentation{verdicts: verdicts, rateLimited: rateLimited}
}

func (i *Instrumentation) recordVerdict(ctx context.Context, verdict envelope.Verdict, class errclass.Class) {
	if i == nil || i.verdicts == nil {
		return
	}
	i.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", string(verdict)),
		attribute.String("class", class.String()),
	))
}

func (i *Instrumentation) recordRateLimited(ctx context.Context) {
	if i == nil || i.rateLimited == nil {
		return
	}
	i.rateLimited.Add(ctx, 1)
}
