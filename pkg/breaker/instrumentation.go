package breaker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/selfheal/pkg/errclass"
)

// Instrumentation records per-bucket state transitions and recommendations
// via OTel counters, grounded on resilience/metrics_otel.go's
// OTelMetricsCollector.RecordStateChange, narrowed from the teacher's HTTP
// circuit breaker events to this breaker's class-bucket events.
type Instrumentation struct {
	transitions     metric.Int64Counter
	recommendations metric.Int64Counter
}

// NewInstrumentation builds an Instrumentation from meter. A nil meter
// yields a no-op Instrumentation, so wiring OTel is entirely optional.
func NewInstrumentation(meter metric.Meter) *Instrumentation {
	if meter == nil {
		return &Instrumentation{}
	}
	transitions, _ := meter.Int64Counter("selfheal.breaker.state_transitions",
		metric.WithDescription("circuit breaker state transitions by class bucket"))
	recommendations, _ := meter.Int64Counter("selfheal.breaker.recommendations",
		metric.WithDescription("breaker recommendations issued by class bucket"))
	return &Instrumentation{transitions: transitions, recommendations: recommendations}
}

func (i *Instrumentation) recordTransition(bucket errclass.Bucket, from, to State) {
	if i == nil || i.transitions == nil || from == to {
		return
	}
	i.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("bucket", bucket.String()),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (i *Instrumentation) recordRecommendation(bucket errclass.Bucket, rec Recommendation) {
	if i == nil || i.recommendations == nil {
		return
	}
	i.recommendations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("bucket", bucket.String()),
		attribute.String("recommendation", string(rec)),
	))
}
