// Package backoff implements the Backoff Policy (spec.md §4.10): the wait
// computation between attempts in the session loop. Grounded on
// resilience/retry.go's hand-rolled exponential-backoff-with-jitter Retry
// loop — the teacher never delegates this to a backoff library (its own
// go.mod only pulls cenkalti/backoff/v5 in indirectly, and nothing in
// resilience/retry.go imports it), so this package hand-rolls the spec's
// two exact formulas the same way, rather than wrapping a library the
// pack's own source never reaches for directly.
package backoff

import "github.com/itsneelabh/selfheal/pkg/ports"

// Bounds is the [min_ms, max_ms] wait window (spec.md §4.10).
type Bounds struct {
	MinMS int64
	MaxMS int64
}

// DefaultBounds returns the policy defaults from spec.md §4.10.
func DefaultBounds() Bounds {
	return Bounds{MinMS: 500, MaxMS: 1500}
}

// TrendSummary is the subset of breaker/cascade state the backoff policy
// reasons over.
type TrendSummary struct {
	Improving           bool
	Velocity            float64 // normalized [0,1]; higher means faster improvement
	ConsecutiveFailures int
}

const (
	RationaleAdaptiveImprovingShortDebounce = "adaptive_improving_short_debounce"
	RationaleExponentialWithJitter          = "exponential_with_jitter"
)

// Recommend computes the next wait in milliseconds and its rationale
// (spec.md §4.10 recommend()).
func Recommend(trend TrendSummary, bounds Bounds, rng ports.RNG) (waitMS int64, rationale string) {
	if bounds.MaxMS <= bounds.MinMS {
		bounds = DefaultBounds()
	}
	span := float64(bounds.MaxMS - bounds.MinMS)

	if trend.Improving {
		velocity := clamp01(trend.Velocity)
		wait := float64(bounds.MinMS) + 0.1*span*(1-velocity)
		return clampMS(int64(wait), bounds), RationaleAdaptiveImprovingShortDebounce
	}

	k := trend.ConsecutiveFailures
	if k < 0 {
		k = 0
	}
	wait := float64(bounds.MinMS) * pow2(k)
	if wait > float64(bounds.MaxMS) {
		wait = float64(bounds.MaxMS)
	}
	wait *= rng.Uniform(0.5, 1.5)

	return clampMS(int64(wait), bounds), RationaleExponentialWithJitter
}

func pow2(k int) float64 {
	result := 1.0
	for i := 0; i < k; i++ {
		result *= 2
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampMS(v int64, bounds Bounds) int64 {
	if v < bounds.MinMS {
		return bounds.MinMS
	}
	if v > bounds.MaxMS {
		return bounds.MaxMS
	}
	return v
}
