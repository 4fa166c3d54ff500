package backoff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

func TestRecommendImprovingUsesShortDebounce(t *testing.T) {
	wait, rationale := Recommend(TrendSummary{Improving: true, Velocity: 1.0}, DefaultBounds(), ports.FixedRNG{Value: 1})
	assert.Equal(t, RationaleAdaptiveImprovingShortDebounce, rationale)
	assert.Equal(t, int64(500), wait) // velocity=1 -> min + 0 = min
}

func TestRecommendImprovingAtZeroVelocityIsLongerDebounce(t *testing.T) {
	wait, _ := Recommend(TrendSummary{Improving: true, Velocity: 0}, DefaultBounds(), ports.FixedRNG{Value: 1})
	assert.Equal(t, int64(600), wait) // min + 0.1*(1500-500)*(1-0) = 500+100
}

func TestRecommendNotImprovingUsesExponentialWithJitter(t *testing.T) {
	wait, rationale := Recommend(TrendSummary{Improving: false, ConsecutiveFailures: 1}, DefaultBounds(), ports.FixedRNG{Value: 1.0})
	assert.Equal(t, RationaleExponentialWithJitter, rationale)
	assert.Equal(t, int64(1000), wait) // min(1500, 500*2^1) * 1.0
}

func TestRecommendExponentialClampsToMax(t *testing.T) {
	wait, _ := Recommend(TrendSummary{Improving: false, ConsecutiveFailures: 10}, DefaultBounds(), ports.FixedRNG{Value: 1.5})
	assert.Equal(t, int64(1500), wait)
}

func TestRecommendClampsBelowMin(t *testing.T) {
	wait, _ := Recommend(TrendSummary{Improving: false, ConsecutiveFailures: 0}, DefaultBounds(), ports.FixedRNG{Value: 0.1})
	assert.Equal(t, int64(500), wait) // 500*0.5=250, clamped to min 500
}

func TestRecommendFallsBackToDefaultBoundsOnInvalidBounds(t *testing.T) {
	wait, _ := Recommend(TrendSummary{Improving: true, Velocity: 1.0}, Bounds{MinMS: 100, MaxMS: 100}, ports.FixedRNG{Value: 1})
	assert.Equal(t, int64(500), wait)
}
