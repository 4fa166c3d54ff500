package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/selfheal/pkg/errclass"
)

func testConfig() Config {
	return Config{
		Syntax: BudgetConfig{MaxAttempts: 3, ErrorBudget: 0.5, ConfFloor: 0.3},
		Logic:  BudgetConfig{MaxAttempts: 3, ErrorBudget: 0.5, ConfFloor: 0.25},
	}
}

func TestCanAttemptAllowsWithinBudget(t *testing.T) {
	b := New(testConfig())
	ok, reason := b.CanAttempt(errclass.Syntax)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCanAttemptBlocksOnAttemptsExceeded(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 3; i++ {
		ok, _ := b.CanAttempt(errclass.Syntax)
		require.True(t, ok)
		b.Record(errclass.Syntax, true, 1, 1, 0.9, 10)
	}
	ok, reason := b.CanAttempt(errclass.Syntax)
	assert.False(t, ok)
	assert.Equal(t, "attempts exceeded", reason)
}

func TestCanAttemptBlocksOnErrorBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Syntax.MaxAttempts = 10
	cfg.Syntax.ErrorBudget = 0.2
	b := New(cfg)

	b.Record(errclass.Syntax, false, 3, 0, 0.5, 10)
	ok, reason := b.CanAttempt(errclass.Syntax)
	assert.False(t, ok)
	assert.Equal(t, "error rate exceeded budget", reason)
}

func TestClassOpenBlocksFurtherAttempts(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 3; i++ {
		b.Record(errclass.Syntax, false, 2, 0, 0.2, 10)
	}
	ok, reason := b.CanAttempt(errclass.Syntax)
	assert.False(t, ok)
	assert.Contains(t, []string{"attempts exceeded", "error rate exceeded budget", "class open"}, reason)
}

func TestPermanentlyOpenWhenBothBucketsOpen(t *testing.T) {
	cfg := Config{
		Syntax: BudgetConfig{MaxAttempts: 1, ErrorBudget: 0.01, ConfFloor: 0.3},
		Logic:  BudgetConfig{MaxAttempts: 1, ErrorBudget: 0.01, ConfFloor: 0.25},
	}
	b := New(cfg)
	b.Record(errclass.Syntax, false, 1, 0, 0.1, 10)
	b.CanAttempt(errclass.Syntax)
	b.Record(errclass.Logic, false, 1, 0, 0.1, 10)
	b.CanAttempt(errclass.Logic)

	ok, reason := b.CanAttempt(errclass.Syntax)
	assert.False(t, ok)
	assert.Equal(t, "permanently open", reason)

	summary := b.Summary()
	assert.True(t, summary.PermanentlyOpen)
	assert.Equal(t, Open, summary.EnvelopeState)
}

func TestRecordTracksAttemptsAndFailures(t *testing.T) {
	b := New(testConfig())
	b.Record(errclass.Logic, true, 0, 1, 0.9, 10)
	b.Record(errclass.Logic, false, 1, 0, 0.4, 10)

	snap := b.Snapshot(errclass.Logic)
	assert.Equal(t, 1, snap.FailureCount)
	assert.Equal(t, Closed, snap.State)
}

func TestRecommendPromoteOnStrongSuccess(t *testing.T) {
	b := New(testConfig())
	b.Record(errclass.Syntax, true, 0, 1, 0.95, 10)
	assert.Equal(t, RecPromote, b.Recommend(errclass.Syntax))
}

func TestRecommendRollbackOnWorseningDensityAndLowConfidence(t *testing.T) {
	cfg := testConfig()
	cfg.Syntax.ConfFloor = 0.5
	b := New(cfg)

	// Density worsens across the 3-entry window, ending below the floor.
	b.Record(errclass.Syntax, false, 1, 0, 0.4, 100) // density 0.01
	b.Record(errclass.Syntax, false, 2, 0, 0.35, 100) // density 0.02
	b.Record(errclass.Syntax, false, 4, 0, 0.2, 100)  // density 0.04, confidence 0.2 < floor 0.5

	assert.Equal(t, RecRollback, b.Recommend(errclass.Syntax))
}

func TestRecommendTryDifferentStrategyOnPlateau(t *testing.T) {
	b := New(testConfig())
	b.Record(errclass.Logic, false, 5, 0, 0.5, 10)
	b.Record(errclass.Logic, false, 5, 0, 0.5, 10)
	b.Record(errclass.Logic, false, 5, 0, 0.5, 10)

	assert.Equal(t, RecTryDifferentStrategy, b.Recommend(errclass.Logic))
}

func TestRecommendContinueWithinBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Logic.MaxAttempts = 10
	cfg.Logic.ErrorBudget = 0.9
	b := New(cfg)

	b.Record(errclass.Logic, true, 5, 1, 0.5, 10)
	rec := b.Recommend(errclass.Logic)
	assert.Contains(t, []Recommendation{RecContinue, RecPauseAndBackoff}, rec)
}

func TestTrendReportsImprovingWhenErrorsDecrease(t *testing.T) {
	b := New(testConfig())
	b.Record(errclass.Syntax, false, 5, 1, 0.5, 10)
	b.Record(errclass.Syntax, false, 3, 1, 0.6, 10)
	b.Record(errclass.Syntax, true, 1, 1, 0.8, 10)

	trend, velocity, cumulative := b.Trend(errclass.Syntax)
	assert.Equal(t, TrendImproving, trend)
	assert.Greater(t, velocity, 0.0)
	assert.Equal(t, 3, cumulative)
}

func TestEnvelopeStateCollapsesSubStates(t *testing.T) {
	b := New(testConfig())
	assert.Equal(t, Closed, b.EnvelopeState())
}
