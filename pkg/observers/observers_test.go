package observers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

func TestRiskObserverFlagsNewKeywordOccurrence(t *testing.T) {
	ro := NewRiskObserver([]string{"authentication_bypass"})
	flags := ro.Evaluate("if authentication_bypass { return true }", "func main() {}")
	require.Len(t, flags, 1)
	assert.Equal(t, "authentication_bypass", flags[0].Keyword)
	assert.LessOrEqual(t, len(flags[0].Snippet), maxSnippetLen)
}

func TestRiskObserverIgnoresPreexistingKeyword(t *testing.T) {
	ro := NewRiskObserver([]string{"eval"})
	original := "x = eval(y)"
	patch := "x = eval(y) // unchanged"
	flags := ro.Evaluate(patch, original)
	assert.Empty(t, flags)
}

func TestRiskObserverCaseInsensitive(t *testing.T) {
	ro := NewRiskObserver([]string{"DROP TABLE"})
	flags := ro.Evaluate("drop table users;", "")
	require.Len(t, flags, 1)
}

func TestWatchdogNoTriggerBelowThresholds(t *testing.T) {
	w := NewWatchdog(DefaultWatchdogConfig())
	w.Begin("a1")
	result := ports.SandboxResult{ResourceUsage: ports.ResourceUsage{Observed: ports.Observed{WallMS: 100, CPUPercent: 10}}}
	event := w.End("a1", result)
	assert.Nil(t, event)
}

func TestWatchdogEscalatesSeverityOnConsecutiveTriggers(t *testing.T) {
	w := NewWatchdog(DefaultWatchdogConfig())
	slow := ports.SandboxResult{ResourceUsage: ports.ResourceUsage{Observed: ports.Observed{WallMS: 10000}}}

	w.Begin("a1")
	e1 := w.End("a1", slow)
	require.NotNil(t, e1)
	assert.Equal(t, Suspicious, e1.Severity)

	w.Begin("a2")
	e2 := w.End("a2", slow)
	require.NotNil(t, e2)
	assert.Equal(t, LikelyHang, e2.Severity)

	w.Begin("a3")
	e3 := w.End("a3", slow)
	require.NotNil(t, e3)
	assert.Equal(t, High, e3.Severity)

	summary := w.Summary()
	assert.Equal(t, 3, summary.TotalTriggered)
	assert.Equal(t, High, summary.HighestSeverity)
}

func TestWatchdogResetsConsecutiveCountOnHealthyAttempt(t *testing.T) {
	w := NewWatchdog(DefaultWatchdogConfig())
	slow := ports.SandboxResult{ResourceUsage: ports.ResourceUsage{Observed: ports.Observed{WallMS: 10000}}}
	healthy := ports.SandboxResult{ResourceUsage: ports.ResourceUsage{Observed: ports.Observed{WallMS: 100}}}

	w.Begin("a1")
	w.End("a1", slow)
	w.Begin("a2")
	w.End("a2", healthy)

	assert.Equal(t, 0, w.ConsecutiveCount())

	w.Begin("a3")
	e3 := w.End("a3", slow)
	require.NotNil(t, e3)
	assert.Equal(t, Suspicious, e3.Severity)
}

func TestWatchdogTriggersOnLimitsHitFlag(t *testing.T) {
	w := NewWatchdog(DefaultWatchdogConfig())
	result := ports.SandboxResult{ResourceUsage: ports.ResourceUsage{Observed: ports.Observed{WallMS: 10, LimitsHit: ports.LimitsHit{Memory: true}}}}
	w.Begin("a1")
	event := w.End("a1", result)
	require.NotNil(t, event)
	assert.Equal(t, Suspicious, event.Severity)
}
