package policy

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecTable(t *testing.T) {
	p := Default()
	assert.Equal(t, 0.30, p.SyntaxConfFloor)
	assert.Equal(t, 0.25, p.LogicConfFloor)
	assert.Equal(t, 5, p.MaxSyntaxAttempts)
	assert.Equal(t, 7, p.MaxLogicAttempts)
	assert.Equal(t, 0.10, p.SyntaxErrorBudget)
	assert.Equal(t, 0.20, p.LogicErrorBudget)
	assert.Equal(t, 15, p.RateLimitPerMin)
	assert.Equal(t, "full", p.SandboxIsolation)
	assert.True(t, p.RequireHumanOnRisky)
	assert.ElementsMatch(t, []string{"schema_change", "auth_bypass", "production_data_modification"}, p.RiskyKeywords)
	assert.Equal(t, 5, p.MaxCascadeDepth)
	assert.Equal(t, 500, p.MemoryMax)
	assert.Equal(t, int64(604800000), p.MemoryTTLMS)
	assert.Equal(t, int64(5000), p.WallThresholdMS)
	assert.Equal(t, int64(90), p.CPUThresholdPercent)
}

func TestNewAppliesOptionsOverDefaults(t *testing.T) {
	p, err := New(WithRateLimit(30), WithCascadeDepth(10))
	require.NoError(t, err)
	assert.Equal(t, 30, p.RateLimitPerMin)
	assert.Equal(t, 10, p.MaxCascadeDepth)
	assert.Equal(t, 5, p.MaxSyntaxAttempts) // untouched field keeps default
}

func TestNewRejectsInvalidOption(t *testing.T) {
	_, err := New(WithRateLimit(0))
	require.Error(t, err)
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	os.Setenv("SELFHEAL_RATE_LIMIT_PER_MIN", "42")
	os.Setenv("SELFHEAL_RISKY_KEYWORDS", "foo, bar")
	defer os.Unsetenv("SELFHEAL_RATE_LIMIT_PER_MIN")
	defer os.Unsetenv("SELFHEAL_RISKY_KEYWORDS")

	p, err := New()
	require.NoError(t, err)
	assert.Equal(t, 42, p.RateLimitPerMin)
	assert.Equal(t, []string{"foo", "bar"}, p.RiskyKeywords)
}

func TestOptionsOverrideEnv(t *testing.T) {
	os.Setenv("SELFHEAL_RATE_LIMIT_PER_MIN", "42")
	defer os.Unsetenv("SELFHEAL_RATE_LIMIT_PER_MIN")

	p, err := New(WithRateLimit(7))
	require.NoError(t, err)
	assert.Equal(t, 7, p.RateLimitPerMin)
}

func TestPresetsDifferFromDefault(t *testing.T) {
	sota := PresetSOTA()
	local := PresetLocalSmall()
	mid := PresetMidTier()

	assert.Greater(t, sota.MaxSyntaxAttempts, mid.MaxSyntaxAttempts)
	assert.Less(t, local.MaxSyntaxAttempts, mid.MaxSyntaxAttempts)
	assert.Equal(t, Default(), mid)
}

func TestValidateRejectsBadConfFloor(t *testing.T) {
	p := Default()
	p.SyntaxConfFloor = 1.5
	require.Error(t, p.Validate())
}
