package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

func TestAllowsUpToLimitWithinWindow(t *testing.T) {
	clock := &ports.FixedClock{MillisNow: 0}
	l := New(clock, 3)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow()
		assert.True(t, ok)
	}

	ok, retryAfter := l.Allow()
	assert.False(t, ok)
	assert.Greater(t, retryAfter, int64(0))
}

func TestRemainingDecreasesAsCallsConsumeBudget(t *testing.T) {
	clock := &ports.FixedClock{MillisNow: 0}
	l := New(clock, 2)

	assert.Equal(t, 2, l.Remaining())
	l.Allow()
	assert.Equal(t, 1, l.Remaining())
	l.Allow()
	assert.Equal(t, 0, l.Remaining())
}

func TestWindowResetsAfter60Seconds(t *testing.T) {
	clock := &ports.FixedClock{MillisNow: 0}
	l := New(clock, 1)

	ok, _ := l.Allow()
	assert.True(t, ok)

	ok, _ = l.Allow()
	assert.False(t, ok)

	clock.MillisNow = 60_000
	ok, _ = l.Allow()
	assert.True(t, ok)
}

func TestExactlyAtLimitWithinWindowThenFailsUntilReset(t *testing.T) {
	clock := &ports.FixedClock{MillisNow: 0}
	l := New(clock, 15)

	for i := 0; i < 15; i++ {
		ok, _ := l.Allow()
		assert.True(t, ok)
	}
	ok, _ := l.Allow()
	assert.False(t, ok)

	clock.MillisNow = 59_999
	ok, _ = l.Allow()
	assert.False(t, ok)

	clock.MillisNow = 60_000
	ok, _ = l.Allow()
	assert.True(t, ok)
}
