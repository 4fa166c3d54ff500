package chatlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

func TestAppendAndTail(t *testing.T) {
	log := New(&ports.FixedClock{MillisNow: 10})
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, ports.RoleUser, "hello", nil))
	require.NoError(t, log.Append(ctx, ports.RoleAI, "hi there", map[string]interface{}{"model": "advisor"}))

	tail, err := log.Tail(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "hello", tail[0].Content)
	assert.Equal(t, "hi there", tail[1].Content)
	assert.Equal(t, int64(10), tail[0].TsMS)
}

func TestTailCapsAtAvailableEntries(t *testing.T) {
	log := New(&ports.FixedClock{})
	ctx := context.Background()
	log.Append(ctx, ports.RoleSystem, "one", nil)

	tail, err := log.Tail(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}

func TestTailZeroOrNegativeReturnsAll(t *testing.T) {
	log := New(&ports.FixedClock{})
	ctx := context.Background()
	log.Append(ctx, ports.RoleUser, "one", nil)
	log.Append(ctx, ports.RoleUser, "two", nil)

	tail, err := log.Tail(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}
