package errclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, c := range All {
		parsed, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("does-not-exist")
	assert.Error(t, err)
}

func TestSeverityOrder(t *testing.T) {
	assert.True(t, MoreSevere(Security, Runtime))
	assert.True(t, MoreSevere(Runtime, Logic))
	assert.True(t, MoreSevere(Logic, Syntax))
	assert.True(t, MoreSevere(Syntax, Performance))
	assert.False(t, MoreSevere(Performance, Syntax))
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, SyntaxBucket, BucketFor(Syntax))
	for _, c := range []Class{Logic, Runtime, Performance, Security} {
		assert.Equal(t, LogicBucket, BucketFor(c))
	}
}
