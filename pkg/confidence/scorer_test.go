package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/selfheal/pkg/errclass"
)

func TestScoreEmptyLogitsFails(t *testing.T) {
	s := NewScorer()
	_, err := s.Score(nil, errclass.Syntax, nil)
	require.Error(t, err)
}

func TestScoreNonFiniteTreatedAsZero(t *testing.T) {
	s := NewScorer()
	score, err := s.Score([]float64{0.99, 0.98, 0.97}, errclass.Syntax, nil)
	require.NoError(t, err)

	withNaN, err := s.Score([]float64{0.99, 0.98, 0.97, math.NaN()}, errclass.Syntax, nil)
	require.NoError(t, err)

	// A NaN logit is treated as a neutral zero: it should not blow up the
	// computation or exceed [0,1] bounds.
	assert.GreaterOrEqual(t, withNaN.Overall, 0.0)
	assert.LessOrEqual(t, withNaN.Overall, 1.0)
	assert.GreaterOrEqual(t, score.Overall, 0.0)
}

func TestScoreSyntaxBoost(t *testing.T) {
	s := NewScorer()
	logits := []float64{5, 0, 0}
	syntaxScore, err := s.Score(logits, errclass.Syntax, nil)
	require.NoError(t, err)

	otherScore, err := s.Score(logits, errclass.Performance, nil)
	require.NoError(t, err)

	assert.Greater(t, syntaxScore.Syntax, otherScore.Syntax*0.99)
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	s := NewScorer()
	history := &HistoryHint{HistoricalSuccessRate: 2, PatternSimilarity: 2, Complexity: -5, TestCoverage: 5}
	score, err := s.Score([]float64{10, 0, 0}, errclass.Syntax, history)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score.Overall, 0.0)
	assert.LessOrEqual(t, score.Overall, 1.0)
	assert.GreaterOrEqual(t, score.Syntax, 0.0)
	assert.LessOrEqual(t, score.Syntax, 1.0)
	assert.GreaterOrEqual(t, score.Risk, 0.0)
	assert.LessOrEqual(t, score.Risk, 1.0)
}

func TestBetaCalibrationKicksInAfterTenSamples(t *testing.T) {
	s := NewScorer()
	logits := []float64{3, 1, 0.5}

	first, err := s.Score(logits, errclass.Logic, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodTemperature, first.CalibrationMethod)

	for i := 0; i < 10; i++ {
		s.RecordOutcome(errclass.Logic, 0.9, true)
	}

	second, err := s.Score(logits, errclass.Logic, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodBeta, second.CalibrationMethod)
}

func TestShouldAttemptFloorBoundary(t *testing.T) {
	score := Score{Syntax: 0.3, Logic: 0.25}
	assert.True(t, ShouldAttempt(score, errclass.Syntax, 0.30, 0.25))
	assert.False(t, ShouldAttempt(score, errclass.Syntax, 0.31, 0.25))
	assert.True(t, ShouldAttempt(score, errclass.Logic, 0.30, 0.25))
}
