package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsneelabh/selfheal/pkg/errclass"
)

func TestDepthExceededTriggersStop(t *testing.T) {
	tr := NewTracker(WithMaxDepth(5))
	classes := []errclass.Class{errclass.Syntax, errclass.Performance, errclass.Logic, errclass.Syntax, errclass.Performance}
	confidences := []float64{0.9, 0.8, 0.9, 0.8, 0.9}
	for i, c := range classes {
		tr.Push(c, "err", confidences[i], i+1)
	}
	stop, reason := tr.ShouldStop()
	assert.False(t, stop, "depth==max must not yet stop")
	_ = reason

	tr.Push(errclass.Logic, "err", 0.8, 6)
	stop, reason = tr.ShouldStop()
	assert.True(t, stop)
	assert.Equal(t, "cascade_depth_exceeded", reason)
}

func TestRepeatedClassTriggersStop(t *testing.T) {
	tr := NewTracker()
	tr.Push(errclass.Logic, "a", 0.9, 1)
	tr.Push(errclass.Syntax, "b", 0.9, 2)
	tr.Push(errclass.Logic, "c", 0.9, 3)
	tr.Push(errclass.Logic, "d", 0.9, 4)

	stop, reason := tr.ShouldStop()
	assert.True(t, stop)
	assert.Equal(t, "repeated_error_class", reason)
}

func TestConfidenceDecreasingTriggersStop(t *testing.T) {
	tr := NewTracker()
	tr.Push(errclass.Logic, "a", 0.9, 1)
	tr.Push(errclass.Runtime, "b", 0.6, 2)
	tr.Push(errclass.Performance, "c", 0.3, 3)

	stop, reason := tr.ShouldStop()
	assert.True(t, stop)
	assert.Equal(t, "confidence_decreasing", reason)
}

func TestSeverityEscalatingTriggersStop(t *testing.T) {
	tr := NewTracker()
	tr.Push(errclass.Performance, "a", 0.9, 1)
	tr.Push(errclass.Syntax, "b", 0.9, 2)
	tr.Push(errclass.Logic, "c", 0.9, 3)

	stop, reason := tr.ShouldStop()
	assert.True(t, stop)
	assert.Equal(t, "severity_escalating", reason)
}

func TestNoStopOnHealthySequence(t *testing.T) {
	tr := NewTracker()
	tr.Push(errclass.Syntax, "a", 0.4, 1)
	tr.Push(errclass.Performance, "b", 0.6, 2)
	tr.Push(errclass.Syntax, "c", 0.8, 3)

	stop, _ := tr.ShouldStop()
	assert.False(t, stop)
	assert.Equal(t, 3, tr.Depth())
}
