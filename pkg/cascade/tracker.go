// Package cascade implements the Cascade Tracker (spec.md §4.3): it watches
// the sequence of attempts within a session and flags pathological error
// chains — runaway depth, a repeating error class, falling confidence, or
// escalating severity — so the engine can stop before burning the whole
// attempt budget on a session that isn't converging.
package cascade

import "github.com/itsneelabh/selfheal/pkg/errclass"

const (
	// DefaultMaxDepth is the cascade stop threshold (spec.md §6).
	DefaultMaxDepth = 5

	repeatWindow    = 4
	repeatThreshold = 3
	trendWindow     = 3
)

// Entry is one recorded point in the cascade (spec.md §4.3 push arguments).
type Entry struct {
	Class      errclass.Class
	Message    string
	Confidence float64
	Attempt    int
}

// Tracker accumulates cascade entries for a single session and evaluates the
// stop conditions in spec.md §4.3.
type Tracker struct {
	maxDepth int
	entries  []Entry
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxDepth overrides the default cascade depth threshold.
func WithMaxDepth(max int) Option {
	return func(t *Tracker) {
		if max > 0 {
			t.maxDepth = max
		}
	}
}

// NewTracker creates a Tracker with the default max cascade depth (5).
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Push appends a new cascade entry. Entries are append-only: pushing never
// removes history, only should_stop's windowed checks look at the tail.
func (t *Tracker) Push(class errclass.Class, message string, confidence float64, attempt int) {
	t.entries = append(t.entries, Entry{Class: class, Message: message, Confidence: confidence, Attempt: attempt})
}

// Depth returns the number of entries pushed so far (spec.md §3
// cascade_depth).
func (t *Tracker) Depth() int {
	return len(t.entries)
}

// ShouldStop evaluates the four stop conditions in spec.md §4.3 and returns
// the first one that triggers, in the order the spec lists them.
func (t *Tracker) ShouldStop() (bool, string) {
	if t.Depth() > t.maxDepth {
		return true, "cascade_depth_exceeded"
	}
	if t.repeatedClassInWindow() {
		return true, "repeated_error_class"
	}
	if t.confidenceStrictlyDecreasing() {
		return true, "confidence_decreasing"
	}
	if t.severityEscalating() {
		return true, "severity_escalating"
	}
	return false, ""
}

func (t *Tracker) tail(n int) []Entry {
	if len(t.entries) <= n {
		return t.entries
	}
	return t.entries[len(t.entries)-n:]
}

// repeatedClassInWindow reports whether the same error class recurs at
// least repeatThreshold times within the last repeatWindow entries.
func (t *Tracker) repeatedClassInWindow() bool {
	window := t.tail(repeatWindow)
	if len(window) < repeatThreshold {
		return false
	}
	counts := make(map[errclass.Class]int)
	for _, e := range window {
		counts[e.Class]++
		if counts[e.Class] >= repeatThreshold {
			return true
		}
	}
	return false
}

// confidenceStrictlyDecreasing reports whether confidence fell on every
// step across the last trendWindow entries.
func (t *Tracker) confidenceStrictlyDecreasing() bool {
	window := t.tail(trendWindow)
	if len(window) < trendWindow {
		return false
	}
	for i := 1; i < len(window); i++ {
		if window[i].Confidence >= window[i-1].Confidence {
			return false
		}
	}
	return true
}

// severityEscalating reports whether class severity strictly increased on
// every step across the last trendWindow entries.
func (t *Tracker) severityEscalating() bool {
	window := t.tail(trendWindow)
	if len(window) < trendWindow {
		return false
	}
	for i := 1; i < len(window); i++ {
		if !errclass.MoreSevere(window[i].Class, window[i-1].Class) {
			return false
		}
	}
	return true
}
