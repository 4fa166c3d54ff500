// Package breaker implements the Dual Circuit Breaker (spec.md §4.2): two
// independent per-class budgets (syntax, logic/runtime) tracking attempt
// counts, error rates and a short trend window, producing a recommended
// next action each time an attempt resolves. It is grounded in the
// teacher's resilience.CircuitBreaker (state machine + sliding metrics) but
// trades the production HTTP breaker's time-windowed buckets for the
// spec's fixed-length (3) per-attempt trend window, since this breaker
// reasons over attempts, not requests-per-second.
package breaker

import (
	"math"

	"github.com/itsneelabh/selfheal/internal/logging"
	"github.com/itsneelabh/selfheal/pkg/errclass"
)

// State is the circuit breaker's state for one class bucket.
type State string

const (
	Closed   State = "Closed"
	HalfOpen State = "HalfOpen"
	Open     State = "Open"
)

// Recommendation is the breaker's suggested next action (spec.md §4.2).
type Recommendation string

const (
	RecPromote            Recommendation = "promote"
	RecRollback           Recommendation = "rollback"
	RecTryDifferentStrategy Recommendation = "try_different_strategy"
	RecPauseAndBackoff    Recommendation = "pause_and_backoff"
	RecContinue           Recommendation = "continue"
)

// ErrorTrend categorizes the direction errors are moving (spec.md §3
// TrendMetadata.error_trend).
type ErrorTrend string

const (
	TrendImproving   ErrorTrend = "Improving"
	TrendWorsening   ErrorTrend = "Worsening"
	TrendPlateauing  ErrorTrend = "Plateauing"
	TrendUnknown     ErrorTrend = "Unknown"
)

const (
	windowLen       = 3
	velocityHistCap = 3
	plateauEpsilon  = 1e-6
	promoteConfidenceFloor = 0.85
)

// BudgetConfig configures one class bucket's attempt/error budgets
// (spec.md §6).
type BudgetConfig struct {
	MaxAttempts  int
	ErrorBudget  float64 // fraction in [0,1]
	ConfFloor    float64 // the class-specific confidence floor, used by the rollback check
}

// Config configures the dual breaker's two buckets.
type Config struct {
	Syntax          BudgetConfig
	Logic           BudgetConfig
	Logger          logging.Logger
	Instrumentation *Instrumentation
}

// DefaultConfig returns the policy defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		Syntax: BudgetConfig{MaxAttempts: 5, ErrorBudget: 0.10, ConfFloor: 0.30},
		Logic:  BudgetConfig{MaxAttempts: 7, ErrorBudget: 0.20, ConfFloor: 0.25},
		Logger: logging.NoOpLogger{},
	}
}

// bucket holds the mutable state for one of the two budgets.
type bucket struct {
	cfg      BudgetConfig
	kind     errclass.Bucket
	state    State
	attempts int
	failures int

	errorsWindow    []int
	resolvedWindow  []int
	confidenceWindow []float64
	densityWindow   []float64
	velocityHistory []float64

	cumulativeResolved int
	lastSuccess        bool
	lastConfidence     float64
}

func newBucket(cfg BudgetConfig, kind errclass.Bucket) *bucket {
	return &bucket{cfg: cfg, kind: kind, state: Closed}
}

func push3(window []float64, v float64) []float64 {
	window = append(window, v)
	if len(window) > windowLen {
		window = window[len(window)-windowLen:]
	}
	return window
}

func push3i(window []int, v int) []int {
	window = append(window, v)
	if len(window) > windowLen {
		window = window[len(window)-windowLen:]
	}
	return window
}

// velocity computes (first-last)/window_len over a full window of windowLen
// points; returns (0, false) when the window isn't full yet.
func velocity(window []float64) (float64, bool) {
	if len(window) < windowLen {
		return 0, false
	}
	return (window[0] - window[len(window)-1]) / float64(windowLen), true
}

func velocityInt(window []int) (float64, bool) {
	if len(window) < windowLen {
		return 0, false
	}
	return (float64(window[0]) - float64(window[len(window)-1])) / float64(windowLen), true
}

// errorTrend derives the categorical trend from the errors-detected window.
func (b *bucket) errorTrend() ErrorTrend {
	v, ok := velocityInt(b.errorsWindow)
	if !ok {
		return TrendUnknown
	}
	switch {
	case v > plateauEpsilon:
		return TrendImproving
	case v < -plateauEpsilon:
		return TrendWorsening
	default:
		return TrendPlateauing
	}
}

// densityImproving reports whether error density (errors/loc) has been
// decreasing across the window.
func (b *bucket) densityImproving() (bool, bool) {
	v, ok := velocity(b.densityWindow)
	return v > plateauEpsilon, ok
}

func (b *bucket) densityWorsening() (bool, bool) {
	v, ok := velocity(b.densityWindow)
	return v < -plateauEpsilon, ok
}

func (b *bucket) confidenceIncreasing() bool {
	if len(b.confidenceWindow) < windowLen {
		return false
	}
	return b.confidenceWindow[len(b.confidenceWindow)-1] > b.confidenceWindow[0]
}

// improving implements spec.md §4.2's "Improving iff error trend is
// decreasing OR error density is decreasing OR (confidence increasing AND
// cumulative errors_resolved > 0)".
func (b *bucket) improving() bool {
	if b.errorTrend() == TrendImproving {
		return true
	}
	if ok, known := b.densityImproving(); known && ok {
		return true
	}
	if b.confidenceIncreasing() && b.cumulativeResolved > 0 {
		return true
	}
	return false
}

func (b *bucket) errorRate() float64 {
	if b.attempts == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.attempts)
}

// oscillating reports whether recorded velocities alternate sign.
func (b *bucket) oscillating() bool {
	if len(b.velocityHistory) < 2 {
		return false
	}
	for i := 1; i < len(b.velocityHistory); i++ {
		prev, cur := b.velocityHistory[i-1], b.velocityHistory[i]
		if prev == 0 || cur == 0 {
			return false
		}
		if (prev > 0) == (cur > 0) {
			return false
		}
	}
	return true
}

// plateaued reports whether every recorded velocity is within epsilon of 0.
func (b *bucket) plateaued() bool {
	if len(b.velocityHistory) == 0 {
		return false
	}
	for _, v := range b.velocityHistory {
		if math.Abs(v) > plateauEpsilon {
			return false
		}
	}
	return true
}

// Snapshot is the breaker state visible to an Attempt record (spec.md §3
// Attempt.breaker_snapshot).
type Snapshot struct {
	State        State `json:"state"`
	FailureCount int   `json:"failure_count"`
}

// Summary is the overall breaker summary (spec.md §4.2 summary()).
type Summary struct {
	SyntaxState     State          `json:"syntax_state"`
	LogicState      State          `json:"logic_state"`
	EnvelopeState   State          `json:"envelope_state"`
	PermanentlyOpen bool           `json:"permanently_open"`
}

// Breaker is the dual circuit breaker over the Syntax and Logic/Runtime
// buckets.
type Breaker struct {
	cfg    Config
	syntax *bucket
	logic  *bucket
	logger logging.Logger
	instr  *Instrumentation
}

// New creates a Breaker from cfg.
func New(cfg Config) *Breaker {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Breaker{
		cfg:    cfg,
		syntax: newBucket(cfg.Syntax, errclass.SyntaxBucket),
		logic:  newBucket(cfg.Logic, errclass.LogicBucket),
		logger: logging.WithComponent(cfg.Logger, "breaker"),
		instr:  cfg.Instrumentation,
	}
}

func (br *Breaker) bucketFor(class errclass.Class) *bucket {
	if errclass.BucketFor(class) == errclass.SyntaxBucket {
		return br.syntax
	}
	return br.logic
}

// bothExhausted reports whether both buckets are Open, i.e. permanently
// open at the envelope level (spec.md §3).
func (br *Breaker) bothExhausted() bool {
	return br.syntax.state == Open && br.logic.state == Open
}

// CanAttempt reports whether an attempt of the given class may proceed, and
// if not, the exact blocked reason (spec.md §4.2: "permanently open",
// "class open", "attempts exceeded", "error rate exceeded budget").
func (br *Breaker) CanAttempt(class errclass.Class) (bool, string) {
	if br.bothExhausted() {
		return false, "permanently open"
	}

	b := br.bucketFor(class)
	if b.state == Open {
		return false, "class open"
	}
	if b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts {
		from := b.state
		b.state = Open
		br.instr.recordTransition(b.kind, from, b.state)
		return false, "attempts exceeded"
	}
	if b.attempts > 0 && b.errorRate() > b.cfg.ErrorBudget {
		from := b.state
		b.state = Open
		br.instr.recordTransition(b.kind, from, b.state)
		return false, "error rate exceeded budget"
	}
	return true, ""
}

// Record updates the bucket for class with the outcome of one attempt
// (spec.md §4.2 record()).
func (br *Breaker) Record(class errclass.Class, success bool, errorsDetected, errorsResolved int, confidence float64, loc int) {
	b := br.bucketFor(class)

	b.attempts++
	if !success {
		b.failures++
	}
	b.lastSuccess = success
	b.lastConfidence = confidence
	b.cumulativeResolved += errorsResolved

	density := float64(errorsDetected) / float64(max(1, loc))

	b.errorsWindow = push3i(b.errorsWindow, errorsDetected)
	b.resolvedWindow = push3i(b.resolvedWindow, errorsResolved)
	b.confidenceWindow = push3(b.confidenceWindow, confidence)
	b.densityWindow = push3(b.densityWindow, density)

	if v, ok := velocityInt(b.errorsWindow); ok {
		b.velocityHistory = append(b.velocityHistory, v)
		if len(b.velocityHistory) > velocityHistCap {
			b.velocityHistory = b.velocityHistory[len(b.velocityHistory)-velocityHistCap:]
		}
	}

	br.transition(b, success)

	br.logger.Debug("breaker recorded attempt", map[string]interface{}{
		"class":    class.String(),
		"success":  success,
		"state":    string(b.state),
		"attempts": b.attempts,
		"failures": b.failures,
	})
}

// transition applies the Open -> HalfOpen -> Closed probe cycle: once a
// bucket is forced Open, an improving trend earns it a HalfOpen probe; a
// success while HalfOpen closes it again, a failure reopens it.
func (br *Breaker) transition(b *bucket, success bool) {
	from := b.state
	switch b.state {
	case Open:
		if b.improving() {
			b.state = HalfOpen
		}
	case HalfOpen:
		if success {
			b.state = Closed
		} else {
			b.state = Open
		}
	}
	br.instr.recordTransition(b.kind, from, b.state)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Snapshot returns the breaker_snapshot for the given class, suitable for
// an Attempt record.
func (br *Breaker) Snapshot(class errclass.Class) Snapshot {
	b := br.bucketFor(class)
	return Snapshot{State: b.state, FailureCount: b.failures}
}

// EnvelopeState collapses the two per-class sub-states into the single
// BreakerState the envelope exposes (spec.md §3).
func (br *Breaker) EnvelopeState() State {
	if br.syntax.state == Open || br.logic.state == Open {
		return Open
	}
	if br.syntax.state == HalfOpen || br.logic.state == HalfOpen {
		return HalfOpen
	}
	return Closed
}

// Summary reports the overall breaker summary.
func (br *Breaker) Summary() Summary {
	return Summary{
		SyntaxState:     br.syntax.state,
		LogicState:      br.logic.state,
		EnvelopeState:   br.EnvelopeState(),
		PermanentlyOpen: br.bothExhausted(),
	}
}

// Trend exposes the windowed trend metrics for class, used to populate
// spec.md §3 TrendMetadata.
func (br *Breaker) Trend(class errclass.Class) (errorTrend ErrorTrend, improvementVelocity float64, cumulativeResolved int) {
	b := br.bucketFor(class)
	v, ok := velocityInt(b.errorsWindow)
	if !ok {
		v = 0
	}
	return b.errorTrend(), v, b.cumulativeResolved
}

// Recommend derives the breaker's recommended next action for class,
// applying the spec.md §4.2 tie-break order: rollback > promote >
// try_different_strategy > pause_and_backoff > continue.
func (br *Breaker) Recommend(class errclass.Class) Recommendation {
	b := br.bucketFor(class)
	rec := br.recommend(b, class)
	br.instr.recordRecommendation(b.kind, rec)
	return rec
}

func (br *Breaker) recommend(b *bucket, class errclass.Class) Recommendation {
	worsening, densityKnown := b.densityWorsening()
	belowFloor := b.lastConfidence < b.cfg.ConfFloor
	if densityKnown && worsening && belowFloor {
		return RecRollback
	}

	if b.lastSuccess && b.lastConfidence >= promoteConfidenceFloor {
		return RecPromote
	}

	if b.oscillating() || b.plateaued() {
		return RecTryDifferentStrategy
	}

	errImproving := b.errorTrend() == TrendImproving
	confImproving := b.confidenceIncreasing()
	if errImproving != confImproving && len(b.confidenceWindow) >= windowLen {
		return RecPauseAndBackoff
	}

	canAttempt, _ := br.CanAttempt(class)
	if canAttempt {
		return RecContinue
	}
	return RecRollback
}
