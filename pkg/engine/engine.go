// Package engine implements the Decision Engine (spec.md §4.8): the single
// entry point, ProcessAttempt, that drives one candidate patch through risk
// screening, confidence scoring, circuit breaking, cascade tracking,
// sandboxed execution and watchdog supervision, then emits a verdict plus a
// finalized envelope snapshot. One Engine owns exactly one session
// (patch_id) and every piece of state that session's attempts touch —
// breaker, cascade tracker, watchdog, confidence scorer, memory ring and
// rate limiter are all instance fields, never globals (spec.md §9
// "Re-architect as explicit fields of a single Engine value owned by the
// session"). Grounded on gomind's core.Agent request pipeline: a fixed
// ordered stage list that fails fast on the first blocking stage, adapted
// here into the engine's own 13-step pipeline.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/selfheal/internal/errs"
	"github.com/itsneelabh/selfheal/internal/logging"
	"github.com/itsneelabh/selfheal/pkg/breaker"
	"github.com/itsneelabh/selfheal/pkg/cascade"
	"github.com/itsneelabh/selfheal/pkg/confidence"
	"github.com/itsneelabh/selfheal/pkg/envelope"
	"github.com/itsneelabh/selfheal/pkg/errclass"
	"github.com/itsneelabh/selfheal/pkg/memory"
	"github.com/itsneelabh/selfheal/pkg/observers"
	"github.com/itsneelabh/selfheal/pkg/policy"
	"github.com/itsneelabh/selfheal/pkg/ports"
	"github.com/itsneelabh/selfheal/pkg/ratelimit"
)

// AttemptInput is the argument bundle for one ProcessAttempt call (spec.md
// §4.8 contract: "process_attempt(class, message, patch_code, original_code,
// logits, metadata)").
type AttemptInput struct {
	Class        errclass.Class
	Message      string
	PatchCode    string
	OriginalCode string
	Language     string
	Logits       []float64
	Metadata     map[string]interface{}
	History      *confidence.HistoryHint
	// LinesOfCode sizes the breaker's error-density window (errors/loc). A
	// value <= 0 falls back to counting OriginalCode's lines.
	LinesOfCode int
}

// Extras carries process_attempt's secondary outputs (spec.md §4.8
// contract: "Verdict + EnvelopeSnapshot + Extras").
type Extras struct {
	Reason          string                   `json:"reason,omitempty"`
	RiskFlags       []observers.RiskFlag     `json:"risk_flags,omitempty"`
	WatchdogEvent   *observers.WatchdogEvent `json:"watchdog_event,omitempty"`
	WatchdogSummary observers.Aggregate      `json:"watchdog_summary"`
	BreakerSummary  breaker.Summary          `json:"breaker_summary"`
	CascadeDepth    int                      `json:"cascade_depth"`
	Recommendation  breaker.Recommendation   `json:"recommendation,omitempty"`
}

// Engine is the per-session decision engine.
type Engine struct {
	patchID string
	policy  *policy.Policy

	clock   ports.Clock
	sandbox ports.Sandbox

	limiter  *ratelimit.Limiter
	breaker  *breaker.Breaker
	cascade  *cascade.Tracker
	scorer   *confidence.Scorer
	risk     *observers.RiskObserver
	watchdog *observers.Watchdog
	memory   memory.Store

	logger logging.Logger
	instr  *Instrumentation
	meter  metric.Meter

	env                *envelope.PatchEnvelope
	attemptNum         int
	prevErrorsDetected int

	// lastErrorsResolved and lastQuality carry step 9's delta-analysis
	// result into finalize's update_counters/update_trend calls; both reset
	// at the top of every ProcessAttempt call so early-exit paths (risk,
	// breaker, cascade, confidence floor) record zero/unknown.
	lastErrorsResolved int
	lastQuality        *float64
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithClock overrides the default system clock.
func WithClock(c ports.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithScorer injects a confidence scorer shared across sessions, so its beta
// calibration ring accumulates evidence across more than one patch_id.
func WithScorer(s *confidence.Scorer) Option { return func(e *Engine) { e.scorer = s } }

// WithMemory injects a memory store shared across sessions.
func WithMemory(m memory.Store) Option { return func(e *Engine) { e.memory = m } }

// WithLimiter injects a rate limiter shared across sessions.
func WithLimiter(l *ratelimit.Limiter) Option { return func(e *Engine) { e.limiter = l } }

// WithMeter wires an OTel meter into the engine and its breaker, building
// both Instrumentation wrappers from the same meter.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) {
		e.meter = m
		e.instr = NewInstrumentation(m)
	}
}

// WithInitialErrors seeds the baseline error count step 9's delta analysis
// compares the first attempt's result against (spec.md §4.8 step 9:
// "errors_resolved"). Defaults to 1: a session exists because exactly one
// reported error kicked it off.
func WithInitialErrors(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.prevErrorsDetected = n
		}
	}
}

// New creates an Engine for one session, identified by patchID, over
// sandbox. p supplies every budget/threshold/keyword default (spec.md §6);
// a nil p uses policy.Default().
// New creates an Engine for one session identified by patchID. An empty
// patchID is auto-generated (uuid.New().String()) rather than left blank,
// matching gomind's own id-on-construction pattern in core/agent.go and
// core/tool.go.
func New(patchID string, sandbox ports.Sandbox, p *policy.Policy, opts ...Option) *Engine {
	if p == nil {
		p = policy.Default()
	}
	if patchID == "" {
		patchID = uuid.New().String()
	}
	e := &Engine{
		patchID:            patchID,
		policy:             p,
		clock:              ports.SystemClock{},
		sandbox:            sandbox,
		logger:             logging.NoOpLogger{},
		prevErrorsDetected: 1,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.limiter = valueOr(e.limiter, ratelimit.New(e.clock, p.RateLimitPerMin))
	e.scorer = valueOrScorer(e.scorer, confidence.NewScorer())
	e.memory = valueOrMemory(e.memory, memory.New(e.clock, memory.WithCapacity(p.MemoryMax), memory.WithTTLMS(p.MemoryTTLMS)))
	e.risk = observers.NewRiskObserver(p.RiskyKeywords)
	e.watchdog = observers.NewWatchdog(observers.WatchdogConfig{WallThresholdMS: p.WallThresholdMS, CPUThresholdPercent: p.CPUThresholdPercent})

	e.breaker = breaker.New(breaker.Config{
		Syntax:          breaker.BudgetConfig{MaxAttempts: p.MaxSyntaxAttempts, ErrorBudget: p.SyntaxErrorBudget, ConfFloor: p.SyntaxConfFloor},
		Logic:           breaker.BudgetConfig{MaxAttempts: p.MaxLogicAttempts, ErrorBudget: p.LogicErrorBudget, ConfFloor: p.LogicConfFloor},
		Logger:          e.logger,
		Instrumentation: breaker.NewInstrumentation(e.meter),
	})
	e.cascade = cascade.NewTracker(cascade.WithMaxDepth(p.MaxCascadeDepth))

	return e
}

func valueOr(l *ratelimit.Limiter, fallback *ratelimit.Limiter) *ratelimit.Limiter {
	if l != nil {
		return l
	}
	return fallback
}

func valueOrScorer(s *confidence.Scorer, fallback *confidence.Scorer) *confidence.Scorer {
	if s != nil {
		return s
	}
	return fallback
}

func valueOrMemory(m memory.Store, fallback memory.Store) memory.Store {
	if m != nil {
		return m
	}
	return fallback
}

// PatchID returns the session identifier this Engine was constructed with
// (or auto-generated for, if the caller passed an empty string).
func (e *Engine) PatchID() string { return e.patchID }

// Memory exposes the engine's memory ring, so the session loop can query
// similar past outcomes during a backoff consult.
func (e *Engine) Memory() memory.Store { return e.memory }

// Envelope returns the session's current envelope, nil before the first
// attempt.
func (e *Engine) Envelope() *envelope.PatchEnvelope { return e.env }

// Policy returns the engine's policy snapshot.
func (e *Engine) Policy() *policy.Policy { return e.policy }

// WatchdogSummary exposes the session's aggregated watchdog activity
// (spec.md §4.9 "watchdog aggregation").
func (e *Engine) WatchdogSummary() observers.Aggregate { return e.watchdog.Summary() }

func validateInput(in AttemptInput) error {
	if strings.TrimSpace(in.Message) == "" {
		return errs.New("engine.ProcessAttempt", "invalid_input", fmt.Errorf("message is required: %w", errs.ErrInvalidInput))
	}
	if strings.TrimSpace(in.PatchCode) == "" {
		return errs.New("engine.ProcessAttempt", "invalid_input", fmt.Errorf("patch_code is required: %w", errs.ErrInvalidInput))
	}
	if strings.TrimSpace(in.OriginalCode) == "" {
		return errs.New("engine.ProcessAttempt", "invalid_input", fmt.Errorf("original_code is required: %w", errs.ErrInvalidInput))
	}
	for _, c := range errclass.All {
		if c == in.Class {
			return nil
		}
	}
	return errs.New("engine.ProcessAttempt", "invalid_input", fmt.Errorf("unknown error class %d: %w", in.Class, errs.ErrUnknownErrorClass))
}

// ProcessAttempt runs one attempt through the full decision pipeline
// (spec.md §4.8, strict order).
func (e *Engine) ProcessAttempt(ctx context.Context, in AttemptInput) (envelope.Verdict, *envelope.PatchEnvelope, Extras, error) {
	if err := validateInput(in); err != nil {
		return "", nil, Extras{}, err
	}
	e.lastErrorsResolved = 0
	e.lastQuality = nil

	// Step 1: rate limit.
	if ok, retryAfterMS := e.limiter.Allow(); !ok {
		e.instr.recordRateLimited(ctx)
		err := errs.New("engine.ProcessAttempt", "rate_limit_exceeded",
			fmt.Errorf("retry after %dms: %w", retryAfterMS, errs.ErrRateLimitExceeded)).WithID(e.patchID)
		return "", nil, Extras{Reason: "rate_limit_exceeded"}, err
	}

	// Step 2: create/update envelope, stamp metadata.
	if e.env == nil {
		e.env = envelope.New(e.patchID, in.OriginalCode, in.Language, e.policy)
	}
	e.attemptNum++
	nowMS := e.clock.NowMS()
	ts := isoTimestamp(nowMS)
	e.env.AddTimelineEntry(ts, "attempt_received", map[string]interface{}{
		"attempt": e.attemptNum,
		"class":   in.Class.String(),
		"message": in.Message,
		"metadata": in.Metadata,
	})

	loc := in.LinesOfCode
	if loc <= 0 {
		loc = len(strings.Split(in.OriginalCode, "\n"))
	}

	// Step 3: risk observer, before any sandbox execution.
	flags := e.risk.Evaluate(in.PatchCode, in.OriginalCode)
	if len(flags) > 0 && e.policy.RequireHumanOnRisky {
		e.env.ApplyDeveloperFlag(true, riskMessage(flags), "risky_keyword_match")
		return e.finalize(ctx, envelope.HumanReview, in.Class, false, "risky_keyword_match", ts,
			Extras{Reason: "risky_keyword_match", RiskFlags: flags})
	}

	// Step 4: score confidence.
	score, err := e.scorer.Score(in.Logits, in.Class, in.History)
	if err != nil {
		return "", nil, Extras{}, errs.New("engine.ProcessAttempt", "invalid_input", err).WithID(e.patchID)
	}
	e.env.MergeConfidence(score)

	// Step 5: breaker can_attempt.
	if ok, reason := e.breaker.CanAttempt(in.Class); !ok {
		verdict := envelope.Rollback
		if stop, cascadeReason := e.cascade.ShouldStop(); stop {
			verdict = envelope.Stop
			reason = cascadeReason
		}
		e.env.ApplyDeveloperFlag(true, "attempt budget exhausted: "+reason, reason)
		return e.finalize(ctx, verdict, in.Class, false, reason, ts, Extras{Reason: reason})
	}

	// Step 6: cascade should_stop.
	if stop, reason := e.cascade.ShouldStop(); stop {
		e.env.ApplyDeveloperFlag(true, "cascade stopped: "+reason, reason)
		return e.finalize(ctx, envelope.Stop, in.Class, false, reason, ts, Extras{Reason: reason})
	}

	// Step 7: class-appropriate confidence floor.
	if !confidence.ShouldAttempt(score, in.Class, e.policy.SyntaxConfFloor, e.policy.LogicConfFloor) {
		reason := "confidence_below_floor"
		e.env.ApplyDeveloperFlag(true, "confidence below floor", reason)
		return e.finalize(ctx, envelope.Stop, in.Class, false, reason, ts, Extras{Reason: reason})
	}

	// Step 8: watchdog + sandbox execution.
	attemptKey := fmt.Sprintf("%s#%d", e.patchID, e.attemptNum)
	e.watchdog.Begin(attemptKey)
	result, sandboxErr := e.sandbox.Execute(ctx, e.patchID, in.Language, in.PatchCode, in.OriginalCode)
	watchdogEvent := e.watchdog.End(attemptKey, result)

	if sandboxErr != nil {
		werr := errs.New("engine.ProcessAttempt", "sandbox_failure", fmt.Errorf("%v: %w", sandboxErr, errs.ErrSandboxFailure)).WithID(e.patchID)
		result = ports.SandboxResult{Success: false, ErrorMessage: werr.Error()}
	}

	// Step 9: analyze code delta.
	errorsDetected := countFailures(result)
	errorsResolved := 0
	if e.prevErrorsDetected > errorsDetected {
		errorsResolved = e.prevErrorsDetected - errorsDetected
	}
	quality := qualityScore(result)
	e.lastErrorsResolved = errorsResolved
	e.lastQuality = floatPtr(quality)
	e.prevErrorsDetected = errorsDetected

	// Step 10: update breaker, cascade, scorer history.
	e.breaker.Record(in.Class, result.Success, errorsDetected, errorsResolved, score.Overall, loc)
	if !result.Success {
		e.cascade.Push(in.Class, result.ErrorMessage, score.Overall, e.attemptNum)
	}
	e.scorer.RecordOutcome(in.Class, score.Overall, result.Success)
	e.env.MergeResourceUsage(result.ResourceUsage)
	e.env.MarkSuccess(result.Success)

	// Step 11: map breaker recommendation + watchdog severity + first-attempt
	// grace into a verdict.
	rec := e.breaker.Recommend(in.Class)
	verdict, reason := e.mapVerdict(in.Class, result.Success, rec, watchdogEvent)

	note := reason
	if note == "" {
		note = string(rec)
	}
	// developer_message is only user-visible on HumanReview, budget-exhaustion
	// Rollback and cascade Stop (spec.md §7 "User-visible failures");
	// PauseAndBackoff/Retry/StrategyChange/Promote leave it unset.
	if verdict == envelope.Rollback || verdict == envelope.Stop || verdict == envelope.HumanReview {
		msg := reason
		if watchdogEvent != nil {
			msg = "sandbox execution exceeded resource/time thresholds: " + reason
		}
		e.env.ApplyDeveloperFlag(true, msg, reason)
	}

	v, envOut, extras, finErr := e.finalize(ctx, verdict, in.Class, result.Success, note, ts, Extras{
		Reason:         reason,
		WatchdogEvent:  watchdogEvent,
		Recommendation: rec,
	})
	return v, envOut, extras, finErr
}

// Cancel finalizes the session as a terminal Stop after an external
// cancellation signal (spec.md §5 "Cancellation"): the in-progress attempt
// is recorded success=false/note="cancelled" rather than run through the
// full process_attempt pipeline, since no further sandbox work should be
// started once the caller has asked to stop. class is the error class of
// the attempt that was in flight (or about to start) when cancellation
// arrived, so the breaker/cascade snapshots embedded in the record stay
// consistent with the rest of the session's history. originalCode/language
// only seed a fresh envelope when cancellation arrives before the first
// attempt ever created one; once e.env exists they're ignored, since
// PatchData is immutable after creation.
func (e *Engine) Cancel(ctx context.Context, class errclass.Class, originalCode, language string) (envelope.Verdict, *envelope.PatchEnvelope, Extras, error) {
	if e.env == nil {
		e.env = envelope.New(e.patchID, originalCode, language, e.policy)
	}
	e.attemptNum++
	e.lastErrorsResolved = 0
	e.lastQuality = nil
	ts := isoTimestamp(e.clock.NowMS())
	e.env.ApplyDeveloperFlag(true, "session cancelled before completion", "cancelled")
	return e.finalize(ctx, envelope.Stop, class, false, "cancelled", ts, Extras{Reason: "cancelled"})
}

// finalize runs the pipeline's final, always-executed steps (spec.md §4.8
// steps 12-13): append the attempt record, refresh trend metadata and
// counters, log the timeline, stamp timestamp and hash, then validate
// before emitting. Every ProcessAttempt path that reaches a verdict, early
// or not, goes through this; the input-validation, rate-limit and scoring
// error returns do not.
func (e *Engine) finalize(ctx context.Context, verdict envelope.Verdict, class errclass.Class, success bool, note, ts string, extras Extras) (envelope.Verdict, *envelope.PatchEnvelope, Extras, error) {
	snapshot := e.breaker.Snapshot(class)
	e.env.AppendAttempt(ts, success, note, envelope.BreakerSnapshot{State: snapshot.State, FailureCount: snapshot.FailureCount})
	e.env.SetBreakerState(e.breaker.EnvelopeState())
	e.env.SetCascadeDepth(e.cascade.Depth())
	e.env.UpdateCounters(class, e.lastErrorsResolved)

	errorTrend, velocity, cumulativeResolved := e.breaker.Trend(class)
	e.env.UpdateTrend(envelope.TrendMetadata{
		ErrorsDetected:      uint32(e.prevErrorsDetected),
		ErrorsResolved:      uint32(cumulativeResolved),
		ErrorTrend:          errorTrend,
		CodeQualityScore:    e.lastQuality,
		ImprovementVelocity: floatPtr(velocity),
	})

	e.env.AddTimelineEntry(ts, "verdict", map[string]interface{}{"verdict": string(verdict), "reason": extras.Reason})
	e.env.SetTimestamp(ts)
	if err := e.env.SetHash(); err != nil {
		return "", nil, Extras{}, errs.New("engine.finalize", "schema_violation", err).WithID(e.patchID)
	}

	if err := envelope.Validate(e.env); err != nil {
		return envelope.Stop, e.env, extras, err
	}

	if raw, err := json.Marshal(e.env); err == nil {
		e.memory.Add(string(raw))
	}

	extras.WatchdogSummary = e.watchdog.Summary()
	extras.BreakerSummary = e.breaker.Summary()
	extras.CascadeDepth = e.cascade.Depth()
	e.instr.recordVerdict(ctx, verdict, class)

	return verdict, e.env, extras, nil
}

// mapVerdict implements spec.md §4.8 step 11 and §4.5's watchdog override.
func (e *Engine) mapVerdict(class errclass.Class, success bool, rec breaker.Recommendation, watchdogEvent *observers.WatchdogEvent) (envelope.Verdict, string) {
	if watchdogEvent != nil {
		if e.attemptNum == 1 {
			return envelope.PauseAndBackoff, "watchdog_first_attempt_grace"
		}
		if rec != breaker.RecPromote {
			return envelope.Rollback, "watchdog_trend"
		}
	}

	switch rec {
	case breaker.RecRollback:
		return envelope.Rollback, "rollback"
	case breaker.RecPromote:
		if success {
			return envelope.Promote, "promote"
		}
		return envelope.Retry, "continue"
	case breaker.RecTryDifferentStrategy:
		return envelope.StrategyChange, "try_different_strategy"
	case breaker.RecPauseAndBackoff:
		return envelope.PauseAndBackoff, "pause_and_backoff"
	default: // RecContinue
		if success {
			return envelope.Promote, "promote"
		}
		if canAttempt, _ := e.breaker.CanAttempt(class); canAttempt {
			return envelope.Retry, "continue"
		}
		return envelope.Rollback, "attempts exceeded"
	}
}

func countFailures(result ports.SandboxResult) int {
	if len(result.TestResults) == 0 {
		if result.Success {
			return 0
		}
		return 1
	}
	failures := 0
	for _, tr := range result.TestResults {
		if !tr.Passed {
			failures++
		}
	}
	return failures
}

func qualityScore(result ports.SandboxResult) float64 {
	if len(result.TestResults) == 0 {
		if result.Success {
			return 1.0
		}
		return 0.0
	}
	passed := 0
	for _, tr := range result.TestResults {
		if tr.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(result.TestResults))
}

func riskMessage(flags []observers.RiskFlag) string {
	var b strings.Builder
	b.WriteString("risky keyword(s) detected: ")
	for i, f := range flags {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Keyword)
	}
	return b.String()
}

func floatPtr(v float64) *float64 { return &v }

// isoTimestamp formats a clock reading (milliseconds since epoch) as an
// RFC3339Nano timestamp, the format every envelope timestamp field uses.
func isoTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
