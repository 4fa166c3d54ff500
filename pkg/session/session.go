// Package session implements the Session Loop (spec.md §4.9): the sequential
// driver that repeatedly calls process_attempt, waits out backoff between
// attempts, consults an optional advisor for the next patch proposal, and
// sanitizes or falls back to a minimal tweak before looping again. Grounded
// on orchestration/workflow_engine.go's executeStep: a bounded retry loop
// that computes its own backoff wait, selects between the wait and
// ctx.Done() at every blocking point, and records a terminal error result on
// cancellation rather than leaving the caller hanging.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/itsneelabh/selfheal/internal/logging"
	"github.com/itsneelabh/selfheal/pkg/backoff"
	"github.com/itsneelabh/selfheal/pkg/breaker"
	"github.com/itsneelabh/selfheal/pkg/engine"
	"github.com/itsneelabh/selfheal/pkg/envelope"
	"github.com/itsneelabh/selfheal/pkg/errclass"
	"github.com/itsneelabh/selfheal/pkg/ports"
	"github.com/itsneelabh/selfheal/pkg/sanitize"
	"github.com/itsneelabh/selfheal/pkg/tweak"
)

// defaultAdvisorTimeoutMS is spec.md §5's "advisor_timeout_ms (default
// 10,000)".
const defaultAdvisorTimeoutMS = 10_000

// Initial is the first attempt's input (spec.md §4.9 contract:
// "run_session(initial_inputs, ...)").
type Initial struct {
	Class        errclass.Class
	Message      string
	PatchCode    string
	OriginalCode string
	Language     string
	Logits       []float64
	Metadata     map[string]interface{}
}

// Result is run_session's return value (spec.md §4.9 contract: "-> Verdict +
// EnvelopeSnapshot").
type Result struct {
	Verdict   envelope.Verdict
	Envelope  *envelope.PatchEnvelope
	Extras    engine.Extras
	Attempts  int
	Cancelled bool
}

// Session drives one Engine through run_session.
type Session struct {
	eng *engine.Engine

	clock     ports.Clock
	rng       ports.RNG
	advisor   ports.Advisor
	sanitizer ports.Sanitizer
	logger    logging.Logger

	bounds              backoff.Bounds
	advisorTimeoutMS    int64
	sanitizeConstraints ports.SanitizeConstraints
}

// Option configures a Session at construction.
type Option func(*Session)

// WithClock overrides the default system clock; the session always sleeps
// through the same port the backoff formula was computed for.
func WithClock(c ports.Clock) Option { return func(s *Session) { s.clock = c } }

// WithRNG overrides the default math/rand-backed jitter source.
func WithRNG(r ports.RNG) Option { return func(s *Session) { s.rng = r } }

// WithAdvisor wires an advisor consult into the backoff path. A nil advisor
// (the default) always falls back to the minimal tweak.
func WithAdvisor(a ports.Advisor) Option { return func(s *Session) { s.advisor = a } }

// WithSanitizer overrides the default sanitize.Sanitizer.
func WithSanitizer(san ports.Sanitizer) Option { return func(s *Session) { s.sanitizer = san } }

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option { return func(s *Session) { s.logger = l } }

// WithBounds overrides the backoff wait window (spec.md §4.10 default
// 500-1500ms).
func WithBounds(b backoff.Bounds) Option { return func(s *Session) { s.bounds = b } }

// WithAdvisorTimeoutMS overrides the default 10,000ms advisor consult
// timeout (spec.md §5).
func WithAdvisorTimeoutMS(ms int64) Option {
	return func(s *Session) {
		if ms > 0 {
			s.advisorTimeoutMS = ms
		}
	}
}

// WithSanitizeConstraints overrides the default (unconstrained) sanitize
// constraints passed to every consult's proposal.
func WithSanitizeConstraints(c ports.SanitizeConstraints) Option {
	return func(s *Session) { s.sanitizeConstraints = c }
}

// New creates a Session driving eng.
func New(eng *engine.Engine, opts ...Option) *Session {
	s := &Session{
		eng:              eng,
		clock:            ports.SystemClock{},
		rng:              ports.NewMathRNG(time.Now().UnixNano()),
		sanitizer:        defaultSanitizer{},
		logger:           logging.NoOpLogger{},
		bounds:           backoff.DefaultBounds(),
		advisorTimeoutMS: defaultAdvisorTimeoutMS,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultSanitizer delegates to sanitize.Sanitizer: fenced-block extraction
// followed by the session's sanitize constraints.
type defaultSanitizer struct{}

func (defaultSanitizer) Sanitize(ctx context.Context, code string, constraints ports.SanitizeConstraints) (ports.SanitizeResult, error) {
	return sanitize.Sanitizer{}.Sanitize(ctx, code, constraints)
}

// Run drives run_session: up to maxAttempts iterations of process_attempt,
// exiting on the first terminal verdict (spec.md §4.9).
func (s *Session) Run(ctx context.Context, initial Initial, maxAttempts int) (Result, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	in := engine.AttemptInput{
		Class:        initial.Class,
		Message:      initial.Message,
		PatchCode:    initial.PatchCode,
		OriginalCode: initial.OriginalCode,
		Language:     initial.Language,
		Logits:       initial.Logits,
		Metadata:     initial.Metadata,
	}

	lastPatch := initial.PatchCode
	consecutiveFailures := 0
	attemptsRun := 0

	var (
		verdict envelope.Verdict
		env     *envelope.PatchEnvelope
		extras  engine.Extras
	)

	for attemptsRun < maxAttempts {
		if cancelled, res, err := s.checkCancelled(ctx, in.Class, in.OriginalCode, in.Language); cancelled {
			return res, err
		}

		v, e, ex, err := s.eng.ProcessAttempt(ctx, in)
		if err != nil {
			return Result{}, err
		}
		attemptsRun++
		verdict, env, extras = v, e, ex

		if !e.Success() {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		if verdict.IsTerminal() || attemptsRun >= maxAttempts {
			break
		}

		if cancelled, res, err := s.checkCancelled(ctx, in.Class, in.OriginalCode, in.Language); cancelled {
			return res, err
		}

		switch verdict {
		case envelope.PauseAndBackoff, envelope.Retry:
			wait, _ := backoff.Recommend(s.trendFrom(e, consecutiveFailures), s.bounds, s.rng)
			s.clock.Sleep(ctx, time.Duration(wait)*time.Millisecond)

			if cancelled, res, err := s.checkCancelled(ctx, in.Class, in.OriginalCode, in.Language); cancelled {
				return res, err
			}

			proposal, proposed := s.consult(ctx, in.Message, in.OriginalCode, lastPatch, in.Language, e)
			if proposed {
				in.PatchCode = proposal
			} else {
				in.PatchCode = tweak.Apply(lastPatch)
			}
			lastPatch = in.PatchCode

		case envelope.StrategyChange:
			in.PatchCode = tweak.Apply(lastPatch)
			lastPatch = in.PatchCode
		}
	}

	return Result{Verdict: verdict, Envelope: env, Extras: extras, Attempts: attemptsRun}, nil
}

// checkCancelled reports whether ctx is already done and, if so, finalizes
// the session as a terminal cancellation (spec.md §5 "Cancellation").
func (s *Session) checkCancelled(ctx context.Context, class errclass.Class, originalCode, language string) (bool, Result, error) {
	select {
	case <-ctx.Done():
		verdict, env, extras, err := s.eng.Cancel(ctx, class, originalCode, language)
		if err != nil {
			return true, Result{}, err
		}
		return true, Result{Verdict: verdict, Envelope: env, Extras: extras, Cancelled: true}, ctx.Err()
	default:
		return false, Result{}, nil
	}
}

// trendFrom builds the backoff policy's trend summary from the envelope's
// last-recorded error trend (spec.md §4.10's "trend_summary").
func (s *Session) trendFrom(env *envelope.PatchEnvelope, consecutiveFailures int) backoff.TrendSummary {
	trend := env.TrendMetadata()
	velocity := 0.0
	if trend.ImprovementVelocity != nil {
		velocity = *trend.ImprovementVelocity
	}
	return backoff.TrendSummary{
		Improving:           trend.ErrorTrend == breaker.TrendImproving,
		Velocity:            velocity,
		ConsecutiveFailures: consecutiveFailures,
	}
}

// consult runs the advisor-consult-then-sanitize half of the backoff path
// (spec.md §4.9: "consult the advisor ... sanitize the proposal; on
// rejection or absence, apply the minimal syntactic tweak"). Advisor
// absence, timeout, transport failure, or sanitizer rejection are all
// silently degraded into "no proposal" (spec.md §7), the second return
// value reporting false.
func (s *Session) consult(ctx context.Context, errMessage, originalCode, lastPatch, language string, env *envelope.PatchEnvelope) (string, bool) {
	if s.advisor == nil {
		return "", false
	}

	var similar []string
	for _, rec := range s.eng.Memory().Similar(errMessage) {
		similar = append(similar, rec.EnvelopeJSON)
	}

	consultCtx, cancel := context.WithTimeout(ctx, time.Duration(s.advisorTimeoutMS)*time.Millisecond)
	defer cancel()

	resp, err := s.advisor.Consult(consultCtx, ports.ConsultRequest{
		ErrorMessage:    errMessage,
		OriginalCode:    originalCode,
		LastPatch:       lastPatch,
		Language:        language,
		LastEnvelope:    env,
		SimilarOutcomes: similar,
	})
	if err != nil {
		s.logger.Warn("advisor consult failed, falling back to minimal tweak", map[string]interface{}{"error": err.Error()})
		return "", false
	}

	if strings.TrimSpace(resp.Text) == "" {
		return "", false
	}

	result, err := s.sanitizer.Sanitize(ctx, resp.Text, s.sanitizeConstraints)
	if err != nil || !result.OK {
		s.logger.Warn("advisor proposal sanitized away, falling back to minimal tweak", map[string]interface{}{
			"error": errString(err), "reason": result.Reason,
		})
		return "", false
	}

	return result.Code, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
