package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/selfheal/internal/testutil"
	"github.com/itsneelabh/selfheal/pkg/engine"
	"github.com/itsneelabh/selfheal/pkg/envelope"
	"github.com/itsneelabh/selfheal/pkg/errclass"
	"github.com/itsneelabh/selfheal/pkg/policy"
	"github.com/itsneelabh/selfheal/pkg/ports"
	"github.com/itsneelabh/selfheal/pkg/tweak"
)

func testPolicy(t *testing.T, opts ...policy.Option) *policy.Policy {
	t.Helper()
	p, err := policy.New(opts...)
	require.NoError(t, err)
	return p
}

func baseInitial() Initial {
	return Initial{
		Class:        errclass.Syntax,
		Message:      "missing )",
		OriginalCode: `console.log("x"`,
		PatchCode:    `console.log("x"`,
		Language:     "javascript",
		Logits:       []float64{6, 0, 0},
	}
}

func TestRun_PromoteOnFirstAttempt(t *testing.T) {
	sandbox := testutil.NewScriptedSandbox(ports.SandboxResult{Success: true})
	eng := engine.New("sess-promote", sandbox, testPolicy(t))
	s := New(eng, WithClock(&ports.FixedClock{}))

	res, err := s.Run(context.Background(), baseInitial(), 5)
	require.NoError(t, err)

	assert.Equal(t, envelope.Promote, res.Verdict)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Cancelled)
}

// A first attempt that fails but doesn't exhaust any budget yields Retry;
// the loop waits out the backoff, consults the advisor, sanitizes its
// proposal, and feeds the sanitized code into the next attempt.
func TestRun_RetryConsultsAdvisorAndAppliesSanitizedProposal(t *testing.T) {
	sandbox := testutil.NewScriptedSandbox(
		ports.SandboxResult{Success: false, TestResults: testutil.FailingTestResults(2)},
		ports.SandboxResult{Success: true},
	)
	p := testPolicy(t, policy.WithSyntaxBudget(5, 1.0))
	eng := engine.New("sess-retry-advisor", sandbox, p)

	advisor := &testutil.FakeAdvisor{Response: ports.AdvisorResponse{Text: "console.log(\"x\");"}}
	sanitizer := &testutil.FakeSanitizer{Result: ports.SanitizeResult{OK: true, Code: "console.log(\"x\");"}}
	clock := &ports.FixedClock{}

	s := New(eng, WithClock(clock), WithAdvisor(advisor), WithSanitizer(sanitizer))

	res, err := s.Run(context.Background(), baseInitial(), 5)
	require.NoError(t, err)

	assert.Equal(t, envelope.Promote, res.Verdict)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, advisor.Requests, 1)
	assert.Equal(t, `console.log("x"`, advisor.Requests[0].LastPatch)
	require.Len(t, sandbox.Calls, 2)
	assert.Equal(t, `console.log("x");`, sandbox.Calls[1])
	assert.NotEmpty(t, clock.Slept, "session must sleep out the backoff wait before consulting")
}

// With no advisor wired, a Retry falls back to the minimal syntactic tweak
// instead of leaving the patch unchanged.
func TestRun_NoAdvisorFallsBackToMinimalTweak(t *testing.T) {
	sandbox := testutil.NewScriptedSandbox(
		ports.SandboxResult{Success: false, TestResults: testutil.FailingTestResults(2)},
		ports.SandboxResult{Success: true},
	)
	p := testPolicy(t, policy.WithSyntaxBudget(5, 1.0))
	eng := engine.New("sess-no-advisor", sandbox, p)
	s := New(eng, WithClock(&ports.FixedClock{}))

	initial := baseInitial()
	res, err := s.Run(context.Background(), initial, 5)
	require.NoError(t, err)

	assert.Equal(t, envelope.Promote, res.Verdict)
	require.Len(t, sandbox.Calls, 2)
	assert.Equal(t, tweak.Apply(initial.PatchCode), sandbox.Calls[1])
}

// An advisor transport failure degrades silently into "no proposal"; the
// loop still falls back to the minimal tweak rather than erroring out.
func TestRun_AdvisorFailureFallsBackToMinimalTweak(t *testing.T) {
	sandbox := testutil.NewScriptedSandbox(
		ports.SandboxResult{Success: false, TestResults: testutil.FailingTestResults(2)},
		ports.SandboxResult{Success: true},
	)
	p := testPolicy(t, policy.WithSyntaxBudget(5, 1.0))
	eng := engine.New("sess-advisor-fail", sandbox, p)

	advisor := &testutil.FakeAdvisor{Err: assert.AnError}
	s := New(eng, WithClock(&ports.FixedClock{}), WithAdvisor(advisor))

	initial := baseInitial()
	res, err := s.Run(context.Background(), initial, 5)
	require.NoError(t, err)

	assert.Equal(t, envelope.Promote, res.Verdict)
	require.Len(t, sandbox.Calls, 2)
	assert.Equal(t, tweak.Apply(initial.PatchCode), sandbox.Calls[1])
}

// The loop stops after max_attempts iterations even when no terminal
// verdict was ever reached.
func TestRun_StopsAtMaxAttemptsWithoutTerminalVerdict(t *testing.T) {
	results := make([]ports.SandboxResult, 0, 2)
	for i := 0; i < 2; i++ {
		results = append(results, ports.SandboxResult{Success: false, TestResults: testutil.FailingTestResults(3)})
	}
	sandbox := testutil.NewScriptedSandbox(results...)
	p := testPolicy(t, policy.WithSyntaxBudget(10, 1.0))
	eng := engine.New("sess-cap", sandbox, p)
	s := New(eng, WithClock(&ports.FixedClock{}))

	res, err := s.Run(context.Background(), baseInitial(), 2)
	require.NoError(t, err)

	assert.False(t, res.Verdict.IsTerminal())
	assert.Equal(t, 2, res.Attempts)
}

// A cancellation signalled before the loop starts its first iteration
// finalizes the envelope as a terminal Stop with a "cancelled" attempt
// record, and propagates ctx.Err() to the caller (spec.md §5
// "Cancellation").
func TestRun_CancellationBeforeFirstAttempt(t *testing.T) {
	sandbox := testutil.NewScriptedSandbox(ports.SandboxResult{Success: true})
	eng := engine.New("sess-cancel", sandbox, testPolicy(t))
	s := New(eng, WithClock(&ports.FixedClock{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Run(ctx, baseInitial(), 5)
	require.Error(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, envelope.Stop, res.Verdict)
	require.NotNil(t, res.Envelope)
	assert.True(t, res.Envelope.DeveloperFlagged())
	require.Len(t, res.Envelope.Attempts(), 1)
	assert.False(t, res.Envelope.Attempts()[0].Success)
	assert.Equal(t, "cancelled", res.Envelope.Attempts()[0].Note)
	assert.Empty(t, sandbox.Calls, "no sandbox call should happen once cancellation is observed before the first attempt")
}
