// Package testutil provides scripted port fakes shared by the engine and
// session test suites. Grounded on orchestration/test_mocks.go's
// function-override-with-fallback shape: each fake exposes a func field the
// test can set for custom behavior, falling back to a canned default so most
// tests only need to set the fields they care about.
package testutil

import (
	"context"
	"fmt"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

// ScriptedSandbox replays a fixed sequence of SandboxResults, one per call to
// Execute, repeating the last entry once the script is exhausted. Set
// ExecuteFunc to fully override the behavior instead.
type ScriptedSandbox struct {
	Results     []ports.SandboxResult
	Err         []error
	ExecuteFunc func(ctx context.Context, patchID, language, patchedCode, originalCode string) (ports.SandboxResult, error)

	calls int
	Calls []string // records patchedCode seen on each call, in order
}

// NewScriptedSandbox creates a ScriptedSandbox that replays results in order.
func NewScriptedSandbox(results ...ports.SandboxResult) *ScriptedSandbox {
	return &ScriptedSandbox{Results: results}
}

func (s *ScriptedSandbox) Execute(ctx context.Context, patchID, language, patchedCode, originalCode string) (ports.SandboxResult, error) {
	s.Calls = append(s.Calls, patchedCode)
	defer func() { s.calls++ }()

	if s.ExecuteFunc != nil {
		return s.ExecuteFunc(ctx, patchID, language, patchedCode, originalCode)
	}

	if s.calls < len(s.Err) && s.Err[s.calls] != nil {
		return ports.SandboxResult{}, s.Err[s.calls]
	}
	if len(s.Results) == 0 {
		return ports.SandboxResult{Success: true}, nil
	}
	idx := s.calls
	if idx >= len(s.Results) {
		idx = len(s.Results) - 1
	}
	return s.Results[idx], nil
}

var _ ports.Sandbox = (*ScriptedSandbox)(nil)

// FailingTestResults builds n failed and 0 passed TestResults, the shape
// ScriptedSandbox uses to drive the breaker's errors_detected trend in
// tests (one failure per simulated error).
func FailingTestResults(n int) []ports.TestResult {
	out := make([]ports.TestResult, n)
	for i := range out {
		out[i] = ports.TestResult{Name: fmt.Sprintf("case_%d", i), Passed: false}
	}
	return out
}

// FakeAdvisor returns a scripted response (or error) from Consult.
type FakeAdvisor struct {
	Response     ports.AdvisorResponse
	Err          error
	ConsultFunc  func(ctx context.Context, req ports.ConsultRequest) (ports.AdvisorResponse, error)
	Requests     []ports.ConsultRequest
}

func (f *FakeAdvisor) Consult(ctx context.Context, req ports.ConsultRequest) (ports.AdvisorResponse, error) {
	f.Requests = append(f.Requests, req)
	if f.ConsultFunc != nil {
		return f.ConsultFunc(ctx, req)
	}
	if f.Err != nil {
		return ports.AdvisorResponse{}, f.Err
	}
	return f.Response, nil
}

var _ ports.Advisor = (*FakeAdvisor)(nil)

// FakeSanitizer returns a scripted SanitizeResult (or error) from Sanitize.
type FakeSanitizer struct {
	Result        ports.SanitizeResult
	Err           error
	SanitizeFunc  func(ctx context.Context, code string, constraints ports.SanitizeConstraints) (ports.SanitizeResult, error)
}

func (f *FakeSanitizer) Sanitize(ctx context.Context, code string, constraints ports.SanitizeConstraints) (ports.SanitizeResult, error) {
	if f.SanitizeFunc != nil {
		return f.SanitizeFunc(ctx, code, constraints)
	}
	if f.Err != nil {
		return ports.SanitizeResult{}, f.Err
	}
	return f.Result, nil
}

var _ ports.Sanitizer = (*FakeSanitizer)(nil)
