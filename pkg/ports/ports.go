// Package ports declares the external collaborators the decision engine and
// session loop depend on (spec.md §6): sandbox execution, advisor consult,
// patch sanitization, clock, randomness, and the chat transcript store. The
// engine only ever depends on these interfaces; concrete implementations
// (HTTP sandboxes, LLM advisors, a real RNG) are wired in by the caller, the
// way gomind's core package depends on its own Logger/Discovery interfaces
// rather than a concrete backend.
package ports

import (
	"context"
	"time"
)

// TestResult is one test outcome reported by the sandbox.
type TestResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Limits bounds a sandbox execution (spec.md §3 ResourceUsage.limits).
type Limits struct {
	MaxWallMS      int64 `json:"max_wall_ms"`
	MaxMemoryMB    int64 `json:"max_memory_mb"`
	MaxCPUPercent  int64 `json:"max_cpu_percent"`
}

// Observed is what the sandbox measured while running a patch (spec.md §3
// ResourceUsage.observed).
type Observed struct {
	WallMS     int64 `json:"wall_ms"`
	MemoryMB   int64 `json:"memory_mb"`
	CPUPercent int64 `json:"cpu_percent"`
	LimitsHit  LimitsHit `json:"limits_hit"`
}

// LimitsHit flags which specific limit(s) were exceeded.
type LimitsHit struct {
	Time   bool `json:"time"`
	Memory bool `json:"memory"`
	CPU    bool `json:"cpu"`
}

// ResourceUsage combines configured limits with what was observed.
type ResourceUsage struct {
	Limits   Limits   `json:"limits"`
	Observed Observed `json:"observed"`
}

// SandboxResult is the outcome of one sandbox execution.
type SandboxResult struct {
	Success       bool          `json:"success"`
	TestResults   []TestResult  `json:"test_results"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ResourceUsage ResourceUsage `json:"resource_usage"`
}

// Sandbox is the bounded execution surface the engine drives a candidate
// patch through. It never runs in-process; the core treats it as an opaque
// port (spec.md §1 Non-goals: "executing arbitrary user code outside the
// sandbox port" is explicitly not this module's job).
type Sandbox interface {
	Execute(ctx context.Context, patchID, language, patchedCode, originalCode string) (SandboxResult, error)
}

// AdvisorResponse is the raw text returned by the advisor; it may embed a
// fenced code block the sanitizer is responsible for extracting.
type AdvisorResponse struct {
	Text string `json:"text"`
}

// ConsultRequest is the prompt payload sent to the advisor during a backoff
// consult (spec.md §4.9): the current error, original code, last patch,
// language, the last envelope snapshot, and similar past outcomes.
type ConsultRequest struct {
	ErrorMessage     string      `json:"error_message"`
	OriginalCode     string      `json:"original_code"`
	LastPatch        string      `json:"last_patch"`
	Language         string      `json:"language"`
	LastEnvelope     interface{} `json:"last_envelope,omitempty"`
	SimilarOutcomes  []string    `json:"similar_outcomes,omitempty"`
}

// Advisor is the external code-generation consultant. Its suggestions are
// inherently unreliable (spec.md §1); the engine never trusts a proposal
// without routing it through a Sanitizer first.
type Advisor interface {
	Consult(ctx context.Context, req ConsultRequest) (AdvisorResponse, error)
}

// SanitizeConstraints bounds what a sanitizer will accept from an advisor
// proposal.
type SanitizeConstraints struct {
	MaxLinesChanged  int
	DisallowKeywords []string
}

// SanitizeResult is the sanitizer's verdict on a proposed patch.
type SanitizeResult struct {
	OK     bool
	Code   string
	Reason string
}

// Sanitizer validates/extracts a code proposal before it is ever applied.
type Sanitizer interface {
	Sanitize(ctx context.Context, code string, constraints SanitizeConstraints) (SanitizeResult, error)
}

// Clock is the deterministic time source every wait/backoff computation goes
// through, so sessions are reproducible under test.
type Clock interface {
	NowMS() int64
	Sleep(ctx context.Context, d time.Duration)
}

// RNG is the deterministic jitter source for backoff computations.
type RNG interface {
	Uniform(a, b float64) float64
}

// Role is the closed set of chat transcript speakers (spec.md §3
// ChatMessage).
type Role string

const (
	RoleSystem Role = "System"
	RoleUser   Role = "User"
	RoleAI     Role = "AI"
	RoleTool   Role = "Tool"
)

// ChatMessage is one append-only transcript entry (spec.md §3).
type ChatMessage struct {
	Role    Role                   `json:"role"`
	Content string                 `json:"content"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	TsMS    int64                  `json:"ts"`
}

// ChatStore is the append-only consult transcript port (spec.md §6: "Chat
// store: append(role, content, meta?), tail(n)").
type ChatStore interface {
	Append(ctx context.Context, role Role, content string, meta map[string]interface{}) error
	Tail(ctx context.Context, n int) ([]ChatMessage, error)
}
