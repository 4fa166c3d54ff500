package ports

import (
	"context"
	"strings"
)

// MockSandbox is a deterministic, no-dependency demo Sandbox: it declares a
// patch successful when its brackets balance and it doesn't match any of its
// configured failure substrings, and unsuccessful otherwise. It exists so
// cmd/selfhealctl has something to run against without a real execution
// backend, the same role the registry viewer's "-mock" flag plays against a
// real discovery backend.
type MockSandbox struct {
	// FailSubstrings forces a failure whenever patchedCode contains one of
	// these (case-sensitive), regardless of bracket balance.
	FailSubstrings []string
}

// Execute implements Sandbox.
func (m *MockSandbox) Execute(_ context.Context, _, _, patchedCode, _ string) (SandboxResult, error) {
	for _, bad := range m.FailSubstrings {
		if bad != "" && strings.Contains(patchedCode, bad) {
			return SandboxResult{
				Success:      false,
				ErrorMessage: "forced failure: contains " + bad,
				TestResults:  []TestResult{{Name: "contains_check", Passed: false, Message: bad}},
			}, nil
		}
	}

	if bracketsBalanced(patchedCode) {
		return SandboxResult{
			Success:     true,
			TestResults: []TestResult{{Name: "bracket_balance", Passed: true}},
		}, nil
	}

	return SandboxResult{
		Success:      false,
		ErrorMessage: "unbalanced brackets",
		TestResults:  []TestResult{{Name: "bracket_balance", Passed: false, Message: "unbalanced brackets"}},
	}, nil
}

func bracketsBalanced(code string) bool {
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	var stack []rune
	for _, r := range code {
		switch r {
		case '(', '{', '[':
			stack = append(stack, r)
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

var _ Sandbox = (*MockSandbox)(nil)
