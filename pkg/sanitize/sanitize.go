// Package sanitize implements the Sanitizer port (spec.md §4.9, §6):
// extracting a fenced code block from an advisor's raw text response and
// checking it against policy constraints before the session loop ever
// applies it. Grounded on the general gate-before-apply shape the teacher
// uses around its own AI provider responses (ai/client.go never lets an
// OpenAI completion reach a caller unvalidated), generalized here to the
// spec's explicit extract-then-constrain contract.
package sanitize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n?(.*?)```")

// ExtractFencedCodeBlock returns the contents of the first fenced code
// block in text, if any.
func ExtractFencedCodeBlock(text string) (string, bool) {
	m := fencedBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Sanitizer is the default ports.Sanitizer: extract any fenced block, then
// reject on constraint violations.
type Sanitizer struct{}

// New creates a Sanitizer.
func New() *Sanitizer { return &Sanitizer{} }

var _ ports.Sanitizer = (*Sanitizer)(nil)

// Sanitize implements ports.Sanitizer (spec.md §4.9).
func (Sanitizer) Sanitize(_ context.Context, code string, constraints ports.SanitizeConstraints) (ports.SanitizeResult, error) {
	extracted := code
	if block, ok := ExtractFencedCodeBlock(code); ok {
		extracted = block
	}
	extracted = strings.Trim(extracted, "\n")

	if extracted == "" {
		return ports.SanitizeResult{OK: false, Reason: "empty proposal"}, nil
	}

	if constraints.MaxLinesChanged > 0 {
		if n := countNonBlankLines(extracted); n > constraints.MaxLinesChanged {
			return ports.SanitizeResult{
				OK:     false,
				Reason: fmt.Sprintf("proposal changes %d lines, exceeding max_lines_changed=%d", n, constraints.MaxLinesChanged),
			}, nil
		}
	}

	lowered := strings.ToLower(extracted)
	for _, keyword := range constraints.DisallowKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return ports.SanitizeResult{
				OK:     false,
				Reason: fmt.Sprintf("proposal contains disallowed keyword %q", keyword),
			}, nil
		}
	}

	return ports.SanitizeResult{OK: true, Code: extracted}, nil
}

func countNonBlankLines(s string) int {
	count := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
