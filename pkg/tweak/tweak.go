// Package tweak implements the minimal syntactic tweak (spec.md §4.9): a
// conservative, non-semantic last-resort backstop applied when the
// backoff/consult loop has no accepted advisor proposal. It is deliberately
// not a fixer — just five narrow, reversible transformations. New code;
// grounded on the spec's own enumeration of the five rules (no teacher file
// does line-level source patching, so there's nothing in the pack to adapt
// here beyond simple string scanning, which the pack already leans on
// stdlib for elsewhere — see resilience/retry.go's own lack of a parsing
// dependency).
package tweak

import "strings"

// Apply runs the five conservative rules from spec.md §4.9 against code, in
// order, and returns the result. Each rule only fires when its narrow
// pattern matches; anything else is left untouched.
func Apply(code string) string {
	lines := strings.Split(code, "\n")
	lines = insertMissingObjectCommas(lines)
	lines = closeUnclosedCallOnSameLine(lines)
	lines = addMissingTrailingSemicolons(lines)
	lines = replaceSingleQuotedLogArgs(lines)
	result := strings.Join(lines, "\n")
	result = balanceBrackets(result)
	return result
}

// insertMissingObjectCommas inserts a missing comma between two
// `key: value` lines of an object literal.
func insertMissingObjectCommas(lines []string) []string {
	kvLine := func(s string) bool {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" || strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, "{") {
			return false
		}
		colon := strings.Index(trimmed, ":")
		return colon > 0 && !strings.HasPrefix(trimmed, "//")
	}

	out := make([]string, len(lines))
	copy(out, lines)
	for i := 0; i < len(out)-1; i++ {
		if kvLine(out[i]) && kvLine(out[i+1]) {
			out[i] = strings.TrimRight(out[i], " \t") + ","
		}
	}
	return out
}

// closeUnclosedCallOnSameLine appends a closing paren to a line whose
// parenthesis count is unbalanced by exactly one opener, on the same line.
func closeUnclosedCallOnSameLine(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		opens := strings.Count(line, "(")
		closes := strings.Count(line, ")")
		if opens == closes+1 {
			trimmed := strings.TrimRight(line, " \t")
			semicolon := strings.HasSuffix(trimmed, ";")
			if semicolon {
				trimmed = trimmed[:len(trimmed)-1] + ")" + ";"
			} else {
				trimmed += ")"
			}
			out[i] = trimmed
		} else {
			out[i] = line
		}
	}
	return out
}

// addMissingTrailingSemicolons adds a missing trailing semicolon to simple
// let/const/return lines.
func addMissingTrailingSemicolons(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		isSimple := strings.HasPrefix(trimmed, "let ") ||
			strings.HasPrefix(trimmed, "const ") ||
			strings.HasPrefix(trimmed, "return ") ||
			trimmed == "return"
		needsSemicolon := isSimple && trimmed != "" &&
			!strings.HasSuffix(trimmed, ";") &&
			!strings.HasSuffix(trimmed, "{") &&
			!strings.HasSuffix(trimmed, ",")
		if needsSemicolon {
			out[i] = strings.TrimRight(line, " \t") + ";"
		} else {
			out[i] = line
		}
	}
	return out
}

// replaceSingleQuotedLogArgs replaces stray single-quoted log arguments
// with double quotes on console.log/console.error-style calls.
func replaceSingleQuotedLogArgs(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.Contains(line, "console.") && strings.Contains(line, "'") {
			out[i] = strings.ReplaceAll(line, "'", "\"")
		} else {
			out[i] = line
		}
	}
	return out
}

// balanceBrackets globally balances (){}[] by appending closing tokens at
// EOF, in the order their openers last appeared unmatched.
func balanceBrackets(code string) string {
	pairs := map[rune]rune{'(': ')', '{': '}', '[': ']'}
	closers := map[rune]rune{')': '(', '}': '{', ']': '['}

	var stack []rune
	for _, r := range code {
		switch r {
		case '(', '{', '[':
			stack = append(stack, r)
		case ')', '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == closers[r] {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 {
		return code
	}

	var b strings.Builder
	b.WriteString(code)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteRune(pairs[stack[i]])
	}
	return b.String()
}
