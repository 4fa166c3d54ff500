package tweak

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertsMissingObjectComma(t *testing.T) {
	code := "const obj = {\n  a: 1\n  b: 2\n};"
	out := Apply(code)
	assert.Contains(t, out, "a: 1,")
}

func TestClosesUnclosedCallOnSameLine(t *testing.T) {
	code := `console.log("x"`
	out := Apply(code)
	assert.Contains(t, out, `console.log("x")`)
}

func TestAddsMissingTrailingSemicolon(t *testing.T) {
	code := "let x = 5\nreturn x"
	out := Apply(code)
	assert.Contains(t, out, "let x = 5;")
	assert.Contains(t, out, "return x;")
}

func TestReplacesSingleQuotedLogArgs(t *testing.T) {
	code := `console.log('hello')`
	out := Apply(code)
	assert.Contains(t, out, `console.log("hello")`)
}

func TestBalancesUnclosedBracketsAtEOF(t *testing.T) {
	code := "function f() { if (x) { return 1;"
	out := Apply(code)
	assert.Equal(t, strictBalance(out), true)
}

func TestLeavesAlreadyValidCodeUnchanged(t *testing.T) {
	code := "function add(a, b) {\n  return a + b;\n}"
	out := Apply(code)
	assert.Equal(t, code, out)
}

func strictBalance(s string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	for _, r := range s {
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
