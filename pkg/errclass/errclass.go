// Package errclass defines the closed set of error classes an attempt can be
// tagged with (spec.md §3), along with the severity ordering the cascade
// tracker (pkg/cascade) uses to detect escalating error chains.
package errclass

import (
	"errors"
	"fmt"
)

// Class is one of the five error classes a patch attempt is tagged with.
type Class int

const (
	Syntax Class = iota
	Logic
	Runtime
	Performance
	Security
)

// All lists the closed set in a stable order, used for validation and
// iteration (e.g. building per-class breaker budgets).
var All = []Class{Syntax, Logic, Runtime, Performance, Security}

func (c Class) String() string {
	switch c {
	case Syntax:
		return "syntax"
	case Logic:
		return "logic"
	case Runtime:
		return "runtime"
	case Performance:
		return "performance"
	case Security:
		return "security"
	default:
		return "unknown"
	}
}

// Parse maps a case-sensitive string to a Class, erroring on anything
// outside the closed set (spec.md §7: "unknown error class" is InvalidInput).
func Parse(s string) (Class, error) {
	for _, c := range All {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("errclass: %w: %q", errUnknown, s)
}

var errUnknown = errors.New("unknown error class")

// severityRank orders classes by severity, highest first, per spec.md §4.3:
// Security > Runtime > Logic > Syntax > Performance.
var severityRank = map[Class]int{
	Security:    4,
	Runtime:     3,
	Logic:       2,
	Syntax:      1,
	Performance: 0,
}

// Severity returns a comparable severity rank for c; higher is more severe.
func Severity(c Class) int { return severityRank[c] }

// MoreSevere reports whether a is strictly more severe than b.
func MoreSevere(a, b Class) bool { return Severity(a) > Severity(b) }

// Bucket maps a class onto the breaker's two sub-budgets (spec.md §3:
// "SyntaxOpen, LogicOpen collapse into Open at the envelope level"). Logic
// and Runtime share the logic budget; everything else not Syntax shares it
// too, since the breaker's dual budgets are Syntax vs. "everything else"
// (spec.md §6 only defines syntax_* and logic_* policy knobs).
type Bucket int

const (
	SyntaxBucket Bucket = iota
	LogicBucket
)

func (b Bucket) String() string {
	if b == SyntaxBucket {
		return "syntax"
	}
	return "logic"
}

// BucketFor returns the breaker bucket a class falls into.
func BucketFor(c Class) Bucket {
	if c == Syntax {
		return SyntaxBucket
	}
	return LogicBucket
}
