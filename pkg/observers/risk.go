// Package observers implements the read-only Observers (spec.md §4.4,
// §4.5): a risk flagger that keyword-matches a proposed patch before any
// sandbox execution, and a hang watchdog that escalates severity across
// consecutive resource/time anomalies. Both are grounded on gomind's
// orchestration/hitl_policy.go gate-before-action pattern (evaluate first,
// let the caller decide whether to short-circuit), generalized from its
// single human-in-the-loop keyword gate to the spec's two distinct
// observers.
package observers

import "strings"

// RiskFlag is one matched risky keyword (spec.md §4.4).
type RiskFlag struct {
	Keyword string `json:"keyword"`
	Snippet string `json:"snippet"`
}

const maxSnippetLen = 50

// RiskObserver flags a candidate patch against a policy-provided keyword
// set, case-insensitively.
type RiskObserver struct {
	keywords []string
}

// NewRiskObserver creates a RiskObserver over the given keyword set.
func NewRiskObserver(keywords []string) *RiskObserver {
	kw := make([]string, len(keywords))
	copy(kw, keywords)
	return &RiskObserver{keywords: kw}
}

// Evaluate flags keywords that appear more often in patchCode than they
// already did in originalCode, so pre-existing risky terms the patch
// merely carries forward don't re-trigger human review on every attempt.
func (r *RiskObserver) Evaluate(patchCode, originalCode string) []RiskFlag {
	lowerPatch := strings.ToLower(patchCode)
	lowerOriginal := strings.ToLower(originalCode)

	var flags []RiskFlag
	for _, keyword := range r.keywords {
		lk := strings.ToLower(keyword)
		if lk == "" {
			continue
		}
		patchCount := strings.Count(lowerPatch, lk)
		if patchCount == 0 {
			continue
		}
		originalCount := strings.Count(lowerOriginal, lk)
		if patchCount <= originalCount {
			continue
		}
		flags = append(flags, RiskFlag{
			Keyword: keyword,
			Snippet: snippetAround(patchCode, lowerPatch, lk),
		})
	}
	return flags
}

// snippetAround returns up to maxSnippetLen characters of source centered
// on the first occurrence of needle (matched against lowered), preserving
// the original casing in the result.
func snippetAround(source, lowered, needle string) string {
	idx := strings.Index(lowered, needle)
	if idx < 0 {
		return truncate(source, maxSnippetLen)
	}
	start := idx - (maxSnippetLen-len(needle))/2
	if start < 0 {
		start = 0
	}
	end := start + maxSnippetLen
	if end > len(source) {
		end = len(source)
		start = end - maxSnippetLen
		if start < 0 {
			start = 0
		}
	}
	return source[start:end]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
