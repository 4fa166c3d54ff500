// Package envelope implements the Patch Envelope (spec.md §3, §4.7): the
// canonical per-session state record, mutated only through a fixed set of
// single-responsibility helpers, with alias-pair serialization, a stable
// SHA-256 hash over a non-volatile field subset, and draft-07-style schema
// validation before any terminal emission. Grounded on gomind's
// orchestration/cache.go canonical-JSON hashing pattern, generalized from a
// cache key into the full envelope's audit hash.
package envelope

import (
	"github.com/itsneelabh/selfheal/pkg/breaker"
	"github.com/itsneelabh/selfheal/pkg/confidence"
	"github.com/itsneelabh/selfheal/pkg/ports"
)

// Verdict is the closed set of per-attempt/session decisions (spec.md §3).
type Verdict string

const (
	Promote         Verdict = "Promote"
	Retry           Verdict = "Retry"
	Rollback        Verdict = "Rollback"
	Stop            Verdict = "Stop"
	HumanReview     Verdict = "HumanReview"
	PauseAndBackoff Verdict = "PauseAndBackoff"
	StrategyChange  Verdict = "StrategyChange"
)

// IsTerminal reports whether v ends the session (spec.md §3: "Terminal
// verdicts: Promote, Rollback, HumanReview"). Stop also ends the session.
func (v Verdict) IsTerminal() bool {
	return v == Promote || v == Rollback || v == HumanReview || v == Stop
}

// BreakerSnapshot is the breaker view embedded in each attempt record
// (spec.md §3 Attempt record).
type BreakerSnapshot struct {
	State        breaker.State `json:"state"`
	FailureCount int           `json:"failure_count"`
}

// AttemptRecord is one append-only entry in Attempts (spec.md §3).
type AttemptRecord struct {
	ID              string          `json:"id"`
	Timestamp       string          `json:"timestamp"`
	Success         bool            `json:"success"`
	Note            string          `json:"note,omitempty"`
	BreakerSnapshot BreakerSnapshot `json:"breaker_snapshot"`
}

// TrendMetadata tracks the error trend across attempts (spec.md §3).
type TrendMetadata struct {
	ErrorsDetected      uint32         `json:"errors_detected"`
	ErrorsResolved      uint32         `json:"errors_resolved"`
	ErrorTrend          breaker.ErrorTrend `json:"error_trend"`
	CodeQualityScore    *float64       `json:"code_quality_score,omitempty"`
	ImprovementVelocity *float64       `json:"improvement_velocity,omitempty"`
	StagnationRisk      *float64       `json:"stagnation_risk,omitempty"`
}

// Counters tracks attempt totals (spec.md §3).
type Counters struct {
	Total              int `json:"total"`
	Syntax             int `json:"syntax"`
	Logic              int `json:"logic"`
	ErrorsResolvedTotal int `json:"errors_resolved_total"`
}

// TimelineEntry is one append-only audit log entry (spec.md §3 timeline[]).
type TimelineEntry struct {
	Timestamp string                 `json:"timestamp"`
	Event     string                 `json:"event"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// developerFlag is the in-memory representation of the envelope's human
// review flag; it serializes as two output alias pairs (spec.md §9
// "Alias duplication"): flagged_for_developer/flaggedForDeveloper and
// developer_message/developerMessage.
type developerFlag struct {
	Flagged    bool
	Message    string
	ReasonCode string
}

// PatchData holds the fields fixed at envelope creation (spec.md §3
// "Immutable after creation").
type PatchData struct {
	OriginalCode   string      `json:"original_code"`
	Language       string      `json:"language"`
	PolicySnapshot interface{} `json:"policy_snapshot,omitempty"`
}

// PatchEnvelope is the canonical per-session state record (spec.md §3). Its
// fields are only ever exported for JSON marshaling and schema validation
// purposes — mutation from outside this package must go through the helper
// methods in helpers.go.
type PatchEnvelope struct {
	patchID   string
	patchData PatchData

	attempts             []AttemptRecord
	confidenceComponents confidence.Score
	trendMetadata        TrendMetadata
	breakerState         breaker.State
	cascadeDepth         int
	resourceUsage        ports.ResourceUsage
	developerFlag        developerFlag
	success              bool
	timeline             []TimelineEntry
	counters             Counters

	timestamp    string
	envelopeHash string
}

// New creates a PatchEnvelope for a new session (spec.md §3 "Lifecycle: An
// envelope is created by the session loop on first entry").
func New(patchID, originalCode, language string, policySnapshot interface{}) *PatchEnvelope {
	return &PatchEnvelope{
		patchID: patchID,
		patchData: PatchData{
			OriginalCode:   originalCode,
			Language:       language,
			PolicySnapshot: policySnapshot,
		},
		breakerState: breaker.Closed,
	}
}

// PatchID returns the envelope's immutable session identifier.
func (e *PatchEnvelope) PatchID() string { return e.patchID }

// OriginalCode returns the envelope's immutable original code.
func (e *PatchEnvelope) OriginalCode() string { return e.patchData.OriginalCode }

// Language returns the envelope's immutable language tag.
func (e *PatchEnvelope) Language() string { return e.patchData.Language }

// Success reports the envelope's latching success flag.
func (e *PatchEnvelope) Success() bool { return e.success }

// CascadeDepth reports the last-recorded cascade depth.
func (e *PatchEnvelope) CascadeDepth() int { return e.cascadeDepth }

// BreakerState reports the last-recorded breaker state.
func (e *PatchEnvelope) BreakerState() breaker.State { return e.breakerState }

// ConfidenceComponents reports the last-recorded confidence score.
func (e *PatchEnvelope) ConfidenceComponents() confidence.Score { return e.confidenceComponents }

// Counters reports the current attempt counters.
func (e *PatchEnvelope) Counters() Counters { return e.counters }

// TrendMetadata reports the last-recorded error trend, the session loop's
// source for the backoff policy's improving/velocity inputs.
func (e *PatchEnvelope) TrendMetadata() TrendMetadata { return e.trendMetadata }

// Attempts returns a defensive copy of the append-only attempt log.
func (e *PatchEnvelope) Attempts() []AttemptRecord {
	out := make([]AttemptRecord, len(e.attempts))
	copy(out, e.attempts)
	return out
}

// Timeline returns a defensive copy of the append-only timeline.
func (e *PatchEnvelope) Timeline() []TimelineEntry {
	out := make([]TimelineEntry, len(e.timeline))
	copy(out, e.timeline)
	return out
}

// EnvelopeHash returns the last-computed stable hash, empty until SetHash
// has been called.
func (e *PatchEnvelope) EnvelopeHash() string { return e.envelopeHash }

// Timestamp returns the last-set finalization timestamp.
func (e *PatchEnvelope) Timestamp() string { return e.timestamp }

// DeveloperFlagged reports whether the envelope has been flagged for human
// review.
func (e *PatchEnvelope) DeveloperFlagged() bool { return e.developerFlag.Flagged }

// DeveloperMessage returns the developer-facing message, if any.
func (e *PatchEnvelope) DeveloperMessage() string { return e.developerFlag.Message }
