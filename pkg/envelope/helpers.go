package envelope

import (
	"github.com/google/uuid"

	"github.com/itsneelabh/selfheal/pkg/breaker"
	"github.com/itsneelabh/selfheal/pkg/confidence"
	"github.com/itsneelabh/selfheal/pkg/errclass"
	"github.com/itsneelabh/selfheal/pkg/ports"
)

// clamp01 bounds v into [0,1] (spec.md §3: "Every field in
// confidence_components, code_quality_score, improvement_velocity,
// stagnation_risk, risk is clamped to [0,1] on write").
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp01Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := clamp01(*v)
	return &c
}

// AppendAttempt appends one attempt record (spec.md §4.7 append_attempt).
// attempts is append-only: this is the only way a record is ever added.
func (e *PatchEnvelope) AppendAttempt(timestamp string, success bool, note string, snapshot BreakerSnapshot) {
	e.attempts = append(e.attempts, AttemptRecord{
		ID:              uuid.New().String(),
		Timestamp:       timestamp,
		Success:         success,
		Note:            note,
		BreakerSnapshot: snapshot,
	})
}

// MergeConfidence overwrites the envelope's confidence components with
// score, clamping every field into [0,1] (spec.md §4.7 merge_confidence).
func (e *PatchEnvelope) MergeConfidence(score confidence.Score) {
	score.Overall = clamp01(score.Overall)
	score.Syntax = clamp01(score.Syntax)
	score.Logic = clamp01(score.Logic)
	score.Risk = clamp01(score.Risk)
	e.confidenceComponents = score
}

// UpdateTrend overwrites the envelope's trend metadata, clamping the
// optional [0,1] fields (spec.md §4.7 update_trend).
func (e *PatchEnvelope) UpdateTrend(trend TrendMetadata) {
	trend.CodeQualityScore = clamp01Ptr(trend.CodeQualityScore)
	trend.ImprovementVelocity = clamp01Ptr(trend.ImprovementVelocity)
	trend.StagnationRisk = clamp01Ptr(trend.StagnationRisk)
	e.trendMetadata = trend
}

// SetBreakerState records the breaker's envelope-level state for the last
// completed attempt (spec.md §4.7 set_breaker_state).
func (e *PatchEnvelope) SetBreakerState(state breaker.State) {
	e.breakerState = state
}

// SetCascadeDepth records the cascade tracker's depth for the last
// completed attempt; negative depths are rejected as the invariant in
// spec.md §3 requires `cascade_depth >= 0` (spec.md §4.7 set_cascade_depth).
func (e *PatchEnvelope) SetCascadeDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	e.cascadeDepth = depth
}

// MergeResourceUsage overwrites the envelope's resource usage snapshot
// (spec.md §4.7 merge_resource_usage).
func (e *PatchEnvelope) MergeResourceUsage(usage ports.ResourceUsage) {
	e.resourceUsage = usage
}

// ApplyDeveloperFlag sets the developer review flag and its message/reason,
// keeping the flagged/flagged-for-developer and developer_message alias
// pairs consistent at serialization time (spec.md §4.7 apply_developer_flag,
// §9 "Alias duplication").
func (e *PatchEnvelope) ApplyDeveloperFlag(flagged bool, message, reasonCode string) {
	e.developerFlag = developerFlag{Flagged: flagged, Message: message, ReasonCode: reasonCode}
}

// MarkSuccess latches the envelope's success flag: once true, a later call
// with false is a no-op (spec.md §3 invariant: "success is monotonic").
func (e *PatchEnvelope) MarkSuccess(success bool) {
	if e.success {
		return
	}
	e.success = success
}

// SetTimestamp stamps the envelope's finalization timestamp (spec.md §4.7
// set_timestamp). Call before SetHash on every terminal step.
func (e *PatchEnvelope) SetTimestamp(iso8601 string) {
	e.timestamp = iso8601
}

// SetHash recomputes and stores the envelope's stable hash over its
// canonical non-volatile subset (spec.md §4.7 set_hash). Must be the last
// helper invoked in a terminal step (spec.md §5 "Ordering guarantees").
func (e *PatchEnvelope) SetHash() error {
	hash, err := computeHash(e)
	if err != nil {
		return err
	}
	e.envelopeHash = hash
	return nil
}

// UpdateCounters increments the envelope's attempt counters for one
// completed attempt of class, adding errorsResolved to the running total
// (spec.md §4.7 update_counters).
func (e *PatchEnvelope) UpdateCounters(class errclass.Class, errorsResolved int) {
	e.counters.Total++
	if errclass.BucketFor(class) == errclass.SyntaxBucket {
		e.counters.Syntax++
	} else {
		e.counters.Logic++
	}
	e.counters.ErrorsResolvedTotal += errorsResolved
}

// AddTimelineEntry appends one audit-log entry (spec.md §4.7
// add_timeline_entry). Like attempts, the timeline is append-only.
func (e *PatchEnvelope) AddTimelineEntry(timestamp, event string, details map[string]interface{}) {
	e.timeline = append(e.timeline, TimelineEntry{Timestamp: timestamp, Event: event, Details: details})
}
