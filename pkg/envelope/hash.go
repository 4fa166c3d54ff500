package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashSubset is the non-volatile view of the envelope the stable hash is
// computed over: attempts, timestamp, timeline, developer_message, and
// developer_flag_reason are excluded (spec.md §3 invariant), along with
// envelope_hash itself.
type hashSubset struct {
	PatchID              string              `json:"patch_id"`
	PatchData            PatchData           `json:"patch_data"`
	ConfidenceComponents confidence2         `json:"confidenceComponents"`
	BreakerState         string              `json:"breakerState"`
	CascadeDepth         int                 `json:"cascadeDepth"`
	ResourceUsage        interface{}         `json:"resourceUsage"`
	TrendMetadata        interface{}         `json:"trendMetadata"`
	Success              bool                `json:"success"`
	Counters             Counters            `json:"counters"`
	Flagged              bool                `json:"flagged_for_developer"`
}

// confidence2 mirrors confidence.Score's fields explicitly so this file
// doesn't need to import the confidence package just to re-shape it.
type confidence2 struct {
	Overall           float64 `json:"overall"`
	Syntax            float64 `json:"syntax"`
	Logic             float64 `json:"logic"`
	Risk              float64 `json:"risk"`
	CalibrationMethod string  `json:"calibration_method"`
}

// computeHash canonicalizes the envelope's non-volatile subset (sorted
// keys, at every nesting level) and returns its SHA-256 hex digest
// (spec.md §4.7 "Stable hash", grounded on orchestration/cache.go's
// canonical-JSON + sha256 cache-key pattern).
func computeHash(e *PatchEnvelope) (string, error) {
	subset := hashSubset{
		PatchID:   e.patchID,
		PatchData: e.patchData,
		ConfidenceComponents: confidence2{
			Overall:           e.confidenceComponents.Overall,
			Syntax:            e.confidenceComponents.Syntax,
			Logic:             e.confidenceComponents.Logic,
			Risk:              e.confidenceComponents.Risk,
			CalibrationMethod: string(e.confidenceComponents.CalibrationMethod),
		},
		BreakerState:  string(e.breakerState),
		CascadeDepth:  e.cascadeDepth,
		ResourceUsage: e.resourceUsage,
		TrendMetadata: e.trendMetadata,
		Success:       e.success,
		Counters:      e.counters,
		Flagged:       e.developerFlag.Flagged,
	}

	raw, err := json.Marshal(subset)
	if err != nil {
		return "", err
	}

	// Round-trip through a generic value so every nesting level, not just
	// the top, serializes with sorted keys.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
