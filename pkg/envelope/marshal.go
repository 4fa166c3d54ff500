package envelope

import "encoding/json"

// serializedForm is the wire shape of a terminal envelope (spec.md §6
// "Terminal envelopes serialize with canonical field names", §9 "Alias
// duplication"): flagged_for_developer/flaggedForDeveloper and
// developer_message/developerMessage are written as duplicate pairs from
// the single in-memory developerFlag.
type serializedForm struct {
	PatchID              string          `json:"patch_id"`
	PatchData            PatchData       `json:"patch_data"`
	Attempts             []AttemptRecord `json:"attempts"`
	ConfidenceComponents interface{}     `json:"confidenceComponents"`
	BreakerState         string          `json:"breakerState"`
	CascadeDepth         int             `json:"cascadeDepth"`
	ResourceUsage        interface{}     `json:"resourceUsage"`
	TrendMetadata        interface{}     `json:"trendMetadata"`
	Success              bool            `json:"success"`
	Timeline             []TimelineEntry `json:"timeline"`
	Counters             Counters        `json:"counters"`
	Timestamp            string          `json:"timestamp"`
	EnvelopeHash         string          `json:"envelope_hash"`

	FlaggedSnake          bool   `json:"flagged_for_developer"`
	FlaggedCamel          bool   `json:"flaggedForDeveloper"`
	DeveloperMessageSnake string `json:"developer_message,omitempty"`
	DeveloperMessageCamel string `json:"developerMessage,omitempty"`
	DeveloperFlagReason   string `json:"developer_flag_reason,omitempty"`
}

// MarshalJSON implements json.Marshaler, writing the envelope's alias pairs
// alongside its canonical fields.
func (e *PatchEnvelope) MarshalJSON() ([]byte, error) {
	form := serializedForm{
		PatchID:               e.patchID,
		PatchData:             e.patchData,
		Attempts:              e.attempts,
		ConfidenceComponents:  e.confidenceComponents,
		BreakerState:          string(e.breakerState),
		CascadeDepth:          e.cascadeDepth,
		ResourceUsage:         e.resourceUsage,
		TrendMetadata:         e.trendMetadata,
		Success:               e.success,
		Timeline:              e.timeline,
		Counters:              e.counters,
		Timestamp:             e.timestamp,
		EnvelopeHash:          e.envelopeHash,
		FlaggedSnake:          e.developerFlag.Flagged,
		FlaggedCamel:          e.developerFlag.Flagged,
		DeveloperMessageSnake: e.developerFlag.Message,
		DeveloperMessageCamel: e.developerFlag.Message,
		DeveloperFlagReason:   e.developerFlag.ReasonCode,
	}
	return json.Marshal(form)
}

var _ json.Marshaler = (*PatchEnvelope)(nil)
