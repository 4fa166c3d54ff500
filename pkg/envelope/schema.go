package envelope

import (
	"fmt"

	"github.com/itsneelabh/selfheal/internal/errs"
	"github.com/itsneelabh/selfheal/pkg/breaker"
)

// Validate checks e against the envelope's fixed schema (spec.md §4.7,
// §6: "a draft-07 JSON schema describing required fields and enum
// constraints"). It is implemented on the standard library rather than a
// JSON-schema library: the example pack's only jsonschema/gojsonschema
// references are unused go.mod entries in unrelated repos, nothing in the
// pack actually invokes such a library, so there is no grounded third-party
// choice to adopt here. Validation failure is fatal (spec.md §7
// SchemaViolation).
func Validate(e *PatchEnvelope) error {
	if e.patchID == "" {
		return schemaErr("patch_id is required")
	}
	if e.patchData.Language == "" {
		return schemaErr("patch_data.language is required")
	}
	if e.timestamp == "" {
		return schemaErr("timestamp is required")
	}

	switch e.breakerState {
	case breaker.Closed, breaker.HalfOpen, breaker.Open:
	default:
		return schemaErr(fmt.Sprintf("breakerState %q is not one of Closed, HalfOpen, Open", e.breakerState))
	}

	switch e.trendMetadata.ErrorTrend {
	case breaker.TrendImproving, breaker.TrendWorsening, breaker.TrendPlateauing, breaker.TrendUnknown, "":
	default:
		return schemaErr(fmt.Sprintf("trendMetadata.error_trend %q is not one of Improving, Worsening, Plateauing, Unknown", e.trendMetadata.ErrorTrend))
	}

	if e.cascadeDepth < 0 {
		return schemaErr("cascadeDepth must be >= 0")
	}

	for name, v := range map[string]float64{
		"confidenceComponents.overall": e.confidenceComponents.Overall,
		"confidenceComponents.syntax":  e.confidenceComponents.Syntax,
		"confidenceComponents.logic":   e.confidenceComponents.Logic,
		"confidenceComponents.risk":    e.confidenceComponents.Risk,
	} {
		if v < 0 || v > 1 {
			return schemaErr(fmt.Sprintf("%s = %v is out of [0,1]", name, v))
		}
	}

	if len(e.attempts) != e.counters.Total {
		return schemaErr(fmt.Sprintf("attempts length (%d) must equal counters.total (%d)", len(e.attempts), e.counters.Total))
	}

	return nil
}

func schemaErr(msg string) error {
	return errs.New("envelope.Validate", "schema_violation", fmt.Errorf("%s: %w", msg, errs.ErrSchemaViolation))
}
