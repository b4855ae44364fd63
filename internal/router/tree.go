package router

import (
	"fmt"

	"github.com/datamind/dispatch/internal/core"
)

// TierModels maps intent → model name per tier, with a "default" entry per
// tier. The decision tree never inspects its contents; swapping models is a
// configuration change, not a code change.
type TierModels map[core.InferenceTier]map[string]string

// LatencyBudgets is the published per-tier latency budget in milliseconds.
type LatencyBudgets map[core.InferenceTier]int

// SelectModel picks the model for a tier by intent, falling back to the
// tier's default entry.
func (m TierModels) SelectModel(tier core.InferenceTier, intent core.IntentLabel) string {
	tierMap := m[tier]
	if model, ok := tierMap[string(intent)]; ok {
		return model
	}
	return tierMap["default"]
}

// DetermineTier is the core routing decision tree. Pure function; rules
// evaluate top-down, first match wins.
//
// Rule 1 is the safety gate: restricted or confidential data never leaves
// the premises. Nothing — not a forced tier, not a confidence override,
// not a cache entry — may bypass it.
func DetermineTier(
	complexity core.ComplexityLevel,
	sensitivity core.SensitivityLevel,
	intentConfidence float64,
	complexityScore float64,
	confidenceThreshold float64,
) (core.InferenceTier, string) {
	// 1. Safety gate
	if sensitivity == core.SensitivityRestricted || sensitivity == core.SensitivityConfidential {
		if complexity == core.ComplexityExpert {
			return core.TierRLM, fmt.Sprintf("RLM local (sensitivity=%s, complexity=expert)", sensitivity)
		}
		return core.TierSLM, fmt.Sprintf("Local SLM enforced (sensitivity=%s)", sensitivity)
	}

	// 2. Low confidence on intent → escalate to cloud
	if intentConfidence < confidenceThreshold {
		return core.TierCloud, fmt.Sprintf("Escalated: low SLM confidence (%.2f)", intentConfidence)
	}

	// 3. Only very simple queries are edge-viable
	if complexity == core.ComplexitySimple && complexityScore <= 0.35 {
		return core.TierEdge, "Edge: simple query, high confidence"
	}

	// 4./5. Simple, medium, and complex all go to cloud
	if complexity == core.ComplexitySimple || complexity == core.ComplexityMedium {
		return core.TierCloud, fmt.Sprintf("Cloud LLM: complexity=%s", complexity)
	}
	if complexity == core.ComplexityComplex {
		return core.TierCloud, "Cloud LLM: complex query (no reasoning chain needed)"
	}

	// 6. Expert on public/internal data → local reasoning model
	return core.TierRLM, fmt.Sprintf("RLM: expert complexity (score=%.2f)", complexityScore)
}
