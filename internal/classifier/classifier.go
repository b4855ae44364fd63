// Package classifier implements the three classification axes the router
// fans out over: intent, complexity, and sensitivity. Intent and complexity
// have an SLM-backed primary and a deterministic fallback; sensitivity is
// rule-based only and never leaves the process.
package classifier

import (
	"context"

	"github.com/datamind/dispatch/internal/core"
)

// IntentClassifier labels a query with one of the 12 intent categories.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) (core.IntentLabel, float64, error)
}

// ComplexityScorer estimates query complexity as a raw score in [0,1],
// a bucketed level, and a confidence.
type ComplexityScorer interface {
	Score(ctx context.Context, query string) (float64, core.ComplexityLevel, float64, error)
}

// SensitivityDetector classifies the regulatory class of a query.
// Implementations must be synchronous and sub-millisecond.
type SensitivityDetector interface {
	Detect(query string) (core.SensitivityLevel, float64)
}
