package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/datamind/dispatch/internal/core"
)

const complexitySystemPrompt = `You are a query complexity estimator for a data analytics AI platform.
Score the complexity of the user query from 0.0 to 1.0 based on:

- 0.0-0.35 SIMPLE: Single table lookup, basic aggregation, factual question
  Example: "Show total sales for last month"
- 0.35-0.65 MEDIUM: Multi-step analysis, comparisons, joins across 2-3 tables
  Example: "Compare revenue across regions and highlight top performers"
- 0.65-0.85 COMPLEX: Causal analysis, multi-hop reasoning, statistical tests
  Example: "What factors drove the Q3 revenue drop? Show contributing variables"
- 0.85-1.0 EXPERT: Causal inference, forecasting with confounders, hypothesis testing
  Example: "Build a causal model to estimate the impact of the price change on churn"

Respond ONLY with valid JSON:
{"score": <0.0-1.0>, "level": "<simple|medium|complex|expert>", "factors": ["factor1", "factor2"]}`

var complexWords = []string{
	"why", "cause", "because", "explain why", "reason",
	"compare", "correlation", "regression", "statistical",
	"forecast", "predict", "causal", "hypothesis",
	"multi", "across", "segment", "cohort", "attribution",
	"counterfactual", "confound", "a/b test", "significance",
}

var mediumWords = []string{
	"trend", "breakdown", "by region", "by segment", "over time",
	"growth", "change", "vs", "versus", "top", "bottom", "rank",
	"percentage", "ratio", "average", "group by",
}

// Thresholds are the complexity bucket boundaries on the raw 0..1 score.
type Thresholds struct {
	SimpleMax  float64
	MediumMax  float64
	ComplexMax float64
}

// DefaultThresholds match the published bucket boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{SimpleMax: 0.35, MediumMax: 0.65, ComplexMax: 0.85}
}

// Bucket maps a raw score onto its complexity level.
func (t Thresholds) Bucket(score float64) core.ComplexityLevel {
	switch {
	case score <= t.SimpleMax:
		return core.ComplexitySimple
	case score <= t.MediumMax:
		return core.ComplexityMedium
	case score <= t.ComplexMax:
		return core.ComplexityComplex
	default:
		return core.ComplexityExpert
	}
}

// HeuristicComplexity estimates complexity without the SLM: a 0.20
// baseline plus keyword and length bonuses, then bucketed.
func HeuristicComplexity(query string, t Thresholds) (float64, core.ComplexityLevel) {
	q := strings.ToLower(query)
	score := 0.20

	for _, w := range complexWords {
		if strings.Contains(q, w) {
			score += 0.08
		}
	}
	for _, w := range mediumWords {
		if strings.Contains(q, w) {
			score += 0.04
		}
	}

	words := len(strings.Fields(query))
	if words >= 50 {
		score += 0.10
	} else if words >= 25 {
		score += 0.05
	}

	score = clamp01(score)
	return score, t.Bucket(score)
}

// SLMComplexityScorer asks the SLM backend for a complexity estimate and
// falls back to the keyword heuristic on any failure.
type SLMComplexityScorer struct {
	client     *OllamaClient
	model      string
	thresholds Thresholds
}

// NewSLMComplexityScorer wires the scorer to a shared Ollama client.
func NewSLMComplexityScorer(client *OllamaClient, model string, t Thresholds) *SLMComplexityScorer {
	return &SLMComplexityScorer{client: client, model: model, thresholds: t}
}

type complexityReply struct {
	Score   float64  `json:"score"`
	Level   string   `json:"level"`
	Factors []string `json:"factors"`
}

// Score returns (raw score, level, confidence). Primary confidence is
// 0.82; the heuristic fallback reports 0.65.
func (c *SLMComplexityScorer) Score(ctx context.Context, query string) (float64, core.ComplexityLevel, float64, error) {
	content, err := c.client.Chat(ctx, c.model, complexitySystemPrompt, query)
	if err != nil {
		return c.fallback(query, err)
	}

	raw, err := extractJSON(content)
	if err != nil {
		return c.fallback(query, err)
	}

	var reply complexityReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return c.fallback(query, err)
	}

	score := clamp01(reply.Score)
	level, err := core.ParseComplexityLevel(reply.Level)
	if err != nil {
		// keep the score, rebucket it locally
		level = c.thresholds.Bucket(score)
	}
	return score, level, 0.82, nil
}

func (c *SLMComplexityScorer) fallback(query string, cause error) (float64, core.ComplexityLevel, float64, error) {
	slog.Warn("complexity scorer fell back to heuristic", "error", cause)
	score, level := HeuristicComplexity(query, c.thresholds)
	return score, level, 0.65, nil
}
