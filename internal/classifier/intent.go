package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/datamind/dispatch/internal/core"
)

const intentSystemPrompt = `You are a query intent classifier for a data analytics platform.
Classify the user query into exactly ONE of these intent categories:

EDA       - exploratory data analysis, statistics, profiling, distributions
SQL       - requesting specific SQL queries or database lookups
FORECAST  - time-series prediction, trends, future values
ANOMALY   - outlier detection, unusual patterns, alerts
REPORT    - generate a report, summary, document, presentation
VISUALISE - create a chart, graph, plot, visualisation
CLEAN     - data cleaning, fixing errors, deduplication, imputation
MODEL     - machine learning, training a model, AutoML, feature engineering
EXPLAIN   - explain a concept, method, result, or code
SEARCH    - search knowledge base, find documents, semantic search
CODE      - write, review, debug, or explain code
GENERAL   - general question, greeting, or unclear intent

Respond ONLY with valid JSON:
{"intent": "<LABEL>", "confidence": <0.0-1.0>, "reasoning": "<1 sentence>"}`

// keyword sets per label, scanned in priority order; first hit wins.
var intentKeywordRules = []struct {
	keywords []string
	label    core.IntentLabel
}{
	{[]string{"forecast", "predict", "future", "trend", "arima", "prophet"}, core.IntentForecast},
	{[]string{"anomaly", "outlier", "unusual", "spike", "alert", "drift"}, core.IntentAnomaly},
	{[]string{"report", "summary", "document", "presentation", "pptx"}, core.IntentReport},
	{[]string{"chart", "plot", "graph", "visualis", "dashboard", "bar chart", "pie"}, core.IntentVisualise},
	{[]string{"clean", "deduplic", "missing", "null", "impute", "fix"}, core.IntentClean},
	{[]string{"train", "model", "automl", "feature", "sklearn", "xgboost"}, core.IntentModel},
	{[]string{"explain", "what is", "how does", "why"}, core.IntentExplain},
	{[]string{"search", "find documents", "knowledge base", "rag"}, core.IntentSearch},
	{[]string{"sql", "query", "select", "join", "where", "group by"}, core.IntentSQL},
	{[]string{"eda", "profile", "distribution", "statistics", "describe"}, core.IntentEDA},
	{[]string{"code", "python", "function", "script", "debug"}, core.IntentCode},
}

// RuleBasedIntent classifies by keyword scan. It backs the SLM classifier
// and doubles as a standalone classifier in tests.
func RuleBasedIntent(query string) (core.IntentLabel, float64) {
	q := strings.ToLower(query)
	for _, rule := range intentKeywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.label, 0.70
			}
		}
	}
	return core.IntentGeneral, 0.60
}

// SLMIntentClassifier asks the SLM backend for an intent label and falls
// back to the keyword rules on any failure.
type SLMIntentClassifier struct {
	client *OllamaClient
	model  string
}

// NewSLMIntentClassifier wires the classifier to a shared Ollama client.
func NewSLMIntentClassifier(client *OllamaClient, model string) *SLMIntentClassifier {
	return &SLMIntentClassifier{client: client, model: model}
}

type intentReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify returns (label, confidence). It never returns an error for
// backend failures; those degrade to the rule-based fallback.
func (c *SLMIntentClassifier) Classify(ctx context.Context, query string) (core.IntentLabel, float64, error) {
	content, err := c.client.Chat(ctx, c.model, intentSystemPrompt, query)
	if err != nil {
		return c.fallback(query, err)
	}

	raw, err := extractJSON(content)
	if err != nil {
		return c.fallback(query, err)
	}

	var reply intentReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return c.fallback(query, err)
	}

	label, err := core.ParseIntentLabel(reply.Intent)
	if err != nil {
		return c.fallback(query, err)
	}

	conf := reply.Confidence
	if conf == 0 {
		conf = 0.75
	}
	return label, clamp01(conf), nil
}

func (c *SLMIntentClassifier) fallback(query string, cause error) (core.IntentLabel, float64, error) {
	slog.Warn("intent classifier fell back to rules", "error", cause)
	label, conf := RuleBasedIntent(query)
	return label, conf, nil
}
