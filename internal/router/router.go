// Package router implements the routing decision engine: fan-out
// classification, the tier decision tree, the fingerprint-keyed decision
// cache, and the safe-default envelope that makes Route total.
package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/datamind/dispatch/internal/classifier"
	"github.com/datamind/dispatch/internal/core"
	"github.com/datamind/dispatch/internal/infra"
)

// Options carry the routing configuration fixed at process start.
type Options struct {
	Models              TierModels
	Budgets             LatencyBudgets
	ConfidenceThreshold float64
	CacheTTL            time.Duration
}

// Router orchestrates the three classifiers, consults the decision cache,
// and applies the decision tree. It depends only on the classifier
// interfaces; implementations are chosen at wiring time.
type Router struct {
	intent      classifier.IntentClassifier
	complexity  classifier.ComplexityScorer
	sensitivity classifier.SensitivityDetector
	cache       infra.KVStore
	metrics     *Metrics
	opts        Options
}

// New wires a router. cache may be nil; routing then always recomputes.
func New(
	intent classifier.IntentClassifier,
	complexity classifier.ComplexityScorer,
	sensitivity classifier.SensitivityDetector,
	cache infra.KVStore,
	metrics *Metrics,
	opts Options,
) *Router {
	return &Router{
		intent:      intent,
		complexity:  complexity,
		sensitivity: sensitivity,
		cache:       cache,
		metrics:     metrics,
		opts:        opts,
	}
}

// cacheKey fingerprints the query text. Tenant-agnostic: the decision is a
// deterministic function of the query plus configuration; tenant isolation
// is the gateway's job.
func cacheKey(query string) string {
	h := sha256.Sum256([]byte(query))
	return "route:" + hex.EncodeToString(h[:])[:16]
}

// Route decides the inference tier for a query. It never returns an error:
// orchestration failure degrades to the safe-default decision.
func (r *Router) Route(ctx context.Context, req core.RouteRequest) core.RouteDecision {
	start := time.Now()

	decision := r.route(ctx, req)

	if r.metrics != nil {
		r.metrics.RecordDecision(DecisionLabels{
			Tier:       string(decision.Tier),
			Intent:     string(decision.Intent),
			Complexity: string(decision.Complexity),
		}, float64(time.Since(start).Milliseconds()))
	}
	return decision
}

func (r *Router) route(ctx context.Context, req core.RouteRequest) (decision core.RouteDecision) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("router orchestration panic", "panic", rec)
			decision = r.safeDefault(fmt.Sprintf("panic: %v", rec))
		}
	}()

	// Forced tier (testing / admin override). The safety gate still wins:
	// regulated queries go through the normal tree regardless.
	if req.ForceTier != "" {
		if sensitivity, _ := r.sensitivity.Detect(req.Query); sensitivity.Rank() < core.SensitivityConfidential.Rank() {
			return r.forcedDecision(req.ForceTier)
		}
		slog.Warn("forced tier overridden by safety gate", "forced", req.ForceTier)
	}

	key := cacheKey(req.Query)
	if cached, ok := r.getCached(ctx, key); ok {
		if r.metrics != nil {
			r.metrics.RecordCacheLookup(true)
		}
		cached.Cached = true
		return cached
	}
	if r.metrics != nil {
		r.metrics.RecordCacheLookup(false)
	}

	ctx, span := otel.Tracer("dispatch/router").Start(ctx, "router.route")
	span.SetAttributes(attribute.String("tenant_id", req.TenantID))
	defer span.End()

	clf, err := r.classify(ctx, req.Query)
	if err != nil {
		slog.Error("router orchestration failed", "error", err)
		if r.metrics != nil {
			r.metrics.Fallbacks.Inc()
		}
		return r.safeDefault(err.Error())
	}

	tier, reason := DetermineTier(
		clf.Complexity, clf.Sensitivity,
		clf.IntentConfidence, clf.ComplexityScore,
		r.opts.ConfidenceThreshold,
	)
	model := r.opts.Models.SelectModel(tier, clf.Intent)

	decision = core.RouteDecision{
		Tier:            tier,
		Model:           model,
		Intent:          clf.Intent,
		Complexity:      clf.Complexity,
		Sensitivity:     clf.Sensitivity,
		Confidence:      min3(clf.IntentConfidence, clf.ComplexityConfidence, clf.SensitivityConfidence),
		LatencyBudgetMs: r.opts.Budgets[tier],
		RoutingReason:   reason,
		Classification:  clf,
		Cached:          false,
	}

	span.SetAttributes(
		attribute.String("tier", string(tier)),
		attribute.String("model", model),
		attribute.Float64("confidence", decision.Confidence),
	)

	// Do not cache a decision computed under a cancelled deadline.
	if ctx.Err() == nil {
		r.setCached(ctx, key, decision)
	}

	slog.Info("routed",
		"tier", tier,
		"model", model,
		"intent", clf.Intent,
		"complexity", clf.Complexity,
		"sensitivity", clf.Sensitivity,
		"confidence", fmt.Sprintf("%.2f", decision.Confidence),
	)
	return decision
}

// Classify runs the classifier fan-out without routing. Always fresh, used
// by the /classify diagnostics endpoint.
func (r *Router) Classify(ctx context.Context, req core.RouteRequest) (core.Classification, error) {
	return r.classify(ctx, req.Query)
}

// classify fans intent and complexity out concurrently; sensitivity is
// synchronous and runs inline. Wall time ≈ max(intent, complexity).
func (r *Router) classify(ctx context.Context, query string) (core.Classification, error) {
	var clf core.Classification

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		label, conf, err := r.intent.Classify(gctx, query)
		if err != nil {
			return fmt.Errorf("intent classifier: %w", err)
		}
		clf.Intent, clf.IntentConfidence = label, conf
		return nil
	})
	g.Go(func() error {
		score, level, conf, err := r.complexity.Score(gctx, query)
		if err != nil {
			return fmt.Errorf("complexity scorer: %w", err)
		}
		clf.ComplexityScore, clf.Complexity, clf.ComplexityConfidence = score, level, conf
		return nil
	})

	clf.Sensitivity, clf.SensitivityConfidence = r.sensitivity.Detect(query)

	if err := g.Wait(); err != nil {
		return core.Classification{}, err
	}
	return clf, nil
}

// safeDefault is the degraded-mode envelope: cloud tier, internal
// sensitivity (which itself routes to cloud, never edge), confidence 0.5.
// Reachable only when classification itself crashes — the rule-based
// sensitivity detector has already had its say on every normal path.
func (r *Router) safeDefault(cause string) core.RouteDecision {
	if len(cause) > 50 {
		cause = cause[:50]
	}
	return core.RouteDecision{
		Tier:            core.TierCloud,
		Model:           r.opts.Models.SelectModel(core.TierCloud, core.IntentGeneral),
		Intent:          core.IntentGeneral,
		Complexity:      core.ComplexityMedium,
		Sensitivity:     core.SensitivityInternal,
		Confidence:      0.5,
		LatencyBudgetMs: r.opts.Budgets[core.TierCloud],
		RoutingReason:   fmt.Sprintf("Fallback: router error (%s)", cause),
		Classification: core.Classification{
			Intent: core.IntentGeneral, IntentConfidence: 0.5,
			Complexity: core.ComplexityMedium, ComplexityScore: 0.5, ComplexityConfidence: 0.5,
			Sensitivity: core.SensitivityInternal, SensitivityConfidence: 0.5,
		},
	}
}

func (r *Router) forcedDecision(tier core.InferenceTier) core.RouteDecision {
	return core.RouteDecision{
		Tier:            tier,
		Model:           r.opts.Models.SelectModel(tier, core.IntentGeneral),
		Intent:          core.IntentGeneral,
		Complexity:      core.ComplexityMedium,
		Sensitivity:     core.SensitivityPublic,
		Confidence:      1.0,
		LatencyBudgetMs: r.opts.Budgets[tier],
		RoutingReason:   fmt.Sprintf("Forced tier: %s", tier),
		Classification: core.Classification{
			Intent: core.IntentGeneral, IntentConfidence: 1.0,
			Complexity: core.ComplexityMedium, ComplexityConfidence: 1.0,
			Sensitivity: core.SensitivityPublic, SensitivityConfidence: 1.0,
		},
	}
}

func (r *Router) getCached(ctx context.Context, key string) (core.RouteDecision, bool) {
	if r.cache == nil {
		return core.RouteDecision{}, false
	}
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if err != infra.ErrNotFound {
			slog.Debug("decision cache read failed", "error", err)
		}
		return core.RouteDecision{}, false
	}
	var decision core.RouteDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		slog.Debug("decision cache entry corrupt", "key", key, "error", err)
		return core.RouteDecision{}, false
	}
	return decision, true
}

// setCached writes fire-and-forget: a full or unreachable cache only
// changes the latency profile, never the decision.
func (r *Router) setCached(ctx context.Context, key string, decision core.RouteDecision) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	if err := r.cache.SetEx(ctx, key, raw, r.opts.CacheTTL); err != nil {
		slog.Debug("decision cache write failed", "error", err)
	}
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
