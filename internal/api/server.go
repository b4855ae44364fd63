// Package api exposes the router and auth services over REST/JSON.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/datamind/dispatch/internal/core"
	"github.com/datamind/dispatch/internal/middleware"
	"github.com/datamind/dispatch/internal/router"
	"github.com/datamind/dispatch/internal/tenancy"
)

// RouterServer is the HTTP surface of the routing service.
type RouterServer struct {
	router  *router.Router
	probe   func(ctx context.Context) bool
	metrics http.Handler
	limiter *middleware.RateLimiter
	ready   atomic.Bool
}

// NewRouterServer wires the routing endpoints. probe checks the SLM
// backend for the readiness endpoint; metricsHandler serves /metrics.
func NewRouterServer(rt *router.Router, probe func(ctx context.Context) bool, metricsHandler http.Handler) *RouterServer {
	return &RouterServer{router: rt, probe: probe, metrics: metricsHandler}
}

// SetReady flips the readiness gate. Until set, /route answers 503 so the
// load balancer keeps traffic away during warmup.
func (s *RouterServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// UseRateLimiter enables per-tenant rate limiting on the routing endpoints.
func (s *RouterServer) UseRateLimiter(rl *middleware.RateLimiter) {
	s.limiter = rl
}

// Handler builds the full middleware chain and route table.
func (s *RouterServer) Handler(devBypass bool) http.Handler {
	r := mux.NewRouter()

	r.Use(corsMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Use(middleware.TenantIsolation(devBypass))

	r.HandleFunc("/route", s.handleRoute).Methods("POST")
	r.HandleFunc("/classify", s.handleClassify).Methods("POST")
	r.HandleFunc("/health/liveness", s.handleLiveness).Methods("GET")
	r.HandleFunc("/health/readiness", s.handleReadiness).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}
	return r
}

func (s *RouterServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		errorJSON(w, http.StatusServiceUnavailable, "router warming up")
		return
	}

	var req core.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	// The tenant boundary, not the body, is authoritative.
	if tc, err := tenancy.FromContext(r.Context()); err == nil {
		req.TenantID = tc.TenantID
	}

	decision := s.router.Route(r.Context(), req)
	writeJSON(w, http.StatusOK, decision)
}

func (s *RouterServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req core.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	clf, err := s.router.Classify(r.Context(), req)
	if err != nil {
		slog.Error("classification failed", "error", err)
		errorJSON(w, http.StatusBadGateway, "classification failed")
		return
	}
	writeJSON(w, http.StatusOK, clf)
}

func (s *RouterServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness probes the SLM backend. A down backend degrades routing
// to the rule-based fallbacks, so this reports degraded rather than dead.
func (s *RouterServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	slmUp := s.probe == nil || s.probe(r.Context())
	status := "ready"
	code := http.StatusOK
	if !s.ready.Load() {
		status = "starting"
		code = http.StatusServiceUnavailable
	} else if !slmUp {
		status = "degraded"
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"slm_up":  slmUp,
		"checked": time.Now().UTC().Format(time.RFC3339),
	})
}

// --- shared plumbing ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-ID, X-User-ID, X-User-Role, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func errorJSON(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
