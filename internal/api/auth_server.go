package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/datamind/dispatch/internal/auth"
	"github.com/datamind/dispatch/internal/core"
	"github.com/datamind/dispatch/internal/middleware"
)

var (
	loginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_auth_login_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)
	revocationTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_auth_revocations_total",
			Help: "Tokens revoked via logout",
		},
	)
	abacTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_auth_abac_decisions_total",
			Help: "ABAC evaluations by verdict",
		},
		[]string{"allowed"},
	)
)

// demoUser is a development-only account. Production authentication goes
// through the SSO provider; local login exists for service accounts and
// dev loops.
type demoUser struct {
	UserID       string
	Role         core.UserRole
	PasswordHash []byte
}

// AuthServer is the HTTP surface of the token authority and policy engine.
type AuthServer struct {
	authority     *auth.TokenAuthority
	policy        *auth.PolicyEngine
	devMode       bool
	tokenLifetime int // seconds, echoed in login responses
	demoUsers     map[string]demoUser
}

// NewAuthServer wires the auth endpoints. Demo credentials are hashed at
// startup so the login path exercises the same bcrypt comparison a real
// user store would.
func NewAuthServer(authority *auth.TokenAuthority, policy *auth.PolicyEngine, devMode bool, tokenLifetimeSeconds int) *AuthServer {
	hash, err := bcrypt.GenerateFromPassword([]byte("datamind-dev"), bcrypt.MinCost)
	if err != nil {
		// bcrypt only fails on cost bounds; MinCost is always valid.
		panic(err)
	}
	return &AuthServer{
		authority:     authority,
		policy:        policy,
		devMode:       devMode,
		tokenLifetime: tokenLifetimeSeconds,
		demoUsers: map[string]demoUser{
			"admin@demo.datamind.ai":   {UserID: "demo-admin-001", Role: core.RoleAdmin, PasswordHash: hash},
			"analyst@demo.datamind.ai": {UserID: "demo-analyst-001", Role: core.RoleAnalyst, PasswordHash: hash},
			"ds@demo.datamind.ai":      {UserID: "demo-ds-001", Role: core.RoleDataScientist, PasswordHash: hash},
		},
	}
}

// Handler builds the route table for the auth service.
func (s *AuthServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.Use(corsMiddleware)
	r.Use(middleware.TenantIsolation(s.devMode))

	r.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/auth/verify", s.handleVerify).Methods("POST")
	r.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")
	r.HandleFunc("/auth/authorize", s.handleAuthorize).Methods("POST")
	r.HandleFunc("/auth/me", s.handleMe).Methods("GET")
	r.HandleFunc("/health/liveness", s.handleLiveness).Methods("GET")
	r.HandleFunc("/health/readiness", s.handleReadiness).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func (s *AuthServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		errorJSON(w, http.StatusForbidden, "Local login disabled in non-dev environments. Use SSO.")
		return
	}

	var req core.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	user, ok := s.demoUsers[strings.ToLower(req.Email)]
	if !ok || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		loginTotal.WithLabelValues("denied").Inc()
		errorJSON(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tenantID := middleware.DemoTenantID
	token, _, err := s.authority.IssueToken(user.UserID, tenantID, user.Role, req.Email, 0)
	if err != nil {
		slog.Error("token issue failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	loginTotal.WithLabelValues("success").Inc()

	writeJSON(w, http.StatusOK, core.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.tokenLifetime,
		TenantID:    tenantID,
		Role:        user.Role,
	})
}

// handleVerify is the gateway-callable verification hook: token in the
// body, 200 + claims when valid, 401 otherwise (including revoked).
func (s *AuthServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		errorJSON(w, http.StatusBadRequest, "Missing token")
		return
	}

	claims, err := s.authority.Verify(r.Context(), body.Token)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"user_id":   claims.Subject,
		"tenant_id": claims.TenantID,
		"role":      claims.Role,
		"exp":       claims.ExpiresAt,
	})
}

func (s *AuthServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(w, r)
	if !ok {
		return
	}
	if err := s.authority.Revoke(r.Context(), claims); err != nil {
		slog.Error("revocation failed", "jti", claims.TokenID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "revocation failed")
		return
	}
	revocationTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "logged_out",
		"jti":    claims.TokenID,
	})
}

func (s *AuthServer) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   claims.Subject,
		"tenant_id": claims.TenantID,
		"role":      claims.Role,
		"exp":       claims.ExpiresAt,
	})
}

// handleAuthorize evaluates an ABAC request. Callers may only evaluate
// policy for themselves; the check runs before the engine is consulted.
func (s *AuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(w, r)
	if !ok {
		return
	}

	var req core.ABACRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID != claims.Subject || req.TenantID != claims.TenantID {
		errorJSON(w, http.StatusForbidden, "Cannot evaluate policy for a different user or tenant")
		return
	}

	decision := s.policy.Evaluate(req)
	abacTotal.WithLabelValues(boolLabel(decision.Allowed)).Inc()
	slog.Info("abac decision",
		"user_id", req.UserID, "tenant_id", req.TenantID,
		"resource", req.ResourceType, "action", req.Action,
		"allowed", decision.Allowed)
	writeJSON(w, http.StatusOK, decision)
}

func (s *AuthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness: the revocation store is checked at startup and has no
// warmup, so a serving process is a ready process.
func (s *AuthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// bearerClaims extracts and verifies the Authorization bearer token,
// writing the 401 itself when verification fails.
func (s *AuthServer) bearerClaims(w http.ResponseWriter, r *http.Request) (core.TokenClaims, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		errorJSON(w, http.StatusUnauthorized, "Missing Authorization header")
		return core.TokenClaims{}, false
	}

	claims, err := s.authority.Verify(r.Context(), strings.TrimPrefix(header, prefix))
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		detail := "Invalid token"
		for _, known := range []error{auth.ErrExpired, auth.ErrRevoked, auth.ErrInvalidSignature, auth.ErrMalformed, auth.ErrNotYetValid} {
			if errors.Is(err, known) {
				detail = "Invalid token: " + known.Error()
				break
			}
		}
		errorJSON(w, http.StatusUnauthorized, detail)
		return core.TokenClaims{}, false
	}
	return claims, true
}
