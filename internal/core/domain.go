// Package core holds the shared domain types for the dispatch plane:
// routing requests and decisions, classification axes, token claims, and
// ABAC requests. All types are request-scoped; nothing here is persisted.
package core

import (
	"fmt"
	"strings"
)

// IntentLabel is the categorical kind of work a query asks for.
type IntentLabel string

const (
	IntentEDA       IntentLabel = "EDA"
	IntentSQL       IntentLabel = "SQL"
	IntentForecast  IntentLabel = "FORECAST"
	IntentAnomaly   IntentLabel = "ANOMALY"
	IntentReport    IntentLabel = "REPORT"
	IntentVisualise IntentLabel = "VISUALISE"
	IntentClean     IntentLabel = "CLEAN"
	IntentModel     IntentLabel = "MODEL"
	IntentExplain   IntentLabel = "EXPLAIN"
	IntentSearch    IntentLabel = "SEARCH"
	IntentCode      IntentLabel = "CODE"
	IntentGeneral   IntentLabel = "GENERAL"
)

// ParseIntentLabel maps a string (any case) onto the 12-label enum.
// SLM replies are not trusted to be well-formed, so unknown labels error.
func ParseIntentLabel(s string) (IntentLabel, error) {
	label := IntentLabel(strings.ToUpper(strings.TrimSpace(s)))
	switch label {
	case IntentEDA, IntentSQL, IntentForecast, IntentAnomaly, IntentReport,
		IntentVisualise, IntentClean, IntentModel, IntentExplain,
		IntentSearch, IntentCode, IntentGeneral:
		return label, nil
	}
	return "", fmt.Errorf("unknown intent label: %q", s)
}

// ComplexityLevel buckets the raw complexity score.
type ComplexityLevel string

const (
	ComplexitySimple  ComplexityLevel = "simple"
	ComplexityMedium  ComplexityLevel = "medium"
	ComplexityComplex ComplexityLevel = "complex"
	ComplexityExpert  ComplexityLevel = "expert"
)

// ParseComplexityLevel maps a string (any case) onto the 4-level enum.
func ParseComplexityLevel(s string) (ComplexityLevel, error) {
	level := ComplexityLevel(strings.ToLower(strings.TrimSpace(s)))
	switch level {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex, ComplexityExpert:
		return level, nil
	}
	return "", fmt.Errorf("unknown complexity level: %q", s)
}

// SensitivityLevel is the regulatory class of the data a query touches.
type SensitivityLevel string

const (
	SensitivityPublic       SensitivityLevel = "public"
	SensitivityInternal     SensitivityLevel = "internal"
	SensitivityConfidential SensitivityLevel = "confidential"
	SensitivityRestricted   SensitivityLevel = "restricted"
)

// sensitivityOrder ranks levels for gate comparisons; higher = stricter.
var sensitivityOrder = map[SensitivityLevel]int{
	SensitivityPublic:       0,
	SensitivityInternal:     1,
	SensitivityConfidential: 2,
	SensitivityRestricted:   3,
}

// Rank returns the strictness rank of a sensitivity level (public=0 .. restricted=3).
func (s SensitivityLevel) Rank() int {
	return sensitivityOrder[s]
}

// ParseSensitivityLevel maps a string (any case) onto the 4-level enum.
func ParseSensitivityLevel(s string) (SensitivityLevel, error) {
	level := SensitivityLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sensitivityOrder[level]; ok {
		return level, nil
	}
	return "", fmt.Errorf("unknown sensitivity level: %q", s)
}

// InferenceTier identifies one of the four inference backends.
type InferenceTier string

const (
	TierEdge  InferenceTier = "edge"
	TierSLM   InferenceTier = "slm"
	TierCloud InferenceTier = "cloud"
	TierRLM   InferenceTier = "rlm"
)

// ParseInferenceTier maps a string (any case) onto the tier enum.
func ParseInferenceTier(s string) (InferenceTier, error) {
	tier := InferenceTier(strings.ToLower(strings.TrimSpace(s)))
	switch tier {
	case TierEdge, TierSLM, TierCloud, TierRLM:
		return tier, nil
	}
	return "", fmt.Errorf("unknown inference tier: %q", s)
}

// MaxQueryLength is the upper bound on accepted query text.
const MaxQueryLength = 32_000

// RouteRequest is the body of POST /route and POST /classify.
type RouteRequest struct {
	Query         string                 `json:"query"`
	TenantID      string                 `json:"tenant_id"`
	ContextTokens int                    `json:"context_tokens"`
	ForceTier     InferenceTier          `json:"force_tier,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the request shape constraints.
func (r *RouteRequest) Validate() error {
	if len(r.Query) == 0 {
		return fmt.Errorf("query must not be empty")
	}
	if len(r.Query) > MaxQueryLength {
		return fmt.Errorf("query exceeds %d characters", MaxQueryLength)
	}
	if r.ContextTokens < 0 {
		return fmt.Errorf("context_tokens must be >= 0")
	}
	if r.ForceTier != "" {
		if _, err := ParseInferenceTier(string(r.ForceTier)); err != nil {
			return err
		}
	}
	return nil
}

// Classification is the combined result of the three classifier axes.
type Classification struct {
	Intent                IntentLabel      `json:"intent"`
	IntentConfidence      float64          `json:"intent_confidence"`
	Complexity            ComplexityLevel  `json:"complexity"`
	ComplexityScore       float64          `json:"complexity_score"`
	ComplexityConfidence  float64          `json:"complexity_confidence"`
	Sensitivity           SensitivityLevel `json:"sensitivity"`
	SensitivityConfidence float64          `json:"sensitivity_confidence"`
	Reasoning             string           `json:"reasoning,omitempty"`
}

// RouteDecision is the routing verdict returned by POST /route.
type RouteDecision struct {
	Tier            InferenceTier    `json:"tier"`
	Model           string           `json:"model"`
	Intent          IntentLabel      `json:"intent"`
	Complexity      ComplexityLevel  `json:"complexity"`
	Sensitivity     SensitivityLevel `json:"sensitivity"`
	Confidence      float64          `json:"confidence"`
	LatencyBudgetMs int              `json:"latency_budget_ms"`
	RoutingReason   string           `json:"routing_reason"`
	Classification  Classification   `json:"classification"`
	Cached          bool             `json:"cached"`
}

// UserRole is the role carried in token claims and ABAC requests.
type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleAnalyst       UserRole = "analyst"
	RoleDataScientist UserRole = "data_scientist"
	RoleViewer        UserRole = "viewer"
	RoleDPO           UserRole = "dpo"
	RoleWorker        UserRole = "worker"
)

// ParseUserRole maps a string (any case) onto the role enum.
func ParseUserRole(s string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(s)))
	switch role {
	case RoleAdmin, RoleAnalyst, RoleDataScientist, RoleViewer, RoleDPO, RoleWorker:
		return role, nil
	}
	return "", fmt.Errorf("unknown user role: %q", s)
}

// TokenClaims are the claims embedded in an access token. The raw email is
// never stored; EmailHash is an HMAC pseudonym keyed per tenant.
type TokenClaims struct {
	Subject   string   `json:"sub"`
	TenantID  string   `json:"tenant_id"`
	Role      UserRole `json:"role"`
	EmailHash string   `json:"email_hash"`
	ExpiresAt int64    `json:"exp"`
	NotBefore int64    `json:"nbf"`
	IssuedAt  int64    `json:"iat"`
	KeyID     string   `json:"kid"`
	TokenID   string   `json:"jti"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TenantSlug string `json:"tenant_slug"`
}

// TokenResponse is the body returned by POST /auth/login.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	TenantID    string   `json:"tenant_id"`
	Role        UserRole `json:"role"`
}

// ABACRequest carries the attributes of a policy evaluation.
type ABACRequest struct {
	UserID              string           `json:"user_id"`
	TenantID            string           `json:"tenant_id"`
	Role                UserRole         `json:"role"`
	Action              string           `json:"action"`
	ResourceType        string           `json:"resource_type"`
	ResourceID          string           `json:"resource_id,omitempty"`
	ResourceSensitivity SensitivityLevel `json:"resource_sensitivity"`
	ColumnNames         []string         `json:"column_names,omitempty"`
}

// ABACDecision is the engine's verdict. A decision with masked columns is
// still an allow; masking never downgrades to a deny.
type ABACDecision struct {
	Allowed        bool     `json:"allowed"`
	Reason         string   `json:"reason"`
	MaskedColumns  []string `json:"masked_columns"`
	AllowedColumns []string `json:"allowed_columns"`
}
