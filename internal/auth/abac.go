package auth

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/datamind/dispatch/internal/core"
)

// allowMatrix is the exhaustive (role, resource type) → actions table.
// Anything not listed is denied. The admin wildcard is handled separately.
var allowMatrix = map[core.UserRole]map[string][]string{
	core.RoleDataScientist: {
		"dataset":   {"read", "write"},
		"model":     {"read", "write", "execute"},
		"notebook":  {"read", "write", "execute"},
		"dashboard": {"read", "write"},
		"report":    {"read"},
		"worker":    {"read"},
	},
	core.RoleAnalyst: {
		"dataset":   {"read"},
		"dashboard": {"read", "write"},
		"report":    {"read"},
		"worker":    {"read"},
	},
	core.RoleViewer: {
		"dashboard": {"read"},
		"report":    {"read"},
	},
	core.RoleDPO: {
		"gdpr":      {"read", "write", "execute"},
		"audit_log": {"read"},
		"dsr":       {"read", "write", "execute"},
	},
	core.RoleWorker: {
		"dataset":   {"read"},
		"dashboard": {"read", "write"},
		"report":    {"read", "write"},
		"model":     {"read", "execute"},
	},
}

var adminActions = []string{"read", "write", "delete", "execute", "admin"}

// columnSensitivityGates: when resource sensitivity reaches a role's gate,
// PII-looking columns are masked for that role. Below the gate everything
// is visible.
var columnSensitivityGates = map[core.UserRole]core.SensitivityLevel{
	core.RoleAdmin:         core.SensitivityRestricted,
	core.RoleDataScientist: core.SensitivityConfidential,
	core.RoleAnalyst:       core.SensitivityInternal,
	core.RoleViewer:        core.SensitivityPublic,
	core.RoleDPO:           core.SensitivityRestricted, // DPO sees PII for DSR work
	core.RoleWorker:        core.SensitivityConfidential,
}

// piiColumnPatterns are matched as case-insensitive substrings of column
// names. The PII metadata catalogue does the authoritative tagging; this
// set catches the obvious names.
var piiColumnPatterns = []string{
	"email", "phone", "address", "ssn", "passport", "dob", "birth",
	"salary", "income", "credit_card", "national_id", "ip_address",
	"name", "firstname", "lastname", "surname",
}

// PolicyEngine evaluates ABAC requests. Stateless; every decision derives
// from the policy tables plus the request attributes.
type PolicyEngine struct{}

// NewPolicyEngine returns the engine.
func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{}
}

// Evaluate returns the allow/deny decision with column masks. Masking
// never turns an allowed action into a deny.
func (e *PolicyEngine) Evaluate(req core.ABACRequest) core.ABACDecision {
	if !isActionAllowed(req.Role, req.ResourceType, req.Action) {
		reason := fmt.Sprintf("Role '%s' is not permitted to '%s' on resource type '%s'",
			req.Role, req.Action, req.ResourceType)
		slog.Info("abac denied",
			"user_id", req.UserID, "tenant_id", req.TenantID,
			"role", req.Role, "action", req.Action, "resource", req.ResourceType)
		return core.ABACDecision{Allowed: false, Reason: reason,
			MaskedColumns: []string{}, AllowedColumns: []string{}}
	}

	masked, visible := computeColumnMasks(req.Role, req.ResourceSensitivity, req.ColumnNames)

	reason := fmt.Sprintf("Allowed: role='%s', action='%s', resource='%s'",
		req.Role, req.Action, req.ResourceType)
	if len(masked) > 0 {
		reason += fmt.Sprintf(" | %d column(s) masked for sensitivity=%s",
			len(masked), req.ResourceSensitivity)
	}

	slog.Debug("abac allowed",
		"user_id", req.UserID, "role", req.Role,
		"action", req.Action, "masked_count", len(masked))

	return core.ABACDecision{
		Allowed:        true,
		Reason:         reason,
		MaskedColumns:  masked,
		AllowedColumns: visible,
	}
}

func isActionAllowed(role core.UserRole, resourceType, action string) bool {
	if role == core.RoleAdmin {
		for _, a := range adminActions {
			if a == action {
				return true
			}
		}
		return false
	}
	for _, a := range allowMatrix[role][resourceType] {
		if a == action {
			return true
		}
	}
	return false
}

// computeColumnMasks partitions columns into (masked, visible). Every input
// column lands in exactly one of the two slices.
func computeColumnMasks(role core.UserRole, sensitivity core.SensitivityLevel, columns []string) ([]string, []string) {
	masked, visible := []string{}, []string{}
	if len(columns) == 0 {
		return masked, visible
	}

	gate, ok := columnSensitivityGates[role]
	if !ok {
		gate = core.SensitivityPublic
	}
	if sensitivity.Rank() < gate.Rank() {
		return masked, append(visible, columns...)
	}

	for _, col := range columns {
		lower := strings.ToLower(col)
		isPII := false
		for _, pat := range piiColumnPatterns {
			if strings.Contains(lower, pat) {
				isPII = true
				break
			}
		}
		if isPII {
			masked = append(masked, col)
		} else {
			visible = append(visible, col)
		}
	}
	return masked, visible
}
