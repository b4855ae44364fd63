package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datamind/dispatch/internal/core"
)

func evalReq(role core.UserRole, action, resource string, sensitivity core.SensitivityLevel, columns ...string) core.ABACDecision {
	return NewPolicyEngine().Evaluate(core.ABACRequest{
		UserID:              "u-1",
		TenantID:            "t-1",
		Role:                role,
		Action:              action,
		ResourceType:        resource,
		ResourceSensitivity: sensitivity,
		ColumnNames:         columns,
	})
}

// ============================================================================
// ALLOW MATRIX
// ============================================================================

func TestAdminWildcard(t *testing.T) {
	for _, action := range []string{"read", "write", "delete", "execute", "admin"} {
		d := evalReq(core.RoleAdmin, action, "dataset", core.SensitivityInternal)
		assert.True(t, d.Allowed, "admin should be allowed to %s", action)
	}
	d := evalReq(core.RoleAdmin, "frobnicate", "dataset", core.SensitivityInternal)
	assert.False(t, d.Allowed, "unknown actions are denied even for admin")
}

func TestAllowMatrix(t *testing.T) {
	cases := []struct {
		role     core.UserRole
		action   string
		resource string
		allowed  bool
	}{
		{core.RoleDataScientist, "write", "model", true},
		{core.RoleDataScientist, "execute", "notebook", true},
		{core.RoleDataScientist, "write", "report", false},
		{core.RoleDataScientist, "delete", "dataset", false},
		{core.RoleAnalyst, "read", "dataset", true},
		{core.RoleAnalyst, "write", "dataset", false},
		{core.RoleAnalyst, "write", "dashboard", true},
		{core.RoleViewer, "read", "dashboard", true},
		{core.RoleViewer, "write", "dashboard", false},
		{core.RoleViewer, "read", "dataset", false},
		{core.RoleDPO, "execute", "gdpr", true},
		{core.RoleDPO, "read", "audit_log", true},
		{core.RoleDPO, "read", "dataset", false},
		{core.RoleWorker, "write", "report", true},
		{core.RoleWorker, "execute", "model", true},
		{core.RoleWorker, "write", "dataset", false},
	}
	for _, tc := range cases {
		d := evalReq(tc.role, tc.action, tc.resource, core.SensitivityInternal)
		assert.Equal(t, tc.allowed, d.Allowed, "%s %s %s", tc.role, tc.action, tc.resource)
		if !tc.allowed {
			assert.Contains(t, d.Reason, string(tc.role))
			assert.Contains(t, d.Reason, tc.action)
			assert.Contains(t, d.Reason, tc.resource)
			assert.Empty(t, d.MaskedColumns)
		}
	}
}

// ============================================================================
// COLUMN MASKING
// ============================================================================

func TestColumnMaskingAtGate(t *testing.T) {
	// Analyst gate is internal; an internal dataset masks PII columns.
	d := evalReq(core.RoleAnalyst, "read", "dataset", core.SensitivityInternal,
		"customer_email", "order_total", "phone_number", "region")
	assert.True(t, d.Allowed, "masking never denies")
	assert.ElementsMatch(t, []string{"customer_email", "phone_number"}, d.MaskedColumns)
	assert.ElementsMatch(t, []string{"order_total", "region"}, d.AllowedColumns)
	assert.Contains(t, d.Reason, "2 column(s) masked")
}

func TestColumnMaskingBelowGate(t *testing.T) {
	// Data scientist gate is confidential; internal data passes untouched.
	d := evalReq(core.RoleDataScientist, "read", "dataset", core.SensitivityInternal,
		"customer_email", "order_total")
	assert.True(t, d.Allowed)
	assert.Empty(t, d.MaskedColumns)
	assert.ElementsMatch(t, []string{"customer_email", "order_total"}, d.AllowedColumns)
}

func TestColumnMaskingCaseInsensitive(t *testing.T) {
	d := evalReq(core.RoleViewer, "read", "dashboard", core.SensitivityPublic,
		"Customer_Email", "SSN_last4", "total")
	assert.True(t, d.Allowed)
	assert.ElementsMatch(t, []string{"Customer_Email", "SSN_last4"}, d.MaskedColumns)
	assert.ElementsMatch(t, []string{"total"}, d.AllowedColumns)
}

func TestNoColumnsNoMasking(t *testing.T) {
	d := evalReq(core.RoleAnalyst, "read", "dataset", core.SensitivityInternal)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.MaskedColumns)
	assert.Empty(t, d.AllowedColumns)
	assert.NotContains(t, d.Reason, "masked")
}
