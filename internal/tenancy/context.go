// Package tenancy carries the per-request tenant context through the
// handler chain. The context value is immutable for the request lifetime
// and must never outlive it.
package tenancy

import (
	"context"
	"errors"
)

// TenantContext identifies the tenant, user, and request behind a call.
// Established by the tenant middleware on ingress.
type TenantContext struct {
	TenantID  string
	UserID    string
	Role      string
	RequestID string
}

type contextKey string

const tenantKey contextKey = "tenant_context"

// ErrNoTenant is returned when tenant context is requested outside a
// request that passed through the tenant middleware.
var ErrNoTenant = errors.New("tenant context missing — was the tenant middleware applied?")

// WithTenant attaches the tenant context to ctx.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantKey, tc)
}

// FromContext extracts the tenant context, failing loudly when absent.
func FromContext(ctx context.Context) (TenantContext, error) {
	tc, ok := ctx.Value(tenantKey).(TenantContext)
	if !ok || tc.TenantID == "" {
		return TenantContext{}, ErrNoTenant
	}
	return tc, nil
}

// TenantID is a convenience accessor for just the tenant identifier.
func TenantID(ctx context.Context) (string, error) {
	tc, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return tc.TenantID, nil
}
