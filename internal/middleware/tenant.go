// Package middleware provides the HTTP middleware chain shared by the
// router and auth services.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/datamind/dispatch/internal/tenancy"
)

// DemoTenantID is injected in development mode when no tenant header is
// present, so local requests work without the upstream gateway.
const DemoTenantID = "00000000-0000-0000-0000-000000000001"

// Headers consumed at the tenant boundary. They are injected by the trusted
// upstream gateway after it has verified the caller's token; this service
// does not re-verify them.
const (
	HeaderTenantID    = "X-Tenant-ID"
	HeaderDevTenantID = "X-Dev-Tenant-ID"
	HeaderUserID      = "X-User-ID"
	HeaderUserRole    = "X-User-Role"
	HeaderRequestID   = "X-Request-ID"
)

// publicPaths bypass tenant enforcement entirely.
var publicPaths = map[string]bool{
	"/health/liveness":  true,
	"/health/readiness": true,
	"/auth/login":       true,
	"/auth/verify":      true,
	"/docs":             true,
	"/metrics":          true,
}

// TenantIsolation establishes the tenant context for every non-public path.
// Missing tenant header → 401 (unless devBypass). Malformed UUID → 400.
// A request ID is generated when absent and always echoed on the response.
func TenantIsolation(devBypass bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, requestID)

			tenantID := r.Header.Get(HeaderTenantID)
			if tenantID == "" {
				tenantID = r.Header.Get(HeaderDevTenantID)
			}
			if tenantID == "" {
				if !devBypass {
					http.Error(w, "Missing tenant context. Ensure request is routed through the gateway.", http.StatusUnauthorized)
					return
				}
				tenantID = DemoTenantID
			}

			if _, err := uuid.Parse(tenantID); err != nil {
				http.Error(w, fmt.Sprintf("Invalid %s format: %q", HeaderTenantID, tenantID), http.StatusBadRequest)
				return
			}

			tc := tenancy.TenantContext{
				TenantID:  tenantID,
				UserID:    headerOr(r, HeaderUserID, "unknown"),
				Role:      headerOr(r, HeaderUserRole, "analyst"),
				RequestID: requestID,
			}

			slog.Debug("tenant context established",
				"tenant_id", tc.TenantID, "request_id", tc.RequestID)

			next.ServeHTTP(w, r.WithContext(tenancy.WithTenant(r.Context(), tc)))
		})
	}
}

func headerOr(r *http.Request, key, def string) string {
	if v := r.Header.Get(key); v != "" {
		return v
	}
	return def
}
