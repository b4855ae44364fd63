package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamind/dispatch/internal/tenancy"
)

const testTenantID = "11111111-2222-3333-4444-555555555555"

// captureHandler records the tenant context it sees.
func captureHandler(captured **tenancy.TenantContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tc, err := tenancy.FromContext(r.Context()); err == nil {
			*captured = &tc
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestTenantIsolationMissingHeader(t *testing.T) {
	var captured *tenancy.TenantContext
	handler := TenantIsolation(false)(captureHandler(&captured))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/route", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, captured)
	assert.Contains(t, rec.Body.String(), "Missing tenant context")
}

func TestTenantIsolationDevBypass(t *testing.T) {
	var captured *tenancy.TenantContext
	handler := TenantIsolation(true)(captureHandler(&captured))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/route", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, DemoTenantID, captured.TenantID)
}

func TestTenantIsolationMalformedUUID(t *testing.T) {
	handler := TenantIsolation(false)(http.NotFoundHandler())

	req := httptest.NewRequest("POST", "/route", nil)
	req.Header.Set(HeaderTenantID, "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantIsolationEstablishesContext(t *testing.T) {
	var captured *tenancy.TenantContext
	handler := TenantIsolation(false)(captureHandler(&captured))

	req := httptest.NewRequest("POST", "/route", nil)
	req.Header.Set(HeaderTenantID, testTenantID)
	req.Header.Set(HeaderUserID, "user-9")
	req.Header.Set(HeaderUserRole, "data_scientist")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, testTenantID, captured.TenantID)
	assert.Equal(t, "user-9", captured.UserID)
	assert.Equal(t, "data_scientist", captured.Role)
	assert.NotEmpty(t, captured.RequestID)
}

func TestTenantIsolationRequestIDEcho(t *testing.T) {
	handler := TenantIsolation(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Provided ID is echoed back unchanged.
	req := httptest.NewRequest("POST", "/route", nil)
	req.Header.Set(HeaderTenantID, testTenantID)
	req.Header.Set(HeaderRequestID, "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc", rec.Header().Get(HeaderRequestID))

	// Absent ID gets generated.
	req = httptest.NewRequest("POST", "/route", nil)
	req.Header.Set(HeaderTenantID, testTenantID)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestTenantIsolationPublicPathBypass(t *testing.T) {
	handler := TenantIsolation(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health/liveness", "/health/readiness", "/metrics", "/auth/login"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s should not require a tenant", path)
	}
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxPerMinute: 3, Burst: 5})
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("t-1:u-1"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("t-1:u-1"), "fourth request exceeds the window")
	assert.True(t, rl.Allow("t-1:u-2"), "other users have their own window")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxPerMinute: 1, Burst: 1})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/route", nil)
	req.Header.Set(HeaderTenantID, testTenantID)
	req.Header.Set(HeaderUserID, "user-9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Probes bypass the limiter.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health/liveness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantIsolationDevTenantHeader(t *testing.T) {
	var captured *tenancy.TenantContext
	handler := TenantIsolation(false)(captureHandler(&captured))

	req := httptest.NewRequest("POST", "/route", nil)
	req.Header.Set(HeaderDevTenantID, testTenantID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, testTenantID, captured.TenantID)
}
