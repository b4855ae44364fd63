package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig sets the per-key request budget.
type RateLimitConfig struct {
	MaxPerMinute int
	Burst        int
}

// RateLimiter enforces a per-tenant, per-user sliding window on the
// routing endpoints. Windows live in process memory; each replica
// enforces its own share of the budget.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     RateLimitConfig
}

type window struct {
	count int
	start time.Time
}

// NewRateLimiter creates the limiter and starts its window sweeper.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxPerMinute == 0 {
		cfg.MaxPerMinute = 120
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.MaxPerMinute * 2
	}
	rl := &RateLimiter{
		windows: make(map[string]*window),
		cfg:     cfg,
	}
	go rl.sweep()
	return rl
}

// Allow reports whether one more request under key fits the window.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) > time.Minute {
		rl.windows[key] = &window{count: 1, start: now}
		return true
	}

	w.count++
	if w.count > rl.cfg.Burst {
		return false
	}
	if w.count > rl.cfg.MaxPerMinute {
		slog.Warn("rate limit exceeded", "key", key, "count", w.count, "limit", rl.cfg.MaxPerMinute)
		return false
	}
	return true
}

// Middleware answers 429 once a caller exhausts its window. Public paths
// are exempt so probes and scrapes never get throttled.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := r.Header.Get(HeaderTenantID)
		if tenantID == "" {
			tenantID = "default"
		}
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			userID = "anonymous"
		}

		if !rl.Allow(tenantID + ":" + userID) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"detail":"rate limit exceeded","retry_after_seconds":60}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweep drops stale windows so idle tenants do not accumulate.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, w := range rl.windows {
			if now.Sub(w.start) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}
