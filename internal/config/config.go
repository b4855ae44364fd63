// Package config loads service configuration from the environment.
// Configuration is immutable after process start; there is no hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every recognised option for both the router and auth services.
type Config struct {
	ServiceName string
	Port        string
	Env         string

	// SLM backend (Ollama-compatible /api/chat endpoint)
	OllamaURL       string
	IntentModel     string
	ComplexityModel string
	OllamaTimeout   time.Duration

	// Routing
	ConfidenceThreshold float64
	CacheTTL            time.Duration

	// Models by tier
	EdgeModel          string
	SLMModel           string
	CloudDefaultModel  string
	CloudSQLModel      string
	CloudAnalysisModel string
	RLMModel           string

	// Latency budgets (ms)
	LatencyEdgeMs  int
	LatencySLMMs   int
	LatencyCloudMs int
	LatencyRLMMs   int

	// Complexity bucket thresholds on the raw 0..1 score
	ComplexitySimpleMax  float64
	ComplexityMediumMax  float64
	ComplexityComplexMax float64

	// Rate limiting (per tenant+user, per replica)
	RateLimitPerMinute int
	RateLimitBurst     int

	// Redis (decision cache + revocation store)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Token authority
	SigningSecret    string
	SigningAlgorithm string
	SigningKeyID     string
	TokenLifetime    time.Duration
	TokenMaxLifetime time.Duration

	// Secret provisioning: "env" reads SigningSecret directly, "vault"
	// fetches it from the secret store at startup.
	SecretSource string
	VaultURL     string
	VaultToken   string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from the environment, applying defaults that
// match the development docker-compose topology.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		ServiceName: envStr("SERVICE_NAME", serviceName),
		Port:        envStr("PORT", "8020"),
		Env:         envStr("ENV", "development"),

		OllamaURL:       envStr("OLLAMA_URL", "http://ollama:11434"),
		IntentModel:     envStr("INTENT_MODEL", "phi3.5"),
		ComplexityModel: envStr("COMPLEXITY_MODEL", "gemma2:2b"),
		OllamaTimeout:   time.Duration(envInt("OLLAMA_TIMEOUT_S", 15)) * time.Second,

		ConfidenceThreshold: envFloat("SLM_CONFIDENCE_THRESHOLD", 0.85),
		CacheTTL:            time.Duration(envInt("CACHE_TTL_S", 300)) * time.Second,

		EdgeModel:          envStr("EDGE_MODEL", "phi3.5"),
		SLMModel:           envStr("SLM_MODEL", "phi3.5"),
		CloudDefaultModel:  envStr("CLOUD_DEFAULT_MODEL", "claude-sonnet-4-6"),
		CloudSQLModel:      envStr("CLOUD_SQL_MODEL", "codestral:22b"),
		CloudAnalysisModel: envStr("CLOUD_ANALYSIS_MODEL", "llama3.3:70b"),
		RLMModel:           envStr("RLM_MODEL", "deepseek-r1:32b"),

		LatencyEdgeMs:  envInt("LATENCY_EDGE_MS", 100),
		LatencySLMMs:   envInt("LATENCY_SLM_MS", 500),
		LatencyCloudMs: envInt("LATENCY_CLOUD_MS", 5000),
		LatencyRLMMs:   envInt("LATENCY_RLM_MS", 60000),

		ComplexitySimpleMax:  envFloat("COMPLEXITY_SIMPLE_MAX", 0.35),
		ComplexityMediumMax:  envFloat("COMPLEXITY_MEDIUM_MAX", 0.65),
		ComplexityComplexMax: envFloat("COMPLEXITY_COMPLEX_MAX", 0.85),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 240),

		RedisAddr:     envStr("REDIS_ADDR", "redis:6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		SigningSecret:    envStr("JWT_SECRET_KEY", "change-me-in-production"),
		SigningAlgorithm: envStr("JWT_ALGORITHM", "HS256"),
		SigningKeyID:     envStr("JWT_KEY_ID", "demo-tenant-key"),
		TokenLifetime:    time.Duration(envInt("JWT_EXPIRE_MINUTES", 60)) * time.Minute,
		TokenMaxLifetime: time.Duration(envInt("JWT_MAX_EXPIRE_MINUTES", 1440)) * time.Minute,

		SecretSource: envStr("SECRET_SOURCE", "env"),
		VaultURL:     envStr("VAULT_URL", "http://localhost:8200"),
		VaultToken:   envStr("VAULT_TOKEN", ""),

		OTLPEndpoint: envStr("OTEL_ENDPOINT", "otel-collector:4317"),
	}

	if cfg.SigningAlgorithm != "HS256" {
		return nil, fmt.Errorf("unsupported signing algorithm %q (only HS256)", cfg.SigningAlgorithm)
	}
	if cfg.SecretSource != "env" && cfg.SecretSource != "vault" {
		return nil, fmt.Errorf("unknown secret source %q", cfg.SecretSource)
	}
	if !(cfg.ComplexitySimpleMax < cfg.ComplexityMediumMax &&
		cfg.ComplexityMediumMax < cfg.ComplexityComplexMax) {
		return nil, fmt.Errorf("complexity thresholds must be strictly increasing")
	}
	return cfg, nil
}

// IsDevelopment reports whether the dev-mode bypasses (demo tenant, local
// login) are active.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
