package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("dispatch-router")
	require.NoError(t, err)

	assert.Equal(t, "dispatch-router", cfg.ServiceName)
	assert.Equal(t, "phi3.5", cfg.IntentModel)
	assert.Equal(t, "gemma2:2b", cfg.ComplexityModel)
	assert.Equal(t, 0.85, cfg.ConfidenceThreshold)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL)
	assert.Equal(t, 60*time.Minute, cfg.TokenLifetime)
	assert.Equal(t, 24*time.Hour, cfg.TokenMaxLifetime)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLM_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("CACHE_TTL_S", "60")
	t.Setenv("ENV", "production")

	cfg, err := Load("dispatch-router")
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.ConfidenceThreshold)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsUnknownAlgorithm(t *testing.T) {
	t.Setenv("JWT_ALGORITHM", "none")
	_, err := Load("dispatch-auth")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownSecretSource(t *testing.T) {
	t.Setenv("SECRET_SOURCE", "filesystem")
	_, err := Load("dispatch-auth")
	assert.Error(t, err)
}

func TestLoadRejectsNonIncreasingThresholds(t *testing.T) {
	t.Setenv("COMPLEXITY_SIMPLE_MAX", "0.7")
	t.Setenv("COMPLEXITY_MEDIUM_MAX", "0.6")
	_, err := Load("dispatch-router")
	assert.Error(t, err)
}
