package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/internal/config"
)

func TestLoadMissingEnvironment(t *testing.T) {
	t.Setenv("TRACKER_BASE_URL", "")
	t.Setenv("TRACKER_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACKER_BASE_URL")
	assert.Contains(t, err.Error(), "TRACKER_API_KEY")
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRACKER_BASE_URL", "https://tracker.example.com/")
	t.Setenv("TRACKER_API_KEY", "key-123")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://tracker.example.com", cfg.TrackerBaseURL, "trailing slash stripped")
	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, 300, int(cfg.CacheTTL.Seconds()))
	assert.Equal(t, config.DefaultMaxIssues, cfg.CacheMaxIssues)
	assert.Equal(t, "feedback", cfg.BlockedStatus)
	assert.Equal(t, config.DefaultOverload, cfg.OverloadThreshold)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRACKER_BASE_URL", "https://tracker.example.com")
	t.Setenv("TRACKER_API_KEY", "key-123")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("PORT", "8080")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("BLOCKED_STATUS", "on_hold")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 60, int(cfg.CacheTTL.Seconds()))
	assert.Equal(t, "on_hold", cfg.BlockedStatus)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestLoadBearerTokenSatisfiesAuth(t *testing.T) {
	t.Setenv("TRACKER_BASE_URL", "https://tracker.example.com")
	t.Setenv("TRACKER_API_KEY", "")
	t.Setenv("TRACKER_BEARER_TOKEN", "oauth-token")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "oauth-token", cfg.TrackerBearerToken)
}
