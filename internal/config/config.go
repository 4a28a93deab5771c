// Package config loads gateway configuration from the environment and
// holds the compiled-in tracker enum maps.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort        = 3001
	DefaultTTLSeconds  = 300
	DefaultMaxIssues   = 1000
	DefaultBlockedName = "feedback"
	DefaultOverload    = 10
	DefaultLLMModel    = "claude-haiku-4-5"
)

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	TrackerBaseURL string
	TrackerAPIKey  string
	// TrackerBearerToken is set when the deployment uses the OAuth path
	// (TRACKER_CLIENT_ID/TRACKER_CLIENT_SECRET exchanged elsewhere); the
	// client sends it as a Bearer credential instead of the API-key header.
	TrackerBearerToken string

	LLMAPIKey string
	LLMModel  string

	Port           int
	CacheTTL       time.Duration
	CacheMaxIssues int
	AllowedOrigins []string

	// BlockedStatus is the status name treated as the "blocked" marker.
	// Installation-specific; feedback is the conventional choice.
	BlockedStatus string
	// OverloadThreshold is the open-issue count above which a team member
	// counts as overloaded.
	OverloadThreshold int
}

// Load reads configuration from the environment. Missing required variables
// produce an error; the caller is expected to exit non-zero.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("CACHE_TTL_SECONDS", DefaultTTLSeconds)
	v.SetDefault("CACHE_MAX_ISSUES", DefaultMaxIssues)
	v.SetDefault("BLOCKED_STATUS", DefaultBlockedName)
	v.SetDefault("OVERLOAD_THRESHOLD", DefaultOverload)
	v.SetDefault("LLM_MODEL", DefaultLLMModel)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")

	cfg := &Config{
		TrackerBaseURL:     strings.TrimRight(v.GetString("TRACKER_BASE_URL"), "/"),
		TrackerAPIKey:      v.GetString("TRACKER_API_KEY"),
		TrackerBearerToken: v.GetString("TRACKER_BEARER_TOKEN"),
		LLMAPIKey:          v.GetString("LLM_API_KEY"),
		LLMModel:           v.GetString("LLM_MODEL"),
		Port:               v.GetInt("PORT"),
		CacheTTL:           time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		CacheMaxIssues:     v.GetInt("CACHE_MAX_ISSUES"),
		BlockedStatus:      v.GetString("BLOCKED_STATUS"),
		OverloadThreshold:  v.GetInt("OVERLOAD_THRESHOLD"),
	}

	for _, origin := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var missing []string
	if cfg.TrackerBaseURL == "" {
		missing = append(missing, "TRACKER_BASE_URL")
	}
	if cfg.TrackerAPIKey == "" && cfg.TrackerBearerToken == "" {
		missing = append(missing, "TRACKER_API_KEY")
	}
	if cfg.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}
