package app

import (
	"os"
	"strings"
	"time"
)

// Environment variables read by ApplyEnvOverrides. The API key itself is
// resolved separately by ResolveKey. EnvConfigPath names the config file and is
// read by the command line after dotenv files are loaded.
const (
	EnvConfigPath   = "GOXAI_CONFIG"
	EnvAPIBase      = "XAI_API_BASE"
	EnvModelsURL    = "XAI_MODELS_URL"
	EnvModelsMaxAge = "XAI_MODELS_MAX_AGE"
	EnvUserPath     = "LLM_USER_PATH"
	EnvStrictPerms  = "XAI_CACHE_STRICT_PERMS"
	EnvVerbose      = "VERBOSE"
)

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This is used to let env take
// precedence over values coming from a config file while still allowing flags
// to remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv(EnvAPIBase); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv(EnvModelsURL); v != "" {
		cfg.ModelsURL = v
	}
	if v := os.Getenv(EnvUserPath); v != "" {
		cfg.UserDir = v
	}
	if d, ok := envDuration(EnvModelsMaxAge); ok {
		cfg.ModelsMaxAge = d
	}

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, envKey string) {
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
			switch s {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}
	setBool(&cfg.CacheStrictPerms, EnvStrictPerms)
	setBool(&cfg.Verbose, EnvVerbose)
}

func envDuration(key string) (time.Duration, bool) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
