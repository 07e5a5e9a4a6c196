package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Provider
	APIKey  string
	APIBase string

	// Model catalog
	ModelsURL    string
	ModelsMaxAge time.Duration

	// UserDir holds keys.json and the catalog cache. Empty means UserDir().
	UserDir string

	// Behavior
	CacheStrictPerms bool
	Verbose          bool
}
