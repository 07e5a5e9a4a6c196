package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	// Key is accepted for completeness; prefer keys.json or the environment.
	Key     string `yaml:"key" json:"key"`
	APIBase string `yaml:"apiBase" json:"apiBase"`

	Models struct {
		URL    string   `yaml:"url" json:"url"`
		MaxAge Duration `yaml:"maxAge" json:"maxAge"`
	} `yaml:"models" json:"models"`

	UserDir string `yaml:"userDir" json:"userDir"`

	Cache struct {
		StrictPerms bool `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Duration accepts Go duration strings ("90m") in YAML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.APIKey == "" && fc.Key != "" {
		cfg.APIKey = fc.Key
	}
	if cfg.APIBase == "" && fc.APIBase != "" {
		cfg.APIBase = fc.APIBase
	}
	if cfg.ModelsURL == "" && fc.Models.URL != "" {
		cfg.ModelsURL = fc.Models.URL
	}
	if cfg.ModelsMaxAge == 0 && fc.Models.MaxAge > 0 {
		cfg.ModelsMaxAge = time.Duration(fc.Models.MaxAge)
	}
	if cfg.UserDir == "" && fc.UserDir != "" {
		cfg.UserDir = fc.UserDir
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal schema validation.
func ValidateConfig(cfg Config) error {
	if cfg.ModelsMaxAge < 0 {
		return errors.New("config: models.maxAge must not be negative")
	}
	for name, u := range map[string]string{"apiBase": cfg.APIBase, "models.url": cfg.ModelsURL} {
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("config: %s must be an http(s) URL, got %q", name, u)
		}
	}
	return nil
}
