package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeyName is the entry for this provider in keys.json.
const KeyName = "xai"

// KeyEnvVars are consulted in order when no explicit or stored key exists.
var KeyEnvVars = []string{"LLM_XAI_KEY", "XAI_KEY"}

// LoadKeys reads a keys.json file mapping names to API keys. A missing file
// yields an empty map.
func LoadKeys(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	keys := map[string]string{}
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return keys, nil
}

// ResolveKey returns the API key to use: explicit when non-empty, then the
// stored entry named KeyName in keysFile, then the first set variable in
// KeyEnvVars. An empty result with a nil error means no key is configured.
func ResolveKey(explicit, keysFile string) (string, error) {
	if k := strings.TrimSpace(explicit); k != "" {
		return k, nil
	}
	if keysFile != "" {
		keys, err := LoadKeys(keysFile)
		if err != nil {
			return "", err
		}
		if k := strings.TrimSpace(keys[KeyName]); k != "" {
			return k, nil
		}
	}
	for _, env := range KeyEnvVars {
		if k := strings.TrimSpace(os.Getenv(env)); k != "" {
			return k, nil
		}
	}
	return "", nil
}
