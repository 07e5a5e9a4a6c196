package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperifyio/goxai/internal/xai"
)

// userDirName matches the directory used by the llm command line tool so
// keys.json and cached catalogs are shared with it.
const userDirName = "io.datasette.llm"

// UserDir returns $LLM_USER_PATH when set, otherwise the per-user config
// directory for llm.
func UserDir() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvUserPath)); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, userDirName), nil
}

func (c Config) userDir() (string, error) {
	if d := strings.TrimSpace(c.UserDir); d != "" {
		return d, nil
	}
	return UserDir()
}

// modelsCachePath returns the catalog cache file under the user directory.
func modelsCachePath(userDir string) string {
	return filepath.Join(userDir, xai.ModelsFileName)
}

// keysPath returns the stored-keys file under the user directory.
func keysPath(userDir string) string {
	return filepath.Join(userDir, "keys.json")
}
