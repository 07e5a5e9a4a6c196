package cache

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Invalidate removes the cache file at path so the next fetch goes to the
// network. A missing file is not an error.
func Invalidate(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("empty path")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Age returns how long ago the cache file at path was last written. The second
// result is false when there is no such file.
func Age(path string, now time.Time) (time.Duration, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return now.Sub(info.ModTime()), true
}
