package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Source reports which step produced a cached fetch result.
type Source string

const (
	// SourceFresh means the on-disk copy was within the freshness window.
	SourceFresh Source = "fresh"
	// SourceNetwork means the body was downloaded and written to disk.
	SourceNetwork Source = "network"
	// SourceStale means the download failed and an expired copy was served.
	SourceStale Source = "stale"
)

// ErrDownloadFailed matches any *DownloadFailedError via errors.Is.
var ErrDownloadFailed = errors.New("download failed and no cache is available")

// errInvalidJSON marks a 2xx response whose body does not parse as JSON. It is
// handled like a transport failure so a corrupt download never reaches disk.
var errInvalidJSON = errors.New("response body is not valid JSON")

// DownloadFailedError is returned when the network fetch failed and there is
// no cache file at Path to fall back to.
type DownloadFailedError struct {
	Path string
	Err  error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("failed to download data and no cache is available at %s: %v", e.Path, e.Err)
}

func (e *DownloadFailedError) Unwrap() error { return e.Err }

func (e *DownloadFailedError) Is(target error) bool { return target == ErrDownloadFailed }

// Getter performs a single HTTP GET and returns the body of a 2xx response.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// Request describes one cached fetch.
type Request struct {
	URL string
	// Path is the cache file. Parent directories are created on write.
	Path string
	// MaxAge is the freshness window measured against the file mtime.
	MaxAge time.Duration
	// Token is sent as a bearer credential. May be empty.
	Token string
}

// JSONCache keeps one JSON document per path on disk and refreshes it from the
// network once it is older than the request's freshness window. When the
// refresh fails an expired copy is served instead.
//
// Concurrent calls for the same path, URL and token within one process share
// a single download. A caller whose context ends stops waiting and falls back
// on its own; the shared download continues for the others. Writes are not
// atomic and there is no cross-process locking.
type JSONCache struct {
	Getter Getter
	// StrictPerms, when true, writes directories as 0700 and files as 0600.
	StrictPerms bool
	// Now is used for freshness checks. Defaults to time.Now.
	Now func() time.Time

	sf singleflight.Group
}

type loadResult struct {
	body   []byte
	source Source
}

// Fetch returns the parsed JSON document for req. The result is the generic
// encoding/json representation (map[string]any, []any, ...).
func (c *JSONCache) Fetch(ctx context.Context, req Request) (any, error) {
	var v any
	if _, err := c.FetchInto(ctx, req, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// FetchInto decodes the document for req into v and reports where it came from.
// A cache file that fails to decode is reported as is; it is not removed.
func (c *JSONCache) FetchInto(ctx context.Context, req Request, v any) (Source, error) {
	body, src, err := c.Load(ctx, req)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return src, fmt.Errorf("decode %s: %w", req.Path, err)
	}
	return src, nil
}

// Load returns the raw JSON bytes for req without decoding them.
func (c *JSONCache) Load(ctx context.Context, req Request) ([]byte, Source, error) {
	if c == nil || c.Getter == nil {
		return nil, "", errors.New("json cache: getter not configured")
	}
	if req.Path == "" {
		return nil, "", errors.New("json cache: path is required")
	}
	// The shared download must not inherit one caller's cancellation.
	ch := c.sf.DoChan(flightKey(req), func() (any, error) {
		body, src, err := c.load(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, err
		}
		return loadResult{body: body, source: src}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		lr := res.Val.(loadResult)
		return lr.body, lr.source, nil
	case <-ctx.Done():
		return c.fallback(req, ctx.Err())
	}
}

// flightKey groups callers that would send the identical request.
func flightKey(req Request) string {
	return req.Path + "\x00" + req.URL + "\x00" + req.Token
}

func (c *JSONCache) load(ctx context.Context, req Request) ([]byte, Source, error) {
	if info, err := os.Stat(req.Path); err == nil && info.Mode().IsRegular() {
		if c.now().Sub(info.ModTime()) < req.MaxAge {
			b, err := os.ReadFile(req.Path)
			if err != nil {
				return nil, "", err
			}
			return b, SourceFresh, nil
		}
	}

	body, fetchErr := c.download(ctx, req)
	if fetchErr == nil {
		if err := c.save(req.Path, body); err != nil {
			return nil, "", err
		}
		return body, SourceNetwork, nil
	}

	return c.fallback(req, fetchErr)
}

// fallback serves the expired file after a failed fetch, or reports
// DownloadFailedError when there is none.
func (c *JSONCache) fallback(req Request, fetchErr error) ([]byte, Source, error) {
	if !isFile(req.Path) {
		return nil, "", &DownloadFailedError{Path: req.Path, Err: fetchErr}
	}
	log.Warn().Err(fetchErr).Str("url", req.URL).Str("path", req.Path).Msg("download failed; serving stale cache")
	b, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, "", err
	}
	return b, SourceStale, nil
}

func (c *JSONCache) download(ctx context.Context, req Request) ([]byte, error) {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+req.Token)
	header.Set("Content-Type", "application/json")
	body, err := c.Getter.Get(ctx, req.URL, header)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errInvalidJSON
	}
	return body, nil
}

func (c *JSONCache) save(path string, body []byte) error {
	dirMode, fileMode := os.FileMode(0o755), os.FileMode(0o644)
	if c.StrictPerms {
		dirMode, fileMode = 0o700, 0o600
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if c.StrictPerms {
		if info, err := os.Stat(dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(dir, 0o700)
		}
	}
	if err := os.WriteFile(path, body, fileMode); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if c.StrictPerms {
		// WriteFile keeps the mode of an existing file
		_ = os.Chmod(path, 0o600)
	}
	return nil
}

func (c *JSONCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
