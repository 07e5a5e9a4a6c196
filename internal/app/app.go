package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goxai/internal/cache"
	"github.com/hyperifyio/goxai/internal/fetch"
	"github.com/hyperifyio/goxai/internal/host"
	"github.com/hyperifyio/goxai/internal/xai"
)

// catalogTimeout bounds one catalog download. The download outlives the
// caller that started it when other callers are waiting on it.
const catalogTimeout = 30 * time.Second

// ErrNoKey is returned by operations that need the provider but have no key.
var ErrNoKey = errors.New("no xai key configured (set LLM_XAI_KEY or store \"xai\" in keys.json)")

// App wires configuration, credentials, the catalog cache and the model
// registry together.
type App struct {
	cfg        Config
	userDir    string
	key        string
	httpClient *http.Client
	catalog    *xai.CatalogSource
	registry   *host.Registry

	registerMu sync.Mutex
	registered bool
}

// PromptRequest is one prompt invocation from the command line.
type PromptRequest struct {
	Model    string
	Text     string
	System   string
	Options  map[string]string
	NoStream bool
}

// New validates cfg, resolves the API key and prepares the catalog source.
// No network request is made.
func New(_ context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	dir, err := cfg.userDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user dir: %w", err)
	}
	key, err := ResolveKey(cfg.APIKey, keysPath(dir))
	if err != nil {
		return nil, fmt.Errorf("resolve key: %w", err)
	}
	maxAge := cfg.ModelsMaxAge
	if maxAge == 0 {
		maxAge = xai.DefaultModelsMaxAge
	}
	modelsURL := cfg.ModelsURL
	if modelsURL == "" {
		modelsURL = xai.DefaultModelsURL
	}

	hc := newHTTPClient()
	a := &App{
		cfg:        cfg,
		userDir:    dir,
		key:        key,
		httpClient: hc,
		registry:   host.NewRegistry(),
		catalog: &xai.CatalogSource{
			Cache: &cache.JSONCache{
				Getter:      &fetch.Client{HTTPClient: hc, UserAgent: "goxai/" + BuildVersion, PerRequestTimeout: catalogTimeout},
				StrictPerms: cfg.CacheStrictPerms,
			},
			URL:    modelsURL,
			Path:   modelsCachePath(dir),
			MaxAge: maxAge,
		},
	}
	log.Debug().Str("userDir", dir).Bool("key", key != "").Dur("modelsMaxAge", maxAge).Msg("app configured")
	return a, nil
}

func (a *App) Close() {
	a.httpClient.CloseIdleConnections()
}

// HasKey reports whether an API key was resolved.
func (a *App) HasKey() bool { return a.key != "" }

// CachePath returns the catalog cache file location.
func (a *App) CachePath() string { return a.catalog.Path }

// Registry returns the model registry. Models appear after Register.
func (a *App) Registry() *host.Registry { return a.registry }

// Register loads the catalog and registers the provider's models. After the
// first success later calls do nothing. A failed attempt registers nothing
// and the next call tries again.
func (a *App) Register(ctx context.Context) error {
	a.registerMu.Lock()
	defer a.registerMu.Unlock()
	if a.registered {
		return nil
	}
	if _, err := xai.Register(ctx, a.registry, xai.Config{
		APIKey:     a.key,
		APIBase:    a.cfg.APIBase,
		Catalog:    a.catalog,
		HTTPClient: a.httpClient,
	}); err != nil {
		return err
	}
	a.registered = true
	return nil
}

// Models registers the provider's models and returns them in order.
func (a *App) Models(ctx context.Context) ([]host.Model, error) {
	if err := a.Register(ctx); err != nil {
		return nil, err
	}
	return a.registry.Models(), nil
}

// Prompt runs req and writes output chunks to w as they arrive.
func (a *App) Prompt(ctx context.Context, req PromptRequest, w io.Writer) (*host.Response, error) {
	if !a.HasKey() {
		return nil, ErrNoKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("model is required")
	}
	if err := a.Register(ctx); err != nil {
		return nil, err
	}
	p := host.Prompt{Text: req.Text, System: req.System, Options: req.Options}
	resp, err := a.registry.Prompt(ctx, req.Model, p, !req.NoStream, nil, func(chunk string) error {
		_, err := io.WriteString(w, chunk)
		return err
	})
	if err != nil {
		return resp, err
	}
	ev := log.Debug().Str("model", resp.ModelID).Str("id", resp.ID).Dur("took", resp.Duration)
	if resp.Usage != nil {
		ev = ev.Int("input", resp.Usage.Input).Int("output", resp.Usage.Output)
	}
	ev.Msg("response")
	return resp, nil
}

// Refresh discards the cached catalog and downloads it again. It returns the
// number of models listed.
func (a *App) Refresh(ctx context.Context) (int, error) {
	if !a.HasKey() {
		return 0, ErrNoKey
	}
	if age, ok := cache.Age(a.catalog.Path, time.Now()); ok {
		log.Debug().Dur("age", age).Str("path", a.catalog.Path).Msg("discarding cached catalog")
	}
	if err := cache.Invalidate(a.catalog.Path); err != nil {
		return 0, fmt.Errorf("invalidate catalog cache: %w", err)
	}
	models, err := a.catalog.Models(ctx, a.key)
	if err != nil {
		return 0, err
	}
	return len(models), nil
}
