package xai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goxai/internal/host"
	"github.com/hyperifyio/goxai/internal/llm"
)

// Model ID prefixes for the two adapters registered per catalog entry.
const (
	ChatPrefix       = "xAI/"
	CompletionPrefix = "xAIcompletion/"
)

// DefaultHeaders are sent with every completion request.
var DefaultHeaders = map[string]string{
	"HTTP-Referer": "https://llm.datasette.io/",
	"X-Title":      "LLM",
}

// Config carries everything Register needs. The key is resolved by the caller.
type Config struct {
	APIKey  string
	APIBase string
	Headers map[string]string
	Catalog *CatalogSource
	// HTTPClient is used for completion requests when Client is nil.
	HTTPClient *http.Client
	// Client overrides the OpenAI-compatible client built from the fields above.
	Client llm.Client
}

// Register loads the model catalog and registers one chat model per entry,
// followed by one completion model per entry. The models are registered as
// one batch, so a failure leaves reg unchanged. Without an API key nothing is
// registered and no request is made. It returns the number of models
// registered.
func Register(ctx context.Context, reg host.Registrar, cfg Config) (int, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Debug().Msg("xai key not set; skipping model registration")
		return 0, nil
	}
	if cfg.Catalog == nil {
		return 0, errors.New("xai: catalog source not configured")
	}
	models, err := cfg.Catalog.Models(ctx, cfg.APIKey)
	if err != nil {
		return 0, err
	}

	client := cfg.Client
	if client == nil {
		base := cfg.APIBase
		if base == "" {
			base = DefaultAPIBase
		}
		headers := cfg.Headers
		if headers == nil {
			headers = DefaultHeaders
		}
		client = llm.New(llm.Config{APIKey: cfg.APIKey, BaseURL: base, Headers: headers, HTTPClient: cfg.HTTPClient})
	}

	batch := make([]host.Model, 0, 2*len(models))
	for _, d := range models {
		batch = append(batch, &ChatModel{ID: ChatPrefix + d.ID, Name: d.ID, Client: client})
	}
	for _, d := range models {
		batch = append(batch, &CompletionModel{ID: CompletionPrefix + d.ID, Name: d.ID, Client: client})
	}
	if err := reg.Register(batch...); err != nil {
		return 0, err
	}
	n := len(batch)
	log.Info().Int("models", len(models)).Int("registered", n).Msg("xai models registered")
	return n, nil
}
