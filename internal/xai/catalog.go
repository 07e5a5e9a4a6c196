package xai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goxai/internal/cache"
)

const (
	// DefaultAPIBase is the provider's OpenAI-compatible API root.
	DefaultAPIBase = "https://api.x.ai/v1/"
	// DefaultModelsURL lists the models available to the key.
	DefaultModelsURL = "https://api.x.ai/v1/models"
	// ModelsFileName is the catalog cache file inside the user directory.
	ModelsFileName = "xAI_models.json"
	// DefaultModelsMaxAge is how long the cached catalog is used without a
	// network check.
	DefaultModelsMaxAge = time.Hour
)

// ModelDescriptor describes one selectable model. Only ID is guaranteed.
type ModelDescriptor struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Catalog is the provider's model listing document.
type Catalog struct {
	Data []ModelDescriptor `json:"data"`
}

// CatalogSource loads the model listing through the on-disk JSON cache.
type CatalogSource struct {
	Cache  *cache.JSONCache
	URL    string
	Path   string
	MaxAge time.Duration
}

// Models returns the descriptors with a non-empty id, in listing order.
func (s *CatalogSource) Models(ctx context.Context, token string) ([]ModelDescriptor, error) {
	url := s.URL
	if url == "" {
		url = DefaultModelsURL
	}
	var cat Catalog
	src, err := s.Cache.FetchInto(ctx, cache.Request{URL: url, Path: s.Path, MaxAge: s.MaxAge, Token: token}, &cat)
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}
	out := make([]ModelDescriptor, 0, len(cat.Data))
	for _, d := range cat.Data {
		if strings.TrimSpace(d.ID) == "" {
			log.Warn().Str("path", s.Path).Msg("skipping model without id")
			continue
		}
		out = append(out, d)
	}
	log.Debug().Str("source", string(src)).Int("count", len(out)).Str("path", s.Path).Msg("model catalog loaded")
	return out, nil
}
