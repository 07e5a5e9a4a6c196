package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

var (
	// ErrDuplicateModel is returned when a model ID is registered twice.
	ErrDuplicateModel = errors.New("model already registered")
	// ErrUnknownModel is returned when no model matches an ID.
	ErrUnknownModel = errors.New("unknown model")
)

// Registry holds models in registration order. Lookups ignore case.
type Registry struct {
	mu     sync.RWMutex
	models []Model
	byKey  map[string]Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Model)}
}

func foldKey(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}

// Register adds models in order. IDs that differ only by case collide. The
// batch is all or nothing: on any error no model from it is added.
func (r *Registry) Register(models ...Model) error {
	keys := make([]string, len(models))
	seen := make(map[string]bool, len(models))
	for i, m := range models {
		if m == nil {
			return errors.New("nil model")
		}
		key := foldKey(m.ModelID())
		if key == "" {
			return errors.New("empty model id")
		}
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, m.ModelID())
		}
		seen[key] = true
		keys[i] = key
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, key := range keys {
		if _, ok := r.byKey[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, models[i].ModelID())
		}
	}
	for i, key := range keys {
		r.byKey[key] = models[i]
		r.models = append(r.models, models[i])
	}
	return nil
}

// Get returns the model registered under id.
func (r *Registry) Get(id string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byKey[foldKey(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return m, nil
}

// Models returns all models in registration order.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Model(nil), r.models...)
}

// Prompt runs p against the model id and returns the completed response. Each
// chunk is recorded on the response before being passed to emit, which may be
// nil. On success the response is appended to conv when conv is non-nil.
func (r *Registry) Prompt(ctx context.Context, id string, p Prompt, stream bool, conv *Conversation, emit Emit) (*Response, error) {
	m, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(m.ModelID(), p)
	record := func(chunk string) error {
		resp.Append(chunk)
		if emit != nil {
			return emit(chunk)
		}
		return nil
	}
	err = m.Execute(ctx, p, stream, resp, conv, record)
	resp.Duration = time.Since(resp.Started)
	if err != nil {
		return resp, err
	}
	log.Debug().Str("model", m.ModelID()).Str("response", resp.ID).Dur("took", resp.Duration).Msg("prompt complete")
	if conv != nil {
		conv.Responses = append(conv.Responses, resp)
	}
	return resp, nil
}
