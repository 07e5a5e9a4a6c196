// Package host defines the contract between model adapters and the program
// that drives them: prompts, conversations, responses and a model registry.
package host

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSystemPromptUnsupported is returned by models that cannot take a system prompt.
var ErrSystemPromptUnsupported = errors.New("model does not support system prompts")

// Prompt is one user request to a model.
type Prompt struct {
	Text   string
	System string
	// Options holds raw key=value settings; each model parses its own.
	Options map[string]string
}

// Usage records token counts reported by the provider.
type Usage struct {
	Input   int
	Output  int
	Details map[string]any
}

// Response accumulates the output of one model execution.
type Response struct {
	ID       string
	ModelID  string
	Prompt   Prompt
	Started  time.Time
	Duration time.Duration
	// ResponseJSON is the provider payload kept for logging.
	ResponseJSON any
	Usage        *Usage

	chunks []string
}

// NewResponse returns an empty response for modelID and p.
func NewResponse(modelID string, p Prompt) *Response {
	return &Response{
		ID:      uuid.NewString(),
		ModelID: modelID,
		Prompt:  p,
		Started: time.Now(),
	}
}

// Append adds a chunk of output text.
func (r *Response) Append(chunk string) { r.chunks = append(r.chunks, chunk) }

// Chunks returns the output chunks in order.
func (r *Response) Chunks() []string { return append([]string(nil), r.chunks...) }

// Text returns the full output text.
func (r *Response) Text() string { return strings.Join(r.chunks, "") }

// SetUsage records token usage. Empty details are dropped.
func (r *Response) SetUsage(input, output int, details map[string]any) {
	if len(details) == 0 {
		details = nil
	}
	r.Usage = &Usage{Input: input, Output: output, Details: details}
}

// Conversation is an ordered list of completed responses.
type Conversation struct {
	ID        string
	Responses []*Response
}

// NewConversation returns an empty conversation with a fresh ID.
func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Emit receives output chunks as a model produces them. A non-nil error stops
// the execution and is returned from Execute.
type Emit func(chunk string) error

// Model is implemented by every registered adapter.
type Model interface {
	ModelID() string
	String() string
	// Execute runs p. stream is a request, not a guarantee; models may fall
	// back to a single chunk. conv may be nil.
	Execute(ctx context.Context, p Prompt, stream bool, resp *Response, conv *Conversation, emit Emit) error
}

// Registrar accepts models during plugin registration. A batch is added
// whole or not at all.
type Registrar interface {
	Register(models ...Model) error
}
