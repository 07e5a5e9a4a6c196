// Package stub serves a minimal OpenAI-compatible API shaped like xAI's:
// a model list, chat completions and text completions, each with optional
// SSE streaming. It backs local runs and adapter tests.
package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Message is one chat message as received on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the subset of a chat completion request the stub inspects.
type ChatRequest struct {
	Model           string          `json:"model"`
	Messages        []Message       `json:"messages"`
	Stream          bool            `json:"stream"`
	MaxTokens       int             `json:"max_tokens"`
	Temperature     float64         `json:"temperature"`
	Stop            []string        `json:"stop"`
	ReasoningEffort string          `json:"reasoning_effort"`
	StreamOptions   json.RawMessage `json:"stream_options"`
}

// CompletionRequest is the subset of a text completion request the stub inspects.
type CompletionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Stream    bool   `json:"stream"`
	MaxTokens int    `json:"max_tokens"`
}

// Server holds the canned catalog and records the last request of each kind.
type Server struct {
	// Models are the ids served from /v1/models.
	Models []string
	// Reasoning is returned as reasoning_content on non-streaming chat
	// responses when the request sets reasoning_effort.
	Reasoning string

	failModels atomic.Bool
	modelHits  atomic.Int32

	mu             sync.Mutex
	lastChat       ChatRequest
	lastCompletion CompletionRequest
	lastHeader     http.Header
}

// New returns a Server listing models.
func New(models ...string) *Server {
	return &Server{Models: models, Reasoning: "Thinking it through."}
}

// SetFailModels makes /v1/models answer 503 while on is true.
func (s *Server) SetFailModels(on bool) { s.failModels.Store(on) }

// ModelHits reports how many times /v1/models was requested.
func (s *Server) ModelHits() int { return int(s.modelHits.Load()) }

// LastChat returns the last chat request and its headers.
func (s *Server) LastChat() (ChatRequest, http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChat, s.lastHeader.Clone()
}

// LastCompletion returns the last text completion request.
func (s *Server) LastCompletion() CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompletion
}

// Handler returns the HTTP routes under /v1.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	mux.HandleFunc("/v1/completions", s.handleCompletion)
	return mux
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.modelHits.Add(1)
	if s.failModels.Load() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	data := make([]map[string]any, 0, len(s.Models))
	for _, id := range s.Models {
		data = append(data, map[string]any{"id": id, "object": "model", "created": 1700000000, "owned_by": "xai"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.lastChat = req
	s.lastHeader = r.Header.Clone()
	s.mu.Unlock()

	user := ""
	if n := len(req.Messages); n > 0 {
		user = req.Messages[n-1].Content
	}
	reply := "echo: " + user
	usage := usageFor(req.Messages, reply)

	if req.Stream {
		chunks := make([]any, 0, 8)
		for _, piece := range strings.SplitAfter(reply, " ") {
			chunks = append(chunks, map[string]any{
				"id": "chatcmpl-stub", "object": "chat.completion.chunk", "created": time.Now().Unix(), "model": req.Model,
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": piece}}},
			})
		}
		chunks = append(chunks, map[string]any{
			"id": "chatcmpl-stub", "object": "chat.completion.chunk", "created": time.Now().Unix(), "model": req.Model,
			"choices": []map[string]any{}, "usage": usage,
		})
		writeSSE(w, chunks)
		return
	}

	msg := map[string]any{"role": "assistant", "content": reply}
	if req.ReasoningEffort != "" && s.Reasoning != "" {
		msg["reasoning_content"] = s.Reasoning
	}
	writeJSON(w, map[string]any{
		"id": "chatcmpl-stub", "object": "chat.completion", "created": time.Now().Unix(), "model": req.Model,
		"choices": []map[string]any{{"index": 0, "message": msg, "finish_reason": "stop"}},
		"usage":   usage,
	})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.lastCompletion = req
	s.lastHeader = r.Header.Clone()
	s.mu.Unlock()

	reply := "echo: " + req.Prompt
	if req.Stream {
		chunks := make([]any, 0, 8)
		for _, piece := range strings.SplitAfter(reply, " ") {
			chunks = append(chunks, map[string]any{
				"id": "cmpl-stub", "object": "text_completion", "created": time.Now().Unix(), "model": req.Model,
				"choices": []map[string]any{{"index": 0, "text": piece}},
			})
		}
		writeSSE(w, chunks)
		return
	}
	writeJSON(w, map[string]any{
		"id": "cmpl-stub", "object": "text_completion", "created": time.Now().Unix(), "model": req.Model,
		"choices": []map[string]any{{"index": 0, "text": reply, "finish_reason": "stop"}},
		"usage":   usageFor([]Message{{Content: req.Prompt}}, reply),
	})
}

// usageFor counts whitespace-separated words as tokens.
func usageFor(in []Message, out string) map[string]any {
	prompt := 0
	for _, m := range in {
		prompt += len(strings.Fields(m.Content))
	}
	completion := len(strings.Fields(out))
	return map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      prompt + completion,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, chunks []any) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		b, err := json.Marshal(c)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}
