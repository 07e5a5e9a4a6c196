package llm

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the subset of the OpenAI-compatible API used by the model
// adapters. *openai.Client satisfies it directly; OpenAIProvider wraps one.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	CreateCompletion(ctx context.Context, request openai.CompletionRequest) (openai.CompletionResponse, error)
	CreateCompletionStream(ctx context.Context, request openai.CompletionRequest) (*openai.CompletionStream, error)
}

// Config describes how to reach an OpenAI-compatible server.
type Config struct {
	APIKey  string
	BaseURL string
	// Headers are added to every request, overriding any set by the client.
	Headers map[string]string
	// HTTPClient is copied; its transport is wrapped to add Headers.
	HTTPClient *http.Client
}

// OpenAIProvider adapts *openai.Client to the Client interface.
type OpenAIProvider struct {
	Inner *openai.Client
}

// New builds an OpenAIProvider from cfg.
func New(cfg Config) *OpenAIProvider {
	transportCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		// go-openai joins BaseURL and "/chat/completions" verbatim
		transportCfg.BaseURL = strings.TrimRight(base, "/")
	}
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		hc = &c
	}
	if len(cfg.Headers) > 0 {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc.Transport = &headerTransport{base: base, header: cfg.Headers}
	}
	transportCfg.HTTPClient = hc
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(transportCfg)}
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return p.Inner.CreateChatCompletionStream(ctx, request)
}

func (p *OpenAIProvider) CreateCompletion(ctx context.Context, request openai.CompletionRequest) (openai.CompletionResponse, error) {
	return p.Inner.CreateCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateCompletionStream(ctx context.Context, request openai.CompletionRequest) (*openai.CompletionStream, error) {
	return p.Inner.CreateCompletionStream(ctx, request)
}

type headerTransport struct {
	base   http.RoundTripper
	header map[string]string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.header {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}
