package xai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goxai/internal/host"
	"github.com/hyperifyio/goxai/internal/llm"
)

// CompletionModel runs prompts through the legacy text completions endpoint.
type CompletionModel struct {
	// ID is the registered identifier, e.g. "xAIcompletion/grok-3".
	ID string
	// Name is the provider's model name. Defaults to ID.
	Name   string
	Client llm.Client
}

func (m *CompletionModel) ModelID() string { return m.ID }

func (m *CompletionModel) String() string { return "xAI: " + m.ID }

func (m *CompletionModel) modelName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Execute sends the conversation so far as one prompt string. System prompts
// are rejected. A requested reasoning effort only disables streaming; the
// completion request type has no field to carry it.
func (m *CompletionModel) Execute(ctx context.Context, p host.Prompt, stream bool, resp *host.Response, conv *host.Conversation, emit host.Emit) error {
	if p.System != "" {
		return fmt.Errorf("%w: text completion models take no system prompt", host.ErrSystemPromptUnsupported)
	}
	opts, err := ParseOptions(p.Options)
	if err != nil {
		return err
	}
	if opts.HasReasoning() && stream {
		stream = false
	}
	req := openai.CompletionRequest{
		Model:            m.modelName(),
		Prompt:           buildPrompt(p, conv),
		MaxTokens:        opts.MaxTokens,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stop:             opts.Stop,
		Seed:             opts.Seed,
		User:             opts.User,
	}
	if !stream {
		return m.complete(ctx, req, resp, emit)
	}
	return m.stream(ctx, req, resp, emit)
}

// buildPrompt joins earlier prompts and responses with the current prompt,
// one per line.
func buildPrompt(p host.Prompt, conv *host.Conversation) string {
	var parts []string
	if conv != nil {
		for _, prev := range conv.Responses {
			parts = append(parts, prev.Prompt.Text, prev.Text())
		}
	}
	return strings.Join(append(parts, p.Text), "\n")
}

func (m *CompletionModel) complete(ctx context.Context, req openai.CompletionRequest, resp *host.Response, emit host.Emit) error {
	completion, err := m.Client.CreateCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("xai completion: %w", err)
	}
	raw, err := dump(completion)
	if err != nil {
		return fmt.Errorf("xai completion: encode response: %w", err)
	}
	resp.ResponseJSON = raw
	recordUsage(resp, raw["usage"])
	if len(completion.Choices) == 0 {
		return ErrNoChoices
	}
	return emit(completion.Choices[0].Text)
}

func (m *CompletionModel) stream(ctx context.Context, req openai.CompletionRequest, resp *host.Response, emit host.Emit) error {
	s, err := m.Client.CreateCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("xai completion stream: %w", err)
	}
	defer s.Close()

	var text strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("xai completion stream: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
			continue
		}
		piece := chunk.Choices[0].Text
		text.WriteString(piece)
		if err := emit(piece); err != nil {
			return err
		}
	}
	resp.ResponseJSON = map[string]any{"text": text.String()}
	return nil
}
