package xai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goxai/internal/host"
	"github.com/hyperifyio/goxai/internal/llm"
)

// ChatModel runs prompts through the chat completions endpoint.
type ChatModel struct {
	// ID is the registered identifier, e.g. "xAI/grok-3".
	ID string
	// Name is the provider's model name. Defaults to ID.
	Name   string
	Client llm.Client
}

func (m *ChatModel) ModelID() string { return m.ID }

func (m *ChatModel) String() string { return "xAI: " + m.ID }

func (m *ChatModel) modelName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Execute sends p as a chat completion. A requested reasoning effort forces a
// non-streaming call so the reasoning text can be shown ahead of the answer.
func (m *ChatModel) Execute(ctx context.Context, p host.Prompt, stream bool, resp *host.Response, conv *host.Conversation, emit host.Emit) error {
	opts, err := ParseOptions(p.Options)
	if err != nil {
		return err
	}
	if opts.HasReasoning() && stream {
		log.Debug().Str("model", m.ID).Msg("reasoning effort set; streaming disabled")
		stream = false
	}
	req := m.buildRequest(p, conv, opts)
	if !stream {
		return m.complete(ctx, req, opts, resp, emit)
	}
	return m.stream(ctx, req, resp, emit)
}

// buildMessages returns the system prompt, each earlier exchange as a
// user/assistant pair, and the current prompt.
func buildMessages(p host.Prompt, conv *host.Conversation) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if strings.TrimSpace(p.System) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	if conv != nil {
		for _, prev := range conv.Responses {
			msgs = append(msgs,
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prev.Prompt.Text},
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: prev.Text()},
			)
		}
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Text})
}

// buildRequest never sets StreamOptions; usage still arrives on the final
// chunk when the provider sends it.
func (m *ChatModel) buildRequest(p host.Prompt, conv *host.Conversation, opts Options) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:            m.modelName(),
		Messages:         buildMessages(p, conv),
		MaxTokens:        opts.MaxTokens,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stop:             opts.Stop,
		Seed:             opts.Seed,
		User:             opts.User,
		ReasoningEffort:  string(opts.ReasoningEffort),
	}
}

func (m *ChatModel) complete(ctx context.Context, req openai.ChatCompletionRequest, opts Options, resp *host.Response, emit host.Emit) error {
	completion, err := m.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("xai chat: %w", err)
	}
	raw, err := dump(completion)
	if err != nil {
		return fmt.Errorf("xai chat: encode response: %w", err)
	}
	resp.ResponseJSON = raw
	recordUsage(resp, raw["usage"])
	if len(completion.Choices) == 0 {
		return ErrNoChoices
	}
	msg := completion.Choices[0].Message
	if opts.HasReasoning() && msg.ReasoningContent != "" {
		return emit(formatReasoning(msg.ReasoningContent, msg.Content))
	}
	return emit(msg.Content)
}

func (m *ChatModel) stream(ctx context.Context, req openai.ChatCompletionRequest, resp *host.Response, emit host.Emit) error {
	s, err := m.Client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("xai chat stream: %w", err)
	}
	defer s.Close()

	var content strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("xai chat stream: %w", err)
		}
		if chunk.Usage != nil {
			if u, err := dump(chunk.Usage); err == nil {
				recordUsage(resp, u)
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		piece := chunk.Choices[0].Delta.Content
		if piece == "" {
			continue
		}
		content.WriteString(piece)
		if err := emit(piece); err != nil {
			return err
		}
	}
	resp.ResponseJSON = map[string]any{"content": content.String()}
	return nil
}
