package xai

import (
	"encoding/json"
	"errors"

	"github.com/hyperifyio/goxai/internal/host"
)

// ErrNoChoices is returned when the provider answers without any choice.
var ErrNoChoices = errors.New("provider returned no choices")

// formatReasoning joins reasoning and answer into the single chunk emitted
// for non-streaming reasoning responses.
func formatReasoning(reasoning, content string) string {
	return "Reasoning Content:\n" + reasoning + "\n\nFinal Response:\n" + content
}

// dump converts a typed API response into its generic JSON form.
func dump(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// recordUsage copies a "usage" object onto resp. Prompt and completion token
// counts become Input and Output; other non-empty fields are kept as details.
func recordUsage(resp *host.Response, usage any) {
	m, ok := usage.(map[string]any)
	if !ok || len(m) == 0 {
		return
	}
	input := intField(m, "prompt_tokens")
	output := intField(m, "completion_tokens")
	details := make(map[string]any)
	for k, v := range m {
		switch k {
		case "prompt_tokens", "completion_tokens", "total_tokens":
			continue
		}
		if v = simplify(v); v != nil {
			details[k] = v
		}
	}
	if input == 0 && output == 0 && len(details) == 0 {
		return
	}
	resp.SetUsage(input, output, details)
}

// simplify drops zero numbers and empty objects, recursively.
func simplify(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		if t == 0 {
			return nil
		}
	case map[string]any:
		out := make(map[string]any)
		for k, inner := range t {
			if s := simplify(inner); s != nil {
				out[k] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return v
}

func intField(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}
