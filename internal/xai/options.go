package xai

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ReasoningEffort controls how much time the model spends thinking. Use low
// for quick responses or high for complex problems.
type ReasoningEffort string

const (
	ReasoningLow  ReasoningEffort = "low"
	ReasoningHigh ReasoningEffort = "high"
)

var (
	// ErrUnknownOption is returned for option keys no model understands.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidOption is returned for option values that do not parse.
	ErrInvalidOption = errors.New("invalid option value")
)

// Options are the per-prompt settings shared by the chat and completion
// models. Zero values are omitted from requests.
type Options struct {
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Stop             []string
	Seed             *int
	User             string
	ReasoningEffort  ReasoningEffort
}

// HasReasoning reports whether a reasoning effort was requested.
func (o Options) HasReasoning() bool { return o.ReasoningEffort != "" }

// OptionKeys lists the accepted option names in sorted order.
func OptionKeys() []string {
	keys := []string{
		"temperature", "max_tokens", "top_p", "frequency_penalty",
		"presence_penalty", "stop", "seed", "user", "reasoning_effort",
	}
	sort.Strings(keys)
	return keys
}

// ParseOptions converts raw key=value prompt options into Options. Keys are
// matched case-insensitively; "stop" takes a comma-separated list.
func ParseOptions(raw map[string]string) (Options, error) {
	var o Options
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(v)
		var err error
		switch key {
		case "temperature":
			o.Temperature, err = parseFloat32(val, 0, 2)
		case "top_p":
			o.TopP, err = parseFloat32(val, 0, 1)
		case "frequency_penalty":
			o.FrequencyPenalty, err = parseFloat32(val, -2, 2)
		case "presence_penalty":
			o.PresencePenalty, err = parseFloat32(val, -2, 2)
		case "max_tokens":
			o.MaxTokens, err = strconv.Atoi(val)
			if err == nil && o.MaxTokens < 0 {
				err = errors.New("must not be negative")
			}
		case "seed":
			var n int
			if n, err = strconv.Atoi(val); err == nil {
				o.Seed = &n
			}
		case "stop":
			for _, s := range strings.Split(v, ",") {
				if s != "" {
					o.Stop = append(o.Stop, s)
				}
			}
		case "user":
			o.User = val
		case "reasoning_effort":
			switch ReasoningEffort(strings.ToLower(val)) {
			case ReasoningLow, ReasoningHigh:
				o.ReasoningEffort = ReasoningEffort(strings.ToLower(val))
			case "":
			default:
				err = fmt.Errorf("want %q or %q", ReasoningLow, ReasoningHigh)
			}
		default:
			return Options{}, fmt.Errorf("%w: %s", ErrUnknownOption, k)
		}
		if err != nil {
			return Options{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidOption, k, v, err)
		}
	}
	return o, nil
}

func parseFloat32(s string, min, max float64) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	if f < min || f > max {
		return 0, fmt.Errorf("out of range [%g, %g]", min, max)
	}
	return float32(f), nil
}
