// Package openai adapts the OpenAI Chat Completions API
// (github.com/openai/openai-go) to moduleapi.Provider, classifying any API
// error through kernel/llmerrors so kernel/retry can act on it.
package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/amplifier-ai/kernel/kernel/llmerrors"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

const providerName = "openai"

// Config configures the Provider.
type Config struct {
	APIKey string
	Model  string
}

// Provider wraps an openaisdk.Client as a moduleapi.Provider.
type Provider struct {
	client openaisdk.Client
	model  string
}

// New constructs a Provider. An empty Model defaults to GPT-4o.
func New(cfg Config) *Provider {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = openaisdk.ChatModelGPT4o
	}
	return &Provider{client: openaisdk.NewClient(opts...), model: model}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Complete(ctx context.Context, messages []moduleapi.Message, _ map[string]any) (moduleapi.ChatResponse, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return moduleapi.ChatResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return moduleapi.ChatResponse{}, llmerrors.NewClassified(providerName, "completion returned no choices", 0, nil)
	}

	choice := resp.Choices[0]
	return moduleapi.ChatResponse{
		Message: moduleapi.Message{Role: "assistant", Content: choice.Message.Content},
		Raw: map[string]any{
			"id":            resp.ID,
			"finish_reason": string(choice.FinishReason),
			"tool_calls":    extractToolCalls(choice),
		},
	}, nil
}

// ParseToolCalls implements moduleapi.ToolCallParser, reading back the tool
// calls Complete stashed in ChatResponse.Raw.
func (p *Provider) ParseToolCalls(resp moduleapi.ChatResponse) ([]moduleapi.ToolCall, error) {
	raw, ok := resp.Raw["tool_calls"].([]moduleapi.ToolCall)
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func extractToolCalls(choice openaisdk.ChatCompletionChoice) []moduleapi.ToolCall {
	var calls []moduleapi.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, moduleapi.ToolCall{
			ID:      tc.ID,
			Name:    tc.Function.Name,
			RawArgs: tc.Function.Arguments,
		})
	}
	return calls
}

func toOpenAIMessages(messages []moduleapi.Message) []openaisdk.ChatCompletionMessageParamUnion {
	var out []openaisdk.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openaisdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openaisdk.AssistantMessage(m.Content))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return llmerrors.NewClassified(providerName, apiErr.Error(), apiErr.StatusCode, err)
	}
	return llmerrors.NewClassified(providerName, err.Error(), 0, err)
}

var (
	_ moduleapi.Provider       = (*Provider)(nil)
	_ moduleapi.ToolCallParser = (*Provider)(nil)
)
