// Package anthropic adapts the Anthropic Messages API
// (github.com/anthropics/anthropic-sdk-go) to moduleapi.Provider, classifying
// any API error through kernel/llmerrors so kernel/retry can act on it.
package anthropic

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/amplifier-ai/kernel/kernel/llmerrors"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

const providerName = "anthropic"

// Config configures the Provider.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Provider wraps an anthropicsdk.Client as a moduleapi.Provider.
type Provider struct {
	client    anthropicsdk.Client
	model     string
	maxTokens int64
}

// New constructs a Provider. An empty Model defaults to Claude 3.5 Sonnet;
// an empty MaxTokens defaults to 4096.
func New(cfg Config) *Provider {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	model := cfg.Model
	if model == "" {
		model = string(anthropicsdk.ModelClaude3_5SonnetLatest)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &Provider{
		client:    anthropicsdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *Provider) Name() string { return providerName }

// Complete sends messages to the Anthropic Messages API. Any message with
// role "system" is lifted into the request's top-level system prompt
// (Anthropic's API has no system turn in the message list itself).
func (p *Provider) Complete(ctx context.Context, messages []moduleapi.Message, _ map[string]any) (moduleapi.ChatResponse, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  toAnthropicMessages(messages),
	}
	if system := systemPrompt(messages); system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return moduleapi.ChatResponse{}, classify(err)
	}

	return moduleapi.ChatResponse{
		Message: moduleapi.Message{Role: "assistant", Content: extractText(msg)},
		Raw: map[string]any{
			"id":          msg.ID,
			"stop_reason": string(msg.StopReason),
			"tool_calls":  extractToolUseBlocks(msg),
		},
	}, nil
}

// ParseToolCalls implements moduleapi.ToolCallParser, reading back the
// tool_use blocks Complete stashed in ChatResponse.Raw.
func (p *Provider) ParseToolCalls(resp moduleapi.ChatResponse) ([]moduleapi.ToolCall, error) {
	raw, ok := resp.Raw["tool_calls"].([]moduleapi.ToolCall)
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func extractToolUseBlocks(msg *anthropicsdk.Message) []moduleapi.ToolCall {
	var calls []moduleapi.ToolCall
	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		calls = append(calls, moduleapi.ToolCall{
			ID:      block.ID,
			Name:    block.Name,
			RawArgs: string(block.Input),
		})
	}
	return calls
}

func toAnthropicMessages(messages []moduleapi.Message) []anthropicsdk.MessageParam {
	var out []anthropicsdk.MessageParam
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		block := anthropicsdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropicsdk.NewAssistantMessage(block))
		} else {
			out = append(out, anthropicsdk.NewUserMessage(block))
		}
	}
	return out
}

func systemPrompt(messages []moduleapi.Message) string {
	for _, m := range messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

func extractText(msg *anthropicsdk.Message) string {
	var out string
	for _, block := range msg.Content {
		out += block.Text
	}
	return out
}

func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return llmerrors.NewClassified(providerName, apiErr.Error(), apiErr.StatusCode, err)
	}
	return llmerrors.NewClassified(providerName, err.Error(), 0, err)
}

var (
	_ moduleapi.Provider       = (*Provider)(nil)
	_ moduleapi.ToolCallParser = (*Provider)(nil)
)
