// Package bedrock adapts the AWS Bedrock Runtime Converse API
// (github.com/aws/aws-sdk-go-v2/service/bedrockruntime) to moduleapi.Provider.
// Converse is model-agnostic (Anthropic, Llama, Titan, ...) across Bedrock,
// unlike the older per-model InvokeModel payload formats.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/amplifier-ai/kernel/kernel/llmerrors"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

const providerName = "bedrock"

// Config configures the Provider.
type Config struct {
	Region  string
	ModelID string
}

// Provider wraps a bedrockruntime.Client as a moduleapi.Provider.
type Provider struct {
	client  *bedrockruntime.Client
	modelID string
}

// New loads the default AWS credential chain (region overridden by
// cfg.Region, when set) and constructs a Provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}
	return &Provider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Complete(ctx context.Context, messages []moduleapi.Message, _ map[string]any) (moduleapi.ChatResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.modelID),
		Messages: toConverseMessages(messages),
	}
	if system := systemPrompt(messages); system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return moduleapi.ChatResponse{}, classify(err)
	}

	text, raw, err := extractText(out)
	if err != nil {
		return moduleapi.ChatResponse{}, llmerrors.NewClassified(providerName, err.Error(), 0, err)
	}
	return moduleapi.ChatResponse{
		Message: moduleapi.Message{Role: "assistant", Content: text},
		Raw:     raw,
	}, nil
}

func toConverseMessages(messages []moduleapi.Message) []types.Message {
	var out []types.Message
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
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

func extractText(out *bedrockruntime.ConverseOutput) (string, map[string]any, error) {
	msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", nil, fmt.Errorf("bedrock: unexpected converse output shape %T", out.Output)
	}

	var text string
	var calls []moduleapi.ToolCall
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text += b.Value
		case *types.ContentBlockMemberToolUse:
			calls = append(calls, moduleapi.ToolCall{
				ID:      aws.ToString(b.Value.ToolUseId),
				Name:    aws.ToString(b.Value.Name),
				RawArgs: fmt.Sprintf("%v", b.Value.Input),
			})
		}
	}

	raw := map[string]any{"stop_reason": string(out.StopReason), "tool_calls": calls}
	return text, raw, nil
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

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.NewClassified(providerName, apiErr.ErrorMessage(), 0, err)
	}
	return llmerrors.NewClassified(providerName, err.Error(), 0, err)
}

var (
	_ moduleapi.Provider       = (*Provider)(nil)
	_ moduleapi.ToolCallParser = (*Provider)(nil)
)
