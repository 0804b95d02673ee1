package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

func TestSystemPrompt_ExtractsFirstSystemMessage(t *testing.T) {
	messages := []moduleapi.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}
	assert.Equal(t, "be terse", systemPrompt(messages))
}

func TestSystemPrompt_NoSystemMessage_ReturnsEmpty(t *testing.T) {
	messages := []moduleapi.Message{{Role: "user", Content: "hi"}}
	assert.Empty(t, systemPrompt(messages))
}

func TestToAnthropicMessages_SkipsSystemRole(t *testing.T) {
	messages := []moduleapi.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	out := toAnthropicMessages(messages)
	assert.Len(t, out, 2)
}

func TestNew_DefaultsModelAndMaxTokensWhenOmitted(t *testing.T) {
	p := New(Config{})
	assert.NotEmpty(t, p.model)
	assert.Equal(t, int64(4096), p.maxTokens)
}

func TestNew_HonorsExplicitConfig(t *testing.T) {
	p := New(Config{Model: "claude-3-opus", MaxTokens: 100})
	assert.Equal(t, "claude-3-opus", p.model)
	assert.Equal(t, int64(100), p.maxTokens)
}

func TestParseToolCalls_ReadsBackStashedCalls(t *testing.T) {
	p := New(Config{})
	resp := moduleapi.ChatResponse{
		Raw: map[string]any{
			"tool_calls": []moduleapi.ToolCall{{ID: "call-1", Name: "search", RawArgs: `{"q":"go"}`}},
		},
	}
	calls, err := p.ParseToolCalls(resp)
	assert.NoError(t, err)
	assert.Equal(t, []moduleapi.ToolCall{{ID: "call-1", Name: "search", RawArgs: `{"q":"go"}`}}, calls)
}

func TestParseToolCalls_MissingRawKey_ReturnsNil(t *testing.T) {
	p := New(Config{})
	calls, err := p.ParseToolCalls(moduleapi.ChatResponse{})
	assert.NoError(t, err)
	assert.Nil(t, calls)
}
