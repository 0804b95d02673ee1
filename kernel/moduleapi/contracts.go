// Package moduleapi defines the kernel's structural module contracts
// (spec.md §6): the narrow capability interfaces an Orchestrator, Provider,
// Tool, ContextManager, and HookHandler must satisfy to mount on a
// coordinator. These are the "ad-hoc callables -> narrow capability
// interfaces" re-architecture spec.md §9 calls for.
package moduleapi

import (
	"context"
	"time"

	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/hookresult"
)

// Message is one entry in a conversation history.
type Message struct {
	Role     string
	Content  string
	Metadata map[string]any
}

// ChatResponse is a Provider's reply to Complete.
type ChatResponse struct {
	Message Message
	Raw     map[string]any
}

// ToolCall is a single tool invocation request parsed from a ChatResponse.
type ToolCall struct {
	ID       string
	Name     string
	RawArgs  string
}

// ToolResult is a Tool's execution outcome (spec.md §6): on failure with no
// explicit output, Output is auto-populated from the error message.
type ToolResult struct {
	Success bool
	Output  string
	Error   string
}

// NewToolResult builds a ToolResult, applying the auto-populate-output rule.
func NewToolResult(success bool, output, errMsg string) ToolResult {
	if !success && output == "" {
		output = errMsg
	}
	return ToolResult{Success: success, Output: output, Error: errMsg}
}

// Provider wraps a remote LLM endpoint.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []Message, options map[string]any) (ChatResponse, error)
}

// ToolCallParser is an optional Provider capability: parsing tool calls out
// of a ChatResponse. Not every provider need implement it.
type ToolCallParser interface {
	ParseToolCalls(resp ChatResponse) ([]ToolCall, error)
}

// Tool is a single callable capability exposed to an orchestrator.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input []byte) (ToolResult, error)
}

// ContextManager owns the conversation history presented to providers.
type ContextManager interface {
	AddMessage(ctx context.Context, role, content string, metadata map[string]any) error
	GetMessages(ctx context.Context) ([]Message, error)
	Clear(ctx context.Context) error
}

// Compactor is an optional ContextManager capability (spec.md §6:
// "optional should_compact/compact").
type Compactor interface {
	ShouldCompact(ctx context.Context) bool
	Compact(ctx context.Context) error
}

// HookEmitter is the slice of the hook registry an Orchestrator needs: emit
// an event and get back the folded HookResult, or gather out-of-band query
// results via EmitAndCollect.
type HookEmitter interface {
	Emit(ctx context.Context, event events.Name, data map[string]any) hookresult.Result
	EmitAndCollect(ctx context.Context, event events.Name, data map[string]any, timeout time.Duration) []any
}

// CancellationObserver is the read-only view of the cancellation token an
// Orchestrator polls at external-call boundaries.
type CancellationObserver interface {
	IsCancelled() bool
	IsImmediate() bool
}

// Runtime bundles everything Execute needs, per spec.md §6:
// "execute(prompt, context, providers, tools, hooks, coordinator)".
// Coordinator itself is passed as ProcessHookResult, since only the
// hook-result processing capability (not the full mount-point API) belongs
// to an orchestrator's contract.
type Runtime interface {
	Context() ContextManager
	Providers() map[string]Provider
	Tools() map[string]Tool
	Hooks() HookEmitter
	Cancellation() CancellationObserver
	ProcessHookResult(ctx context.Context, result hookresult.Result, event events.Name, hookName string) (hookresult.Result, error)
}

// Orchestrator implements the agent loop for one turn.
type Orchestrator interface {
	Execute(ctx context.Context, prompt string, rt Runtime) (string, error)
}

// HookHandler is a registered hook callback (mirrors hooks.Handler; kept as
// a distinct named type here so module authors depend on moduleapi, not on
// kernel/hooks directly, per spec.md §9's capability-interface guidance).
type HookHandler func(ctx context.Context, data map[string]any) (hookresult.Result, error)
