// Package events defines the kernel's closed event taxonomy: the full set of
// canonical event names an orchestrator (or the kernel itself) may emit
// through the hook registry. Event names follow namespace:action, lowercase,
// single colon. The reserved namespaces are session, prompt, plan, provider,
// llm, content_block, thinking, tool, context, orchestrator, user, artifact,
// policy, approval, and cancel — applications must not invent new events
// inside these namespaces.
package events

// Name is a canonical event name.
type Name string

const (
	// Session lifecycle.
	SessionStart      Name = "session:start"
	SessionStartDebug Name = "session:start_debug"
	SessionStartRaw   Name = "session:start_raw"
	SessionResume     Name = "session:resume"
	SessionResumeDebug Name = "session:resume_debug"
	SessionResumeRaw  Name = "session:resume_raw"
	SessionFork       Name = "session:fork"
	SessionEnd        Name = "session:end"

	// Prompt lifecycle.
	PromptReceived  Name = "prompt:received"
	PromptValidated Name = "prompt:validated"
	PromptRejected  Name = "prompt:rejected"

	// Planning.
	PlanStarted   Name = "plan:started"
	PlanStep      Name = "plan:step"
	PlanCompleted Name = "plan:completed"

	// Provider.
	ProviderRequest  Name = "provider:request"
	ProviderResponse Name = "provider:response"
	ProviderError    Name = "provider:error"
	ProviderRetry    Name = "provider:retry"

	// LLM (token/usage accounting, distinct from the provider transport events).
	LLMToken Name = "llm:token"
	LLMUsage Name = "llm:usage"

	// Content block streaming.
	ContentBlockStart Name = "content_block:start"
	ContentBlockDelta Name = "content_block:delta"
	ContentBlockEnd   Name = "content_block:end"

	// Thinking (reasoning) streaming.
	ThinkingStart Name = "thinking:start"
	ThinkingDelta Name = "thinking:delta"
	ThinkingEnd   Name = "thinking:end"

	// Tool.
	ToolPre    Name = "tool:pre"
	ToolPost   Name = "tool:post"
	ToolError  Name = "tool:error"
	ToolResult Name = "tool:result"

	// Context.
	ContextInjected  Name = "context:injected"
	ContextCompacted Name = "context:compacted"
	ContextCleared   Name = "context:cleared"

	// Orchestrator.
	OrchestratorTurnStart Name = "orchestrator:turn_start"
	OrchestratorTurnEnd   Name = "orchestrator:turn_end"
	OrchestratorError     Name = "orchestrator:error"

	// User notification.
	UserMessage      Name = "user:message"
	UserNotification Name = "user:notification"

	// Artifact.
	ArtifactCreated Name = "artifact:created"
	ArtifactUpdated Name = "artifact:updated"

	// Policy.
	PolicyEvaluated Name = "policy:evaluated"
	PolicyViolation Name = "policy:violation"

	// Approval.
	ApprovalRequested Name = "approval:requested"
	ApprovalGranted   Name = "approval:granted"
	ApprovalDenied    Name = "approval:denied"
	ApprovalTimeout   Name = "approval:timeout"

	// Cancel.
	CancelRequested Name = "cancel:requested"
	CancelCompleted Name = "cancel:completed"
)

// All is the closed set of every canonical event name. Validation code (and
// this package's own tests) use it to guard against accidental duplicates.
var All = []Name{
	SessionStart, SessionStartDebug, SessionStartRaw,
	SessionResume, SessionResumeDebug, SessionResumeRaw,
	SessionFork, SessionEnd,
	PromptReceived, PromptValidated, PromptRejected,
	PlanStarted, PlanStep, PlanCompleted,
	ProviderRequest, ProviderResponse, ProviderError, ProviderRetry,
	LLMToken, LLMUsage,
	ContentBlockStart, ContentBlockDelta, ContentBlockEnd,
	ThinkingStart, ThinkingDelta, ThinkingEnd,
	ToolPre, ToolPost, ToolError, ToolResult,
	ContextInjected, ContextCompacted, ContextCleared,
	OrchestratorTurnStart, OrchestratorTurnEnd, OrchestratorError,
	UserMessage, UserNotification,
	ArtifactCreated, ArtifactUpdated,
	PolicyEvaluated, PolicyViolation,
	ApprovalRequested, ApprovalGranted, ApprovalDenied, ApprovalTimeout,
	CancelRequested, CancelCompleted,
}

// set is built once for O(1) membership checks.
var set = func() map[Name]struct{} {
	m := make(map[Name]struct{}, len(All))
	for _, n := range All {
		m[n] = struct{}{}
	}
	return m
}()

// IsKnown reports whether name is a member of the closed taxonomy.
func IsKnown(name Name) bool {
	_, ok := set[name]
	return ok
}
