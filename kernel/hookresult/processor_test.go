package hookresult_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/hookresult"
)

type fakeContext struct {
	messages []fakeMessage
	err      error
}

type fakeMessage struct {
	role    string
	content string
	meta    map[string]any
}

func (f *fakeContext) AddMessage(ctx context.Context, role, content string, meta map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, fakeMessage{role, content, meta})
	return nil
}

type fakeApproval struct {
	outcome hookresult.ApprovalOutcome
	err     error
}

func (f *fakeApproval) RequestApproval(ctx context.Context, prompt string, options []string, timeout time.Duration, def hookresult.ApprovalDefault) (hookresult.ApprovalOutcome, error) {
	return f.outcome, f.err
}

type fakeDisplay struct {
	shown []string
}

func (f *fakeDisplay) ShowMessage(ctx context.Context, level hookresult.MessageLevel, message, source string) {
	f.shown = append(f.shown, message)
}

func TestProcessor_InjectContext_NonEphemeral_AppendsMessage(t *testing.T) {
	cm := &fakeContext{}
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{ContextManager: cm})

	r := hookresult.InjectContext("reminder text", hookresult.RoleSystem, false)
	_, err := p.Process(context.Background(), r, events.ToolPre, "my-hook")
	require.NoError(t, err)

	require.Len(t, cm.messages, 1)
	assert.Equal(t, "reminder text", cm.messages[0].content)
	assert.Equal(t, "system", cm.messages[0].role)
	assert.Equal(t, "hook", cm.messages[0].meta["source"])
	assert.Equal(t, "my-hook", cm.messages[0].meta["hook_name"])
}

func TestProcessor_InjectContext_Ephemeral_DoesNotAppend(t *testing.T) {
	cm := &fakeContext{}
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{ContextManager: cm})

	r := hookresult.InjectContext("ephemeral text", hookresult.RoleUser, true)
	_, err := p.Process(context.Background(), r, events.ToolPre, "my-hook")
	require.NoError(t, err)
	assert.Empty(t, cm.messages)
}

func TestProcessor_InjectContext_OverSizeLimit_HardError(t *testing.T) {
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{InjectionSizeLimit: 4, ContextManager: &fakeContext{}})
	r := hookresult.InjectContext("way too long", hookresult.RoleSystem, false)
	_, err := p.Process(context.Background(), r, events.ToolPre, "h")
	require.Error(t, err)
	var sizeErr *hookresult.ErrInjectionTooLarge
	require.True(t, errors.As(err, &sizeErr))
}

func TestProcessor_InjectContext_OverBudget_AcceptedWithWarning(t *testing.T) {
	cm := &fakeContext{}
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{InjectionBudgetPerTurn: 1, ContextManager: cm})
	r := hookresult.InjectContext("this text is definitely more than four bytes", hookresult.RoleSystem, false)
	_, err := p.Process(context.Background(), r, events.ToolPre, "h")
	require.NoError(t, err)
	assert.Len(t, cm.messages, 1) // advisory budget: still accepted
}

func TestProcessor_AskUser_Denied(t *testing.T) {
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{ApprovalSystem: &fakeApproval{outcome: hookresult.ApprovalOutcomeDenied}})
	r := hookresult.AskUser("ok?", nil, time.Second, hookresult.ApprovalDeny)
	got, err := p.Process(context.Background(), r, events.ApprovalRequested, "h")
	require.NoError(t, err)
	assert.Equal(t, hookresult.ActionDeny, got.Action)
}

func TestProcessor_AskUser_Allowed(t *testing.T) {
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{ApprovalSystem: &fakeApproval{outcome: hookresult.ApprovalOutcomeAllowed}})
	r := hookresult.AskUser("ok?", nil, time.Second, hookresult.ApprovalDeny)
	got, err := p.Process(context.Background(), r, events.ApprovalRequested, "h")
	require.NoError(t, err)
	assert.Equal(t, hookresult.ActionContinue, got.Action)
}

func TestProcessor_AskUser_TimeoutAppliesDefault(t *testing.T) {
	pDeny := hookresult.NewProcessor(hookresult.ProcessorConfig{ApprovalSystem: &fakeApproval{outcome: hookresult.ApprovalOutcomeTimedOut}})
	r := hookresult.AskUser("ok?", nil, time.Second, hookresult.ApprovalDeny)
	got, err := pDeny.Process(context.Background(), r, events.ApprovalRequested, "h")
	require.NoError(t, err)
	assert.Equal(t, hookresult.ActionDeny, got.Action)

	pAllow := hookresult.NewProcessor(hookresult.ProcessorConfig{ApprovalSystem: &fakeApproval{outcome: hookresult.ApprovalOutcomeTimedOut}})
	r2 := hookresult.AskUser("ok?", nil, time.Second, hookresult.ApprovalAllow)
	got2, err := pAllow.Process(context.Background(), r2, events.ApprovalRequested, "h")
	require.NoError(t, err)
	assert.Equal(t, hookresult.ActionContinue, got2.Action)
}

func TestProcessor_AskUser_NoApprovalSystem_Denies(t *testing.T) {
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{})
	r := hookresult.AskUser("ok?", nil, time.Second, hookresult.ApprovalAllow)
	got, err := p.Process(context.Background(), r, events.ApprovalRequested, "h")
	require.NoError(t, err)
	assert.Equal(t, hookresult.ActionDeny, got.Action)
}

func TestProcessor_UserMessage_DispatchesToDisplay(t *testing.T) {
	d := &fakeDisplay{}
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{DisplaySystem: d})
	r := hookresult.Continue(nil)
	r.UserMessage = "hello"
	r.UserMessageLevel = hookresult.LevelInfo
	_, err := p.Process(context.Background(), r, events.UserMessage, "h")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, d.shown)
}

func TestProcessor_ResetTurn_ZeroesCounters(t *testing.T) {
	cm := &fakeContext{}
	p := hookresult.NewProcessor(hookresult.ProcessorConfig{InjectionBudgetPerTurn: 100, ContextManager: cm})
	_, err := p.Process(context.Background(), hookresult.InjectContext("abcd", hookresult.RoleSystem, false), events.ToolPre, "h")
	require.NoError(t, err)
	p.ResetTurn()
	_, err = p.Process(context.Background(), hookresult.InjectContext("efgh", hookresult.RoleSystem, false), events.ToolPre, "h")
	require.NoError(t, err)
	assert.Len(t, cm.messages, 2)
}
