// Package coordinator implements the kernel's mount-point table (spec.md
// §4.8): the single per-session object owning the slot/module bindings,
// cancellation token, hook registry, hook-result processor, and the
// capability/contribution/cleanup side-tables modules use to cooperate.
//
// Grounded on the teacher's runtime/agent/session/session.go (the `Store`
// interface shape informs the slot/lookup API here) and
// runtime/agent/runtime/confirmation.go (the §4.12 tool confirmation
// registry, sugar over the same ask_user path the hook-result processor
// already implements).
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/amplifier-ai/kernel/kernel/cancel"
	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/hookresult"
	"github.com/amplifier-ai/kernel/kernel/hooks"
	"github.com/amplifier-ai/kernel/kernel/loader"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
	"github.com/amplifier-ai/kernel/kernel/mountplan"
	"github.com/amplifier-ai/kernel/kernel/telemetry"
)

// Slot is a mount-point key. The set is closed: mount/unmount/get reject any
// other value.
type Slot string

const (
	// Single-holder slots: at most one module bound at a time.
	SlotOrchestrator         Slot = "orchestrator"
	SlotContext              Slot = "context"
	SlotModuleSourceResolver Slot = "module-source-resolver"

	// Multi-holder slots: a name -> module map.
	SlotProviders Slot = "providers"
	SlotTools     Slot = "tools"
	SlotAgents    Slot = "agents"

	// SlotHooks is reserved: handlers register through Hooks(), never
	// through Mount directly.
	SlotHooks Slot = "hooks"
)

var singleHolderSlots = map[Slot]bool{
	SlotOrchestrator:         true,
	SlotContext:              true,
	SlotModuleSourceResolver: true,
}

var multiHolderSlots = map[Slot]bool{
	SlotProviders: true,
	SlotTools:     true,
	SlotAgents:    true,
}

// Named is implemented by a module that can derive its own mount name for a
// multi-holder slot when the caller omits one.
type Named interface {
	Name() string
}

// CleanupFunc is a registered teardown callback.
type CleanupFunc func(ctx context.Context) error

// Contributor is a registered contribution callback for a fan-out channel.
type Contributor func(ctx context.Context) (any, error)

// ToolConfirmation gates a tool's Execute behind an approval round-trip
// (SPEC_FULL.md §4.12): Prompt builds the approval prompt from the call
// input, DeniedResult builds the ToolResult substituted for Execute when the
// approval is denied.
type ToolConfirmation struct {
	Prompt       func(ctx context.Context, input []byte) (string, error)
	DeniedResult func(ctx context.Context, input []byte) (moduleapi.ToolResult, error)
}

// Config configures a new Coordinator. ApprovalSystem and DisplaySystem are
// ambient capabilities configured once at session construction, not module
// slots — spec.md §6's mount-plan top-level keys never name them.
type Config struct {
	SessionID              string
	ParentID               string
	Plan                   mountplan.MountPlan
	Loader                 *loader.Loader
	ApprovalSystem         hookresult.ApprovalSystem
	DisplaySystem          hookresult.DisplaySystem
	Logger                 telemetry.Logger
	Metrics                telemetry.Metrics
	Tracer                 telemetry.Tracer
	InjectionBudgetPerTurn int
	InjectionSizeLimit     int
}

// Coordinator is the kernel's mount-point table. The zero value is not
// usable; construct with New.
type Coordinator struct {
	cfg          Config
	cancellation *cancel.Token
	hooks        *hooks.Registry
	processor    *hookresult.Processor

	mu     sync.RWMutex
	single map[Slot]any
	multi  map[Slot]map[string]any

	capMu        sync.RWMutex
	capabilities map[string]any

	contribMu sync.Mutex
	contribs  map[string][]namedContributor

	confirmMu     sync.RWMutex
	confirmations map[string]ToolConfirmation

	cleanupMu sync.Mutex
	cleanups  []CleanupFunc

	sessionMu sync.Mutex
	session   any
}

type namedContributor struct {
	name string
	fn   Contributor
}

// New constructs a Coordinator. A nil Logger defaults to a no-op.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NewNoopTracer()
	}
	c := &Coordinator{
		cfg:           cfg,
		cancellation:  cancel.New(),
		hooks:         hooks.NewRegistry(cfg.SessionID, cfg.Logger),
		single:        make(map[Slot]any),
		multi:         make(map[Slot]map[string]any),
		capabilities:  make(map[string]any),
		contribs:      make(map[string][]namedContributor),
		confirmations: make(map[string]ToolConfirmation),
	}
	c.hooks.SetDefaultFields(map[string]any{"session_id": cfg.SessionID, "parent_id": cfg.ParentID})
	c.processor = hookresult.NewProcessor(hookresult.ProcessorConfig{
		InjectionBudgetPerTurn: cfg.InjectionBudgetPerTurn,
		InjectionSizeLimit:     cfg.InjectionSizeLimit,
		ApprovalSystem:         cfg.ApprovalSystem,
		DisplaySystem:          cfg.DisplaySystem,
		ContextManager:         &contextManagerProxy{c: c},
		Logger:                 cfg.Logger,
	})
	return c
}

// contextManagerProxy satisfies hookresult.ContextManager by forwarding to
// whatever module is currently mounted in the context slot — the processor
// is constructed before the context module is loaded (spec.md §4.9 rule 2),
// so it cannot capture a fixed ContextManager value up front.
type contextManagerProxy struct{ c *Coordinator }

func (p *contextManagerProxy) AddMessage(ctx context.Context, role, content string, metadata map[string]any) error {
	cm := p.c.Context()
	if cm == nil {
		return fmt.Errorf("coordinator: inject_context requires a mounted context manager")
	}
	return cm.AddMessage(ctx, role, content, metadata)
}

// Mount binds module under slot, deriving name from module.Name() for
// multi-holder slots when name is empty. It is an error to mount to the
// hooks slot or to an unrecognized slot.
func (c *Coordinator) Mount(ctx context.Context, slot Slot, module any, name string) error {
	switch {
	case slot == SlotHooks:
		return fmt.Errorf("coordinator: cannot mount directly to the hooks slot; register handlers via Hooks()")
	case singleHolderSlots[slot]:
		c.mu.Lock()
		prior, replaced := c.single[slot]
		c.single[slot] = module
		c.mu.Unlock()
		if replaced {
			c.cfg.Logger.Info(ctx, "coordinator: replacing prior slot holder", "slot", string(slot), "prior_type", fmt.Sprintf("%T", prior))
		}
		return nil
	case multiHolderSlots[slot]:
		if name == "" {
			named, ok := module.(Named)
			if !ok {
				return fmt.Errorf("coordinator: mounting to slot %q requires a name (module does not implement Name())", slot)
			}
			name = named.Name()
		}
		c.mu.Lock()
		if c.multi[slot] == nil {
			c.multi[slot] = make(map[string]any)
		}
		c.multi[slot][name] = module
		c.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("coordinator: unknown mount slot %q", slot)
	}
}

// Unmount removes the binding made by a prior Mount with identical
// arguments.
func (c *Coordinator) Unmount(slot Slot, name string) error {
	switch {
	case slot == SlotHooks:
		return fmt.Errorf("coordinator: cannot unmount the hooks slot directly")
	case singleHolderSlots[slot]:
		c.mu.Lock()
		delete(c.single, slot)
		c.mu.Unlock()
		return nil
	case multiHolderSlots[slot]:
		c.mu.Lock()
		if c.multi[slot] != nil {
			delete(c.multi[slot], name)
		}
		c.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("coordinator: unknown mount slot %q", slot)
	}
}

// Get returns the module bound at slot/name. For a single-holder slot, name
// is ignored. The bool result is false when nothing is bound.
func (c *Coordinator) Get(slot Slot, name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if singleHolderSlots[slot] {
		v, ok := c.single[slot]
		return v, ok
	}
	if multiHolderSlots[slot] {
		v, ok := c.multi[slot][name]
		return v, ok
	}
	return nil, false
}

// GetAll returns a snapshot of every module bound at a multi-holder slot.
func (c *Coordinator) GetAll(slot Slot) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.multi[slot]))
	for k, v := range c.multi[slot] {
		out[k] = v
	}
	return out
}

// Orchestrator returns the mounted orchestrator, or nil if none is mounted
// or the mounted value does not satisfy moduleapi.Orchestrator.
func (c *Coordinator) Orchestrator() moduleapi.Orchestrator {
	v, ok := c.Get(SlotOrchestrator, "")
	if !ok {
		return nil
	}
	o, _ := v.(moduleapi.Orchestrator)
	return o
}

// Context returns the mounted context manager, satisfying moduleapi.Runtime.
func (c *Coordinator) Context() moduleapi.ContextManager {
	v, ok := c.Get(SlotContext, "")
	if !ok {
		return nil
	}
	cm, _ := v.(moduleapi.ContextManager)
	return cm
}

// Providers returns every mounted provider satisfying moduleapi.Provider,
// keyed by mount name, satisfying moduleapi.Runtime.
func (c *Coordinator) Providers() map[string]moduleapi.Provider {
	raw := c.GetAll(SlotProviders)
	out := make(map[string]moduleapi.Provider, len(raw))
	for k, v := range raw {
		if p, ok := v.(moduleapi.Provider); ok {
			out[k] = p
		}
	}
	return out
}

// Tools returns every mounted tool satisfying moduleapi.Tool, keyed by mount
// name, satisfying moduleapi.Runtime.
func (c *Coordinator) Tools() map[string]moduleapi.Tool {
	raw := c.GetAll(SlotTools)
	out := make(map[string]moduleapi.Tool, len(raw))
	for k, v := range raw {
		if t, ok := v.(moduleapi.Tool); ok {
			out[k] = t
		}
	}
	return out
}

// Tool returns the single mounted tool named name.
func (c *Coordinator) Tool(name string) (moduleapi.Tool, bool) {
	v, ok := c.Get(SlotTools, name)
	if !ok {
		return nil, false
	}
	t, ok := v.(moduleapi.Tool)
	return t, ok
}

// Hooks returns the hook registry, satisfying moduleapi.Runtime.
func (c *Coordinator) Hooks() moduleapi.HookEmitter { return c.hooks }

// HookRegistry returns the concrete registry for callers (e.g. module
// loaders wiring hook-module constructors) that need Register, not just the
// narrow HookEmitter capability.
func (c *Coordinator) HookRegistry() *hooks.Registry { return c.hooks }

// Cancellation returns the cancellation token, satisfying moduleapi.Runtime.
func (c *Coordinator) Cancellation() moduleapi.CancellationObserver { return c.cancellation }

// CancellationToken returns the concrete token, for callers (typically
// kernel/session) that need RequestCancellation, not just the read-only
// observer view.
func (c *Coordinator) CancellationToken() *cancel.Token { return c.cancellation }

// ProcessHookResult runs the hook-result processor (spec.md §4.5) on
// result, satisfying moduleapi.Runtime.
func (c *Coordinator) ProcessHookResult(ctx context.Context, result hookresult.Result, event events.Name, hookName string) (hookresult.Result, error) {
	return c.processor.Process(ctx, result, event, hookName)
}

// RequestCancel delegates to the cancellation token, emitting
// cancel:requested (spec.md §4.1: "the kernel emits cancel:requested on
// transition") when this call actually advances the token's state.
func (c *Coordinator) RequestCancel(ctx context.Context, immediate bool) bool {
	transitioned := c.cancellation.RequestCancellation(immediate)
	if transitioned {
		c.hooks.Emit(ctx, events.CancelRequested, map[string]any{
			"immediate": immediate,
			"state":     c.cancellation.State().String(),
		})
	}
	return transitioned
}

// ResetTurn zeroes the hook-result processor's per-turn injection counters.
func (c *Coordinator) ResetTurn() { c.processor.ResetTurn() }

// RegisterCleanup pushes fn onto the teardown stack.
func (c *Coordinator) RegisterCleanup(fn CleanupFunc) {
	if fn == nil {
		return
	}
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// Cleanup runs every registered cleanup callback in reverse registration
// order. A callback that errors or panics is logged; the remaining stack
// still runs (spec.md §8 scenario 6).
func (c *Coordinator) Cleanup(ctx context.Context) {
	c.cleanupMu.Lock()
	stack := c.cleanups
	c.cleanups = nil
	c.cleanupMu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		c.runCleanup(ctx, stack[i])
	}
}

func (c *Coordinator) runCleanup(ctx context.Context, fn CleanupFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.Error(ctx, "coordinator: cleanup callback panicked", "panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := fn(ctx); err != nil {
		c.cfg.Logger.Error(ctx, "coordinator: cleanup callback failed", "error", err.Error())
	}
}

// RegisterCapability stores an opaque inter-module back-channel value.
func (c *Coordinator) RegisterCapability(name string, value any) {
	c.capMu.Lock()
	defer c.capMu.Unlock()
	c.capabilities[name] = value
}

// GetCapability retrieves a value registered with RegisterCapability.
func (c *Coordinator) GetCapability(name string) (any, bool) {
	c.capMu.RLock()
	defer c.capMu.RUnlock()
	v, ok := c.capabilities[name]
	return v, ok
}

// RegisterContributor adds a named fan-out callback to channel. The
// returned function unregisters it.
func (c *Coordinator) RegisterContributor(channel, name string, fn Contributor) func() {
	c.contribMu.Lock()
	c.contribs[channel] = append(c.contribs[channel], namedContributor{name: name, fn: fn})
	c.contribMu.Unlock()

	return func() {
		c.contribMu.Lock()
		defer c.contribMu.Unlock()
		entries := c.contribs[channel]
		for i, e := range entries {
			if e.name == name {
				c.contribs[channel] = append(append([]namedContributor(nil), entries[:i]...), entries[i+1:]...)
				return
			}
		}
	}
}

// CollectContributions invokes every contributor registered on channel in
// registration order, skipping errors (logged) and nil results. Collection
// stops early if cancellation has been requested.
func (c *Coordinator) CollectContributions(ctx context.Context, channel string) []any {
	c.contribMu.Lock()
	entries := append([]namedContributor(nil), c.contribs[channel]...)
	c.contribMu.Unlock()

	var out []any
	for _, e := range entries {
		if c.cancellation.IsCancelled() {
			break
		}
		v, err := c.invokeContributor(ctx, e)
		if err != nil {
			c.cfg.Logger.Warn(ctx, "coordinator: contributor error, skipping", "channel", channel, "name", e.name, "error", err.Error())
			continue
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (c *Coordinator) invokeContributor(ctx context.Context, e namedContributor) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("contributor panic: %v", r)
		}
	}()
	return e.fn(ctx)
}

// RegisterToolConfirmation requires approval before toolName's Execute runs
// (SPEC_FULL.md §4.12).
func (c *Coordinator) RegisterToolConfirmation(toolName string, cfg ToolConfirmation) {
	c.confirmMu.Lock()
	defer c.confirmMu.Unlock()
	c.confirmations[toolName] = cfg
}

// ExecuteTool runs the mounted tool named toolName, honoring any registered
// ToolConfirmation first. Every call is traced and timed, win or lose, so a
// denied or failed confirmation shows up in the same span/metric series as a
// successful run.
func (c *Coordinator) ExecuteTool(ctx context.Context, toolName string, input []byte) (result moduleapi.ToolResult, err error) {
	ctx, span := c.cfg.Tracer.Start(ctx, "coordinator.execute_tool")
	start := time.Now()
	defer func() {
		c.cfg.Metrics.RecordTimer("coordinator.tool_execute", time.Since(start), "tool", toolName)
		outcome := "success"
		if err != nil || !result.Success {
			outcome = "error"
		}
		c.cfg.Metrics.IncCounter("coordinator.tool_execute.count", 1, "tool", toolName, "outcome", outcome)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tool, ok := c.Tool(toolName)
	if !ok {
		err = fmt.Errorf("coordinator: tool %q is not mounted", toolName)
		return moduleapi.ToolResult{}, err
	}

	c.confirmMu.RLock()
	confirm, hasConfirm := c.confirmations[toolName]
	c.confirmMu.RUnlock()
	if !hasConfirm {
		result, err = tool.Execute(ctx, input)
		return result, err
	}

	prompt, perr := confirm.Prompt(ctx, input)
	if perr != nil {
		err = fmt.Errorf("coordinator: building confirmation prompt for %q: %w", toolName, perr)
		return moduleapi.ToolResult{}, err
	}
	if c.cfg.ApprovalSystem == nil {
		err = fmt.Errorf("coordinator: tool %q requires confirmation but no approval system is configured", toolName)
		return moduleapi.ToolResult{}, err
	}
	outcome, aerr := c.cfg.ApprovalSystem.RequestApproval(ctx, prompt, nil, 0, hookresult.ApprovalDeny)
	if aerr != nil {
		err = fmt.Errorf("coordinator: requesting confirmation for %q: %w", toolName, aerr)
		return moduleapi.ToolResult{}, err
	}
	if outcome != hookresult.ApprovalOutcomeAllowed {
		result, err = confirm.DeniedResult(ctx, input)
		return result, err
	}
	result, err = tool.Execute(ctx, input)
	return result, err
}

// Metrics returns the configured metrics recorder (never nil).
func (c *Coordinator) Metrics() telemetry.Metrics { return c.cfg.Metrics }

// Tracer returns the configured tracer (never nil).
func (c *Coordinator) Tracer() telemetry.Tracer { return c.cfg.Tracer }

// SessionID returns the owning session's ID.
func (c *Coordinator) SessionID() string { return c.cfg.SessionID }

// ParentID returns the owning session's parent ID, empty if none.
func (c *Coordinator) ParentID() string { return c.cfg.ParentID }

// Plan returns the validated mount plan the coordinator was built from.
func (c *Coordinator) Plan() mountplan.MountPlan { return c.cfg.Plan }

// Loader returns the module loader used to resolve and mount modules.
func (c *Coordinator) Loader() *loader.Loader { return c.cfg.Loader }

// InjectionBudgetPerTurn returns the configured advisory per-turn token
// budget (0 = unlimited).
func (c *Coordinator) InjectionBudgetPerTurn() int { return c.cfg.InjectionBudgetPerTurn }

// InjectionSizeLimit returns the configured hard per-injection byte limit
// (0 = unlimited).
func (c *Coordinator) InjectionSizeLimit() int { return c.cfg.InjectionSizeLimit }

// ApprovalSystem returns the configured approval system, nil if none.
func (c *Coordinator) ApprovalSystem() hookresult.ApprovalSystem { return c.cfg.ApprovalSystem }

// DisplaySystem returns the configured display system, nil if none.
func (c *Coordinator) DisplaySystem() hookresult.DisplaySystem { return c.cfg.DisplaySystem }

// SetSession stores an opaque back-reference to the owning session. The
// coordinator never inspects it; it exists purely so code holding only a
// coordinator reference (e.g. a hook handler) can reach session-level state
// a module author chooses to expose there. kernel/session sets this once
// during construction; kernel/coordinator cannot import kernel/session
// itself without an import cycle.
func (c *Coordinator) SetSession(session any) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.session = session
}

// Session returns the value set by SetSession, nil if unset.
func (c *Coordinator) Session() any {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session
}

// mounterAdapter satisfies loader.Mounter, reordering arguments to match
// Coordinator.Mount's (slot, module, name) signature and converting the
// plain string slot the loader package knows (it cannot import this
// package's Slot type without creating an import cycle) to a Slot.
type mounterAdapter struct{ c *Coordinator }

func (m mounterAdapter) Mount(ctx context.Context, slot, name string, module any) error {
	return m.c.Mount(ctx, Slot(slot), module, name)
}

// AsMounter adapts the coordinator to loader.Mounter, the narrow interface
// a loader.MountFn needs to register its module.
func (c *Coordinator) AsMounter() loader.Mounter { return mounterAdapter{c: c} }

var _ moduleapi.Runtime = (*Coordinator)(nil)
var _ loader.Mounter = mounterAdapter{}
