// Package session implements the kernel's session lifecycle state machine
// (spec.md §4.9): constructed -> initializing -> initialized -> running ->
// (completed|failed|cancelled) -> cleaned.
//
// Grounded on the teacher's runtime/agent/session/session.go — the
// Session struct (ID/Status/CreatedAt/EndedAt) and SessionStatus enum
// generalized here to add parent_id and coordinator ownership; its Store
// persistence layer is dropped per spec.md §6 ("Persisted state: none by
// the kernel").
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/amplifier-ai/kernel/kernel/coordinator"
	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/hooks"
	"github.com/amplifier-ai/kernel/kernel/hookresult"
	"github.com/amplifier-ai/kernel/kernel/loader"
	"github.com/amplifier-ai/kernel/kernel/mountplan"
	"github.com/amplifier-ai/kernel/kernel/telemetry"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusConstructed  Status = "constructed"
	StatusInitializing Status = "initializing"
	StatusInitialized  Status = "initialized"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
	StatusCleaned      Status = "cleaned"
)

// ErrInvalidMountPlan is returned by New when the raw plan fails structural
// validation (spec.md §4.6).
type ErrInvalidMountPlan struct {
	Result mountplan.Result
}

func (e *ErrInvalidMountPlan) Error() string {
	msgs := make([]string, len(e.Result.Errors))
	for i, issue := range e.Result.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", issue.Path, issue.Message)
	}
	return fmt.Sprintf("session: invalid mount plan: %s", strings.Join(msgs, "; "))
}

// Options configures a new Session.
type Options struct {
	// SessionID, if empty, is generated via uuid.NewString().
	SessionID string
	ParentID  string
	// Resume selects the session:resume event family over session:start.
	Resume bool

	Loader         *loader.Loader
	ApprovalSystem hookresult.ApprovalSystem
	DisplaySystem  hookresult.DisplaySystem
	Logger         telemetry.Logger
	Metrics        telemetry.Metrics
	Tracer         telemetry.Tracer
}

// Session owns exactly one Coordinator for its lifetime (spec.md §5:
// "Each session exclusively owns its coordinator").
type Session struct {
	id       string
	parentID string
	resume   bool

	loader *loader.Loader
	logger telemetry.Logger

	mu     sync.Mutex
	status Status
	err    error

	plan        mountplan.MountPlan
	coordinator *coordinator.Coordinator
}

// New validates raw (spec.md §4.6) and constructs a Session in status
// constructed. It performs no I/O: modules are loaded later, by Initialize.
func New(raw any, opts Options) (*Session, error) {
	result := mountplan.Validate(raw)
	if !result.Passed {
		return nil, &ErrInvalidMountPlan{Result: result}
	}
	plan := mountplan.FromValidated(raw)

	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	coord := coordinator.New(coordinator.Config{
		SessionID:              id,
		ParentID:                opts.ParentID,
		Plan:                    plan,
		Loader:                  opts.Loader,
		ApprovalSystem:          opts.ApprovalSystem,
		DisplaySystem:           opts.DisplaySystem,
		Logger:                  logger,
		Metrics:                 opts.Metrics,
		Tracer:                  opts.Tracer,
		InjectionBudgetPerTurn:  plan.InjectionBudgetPerTurn,
		InjectionSizeLimit:      plan.InjectionSizeLimit,
	})

	s := &Session{
		id:          id,
		parentID:    opts.ParentID,
		resume:      opts.Resume,
		loader:      opts.Loader,
		logger:      logger,
		status:      StatusConstructed,
		plan:        plan,
		coordinator: coord,
	}
	coord.SetSession(s)
	return s, nil
}

// ID returns the session's id.
func (s *Session) ID() string { return s.id }

// ParentID returns the session's parent id, empty if none.
func (s *Session) ParentID() string { return s.parentID }

// Coordinator returns the session's coordinator.
func (s *Session) Coordinator() *coordinator.Coordinator { return s.coordinator }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error recorded by a failed Execute, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setStatus(v Status) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

// Initialize loads the mount plan's modules (spec.md §4.9 rule 2): the
// orchestrator and context manager are required — a load failure is fatal
// and Initialize returns an error, leaving the session in status
// constructed so a caller may retry. Providers, tools, and hooks are
// optional: a load failure is logged and the module is skipped. Initialize
// is idempotent: once it has succeeded, later calls are a no-op.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case StatusInitialized, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		s.mu.Unlock()
		return nil
	case StatusInitializing:
		s.mu.Unlock()
		return fmt.Errorf("session: initialize already in progress")
	case StatusConstructed:
		s.status = StatusInitializing
		s.mu.Unlock()
	default:
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("session: cannot initialize from status %q", status)
	}

	if s.loader == nil {
		s.setStatus(StatusConstructed)
		return fmt.Errorf("session: no module loader configured")
	}

	if err := s.loadRequired(ctx, "orchestrator", "orchestrator", s.plan.Orchestrator); err != nil {
		s.setStatus(StatusConstructed)
		return err
	}
	if err := s.loadRequired(ctx, "context", "context", s.plan.Context); err != nil {
		s.setStatus(StatusConstructed)
		return err
	}
	s.loadOptionalSequence(ctx, "provider", s.plan.Providers)
	s.loadOptionalSequence(ctx, "tool", s.plan.Tools)
	s.loadHooks(ctx)

	s.setStatus(StatusInitialized)

	if s.parentID != "" {
		s.coordinator.Hooks().Emit(ctx, events.SessionFork, map[string]any{
			"parent":     s.parentID,
			"session_id": s.id,
		})
	}
	return nil
}

func (s *Session) loadRequired(ctx context.Context, slot, label string, spec mountplan.ModuleSpec) error {
	if spec.Module == "" {
		return fmt.Errorf("session: %s module is required but no module was specified", label)
	}
	mountFn, err := s.loader.Load(ctx, spec.Module, spec.Config, spec.Source)
	if err != nil {
		return fmt.Errorf("session: loading required %s module %q: %w", label, spec.Module, err)
	}
	cleanup, err := mountFn(ctx, s.coordinator.AsMounter())
	if err != nil {
		return fmt.Errorf("session: mounting required %s module %q: %w", label, spec.Module, err)
	}
	if cleanup != nil {
		s.coordinator.RegisterCleanup(cleanup)
	}
	return nil
}

func (s *Session) loadOptionalSequence(ctx context.Context, label string, specs []mountplan.ModuleSpec) {
	for _, spec := range specs {
		if spec.Module == "" {
			continue
		}
		mountFn, err := s.loader.Load(ctx, spec.Module, spec.Config, spec.Source)
		if err != nil {
			s.logger.Warn(ctx, "session: optional module load failed, skipping", "kind", label, "module", spec.Module, "error", err.Error())
			continue
		}
		cleanup, err := mountFn(ctx, s.coordinator.AsMounter())
		if err != nil {
			s.logger.Warn(ctx, "session: optional module mount failed, skipping", "kind", label, "module", spec.Module, "error", err.Error())
			continue
		}
		if cleanup != nil {
			s.coordinator.RegisterCleanup(cleanup)
		}
	}
}

// hookMounter adapts a coordinator to loader.Mounter for the hook-loading
// path specifically: a hook module's MountFn mounts a hooks.Registration
// rather than occupying a coordinator slot (spec.md §4.10), so unlike every
// other module kind it is registered on the hook registry, not the
// mount-point table.
type hookMounter struct{ c *coordinator.Coordinator }

func (m hookMounter) Mount(ctx context.Context, slot, name string, module any) error {
	reg, ok := module.(hooks.Registration)
	if !ok {
		return fmt.Errorf("session: hook module %q must mount a hooks.Registration, got %T", name, module)
	}
	if reg.Name == "" {
		reg.Name = name
	}
	unregister := m.c.HookRegistry().Register(reg.Event, reg.Name, reg.Priority, reg.Handler)
	m.c.RegisterCleanup(func(context.Context) error {
		unregister()
		return nil
	})
	return nil
}

func (s *Session) loadHooks(ctx context.Context) {
	mounter := hookMounter{c: s.coordinator}
	for _, spec := range s.plan.Hooks {
		if spec.Module == "" {
			continue
		}
		mountFn, err := s.loader.Load(ctx, spec.Module, spec.Config, spec.Source)
		if err != nil {
			s.logger.Warn(ctx, "session: hook module load failed, skipping", "module", spec.Module, "error", err.Error())
			continue
		}
		if _, err := mountFn(ctx, mounter); err != nil {
			s.logger.Warn(ctx, "session: hook module mount failed, skipping", "module", spec.Module, "error", err.Error())
			continue
		}
	}
}

// Execute runs one turn (spec.md §4.9 rule 3): requires an initialized
// session. It emits session:start (or session:resume), invokes the mounted
// orchestrator, emits cancel:completed if cancellation was requested, and
// records the terminal status.
func (s *Session) Execute(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	if s.status != StatusInitialized {
		status := s.status
		s.mu.Unlock()
		return "", fmt.Errorf("session: execute requires an initialized session, got status %q", status)
	}
	s.status = StatusRunning
	s.mu.Unlock()

	s.emitTurnStart(ctx)

	orch := s.coordinator.Orchestrator()
	if orch == nil {
		err := fmt.Errorf("session: no orchestrator mounted")
		s.finishExecute(ctx, err)
		return "", err
	}

	result, err := orch.Execute(ctx, prompt, s.coordinator)
	s.finishExecute(ctx, err)
	return result, err
}

func (s *Session) emitTurnStart(ctx context.Context) {
	startEvent, debugEvent, rawEvent := events.SessionStart, events.SessionStartDebug, events.SessionStartRaw
	if s.resume {
		startEvent, debugEvent, rawEvent = events.SessionResume, events.SessionResumeDebug, events.SessionResumeRaw
	}

	s.coordinator.Hooks().Emit(ctx, startEvent, map[string]any{"session_id": s.id})

	if s.plan.Debug {
		s.coordinator.Hooks().Emit(ctx, debugEvent, map[string]any{"session_id": s.id})
	}
	if s.plan.RawDebug {
		s.coordinator.Hooks().Emit(ctx, rawEvent, map[string]any{
			"session_id": s.id,
			"mount_plan": redactPlan(s.plan),
		})
	}
}

// finishExecute records the terminal status once Execute's orchestrator
// call returns. Cancellation is not an error (spec.md §7 rule 6): it is
// distinguished by cancel:completed and a cancelled status rather than by
// the error value alone.
func (s *Session) finishExecute(ctx context.Context, runErr error) {
	cancelled := s.coordinator.Cancellation().IsCancelled()
	if cancelled {
		s.coordinator.Hooks().Emit(ctx, events.CancelCompleted, map[string]any{
			"session_id":    s.id,
			"was_immediate": s.coordinator.Cancellation().IsImmediate(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case runErr != nil && cancelled:
		s.status = StatusCancelled
		s.err = runErr
	case runErr != nil:
		s.status = StatusFailed
		s.err = runErr
	default:
		s.status = StatusCompleted
	}
}

// Cleanup is idempotent: it runs the coordinator's cleanup stack, emits
// session:end, and clears the initialized flag (spec.md §4.9 rule 4).
func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	if s.status == StatusCleaned {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.coordinator.Cleanup(ctx)
	s.coordinator.Hooks().Emit(ctx, events.SessionEnd, map[string]any{"session_id": s.id})

	s.setStatus(StatusCleaned)
}

// Run is the scoped-lifetime helper (spec.md §4.9: "the session can be used
// as a scoped resource"): it runs Initialize, then fn, then Cleanup on
// every exit path including a panic or error from either step.
func Run(ctx context.Context, s *Session, fn func(ctx context.Context, s *Session) (string, error)) (result string, err error) {
	defer s.Cleanup(ctx)
	if err = s.Initialize(ctx); err != nil {
		return "", err
	}
	return fn(ctx, s)
}

// redactKeywords are substrings (case-insensitive) that mark a config field
// as sensitive; redactPlan never inspects values, only key names.
var redactKeywords = []string{"key", "token", "secret", "password", "credential"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range redactKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func redactConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]any, len(config))
	for k, v := range config {
		if isSensitiveKey(k) {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}

func redactModuleSpec(spec mountplan.ModuleSpec) map[string]any {
	m := map[string]any{"module": spec.Module}
	if spec.Source != "" {
		m["source"] = spec.Source
	}
	if spec.Config != nil {
		m["config"] = redactConfig(spec.Config)
	}
	return m
}

func redactModuleSpecs(specs []mountplan.ModuleSpec) []map[string]any {
	out := make([]map[string]any, len(specs))
	for i, spec := range specs {
		out[i] = redactModuleSpec(spec)
	}
	return out
}

// redactPlan renders plan as a plain map with sensitive config values
// masked, suitable for the session:*_raw debug event (spec.md §4.9 rule 3:
// "the raw variant carries a redaction-aware full mount plan").
func redactPlan(plan mountplan.MountPlan) map[string]any {
	names := make([]string, 0, len(plan.Agents))
	for k := range plan.Agents {
		names = append(names, k)
	}
	sort.Strings(names)

	return map[string]any{
		"orchestrator":              redactModuleSpec(plan.Orchestrator),
		"context":                   redactModuleSpec(plan.Context),
		"providers":                 redactModuleSpecs(plan.Providers),
		"tools":                     redactModuleSpecs(plan.Tools),
		"hooks":                     redactModuleSpecs(plan.Hooks),
		"agents":                    names,
		"injection_budget_per_turn": plan.InjectionBudgetPerTurn,
		"injection_size_limit":      plan.InjectionSizeLimit,
	}
}
