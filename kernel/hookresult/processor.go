package hookresult

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/telemetry"
)

// ErrInjectionTooLarge is returned when an inject_context result exceeds the
// configured injection_size_limit. It is a hard error: the processor does
// not accept the injection, unlike the advisory per-turn budget.
type ErrInjectionTooLarge struct {
	Limit int
	Size  int
}

func (e *ErrInjectionTooLarge) Error() string {
	return fmt.Sprintf("hookresult: injection size %d exceeds limit %d", e.Size, e.Limit)
}

// ProcessorConfig configures a Processor. Zero values for the two limits
// mean "unlimited" per spec.md §3/§9's confirmed "newer" semantics.
type ProcessorConfig struct {
	InjectionBudgetPerTurn int // estimated tokens; 0 = unlimited
	InjectionSizeLimit     int // bytes; 0 = unlimited
	ApprovalSystem         ApprovalSystem // nil is valid: ask_user denies with a reason
	DisplaySystem          DisplaySystem  // nil is valid: user_message falls back to logging
	ContextManager         ContextManager
	Logger                 telemetry.Logger
}

// Processor implements the hook-result processor (spec.md §4.5) plus the
// §4.11 tiered injection rate-limiting supplement.
type Processor struct {
	cfg ProcessorConfig

	mu                     sync.Mutex
	currentTurnInjections  int // token estimate, reset by ResetTurn
	turnNumber             int
	emittedThisTurn        map[string]int // hook_name -> count, this turn
	lastEmittedTurn        map[string]int // hook_name -> turn number last injected
}

// NewProcessor constructs a Processor. A nil Logger defaults to a no-op.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	return &Processor{
		cfg:             cfg,
		emittedThisTurn: make(map[string]int),
		lastEmittedTurn: make(map[string]int),
	}
}

// ResetTurn zeroes the per-turn injection counters. Called by the
// orchestrator at turn boundaries.
func (p *Processor) ResetTurn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTurnInjections = 0
	p.turnNumber++
	p.emittedThisTurn = make(map[string]int)
}

// Process applies the side effect declared by result, per spec.md §4.5.
// event and hookName identify the emitting hook for provenance metadata and
// rate-limit bookkeeping. The returned Result is what the caller (typically
// the orchestrator) should treat as final — e.g. ask_user resolves to either
// continue or deny.
func (p *Processor) Process(ctx context.Context, result Result, event events.Name, hookName string) (Result, error) {
	switch result.Action {
	case ActionInjectContext:
		return p.processInjectContext(ctx, result, event, hookName)
	case ActionAskUser:
		return p.processAskUser(ctx, result)
	case ActionDeny, ActionModify, ActionContinue, "":
		if result.UserMessage != "" {
			p.dispatchUserMessage(ctx, result, hookName)
		}
		return result, nil
	default:
		return result, fmt.Errorf("hookresult: unknown action %q", result.Action)
	}
}

func (p *Processor) processInjectContext(ctx context.Context, result Result, event events.Name, hookName string) (Result, error) {
	if p.cfg.InjectionSizeLimit > 0 && len(result.ContextInjection) > p.cfg.InjectionSizeLimit {
		return Result{}, &ErrInjectionTooLarge{Limit: p.cfg.InjectionSizeLimit, Size: len(result.ContextInjection)}
	}

	tier := result.Tier
	if tier == "" {
		tier = TierNormal
	}

	p.mu.Lock()
	estimate := len(result.ContextInjection) / 4
	turn := p.turnNumber
	overBudget := p.cfg.InjectionBudgetPerTurn > 0 && p.currentTurnInjections+estimate > p.cfg.InjectionBudgetPerTurn
	overCap := result.MaxPerTurn > 0 && p.emittedThisTurn[hookName] >= result.MaxPerTurn
	tooSoon := result.MinTurnsBetween > 0 && turn-p.lastEmittedTurn[hookName] < result.MinTurnsBetween && p.lastEmittedTurn[hookName] != 0
	p.currentTurnInjections += estimate
	p.emittedThisTurn[hookName]++
	p.lastEmittedTurn[hookName] = turn
	p.mu.Unlock()

	if overBudget {
		// Advisory budget: log and still accept, whatever the tier.
		p.cfg.Logger.Warn(ctx, "hookresult: per-turn injection budget exceeded", "hook", hookName, "tier", string(tier))
	}
	if overCap {
		p.cfg.Logger.Warn(ctx, "hookresult: injection exceeds MaxPerTurn, accepting anyway", "hook", hookName, "max_per_turn", result.MaxPerTurn)
	}
	if tooSoon {
		p.cfg.Logger.Warn(ctx, "hookresult: injection emitted before MinTurnsBetween elapsed", "hook", hookName, "min_turns_between", result.MinTurnsBetween)
	}

	if result.Ephemeral {
		// append_to_last_tool_result, if set, is handled by the orchestrator
		// against its own pending-request state; the processor has nothing
		// further to do for an ephemeral injection.
		return result, nil
	}

	if p.cfg.ContextManager == nil {
		return result, fmt.Errorf("hookresult: inject_context requires a mounted context manager")
	}
	meta := map[string]any{
		"source":    "hook",
		"hook_name": hookName,
		"event":     string(event),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := p.cfg.ContextManager.AddMessage(ctx, string(result.ContextInjectionRole), result.ContextInjection, meta); err != nil {
		return result, fmt.Errorf("hookresult: appending injected context: %w", err)
	}
	return result, nil
}

func (p *Processor) processAskUser(ctx context.Context, result Result) (Result, error) {
	if p.cfg.ApprovalSystem == nil {
		return Deny("no approval system mounted"), nil
	}
	outcome, err := p.cfg.ApprovalSystem.RequestApproval(ctx, result.ApprovalPrompt, result.ApprovalOptions, result.ApprovalTimeout, result.ApprovalDefault)
	if err != nil {
		return Result{}, fmt.Errorf("hookresult: requesting approval: %w", err)
	}
	switch outcome {
	case ApprovalOutcomeDenied:
		return Deny("user denied approval request"), nil
	case ApprovalOutcomeAllowed:
		return Continue(nil), nil
	case ApprovalOutcomeTimedOut:
		if result.ApprovalDefault == ApprovalAllow {
			return Continue(nil), nil
		}
		return Deny("approval request timed out"), nil
	default:
		return Deny("unrecognized approval outcome"), nil
	}
}

func (p *Processor) dispatchUserMessage(ctx context.Context, result Result, hookName string) {
	level := result.UserMessageLevel
	if level == "" {
		level = LevelInfo
	}
	if p.cfg.DisplaySystem != nil {
		p.cfg.DisplaySystem.ShowMessage(ctx, level, result.UserMessage, hookName)
		return
	}
	switch level {
	case LevelWarning:
		p.cfg.Logger.Warn(ctx, result.UserMessage, "source", hookName)
	case LevelError:
		p.cfg.Logger.Error(ctx, result.UserMessage, "source", hookName)
	default:
		p.cfg.Logger.Info(ctx, result.UserMessage, "source", hookName)
	}
}
