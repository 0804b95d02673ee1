// Package hooks implements the kernel's hook registry (spec.md §4.4):
// priority-ordered dispatch of canonical events to registered handlers, with
// envelope stamping and action-precedence folding.
//
// Grounded on the teacher's runtime/agent/hooks/bus.go — a fan-out Bus
// guarded by a sync.RWMutex snapshot-before-iterate pattern so Register can
// run safely while a Publish (here, Emit) is in flight — generalized from
// plain fan-out to the priority-ordered, action-folding dispatch spec.md
// requires, and runtime/agent/hooks/events.go for the typed envelope shape.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/hookresult"
	"github.com/amplifier-ai/kernel/kernel/telemetry"
)

// Handler is a hook callback. A non-nil error is treated as "continue, no
// modifications" per spec.md §4.4 rule 1 (the dynamic-language source treats
// any non-HookResult return, including a raised exception, this way); the
// registry logs the error with the handler's name and keeps iterating.
type Handler func(ctx context.Context, data map[string]any) (hookresult.Result, error)

// HandlerInfo describes a registered handler for ListHandlers inventories.
type HandlerInfo struct {
	Event    events.Name
	Name     string
	Priority int
}

// Registration is what a hook module mounts. Per spec.md §4.10 a hook
// module's entry point registers itself on the coordinator's hook registry
// directly rather than occupying a coordinator slot, so its loader MountFn
// produces a Registration value instead of a slot-mountable module.
type Registration struct {
	Event    events.Name
	Name     string
	Priority int
	Handler  Handler
}

type handlerEntry struct {
	id       uint64
	name     string
	priority int
	order    int
	handler  Handler
}

// Registry is the hook registry. The zero value is not usable; construct
// with NewRegistry.
type Registry struct {
	logger    telemetry.Logger
	sessionID string

	mu       sync.RWMutex
	handlers map[events.Name][]*handlerEntry
	defaults map[string]any
	nextID   uint64
	order    int

	sequence atomic.Uint64
}

// NewRegistry constructs a Registry. sessionID stamps event_id when non-empty
// ("unknown" is used otherwise, per spec.md §3). A nil Logger defaults to a
// no-op.
func NewRegistry(sessionID string, logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Registry{
		logger:    logger,
		sessionID: sessionID,
		handlers:  make(map[events.Name][]*handlerEntry),
		defaults:  make(map[string]any),
	}
}

// Register inserts handler into event's dispatch chain, maintaining
// (priority, insertion order) ordering. Lower priority runs earlier. Returns
// an unregister function.
func (r *Registry) Register(event events.Name, name string, priority int, handler Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.order++
	entry := &handlerEntry{id: id, name: name, priority: priority, order: r.order, handler: handler}
	r.handlers[event] = append(append([]*handlerEntry(nil), r.handlers[event]...), entry)
	sortHandlers(r.handlers[event])
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		existing := r.handlers[event]
		for i, e := range existing {
			if e.id == id {
				r.handlers[event] = append(append([]*handlerEntry(nil), existing[:i]...), existing[i+1:]...)
				return
			}
		}
	}
}

// On is an alias of Register.
func (r *Registry) On(event events.Name, name string, priority int, handler Handler) func() {
	return r.Register(event, name, priority, handler)
}

func sortHandlers(entries []*handlerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].order < entries[j].order
	})
}

// SetDefaultFields registers process-lifetime default envelope fields (e.g.
// session_id). Defaults sit below caller data in merge precedence.
func (r *Registry) SetDefaultFields(fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range fields {
		r.defaults[k] = v
	}
}

// ListHandlers returns the registered handlers for event. If event is the
// zero value (""), every registered handler across every event is returned.
func (r *Registry) ListHandlers(event events.Name) []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if event != "" {
		return handlerInfos(event, r.handlers[event])
	}
	var all []HandlerInfo
	for ev, entries := range r.handlers {
		all = append(all, handlerInfos(ev, entries)...)
	}
	return all
}

func handlerInfos(event events.Name, entries []*handlerEntry) []HandlerInfo {
	infos := make([]HandlerInfo, len(entries))
	for i, e := range entries {
		infos[i] = HandlerInfo{Event: event, Name: e.name, Priority: e.priority}
	}
	return infos
}

// snapshot returns a stable copy of event's handler chain, already sorted,
// safe to iterate without holding the lock (mirrors the teacher bus.go
// pattern of snapshotting subscribers before a fan-out).
func (r *Registry) snapshot(event events.Name) []*handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.handlers[event]
	out := make([]*handlerEntry, len(entries))
	copy(out, entries)
	return out
}

// prepareEnvelope merges defaults (lowest precedence), caller data, and the
// infrastructure-owned fields (event_id, sequence, and timestamp when
// stampTimestamp is true).
func (r *Registry) prepareEnvelope(data map[string]any, stampTimestamp bool) map[string]any {
	envelope := make(map[string]any, len(r.defaults)+len(data)+3)

	r.mu.RLock()
	for k, v := range r.defaults {
		envelope[k] = v
	}
	r.mu.RUnlock()

	for k, v := range data {
		envelope[k] = v
	}

	seq := r.sequence.Add(1)
	sessionID := r.sessionID
	if sessionID == "" {
		sessionID = "unknown"
	}
	envelope["event_id"] = fmt.Sprintf("%s:%d", sessionID, seq)
	envelope["sequence"] = seq
	if stampTimestamp {
		envelope["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return envelope
}

// Emit dispatches event to every registered handler in priority order,
// folding the chain into a single HookResult per spec.md §4.4's action
// precedence: deny short-circuits; among ask_user/inject_context, the first
// ask_user recorded is never overwritten by a later inject_context;
// inject_context results accumulate (concatenated in handler order) until an
// ask_user is recorded; modify replaces the carried envelope.
func (r *Registry) Emit(ctx context.Context, event events.Name, data map[string]any) hookresult.Result {
	envelope := r.prepareEnvelope(data, true)
	return r.fold(ctx, event, envelope)
}

func (r *Registry) fold(ctx context.Context, event events.Name, envelope map[string]any) hookresult.Result {
	currentData := envelope
	var pending hookresult.Result

	for _, entry := range r.snapshot(event) {
		result, ok := r.invoke(ctx, entry, currentData)
		if !ok {
			continue
		}

		switch result.Action {
		case hookresult.ActionDeny:
			return result
		case hookresult.ActionModify:
			if result.Data != nil {
				currentData = result.Data
			}
		case hookresult.ActionInjectContext:
			switch pending.Action {
			case "":
				pending = result
			case hookresult.ActionInjectContext:
				pending.ContextInjection = strings.Join([]string{pending.ContextInjection, result.ContextInjection}, "\n")
			case hookresult.ActionAskUser:
				// ask_user already recorded: must not be overwritten.
			}
		case hookresult.ActionAskUser:
			switch pending.Action {
			case "", hookresult.ActionInjectContext:
				pending = result
			case hookresult.ActionAskUser:
				// first ask_user wins; later ones do not overwrite it.
			}
		}
	}

	if !pending.IsZero() {
		return pending
	}
	return hookresult.Continue(currentData)
}

// invoke calls entry's handler, recovering from panics and treating both
// panics and returned errors as "continue, no modification" per spec.md
// §4.4 rule 1/5: logged with the handler name, iteration continues.
func (r *Registry) invoke(ctx context.Context, entry *handlerEntry, data map[string]any) (hookresult.Result, bool) {
	var (
		result hookresult.Result
		err    error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("handler panic: %v", rec)
			}
		}()
		result, err = entry.handler(ctx, data)
	}()
	if err != nil {
		r.logger.Warn(ctx, "hooks: handler error, continuing", "handler", entry.name, "error", err.Error())
		return hookresult.Result{}, false
	}
	return result, true
}

// EmitAndCollect gathers results from every registered handler, each bounded
// by timeout; handlers that time out or error are skipped (logged). The
// monotonic sequence and event_id are stamped identically to Emit, but
// timestamp is intentionally omitted — emit_and_collect is an out-of-band
// query channel, not part of the turn's event stream.
//
// A handler "contributes" by returning a non-nil Data value on its Result;
// this is the Go encoding of the source's untyped "non-null data return".
func (r *Registry) EmitAndCollect(ctx context.Context, event events.Name, data map[string]any, timeout time.Duration) []any {
	envelope := r.prepareEnvelope(data, false)

	var collected []any
	for _, entry := range r.snapshot(event) {
		v, ok := r.invokeWithTimeout(ctx, entry, envelope, timeout)
		if ok && v != nil {
			collected = append(collected, v)
		}
	}
	return collected
}

func (r *Registry) invokeWithTimeout(ctx context.Context, entry *handlerEntry, data map[string]any, timeout time.Duration) (map[string]any, bool) {
	type outcome struct {
		result hookresult.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, ok := r.invoke(ctx, entry, data)
		if !ok {
			done <- outcome{err: fmt.Errorf("handler error")}
			return
		}
		done <- outcome{result: result}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, false
		}
		return o.result.Data, true
	case <-time.After(timeout):
		r.logger.Warn(ctx, "hooks: handler timed out in emit_and_collect", "handler", entry.name)
		return nil, false
	}
}
