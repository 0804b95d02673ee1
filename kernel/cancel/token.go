// Package cancel implements the kernel's two-state cooperative cancellation
// signal. A Token is observed, never interrupted: collaborators poll
// IsCancelled at their own safe points and decide how to unwind.
package cancel

import "sync/atomic"

// State is the cancellation state of a Token. States are totally ordered
// (None < Graceful < Immediate) and a Token's state only ever moves forward.
type State int32

const (
	// None indicates cancellation has not been requested.
	None State = iota
	// Graceful indicates a cooperative cancellation request: collaborators
	// should finish their current logical step and return.
	Graceful
	// Immediate indicates collaborators are authorized to abandon in-flight
	// work at their next checkpoint.
	Immediate
)

// String returns the lower-case state label ("none", "graceful", "immediate").
func (s State) String() string {
	switch s {
	case Graceful:
		return "graceful"
	case Immediate:
		return "immediate"
	default:
		return "none"
	}
}

// Token is a cooperative cancellation signal shared by a session's
// coordinator and every module it mounts. The zero value is ready to use
// (state None).
//
// Token is safe for concurrent use; RequestCancellation may be called from
// any goroutine while other goroutines poll IsCancelled/State.
type Token struct {
	state atomic.Int32
}

// New constructs a Token in state None.
func New() *Token {
	return &Token{}
}

// RequestCancellation requests cancellation. It is idempotent: calling it
// repeatedly with immediate=false once the token is already Graceful is a
// no-op, and the transition never regresses from Immediate back to
// Graceful. Passing immediate=true always jumps straight to Immediate
// regardless of the current state.
//
// RequestCancellation reports whether this call caused a state transition
// (true the first time a given state is reached, false on repeat calls that
// would not advance the state further).
func (t *Token) RequestCancellation(immediate bool) bool {
	target := Graceful
	if immediate {
		target = Immediate
	}
	for {
		cur := State(t.state.Load())
		if cur >= target {
			return false
		}
		if t.state.CompareAndSwap(int32(cur), int32(target)) {
			return true
		}
	}
}

// IsCancelled reports whether cancellation has been requested at all
// (state != None). Once true, it never becomes false again.
func (t *Token) IsCancelled() bool {
	return State(t.state.Load()) != None
}

// IsImmediate reports whether cancellation has escalated to Immediate.
func (t *Token) IsImmediate() bool {
	return State(t.state.Load()) == Immediate
}

// State returns the current cancellation state.
func (t *Token) State() State {
	return State(t.state.Load())
}
