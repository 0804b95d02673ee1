package hooks_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/kernel/events"
	"github.com/amplifier-ai/kernel/kernel/hookresult"
	"github.com/amplifier-ai/kernel/kernel/hooks"
)

func TestEmit_StampsInfrastructureFields(t *testing.T) {
	r := hooks.NewRegistry("sess-1", nil)
	var captured map[string]any
	r.Register(events.ToolPre, "capture", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		captured = data
		return hookresult.Continue(nil), nil
	})

	result := r.Emit(context.Background(), events.ToolPre, map[string]any{
		"timestamp": "forged",
		"event_id":  "forged",
		"sequence":  -1,
	})

	require.Equal(t, hookresult.ActionContinue, result.Action)
	assert.Equal(t, "sess-1:1", captured["event_id"])
	assert.EqualValues(t, 1, captured["sequence"])
	assert.NotEqual(t, "forged", captured["timestamp"])
	assert.NotEmpty(t, captured["timestamp"])
}

func TestEmit_UnknownSessionID_FallsBack(t *testing.T) {
	r := hooks.NewRegistry("", nil)
	var captured map[string]any
	r.Register(events.ToolPre, "capture", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		captured = data
		return hookresult.Continue(nil), nil
	})
	r.Emit(context.Background(), events.ToolPre, nil)
	assert.Equal(t, "unknown:1", captured["event_id"])
}

func TestEmit_MonotonicSequenceAcrossEmitAndCollect(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	seen := map[uint64]bool{}
	record := func(data map[string]any) {
		seq := data["sequence"]
		var v uint64
		switch x := seq.(type) {
		case uint64:
			v = x
		}
		require.False(t, seen[v], "duplicate sequence %d", v)
		seen[v] = true
	}
	r.Register(events.ToolPre, "rec", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		record(data)
		return hookresult.Continue(nil), nil
	})

	for i := 0; i < 5; i++ {
		if i%2 == 0 {
			r.Emit(context.Background(), events.ToolPre, nil)
		} else {
			r.EmitAndCollect(context.Background(), events.ToolPre, nil, time.Second)
		}
	}
	assert.Len(t, seen, 5)
}

func TestEmit_DenyShortCircuits(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	bRan := false
	r.Register(events.ToolPre, "A", 5, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.Deny("nope"), nil
	})
	r.Register(events.ToolPre, "B", 10, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		bRan = true
		return hookresult.AskUser("X", nil, time.Second, hookresult.ApprovalDeny), nil
	})

	result := r.Emit(context.Background(), events.ToolPre, nil)
	assert.Equal(t, hookresult.ActionDeny, result.Action)
	assert.Equal(t, "nope", result.Reason)
	assert.False(t, bRan)
}

func TestEmit_AskUserBeatsInjectContext_BothOrderings(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		r := hooks.NewRegistry("s", nil)
		injectFn := func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
			return hookresult.InjectContext("reminder", hookresult.RoleSystem, true), nil
		}
		askFn := func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
			return hookresult.AskUser("confirm?", nil, time.Second, hookresult.ApprovalDeny), nil
		}
		if !reversed {
			r.Register(events.ToolPre, "inject", 5, injectFn)
			r.Register(events.ToolPre, "ask", 10, askFn)
		} else {
			r.Register(events.ToolPre, "ask", 5, askFn)
			r.Register(events.ToolPre, "inject", 10, injectFn)
		}

		result := r.Emit(context.Background(), events.ToolPre, nil)
		assert.Equal(t, hookresult.ActionAskUser, result.Action, "reversed=%v", reversed)
	}
}

func TestEmit_InjectContextAccumulates(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	r.Register(events.ToolPre, "first", 1, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.InjectContext("one", hookresult.RoleSystem, true), nil
	})
	r.Register(events.ToolPre, "second", 2, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.InjectContext("two", hookresult.RoleSystem, true), nil
	})

	result := r.Emit(context.Background(), events.ToolPre, nil)
	require.Equal(t, hookresult.ActionInjectContext, result.Action)
	assert.True(t, strings.Contains(result.ContextInjection, "one"))
	assert.True(t, strings.Contains(result.ContextInjection, "two"))
}

func TestEmit_ModifyReplacesCarriedData(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	r.Register(events.ToolPre, "modifier", 1, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.Modify(map[string]any{"replaced": true}), nil
	})
	var seenByNext map[string]any
	r.Register(events.ToolPre, "after", 2, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		seenByNext = data
		return hookresult.Continue(nil), nil
	})

	result := r.Emit(context.Background(), events.ToolPre, map[string]any{"original": true})
	assert.Equal(t, true, seenByNext["replaced"])
	assert.Equal(t, hookresult.ActionContinue, result.Action)
}

func TestEmit_HandlerErrorOrPanic_LogsAndContinues(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	r.Register(events.ToolPre, "erroring", 1, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.Result{}, fmt.Errorf("boom")
	})
	r.Register(events.ToolPre, "panicking", 2, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		panic("also boom")
	})
	ran := false
	r.Register(events.ToolPre, "survivor", 3, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		ran = true
		return hookresult.Continue(nil), nil
	})

	result := r.Emit(context.Background(), events.ToolPre, nil)
	assert.Equal(t, hookresult.ActionContinue, result.Action)
	assert.True(t, ran)
}

func TestRegisterUnregister_RoundTrip_LeavesListUnchanged(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	r.Register(events.ToolPre, "stays", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.Continue(nil), nil
	})
	before := r.ListHandlers(events.ToolPre)

	unregister := r.Register(events.ToolPre, "temp", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.Continue(nil), nil
	})
	unregister()

	after := r.ListHandlers(events.ToolPre)
	assert.Equal(t, before, after)
}

func TestSetDefaultFields_MergedUnlessOverridden(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	r.SetDefaultFields(map[string]any{"session_id": "X"})
	var captured map[string]any
	r.Register(events.ToolPre, "capture", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		captured = data
		return hookresult.Continue(nil), nil
	})

	r.Emit(context.Background(), events.ToolPre, nil)
	assert.Equal(t, "X", captured["session_id"])

	r.Emit(context.Background(), events.ToolPre, map[string]any{"session_id": "override"})
	assert.Equal(t, "override", captured["session_id"])
}

func TestEmitAndCollect_SkipsTimeouts(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	r.Register(events.ToolPre, "fast", 1, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		return hookresult.Result{Action: hookresult.ActionContinue, Data: map[string]any{"v": "fast"}}, nil
	})
	r.Register(events.ToolPre, "slow", 2, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		time.Sleep(50 * time.Millisecond)
		return hookresult.Result{Action: hookresult.ActionContinue, Data: map[string]any{"v": "slow"}}, nil
	})

	collected := r.EmitAndCollect(context.Background(), events.ToolPre, nil, 5*time.Millisecond)
	require.Len(t, collected, 1)
	m := collected[0].(map[string]any)
	assert.Equal(t, "fast", m["v"])
}

func TestEmitAndCollect_OmitsTimestamp(t *testing.T) {
	r := hooks.NewRegistry("s", nil)
	var captured map[string]any
	r.Register(events.ToolPre, "capture", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
		captured = data
		return hookresult.Result{Action: hookresult.ActionContinue, Data: map[string]any{"ok": true}}, nil
	})
	r.EmitAndCollect(context.Background(), events.ToolPre, nil, time.Second)
	_, hasTimestamp := captured["timestamp"]
	assert.False(t, hasTimestamp)
	_, hasEventID := captured["event_id"]
	assert.True(t, hasEventID)
}

// TestSequence_MonotonicProperty is a property test over arbitrary emit
// counts, verifying spec.md §8's "k, k+1, ..., k+N-1" invariant.
func TestSequence_MonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("N consecutive emits produce consecutive sequences", prop.ForAll(
		func(n int) bool {
			r := hooks.NewRegistry("prop-sess", nil)
			var sequences []uint64
			r.Register(events.ToolPre, "rec", 0, func(ctx context.Context, data map[string]any) (hookresult.Result, error) {
				sequences = append(sequences, data["sequence"].(uint64))
				return hookresult.Continue(nil), nil
			})
			for i := 0; i < n; i++ {
				r.Emit(context.Background(), events.ToolPre, nil)
			}
			for i := 1; i < len(sequences); i++ {
				if sequences[i] != sequences[i-1]+1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
