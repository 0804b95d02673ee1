package cancel_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/kernel/cancel"
)

func TestToken_InitialState(t *testing.T) {
	tok := cancel.New()
	assert.False(t, tok.IsCancelled())
	assert.False(t, tok.IsImmediate())
	assert.Equal(t, cancel.None, tok.State())
}

func TestToken_GracefulThenImmediate(t *testing.T) {
	tok := cancel.New()

	require.True(t, tok.RequestCancellation(false))
	assert.Equal(t, cancel.Graceful, tok.State())
	assert.True(t, tok.IsCancelled())
	assert.False(t, tok.IsImmediate())

	// Idempotent: repeating the same request is a no-op transition.
	require.False(t, tok.RequestCancellation(false))
	assert.Equal(t, cancel.Graceful, tok.State())

	require.True(t, tok.RequestCancellation(true))
	assert.Equal(t, cancel.Immediate, tok.State())
	assert.True(t, tok.IsImmediate())
}

func TestToken_ImmediateNeverRegresses(t *testing.T) {
	tok := cancel.New()
	require.True(t, tok.RequestCancellation(true))
	require.False(t, tok.RequestCancellation(false))
	assert.Equal(t, cancel.Immediate, tok.State())
}

func TestToken_StateStringLabels(t *testing.T) {
	assert.Equal(t, "none", cancel.None.String())
	assert.Equal(t, "graceful", cancel.Graceful.String())
	assert.Equal(t, "immediate", cancel.Immediate.String())
}

// TestToken_MonotonicProperty exercises spec.md §8's invariant: "is_cancelled
// is monotonic... state is monotonic in the order none < graceful <
// immediate" across arbitrary sequences of requests.
func TestToken_MonotonicProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	props := gopter.NewProperties(params)

	props.Property("state never regresses across any request sequence", prop.ForAll(
		func(requests []bool) bool {
			tok := cancel.New()
			prev := cancel.None
			for _, immediate := range requests {
				tok.RequestCancellation(immediate)
				cur := tok.State()
				if cur < prev {
					return false
				}
				prev = cur
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	props.TestingRun(t)
}
