package memcontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/modules/memcontext"
)

func TestLedger_AddAndGetMessages_PreservesOrder(t *testing.T) {
	l := memcontext.New(memcontext.Config{})
	ctx := context.Background()

	require.NoError(t, l.AddMessage(ctx, "system", "be terse", nil))
	require.NoError(t, l.AddMessage(ctx, "user", "hi", nil))
	require.NoError(t, l.AddMessage(ctx, "assistant", "hello", nil))

	messages, err := l.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "hello", messages[2].Content)
}

func TestLedger_Clear_EmptiesHistory(t *testing.T) {
	l := memcontext.New(memcontext.Config{})
	ctx := context.Background()
	require.NoError(t, l.AddMessage(ctx, "user", "hi", nil))

	require.NoError(t, l.Clear(ctx))

	messages, err := l.GetMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestLedger_ShouldCompact_FalseWhenUnconfigured(t *testing.T) {
	l := memcontext.New(memcontext.Config{})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.AddMessage(ctx, "user", "hi", nil))
	}
	assert.False(t, l.ShouldCompact(ctx))
}

func TestLedger_Compact_KeepsFirstMessageAndRecentTail(t *testing.T) {
	l := memcontext.New(memcontext.Config{MaxMessages: 4, KeepMessages: 2})
	ctx := context.Background()

	require.NoError(t, l.AddMessage(ctx, "system", "system-prompt", nil))
	for i := 0; i < 5; i++ {
		require.NoError(t, l.AddMessage(ctx, "user", "msg", nil))
	}

	assert.True(t, l.ShouldCompact(ctx))
	require.NoError(t, l.Compact(ctx))

	messages, err := l.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "system-prompt", messages[0].Content)
}

func TestLedger_Compact_NoOpWhenBelowThreshold(t *testing.T) {
	l := memcontext.New(memcontext.Config{MaxMessages: 10, KeepMessages: 5})
	ctx := context.Background()
	require.NoError(t, l.AddMessage(ctx, "user", "hi", nil))

	require.NoError(t, l.Compact(ctx))

	messages, err := l.GetMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
