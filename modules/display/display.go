// Package display provides a trivial terminal DisplaySystem
// (hookresult.DisplaySystem): writes user_message payloads to a writer,
// prefixed by level and source.
package display

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/amplifier-ai/kernel/kernel/hookresult"
)

// Terminal is a DisplaySystem writing to out, guarded by a mutex since
// ShowMessage can be called concurrently from multiple hook handlers.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// New constructs a Terminal. A nil out discards all messages.
func New(out io.Writer) *Terminal {
	if out == nil {
		out = io.Discard
	}
	return &Terminal{out: out}
}

func (t *Terminal) ShowMessage(_ context.Context, level hookresult.MessageLevel, message, source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if source != "" {
		fmt.Fprintf(t.out, "[%s] (%s) %s\n", level, source, message)
		return
	}
	fmt.Fprintf(t.out, "[%s] %s\n", level, message)
}
