// Package memcontext provides an in-memory reference ContextManager
// (moduleapi.ContextManager), grounded on the teacher's append-only
// transcript ledger: messages accumulate in arrival order behind a mutex,
// with no persistence — a session's history dies with the process per the
// kernel's memory-only session model.
package memcontext

import (
	"context"
	"sync"

	"github.com/amplifier-ai/kernel/kernel/loader"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

// Ledger is an in-memory, append-only ContextManager. It also implements
// moduleapi.Compactor: ShouldCompact reports true once the ledger holds
// more than maxMessages entries, and Compact drops every message except the
// most recent keepMessages, always preserving the very first message
// (typically the system prompt) at the front.
type Ledger struct {
	mu           sync.Mutex
	messages     []moduleapi.Message
	maxMessages  int
	keepMessages int
}

// Config controls the optional compaction policy. A zero MaxMessages
// disables ShouldCompact entirely (it always reports false).
type Config struct {
	MaxMessages  int
	KeepMessages int
}

// New constructs an empty Ledger.
func New(cfg Config) *Ledger {
	keep := cfg.KeepMessages
	if keep <= 0 {
		keep = cfg.MaxMessages / 2
	}
	return &Ledger{maxMessages: cfg.MaxMessages, keepMessages: keep}
}

func (l *Ledger) AddMessage(_ context.Context, role, content string, metadata map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, moduleapi.Message{Role: role, Content: content, Metadata: metadata})
	return nil
}

func (l *Ledger) GetMessages(_ context.Context) ([]moduleapi.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]moduleapi.Message, len(l.messages))
	copy(out, l.messages)
	return out, nil
}

func (l *Ledger) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
	return nil
}

func (l *Ledger) ShouldCompact(_ context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxMessages > 0 && len(l.messages) > l.maxMessages
}

// Compact keeps the first message (if any) plus the most recent
// keepMessages entries, discarding the rest.
func (l *Ledger) Compact(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) <= l.keepMessages+1 {
		return nil
	}

	var head []moduleapi.Message
	if len(l.messages) > 0 {
		head = []moduleapi.Message{l.messages[0]}
	}
	tail := l.messages[len(l.messages)-l.keepMessages:]
	l.messages = append(append([]moduleapi.Message(nil), head...), tail...)
	return nil
}

var (
	_ moduleapi.ContextManager = (*Ledger)(nil)
	_ moduleapi.Compactor      = (*Ledger)(nil)
)

// Constructor is a loader.Constructor mounting a Ledger into the "context"
// slot. config recognizes two optional numeric keys, "max_messages" and
// "keep_messages" (JSON-decoded mount plans carry numbers as float64).
func Constructor(_ context.Context, config map[string]any) (loader.MountFn, error) {
	cfg := Config{
		MaxMessages:  configInt(config, "max_messages"),
		KeepMessages: configInt(config, "keep_messages"),
	}
	return func(ctx context.Context, m loader.Mounter) (func(context.Context) error, error) {
		return nil, m.Mount(ctx, "context", "", New(cfg))
	}, nil
}

func configInt(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
