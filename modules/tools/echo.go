// Package tools provides reference Tool implementations
// (moduleapi.Tool): a trivial echo tool for wiring/smoke tests, and a
// schema-validating wrapper any tool author can put in front of their own
// Tool to reject malformed input before Execute ever runs.
package tools

import (
	"context"

	"github.com/amplifier-ai/kernel/kernel/loader"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

// Echo is a Tool that returns its input unchanged, prefixed. Useful as a
// wiring smoke test and as the fake in module-loader tests.
type Echo struct{}

func (Echo) Name() string        { return "echo" }
func (Echo) Description() string { return "returns the input bytes, prefixed with echo:" }

func (Echo) Execute(_ context.Context, input []byte) (moduleapi.ToolResult, error) {
	return moduleapi.NewToolResult(true, "echo:"+string(input), ""), nil
}

var _ moduleapi.Tool = Echo{}

// EchoConstructor is a loader.Constructor mounting Echo into the "tools"
// slot under its own name ("echo"). config is ignored: Echo takes none.
func EchoConstructor(_ context.Context, _ map[string]any) (loader.MountFn, error) {
	return func(ctx context.Context, m loader.Mounter) (func(context.Context) error, error) {
		return nil, m.Mount(ctx, "tools", "echo", Echo{})
	}, nil
}
