// Package orchestrator provides a trivial reference Orchestrator
// (moduleapi.Orchestrator): it records the prompt in the mounted context
// manager and returns it unchanged. This is the orchestrator spec.md §8's
// minimal-turn scenario plans under the "echo" module id.
package orchestrator

import (
	"context"

	"github.com/amplifier-ai/kernel/kernel/loader"
	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

// Echo is an Orchestrator that appends prompt to the context as a user
// message and returns it as-is, without consulting any provider or tool.
type Echo struct{}

func (Echo) Execute(ctx context.Context, prompt string, rt moduleapi.Runtime) (string, error) {
	if cm := rt.Context(); cm != nil {
		if err := cm.AddMessage(ctx, "user", prompt, nil); err != nil {
			return "", err
		}
	}
	return prompt, nil
}

var _ moduleapi.Orchestrator = Echo{}

// Constructor is a loader.Constructor mounting Echo into the "orchestrator"
// slot. config is ignored: Echo takes none.
func Constructor(_ context.Context, _ map[string]any) (loader.MountFn, error) {
	return func(ctx context.Context, m loader.Mounter) (func(context.Context) error, error) {
		return nil, m.Mount(ctx, "orchestrator", "", Echo{})
	}, nil
}
