package loader_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/kernel/loader"
)

func TestDefaultResolver_EnvOverrideWins(t *testing.T) {
	r := &loader.DefaultResolver{
		Getenv: func(key string) string {
			if key == "AMPLIFIER_MODULE_MY_TOOL" {
				return "/override/path"
			}
			return ""
		},
		ProjectConfig: map[string]string{"my-tool": "/project/path"},
	}
	path, err := r.Resolve(context.Background(), "my-tool", "/hint/path")
	require.NoError(t, err)
	assert.Equal(t, "/override/path", path)
}

func TestDefaultResolver_FallsBackThroughLayers(t *testing.T) {
	r := &loader.DefaultResolver{
		Getenv:        func(string) string { return "" },
		ProjectConfig: map[string]string{},
		UserConfig:    map[string]string{},
	}
	path, err := r.Resolve(context.Background(), "my-tool", "/hint/path")
	require.NoError(t, err)
	assert.Equal(t, "/hint/path", path, "falls back to the plan source hint when no other layer matches")
}

func TestDefaultResolver_ProjectConfigBeatsUserConfigAndHint(t *testing.T) {
	r := &loader.DefaultResolver{
		Getenv:        func(string) string { return "" },
		ProjectConfig: map[string]string{"my-tool": "/project/path"},
		UserConfig:    map[string]string{"my-tool": "/user/path"},
	}
	path, err := r.Resolve(context.Background(), "my-tool", "/hint/path")
	require.NoError(t, err)
	assert.Equal(t, "/project/path", path)
}

func TestDefaultResolver_NoLayerMatches_Errors(t *testing.T) {
	r := &loader.DefaultResolver{Getenv: func(string) string { return "" }}
	_, err := r.Resolve(context.Background(), "my-tool", "")
	require.Error(t, err)
}

func TestDefaultResolver_PackageFallback(t *testing.T) {
	r := &loader.DefaultResolver{
		Getenv:             func(string) string { return "" },
		PackageFallbackDir: "/usr/lib/amplifier-modules",
	}
	path, err := r.Resolve(context.Background(), "my-tool", "")
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/amplifier-modules/my-tool", path)
}
