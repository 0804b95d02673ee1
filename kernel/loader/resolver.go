package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var envSafeID = regexp.MustCompile(`[^A-Za-z0-9]`)

// DefaultResolver is the reference SourceResolver (spec.md §4.7): "a
// policy choice is app-layer and must not be baked into the kernel", but
// the kernel ships one workable default, replaceable via the
// module-source-resolver mount point. Layering, highest precedence first:
// environment override, workspace directory, project config, user config,
// plan source hint, installed-package fallback.
type DefaultResolver struct {
	// Getenv defaults to os.Getenv; tests may override it.
	Getenv func(string) string
	// WorkspaceDir, if set, is searched for a <WorkspaceDir>/<id> directory.
	WorkspaceDir string
	// ProjectConfig and UserConfig map a module id directly to a source path,
	// modeling a parsed project/user config file (parsing itself is an
	// app-layer concern; the kernel only consumes the resolved mapping).
	ProjectConfig map[string]string
	UserConfig    map[string]string
	// PackageFallbackDir is the last-resort installed-package search root.
	PackageFallbackDir string
}

// Resolve implements SourceResolver.
func (d *DefaultResolver) Resolve(ctx context.Context, moduleID, sourceHint string) (string, error) {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	envKey := "AMPLIFIER_MODULE_" + envSafeID.ReplaceAllString(strings.ToUpper(moduleID), "_")
	if override := getenv(envKey); override != "" {
		return override, nil
	}

	if searchPath := getenv("AMPLIFIER_MODULES"); searchPath != "" {
		for _, dir := range strings.Split(searchPath, ":") {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, moduleID)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	if d.WorkspaceDir != "" {
		candidate := filepath.Join(d.WorkspaceDir, moduleID)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, ok := d.ProjectConfig[moduleID]; ok {
		return path, nil
	}
	if path, ok := d.UserConfig[moduleID]; ok {
		return path, nil
	}

	if sourceHint != "" {
		return sourceHint, nil
	}

	if d.PackageFallbackDir != "" {
		return filepath.Join(d.PackageFallbackDir, moduleID), nil
	}

	return "", fmt.Errorf("loader: no source resolved for module %q", moduleID)
}
