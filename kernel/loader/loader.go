// Package loader implements the kernel's module loader/dispatch (spec.md
// §4.7): it resolves a module identifier to a mount function across
// transports (in-process, grpc; native and wasm are explicitly unsupported
// in this implementation, per spec.md §4.7 rule 3).
//
// Grounded on the teacher's runtime/agent/engine.Engine interface, which
// already models "register a unit of work, dispatch it through a pluggable
// backend" — generalized here from a single Temporal backend to the
// transport dispatch spec.md requires (in-process constructor registry,
// or a grpc-fetched remote module adapter).
package loader

import (
	"context"
	"fmt"
)

// Transport is the module's wire transport. "in_process" is this
// implementation's adaptation of the source spec's language-specific
// "python" default: a Go-native in-process module is compiled into the
// binary and resolved through Registry rather than dynamically imported.
type Transport string

const (
	TransportInProcess Transport = "in_process"
	TransportGRPC       Transport = "grpc"
	TransportNative      Transport = "native"
	TransportWASM        Transport = "wasm"
)

// DefaultGRPCEndpoint is used when a manifest declares transport=grpc
// without an explicit endpoint, per spec.md §4.7 rule 2.
const DefaultGRPCEndpoint = "localhost:50051"

// Manifest describes how to load a module, as found alongside its resolved
// source path.
type Manifest struct {
	Transport    Transport
	GRPCEndpoint string
}

// ManifestReader inspects a resolved source path for a transport manifest.
// A reader that finds nothing should return DefaultManifest(), not an
// error: absence of a manifest is not a failure (spec.md §4.7: "default
// python" - in-process, here).
type ManifestReader interface {
	Read(ctx context.Context, sourcePath string) (Manifest, error)
}

// DefaultManifest returns the in-process transport with no grpc endpoint.
func DefaultManifest() Manifest {
	return Manifest{Transport: TransportInProcess}
}

// ErrUnsupportedTransport is returned for native and wasm, per spec.md
// §4.7 rule 3: "not supported in the first implementation; fail with a
// clear 'not implemented' error."
type ErrUnsupportedTransport struct {
	Transport Transport
}

func (e *ErrUnsupportedTransport) Error() string {
	return fmt.Sprintf("loader: transport %q is not implemented", e.Transport)
}

// Mounter is the narrow slice of kernel/coordinator.Coordinator a MountFn
// needs: enough to register itself on a slot. Accepting this interface
// instead of the concrete Coordinator type avoids an import cycle (the
// coordinator is the one invoking the loader).
type Mounter interface {
	Mount(ctx context.Context, slot, name string, module any) error
}

// MountFn is produced by Load. Invoking it registers the module on m and
// returns an optional cleanup callback, per spec.md §4.7: "registers the
// module (by calling coordinator.mount(...)) and returns an optional
// cleanup callback. The loader never mutates the coordinator directly."
type MountFn func(ctx context.Context, m Mounter) (cleanup func(context.Context) error, err error)

// Constructor builds a MountFn for an in-process module given its
// (already-merged) config. Modules register a Constructor under their
// module id with a Registry at init time.
type Constructor func(ctx context.Context, config map[string]any) (MountFn, error)

// SourceResolver maps a module id and optional source hint to a resolved
// source path. The reference layering policy (env override -> workspace ->
// project config -> user config -> plan hint -> installed-package
// fallback) lives in DefaultResolver; this interface keeps that policy
// replaceable via the module-source-resolver mount point (spec.md §4.7).
type SourceResolver interface {
	Resolve(ctx context.Context, moduleID, sourceHint string) (string, error)
}

// Loader resolves a module id to a MountFn per spec.md §4.7.
type Loader struct {
	resolver       SourceResolver
	manifests      ManifestReader
	registry       *Registry
	dialGRPC       GRPCDialer
}

// New constructs a Loader. manifests may be nil (DefaultManifest is used
// for every module, i.e. everything is treated as in-process).
func New(resolver SourceResolver, manifests ManifestReader, registry *Registry, dialer GRPCDialer) *Loader {
	return &Loader{resolver: resolver, manifests: manifests, registry: registry, dialGRPC: dialer}
}

// Load resolves id to a mount function per spec.md §4.7's four steps:
// inspect the manifest, dispatch on transport (grpc fetches a remote
// module's self-describing spec and wraps it as an adapter; native/wasm
// fail outright; anything else resolves an in-process constructor).
func (l *Loader) Load(ctx context.Context, id string, config map[string]any, sourceHint string) (MountFn, error) {
	sourcePath, err := l.resolver.Resolve(ctx, id, sourceHint)
	if err != nil {
		return nil, fmt.Errorf("loader: resolving source for %q: %w", id, err)
	}

	manifest := DefaultManifest()
	if l.manifests != nil {
		manifest, err = l.manifests.Read(ctx, sourcePath)
		if err != nil {
			return nil, fmt.Errorf("loader: reading manifest for %q: %w", id, err)
		}
	}

	switch manifest.Transport {
	case TransportGRPC:
		endpoint := manifest.GRPCEndpoint
		if endpoint == "" {
			endpoint = DefaultGRPCEndpoint
		}
		return l.loadGRPCTool(ctx, id, endpoint)
	case TransportNative, TransportWASM:
		return nil, &ErrUnsupportedTransport{Transport: manifest.Transport}
	default:
		ctor, ok := l.registry.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("loader: no in-process module registered for %q (resolved source %q)", id, sourcePath)
		}
		return ctor(ctx, config)
	}
}
