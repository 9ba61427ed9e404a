// Package ingress defines the contract between a wire protocol and the
// reqflow runtime. Each adapter implementation should live in its own
// sub-package and register itself with the ingress registry.
package ingress

import (
	"context"
	"fmt"
	"sort"
	"sync"

	runtimepkg "github.com/drblury/reqflow/internal/runtime"
	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

// Handler processes one request envelope and returns the response to write
// back to the wire. Runtime.Handle satisfies this signature.
type Handler func(ctx context.Context, env runtimepkg.RequestEnvelope) runtimepkg.Response

// Adapter accepts requests from some wire protocol, converts them into
// envelopes, and writes the handler's responses back out. Serve blocks until
// the context is cancelled or Close is called; Close stops the intake so a
// drain can proceed.
type Adapter interface {
	Serve(ctx context.Context, handle Handler) error
	Close(ctx context.Context) error
}

// Builder is the function signature for creating an adapter from config.
type Builder func(cfg configpkg.Config, logger loggingpkg.ServiceLogger) (Adapter, error)

// Registry maintains a mapping of adapter names to their builders. Adapter
// packages should register themselves using Register.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// DefaultRegistry is the global ingress registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new ingress registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds an adapter builder to the registry.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// Build creates an adapter using the registered builder for name.
func (r *Registry) Build(name string, cfg configpkg.Config, logger loggingpkg.ServiceLogger) (Adapter, error) {
	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("reqflow: unknown ingress adapter %q (registered: %v)", name, r.Names())
	}
	return builder(cfg, logger)
}

// Names returns the list of registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds an adapter builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// Build creates an adapter from the default registry.
func Build(name string, cfg configpkg.Config, logger loggingpkg.ServiceLogger) (Adapter, error) {
	return DefaultRegistry.Build(name, cfg, logger)
}
