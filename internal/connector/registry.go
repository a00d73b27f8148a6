// Package connector provides the lookup table mapping catalog connector
// names to fetch implementations, plus the built-in connectors.
package connector

import (
	"fmt"
	"sync"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// Registry maps connector names to implementations. A fallback connector,
// when set, serves names with no explicit registration so a catalog typo
// degrades to a no-op run instead of failing every fire.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]ingest.Connector
	fallback ingest.Connector
}

// NewRegistry builds an empty registry with an optional fallback.
func NewRegistry(fallback ingest.Connector) *Registry {
	return &Registry{
		byName:   make(map[string]ingest.Connector),
		fallback: fallback,
	}
}

// Register installs a connector under the name, replacing any previous one.
func (r *Registry) Register(name string, conn ingest.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = conn
}

// Resolve returns the connector registered under the name, the fallback if
// none is, or an error when there is no fallback either.
func (r *Registry) Resolve(name string) (ingest.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.byName[name]; ok {
		return conn, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no connector registered for %q", name)
}

// Names returns the registered connector names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
