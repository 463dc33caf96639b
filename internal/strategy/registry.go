// Package strategy isolates the pipeline from strategy internals: a
// registry resolves string ids to plugins, and the factory turns plugin
// output into validated signal frames.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// Plugin is the capability set every strategy exposes. Implementations
// must be pure: same bars and params produce the same frame.
type Plugin interface {
	// ID is the registry key, e.g. "inside_bar".
	ID() string
	// Schema returns the versioned signal-frame contract.
	Schema(version string) (*domain.SignalSchema, error)
	// ExtendSignalFrame projects bars and params into a signal frame whose
	// columns conform to the schema.
	ExtendSignalFrame(bars *domain.BarFrame, params Params) (*domain.SignalFrame, error)
}

// ConsecutiveBarsRequirer is an optional capability: strategies whose
// pattern logic needs a gap-free bar sequence opt into the SLA gate's
// gap-based completeness check.
type ConsecutiveBarsRequirer interface {
	RequiresConsecutiveBars() bool
}

// Registry maps strategy ids to plugins. Population happens explicitly at
// process start; the pipeline never imports plugin packages.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin; duplicate ids are a programmer error.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("strategy %q already registered", p.ID())
	}
	r.plugins[p.ID()] = p
	return nil
}

// Resolve looks up a plugin by id.
func (r *Registry) Resolve(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return nil, &domain.StrategyNotFoundError{StrategyID: id, Known: r.idsLocked()}
	}
	return p, nil
}

// IDs lists registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var defaultRegistry = NewRegistry()

// Register adds a plugin to the process-wide registry.
func Register(p Plugin) error { return defaultRegistry.Register(p) }

// MustRegister panics on duplicate registration; for use in main wiring.
func MustRegister(p Plugin) {
	if err := defaultRegistry.Register(p); err != nil {
		panic(err)
	}
}

// Resolve looks up a plugin in the process-wide registry.
func Resolve(id string) (Plugin, error) { return defaultRegistry.Resolve(id) }

// IDs lists the process-wide registry contents.
func IDs() []string { return defaultRegistry.IDs() }
