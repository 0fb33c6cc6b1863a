package eventsourcing

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Configuration is the process-wide set of collaborators every command
// handler pulls from: the event store, a registry shared with it, and the
// serializer's logger (§4.F). Handlers are configured on the store
// itself, not here. It is published behind an atomic pointer so
// reconfiguration — e.g. swapping in a test double — never exposes a
// torn view to a concurrent reader.
type Configuration struct {
	Store    EventStore
	Registry *Registry
	Logger   *zap.Logger
}

var globalConfig atomic.Pointer[Configuration]

// Configure atomically publishes cfg as the process-wide Configuration.
// A nil Logger is replaced with a no-op logger so callers never need a
// nil check.
func Configure(cfg Configuration) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	globalConfig.Store(&cfg)
}

// CurrentConfiguration returns the last value published via Configure, or
// a zero-value Configuration with a no-op logger and empty registry if
// Configure has never been called.
func CurrentConfiguration() Configuration {
	p := globalConfig.Load()
	if p == nil {
		return Configuration{Registry: NewRegistry(), Logger: zap.NewNop()}
	}
	return *p
}

// NewRepositoryFromConfiguration builds a Repository bound to the
// currently configured EventStore, per §4.C's "repository factory" role:
// every command handler starts from a fresh, empty identity map.
func NewRepositoryFromConfiguration() *Repository {
	cfg := CurrentConfiguration()
	return NewRepository(cfg.Store)
}
