package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/resilientkernel/kernel/platform"
)

// ConfigFactory builds a Config for a breaker name not yet seen by the
// registry. The default factory returns DefaultConfig(name).
type ConfigFactory func(name string) *Config

// Registry lazily creates and caches one CircuitBreaker per operation
// name, so callers never have to pre-register every operation they
// might protect.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	factory  ConfigFactory
	logger   platform.Logger
}

// NewRegistry builds a Registry. factory may be nil, in which case
// every new breaker uses DefaultConfig(name).
func NewRegistry(factory ConfigFactory, logger platform.Logger) *Registry {
	if factory == nil {
		factory = DefaultConfig
	}
	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		factory:  factory,
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) (*CircuitBreaker, error) {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb, nil
	}
	cfg := r.factory(name)
	if cfg.Logger == nil {
		cfg.Logger = r.logger
	}
	cb, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.breakers[name] = cb
	return cb, nil
}

// All returns a snapshot of every breaker currently registered, keyed
// by name.
func (r *Registry) All() map[string]*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*CircuitBreaker, len(r.breakers))
	for k, v := range r.breakers {
		out[k] = v
	}
	return out
}

// Execute runs op under the named breaker: it calls Admit, and if
// denied returns a wrapped platform.ErrCircuitOpen without calling op
// at all. Otherwise it runs op, measures duration, and calls Record
// with the outcome before returning op's error unchanged.
func (r *Registry) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	cb, err := r.Get(name)
	if err != nil {
		return err
	}

	allow, reason := cb.Admit()
	if !allow {
		return platform.NewKernelError("breaker.Execute", "circuit_open",
			fmt.Errorf("%w: %s (%s)", platform.ErrCircuitOpen, name, reason))
	}

	start := time.Now()
	err = op(ctx)
	cb.Record(err == nil, time.Since(start), err)
	return err
}

// Reset resets every breaker currently registered.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
