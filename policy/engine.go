package policy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/telemetry"
	"gopkg.in/yaml.v3"
)

func init() {
	telemetry.DeclareMetrics("policy", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{Name: "policy.matched", Type: "counter", Help: "Policy executions by policy id", Labels: []string{"policy_id"}},
			{Name: "policy.reload", Type: "counter", Help: "Config file reloads", Labels: []string{"result"}},
		},
	})
}

// document is the top-level YAML shape.
type document struct {
	Version  string   `yaml:"version"`
	Policies []Policy `yaml:"policies"`
}

// Engine holds the active set of policies and matches a Context against
// them in priority order, falling back to DefaultPolicy when nothing
// matches.
type Engine struct {
	mu        sync.RWMutex
	byID      map[string]*Policy
	ordered   []*Policy // resolved, enabled, sorted by priority desc then insertion order
	logger    platform.Logger
	watchCtl  chan struct{}
	nextOrder int
}

// New builds an empty Engine. Policies are added with Load or Add.
func New(logger platform.Logger) *Engine {
	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	return &Engine{
		byID:   make(map[string]*Policy),
		logger: logger,
	}
}

// Load replaces the engine's policy set with the contents of the YAML
// file at path. Invalid policies (broken inheritance, cycles) are
// logged and dropped rather than aborting the whole load.
func (e *Engine) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return platform.NewKernelError("policy.Load", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return platform.NewKernelError("policy.Load", "invalid_input", fmt.Errorf("%w: %v", platform.ErrInvalidInput, err))
	}

	byID := make(map[string]*Policy, len(doc.Policies))
	for i := range doc.Policies {
		p := doc.Policies[i]
		p.order = i
		byID[p.ID] = &p
	}

	resolved := make(map[string]*Policy, len(byID))
	for id := range byID {
		r, err := resolveInheritance(id, byID, make(map[string]bool))
		if err != nil {
			e.logger.Warn("dropping invalid policy", map[string]interface{}{"policy_id": id, "error": err.Error()})
			continue
		}
		r.order = byID[id].order
		resolved[id] = r
	}

	e.mu.Lock()
	e.byID = resolved
	e.nextOrder = len(doc.Policies)
	e.rebuildOrderedLocked()
	e.mu.Unlock()
	return nil
}

// resolveInheritance flattens id's ancestor chain into a single
// resolved Policy: conditions and recovery actions are concatenated
// parent-then-child, scalar fields are child-wins. visiting detects
// cycles.
func resolveInheritance(id string, byID map[string]*Policy, visiting map[string]bool) (*Policy, error) {
	p, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown policy id %q", id)
	}
	if p.resolved != nil {
		return p.resolved, nil
	}
	if visiting[id] {
		return nil, fmt.Errorf("inheritance cycle detected at %q", id)
	}
	visiting[id] = true

	result := *p
	if p.InheritFrom != "" {
		parent, err := resolveInheritance(p.InheritFrom, byID, visiting)
		if err != nil {
			return nil, err
		}
		result.Conditions = append(append([]Condition{}, parent.Conditions...), p.Conditions...)
		result.RecoveryActions = append(append([]RecoveryActionConfig{}, parent.RecoveryActions...), p.RecoveryActions...)
		if result.RetryStrategy == nil {
			result.RetryStrategy = parent.RetryStrategy
		}
	}
	result.resolved = &result
	p.resolved = &result
	delete(visiting, id)
	return &result, nil
}

func (e *Engine) rebuildOrderedLocked() {
	ordered := make([]*Policy, 0, len(e.byID))
	for _, p := range e.byID {
		if p.Enabled {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].order < ordered[j].order
	})
	e.ordered = ordered
}

// Add inserts or replaces a single policy, resolving inheritance
// against the policies already known to the engine.
func (e *Engine) Add(p Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := make(map[string]*Policy, len(e.byID)+1)
	for k, v := range e.byID {
		cp := *v
		cp.resolved = nil
		snapshot[k] = &cp
	}
	cp := p
	cp.resolved = nil
	snapshot[p.ID] = &cp

	resolved, err := resolveInheritance(p.ID, snapshot, make(map[string]bool))
	if err != nil {
		return platform.NewKernelError("policy.Add", "invalid_input", fmt.Errorf("%w: %v", platform.ErrInvalidInput, err))
	}
	if existing, ok := e.byID[p.ID]; ok {
		resolved.order = existing.order
	} else {
		resolved.order = e.nextOrder
		e.nextOrder++
	}
	e.byID[p.ID] = resolved
	e.rebuildOrderedLocked()
	return nil
}

// Remove deletes the policy with the given id, if present.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byID, id)
	e.rebuildOrderedLocked()
}

// Toggle flips a policy's Enabled flag without touching its conditions.
func (e *Engine) Toggle(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.byID[id]
	if !ok {
		return platform.NewKernelError("policy.Toggle", "not_found", fmt.Errorf("%w: %s", platform.ErrNotFound, id))
	}
	p.Enabled = enabled
	e.rebuildOrderedLocked()
	return nil
}

// Execute matches pctx against the enabled policy set, highest priority
// first, ties broken by insertion order, and returns the decision. When
// nothing matches, DefaultPolicy applies.
func (e *Engine) Execute(ctx context.Context, pctx Context) Decision {
	e.mu.RLock()
	candidates := e.ordered
	e.mu.RUnlock()

	for _, p := range candidates {
		if MatchesAll(p.Conditions, pctx) {
			telemetry.Counter("policy.matched", "policy_id", p.ID)
			return decisionFor(p, pctx)
		}
	}
	def := DefaultPolicy()
	telemetry.Counter("policy.matched", "policy_id", def.ID)
	return decisionFor(def, pctx)
}

// decisionFor derives should_retry from whether the matched policy's
// own max_attempts still permits another attempt at pctx.Attempt; a
// recovery plan can still run even when the policy has no retries left.
func decisionFor(p *Policy, pctx Context) Decision {
	d := Decision{
		ShouldRetry:   true,
		PolicyApplied: p.ID,
		RetryStrategy: p.RetryStrategy,
		RecoveryPlan:  p.RecoveryActions,
	}
	if p.RetryStrategy != nil {
		d.DelayMs = p.RetryStrategy.InitialDelay.Milliseconds()
		if pctx.Attempt >= p.RetryStrategy.MaxAttempts {
			d.ShouldRetry = false
		}
	}
	return d
}

// Watch starts an fsnotify watcher on path and reloads the engine
// whenever the file changes, until ctx is cancelled or Close is
// called. Reload failures are logged, not propagated; the previous
// policy set stays in effect.
func (e *Engine) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return platform.NewKernelError("policy.Watch", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return platform.NewKernelError("policy.Watch", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}

	e.mu.Lock()
	e.watchCtl = make(chan struct{})
	stop := e.watchCtl
	e.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := e.Load(path); err != nil {
					telemetry.Counter("policy.reload", "result", "failure")
					e.logger.Warn("policy reload failed", map[string]interface{}{"path": path, "error": err.Error()})
					continue
				}
				telemetry.Counter("policy.reload", "result", "success")
				e.logger.Info("policy reloaded", map[string]interface{}{"path": path})
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.Warn("policy watcher error", map[string]interface{}{"error": werr.Error()})
			}
		}
	}()
	return nil
}

// Close stops any active Watch goroutine.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watchCtl != nil {
		close(e.watchCtl)
		e.watchCtl = nil
	}
}

// Policies returns a snapshot of every known policy, resolved, keyed by id.
func (e *Engine) Policies() map[string]Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Policy, len(e.byID))
	for k, v := range e.byID {
		out[k] = *v
	}
	return out
}
