package recovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/telemetry"
)

func init() {
	telemetry.DeclareMetrics("recovery", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{Name: "recovery.action.total", Type: "counter", Help: "Recovery actions attempted", Labels: []string{"action_type"}},
			{Name: "recovery.action.success", Type: "counter", Help: "Recovery actions that succeeded", Labels: []string{"action_type"}},
			{Name: "recovery.action.duration_ms", Type: "histogram", Help: "Recovery action duration", Labels: []string{"action_type"}, Unit: "ms"},
		},
	})
}

// Runner executes recovery plans against a registry of handlers keyed
// by action_type.
type Runner struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
	logger   platform.Logger
}

// NewRunner builds an empty Runner.
func NewRunner(logger platform.Logger) *Runner {
	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	return &Runner{handlers: make(map[string]ActionHandler), logger: logger}
}

// Register associates actionType with handler, replacing any previous
// registration for the same type.
func (r *Runner) Register(actionType string, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = handler
}

// ValidatePlan rejects a plan whose prerequisite_action_types form a
// cycle, since cyclic plans can never make progress. Run calls it
// before executing any step.
func ValidatePlan(plan []ActionDescriptor) error {
	prereqs := make(map[string][]string, len(plan))
	for _, d := range plan {
		prereqs[d.ActionType] = d.PrerequisiteActionTypes
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan))
	var visit func(node string) error
	visit = func(node string) error {
		switch color[node] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("cycle detected at action_type %q", node)
		}
		color[node] = gray
		for _, dep := range prereqs[node] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[node] = black
		return nil
	}
	for _, d := range plan {
		if err := visit(d.ActionType); err != nil {
			return platform.NewKernelError("recovery.ValidatePlan", "invalid_input", fmt.Errorf("%w: %v", platform.ErrInvalidInput, err))
		}
	}
	return nil
}

// Run executes plan in priority-descending order against err/opCtx,
// returning one StepOutcome per descriptor. ValidatePlan is called
// first; a cyclic plan aborts with no steps executed.
func (r *Runner) Run(ctx context.Context, plan []ActionDescriptor, err error, opCtx map[string]interface{}) ([]StepOutcome, error) {
	if verr := ValidatePlan(plan); verr != nil {
		return nil, verr
	}

	ordered := append([]ActionDescriptor{}, plan...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	outcomes := make([]StepOutcome, 0, len(ordered))
	completed := make(map[string]bool, len(ordered))

	for _, d := range ordered {
		if !r.prerequisitesMet(d, completed) {
			outcomes = append(outcomes, StepOutcome{ActionType: d.ActionType, Skipped: true, SkipReason: "prerequisites_not_met"})
			continue
		}

		r.mu.RLock()
		handler, ok := r.handlers[d.ActionType]
		r.mu.RUnlock()
		if !ok || !handler.CanHandle(err, opCtx) {
			outcomes = append(outcomes, StepOutcome{ActionType: d.ActionType, Skipped: true, SkipReason: "cannot_handle"})
			continue
		}

		result, runErr := r.runWithRetry(ctx, d, handler, opCtx)
		outcomes = append(outcomes, StepOutcome{ActionType: d.ActionType, Result: result, Err: runErr})
		if runErr == nil && result.Success {
			completed[d.ActionType] = true
		}
	}
	return outcomes, nil
}

func (r *Runner) prerequisitesMet(d ActionDescriptor, completed map[string]bool) bool {
	for _, p := range d.PrerequisiteActionTypes {
		if !completed[p] {
			return false
		}
	}
	return true
}

func (r *Runner) runWithRetry(ctx context.Context, d ActionDescriptor, handler ActionHandler, opCtx map[string]interface{}) (ActionResult, error) {
	timeout := time.Duration(d.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * handler.EstimatedDuration()
	}

	var lastResult ActionResult
	var lastErr error

	attempts := d.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ActionResult{}, platform.NewKernelError("recovery.Run", "cancelled", fmt.Errorf("%w: %v", platform.ErrCancelled, ctx.Err()))
			case <-timer.C:
			}
		}

		telemetry.Counter("recovery.action.total", "action_type", d.ActionType)
		lastResult, lastErr = r.runOnce(ctx, timeout, d, handler, opCtx)
		telemetry.Histogram("recovery.action.duration_ms", float64(lastResult.Duration.Milliseconds()), "action_type", d.ActionType)

		if lastErr == nil && lastResult.Success {
			telemetry.Counter("recovery.action.success", "action_type", d.ActionType)
			return lastResult, nil
		}
	}
	return lastResult, lastErr
}

func (r *Runner) runOnce(ctx context.Context, timeout time.Duration, d ActionDescriptor, handler ActionHandler, opCtx map[string]interface{}) (ActionResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	type runOut struct {
		result ActionResult
		err    error
	}
	done := make(chan runOut, 1)
	go func() {
		res, err := handler.Execute(runCtx, d.Parameters, opCtx)
		done <- runOut{res, err}
	}()

	select {
	case out := <-done:
		if out.result.Duration == 0 {
			out.result.Duration = time.Since(start)
		}
		return out.result, out.err
	case <-runCtx.Done():
		return ActionResult{Success: false, Message: "timed out", Duration: time.Since(start)},
			platform.NewKernelError("recovery.Run", "timeout", fmt.Errorf("%w: action %s", platform.ErrTimeout, d.ActionType))
	}
}
