// Package kernel wires the ledger, retry engine, circuit breaker
// registry, policy engine, bandit selector, and recovery runner into
// the single entry point a caller needs: Protect.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/resilientkernel/kernel/bandit"
	"github.com/resilientkernel/kernel/breaker"
	"github.com/resilientkernel/kernel/ledger"
	"github.com/resilientkernel/kernel/ops"
	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/policy"
	"github.com/resilientkernel/kernel/recovery"
	"github.com/resilientkernel/kernel/retry"
)

// OperationSpec describes one call a caller wants protected.
type OperationSpec struct {
	Name       string
	Parameters map[string]interface{}
	Context    map[string]interface{}

	// RetryConfig, if nil, falls back to retry.OptimizedDefaults(retry.KindAPI).
	RetryConfig *retry.RetryConfiguration

	// Selection, when non-nil, asks the bandit for an arm before Invoke
	// and folds the chosen arm into Parameters under "arm".
	Selection *bandit.SelectionContext

	// Reward derives the bandit reward in [0,1] from an outcome. Required
	// only when Selection is set.
	Reward func(outcome Outcome) float64
}

// Outcome is what Protect returns once an operation reaches a terminal
// state (success, exhausted retries, or circuit rejection).
type Outcome struct {
	Success     bool
	Result      interface{}
	Err         error
	Attempts    int
	Arm         string
	RecoverySteps []recovery.StepOutcome
}

// Config configures a Kernel at construction time.
type Config struct {
	LedgerDir    string
	Logger       platform.Logger
	BreakerFactory breaker.ConfigFactory
	PolicyEngine *policy.Engine
	BanditModel  *bandit.Model
	RecoveryRunner *recovery.Runner
}

// Kernel is the caller-facing facade: Selector pick, breaker admit,
// ledger begin, invoke, ledger complete/fail, breaker record, selector
// reward, retry next delay, in that order.
type Kernel struct {
	ledger   *ledger.Ledger
	breakers *breaker.Registry
	retrier  *retry.Engine
	policies *policy.Engine
	selector *bandit.Model
	recovery *recovery.Runner
	logger   platform.Logger
}

// New builds a Kernel from cfg. A nil PolicyEngine/RecoveryRunner
// builds a bare-minimum default of each, matching the teacher's
// single-constructor-with-sane-defaults convention. A nil BanditModel
// is kept as nil, which turns arm selection off.
func New(cfg Config) *Kernel {
	logger := cfg.Logger
	if logger == nil {
		logger = platform.NoOpLogger{}
	}

	store := ledger.NewFileStore(cfg.LedgerDir, logger)

	policies := cfg.PolicyEngine
	if policies == nil {
		policies = policy.New(logger)
	}

	recoveryRunner := cfg.RecoveryRunner
	if recoveryRunner == nil {
		recoveryRunner = recovery.NewRunner(logger)
	}

	return &Kernel{
		ledger:   ledger.New(store, ledger.WithLogger(logger)),
		breakers: breaker.NewRegistry(cfg.BreakerFactory, logger),
		retrier:  retry.NewEngine(logger),
		policies: policies,
		selector: cfg.BanditModel,
		recovery: recoveryRunner,
		logger:   logger,
	}
}

// Protect runs handle under the full resilience pipeline: it selects an
// arm (if the spec asks for one), admits through the named circuit
// breaker, records an idempotency attempt, invokes the handle, settles
// the ledger, records the breaker outcome, rewards the selector, and
// consults the policy engine for whether/how long to wait before the
// next attempt. It loops until success, a non-retryable/denied
// admission, or the configured retry budget is exhausted.
func (k *Kernel) Protect(ctx context.Context, spec OperationSpec, handle ops.Handle) (Outcome, error) {
	cfg := spec.RetryConfig
	if cfg == nil {
		cfg = retry.OptimizedDefaults(retry.KindAPI)
	}
	if err := cfg.Validate(); err != nil {
		return Outcome{}, err
	}

	var arm string
	if spec.Selection != nil && k.selector != nil {
		arm = k.selector.Select(*spec.Selection)
	}

	params := spec.Parameters
	if arm != "" {
		params = cloneParams(spec.Parameters)
		params["arm"] = arm
	}

	cb, err := k.breakers.Get(spec.Name)
	if err != nil {
		return Outcome{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{Success: false, Err: ctx.Err(), Attempts: attempt - 1, Arm: arm}, ctx.Err()
		default:
		}

		allow, reason := cb.Admit()
		if !allow {
			err := platform.NewKernelError("kernel.Protect", "circuit_open", fmt.Errorf("%w: %s (%s)", platform.ErrCircuitOpen, spec.Name, reason))
			return k.finish(ctx, spec, arm, attempt, false, nil, err)
		}

		tok, err := k.ledger.Begin(ledger.KeySpec{Operation: spec.Name, Parameters: params, Context: spec.Context}, nil)
		if err != nil {
			return Outcome{}, err
		}

		start := time.Now()
		deadline := time.Now().Add(timeoutFor(cfg))
		result, invokeErr := handle.Invoke(ctx, params, deadline)
		duration := time.Since(start)

		cb.Record(invokeErr == nil, duration, invokeErr)

		if invokeErr == nil {
			if err := k.ledger.Complete(tok, result.Value); err != nil {
				k.logger.Warn("ledger complete failed", map[string]interface{}{"operation": spec.Name, "error": err.Error()})
			}
			return k.finish(ctx, spec, arm, attempt, true, result.Value, nil)
		}

		lastErr = invokeErr
		if failErr := k.ledger.Fail(tok, invokeErr.Error()); failErr != nil {
			k.logger.Warn("ledger fail failed", map[string]interface{}{"operation": spec.Name, "error": failErr.Error()})
		}

		if !platform.Retryable(invokeErr) {
			return k.finish(ctx, spec, arm, attempt, false, nil, invokeErr)
		}

		decision := k.policies.Execute(ctx, policy.Context{
			OperationName: spec.Name,
			Error:         invokeErr,
			Attempt:       attempt,
			TotalAttempts: cfg.MaxAttempts,
			Metadata:      spec.Context,
		})

		var recoverySteps []recovery.StepOutcome
		if len(decision.RecoveryPlan) > 0 {
			steps, recErr := k.recovery.Run(ctx, toActionDescriptors(decision.RecoveryPlan), invokeErr, spec.Context)
			if recErr != nil {
				k.logger.Warn("recovery plan rejected", map[string]interface{}{"operation": spec.Name, "error": recErr.Error()})
			}
			recoverySteps = steps
		}

		if attempt == cfg.MaxAttempts {
			o, err := k.finish(ctx, spec, arm, attempt, false, nil, platform.NewKernelError("kernel.Protect", "max_attempts_reached", fmt.Errorf("%w: %v", platform.ErrMaxAttemptsReached, lastErr)))
			o.RecoverySteps = recoverySteps
			return o, err
		}

		if !decision.ShouldRetry {
			o, err := k.finish(ctx, spec, arm, attempt, false, nil, lastErr)
			o.RecoverySteps = recoverySteps
			return o, err
		}

		delay := k.retrier.NextDelay(spec.Name, cfg, attempt)
		if decision.DelayMs > 0 {
			delay = time.Duration(decision.DelayMs) * time.Millisecond
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Success: false, Err: ctx.Err(), Attempts: attempt, Arm: arm}, ctx.Err()
		case <-timer.C:
		}
	}

	return k.finish(ctx, spec, arm, cfg.MaxAttempts, false, nil, platform.NewKernelError("kernel.Protect", "max_attempts_reached", fmt.Errorf("%w: %v", platform.ErrMaxAttemptsReached, lastErr)))
}

func (k *Kernel) finish(ctx context.Context, spec OperationSpec, arm string, attempts int, success bool, result interface{}, err error) (Outcome, error) {
	outcome := Outcome{Success: success, Result: result, Err: err, Attempts: attempts, Arm: arm}
	if arm != "" && spec.Selection != nil && k.selector != nil && spec.Reward != nil {
		reward := spec.Reward(outcome)
		if rewardErr := k.selector.Reward(arm, reward, *spec.Selection); rewardErr != nil {
			k.logger.Warn("bandit reward rejected", map[string]interface{}{"operation": spec.Name, "arm": arm, "error": rewardErr.Error()})
		}
	}
	return outcome, err
}

func timeoutFor(cfg *retry.RetryConfiguration) time.Duration {
	if cfg.MaxDelay > 0 {
		return cfg.MaxDelay
	}
	return 30 * time.Second
}

func cloneParams(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toActionDescriptors(cfgs []policy.RecoveryActionConfig) []recovery.ActionDescriptor {
	out := make([]recovery.ActionDescriptor, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, recovery.ActionDescriptor{
			ActionType:              c.ActionType,
			Parameters:              c.Parameters,
			Priority:                c.Priority,
			TimeoutMs:               c.TimeoutMs,
			MaxRetries:              c.MaxRetries,
			PrerequisiteActionTypes: c.PrerequisiteActionTypes,
		})
	}
	return out
}
