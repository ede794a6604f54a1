package retry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/telemetry"
)

func init() {
	telemetry.DeclareMetrics("retry", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{Name: "retry.attempts", Type: "counter", Help: "Total retry attempts", Labels: []string{"operation", "attempt_number"}},
			{Name: "retry.success", Type: "counter", Help: "Successful operations after retry", Labels: []string{"operation", "final_attempt"}},
			{Name: "retry.failures", Type: "counter", Help: "Failed operations after all retries", Labels: []string{"operation", "error_type"}},
			{Name: "retry.duration_ms", Type: "histogram", Help: "Total duration including all retry attempts", Labels: []string{"operation", "status"}, Unit: "ms"},
			{Name: "retry.backoff_ms", Type: "histogram", Help: "Backoff duration between retries", Labels: []string{"operation", "strategy"}, Unit: "ms"},
		},
	})
}

// strategyStats accumulates per-strategy outcome counters.
type strategyStats struct {
	totalAttempts int64
	totalDelay    time.Duration
	successes     int64
	failures      int64
}

// Engine executes operations under a RetryConfiguration, sleeping
// between attempts according to the configured strategy and jitter, and
// accumulating per-strategy/per-operation outcome statistics for the
// adaptive strategy to consume.
type Engine struct {
	logger platform.Logger
	rnd    *rand.Rand

	mu              sync.Mutex
	statsByStrategy map[StrategyType]*strategyStats
	adaptiveByOp    map[string]*adaptiveState
}

// NewEngine builds a retry Engine.
func NewEngine(logger platform.Logger) *Engine {
	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	return &Engine{
		logger:          logger,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		statsByStrategy: make(map[StrategyType]*strategyStats),
		adaptiveByOp:    make(map[string]*adaptiveState),
	}
}

// NextDelay returns the delay that should be applied before attempt
// number attempt (1-based) of operation, given cfg, including jitter.
func (e *Engine) NextDelay(operation string, cfg *RetryConfiguration, attempt int) time.Duration {
	var state *adaptiveState
	if cfg.StrategyType == StrategyAdaptive {
		e.mu.Lock()
		state = e.adaptiveStateFor(operation)
		e.mu.Unlock()
	}
	delay := baseDelay(cfg, attempt, state)
	e.mu.Lock()
	jittered := applyJitter(delay, cfg.Jitter, e.rnd)
	e.mu.Unlock()
	return jittered
}

func (e *Engine) adaptiveStateFor(operation string) *adaptiveState {
	st, ok := e.adaptiveByOp[operation]
	if !ok {
		st = &adaptiveState{}
		e.adaptiveByOp[operation] = st
	}
	return st
}

// Do executes fn under cfg for operation, sleeping between attempts and
// returning the last error if every attempt is exhausted. ctx
// cancellation aborts the wait without recording an additional attempt.
func (e *Engine) Do(ctx context.Context, operation string, cfg *RetryConfiguration, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = OptimizedDefaults(KindAPI)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return platform.NewKernelError("retry.Do", "cancelled", fmt.Errorf("%w: %v", platform.ErrCancelled, ctx.Err()))
		default:
		}

		telemetry.Counter("retry.attempts", "operation", operation, "attempt_number", fmt.Sprintf("%d", attempt))

		err := fn(ctx)
		if err == nil {
			telemetry.Counter("retry.success", "operation", operation, "final_attempt", fmt.Sprintf("%d", attempt))
			telemetry.Duration("retry.duration_ms", start, "operation", operation, "status", "success")
			e.RecordOutcome(cfg.StrategyType, operation, true, 0, attempt)
			return nil
		}
		lastErr = err

		if !platform.Retryable(err) {
			telemetry.Counter("retry.failures", "operation", operation, "error_type", "non_retryable")
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := e.NextDelay(operation, cfg, attempt)
		telemetry.Histogram("retry.backoff_ms", float64(delay.Milliseconds()), "operation", operation, "strategy", string(cfg.StrategyType))
		e.RecordOutcome(cfg.StrategyType, operation, false, delay, attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return platform.NewKernelError("retry.Do", "cancelled", fmt.Errorf("%w: %v", platform.ErrCancelled, ctx.Err()))
		case <-timer.C:
		}
	}

	telemetry.Counter("retry.failures", "operation", operation, "error_type", fmt.Sprintf("%T", lastErr))
	telemetry.Duration("retry.duration_ms", start, "operation", operation, "status", "failure")
	return platform.NewKernelError("retry.Do", "max_attempts_reached", fmt.Errorf("%w: %v", platform.ErrMaxAttemptsReached, lastErr))
}

// RecordOutcome updates per-strategy and, for adaptive, per-operation
// rolling statistics after an attempt completes.
func (e *Engine) RecordOutcome(strategy StrategyType, operation string, success bool, observedDelay time.Duration, attempt int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.statsByStrategy[strategy]
	if !ok {
		st = &strategyStats{}
		e.statsByStrategy[strategy] = st
	}
	st.totalAttempts++
	st.totalDelay += observedDelay
	if success {
		st.successes++
	} else {
		st.failures++
	}

	if strategy == StrategyAdaptive {
		e.adaptiveStateFor(operation).recordOutcome(success, observedDelay, attempt)
	}
}

// StrategyStatsSnapshot is a point-in-time read of one strategy's
// aggregated outcome counters.
type StrategyStatsSnapshot struct {
	TotalAttempts int64
	TotalDelay    time.Duration
	Successes     int64
	Failures      int64
	SuccessRate   float64
}

// Stats returns a snapshot of outcome statistics for strategy.
func (e *Engine) Stats(strategy StrategyType) StrategyStatsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statsByStrategy[strategy]
	if !ok {
		return StrategyStatsSnapshot{}
	}
	snap := StrategyStatsSnapshot{
		TotalAttempts: st.totalAttempts,
		TotalDelay:    st.totalDelay,
		Successes:     st.successes,
		Failures:      st.failures,
	}
	if total := st.successes + st.failures; total > 0 {
		snap.SuccessRate = float64(st.successes) / float64(total)
	}
	return snap
}
