package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/telemetry"
)

func init() {
	telemetry.DeclareMetrics("circuit_breaker", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{Name: "circuit_breaker.calls", Type: "counter", Help: "Calls admitted or rejected", Labels: []string{"name", "result"}},
			{Name: "circuit_breaker.duration_ms", Type: "histogram", Help: "Call duration", Labels: []string{"name"}, Unit: "ms"},
			{Name: "circuit_breaker.failures", Type: "counter", Help: "Recorded failures", Labels: []string{"name"}},
			{Name: "circuit_breaker.state_changes", Type: "counter", Help: "State transitions", Labels: []string{"name", "from", "to"}},
			{Name: "circuit_breaker.current_state", Type: "gauge", Help: "Current state as an enum value", Labels: []string{"name"}},
			{Name: "circuit_breaker.rejected", Type: "counter", Help: "Calls rejected while open", Labels: []string{"name"}},
		},
	})
}

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// transition records one state change for the bounded history kept on
// the breaker, useful for diagnosing flapping.
type transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

const maxTransitionHistory = 50

// CircuitBreaker is a per-operation admission gate. It tracks recent
// call outcomes in a sliding window and denies admission once the
// trip conditions fire, probing recovery through a capped number of
// half-open calls before fully closing again.
type CircuitBreaker struct {
	cfg *Config

	state          atomic.Value // State
	stateChangedAt atomic.Value // time.Time
	generation     atomic.Uint64

	window *SlidingWindow

	consecutiveFailures  atomic.Int32
	consecutiveSuccesses atomic.Int32

	halfOpenInFlight atomic.Int32
	halfOpenAdmitted atomic.Int32

	forceState atomic.Value // *forcedState, nil when not forced

	// baseErrorRate/baseSlowCall are the thresholds as configured at
	// construction; adaptive tuning stays within ±25% of them.
	baseErrorRate   float64
	baseSlowCall    time.Duration
	callsSinceAdapt atomic.Int32

	mu         sync.Mutex
	history    []transition
	totalCalls atomic.Uint64

	listeners []func(from, to State, reason string)
}

type forcedState struct {
	state  State
	reason string
}

// New builds a CircuitBreaker from cfg, applying defaults for any zero
// value that would otherwise leave the trip condition unreachable.
func New(cfg *Config) (*CircuitBreaker, error) {
	if cfg == nil {
		cfg = DefaultConfig("unnamed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = platform.NoOpLogger{}
	}
	cb := &CircuitBreaker{
		cfg:           cfg,
		window:        NewSlidingWindow(cfg.WindowSize, cfg.BucketCount),
		baseErrorRate: cfg.ErrorRateThreshold,
		baseSlowCall:  cfg.SlowCallDurationThreshold,
	}
	cb.state.Store(Closed)
	cb.stateChangedAt.Store(time.Now())
	return cb, nil
}

// AddStateChangeListener registers fn to be called after every state
// transition; each call runs in its own goroutine.
func (cb *CircuitBreaker) AddStateChangeListener(fn func(from, to State, reason string)) {
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, fn)
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) currentState() State {
	return cb.state.Load().(State)
}

// Admit reports whether a call should be allowed to proceed. Closed
// always allows. Open allows only once open_to_half_open_timeout has
// elapsed since the last transition, and on doing so moves to
// HalfOpen. HalfOpen allows up to half_open_max_calls concurrent
// probes and denies the rest.
func (cb *CircuitBreaker) Admit() (allow bool, reason string) {
	if fs, ok := cb.forceState.Load().(*forcedState); ok && fs != nil {
		if fs.state == Open {
			cb.recordRejection()
			return false, "forced_open: " + fs.reason
		}
		return true, "forced_" + fs.state.String()
	}

	switch cb.currentState() {
	case Closed:
		return true, "closed"

	case Open:
		changedAt := cb.stateChangedAt.Load().(time.Time)
		if time.Since(changedAt) < cb.cfg.OpenToHalfOpenTimeout {
			cb.recordRejection()
			return false, "open"
		}
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if cb.currentState() != Open {
			return cb.admitHalfOpenLocked()
		}
		cb.transitionLocked(HalfOpen, "open_to_half_open_timeout elapsed")
		return cb.admitHalfOpenLocked()

	case HalfOpen:
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return cb.admitHalfOpenLocked()

	default:
		return true, "unknown_state"
	}
}

// admitHalfOpenLocked must be called with cb.mu held.
func (cb *CircuitBreaker) admitHalfOpenLocked() (bool, string) {
	if cb.halfOpenAdmitted.Load() >= int32(cb.cfg.HalfOpenMaxCalls) {
		cb.recordRejection()
		return false, "half_open_probe_cap_reached"
	}
	cb.halfOpenAdmitted.Add(1)
	cb.halfOpenInFlight.Add(1)
	return true, "half_open_probe"
}

func (cb *CircuitBreaker) recordRejection() {
	telemetry.Counter("circuit_breaker.rejected", "name", cb.cfg.Name)
	telemetry.Counter("circuit_breaker.calls", "name", cb.cfg.Name, "result", "rejected")
}

// Record reports the outcome of a call that Admit previously allowed.
func (cb *CircuitBreaker) Record(success bool, duration time.Duration, err error) {
	cb.totalCalls.Add(1)
	telemetry.Histogram("circuit_breaker.duration_ms", float64(duration.Milliseconds()), "name", cb.cfg.Name)

	if cb.currentState() == HalfOpen {
		cb.halfOpenInFlight.Add(-1)
	}

	if success {
		cb.window.RecordSuccess(duration, cb.cfg.SlowCallDurationThreshold)
		cb.consecutiveFailures.Store(0)
		cb.consecutiveSuccesses.Add(1)
		telemetry.Counter("circuit_breaker.calls", "name", cb.cfg.Name, "result", "success")
	} else {
		cb.window.RecordFailure(duration, cb.cfg.SlowCallDurationThreshold)
		cb.consecutiveSuccesses.Store(0)
		cb.consecutiveFailures.Add(1)
		telemetry.Counter("circuit_breaker.calls", "name", cb.cfg.Name, "result", "failure")
		telemetry.Counter("circuit_breaker.failures", "name", cb.cfg.Name)
		_ = err
	}

	cb.evaluate()
}

// evaluate re-checks trip/recovery conditions and performs a
// transition if warranted. Safe to call from Record's hot path; it
// only takes the mutex when a transition is actually being considered.
func (cb *CircuitBreaker) evaluate() {
	switch cb.currentState() {
	case Closed:
		if cb.shouldTrip() {
			cb.mu.Lock()
			if cb.currentState() == Closed && cb.shouldTrip() {
				cb.transitionLocked(Open, "trip condition met")
			}
			cb.mu.Unlock()
		}
		if cb.cfg.AdaptiveEnabled {
			cb.maybeAdapt()
		}

	case HalfOpen:
		successes := cb.consecutiveSuccesses.Load()
		failures := cb.consecutiveFailures.Load()
		probesDone := successes + failures
		if failures > 0 {
			cb.mu.Lock()
			if cb.currentState() == HalfOpen {
				cb.transitionLocked(Open, "probe failed")
			}
			cb.mu.Unlock()
			return
		}
		if probesDone >= int32(cb.cfg.SuccessThreshold) {
			cb.mu.Lock()
			if cb.currentState() == HalfOpen {
				cb.transitionLocked(Closed, "half-open probes succeeded")
			}
			cb.mu.Unlock()
		}
	}
}

// shouldTrip reports whether the Closed-state trip condition holds:
// enough volume has been observed, and either the legacy consecutive
// failure threshold, the windowed error rate, or the slow-call rate
// has crossed its configured threshold.
func (cb *CircuitBreaker) shouldTrip() bool {
	total := cb.window.Total()
	if int(total) < cb.cfg.VolumeThreshold {
		return false
	}
	if cb.cfg.FailureThreshold > 0 && int(cb.consecutiveFailures.Load()) >= cb.cfg.FailureThreshold {
		return true
	}
	if cb.cfg.ErrorRateThreshold > 0 && cb.window.ErrorRate() >= cb.cfg.ErrorRateThreshold {
		return true
	}
	if cb.cfg.SlowCallRateThreshold > 0 && cb.cfg.SlowCallDurationThreshold > 0 && cb.window.SlowCallRate() >= cb.cfg.SlowCallRateThreshold {
		return true
	}
	return false
}

// transitionLocked must be called with cb.mu held.
func (cb *CircuitBreaker) transitionLocked(to State, reason string) {
	from := cb.currentState()
	if from == to {
		return
	}
	cb.state.Store(to)
	cb.stateChangedAt.Store(time.Now())
	cb.generation.Add(1)

	if to == HalfOpen {
		cb.halfOpenAdmitted.Store(0)
		cb.halfOpenInFlight.Store(0)
		cb.consecutiveSuccesses.Store(0)
		cb.consecutiveFailures.Store(0)
	}
	if to == Closed {
		cb.consecutiveFailures.Store(0)
	}

	cb.history = append(cb.history, transition{From: from, To: to, At: time.Now(), Reason: reason})
	if len(cb.history) > maxTransitionHistory {
		cb.history = cb.history[len(cb.history)-maxTransitionHistory:]
	}

	cb.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.cfg.Name, "from": from.String(), "to": to.String(), "reason": reason,
	})
	telemetry.Counter("circuit_breaker.state_changes", "name", cb.cfg.Name, "from", from.String(), "to", to.String())
	telemetry.Gauge("circuit_breaker.current_state", float64(to), "name", cb.cfg.Name)

	for _, fn := range cb.listeners {
		go fn(from, to, reason)
	}
}

// maybeAdapt nudges ErrorRateThreshold and SlowCallDurationThreshold by
// up to 25% of their starting value once per window of at least
// AdaptiveMinSamples calls, tracking the observed error rate toward the
// configured [AdaptiveMinErrorRate,AdaptiveMaxErrorRate] band and the
// observed rolling mean latency toward the configured
// [AdaptiveMinLatencyRatio,AdaptiveMaxLatencyRatio] band.
func (cb *CircuitBreaker) maybeAdapt() {
	if int(cb.callsSinceAdapt.Add(1)) < cb.cfg.AdaptiveMinSamples {
		return
	}
	total := cb.window.Total()
	if int(total) < cb.cfg.AdaptiveMinSamples {
		return
	}
	cb.callsSinceAdapt.Store(0)
	rate := cb.window.ErrorRate()
	meanLatency := cb.window.MeanLatency()
	cb.mu.Lock()
	defer cb.mu.Unlock()

	base := cb.baseErrorRate
	floor := base * 0.75
	ceil := base * 1.25

	switch {
	case rate < cb.cfg.AdaptiveMinErrorRate && cb.cfg.ErrorRateThreshold > floor:
		cb.cfg.ErrorRateThreshold -= base * 0.05
		if cb.cfg.ErrorRateThreshold < floor {
			cb.cfg.ErrorRateThreshold = floor
		}
	case rate > cb.cfg.AdaptiveMaxErrorRate && cb.cfg.ErrorRateThreshold < ceil:
		cb.cfg.ErrorRateThreshold += base * 0.05
		if cb.cfg.ErrorRateThreshold > ceil {
			cb.cfg.ErrorRateThreshold = ceil
		}
	}

	if cb.cfg.SlowCallDurationThreshold <= 0 {
		return
	}
	baseSlow := cb.baseSlowCall
	floorSlow := time.Duration(float64(baseSlow) * 0.75)
	ceilSlow := time.Duration(float64(baseSlow) * 1.25)
	ratio := float64(meanLatency) / float64(cb.cfg.SlowCallDurationThreshold)

	switch {
	case ratio < cb.cfg.AdaptiveMinLatencyRatio && cb.cfg.SlowCallDurationThreshold > floorSlow:
		cb.cfg.SlowCallDurationThreshold -= time.Duration(float64(baseSlow) * 0.05)
		if cb.cfg.SlowCallDurationThreshold < floorSlow {
			cb.cfg.SlowCallDurationThreshold = floorSlow
		}
	case ratio > cb.cfg.AdaptiveMaxLatencyRatio && cb.cfg.SlowCallDurationThreshold < ceilSlow:
		cb.cfg.SlowCallDurationThreshold += time.Duration(float64(baseSlow) * 0.05)
		if cb.cfg.SlowCallDurationThreshold > ceilSlow {
			cb.cfg.SlowCallDurationThreshold = ceilSlow
		}
	}
}

// Force pins the breaker to state, ignoring trip/recovery evaluation
// until ClearForce is called. While pinned, a forced Open denies every
// call and any other forced state admits every call; Force(Closed)
// does not release the pin.
func (cb *CircuitBreaker) Force(state State, reason string) {
	cb.forceState.Store(&forcedState{state: state, reason: reason})
	cb.mu.Lock()
	cb.transitionLocked(state, "forced: "+reason)
	cb.mu.Unlock()
}

// ClearForce releases a prior Force call, returning the breaker to
// ordinary trip/recovery evaluation from its current state.
func (cb *CircuitBreaker) ClearForce() {
	cb.forceState.Store((*forcedState)(nil))
}

// Reset clears all counters and history and returns the breaker to
// Closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.window.Reset()
	cb.consecutiveFailures.Store(0)
	cb.consecutiveSuccesses.Store(0)
	cb.halfOpenAdmitted.Store(0)
	cb.halfOpenInFlight.Store(0)
	cb.totalCalls.Store(0)
	cb.callsSinceAdapt.Store(0)
	cb.history = nil
	cb.forceState.Store((*forcedState)(nil))
	cb.transitionLocked(Closed, "reset")
}

// Metrics returns a point-in-time snapshot suitable for a status
// endpoint or debug dump.
func (cb *CircuitBreaker) Metrics() map[string]interface{} {
	success, failure, slow := cb.window.Counts()
	cb.mu.Lock()
	recent := make([]transition, len(cb.history))
	copy(recent, cb.history)
	cb.mu.Unlock()

	history := make([]map[string]interface{}, len(recent))
	for i, t := range recent {
		history[i] = map[string]interface{}{
			"from": t.From.String(), "to": t.To.String(),
			"at": t.At, "reason": t.Reason,
		}
	}

	return map[string]interface{}{
		"name":                  cb.cfg.Name,
		"state":                 cb.currentState().String(),
		"state_changed_at":      cb.stateChangedAt.Load().(time.Time),
		"consecutive_failures":  cb.consecutiveFailures.Load(),
		"consecutive_successes": cb.consecutiveSuccesses.Load(),
		"window_success":        success,
		"window_failure":        failure,
		"window_slow":           slow,
		"error_rate":            cb.window.ErrorRate(),
		"slow_call_rate":        cb.window.SlowCallRate(),
		"total_calls":           cb.totalCalls.Load(),
		"half_open_admitted":    cb.halfOpenAdmitted.Load(),
		"half_open_in_flight":   cb.halfOpenInFlight.Load(),
		"error_rate_threshold":  cb.cfg.ErrorRateThreshold,
		"slow_call_duration_threshold_ms": cb.cfg.SlowCallDurationThreshold.Milliseconds(),
		"mean_latency_ms":       cb.window.MeanLatency().Milliseconds(),
		"transitions":           history,
	}
}

// GetState returns the current state's name, for logging and tests.
func (cb *CircuitBreaker) GetState() string {
	return cb.currentState().String()
}

// Name returns the operation name this breaker was built for.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}
