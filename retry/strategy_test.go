package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoffNoJitterMatchesSpecSchedule(t *testing.T) {
	cfg := &RetryConfiguration{
		StrategyType:      StrategyExponential,
		MaxAttempts:       6,
		InitialDelay:      1000 * time.Millisecond,
		MaxDelay:          30000 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            JitterNone,
	}
	want := []time.Duration{1000, 2000, 4000, 8000, 16000, 30000}
	for i, w := range want {
		got := baseDelay(cfg, i+1, nil)
		assert.Equal(t, w*time.Millisecond, got, "attempt %d", i+1)
	}
}

func TestAttemptOneReturnsExactlyInitialDelay(t *testing.T) {
	cfg := &RetryConfiguration{
		StrategyType: StrategyExponential, InitialDelay: 1500 * time.Millisecond,
		MaxDelay: time.Minute, BackoffMultiplier: 3,
	}
	assert.Equal(t, 1500*time.Millisecond, baseDelay(cfg, 1, nil))
}

func TestFixedStrategyIsAttemptIndependent(t *testing.T) {
	cfg := &RetryConfiguration{StrategyType: StrategyFixed, InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 200*time.Millisecond, baseDelay(cfg, attempt, nil))
	}
}

func TestLinearStrategyIncrementsByConfiguredStep(t *testing.T) {
	cfg := &RetryConfiguration{
		StrategyType: StrategyLinear, InitialDelay: 100 * time.Millisecond,
		LinearIncrement: 50 * time.Millisecond, MaxDelay: time.Second,
	}
	assert.Equal(t, 100*time.Millisecond, baseDelay(cfg, 1, nil))
	assert.Equal(t, 150*time.Millisecond, baseDelay(cfg, 2, nil))
	assert.Equal(t, 200*time.Millisecond, baseDelay(cfg, 3, nil))
}

func TestFibonacciStrategyGrowsByFibonacciSequence(t *testing.T) {
	cfg := &RetryConfiguration{StrategyType: StrategyFibonacci, InitialDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second}
	d1 := baseDelay(cfg, 1, nil)
	d2 := baseDelay(cfg, 2, nil)
	d3 := baseDelay(cfg, 3, nil)
	d4 := baseDelay(cfg, 4, nil)
	assert.True(t, d3 >= d2)
	assert.True(t, d4 >= d3)
	assert.Equal(t, d1, d2)
}

func TestDelayNeverExceedsMaxDelay(t *testing.T) {
	cfg := &RetryConfiguration{
		StrategyType: StrategyExponential, InitialDelay: time.Second,
		MaxDelay: 5 * time.Second, BackoffMultiplier: 4,
	}
	for attempt := 1; attempt <= 10; attempt++ {
		assert.LessOrEqual(t, baseDelay(cfg, attempt, nil), 5*time.Second)
	}
}

func TestJitterNoneIsDeterministic(t *testing.T) {
	d := applyJitter(1000*time.Millisecond, JitterNone, nil)
	assert.Equal(t, 1000*time.Millisecond, d)
}

func TestJitterFullBoundedBetweenZeroAndDelay(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := applyJitter(1000*time.Millisecond, JitterFull, nil)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1000*time.Millisecond)
	}
}

func TestJitterEqualStaysCenteredAroundDelay(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := applyJitter(1000*time.Millisecond, JitterEqual, nil)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestJitterDecorrelatedBoundedByThreeXDelay(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := applyJitter(1000*time.Millisecond, JitterDecorrelated, nil)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 3000*time.Millisecond)
	}
}

func TestAdaptiveScalesUpOnLowSuccessRate(t *testing.T) {
	state := &adaptiveState{}
	for i := 0; i < 5; i++ {
		state.recordOutcome(false, 0, i+1)
	}
	computed := 1000 * time.Millisecond
	adjusted := adaptiveAdjust(computed, 6, state, 30*time.Second)
	assert.Greater(t, adjusted, computed)
}

func TestAdaptiveScalesDownOnHighSuccessRate(t *testing.T) {
	state := &adaptiveState{}
	for i := 0; i < 9; i++ {
		state.recordOutcome(true, 0, i+1)
	}
	computed := 1000 * time.Millisecond
	adjusted := adaptiveAdjust(computed, 10, state, 30*time.Second)
	assert.Less(t, adjusted, computed)
}

func TestConfigValidationRejectsBadInputs(t *testing.T) {
	cases := []*RetryConfiguration{
		{StrategyType: StrategyFixed, MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: time.Second},
		{StrategyType: StrategyFixed, MaxAttempts: 1, InitialDelay: -time.Second, MaxDelay: time.Second},
		{StrategyType: StrategyFixed, MaxAttempts: 1, InitialDelay: 2 * time.Second, MaxDelay: time.Second},
		{StrategyType: StrategyExponential, MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffMultiplier: 0.5},
		{StrategyType: "bogus", MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Second},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}

func TestOptimizedDefaultsCoverAllKinds(t *testing.T) {
	for _, kind := range []OperationKind{KindNetwork, KindGit, KindAPI, KindDatabase, KindQuick} {
		cfg := OptimizedDefaults(kind)
		assert.NoError(t, cfg.Validate())
	}
}
