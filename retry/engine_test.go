package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resilientkernel/kernel/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineDoSucceedsWithoutRetryingOnFirstAttempt(t *testing.T) {
	e := NewEngine(nil)
	calls := 0
	err := e.Do(context.Background(), "op", OptimizedDefaults(KindQuick), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEngineDoRetriesUntilSuccess(t *testing.T) {
	e := NewEngine(nil)
	cfg := &RetryConfiguration{
		StrategyType: StrategyFixed, MaxAttempts: 3,
		InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Jitter: JitterNone,
	}
	calls := 0
	err := e.Do(context.Background(), "flaky", cfg, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return platform.ErrOperationFailure
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEngineDoGivesUpAfterMaxAttempts(t *testing.T) {
	e := NewEngine(nil)
	cfg := &RetryConfiguration{
		StrategyType: StrategyFixed, MaxAttempts: 3,
		InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Jitter: JitterNone,
	}
	calls := 0
	err := e.Do(context.Background(), "always-fails", cfg, func(ctx context.Context) error {
		calls++
		return platform.ErrOperationFailure
	})
	assert.Error(t, err)
	assert.False(t, platform.IsTimeout(err))
	assert.Equal(t, 3, calls)
}

func TestEngineDoDoesNotRetryNonRetryableErrors(t *testing.T) {
	e := NewEngine(nil)
	cfg := OptimizedDefaults(KindQuick)
	calls := 0
	err := e.Do(context.Background(), "invalid", cfg, func(ctx context.Context) error {
		calls++
		return platform.ErrInvalidInput
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEngineDoRespectsContextCancellation(t *testing.T) {
	e := NewEngine(nil)
	cfg := &RetryConfiguration{
		StrategyType: StrategyFixed, MaxAttempts: 5,
		InitialDelay: time.Second, MaxDelay: time.Second, Jitter: JitterNone,
	}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := e.Do(ctx, "cancel-me", cfg, func(ctx context.Context) error {
		calls++
		return errors.New("keep failing")
	})
	assert.Error(t, err)
	assert.True(t, platform.IsCancelled(err))
}

func TestRecordOutcomeAccumulatesPerStrategyStats(t *testing.T) {
	e := NewEngine(nil)
	e.RecordOutcome(StrategyFixed, "op", true, 10*time.Millisecond, 1)
	e.RecordOutcome(StrategyFixed, "op", false, 20*time.Millisecond, 2)

	snap := e.Stats(StrategyFixed)
	assert.Equal(t, int64(2), snap.TotalAttempts)
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.001)
}

func TestNextDelayHonorsJitterNoneDeterministically(t *testing.T) {
	e := NewEngine(nil)
	cfg := &RetryConfiguration{
		StrategyType: StrategyFixed, InitialDelay: 250 * time.Millisecond,
		MaxDelay: time.Second, Jitter: JitterNone,
	}
	d1 := e.NextDelay("op", cfg, 1)
	d2 := e.NextDelay("op", cfg, 1)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 250*time.Millisecond, d1)
}
