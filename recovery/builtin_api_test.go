package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIRateLimitCanHandleDetectsRateLimitMessages(t *testing.T) {
	a := APIRateLimitWaitAction{}
	assert.True(t, a.CanHandle(errors.New("rate limit exceeded, retry after 12"), nil))
	assert.False(t, a.CanHandle(errors.New("not found"), nil))
	assert.False(t, a.CanHandle(nil, nil))
}

func TestAPIRateLimitCanHandleUsesExplicitResetSeconds(t *testing.T) {
	a := APIRateLimitWaitAction{}
	assert.True(t, a.CanHandle(errors.New("boom"), map[string]interface{}{"rate_limit_reset_seconds": float64(5)}))
}

func TestAPIRateLimitDerivesWaitFromExplicitReset(t *testing.T) {
	a := APIRateLimitWaitAction{}
	wait := a.deriveWait(map[string]interface{}{"rate_limit_reset_seconds": float64(2)})
	assert.Equal(t, 2*time.Second, wait)
}

func TestAPIRateLimitDerivesWaitFromErrorMessageDigits(t *testing.T) {
	a := APIRateLimitWaitAction{}
	wait := a.deriveWait(map[string]interface{}{"error_message": "rate limit hit, retry in 7 seconds"})
	assert.Equal(t, 7*time.Second, wait)
}

func TestAPIRateLimitClampsToMaxWait(t *testing.T) {
	a := APIRateLimitWaitAction{}
	start := time.Now()
	result, err := a.Execute(context.Background(), map[string]interface{}{"max_wait_ms": float64(10)}, map[string]interface{}{"rate_limit_reset_seconds": float64(60)})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Less(t, elapsed, time.Second)
}

func TestAPIRateLimitRespectsCancellation(t *testing.T) {
	a := APIRateLimitWaitAction{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Execute(ctx, nil, map[string]interface{}{"rate_limit_reset_seconds": float64(5)})
	require.Error(t, err)
}
