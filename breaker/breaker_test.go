package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, mutate func(*Config)) *CircuitBreaker {
	t.Helper()
	cfg := DefaultConfig("test-op")
	cfg.VolumeThreshold = 10
	cfg.ErrorRateThreshold = 0.4
	cfg.FailureThreshold = 0 // disable the legacy consecutive-failure path for rate tests
	cfg.OpenToHalfOpenTimeout = 20 * time.Millisecond
	cfg.HalfOpenMaxCalls = 2
	cfg.SuccessThreshold = 2
	if mutate != nil {
		mutate(cfg)
	}
	cb, err := New(cfg)
	require.NoError(t, err)
	return cb
}

func TestClosedStaysClosedBelowVolumeThreshold(t *testing.T) {
	cb := newTestBreaker(t, nil)
	for i := 0; i < 9; i++ {
		cb.Record(false, time.Millisecond, assertErr)
	}
	assert.Equal(t, "closed", cb.GetState())
}

func TestTripsByErrorRateOnceVolumeAndRateThresholdBothCross(t *testing.T) {
	cb := newTestBreaker(t, nil)
	// 6 failures, 4 successes interleaved: volume=10, error_rate=0.6 >= 0.4
	outcomes := []bool{false, true, false, true, false, true, false, true, false, false}
	for _, ok := range outcomes {
		if ok {
			cb.Record(true, time.Millisecond, nil)
		} else {
			cb.Record(false, time.Millisecond, assertErr)
		}
	}
	assert.Equal(t, "open", cb.GetState())
}

func TestNoAdmissionBeforeOpenToHalfOpenTimeoutElapses(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Force(Open, "test setup")
	cb.ClearForce()

	allow, reason := cb.Admit()
	assert.False(t, allow)
	assert.Equal(t, "open", reason)
}

func TestHalfOpenAllowsUpToCapThenDenies(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Force(Open, "test setup")
	cb.ClearForce()
	time.Sleep(25 * time.Millisecond)

	allow1, _ := cb.Admit()
	allow2, _ := cb.Admit()
	allow3, reason3 := cb.Admit()

	assert.True(t, allow1)
	assert.True(t, allow2)
	assert.False(t, allow3)
	assert.Equal(t, "half_open_probe_cap_reached", reason3)
}

func TestHalfOpenClosesAfterConsecutiveSuccesses(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Force(Open, "test setup")
	cb.ClearForce()
	time.Sleep(25 * time.Millisecond)

	allow, _ := cb.Admit()
	require.True(t, allow)
	cb.Record(true, time.Millisecond, nil)

	allow, _ = cb.Admit()
	require.True(t, allow)
	cb.Record(true, time.Millisecond, nil)

	assert.Equal(t, "closed", cb.GetState())
}

func TestHalfOpenReopensOnProbeFailure(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Force(Open, "test setup")
	cb.ClearForce()
	time.Sleep(25 * time.Millisecond)

	allow, _ := cb.Admit()
	require.True(t, allow)
	cb.Record(false, time.Millisecond, assertErr)

	assert.Equal(t, "open", cb.GetState())
}

func TestForceOpenDeniesRegardlessOfWindowState(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Force(Open, "manual override")
	allow, reason := cb.Admit()
	assert.False(t, allow)
	assert.Contains(t, reason, "forced_open")
}

func TestClearForceResumesNormalEvaluation(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Force(Open, "manual override")
	cb.ClearForce()
	cb.Reset()
	allow, reason := cb.Admit()
	assert.True(t, allow)
	assert.Equal(t, "closed", reason)
}

func TestResetClearsCountersAndHistory(t *testing.T) {
	cb := newTestBreaker(t, nil)
	for i := 0; i < 10; i++ {
		cb.Record(false, time.Millisecond, assertErr)
	}
	require.Equal(t, "open", cb.GetState())
	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
	m := cb.Metrics()
	assert.Equal(t, uint64(0), m["total_calls"])
}

func TestMetricsReportsStateAndRates(t *testing.T) {
	cb := newTestBreaker(t, nil)
	cb.Record(true, time.Millisecond, nil)
	cb.Record(false, time.Millisecond, assertErr)
	m := cb.Metrics()
	assert.Equal(t, "test-op", m["name"])
	assert.Equal(t, "closed", m["state"])
}

func TestAdaptiveThresholdStaysWithinBoundedBand(t *testing.T) {
	cb := newTestBreaker(t, func(c *Config) {
		c.AdaptiveEnabled = true
		c.AdaptiveMinSamples = 5
		c.AdaptiveMinErrorRate = 0.1
		c.AdaptiveMaxErrorRate = 0.2
		c.ErrorRateThreshold = 0.4
		c.VolumeThreshold = 1000 // avoid tripping during this test
	})
	base := cb.cfg.ErrorRateThreshold
	for i := 0; i < 30; i++ {
		cb.Record(true, time.Millisecond, nil)
	}
	assert.GreaterOrEqual(t, cb.cfg.ErrorRateThreshold, base*0.75)
	assert.LessOrEqual(t, cb.cfg.ErrorRateThreshold, base*1.25)
}

func TestAdaptiveSlowCallThresholdStaysWithinBoundedBand(t *testing.T) {
	cb := newTestBreaker(t, func(c *Config) {
		c.AdaptiveEnabled = true
		c.AdaptiveMinSamples = 5
		c.AdaptiveMinLatencyRatio = 0.3
		c.AdaptiveMaxLatencyRatio = 0.5
		c.SlowCallDurationThreshold = 100 * time.Millisecond
		c.VolumeThreshold = 1000 // avoid tripping during this test
	})
	base := cb.cfg.SlowCallDurationThreshold
	for i := 0; i < 30; i++ {
		// well above the max latency ratio band, threshold should grow
		cb.Record(true, 90*time.Millisecond, nil)
	}
	assert.GreaterOrEqual(t, cb.cfg.SlowCallDurationThreshold, time.Duration(float64(base)*0.75))
	assert.LessOrEqual(t, cb.cfg.SlowCallDurationThreshold, time.Duration(float64(base)*1.25))
	assert.Greater(t, cb.cfg.SlowCallDurationThreshold, base)
}

func TestConsecutiveFailureThresholdStaysGatedByVolume(t *testing.T) {
	cb := newTestBreaker(t, func(c *Config) {
		c.FailureThreshold = 3
		c.VolumeThreshold = 1000
	})
	cb.Record(false, time.Millisecond, assertErr)
	cb.Record(false, time.Millisecond, assertErr)
	cb.Record(false, time.Millisecond, assertErr)
	assert.Equal(t, "closed", cb.GetState())
}

func TestConsecutiveFailureThresholdTripsOnceVolumeIsMet(t *testing.T) {
	cb := newTestBreaker(t, func(c *Config) {
		c.FailureThreshold = 3
		c.VolumeThreshold = 3
	})
	cb.Record(false, time.Millisecond, assertErr)
	cb.Record(false, time.Millisecond, assertErr)
	assert.Equal(t, "closed", cb.GetState())
	cb.Record(false, time.Millisecond, assertErr)
	assert.Equal(t, "open", cb.GetState())
}

var assertErr = errTest{}

type errTest struct{}

func (errTest) Error() string { return "synthetic failure" }
