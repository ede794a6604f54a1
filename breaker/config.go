// Package breaker implements the per-operation circuit breaker: a
// three-state machine (Closed/Open/HalfOpen) driven by a sliding-window
// of call outcomes, with volume/error-rate/slow-call trip conditions,
// bounded adaptive threshold tuning, and a lazily-populated per-name
// registry.
package breaker

import (
	"fmt"
	"time"

	"github.com/resilientkernel/kernel/platform"
)

// Config configures one CircuitBreaker.
type Config struct {
	Name string

	FailureThreshold          int
	VolumeThreshold           int
	ErrorRateThreshold        float64
	SlowCallDurationThreshold time.Duration
	SlowCallRateThreshold     float64

	SuccessThreshold      int // consecutive successes required to close from half-open
	HalfOpenMaxCalls      int
	OpenToHalfOpenTimeout time.Duration

	WindowSize  time.Duration
	BucketCount int

	// AdaptiveEnabled turns on bounded threshold tuning after each
	// window of at least AdaptiveMinSamples calls.
	AdaptiveEnabled      bool
	AdaptiveMinSamples   int
	AdaptiveMinErrorRate float64
	AdaptiveMaxErrorRate float64

	// AdaptiveMinLatencyRatio/AdaptiveMaxLatencyRatio bound the target
	// band for rolling mean latency expressed as a fraction of
	// SlowCallDurationThreshold: below the min ratio the threshold is
	// tightened, above the max ratio it's loosened, same ±25% envelope
	// as the error-rate threshold.
	AdaptiveMinLatencyRatio float64
	AdaptiveMaxLatencyRatio float64

	Logger platform.Logger
}

// DefaultConfig returns production-ready defaults for name.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                      name,
		FailureThreshold:          5,
		VolumeThreshold:           10,
		ErrorRateThreshold:        0.5,
		SlowCallDurationThreshold: 2 * time.Second,
		SlowCallRateThreshold:     0.5,
		SuccessThreshold:          3,
		HalfOpenMaxCalls:          5,
		OpenToHalfOpenTimeout:     30 * time.Second,
		WindowSize:                60 * time.Second,
		BucketCount:               10,
		AdaptiveEnabled:           false,
		AdaptiveMinSamples:        20,
		AdaptiveMinErrorRate:      0.1,
		AdaptiveMaxErrorRate:      0.9,
		AdaptiveMinLatencyRatio:   0.3,
		AdaptiveMaxLatencyRatio:   0.8,
		Logger:                    platform.NoOpLogger{},
	}
}

// Validate rejects configuration that would leave the state machine
// unable to make a trip decision.
func (c *Config) Validate() error {
	if c.Name == "" {
		return invalidInput("name is required")
	}
	if c.ErrorRateThreshold < 0 || c.ErrorRateThreshold > 1 {
		return invalidInput("error_rate_threshold must be within [0,1]")
	}
	if c.SlowCallRateThreshold < 0 || c.SlowCallRateThreshold > 1 {
		return invalidInput("slow_call_rate_threshold must be within [0,1]")
	}
	if c.VolumeThreshold < 0 {
		return invalidInput("volume_threshold must be non-negative")
	}
	if c.SuccessThreshold < 1 {
		return invalidInput("success_threshold must be >= 1")
	}
	if c.HalfOpenMaxCalls < 1 {
		return invalidInput("half_open_max_calls must be >= 1")
	}
	if c.BucketCount < 1 {
		return invalidInput("bucket_count must be >= 1")
	}
	if c.AdaptiveEnabled && c.AdaptiveMaxErrorRate <= c.AdaptiveMinErrorRate {
		return invalidInput("adaptive_max_error_rate must exceed adaptive_min_error_rate")
	}
	if c.AdaptiveEnabled && c.AdaptiveMaxLatencyRatio <= c.AdaptiveMinLatencyRatio {
		return invalidInput("adaptive_max_latency_ratio must exceed adaptive_min_latency_ratio")
	}
	return nil
}

func invalidInput(msg string) error {
	return platform.NewKernelError("breaker.Validate", "invalid_input", fmt.Errorf("%w: %s", platform.ErrInvalidInput, msg))
}
