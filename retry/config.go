// Package retry implements the pluggable backoff engine: five strategies
// (fixed, linear, exponential, fibonacci, adaptive), four jitter
// families, per-operation-kind optimized defaults, and outcome
// recording for adaptive tuning.
package retry

import (
	"fmt"
	"time"

	"github.com/resilientkernel/kernel/platform"
)

// StrategyType selects a backoff strategy.
type StrategyType string

const (
	StrategyFixed       StrategyType = "fixed"
	StrategyLinear      StrategyType = "linear"
	StrategyExponential StrategyType = "exponential"
	StrategyFibonacci   StrategyType = "fibonacci"
	StrategyAdaptive    StrategyType = "adaptive"
	StrategyCustom      StrategyType = "custom"
)

// JitterType selects a jitter family applied after the base delay is
// computed.
type JitterType string

const (
	JitterNone         JitterType = "none"
	JitterFull         JitterType = "full"
	JitterEqual        JitterType = "equal"
	JitterDecorrelated JitterType = "decorrelated"
)

// RetryConfiguration fully describes one retry policy. It is the unit
// policies embed and operation-kind defaults produce.
type RetryConfiguration struct {
	StrategyType       StrategyType  `json:"strategy_type" yaml:"strategy_type"`
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay       time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay           time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffMultiplier  float64       `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	LinearIncrement    time.Duration `json:"linear_increment,omitempty" yaml:"linear_increment,omitempty"`
	Jitter             JitterType    `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	CustomStrategyName string        `json:"custom_strategy,omitempty" yaml:"custom_strategy,omitempty"`
}

// Validate rejects configurations that would make every downstream
// computation meaningless.
func (c *RetryConfiguration) Validate() error {
	if c.MaxAttempts < 1 {
		return invalidInput("max_attempts must be >= 1")
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return invalidInput("delays must be non-negative")
	}
	if c.MaxDelay < c.InitialDelay {
		return invalidInput("max_delay must be >= initial_delay")
	}
	if (c.StrategyType == StrategyExponential || c.StrategyType == StrategyAdaptive) && c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		return invalidInput("backoff_multiplier must be >= 1")
	}
	switch c.StrategyType {
	case StrategyFixed, StrategyLinear, StrategyExponential, StrategyFibonacci, StrategyAdaptive:
	case StrategyCustom:
		if _, ok := customStrategies[c.CustomStrategyName]; !ok {
			return invalidInput(fmt.Sprintf("custom strategy %q is not registered", c.CustomStrategyName))
		}
	default:
		return invalidInput(fmt.Sprintf("unknown strategy type %q", c.StrategyType))
	}
	return nil
}

func invalidInput(msg string) error {
	return platform.NewKernelError("retry.Validate", "invalid_input", fmt.Errorf("%w: %s", platform.ErrInvalidInput, msg))
}

// customStrategies holds user-registered delay functions for
// StrategyCustom, keyed by name.
var customStrategies = map[string]func(attempt int, cfg *RetryConfiguration) time.Duration{}

// RegisterCustomStrategy makes a named custom delay function available
// to RetryConfiguration.StrategyType == StrategyCustom.
func RegisterCustomStrategy(name string, fn func(attempt int, cfg *RetryConfiguration) time.Duration) {
	customStrategies[name] = fn
}

// OperationKind names a class of operation with its own optimized
// defaults; these are hints, not contracts, and callers may override
// any field.
type OperationKind string

const (
	KindNetwork  OperationKind = "network"
	KindGit      OperationKind = "git"
	KindAPI      OperationKind = "api"
	KindDatabase OperationKind = "database"
	KindQuick    OperationKind = "quick"
)

// OptimizedDefaults returns a full RetryConfiguration tuned for kind.
func OptimizedDefaults(kind OperationKind) *RetryConfiguration {
	switch kind {
	case KindNetwork:
		return &RetryConfiguration{
			StrategyType: StrategyExponential, MaxAttempts: 5,
			InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second,
			BackoffMultiplier: 2, Jitter: JitterFull,
		}
	case KindGit:
		return &RetryConfiguration{
			StrategyType: StrategyLinear, MaxAttempts: 3,
			InitialDelay: time.Second, MaxDelay: 10 * time.Second,
			LinearIncrement: 2 * time.Second, Jitter: JitterEqual,
		}
	case KindAPI:
		return &RetryConfiguration{
			StrategyType: StrategyExponential, MaxAttempts: 4,
			InitialDelay: 250 * time.Millisecond, MaxDelay: 20 * time.Second,
			BackoffMultiplier: 2, Jitter: JitterDecorrelated,
		}
	case KindDatabase:
		return &RetryConfiguration{
			StrategyType: StrategyFibonacci, MaxAttempts: 5,
			InitialDelay: 200 * time.Millisecond, MaxDelay: 15 * time.Second,
			Jitter: JitterEqual,
		}
	case KindQuick:
		return &RetryConfiguration{
			StrategyType: StrategyFixed, MaxAttempts: 2,
			InitialDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond,
			Jitter: JitterNone,
		}
	default:
		return &RetryConfiguration{
			StrategyType: StrategyExponential, MaxAttempts: 3,
			InitialDelay: time.Second, MaxDelay: 30 * time.Second,
			BackoffMultiplier: 2, Jitter: JitterFull,
		}
	}
}
