// Package policy implements the declarative policy engine: ordered
// condition matching over an error/operation context, selecting a
// retry configuration and recovery plan without duck-typed string
// inspection of error messages.
package policy

import (
	"time"

	"github.com/resilientkernel/kernel/retry"
)

const (
	retryDefaultInitialDelay = 500 * time.Millisecond
	retryDefaultMaxDelay     = 10 * time.Second
)

// Operator is one of the condition DSL's comparison kinds.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpMatches  Operator = "matches"
	OpLT       Operator = "lt"
	OpGT       Operator = "gt"
)

// Condition is one predicate within a policy's match expression.
type Condition struct {
	Field    string      `yaml:"field" json:"field"`
	Operator Operator    `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
	Negate   bool        `yaml:"negate,omitempty" json:"negate,omitempty"`
}

// RecoveryActionConfig describes one step of a recovery plan, matching
// the shape a recovery.Runner consumes.
type RecoveryActionConfig struct {
	ActionType              string                 `yaml:"action_type" json:"action_type"`
	Parameters              map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Priority                int                    `yaml:"priority,omitempty" json:"priority,omitempty"`
	TimeoutMs               int64                  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries              int                    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	PrerequisiteActionTypes []string               `yaml:"prerequisite_action_types,omitempty" json:"prerequisite_action_types,omitempty"`
}

// Policy is a declarative rule pairing conditions on an error/context
// with a retry configuration and a recovery plan.
type Policy struct {
	ID              string                       `yaml:"id" json:"id"`
	Name            string                       `yaml:"name" json:"name"`
	Enabled         bool                         `yaml:"enabled" json:"enabled"`
	Priority        int                          `yaml:"priority" json:"priority"`
	InheritFrom     string                       `yaml:"inherit_from,omitempty" json:"inherit_from,omitempty"`
	Conditions      []Condition                  `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	RetryStrategy   *retry.RetryConfiguration    `yaml:"retry_strategy,omitempty" json:"retry_strategy,omitempty"`
	RecoveryActions []RecoveryActionConfig       `yaml:"recovery_actions,omitempty" json:"recovery_actions,omitempty"`

	// resolved is set once Load/Add has flattened InheritFrom into
	// Conditions/RecoveryActions/RetryStrategy; Engine.Execute only ever
	// matches against the resolved view.
	resolved *Policy

	// order records insertion sequence, used to break priority ties
	// deterministically; never set by callers.
	order int
}

// Context is what a caller hands to Engine.Execute: the shape of the
// operation that just failed, against which conditions are evaluated.
type Context struct {
	OperationName string
	Error         error
	Attempt       int
	TotalAttempts int
	Metadata      map[string]interface{}
}

// Decision is the outcome of matching a Context against the policy set.
type Decision struct {
	ShouldRetry    bool
	DelayMs        int64
	PolicyApplied  string
	RetryStrategy  *retry.RetryConfiguration
	RecoveryPlan   []RecoveryActionConfig
}

// fieldValue extracts the named field from a Context for condition
// evaluation. "operation_name", "attempt" and "total_attempts" come
// from the Context's own fields, "error" resolves to the error's
// message, and anything else is looked up in Metadata.
func fieldValue(ctx Context, field string) (interface{}, bool) {
	switch field {
	case "operation_name":
		return ctx.OperationName, true
	case "attempt":
		return ctx.Attempt, true
	case "total_attempts":
		return ctx.TotalAttempts, true
	case "error":
		if ctx.Error == nil {
			return "", true
		}
		return ctx.Error.Error(), true
	default:
		v, ok := ctx.Metadata[field]
		return v, ok
	}
}

// DefaultPolicy is applied when no configured policy matches: a
// conservative exponential backoff with no recovery actions.
func DefaultPolicy() *Policy {
	return &Policy{
		ID:       "default",
		Name:     "built-in default",
		Enabled:  true,
		Priority: -1,
		RetryStrategy: &retry.RetryConfiguration{
			StrategyType:      retry.StrategyExponential,
			MaxAttempts:       3,
			InitialDelay:      retryDefaultInitialDelay,
			MaxDelay:          retryDefaultMaxDelay,
			BackoffMultiplier: 2,
			Jitter:            retry.JitterFull,
		},
	}
}
