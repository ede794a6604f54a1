// Package recovery executes ordered, prerequisite-aware plans of
// side-effectful repair actions when a policy decides retrying alone
// is not enough.
package recovery

import (
	"context"
	"time"
)

// RiskLevel classifies how disruptive an action handler's Execute can be.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionResult is what a handler's Execute reports back.
type ActionResult struct {
	Success                 bool
	Message                 string
	Duration                time.Duration
	SideEffects             []string
	NextRecommendedActions  []string
}

// ActionHandler is a registered repair action. Handlers are a small,
// sealed set of variants dispatched by action_type; CanHandle decides
// applicability per call, since the same action_type may legitimately
// refuse to act on an error it cannot address.
type ActionHandler interface {
	CanHandle(err error, opCtx map[string]interface{}) bool
	EstimatedDuration() time.Duration
	RiskLevel() RiskLevel
	Execute(ctx context.Context, params map[string]interface{}, opCtx map[string]interface{}) (ActionResult, error)
}

// ActionDescriptor configures one step of a recovery plan.
type ActionDescriptor struct {
	ActionType              string                 `json:"action_type" yaml:"action_type"`
	Parameters              map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Priority                int                    `json:"priority,omitempty" yaml:"priority,omitempty"`
	TimeoutMs               int64                  `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	MaxRetries              int                    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	PrerequisiteActionTypes []string               `json:"prerequisite_action_types,omitempty" yaml:"prerequisite_action_types,omitempty"`
}

// StepOutcome is the Runner's per-step report.
type StepOutcome struct {
	ActionType string
	Result     ActionResult
	Err        error
	Skipped    bool
	SkipReason string
}
