package recovery

import (
	"context"
	"fmt"
	"time"
)

// AgentResetSignaler is implemented by whatever subsystem owns agent
// lifecycle. AgentStateResetAction delegates to it rather than
// embedding transport details, since the pack has no single agent
// runtime client shared across repos.
type AgentResetSignaler interface {
	ResetAgent(ctx context.Context, agentID string, preserveContext bool) error
}

// AgentStateResetAction signals an external agent subsystem to
// reinitialize, optionally preserving accumulated context.
type AgentStateResetAction struct {
	Signaler AgentResetSignaler
}

func (AgentStateResetAction) CanHandle(err error, opCtx map[string]interface{}) bool {
	agentID, ok := opCtx["agent_id"].(string)
	return ok && agentID != ""
}

func (AgentStateResetAction) EstimatedDuration() time.Duration { return 2 * time.Second }
func (AgentStateResetAction) RiskLevel() RiskLevel              { return RiskHigh }

func (a AgentStateResetAction) Execute(ctx context.Context, params map[string]interface{}, opCtx map[string]interface{}) (ActionResult, error) {
	agentID, _ := opCtx["agent_id"].(string)
	if agentID == "" {
		return ActionResult{Success: false, Message: "no agent_id in context"}, nil
	}
	if a.Signaler == nil {
		return ActionResult{Success: false, Message: "no agent reset signaler configured"}, fmt.Errorf("recovery: AgentStateResetAction has no signaler")
	}

	preserve, _ := params["preserve_context"].(bool)
	if err := a.Signaler.ResetAgent(ctx, agentID, preserve); err != nil {
		return ActionResult{Success: false, Message: err.Error()}, err
	}

	return ActionResult{
		Success:     true,
		Message:     fmt.Sprintf("reset agent %s", agentID),
		SideEffects: []string{fmt.Sprintf("agent %s reinitialized (preserve_context=%v)", agentID, preserve)},
	}, nil
}

var _ ActionHandler = AgentStateResetAction{}
