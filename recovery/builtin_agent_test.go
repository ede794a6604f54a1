package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSignaler struct {
	calledAgent    string
	calledPreserve bool
	err            error
}

func (s *stubSignaler) ResetAgent(ctx context.Context, agentID string, preserveContext bool) error {
	s.calledAgent = agentID
	s.calledPreserve = preserveContext
	return s.err
}

func TestAgentStateResetCanHandleRequiresAgentID(t *testing.T) {
	a := AgentStateResetAction{}
	assert.False(t, a.CanHandle(nil, nil))
	assert.True(t, a.CanHandle(nil, map[string]interface{}{"agent_id": "a1"}))
}

func TestAgentStateResetInvokesSignalerWithPreserveFlag(t *testing.T) {
	sig := &stubSignaler{}
	a := AgentStateResetAction{Signaler: sig}
	result, err := a.Execute(context.Background(), map[string]interface{}{"preserve_context": true}, map[string]interface{}{"agent_id": "a1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "a1", sig.calledAgent)
	assert.True(t, sig.calledPreserve)
}

func TestAgentStateResetFailsWhenSignalerErrors(t *testing.T) {
	sig := &stubSignaler{err: errors.New("unreachable")}
	a := AgentStateResetAction{Signaler: sig}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"agent_id": "a1"})
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestAgentStateResetFailsWithoutSignaler(t *testing.T) {
	a := AgentStateResetAction{}
	_, err := a.Execute(context.Background(), nil, map[string]interface{}{"agent_id": "a1"})
	require.Error(t, err)
}
