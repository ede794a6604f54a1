package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncHandleInvokeDelegatesToInvokeFunc(t *testing.T) {
	h := FuncHandle{
		InvokeFunc: func(ctx context.Context, params map[string]interface{}, deadline time.Time) (Result, error) {
			return Result{Value: params["x"]}, nil
		},
	}
	result, err := h.Invoke(context.Background(), map[string]interface{}{"x": 42}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 42, result.Value)
}

func TestFuncHandleRollbackIsNoOpWhenUnset(t *testing.T) {
	h := FuncHandle{InvokeFunc: func(ctx context.Context, params map[string]interface{}, deadline time.Time) (Result, error) {
		return Result{}, nil
	}}
	err := h.Rollback(context.Background(), nil, time.Now())
	assert.NoError(t, err)
}

func TestFuncHandleRollbackDelegatesWhenSet(t *testing.T) {
	var received interface{}
	h := FuncHandle{
		InvokeFunc: func(ctx context.Context, params map[string]interface{}, deadline time.Time) (Result, error) {
			return Result{}, nil
		},
		RollbackFunc: func(ctx context.Context, rollbackData interface{}, deadline time.Time) error {
			received = rollbackData
			return errors.New("rollback failed")
		},
	}
	err := h.Rollback(context.Background(), "undo-token", time.Now())
	require.Error(t, err)
	assert.Equal(t, "undo-token", received)
}
