// Package ops defines the operation surface a Kernel protects: a
// Handle is the caller-supplied unit of work that gets invoked,
// retried, and optionally rolled back.
package ops

import (
	"context"
	"time"
)

// Result is what a Handle's Invoke reports back to the kernel.
type Result struct {
	Value        interface{}
	RollbackData interface{}
}

// Handle is one protectable unit of work. Rollback is best-effort and
// only called after a successful Invoke that a later step determined
// must be undone; an operation with no meaningful rollback returns nil.
type Handle interface {
	Invoke(ctx context.Context, params map[string]interface{}, deadline time.Time) (Result, error)
	Rollback(ctx context.Context, rollbackData interface{}, deadline time.Time) error
}

// FuncHandle adapts two plain functions into a Handle, the way
// http.HandlerFunc adapts a function into an http.Handler.
type FuncHandle struct {
	InvokeFunc   func(ctx context.Context, params map[string]interface{}, deadline time.Time) (Result, error)
	RollbackFunc func(ctx context.Context, rollbackData interface{}, deadline time.Time) error
}

func (h FuncHandle) Invoke(ctx context.Context, params map[string]interface{}, deadline time.Time) (Result, error) {
	return h.InvokeFunc(ctx, params, deadline)
}

func (h FuncHandle) Rollback(ctx context.Context, rollbackData interface{}, deadline time.Time) error {
	if h.RollbackFunc == nil {
		return nil
	}
	return h.RollbackFunc(ctx, rollbackData, deadline)
}

var _ Handle = FuncHandle{}
