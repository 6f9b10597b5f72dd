package service

import "context"

type contextKey string

const operatorKey contextKey = "operator"

// OperatorInfo identifies the admin user behind a manual sync request.
type OperatorInfo struct {
	UserID string
	Name   string
	Role   string
}

func WithOperator(ctx context.Context, op *OperatorInfo) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

func GetOperatorInfo(ctx context.Context) *OperatorInfo {
	val, ok := ctx.Value(operatorKey).(*OperatorInfo)
	if !ok {
		return nil
	}
	return val
}

// GetOperator returns the operator name, or "system" for background work
// (the sweep, webhook-driven enqueues).
func GetOperator(ctx context.Context) string {
	op := GetOperatorInfo(ctx)
	if op == nil {
		return "system"
	}
	return op.Name
}
