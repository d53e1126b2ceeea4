package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxDBTransaction ContextKey = "ctx_db_transaction"
	CtxOperator      ContextKey = "ctx_operator"

	DefaultOperator = "system"
)

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

// GetOperator returns who triggered the current operation, defaulting to the
// system operator for scheduler callbacks
func GetOperator(ctx context.Context) string {
	if operator, ok := ctx.Value(CtxOperator).(string); ok && operator != "" {
		return operator
	}
	return DefaultOperator
}

// SetOperator sets the operator in the context
func SetOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, CtxOperator, operator)
}
