package core

import "context"

type contextKey string

const ctxKeyOperator contextKey = "import_operator"

// ContextWithOperator attaches the operator name recorded as CreatedBy.
func ContextWithOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyOperator, name)
}

// OperatorFromContext returns the operator name, or "".
func OperatorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOperator).(string); ok {
		return v
	}
	return ""
}
