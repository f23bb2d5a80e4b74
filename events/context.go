package events

import "context"

type ctxKey struct{}

// WithWorkflowID returns a context carrying the workflow id so components
// invoked deep in the call chain (backends, tools) can stamp the events they
// publish. The executor sets it once per workflow goroutine.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, workflowID)
}

// WorkflowIDFromContext extracts the workflow id set by WithWorkflowID.
func WorkflowIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}
