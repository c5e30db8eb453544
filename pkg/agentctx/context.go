// Package agentctx provides shared context key helpers for propagating run
// and agent identity across package boundaries. It is zero-dependency so
// agents, providers, and the engine can all import it without cycles.
package agentctx

import "context"

type (
	agentNameCtxKey struct{}
	runIDCtxKey     struct{}
	taskNameCtxKey  struct{}
)

// WithAgentName returns a new context carrying the given agent name.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameCtxKey{}, name)
}

// AgentNameFromContext extracts the agent name from the context.
// Returns "" if no agent name is present.
func AgentNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(agentNameCtxKey{}).(string)
	return v
}

// WithRunID returns a new context carrying the orchestration run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext extracts the run ID, or "" outside a run.
func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runIDCtxKey{}).(string)
	return v
}

// WithTaskName returns a new context carrying the current task name.
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskNameCtxKey{}, name)
}

// TaskNameFromContext extracts the task name, or "" outside a task.
func TaskNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(taskNameCtxKey{}).(string)
	return v
}
