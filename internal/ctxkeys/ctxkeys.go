// Package ctxkeys defines typed context keys shared across the engine.
// This package is internal and should not be imported by external projects.
package ctxkeys

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	taskIDKey    contextKey = "task_id"
	agentNameKey contextKey = "agent_name"
	hopKey       contextKey = "hop"
)

// WithSessionID stores the session id in the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID returns the session id, if any.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTaskID stores the task id in the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskID returns the task id, if any.
func TaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAgentName stores the handling agent name in the context.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey, name)
}

// AgentName returns the handling agent name, if any.
func AgentName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(agentNameKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithHop stores the dispatch hop number in the context.
func WithHop(ctx context.Context, hop int) context.Context {
	return context.WithValue(ctx, hopKey, hop)
}

// Hop returns the dispatch hop number, if any.
func Hop(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(hopKey).(int)
	if !ok {
		return 0, false
	}
	return v, true
}
