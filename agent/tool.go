package agent

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentmesh/types"
)

// ToolKind distinguishes the two tool families. Dispatch is typed, not
// duck-typed: Execute switches on the kind.
type ToolKind string

const (
	// KindDelegate tools trigger a handoff to a fixed target agent.
	KindDelegate ToolKind = "delegate"
	// KindAction tools run inline logic through their handler.
	KindAction ToolKind = "action"
)

// ActionFunc is the handler an action tool wraps.
type ActionFunc func(ctx context.Context, task *types.Task) (any, error)

// Tool is a named handle an agent can invoke while processing a task.
type Tool struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Kind        ToolKind `json:"kind"`

	// Target and Priority apply to delegate tools only.
	Target   string                `json:"target,omitempty"`
	Priority types.HandoffPriority `json:"priority,omitempty"`

	// Handler applies to action tools only.
	Handler ActionFunc `json:"-"`
}

// NewDelegateTool creates a transfer tool addressed to target, with normal
// priority.
func NewDelegateTool(name, target, description string) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Kind:        KindDelegate,
		Target:      target,
		Priority:    types.PriorityNormal,
	}
}

// NewActionTool creates a tool wrapping an arbitrary handler.
func NewActionTool(name, description string, handler ActionFunc) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Kind:        KindAction,
		Handler:     handler,
	}
}

// WithPriority sets the priority a delegate tool stamps on its handoff
// requests.
func (t *Tool) WithPriority(priority types.HandoffPriority) *Tool {
	t.Priority = priority
	return t
}

// Execute dispatches on the tool kind.
//
// A delegate tool stamps the task context with the tool name and returns a
// *types.HandoffRequest addressed to its target; it never performs domain
// work itself. An action tool invokes its handler and returns whatever the
// handler returns.
func (t *Tool) Execute(ctx context.Context, task *types.Task) (any, error) {
	switch t.Kind {
	case KindDelegate:
		if t.Target == "" {
			return nil, fmt.Errorf("delegate tool %s has no target", t.Name)
		}
		task.Set(types.ContextKeyToolUsed, t.Name)
		req := types.NewHandoffRequest(t.Target, fmt.Sprintf("delegated via %s", t.Name), task)
		req.Priority = t.Priority
		return req, nil
	case KindAction:
		if t.Handler == nil {
			return nil, fmt.Errorf("action tool %s has no handler", t.Name)
		}
		return t.Handler(ctx, task)
	default:
		return nil, fmt.Errorf("tool %s has unknown kind %q", t.Name, t.Kind)
	}
}
