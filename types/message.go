package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HandoffPriority indicates how urgently a handoff should be processed.
type HandoffPriority string

const (
	PriorityLow      HandoffPriority = "low"
	PriorityNormal   HandoffPriority = "normal"
	PriorityHigh     HandoffPriority = "high"
	PriorityCritical HandoffPriority = "critical"
)

// HistoryEntry is one audit record in a Task's journey. Entries are only
// appended, never rewritten, so History is always a complete ordered trail
// of what every agent did to the task.
type HistoryEntry struct {
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Result    any       `json:"result,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a unit of work traveling through the agent graph.
type Task struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`

	// Goal is the natural-language objective the task pursues.
	Goal string `json:"goal"`

	// Context is an open key-value mapping shared along a handoff chain.
	// Sequential handoffs mutate it in place (single active writer);
	// parallel team members each work on a Clone.
	Context map[string]any `json:"context,omitempty"`

	// History is the ordered audit trail. Append via AddHistory only.
	History []HistoryEntry `json:"history,omitempty"`

	// SessionID links the task to its runtime session. Stamped by the
	// runtime on first publish.
	SessionID string `json:"session_id,omitempty"`

	// PendingActions and CompletedActions track coarse remaining/done work
	// items for agents that plan in steps.
	PendingActions   []string `json:"pending_actions,omitempty"`
	CompletedActions []string `json:"completed_actions,omitempty"`

	// CreatedAt is when the task was constructed.
	CreatedAt time.Time `json:"created_at"`
}

// NewTask creates a task with a fresh ID and an empty context.
func NewTask(goal string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Goal:      goal,
		Context:   make(map[string]any),
		CreatedAt: time.Now(),
	}
}

// AddHistory appends a timestamped entry to the task's audit trail. It is
// the only sanctioned way to record that an agent acted on this task.
func (t *Task) AddHistory(agent, action string, result any) {
	t.History = append(t.History, HistoryEntry{
		Agent:     agent,
		Action:    action,
		Result:    result,
		Timestamp: time.Now(),
	})
}

// Clone returns a copy safe to hand to a concurrently running agent: the
// context map and all slices are copied, so writes on the clone never reach
// the original. Context values themselves are shared.
func (t *Task) Clone() *Task {
	clone := &Task{
		ID:        t.ID,
		Goal:      t.Goal,
		SessionID: t.SessionID,
		CreatedAt: t.CreatedAt,
	}
	if t.Context != nil {
		clone.Context = make(map[string]any, len(t.Context))
		for k, v := range t.Context {
			clone.Context[k] = v
		}
	}
	if len(t.History) > 0 {
		clone.History = append([]HistoryEntry(nil), t.History...)
	}
	if len(t.PendingActions) > 0 {
		clone.PendingActions = append([]string(nil), t.PendingActions...)
	}
	if len(t.CompletedActions) > 0 {
		clone.CompletedActions = append([]string(nil), t.CompletedActions...)
	}
	return clone
}

// Set writes a context value, allocating the map on first use.
func (t *Task) Set(key string, value any) {
	if t.Context == nil {
		t.Context = make(map[string]any)
	}
	t.Context[key] = value
}

// Get reads a context value.
func (t *Task) Get(key string) (any, bool) {
	if t.Context == nil {
		return nil, false
	}
	v, ok := t.Context[key]
	return v, ok
}

// GetString reads a context value as a string, returning "" when the key is
// absent or holds a different type.
func (t *Task) GetString(key string) string {
	if v, ok := t.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetInt reads a context value as an int, returning 0 when the key is
// absent or holds a different type. Float values from JSON decoding are
// truncated.
func (t *Task) GetInt(key string) int {
	switch v, _ := t.Get(key); n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// GetBool reads a context value as a bool, returning false when the key is
// absent or holds a different type.
func (t *Task) GetBool(key string) bool {
	if v, ok := t.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Response is the outcome of one agent's handling of a Task. A response is
// created once per invocation and never modified afterwards.
type Response struct {
	Success   bool            `json:"success"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode ErrorCode       `json:"error_code,omitempty"`
	AgentName string          `json:"agent_name,omitempty"`
	NextAgent string          `json:"next_agent,omitempty"`
	Handoff   *HandoffRequest `json:"handoff,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewResponse creates a successful response carrying a result value.
func NewResponse(agent string, result any) *Response {
	return &Response{
		Success:   true,
		Result:    result,
		AgentName: agent,
		Timestamp: time.Now(),
	}
}

// NewHandoffResponse creates a successful response that asks the runtime to
// transfer the task to req.TargetAgent.
func NewHandoffResponse(agent string, req *HandoffRequest) *Response {
	return &Response{
		Success:   true,
		AgentName: agent,
		NextAgent: req.TargetAgent,
		Handoff:   req,
		Timestamp: time.Now(),
	}
}

// NewErrorResponse creates a failed response from an error. When err is a
// structured *Error its code is preserved in ErrorCode.
func NewErrorResponse(agent string, err error) *Response {
	resp := &Response{
		Success:   false,
		AgentName: agent,
		Timestamp: time.Now(),
	}
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorCode = GetErrorCode(err)
	}
	return resp
}

// HandoffRequest is an explicit transfer-of-control instruction. It is
// created by an agent that wants to delegate and consumed immediately by
// the runtime; it is never persisted.
type HandoffRequest struct {
	TargetAgent  string          `json:"target_agent"`
	Reason       string          `json:"reason,omitempty"`
	Task         *Task           `json:"task"`
	HandoffCount int             `json:"handoff_count"`
	MaxHandoffs  int             `json:"max_handoffs"`
	Priority     HandoffPriority `json:"priority"`
}

// NewHandoffRequest creates a handoff request with normal priority.
// MaxHandoffs zero means "use the runtime's configured cap".
func NewHandoffRequest(target, reason string, task *Task) *HandoffRequest {
	return &HandoffRequest{
		TargetAgent: target,
		Reason:      reason,
		Task:        task,
		Priority:    PriorityNormal,
	}
}

// Validate checks required fields.
func (r *HandoffRequest) Validate() error {
	if r.TargetAgent == "" {
		return fmt.Errorf("handoff request: target agent is required")
	}
	if r.Task == nil {
		return fmt.Errorf("handoff request: task is required")
	}
	return nil
}

// ProgressUpdate is a percent-complete signal emitted by an agent mid-task.
type ProgressUpdate struct {
	AgentName     string    `json:"agent_name"`
	SessionID     string    `json:"session_id"`
	Percent       float64   `json:"percent"`
	CurrentAction string    `json:"current_action,omitempty"`
	Blockers      []string  `json:"blockers,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SubAgentResult is one team member's contribution during synthesis. It is
// produced per member per round and consumed by the reduction step.
type SubAgentResult struct {
	AgentName string        `json:"agent_name"`
	Response  *Response     `json:"response"`
	Weight    float64       `json:"weight"`
	Elapsed   time.Duration `json:"elapsed"`
}
