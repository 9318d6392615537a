package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentmesh/types"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusQueued indicates the session task is waiting for dispatch.
	StatusQueued Status = "queued"

	// StatusRunning indicates the session task is being handled.
	StatusRunning Status = "running"

	// StatusCompleted indicates the session finished with a successful response.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the session finished with a failed response.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Session accumulates everything that happened to one task: the response
// from every agent that handled it, progress updates, and the routing
// state the dispatcher maintains across handoffs.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// Task is the originating task.
	Task *types.Task `json:"task"`

	// Responses holds one entry per dispatch, in dispatch order.
	Responses []*types.Response `json:"responses"`

	// Progress holds progress updates reported while the session ran.
	Progress []*types.ProgressUpdate `json:"progress,omitempty"`

	// CurrentAgent is the agent currently (or last) handling the task.
	CurrentAgent string `json:"current_agent"`

	// HandoffCount is the number of handoffs performed so far.
	HandoffCount int `json:"handoff_count"`

	// Completed flips to true exactly once, when the session reaches a
	// terminal status. It never flips back.
	Completed bool `json:"completed"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// FinalResponse is the response that ended the session.
	FinalResponse *types.Response `json:"final_response,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is when the session reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a session for a task bound for the given agent. The task's
// SessionID is adopted when present, otherwise a fresh one is generated
// and written back to the task.
func New(task *types.Task, agentName string) *Session {
	id := ""
	if task != nil {
		id = task.SessionID
	}
	if id == "" {
		id = uuid.New().String()
		if task != nil {
			task.SessionID = id
		}
	}

	now := time.Now()
	return &Session{
		ID:           id,
		Task:         task,
		Responses:    make([]*types.Response, 0, 4),
		CurrentAgent: agentName,
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AddResponse appends a response to the session history.
func (s *Session) AddResponse(resp *types.Response) {
	if resp == nil {
		return
	}
	s.Responses = append(s.Responses, resp)
	s.UpdatedAt = time.Now()
}

// AddProgress appends a progress update to the session.
func (s *Session) AddProgress(update *types.ProgressUpdate) {
	if update == nil {
		return
	}
	s.Progress = append(s.Progress, update)
	s.UpdatedAt = time.Now()
}

// Finish marks the session terminal with the given final response. Once a
// session is completed further Finish calls are ignored, so the final
// response and status are stable no matter how often the dispatcher or a
// late handoff tries to settle the same session.
func (s *Session) Finish(resp *types.Response, status Status) {
	if s.Completed {
		return
	}
	now := time.Now()
	s.Completed = true
	s.Status = status
	s.FinalResponse = resp
	s.UpdatedAt = now
	s.CompletedAt = &now
}

// Clone returns a deep copy of the session. The task, responses and
// progress updates are copied so the caller can mutate the clone freely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	clone := *s
	if s.Task != nil {
		clone.Task = s.Task.Clone()
	}

	clone.Responses = make([]*types.Response, len(s.Responses))
	for i, resp := range s.Responses {
		if resp == nil {
			continue
		}
		r := *resp
		clone.Responses[i] = &r
	}

	if s.Progress != nil {
		clone.Progress = make([]*types.ProgressUpdate, len(s.Progress))
		for i, update := range s.Progress {
			if update == nil {
				continue
			}
			u := *update
			clone.Progress[i] = &u
		}
	}

	if s.FinalResponse != nil {
		r := *s.FinalResponse
		clone.FinalResponse = &r
	}

	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}

	return &clone
}
