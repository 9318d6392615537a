package agent

import (
	"context"

	"github.com/BaSui01/agentmesh/types"
)

// Agent is the capability every participant in the engine implements,
// whether a leaf agent or a composite. The runtime routes exclusively
// through this interface.
type Agent interface {
	// Name returns the unique name the agent is registered under.
	Name() string

	// HandleTask processes one task and always returns a response.
	// Failures are reported inside the response; HandleTask never panics
	// and has no error return, so the runtime can treat every agent
	// uniformly.
	HandleTask(ctx context.Context, task *types.Task) *types.Response

	// Start and Stop flip the running flag. They have no other side
	// effects; composite agents forward them to every member.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Stats exposes the agent's observable counters.
	Stats() Stats
}

// ProgressSink receives progress updates from agents. The runtime
// implements it to append updates to the owning session and forward them
// to an external callback.
type ProgressSink interface {
	ReportProgress(update *types.ProgressUpdate)
}

// Stats are the observable side effects of an agent's work. Every
// HandleTask call increments TasksProcessed; handoff outcomes additionally
// increment HandoffsMade, failures ErrorsEncountered.
type Stats struct {
	TasksProcessed    int64 `json:"tasks_processed"`
	HandoffsMade      int64 `json:"handoffs_made"`
	ErrorsEncountered int64 `json:"errors_encountered"`
	Running           bool  `json:"running"`
}
