package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/types"
)

// ProcessFunc is the agent-specific logic HandleTask wraps. Returning a
// *types.HandoffRequest asks the runtime to transfer the task to another
// agent; any other value becomes the response result.
type ProcessFunc func(ctx context.Context, task *types.Task) (any, error)

// Config configures a BaseAgent.
type Config struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// BaseAgent is the reusable Agent implementation. It wraps a ProcessFunc
// with the uniform response conversion, keeps the per-agent tool table,
// forwards progress to an attached sink, and counts its observable side
// effects.
type BaseAgent struct {
	config  Config
	process ProcessFunc

	toolsMu sync.RWMutex
	tools   map[string]*Tool

	// sink is attached once at wiring time, before any task flows.
	sink ProgressSink

	running atomic.Bool
	logger  *zap.Logger

	tasksProcessed    atomic.Int64
	handoffsMade      atomic.Int64
	errorsEncountered atomic.Int64
}

// NewBaseAgent creates an agent around the given process function.
func NewBaseAgent(cfg Config, process ProcessFunc, logger *zap.Logger) *BaseAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseAgent{
		config:  cfg,
		process: process,
		tools:   make(map[string]*Tool),
		logger:  logger.With(zap.String("component", "agent"), zap.String("agent", cfg.Name)),
	}
}

// Name returns the agent's registered name.
func (a *BaseAgent) Name() string { return a.config.Name }

// Description returns the agent's human-readable description.
func (a *BaseAgent) Description() string { return a.config.Description }

// AttachProgressSink connects the agent to a progress sink, normally the
// runtime. Attach before the agent starts handling tasks.
func (a *BaseAgent) AttachProgressSink(sink ProgressSink) { a.sink = sink }

// HandleTask runs the agent's process function and converts whatever
// happens into a uniform response:
//
//   - a returned *types.HandoffRequest becomes a successful response with
//     NextAgent set,
//   - any other returned value becomes the response result,
//   - a returned error or a panic becomes a failed response.
//
// The error path never re-raises, so one misbehaving agent cannot crash
// the pipeline.
func (a *BaseAgent) HandleTask(ctx context.Context, task *types.Task) (resp *types.Response) {
	start := time.Now()
	a.tasksProcessed.Add(1)

	defer func() {
		if r := recover(); r != nil {
			a.errorsEncountered.Add(1)
			a.logger.Error("process panicked",
				zap.Any("panic", r),
				zap.String("task_id", task.ID),
			)
			perr := types.NewErrorf(types.ErrAgentPanic, "agent %s panicked: %v", a.config.Name, r).
				WithAgent(a.config.Name)
			task.AddHistory(a.config.Name, "panic", perr.Message)
			resp = types.NewErrorResponse(a.config.Name, perr)
			resp.Elapsed = time.Since(start)
		}
	}()

	if a.process == nil {
		a.errorsEncountered.Add(1)
		err := types.NewErrorf(types.ErrProcessFailed, "agent %s has no process function", a.config.Name).
			WithAgent(a.config.Name)
		task.AddHistory(a.config.Name, "process_failed", err.Message)
		resp = types.NewErrorResponse(a.config.Name, err)
		resp.Elapsed = time.Since(start)
		return resp
	}

	result, err := a.process(ctx, task)
	if err != nil {
		a.errorsEncountered.Add(1)
		a.logger.Warn("process failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		task.AddHistory(a.config.Name, "process_failed", err.Error())
		resp = types.NewErrorResponse(a.config.Name, err)
		resp.Elapsed = time.Since(start)
		return resp
	}

	if req, ok := result.(*types.HandoffRequest); ok {
		a.handoffsMade.Add(1)
		a.logger.Debug("handing off",
			zap.String("task_id", task.ID),
			zap.String("target", req.TargetAgent),
			zap.String("reason", req.Reason),
		)
		task.AddHistory(a.config.Name, "handoff", req.TargetAgent)
		resp = types.NewHandoffResponse(a.config.Name, req)
		resp.Elapsed = time.Since(start)
		return resp
	}

	task.AddHistory(a.config.Name, "process", result)
	resp = types.NewResponse(a.config.Name, result)
	resp.Elapsed = time.Since(start)
	return resp
}

// RegisterTool adds a tool to the agent's table. Registering a name twice
// replaces the earlier tool.
func (a *BaseAgent) RegisterTool(tool *Tool) error {
	if err := validateTool(tool); err != nil {
		return err
	}
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	if _, exists := a.tools[tool.Name]; exists {
		a.logger.Warn("tool replaced", zap.String("tool", tool.Name))
	}
	a.tools[tool.Name] = tool
	a.logger.Debug("tool registered",
		zap.String("tool", tool.Name),
		zap.String("kind", string(tool.Kind)),
	)
	return nil
}

// RegisterDelegateTool registers a transfer tool addressed to target. The
// tool's execution returns a HandoffRequest to that target regardless of
// the agent's own logic.
func (a *BaseAgent) RegisterDelegateTool(name, target, description string) error {
	return a.RegisterTool(NewDelegateTool(name, target, description))
}

// Tool looks up a registered tool by name.
func (a *BaseAgent) Tool(name string) (*Tool, bool) {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	tool, ok := a.tools[name]
	return tool, ok
}

// Tools returns the registered tools sorted by name.
func (a *BaseAgent) Tools() []*Tool {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	out := make([]*Tool, 0, len(a.tools))
	for _, tool := range a.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ExecuteTool looks up a tool and executes it against the task.
func (a *BaseAgent) ExecuteTool(ctx context.Context, name string, task *types.Task) (any, error) {
	tool, ok := a.Tool(name)
	if !ok {
		return nil, types.NewErrorf(types.ErrToolNotFound, "agent %s has no tool %q", a.config.Name, name).
			WithAgent(a.config.Name)
	}
	return tool.Execute(ctx, task)
}

// ReportProgress forwards a progress update to the attached sink. Without a
// sink it is a no-op.
func (a *BaseAgent) ReportProgress(task *types.Task, percent float64, action string, blockers ...string) {
	if a.sink == nil {
		return
	}
	a.sink.ReportProgress(&types.ProgressUpdate{
		AgentName:     a.config.Name,
		SessionID:     task.SessionID,
		Percent:       percent,
		CurrentAction: action,
		Blockers:      blockers,
		Timestamp:     time.Now(),
	})
}

// Start flips the running flag on. Calling Start on a running agent is a
// no-op.
func (a *BaseAgent) Start(ctx context.Context) error {
	if a.running.Swap(true) {
		return nil
	}
	a.logger.Info("agent started")
	return nil
}

// Stop flips the running flag off. Calling Stop on a stopped agent is a
// no-op.
func (a *BaseAgent) Stop(ctx context.Context) error {
	if !a.running.Swap(false) {
		return nil
	}
	a.logger.Info("agent stopped")
	return nil
}

// Running reports the lifecycle flag.
func (a *BaseAgent) Running() bool { return a.running.Load() }

// Stats returns the agent's counters.
func (a *BaseAgent) Stats() Stats {
	return Stats{
		TasksProcessed:    a.tasksProcessed.Load(),
		HandoffsMade:      a.handoffsMade.Load(),
		ErrorsEncountered: a.errorsEncountered.Load(),
		Running:           a.running.Load(),
	}
}

func validateTool(tool *Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	switch tool.Kind {
	case KindDelegate:
		if tool.Target == "" {
			return fmt.Errorf("delegate tool %s has no target", tool.Name)
		}
	case KindAction:
		if tool.Handler == nil {
			return fmt.Errorf("action tool %s has no handler", tool.Name)
		}
	default:
		return fmt.Errorf("tool %s has unknown kind %q", tool.Name, tool.Kind)
	}
	return nil
}

// Ensure BaseAgent implements Agent
var _ Agent = (*BaseAgent)(nil)
