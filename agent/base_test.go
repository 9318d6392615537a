package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/types"
)

// mockSink collects progress updates for assertions.
type mockSink struct {
	mu      sync.Mutex
	updates []*types.ProgressUpdate
}

func (m *mockSink) ReportProgress(update *types.ProgressUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update)
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func TestBaseAgent_HandleTask_Success(t *testing.T) {
	a := NewBaseAgent(Config{Name: "execution"}, func(_ context.Context, _ *types.Task) (any, error) {
		return map[string]any{"done": true}, nil
	}, zap.NewNop())

	task := types.NewTask("click the button")
	resp := a.HandleTask(context.Background(), task)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "execution", resp.AgentName)
	assert.Equal(t, map[string]any{"done": true}, resp.Result)
	assert.Empty(t, resp.NextAgent)

	require.Len(t, task.History, 1)
	assert.Equal(t, "execution", task.History[0].Agent)
	assert.Equal(t, "process", task.History[0].Action)

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.TasksProcessed)
	assert.Equal(t, int64(0), stats.HandoffsMade)
	assert.Equal(t, int64(0), stats.ErrorsEncountered)
}

func TestBaseAgent_HandleTask_Handoff(t *testing.T) {
	a := NewBaseAgent(Config{Name: "orchestrator"}, func(_ context.Context, task *types.Task) (any, error) {
		return types.NewHandoffRequest("vision", "need element location", task), nil
	}, zap.NewNop())

	task := types.NewTask("find the save icon")
	resp := a.HandleTask(context.Background(), task)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "vision", resp.NextAgent)
	require.NotNil(t, resp.Handoff)
	assert.Equal(t, "need element location", resp.Handoff.Reason)

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.TasksProcessed)
	assert.Equal(t, int64(1), stats.HandoffsMade)
}

func TestBaseAgent_HandleTask_Error(t *testing.T) {
	a := NewBaseAgent(Config{Name: "vision"}, func(_ context.Context, _ *types.Task) (any, error) {
		return nil, types.NewError(types.ErrAgentTimeout, "screen capture stalled")
	}, zap.NewNop())

	resp := a.HandleTask(context.Background(), types.NewTask("locate"))

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, types.ErrAgentTimeout, resp.ErrorCode)
	assert.Contains(t, resp.Error, "screen capture stalled")
	assert.Equal(t, int64(1), a.Stats().ErrorsEncountered)
}

func TestBaseAgent_HandleTask_PanicRecovered(t *testing.T) {
	a := NewBaseAgent(Config{Name: "flaky"}, func(_ context.Context, _ *types.Task) (any, error) {
		panic("index out of range")
	}, zap.NewNop())

	var resp *types.Response
	require.NotPanics(t, func() {
		resp = a.HandleTask(context.Background(), types.NewTask("goal"))
	})

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, types.ErrAgentPanic, resp.ErrorCode)
	assert.Contains(t, resp.Error, "index out of range")
	assert.Equal(t, int64(1), a.Stats().ErrorsEncountered)
}

func TestBaseAgent_HandleTask_NilProcess(t *testing.T) {
	a := NewBaseAgent(Config{Name: "empty"}, nil, zap.NewNop())

	resp := a.HandleTask(context.Background(), types.NewTask("goal"))

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, types.ErrProcessFailed, resp.ErrorCode)
}

func TestBaseAgent_RegisterDelegateTool(t *testing.T) {
	// The delegate tool's execution must produce a handoff to its target
	// even though the agent's own process never hands off.
	a := NewBaseAgent(Config{Name: "worker"}, func(_ context.Context, _ *types.Task) (any, error) {
		return "inline", nil
	}, zap.NewNop())

	require.NoError(t, a.RegisterDelegateTool("transfer_to_recovery", "recovery", "escalate"))

	task := types.NewTask("goal")
	out, err := a.ExecuteTool(context.Background(), "transfer_to_recovery", task)
	require.NoError(t, err)

	req, ok := out.(*types.HandoffRequest)
	require.True(t, ok, "delegate tool must return a handoff request")
	assert.Equal(t, "recovery", req.TargetAgent)
	assert.Equal(t, "transfer_to_recovery", task.GetString(types.ContextKeyToolUsed))
}

func TestBaseAgent_ExecuteTool_NotFound(t *testing.T) {
	a := NewBaseAgent(Config{Name: "worker"}, nil, zap.NewNop())

	_, err := a.ExecuteTool(context.Background(), "ghost", types.NewTask("goal"))
	assert.Error(t, err)
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
}

func TestBaseAgent_Tools_Sorted(t *testing.T) {
	a := NewBaseAgent(Config{Name: "worker"}, nil, zap.NewNop())
	require.NoError(t, a.RegisterDelegateTool("zeta", "z", ""))
	require.NoError(t, a.RegisterDelegateTool("alpha", "a", ""))

	tools := a.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "alpha", tools[0].Name)
	assert.Equal(t, "zeta", tools[1].Name)
}

func TestBaseAgent_ReportProgress(t *testing.T) {
	a := NewBaseAgent(Config{Name: "execution"}, nil, zap.NewNop())
	task := types.NewTask("type text")
	task.SessionID = "sess-1"

	// No sink attached: must be a no-op, not a panic.
	require.NotPanics(t, func() {
		a.ReportProgress(task, 10, "starting")
	})

	sink := &mockSink{}
	a.AttachProgressSink(sink)
	a.ReportProgress(task, 40, "typing", "keyboard focus lost")

	require.Equal(t, 1, sink.count())
	update := sink.updates[0]
	assert.Equal(t, "execution", update.AgentName)
	assert.Equal(t, "sess-1", update.SessionID)
	assert.Equal(t, 40.0, update.Percent)
	assert.Equal(t, "typing", update.CurrentAction)
	assert.Equal(t, []string{"keyboard focus lost"}, update.Blockers)
}

func TestBaseAgent_Lifecycle(t *testing.T) {
	a := NewBaseAgent(Config{Name: "worker"}, nil, zap.NewNop())
	ctx := context.Background()

	assert.False(t, a.Running())
	require.NoError(t, a.Start(ctx))
	assert.True(t, a.Running())
	require.NoError(t, a.Start(ctx)) // idempotent
	assert.True(t, a.Running())
	require.NoError(t, a.Stop(ctx))
	assert.False(t, a.Running())
	require.NoError(t, a.Stop(ctx)) // idempotent
}

func TestBaseAgent_RegisterTool_Invalid(t *testing.T) {
	a := NewBaseAgent(Config{Name: "worker"}, nil, zap.NewNop())

	assert.Error(t, a.RegisterTool(nil))
	assert.Error(t, a.RegisterTool(&Tool{Kind: KindAction}))
	assert.Error(t, a.RegisterTool(&Tool{Name: "t", Kind: KindDelegate}))
	assert.Error(t, a.RegisterTool(&Tool{Name: "t", Kind: KindAction}))
	assert.Error(t, a.RegisterTool(&Tool{Name: "t", Kind: ToolKind("weird")}))
}

func TestBaseAgent_HandleTask_ErrorsAreNotPropagated(t *testing.T) {
	boom := errors.New("boom")
	a := NewBaseAgent(Config{Name: "worker"}, func(_ context.Context, _ *types.Task) (any, error) {
		return nil, boom
	}, zap.NewNop())

	resp := a.HandleTask(context.Background(), types.NewTask("goal"))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "boom")
	// Plain errors carry no code; the message still travels.
	assert.Empty(t, resp.ErrorCode)
}
