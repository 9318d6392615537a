package team

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/agent"
	"github.com/BaSui01/agentmesh/types"
)

// voteResult builds a successful member result for direct reducer tests.
func voteResult(name string, value any, weight float64) *types.SubAgentResult {
	return &types.SubAgentResult{
		AgentName: name,
		Response:  types.NewResponse(name, value),
		Weight:    weight,
	}
}

// failedResult builds a failed member result.
func failedResult(name string, weight float64) *types.SubAgentResult {
	return &types.SubAgentResult{
		AgentName: name,
		Response:  types.NewErrorResponse(name, types.NewError(types.ErrProcessFailed, "boom")),
		Weight:    weight,
	}
}

func TestStrategy_Valid(t *testing.T) {
	for _, s := range []Strategy{
		StrategyFirstSuccess, StrategyMajorityVote, StrategyWeightedVote,
		StrategyConsensus, StrategyDebate, StrategyCustom,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Strategy("quorum").Valid())
	assert.False(t, Strategy("").Valid())
}

func TestTeam_UnknownStrategy(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = "quorum"
	tm := New(cfg, zap.NewNop())
	require.NoError(t, tm.AddMember(member("alpha", answer("a")), 1.0))

	resp := tm.HandleTask(context.Background(), types.NewTask("goal"))

	assert.False(t, resp.Success)
	assert.Equal(t, types.ErrTeamMisconfigured, resp.ErrorCode)
	assert.Contains(t, resp.Error, "quorum")
}

func TestMajorityVote(t *testing.T) {
	tm := New(Config{Name: "panel", Strategy: StrategyMajorityVote}, zap.NewNop())

	resp := tm.reduceMajorityVote([]*types.SubAgentResult{
		voteResult("a", "x", 1),
		voteResult("b", "y", 1),
		voteResult("c", "x", 1),
	})

	require.True(t, resp.Success)
	assert.Equal(t, "x", resp.Result)
	assert.Equal(t, "panel", resp.AgentName)
}

func TestMajorityVote_TieGoesToEarlierMember(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceMajorityVote([]*types.SubAgentResult{
		voteResult("a", "x", 1),
		voteResult("b", "y", 1),
	})

	require.True(t, resp.Success)
	assert.Equal(t, "x", resp.Result)
}

func TestMajorityVote_FailuresDoNotCount(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceMajorityVote([]*types.SubAgentResult{
		failedResult("a", 1),
		failedResult("b", 1),
		voteResult("c", "z", 1),
	})

	require.True(t, resp.Success)
	assert.Equal(t, "z", resp.Result)
}

func TestMajorityVote_AllFailed(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceMajorityVote([]*types.SubAgentResult{
		failedResult("a", 1),
		failedResult("b", 1),
	})

	require.False(t, resp.Success)
	assert.Equal(t, types.ErrAllMembersFailed, resp.ErrorCode)
}

func TestVotes_HandoffIsNotAVote(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	task := types.NewTask("goal")
	handoff := &types.SubAgentResult{
		AgentName: "router",
		Response:  types.NewHandoffResponse("router", types.NewHandoffRequest("vision", "needs eyes", task)),
		Weight:    5,
	}

	resp := tm.reduceMajorityVote([]*types.SubAgentResult{
		handoff,
		voteResult("b", "z", 1),
	})
	require.True(t, resp.Success)
	assert.Equal(t, "z", resp.Result)

	// A team whose members only hand off has no position to synthesize.
	resp = tm.reduceMajorityVote([]*types.SubAgentResult{handoff})
	require.False(t, resp.Success)
	assert.Equal(t, types.ErrAllMembersFailed, resp.ErrorCode)
}

func TestWeightedVote(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceWeightedVote([]*types.SubAgentResult{
		voteResult("a", "x", 0.5),
		voteResult("b", "x", 0.5),
		voteResult("c", "y", 2.0),
	})

	require.True(t, resp.Success)
	assert.Equal(t, "y", resp.Result, "weight 2.0 beats combined 1.0")
}

func TestWeightedVote_TieGoesToEarlierMember(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceWeightedVote([]*types.SubAgentResult{
		voteResult("a", "x", 1.0),
		voteResult("b", "y", 1.0),
	})

	require.True(t, resp.Success)
	assert.Equal(t, "x", resp.Result)
}

func TestFirstSuccess_SkipsFailures(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceFirstSuccess([]*types.SubAgentResult{
		failedResult("a", 1),
		voteResult("b", "w", 1),
		voteResult("c", "v", 1),
	})

	require.True(t, resp.Success)
	assert.Equal(t, "w", resp.Result)
	assert.Equal(t, "b", resp.AgentName, "first success keeps the member's own response")
}

func TestFirstSuccess_AllFailed(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceFirstSuccess([]*types.SubAgentResult{
		{
			AgentName: "a",
			Response:  types.NewErrorResponse("a", types.NewError(types.ErrProcessFailed, "element not found")),
			Weight:    1,
		},
		{
			AgentName: "b",
			Response:  types.NewErrorResponse("b", types.NewError(types.ErrAgentTimeout, "screen capture stalled")),
			Weight:    1,
		},
	})

	require.False(t, resp.Success)
	assert.Equal(t, types.ErrAllMembersFailed, resp.ErrorCode)

	// The merged failure names every member's underlying error.
	assert.Contains(t, resp.Error, "a: ")
	assert.Contains(t, resp.Error, "element not found")
	assert.Contains(t, resp.Error, "b: ")
	assert.Contains(t, resp.Error, "screen capture stalled")
}

func TestConsensus_Agreement(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceConsensus([]*types.SubAgentResult{
		voteResult("a", 7, 1),
		voteResult("b", 7, 1),
		voteResult("c", 7, 1),
	})

	require.True(t, resp.Success)
	assert.Equal(t, 7, resp.Result)
	assert.Equal(t, "panel", resp.AgentName)
}

func TestConsensus_DisagreementNamesAgents(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceConsensus([]*types.SubAgentResult{
		voteResult("a", "x", 1),
		voteResult("b", "y", 1),
		voteResult("c", "x", 1),
		failedResult("d", 1),
	})

	require.False(t, resp.Success)
	assert.Equal(t, types.ErrConsensusFailure, resp.ErrorCode)
	assert.Contains(t, resp.Error, "a,c answered x")
	assert.Contains(t, resp.Error, "b answered y")
	assert.Contains(t, resp.Error, "d failed")
}

func TestConsensus_SingleFailureBlocksAgreement(t *testing.T) {
	tm := New(Config{Name: "panel"}, zap.NewNop())

	resp := tm.reduceConsensus([]*types.SubAgentResult{
		voteResult("a", "x", 1),
		voteResult("b", "x", 1),
		failedResult("c", 1),
	})

	require.False(t, resp.Success)
	assert.Equal(t, types.ErrConsensusFailure, resp.ErrorCode)
	assert.Contains(t, resp.Error, "c failed")
}

func TestDebate_ImmediateConsensus(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = StrategyDebate
	tm := New(cfg, zap.NewNop())
	require.NoError(t, tm.AddMember(member("a", answer("agree")), 1.0))
	require.NoError(t, tm.AddMember(member("b", answer("agree")), 1.0))

	task := types.NewTask("goal")
	resp := tm.HandleTask(context.Background(), task)

	require.True(t, resp.Success)
	assert.Equal(t, "agree", resp.Result)
	assert.Equal(t, 1, task.GetInt(types.ContextKeyDebateRounds))
	assert.True(t, task.GetBool(types.ContextKeyConsensusReached))
}

func TestDebate_ConvergesAtRoundTwo(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = StrategyDebate
	cfg.MaxDebateRounds = 3
	tm := New(cfg, zap.NewNop())

	// Every member copy carries the same injected positions, so any
	// member's view is representative.
	var mu sync.Mutex
	var positionsSeen any
	stubborn := func(initial any) agent.ProcessFunc {
		return func(_ context.Context, task *types.Task) (any, error) {
			if task.GetInt(types.ContextKeyDebateRound) >= 2 {
				v, _ := task.Get(types.ContextKeyDebatePositions)
				mu.Lock()
				positionsSeen = v
				mu.Unlock()
				return 42, nil
			}
			return initial, nil
		}
	}
	require.NoError(t, tm.AddMember(member("a", stubborn(1)), 1.0))
	require.NoError(t, tm.AddMember(member("b", stubborn(2)), 1.0))
	require.NoError(t, tm.AddMember(member("c", stubborn(1)), 1.0))

	task := types.NewTask("pick a number")
	resp := tm.HandleTask(context.Background(), task)

	require.True(t, resp.Success)
	assert.Equal(t, 42, resp.Result)
	assert.Equal(t, "panel", resp.AgentName)

	assert.Equal(t, 2, task.GetInt(types.ContextKeyDebateRounds))
	assert.True(t, task.GetBool(types.ContextKeyConsensusReached))

	// Round two saw everyone's round-one position.
	positions, ok := positionsSeen.([]map[string]any)
	require.True(t, ok)
	require.Len(t, positions, 3)
	for _, p := range positions {
		assert.Equal(t, true, p["success"])
		assert.Contains(t, p, "position")
	}
}

func TestDebate_ExhaustionFallsBackToWeightedVote(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = StrategyDebate
	cfg.MaxDebateRounds = 2
	tm := New(cfg, zap.NewNop())

	var aCalls, bCalls atomic.Int64
	require.NoError(t, tm.AddMember(member("a", func(_ context.Context, _ *types.Task) (any, error) {
		aCalls.Add(1)
		return "alpha", nil
	}), 1.0))
	require.NoError(t, tm.AddMember(member("b", func(_ context.Context, _ *types.Task) (any, error) {
		bCalls.Add(1)
		return "beta", nil
	}), 3.0))

	task := types.NewTask("goal")
	resp := tm.HandleTask(context.Background(), task)

	require.True(t, resp.Success)
	assert.Equal(t, "beta", resp.Result, "heavier member wins the fallback vote")

	assert.Equal(t, 2, task.GetInt(types.ContextKeyDebateRounds))
	assert.False(t, task.GetBool(types.ContextKeyConsensusReached))

	// Initial run plus one re-run.
	assert.Equal(t, int64(2), aCalls.Load())
	assert.Equal(t, int64(2), bCalls.Load())
}

func TestDebate_EqualWeightFallbackPrefersEarlierMember(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = StrategyDebate
	cfg.MaxDebateRounds = 1
	tm := New(cfg, zap.NewNop())
	require.NoError(t, tm.AddMember(member("a", answer("A")), 1.0))
	require.NoError(t, tm.AddMember(member("b", answer("B")), 1.0))

	task := types.NewTask("goal")
	resp := tm.HandleTask(context.Background(), task)

	require.True(t, resp.Success)
	assert.Equal(t, "A", resp.Result)
	assert.Equal(t, 1, task.GetInt(types.ContextKeyDebateRounds))
	assert.False(t, task.GetBool(types.ContextKeyConsensusReached))
}

func TestDebate_AllFailedExhausted(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = StrategyDebate
	cfg.MaxDebateRounds = 2
	tm := New(cfg, zap.NewNop())
	require.NoError(t, tm.AddMember(member("a", func(_ context.Context, _ *types.Task) (any, error) {
		return nil, types.NewError(types.ErrProcessFailed, "no answer")
	}), 1.0))
	require.NoError(t, tm.AddMember(member("b", func(_ context.Context, _ *types.Task) (any, error) {
		return nil, types.NewError(types.ErrProcessFailed, "still no answer")
	}), 1.0))

	task := types.NewTask("goal")
	resp := tm.HandleTask(context.Background(), task)

	require.False(t, resp.Success)
	assert.Equal(t, types.ErrDebateExhausted, resp.ErrorCode)
	assert.Contains(t, resp.Error, "debate exhausted after 2 rounds")
	assert.False(t, task.GetBool(types.ContextKeyConsensusReached))
}

func TestDebate_FailureBlocksConsensus(t *testing.T) {
	cfg := DefaultConfig("panel")
	cfg.Strategy = StrategyDebate
	cfg.MaxDebateRounds = 3
	tm := New(cfg, zap.NewNop())

	var bCalls atomic.Int64
	require.NoError(t, tm.AddMember(member("a", answer("same")), 1.0))
	require.NoError(t, tm.AddMember(member("b", func(_ context.Context, _ *types.Task) (any, error) {
		if bCalls.Add(1) == 1 {
			return nil, types.NewError(types.ErrProcessFailed, "first round hiccup")
		}
		return "same", nil
	}), 1.0))

	task := types.NewTask("goal")
	resp := tm.HandleTask(context.Background(), task)

	require.True(t, resp.Success)
	assert.Equal(t, "same", resp.Result)
	assert.Equal(t, 2, task.GetInt(types.ContextKeyDebateRounds),
		"a failed member blocks round-one consensus even when every answer matches")
	assert.True(t, task.GetBool(types.ContextKeyConsensusReached))
}

func TestDebate_PositionsCarryErrors(t *testing.T) {
	results := []*types.SubAgentResult{
		voteResult("a", "x", 1),
		failedResult("b", 1),
	}

	positions := debatePositions(results)

	require.Len(t, positions, 2)
	assert.Equal(t, "a", positions[0]["agent"])
	assert.Equal(t, "x", positions[0]["position"])
	assert.Equal(t, "b", positions[1]["agent"])
	assert.Equal(t, false, positions[1]["success"])
	assert.Contains(t, positions[1], "error")
}
