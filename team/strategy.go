package team

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/types"
)

// Strategy selects how member results are folded into one response.
type Strategy string

const (
	// StrategyFirstSuccess returns the first successful member response
	// in registration order.
	StrategyFirstSuccess Strategy = "first_success"

	// StrategyMajorityVote returns the result produced by the most members.
	StrategyMajorityVote Strategy = "majority_vote"

	// StrategyWeightedVote returns the result with the highest summed
	// member weight.
	StrategyWeightedVote Strategy = "weighted_vote"

	// StrategyConsensus succeeds only when every member agrees.
	StrategyConsensus Strategy = "consensus"

	// StrategyDebate re-runs disagreeing members with each other's
	// positions until they converge or rounds run out.
	StrategyDebate Strategy = "debate"

	// StrategyCustom delegates synthesis to Config.Reducer.
	StrategyCustom Strategy = "custom"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFirstSuccess, StrategyMajorityVote, StrategyWeightedVote,
		StrategyConsensus, StrategyDebate, StrategyCustom:
		return true
	default:
		return false
	}
}

// Reducer folds member results into a single response. Used with
// StrategyCustom.
type Reducer func(ctx context.Context, task *types.Task, results []*types.SubAgentResult) *types.Response

// voteGroup collects the members that produced the same result value.
type voteGroup struct {
	key        string
	result     any
	agents     []string
	count      int
	weight     float64
	firstIndex int
}

// voteKey renders a result value into a comparable bucket key.
func voteKey(result any) string {
	return fmt.Sprintf("%v", result)
}

// isVote reports whether a member result counts as a vote. Failed
// responses carry no position, and a handoff response carries a routing
// instruction instead of a result.
func isVote(r *types.SubAgentResult) bool {
	return r != nil && r.Response != nil && r.Response.Success && r.Response.Handoff == nil
}

// groupVotes buckets vote-eligible results by value, ordered by first
// appearance so ties resolve toward earlier members.
func groupVotes(results []*types.SubAgentResult) []*voteGroup {
	groups := make([]*voteGroup, 0, len(results))
	byKey := make(map[string]*voteGroup, len(results))

	for i, r := range results {
		if !isVote(r) {
			continue
		}
		key := voteKey(r.Response.Result)
		g, ok := byKey[key]
		if !ok {
			g = &voteGroup{key: key, result: r.Response.Result, firstIndex: i}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.agents = append(g.agents, r.AgentName)
		g.count++
		g.weight += r.Weight
	}

	return groups
}

// failedNames lists the members whose result was not a vote.
func failedNames(results []*types.SubAgentResult) []string {
	names := make([]string, 0)
	for _, r := range results {
		if !isVote(r) && r != nil {
			names = append(names, r.AgentName)
		}
	}
	return names
}

// memberErrors renders every member's failure so an all-failed response
// carries the underlying errors instead of swallowing them.
func memberErrors(results []*types.SubAgentResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Response == nil {
			continue
		}
		switch {
		case r.Response.Error != "":
			parts = append(parts, fmt.Sprintf("%s: %s", r.AgentName, r.Response.Error))
		case r.Response.Handoff != nil:
			parts = append(parts, fmt.Sprintf("%s: handed off to %s", r.AgentName, r.Response.NextAgent))
		}
	}
	return strings.Join(parts, "; ")
}

// allFailed builds the response for a synthesis where no member voted.
func (t *Team) allFailed(results []*types.SubAgentResult) *types.Response {
	return types.NewErrorResponse(t.config.Name,
		types.NewErrorf(types.ErrAllMembersFailed,
			"no member returned a successful result: %s", memberErrors(results)))
}

// reduce dispatches to the configured synthesis strategy.
func (t *Team) reduce(ctx context.Context, task *types.Task, results []*types.SubAgentResult) *types.Response {
	switch t.config.Strategy {
	case StrategyFirstSuccess:
		return t.reduceFirstSuccess(results)
	case StrategyMajorityVote:
		return t.reduceMajorityVote(results)
	case StrategyWeightedVote:
		return t.reduceWeightedVote(results)
	case StrategyConsensus:
		return t.reduceConsensus(results)
	case StrategyDebate:
		return t.reduceDebate(ctx, task, results)
	case StrategyCustom:
		return t.config.Reducer(ctx, task, results)
	default:
		return types.NewErrorResponse(t.config.Name,
			types.NewErrorf(types.ErrTeamMisconfigured, "unknown strategy %q", t.config.Strategy))
	}
}

// reduceFirstSuccess returns the first successful member response in
// registration order, no matter which member finished first in time.
func (t *Team) reduceFirstSuccess(results []*types.SubAgentResult) *types.Response {
	for _, r := range results {
		if isVote(r) {
			return r.Response
		}
	}
	return t.allFailed(results)
}

// reduceMajorityVote returns the result backed by the most members.
// Ties resolve toward the group whose member answered first.
func (t *Team) reduceMajorityVote(results []*types.SubAgentResult) *types.Response {
	groups := groupVotes(results)
	if len(groups) == 0 {
		return t.allFailed(results)
	}

	winner := groups[0]
	for _, g := range groups[1:] {
		if g.count > winner.count {
			winner = g
		}
	}

	t.logger.Debug("majority vote settled",
		zap.Int("votes", winner.count),
		zap.Int("groups", len(groups)),
	)
	return types.NewResponse(t.config.Name, winner.result)
}

// reduceWeightedVote returns the result with the highest summed weight.
// Ties resolve toward the group whose member answered first.
func (t *Team) reduceWeightedVote(results []*types.SubAgentResult) *types.Response {
	groups := groupVotes(results)
	if len(groups) == 0 {
		return t.allFailed(results)
	}

	winner := groups[0]
	for _, g := range groups[1:] {
		if g.weight > winner.weight {
			winner = g
		}
	}

	t.logger.Debug("weighted vote settled",
		zap.Float64("weight", winner.weight),
		zap.Int("groups", len(groups)),
	)
	return types.NewResponse(t.config.Name, winner.result)
}

// reduceConsensus succeeds only when every member returned the same
// successful result. The failure message names who broke consensus.
func (t *Team) reduceConsensus(results []*types.SubAgentResult) *types.Response {
	groups := groupVotes(results)
	failed := failedNames(results)

	if len(groups) == 0 {
		return t.allFailed(results)
	}

	if len(groups) == 1 && len(failed) == 0 {
		return types.NewResponse(t.config.Name, groups[0].result)
	}

	parts := make([]string, 0, len(groups)+1)
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s answered %v", strings.Join(g.agents, ","), g.result))
	}
	if len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("%s failed", strings.Join(failed, ",")))
	}

	return types.NewErrorResponse(t.config.Name,
		types.NewErrorf(types.ErrConsensusFailure, "members disagree: %s", strings.Join(parts, "; ")))
}

// reduceDebate checks the results for consensus and, while rounds
// remain, re-runs the members sequentially with everyone's prior
// positions stamped into the shared task context. When rounds run out
// without convergence the team falls back to a weighted vote and marks
// the outcome accordingly.
func (t *Team) reduceDebate(ctx context.Context, task *types.Task, results []*types.SubAgentResult) *types.Response {
	maxRounds := t.config.MaxDebateRounds

	for round := 1; ; round++ {
		if g := debateConsensus(results); g != nil {
			task.Set(types.ContextKeyDebateRounds, round)
			task.Set(types.ContextKeyConsensusReached, true)
			t.logger.Debug("debate converged", zap.Int("round", round))
			return types.NewResponse(t.config.Name, g.result)
		}

		if round >= maxRounds {
			break
		}

		extra := map[string]any{
			types.ContextKeyDebateRound:     round + 1,
			types.ContextKeyDebatePositions: debatePositions(results),
		}
		t.logger.Debug("debate round", zap.Int("round", round+1))
		results = t.runSequential(ctx, task, extra)
	}

	// Rounds exhausted: settle by weighted vote, flagged as non-consensus.
	task.Set(types.ContextKeyDebateRounds, maxRounds)
	task.Set(types.ContextKeyConsensusReached, false)

	voted := t.reduceWeightedVote(results)
	if !voted.Success {
		return types.NewErrorResponse(t.config.Name,
			types.NewErrorf(types.ErrDebateExhausted,
				"debate exhausted after %d rounds: %s", maxRounds, voted.Error))
	}

	t.logger.Debug("debate fell back to weighted vote", zap.Int("rounds", maxRounds))
	return voted
}

// debateConsensus returns the agreed group when every member returned
// the same successful result, nil otherwise.
func debateConsensus(results []*types.SubAgentResult) *voteGroup {
	groups := groupVotes(results)
	if len(groups) == 1 && len(failedNames(results)) == 0 {
		return groups[0]
	}
	return nil
}

// debatePositions renders the current member positions for injection
// into the next round's task context.
func debatePositions(results []*types.SubAgentResult) []map[string]any {
	positions := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if r == nil || r.Response == nil {
			continue
		}
		entry := map[string]any{
			"agent":   r.AgentName,
			"success": r.Response.Success,
		}
		if r.Response.Success {
			entry["position"] = r.Response.Result
		} else {
			entry["error"] = r.Response.Error
		}
		positions = append(positions, entry)
	}
	return positions
}
