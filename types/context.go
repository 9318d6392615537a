package types

// Documented Task.Context keys. Every key the engine itself reads or writes
// is named here so cross-agent context stays greppable instead of
// stringly-typed. Agents may add their own keys beside these.
const (
	// ContextKeyToolUsed records the name of the last tool whose execution
	// produced a handoff. Stamped by delegate tools.
	ContextKeyToolUsed = "tool_used"

	// ContextKeyHandoffCount is the number of handoffs the task has been
	// through. Stamped by the runtime, which is the sole enforcer of the
	// handoff cap.
	ContextKeyHandoffCount = "handoff_count"

	// ContextKeyHandoffReason and ContextKeyHandoffSource describe the most
	// recent transfer: why it happened and which agent initiated it.
	ContextKeyHandoffReason = "handoff_reason"
	ContextKeyHandoffSource = "handoff_source"

	// ContextKeyPriorResults holds the results of earlier members that a
	// sequential team run injects before each subsequent member: a
	// []map[string]any with "agent", "success" and "result" entries.
	ContextKeyPriorResults = "prior_results"

	// Debate bookkeeping. ContextKeyDebateRound is the round about to run,
	// ContextKeyDebatePositions the per-member positions from the previous
	// round, ContextKeyDebateRounds the number of rounds actually used, and
	// ContextKeyConsensusReached whether the debate converged.
	ContextKeyDebateRound      = "debate_round"
	ContextKeyDebatePositions  = "debate_positions"
	ContextKeyDebateRounds     = "debate_rounds"
	ContextKeyConsensusReached = "consensus_reached"

	// ContextKeyTeamResult is where a team writes its synthesized outcome
	// back into the outer task.
	ContextKeyTeamResult = "team_result"
)
