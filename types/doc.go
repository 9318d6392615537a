// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
Package types provides the shared message contracts of the agentmesh engine.

types is the lowest-level package with no dependencies on other agentmesh
packages. Every record that travels between agents, the runtime, and the
team synthesis engine is defined here, together with the structured error
taxonomy used across the module.

Core records:

  - Task              — a unit of work moving through the agent graph
  - Response          — the outcome of one agent invocation
  - HandoffRequest    — an explicit transfer-of-control instruction
  - ProgressUpdate    — a percent-complete signal emitted mid-task
  - SubAgentResult    — one team member's contribution during synthesis
  - Error / ErrorCode — structured errors with code, cause, and retryable flag

Task.Context is an open key-value map shared along a handoff chain. The
documented Context* key constants name every key the engine itself reads or
writes; agents are free to add their own keys beside them.
*/
package types
