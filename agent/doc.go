/*
Package agent defines the contract every routable participant implements and
the tool machinery agents use to delegate work.

# Overview

An Agent accepts a Task and always produces a Response: agent-specific logic
lives in a ProcessFunc, and BaseAgent wraps it so that returned
HandoffRequests become transfer responses, returned values become results,
and errors or panics become failed responses. Nothing an agent does can
crash the dispatch pipeline.

	┌─────────────────────────────────────────────┐
	│               Agent interface               │
	│   (Name, HandleTask, Start, Stop, Stats)    │
	├─────────────────────────────────────────────┤
	│                 BaseAgent                   │
	│  (process wrapping, counters, tool table,   │
	│   progress forwarding, lifecycle flag)      │
	├─────────────────────────────────────────────┤
	│           Tool / ToolRegistry               │
	│  (delegate tools → HandoffRequest,          │
	│   action tools → handler result)            │
	└─────────────────────────────────────────────┘

Tools come in two kinds. A delegate tool carries a fixed target agent name;
executing it stamps the task context and returns a HandoffRequest, never
doing domain work itself. An action tool wraps an arbitrary handler. The
ToolRegistry is a shared lookup table constructed explicitly and injected
where needed; the four canonical transfer tools give collaborators stable
routing points by name.
*/
package agent
