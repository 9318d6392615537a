package agent

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/types"
)

// Canonical delegate tool names. Collaborators rely on these as stable
// routing points instead of hard-coding agent names.
const (
	ToolTransferToExecution    = "transfer_to_execution"
	ToolTransferToVision       = "transfer_to_vision"
	ToolTransferToRecovery     = "transfer_to_recovery"
	ToolTransferToOrchestrator = "transfer_to_orchestrator"
)

// Standard agent names the canonical tools route to.
const (
	AgentExecution    = "execution"
	AgentVision       = "vision"
	AgentRecovery     = "recovery"
	AgentOrchestrator = "orchestrator"
)

// ToolRegistry is a shared name→tool table. Construct one explicitly and
// inject it wherever tools are needed; there is no package-level instance.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *zap.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *zap.Logger) *ToolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolRegistry{
		tools:  make(map[string]*Tool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool, replacing any earlier tool with the same name.
func (r *ToolRegistry) Register(tool *Tool) error {
	if err := validateTool(tool); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		r.logger.Warn("tool replaced", zap.String("tool", tool.Name))
	}
	r.tools[tool.Name] = tool
	r.logger.Debug("tool registered",
		zap.String("tool", tool.Name),
		zap.String("kind", string(tool.Kind)),
	)
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *ToolRegistry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SeedCanonicalTools registers the four standard transfer tools so that
// concrete agents can discover them by name.
func (r *ToolRegistry) SeedCanonicalTools() {
	seeds := []*Tool{
		NewDelegateTool(ToolTransferToExecution, AgentExecution,
			"Transfer the task to the execution agent for mouse and keyboard actions"),
		NewDelegateTool(ToolTransferToVision, AgentVision,
			"Transfer the task to the vision agent for screen-element lookup"),
		NewDelegateTool(ToolTransferToRecovery, AgentRecovery,
			"Transfer the task to the recovery agent after repeated failures").
			WithPriority(types.PriorityHigh),
		NewDelegateTool(ToolTransferToOrchestrator, AgentOrchestrator,
			"Return control to the orchestrator for replanning"),
	}
	for _, tool := range seeds {
		if err := r.Register(tool); err != nil {
			r.logger.Error("canonical tool rejected", zap.String("tool", tool.Name), zap.Error(err))
		}
	}
}

// ApplyTo registers every tool in the registry on the given agent, giving
// it the shared tool surface in one call.
func (r *ToolRegistry) ApplyTo(a *BaseAgent) error {
	for _, tool := range r.List() {
		if err := a.RegisterTool(tool); err != nil {
			return err
		}
	}
	return nil
}
