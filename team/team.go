// Package team runs one task against several agents at once and folds
// their answers into a single response.
//
// A Team is itself an Agent: it can be registered with the runtime,
// receive handoffs, and appear as a member inside another team. Members
// run in parallel or in sequence, each against its own copy of the task,
// and a synthesis strategy (first success, votes, consensus, debate, or
// a custom reducer) decides what the team answers.
package team

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentmesh/agent"
	"github.com/BaSui01/agentmesh/internal/metrics"
	"github.com/BaSui01/agentmesh/types"
)

// Mode determines how members execute.
type Mode string

const (
	// ModeParallel runs all members concurrently, each on its own task copy.
	ModeParallel Mode = "parallel"

	// ModeSequential runs members in registration order, feeding each one
	// the results of those before it.
	ModeSequential Mode = "sequential"
)

// Member is one agent in a team with its voting weight.
type Member struct {
	Agent  agent.Agent
	Weight float64
}

// Config configures a Team.
type Config struct {
	// Name identifies the team. It is the AgentName on synthesized responses.
	Name string `json:"name" yaml:"name"`

	// Mode is the execution mode (default: parallel).
	Mode Mode `json:"mode" yaml:"mode"`

	// Strategy is the synthesis strategy (default: first_success).
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// MemberTimeout bounds each member invocation (default: 30s).
	MemberTimeout time.Duration `json:"member_timeout" yaml:"member_timeout"`

	// MaxDebateRounds bounds the debate strategy (default: 3).
	MaxDebateRounds int `json:"max_debate_rounds" yaml:"max_debate_rounds"`

	// MaxConcurrency bounds parallel member execution. Zero means one
	// goroutine per member.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// Reducer is the synthesis function for StrategyCustom.
	Reducer Reducer `json:"-" yaml:"-"`
}

// DefaultConfig returns a team configuration with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		Mode:            ModeParallel,
		Strategy:        StrategyFirstSuccess,
		MemberTimeout:   30 * time.Second,
		MaxDebateRounds: 3,
	}
}

// Team fans a task out to its members and synthesizes their responses.
type Team struct {
	config  Config
	members []Member
	logger  *zap.Logger

	running atomic.Bool
	metrics *metrics.Collector

	tasksProcessed    atomic.Int64
	errorsEncountered atomic.Int64
}

// New creates a team. Members are added with AddMember.
func New(cfg Config, logger *zap.Logger) *Team {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "team"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeParallel
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyFirstSuccess
	}
	if cfg.MemberTimeout <= 0 {
		cfg.MemberTimeout = 30 * time.Second
	}
	if cfg.MaxDebateRounds < 1 {
		cfg.MaxDebateRounds = 3
	}

	return &Team{
		config: cfg,
		logger: logger.With(zap.String("component", "team"), zap.String("team", cfg.Name)),
	}
}

// SetMetrics attaches a metrics collector. Must be called before the
// team starts handling tasks.
func (t *Team) SetMetrics(collector *metrics.Collector) {
	t.metrics = collector
}

// AddMember adds an agent to the team. Weights at or below zero count
// as 1.0. Member names must be unique within the team.
func (t *Team) AddMember(a agent.Agent, weight float64) error {
	if a == nil {
		return types.NewError(types.ErrTeamMisconfigured, "member agent is nil")
	}
	for _, m := range t.members {
		if m.Agent.Name() == a.Name() {
			return types.NewErrorf(types.ErrTeamMisconfigured, "member %s already in team", a.Name())
		}
	}
	if weight <= 0 {
		weight = 1.0
	}

	t.members = append(t.members, Member{Agent: a, Weight: weight})
	t.logger.Debug("member added",
		zap.String("member", a.Name()),
		zap.Float64("weight", weight),
	)
	return nil
}

// Name implements agent.Agent.
func (t *Team) Name() string {
	return t.config.Name
}

// Members returns the member names in registration order.
func (t *Team) Members() []string {
	names := make([]string, len(t.members))
	for i, m := range t.members {
		names[i] = m.Agent.Name()
	}
	return names
}

// Start starts every member. Implements agent.Agent.
func (t *Team) Start(ctx context.Context) error {
	if !t.running.Swap(true) {
		var errs []error
		for _, m := range t.members {
			if err := m.Agent.Start(ctx); err != nil {
				errs = append(errs, fmt.Errorf("start member %s: %w", m.Agent.Name(), err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		t.logger.Info("team started", zap.Int("members", len(t.members)))
	}
	return nil
}

// Stop stops every member. Implements agent.Agent.
func (t *Team) Stop(ctx context.Context) error {
	if t.running.Swap(false) {
		var errs []error
		for _, m := range t.members {
			if err := m.Agent.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop member %s: %w", m.Agent.Name(), err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		t.logger.Info("team stopped")
	}
	return nil
}

// Stats implements agent.Agent.
func (t *Team) Stats() agent.Stats {
	return agent.Stats{
		TasksProcessed:    t.tasksProcessed.Load(),
		ErrorsEncountered: t.errorsEncountered.Load(),
		Running:           t.running.Load(),
	}
}

// HandleTask runs the task through all members and synthesizes one
// response. Like any agent, a team never returns an error or panics:
// misconfiguration and member failures come back as failed responses.
func (t *Team) HandleTask(ctx context.Context, task *types.Task) *types.Response {
	start := time.Now()
	t.tasksProcessed.Add(1)

	resp := t.synthesize(ctx, task)
	resp.Elapsed = time.Since(start)

	status := metrics.StatusSuccess
	if !resp.Success {
		status = metrics.StatusFailed
		t.errorsEncountered.Add(1)
	}
	if t.metrics != nil {
		t.metrics.RecordSynthesis(t.config.Name, string(t.config.Strategy), status, resp.Elapsed)
		if t.config.Strategy == StrategyDebate && task != nil {
			if rounds := task.GetInt(types.ContextKeyDebateRounds); rounds > 0 {
				t.metrics.RecordDebateRounds(t.config.Name, rounds)
			}
		}
	}

	if task != nil {
		task.Set(types.ContextKeyTeamResult, map[string]any{
			"team":     t.config.Name,
			"strategy": string(t.config.Strategy),
			"success":  resp.Success,
		})
		task.AddHistory(t.config.Name, "synthesize",
			fmt.Sprintf("strategy=%s success=%v", t.config.Strategy, resp.Success))
	}

	t.logger.Debug("synthesis finished",
		zap.String("strategy", string(t.config.Strategy)),
		zap.Bool("success", resp.Success),
		zap.Duration("elapsed", resp.Elapsed),
	)
	return resp
}

// synthesize validates the team, runs the members and reduces their results.
func (t *Team) synthesize(ctx context.Context, task *types.Task) *types.Response {
	if task == nil {
		return types.NewErrorResponse(t.config.Name,
			types.NewError(types.ErrTeamMisconfigured, "task is nil"))
	}
	if len(t.members) == 0 {
		return types.NewErrorResponse(t.config.Name,
			types.NewError(types.ErrTeamMisconfigured, "team has no members"))
	}
	if t.config.Strategy == StrategyCustom && t.config.Reducer == nil {
		return types.NewErrorResponse(t.config.Name,
			types.NewError(types.ErrTeamMisconfigured, "custom strategy without reducer"))
	}

	results := t.runMembers(ctx, task)
	return t.reduce(ctx, task, results)
}

// runMembers executes all members per the configured mode. The returned
// slice has one entry per member, in registration order, regardless of
// completion order.
func (t *Team) runMembers(ctx context.Context, task *types.Task) []*types.SubAgentResult {
	if t.config.Mode == ModeSequential {
		return t.runSequential(ctx, task, nil)
	}
	return t.runParallel(ctx, task, nil)
}

// runParallel fans members out with errgroup, each against its own task
// copy, writing each result into its member's slot so ordering is
// deterministic.
func (t *Team) runParallel(ctx context.Context, task *types.Task, extra map[string]any) []*types.SubAgentResult {
	results := make([]*types.SubAgentResult, len(t.members))

	g := &errgroup.Group{}
	if t.config.MaxConcurrency > 0 {
		g.SetLimit(t.config.MaxConcurrency)
	}

	for i, m := range t.members {
		i, m := i, m
		g.Go(func() error {
			taskCopy := task.Clone()
			applyExtra(taskCopy, extra)
			results[i] = t.runMember(ctx, m, taskCopy)
			return nil
		})
	}

	// Members never return errors through the group; every outcome lands
	// in the results slice.
	_ = g.Wait()

	return results
}

// runSequential runs members one at a time against the shared task,
// injecting the accumulating prior results before each subsequent
// member. Debate rounds run through here in every mode, with the round
// number and positions stamped up front. A member that outlives its
// timeout is abandoned; since the task is shared, a straggler must stop
// touching it once its context is cancelled.
func (t *Team) runSequential(ctx context.Context, task *types.Task, extra map[string]any) []*types.SubAgentResult {
	applyExtra(task, extra)

	results := make([]*types.SubAgentResult, 0, len(t.members))
	prior := make([]map[string]any, 0, len(t.members))

	for _, m := range t.members {
		if len(prior) > 0 {
			task.Set(types.ContextKeyPriorResults, append([]map[string]any(nil), prior...))
		}

		result := t.runMember(ctx, m, task)
		results = append(results, result)

		prior = append(prior, map[string]any{
			"agent":   result.AgentName,
			"success": result.Response.Success,
			"result":  result.Response.Result,
		})
	}

	return results
}

// runMember invokes one member with the per-member timeout. The member
// runs in its own goroutine; if it outlives the timeout the team moves
// on with a timeout response and the straggler's answer is dropped.
func (t *Team) runMember(ctx context.Context, m Member, task *types.Task) *types.SubAgentResult {
	start := time.Now()
	name := m.Agent.Name()

	memberCtx, cancel := context.WithTimeout(ctx, t.config.MemberTimeout)
	defer cancel()

	respCh := make(chan *types.Response, 1)
	go func() {
		respCh <- m.Agent.HandleTask(memberCtx, task)
	}()

	var resp *types.Response
	select {
	case resp = <-respCh:
		if resp == nil {
			resp = types.NewErrorResponse(name,
				types.NewError(types.ErrProcessFailed, "member returned nil response"))
		}
	case <-memberCtx.Done():
		if ctx.Err() != nil {
			resp = types.NewErrorResponse(name,
				types.NewError(types.ErrProcessFailed, "member aborted").WithCause(ctx.Err()))
		} else {
			t.logger.Warn("member timed out",
				zap.String("member", name),
				zap.Duration("timeout", t.config.MemberTimeout),
			)
			resp = types.NewErrorResponse(name,
				types.NewErrorf(types.ErrAgentTimeout, "member %s exceeded %s", name, t.config.MemberTimeout))
		}
	}

	return &types.SubAgentResult{
		AgentName: name,
		Response:  resp,
		Weight:    m.Weight,
		Elapsed:   time.Since(start),
	}
}

// applyExtra stamps extra context entries onto a task before members run.
func applyExtra(task *types.Task, extra map[string]any) {
	for k, v := range extra {
		task.Set(k, v)
	}
}

// Ensure Team implements agent.Agent
var _ agent.Agent = (*Team)(nil)
