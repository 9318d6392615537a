// Package runtime is the routing engine: it owns the agent registry, the
// dispatch queue, and the per-task session records.
//
// One dispatcher goroutine drains the queue. Each dequeued task is driven
// through its full handoff chain inside a single loop iteration, so along
// the main chain exactly one agent is active on a task at any moment.
// Every outcome, including cap violations and unknown targets, surfaces
// as a failed Response appended to the session, never as a panic or an
// error escaping the loop.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentmesh/agent"
	"github.com/BaSui01/agentmesh/internal/metrics"
	"github.com/BaSui01/agentmesh/internal/queue"
	"github.com/BaSui01/agentmesh/session"
	"github.com/BaSui01/agentmesh/types"
)

// runtimeName is the AgentName stamped on responses the runtime itself
// synthesizes (rejections, wait timeouts).
const runtimeName = "runtime"

// Config configures the runtime.
type Config struct {
	// MaxHandoffs caps how many handoffs a single task may go through.
	// A handoff arriving at the cap is rejected with a failed response.
	MaxHandoffs int `json:"max_handoffs" yaml:"max_handoffs"`

	// QueueSize bounds the dispatch queue.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// PollInterval is the WaitForCompletion polling interval.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// TaskTimeout bounds RunTask and is the default WaitForCompletion
	// timeout.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout"`

	// ProgressRate rate-limits forwarding to the external progress
	// callback, in updates per second. Zero forwards everything.
	// Session records always receive every update.
	ProgressRate float64 `json:"progress_rate" yaml:"progress_rate"`

	// ProgressBurst is the limiter burst (default 1 when rate limited).
	ProgressBurst int `json:"progress_burst" yaml:"progress_burst"`
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		MaxHandoffs:  10,
		QueueSize:    128,
		PollInterval: 50 * time.Millisecond,
		TaskTimeout:  5 * time.Minute,
	}
}

// ProgressFunc is the external progress callback registered via OnProgress.
type ProgressFunc func(update *types.ProgressUpdate)

// progressCapable is implemented by agents that accept a progress sink.
type progressCapable interface {
	AttachProgressSink(agent.ProgressSink)
}

// dispatchItem pairs a task with its target agent on the queue.
type dispatchItem struct {
	task   *types.Task
	target string
}

// Runtime routes tasks through registered agents.
type Runtime struct {
	config Config
	logger *zap.Logger

	agentsMu sync.RWMutex
	agents   map[string]agent.Agent

	sessions  session.Store
	ownsStore bool

	queue *queue.Queue[dispatchItem]

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	running     atomic.Bool
	stopped     atomic.Bool

	progressMu      sync.RWMutex
	progressFn      ProgressFunc
	progressLimiter *rate.Limiter

	metrics *metrics.Collector

	tasksPublished  atomic.Int64
	tasksDispatched atomic.Int64
	handoffsTotal   atomic.Int64
	errorsTotal     atomic.Int64
	sessionsActive  atomic.Int64
	sessionsEnded   atomic.Int64
}

// New creates a runtime. A nil store gets an in-memory session store the
// runtime owns (and closes on Stop); a nil logger gets a no-op logger.
func New(cfg Config, store session.Store, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxHandoffs <= 0 {
		cfg.MaxHandoffs = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}

	ownsStore := false
	if store == nil {
		store = session.NewMemoryStore(session.DefaultStoreConfig())
		ownsStore = true
	}

	var limiter *rate.Limiter
	if cfg.ProgressRate > 0 {
		burst := cfg.ProgressBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProgressRate), burst)
	}

	return &Runtime{
		config:          cfg,
		logger:          logger.With(zap.String("component", "runtime")),
		agents:          make(map[string]agent.Agent),
		sessions:        store,
		ownsStore:       ownsStore,
		queue:           queue.New[dispatchItem](cfg.QueueSize),
		progressLimiter: limiter,
	}
}

// SetMetrics attaches a metrics collector. Must be called before Start.
func (r *Runtime) SetMetrics(collector *metrics.Collector) {
	r.metrics = collector
}

// RegisterAgent stores the agent under its name and starts it. Agents
// that accept a progress sink are wired to the runtime's sink.
func (r *Runtime) RegisterAgent(ctx context.Context, a agent.Agent) error {
	if a == nil {
		return fmt.Errorf("register: agent is nil")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("register: agent name is empty")
	}

	r.agentsMu.Lock()
	if _, exists := r.agents[name]; exists {
		r.agentsMu.Unlock()
		return fmt.Errorf("register: agent %q already registered", name)
	}
	r.agents[name] = a
	r.agentsMu.Unlock()

	if pc, ok := a.(progressCapable); ok {
		pc.AttachProgressSink(r)
	}

	if err := a.Start(ctx); err != nil {
		r.agentsMu.Lock()
		delete(r.agents, name)
		r.agentsMu.Unlock()
		return fmt.Errorf("start agent %s: %w", name, err)
	}

	r.logger.Info("agent registered", zap.String("agent", name))
	return nil
}

// GetAgent returns the agent registered under name.
func (r *Runtime) GetAgent(name string) (agent.Agent, bool) {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// ListAgents returns the registered agent names, sorted.
func (r *Runtime) ListAgents() []string {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnProgress registers the external progress callback. Updates reach it
// synchronously from the reporting agent's goroutine, subject to the
// configured rate limit.
func (r *Runtime) OnProgress(fn ProgressFunc) {
	r.progressMu.Lock()
	r.progressFn = fn
	r.progressMu.Unlock()
}

// ReportProgress implements agent.ProgressSink: the update is appended to
// its session's record and forwarded to the external callback.
func (r *Runtime) ReportProgress(update *types.ProgressUpdate) {
	if update == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.RecordProgress(update.AgentName)
	}

	if update.SessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		r.withSession(ctx, update.SessionID, func(sess *session.Session) {
			sess.AddProgress(update)
		})
		cancel()
	}

	r.progressMu.RLock()
	fn := r.progressFn
	r.progressMu.RUnlock()
	if fn == nil {
		return
	}
	if r.progressLimiter != nil && !r.progressLimiter.Allow() {
		r.logger.Debug("progress update dropped",
			zap.String("agent", update.AgentName),
			zap.String("session_id", update.SessionID),
		)
		return
	}
	fn(update)
}

// Start launches the dispatcher goroutine. Registered agents are already
// running; Start only affects the dispatch loop.
func (r *Runtime) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running.Load() {
		return nil
	}
	if r.queue.Closed() {
		return types.NewError(types.ErrRuntimeStopped, "runtime has been stopped")
	}

	dctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.running.Store(true)

	go r.dispatchLoop(dctx, done)

	r.logger.Info("dispatcher started",
		zap.Int("max_handoffs", r.config.MaxHandoffs),
		zap.Int("queue_size", r.config.QueueSize),
	)
	return nil
}

// stopDispatcher cancels the dispatch loop and waits for it to exit.
// Queued items stay queued; a later Start resumes draining them.
func (r *Runtime) stopDispatcher(ctx context.Context) error {
	r.lifecycleMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.lifecycleMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears the runtime down: dispatcher cancelled, queue closed, every
// registered agent stopped, owned store closed. In-flight sessions are
// left incomplete rather than forcibly finalized. A stopped runtime does
// not restart.
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stopped.Swap(true) {
		return nil
	}

	var errs []error
	if err := r.stopDispatcher(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
	}
	r.queue.Close()

	r.agentsMu.RLock()
	agents := make([]agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agentsMu.RUnlock()

	g := &errgroup.Group{}
	for _, a := range agents {
		a := a
		g.Go(func() error {
			if err := a.Stop(ctx); err != nil {
				return fmt.Errorf("stop agent %s: %w", a.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if r.ownsStore {
		if err := r.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
	}

	r.logger.Info("runtime stopped", zap.Int("agents", len(agents)))
	return errors.Join(errs...)
}

// PublishTask creates or reuses the task's session, stamps the session id
// onto the task, and enqueues it for the given target agent. It returns
// the session id to wait on.
func (r *Runtime) PublishTask(ctx context.Context, task *types.Task, target string) (string, error) {
	if task == nil {
		return "", fmt.Errorf("publish: task is nil")
	}
	if target == "" {
		return "", fmt.Errorf("publish: target agent is required")
	}

	sess := r.sessionFor(ctx, task, target)
	task.SessionID = sess.ID

	if err := r.queue.Send(ctx, dispatchItem{task: task, target: target}); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return "", types.NewError(types.ErrRuntimeStopped, "dispatch queue is closed")
		}
		return "", err
	}

	r.tasksPublished.Add(1)
	if r.metrics != nil {
		r.metrics.RecordTaskPublished(target)
		r.metrics.SetQueueDepth(r.queue.Len())
	}
	r.logger.Debug("task published",
		zap.String("task_id", task.ID),
		zap.String("session_id", sess.ID),
		zap.String("target", target),
	)
	return sess.ID, nil
}

// sessionFor reuses the session already stamped on the task, or creates
// and persists a fresh one.
func (r *Runtime) sessionFor(ctx context.Context, task *types.Task, target string) *session.Session {
	if task.SessionID != "" {
		if sess, err := r.sessions.Get(ctx, task.SessionID); err == nil {
			return sess
		}
	}

	sess := session.New(task, target)
	r.saveSession(ctx, sess)
	r.sessionsActive.Add(1)
	if r.metrics != nil {
		r.metrics.SessionStarted()
	}
	return sess
}

// WaitForCompletion polls the session until its completed flag is set,
// returning the final response. Completion flips once, so calling this
// after completion keeps returning the same response. A zero timeout uses
// the configured task timeout.
func (r *Runtime) WaitForCompletion(ctx context.Context, sessionID string, timeout time.Duration) (*types.Response, error) {
	if timeout <= 0 {
		timeout = r.config.TaskTimeout
	}

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		sess, err := r.sessions.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, types.NewErrorf(types.ErrSessionNotFound, "session %s not found", sessionID)
			}
			return nil, err
		}
		if sess.Completed {
			return sess.FinalResponse, nil
		}

		select {
		case <-ticker.C:
		case <-timer.C:
			return nil, types.NewErrorf(types.ErrTaskIncomplete, "session %s not complete after %s", sessionID, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RunTask publishes the task to the entry agent, waits for the session to
// complete, and returns the final response. It never returns an error:
// publish and wait failures come back as failed responses. If the
// dispatcher was not running, RunTask starts it and stops it again before
// returning; registered agents stay started.
func (r *Runtime) RunTask(ctx context.Context, task *types.Task, entryAgent string) *types.Response {
	if !r.running.Load() {
		if err := r.Start(ctx); err != nil {
			return types.NewErrorResponse(runtimeName, err)
		}
		defer func() {
			if err := r.stopDispatcher(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("dispatcher stop failed", zap.Error(err))
			}
		}()
	}

	sessionID, err := r.PublishTask(ctx, task, entryAgent)
	if err != nil {
		return types.NewErrorResponse(runtimeName, err)
	}

	resp, err := r.WaitForCompletion(ctx, sessionID, r.config.TaskTimeout)
	if err != nil {
		return types.NewErrorResponse(runtimeName, err)
	}
	return resp
}

// Session returns a snapshot of the session record.
func (r *Runtime) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return r.sessions.Get(ctx, sessionID)
}

// Stats is the runtime's observable state.
type Stats struct {
	Running         bool        `json:"running"`
	Agents          int         `json:"agents"`
	TasksPublished  int64       `json:"tasks_published"`
	TasksDispatched int64       `json:"tasks_dispatched"`
	Handoffs        int64       `json:"handoffs"`
	Errors          int64       `json:"errors"`
	ActiveSessions  int64       `json:"active_sessions"`
	EndedSessions   int64       `json:"ended_sessions"`
	Queue           queue.Stats `json:"queue"`
}

// Stats returns a snapshot of the runtime counters.
func (r *Runtime) Stats() Stats {
	r.agentsMu.RLock()
	agents := len(r.agents)
	r.agentsMu.RUnlock()

	return Stats{
		Running:         r.running.Load(),
		Agents:          agents,
		TasksPublished:  r.tasksPublished.Load(),
		TasksDispatched: r.tasksDispatched.Load(),
		Handoffs:        r.handoffsTotal.Load(),
		Errors:          r.errorsTotal.Load(),
		ActiveSessions:  r.sessionsActive.Load(),
		EndedSessions:   r.sessionsEnded.Load(),
		Queue:           r.queue.Stats(),
	}
}

// withSession loads, mutates, and saves a session record.
func (r *Runtime) withSession(ctx context.Context, id string, fn func(*session.Session)) {
	sess, err := r.sessions.Get(ctx, id)
	if err != nil {
		r.logger.Warn("session load failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
		return
	}
	fn(sess)
	r.saveSession(ctx, sess)
}

// saveSession persists a session, logging instead of failing the chain.
func (r *Runtime) saveSession(ctx context.Context, sess *session.Session) {
	if err := r.sessions.Save(ctx, sess); err != nil {
		r.logger.Warn("session save failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}

// Ensure the runtime can serve as a progress sink
var _ agent.ProgressSink = (*Runtime)(nil)
