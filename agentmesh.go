// Package agentmesh assembles the orchestration engine from one
// configuration tree: logger, session store, metrics, tracing, tool
// registry and runtime.
//
// Usage:
//
//	import "github.com/BaSui01/agentmesh"
//
//	engine, err := agentmesh.New(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close(context.Background())
//
//	engine.Register(ctx, visionAgent, actionAgent)
//	resp := engine.Run(ctx, "vision", "read the error dialog")
//
// Embedders that need finer control construct the packages directly;
// this package only wires them the default way.
package agentmesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/agent"
	"github.com/BaSui01/agentmesh/config"
	"github.com/BaSui01/agentmesh/internal/metrics"
	"github.com/BaSui01/agentmesh/internal/telemetry"
	"github.com/BaSui01/agentmesh/runtime"
	"github.com/BaSui01/agentmesh/session"
	"github.com/BaSui01/agentmesh/team"
	"github.com/BaSui01/agentmesh/types"
)

// Version is the library version.
const Version = "0.1.0"

// Option adjusts how New assembles the engine.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	store      session.Store
	registerer prometheus.Registerer
	progress   runtime.ProgressFunc
}

// WithLogger overrides the logger built from cfg.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore overrides the session store built from cfg.Session.
// The caller keeps ownership; Close will not close it.
func WithStore(store session.Store) Option {
	return func(o *options) { o.store = store }
}

// WithRegisterer sets the Prometheus registry for the metrics collector.
// Defaults to the global registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithProgress registers an external progress callback on the runtime.
func WithProgress(fn runtime.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// Engine is an assembled orchestration engine.
type Engine struct {
	Runtime *runtime.Runtime
	Tools   *agent.ToolRegistry
	Logger  *zap.Logger

	cfg       *config.Config
	store     session.Store
	ownsStore bool
	providers *telemetry.Providers
	collector *metrics.Collector
}

// New assembles an engine from cfg. A nil cfg uses defaults.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = config.NewLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	store := o.store
	ownsStore := false
	if store == nil {
		var err error
		store, err = session.NewStore(storeConfig(cfg.Session))
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		ownsStore = true
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		if ownsStore {
			err = errors.Join(err, store.Close())
		}
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, o.registerer, logger)
	}

	rt := runtime.New(runtimeConfig(cfg.Runtime), store, logger)
	if collector != nil {
		rt.SetMetrics(collector)
	}
	if o.progress != nil {
		rt.OnProgress(o.progress)
	}

	tools := agent.NewToolRegistry(logger)
	tools.SeedCanonicalTools()

	logger.Info("engine assembled",
		zap.String("version", Version),
		zap.String("session_store", cfg.Session.Store),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	return &Engine{
		Runtime:   rt,
		Tools:     tools,
		Logger:    logger,
		cfg:       cfg,
		store:     store,
		ownsStore: ownsStore,
		providers: providers,
		collector: collector,
	}, nil
}

// Register registers agents with the runtime, starting each one.
// Registration stops at the first failure.
func (e *Engine) Register(ctx context.Context, agents ...agent.Agent) error {
	for _, a := range agents {
		if err := e.Runtime.RegisterAgent(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one task end to end: publish to entryAgent, follow the
// handoff chain, return the final response.
func (e *Engine) Run(ctx context.Context, entryAgent, goal string) *types.Response {
	return e.Runtime.RunTask(ctx, types.NewTask(goal), entryAgent)
}

// NewTeam builds a team wired with the engine's logger and metrics.
// Mode, strategy, timeout and debate rounds default from the engine
// configuration. The team still has to be registered to receive tasks.
func (e *Engine) NewTeam(name string, members ...team.Member) (*team.Team, error) {
	t := team.New(e.teamConfig(name), e.Logger)
	if e.collector != nil {
		t.SetMetrics(e.collector)
	}
	for _, m := range members {
		if err := t.AddMember(m.Agent, m.Weight); err != nil {
			return nil, fmt.Errorf("team %s: %w", name, err)
		}
	}
	return t, nil
}

// Config returns the configuration the engine was assembled from.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close stops the runtime and flushes telemetry. The session store is
// closed only when the engine opened it.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.Runtime.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop runtime: %w", err))
	}
	if e.providers != nil {
		if err := e.providers.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	if e.ownsStore {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) teamConfig(name string) team.Config {
	cfg := team.DefaultConfig(name)
	tc := e.cfg.Team
	if tc.Mode != "" {
		cfg.Mode = team.Mode(tc.Mode)
	}
	if tc.Strategy != "" {
		cfg.Strategy = team.Strategy(tc.Strategy)
	}
	if tc.MemberTimeout > 0 {
		cfg.MemberTimeout = tc.MemberTimeout
	}
	if tc.MaxDebateRounds > 0 {
		cfg.MaxDebateRounds = tc.MaxDebateRounds
	}
	cfg.MaxConcurrency = tc.MaxConcurrency
	return cfg
}

func runtimeConfig(rc config.RuntimeConfig) runtime.Config {
	return runtime.Config{
		MaxHandoffs:   rc.MaxHandoffs,
		QueueSize:     rc.QueueSize,
		PollInterval:  rc.PollInterval,
		TaskTimeout:   rc.TaskTimeout,
		ProgressRate:  rc.ProgressRate,
		ProgressBurst: rc.ProgressBurst,
	}
}

func storeConfig(sc config.SessionConfig) session.StoreConfig {
	return session.StoreConfig{
		Type:    session.StoreType(sc.Store),
		BaseDir: sc.BaseDir,
		Redis: session.RedisConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			PoolSize:  sc.Redis.PoolSize,
			KeyPrefix: sc.Redis.KeyPrefix,
		},
		Cleanup: session.CleanupConfig{
			Enabled:   sc.Cleanup.Enabled,
			Interval:  sc.Cleanup.Interval,
			Retention: sc.Cleanup.Retention,
		},
	}
}
