// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Handoff outcome labels.
const (
	HandoffAccepted        = "accepted"
	HandoffRejectedLoop    = "rejected_loop"
	HandoffRejectedUnknown = "rejected_unknown"
)

// Dispatch and synthesis status labels.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusHandoff = "handoff"
)

// Collector records engine metrics.
type Collector struct {
	// Dispatch metrics
	tasksPublished   *prometheus.CounterVec
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	handoffsTotal    *prometheus.CounterVec
	queueDepth       prometheus.Gauge

	// Session metrics
	activeSessions prometheus.Gauge
	sessionsEnded  *prometheus.CounterVec

	// Synthesis metrics
	synthesisTotal    *prometheus.CounterVec
	synthesisDuration *prometheus.HistogramVec
	debateRounds      *prometheus.HistogramVec

	// Progress metrics
	progressUpdates *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector. A nil registerer falls
// back to the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Dispatch metrics
	c.tasksPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_published_total",
			Help:      "Total number of tasks published to the runtime",
		},
		[]string{"agent"},
	)

	c.dispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of task dispatches",
		},
		[]string{"agent", "status"},
	)

	c.dispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Task dispatch duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of handoff requests by outcome",
		},
		[]string{"from", "to", "outcome"},
	)

	c.queueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of tasks waiting in the dispatch queue",
		},
	)

	// Session metrics
	c.activeSessions = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently in flight",
		},
	)

	c.sessionsEnded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions completed by final status",
		},
		[]string{"status"},
	)

	// Synthesis metrics
	c.synthesisTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Total number of team synthesis runs",
		},
		[]string{"team", "strategy", "status"},
	)

	c.synthesisDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Team synthesis duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"team", "strategy"},
	)

	c.debateRounds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "debate_rounds",
			Help:      "Rounds taken by debate synthesis before settling",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"team"},
	)

	// Progress metrics
	c.progressUpdates = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_updates_total",
			Help:      "Total number of progress updates received",
		},
		[]string{"agent"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordTaskPublished records a task entering the dispatch queue.
func (c *Collector) RecordTaskPublished(agent string) {
	c.tasksPublished.WithLabelValues(agent).Inc()
}

// RecordDispatch records one dispatch to an agent.
func (c *Collector) RecordDispatch(agent, status string, duration time.Duration) {
	c.dispatchesTotal.WithLabelValues(agent, status).Inc()
	c.dispatchDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordHandoff records a handoff request and its outcome.
func (c *Collector) RecordHandoff(from, to, outcome string) {
	c.handoffsTotal.WithLabelValues(from, to, outcome).Inc()
}

// SetQueueDepth records the current dispatch queue depth.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// SessionStarted records a session entering the runtime.
func (c *Collector) SessionStarted() {
	c.activeSessions.Inc()
}

// SessionEnded records a session leaving the runtime with its final status.
func (c *Collector) SessionEnded(status string) {
	c.activeSessions.Dec()
	c.sessionsEnded.WithLabelValues(status).Inc()
}

// RecordSynthesis records one team synthesis run.
func (c *Collector) RecordSynthesis(team, strategy, status string, duration time.Duration) {
	c.synthesisTotal.WithLabelValues(team, strategy, status).Inc()
	c.synthesisDuration.WithLabelValues(team, strategy).Observe(duration.Seconds())
}

// RecordDebateRounds records how many rounds a debate took.
func (c *Collector) RecordDebateRounds(team string, rounds int) {
	c.debateRounds.WithLabelValues(team).Observe(float64(rounds))
}

// RecordProgress records a progress update from an agent.
func (c *Collector) RecordProgress(agent string) {
	c.progressUpdates.WithLabelValues(agent).Inc()
}
