package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("agentmesh", reg, zap.NewNop()), reg
}

func TestCollector_RecordDispatch(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDispatch("execution", StatusSuccess, 120*time.Millisecond)
	c.RecordDispatch("execution", StatusSuccess, 80*time.Millisecond)
	c.RecordDispatch("vision", StatusFailed, 10*time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.dispatchesTotal.WithLabelValues("execution", StatusSuccess)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.dispatchesTotal.WithLabelValues("vision", StatusFailed)))
}

func TestCollector_RecordHandoffOutcomes(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHandoff("orchestrator", "execution", HandoffAccepted)
	c.RecordHandoff("orchestrator", "execution", HandoffAccepted)
	c.RecordHandoff("execution", "ghost", HandoffRejectedUnknown)
	c.RecordHandoff("execution", "vision", HandoffRejectedLoop)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.handoffsTotal.WithLabelValues("orchestrator", "execution", HandoffAccepted)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.handoffsTotal.WithLabelValues("execution", "ghost", HandoffRejectedUnknown)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.handoffsTotal.WithLabelValues("execution", "vision", HandoffRejectedLoop)))
}

func TestCollector_SessionLifecycle(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SessionStarted()
	c.SessionStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.activeSessions))

	c.SessionEnded("completed")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.activeSessions))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.sessionsEnded.WithLabelValues("completed")))
}

func TestCollector_SynthesisAndDebate(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordSynthesis("reviewers", "majority_vote", StatusSuccess, 300*time.Millisecond)
	c.RecordDebateRounds("reviewers", 2)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.synthesisTotal.WithLabelValues("reviewers", "majority_vote", StatusSuccess)))
}

func TestCollector_NilRegistererAndLogger(t *testing.T) {
	// Unique namespace keeps the default registerer collision-free.
	require.NotPanics(t, func() {
		c := NewCollector("agentmesh_collector_test", nil, nil)
		c.RecordTaskPublished("execution")
		c.SetQueueDepth(3)
		c.RecordProgress("execution")
	})
}
