package metrics

import (
	"testing"

	"github.com/devrev/edgecdn/internal/util/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPut("ok", 0.1, 10)
		m.RecordCacheHit()
		m.RecordProbe("localhost:1", false, 0.01)
		m.RecordRoutingDecision(0, "live")
		m.UpdateWorkerPoolStats(workerpool.Stats{Name: "grpc"})
	})
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "node-1")

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordProbe("localhost:50051", true, 0.002)
	m.RecordProbe("localhost:50052", false, 0.5)
	m.RecordRoutingDecision(1, "fallback")
	m.RecordReplicationPush("localhost:50052", "failed", 0.3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendAlive.WithLabelValues("localhost:50051")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BackendAlive.WithLabelValues("localhost:50052")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbeFailuresTotal.WithLabelValues("localhost:50052")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoutingDecisionsTotal.WithLabelValues("1", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplicationPushesTotal.WithLabelValues("localhost:50052", "failed")))
}

func TestWorkerPoolStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "node-1")
	m.UpdateWorkerPoolStats(workerpool.Stats{
		Name:          "grpc",
		MaxWorkers:    4,
		ActiveWorkers: 3,
		QueueSize:     8,
		QueuedTasks:   2,
		RejectedTasks: 5,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.WorkerPoolActive.WithLabelValues("grpc")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.WorkerPoolRejected.WithLabelValues("grpc")))
	assert.Equal(t, 75.0, testutil.ToFloat64(m.WorkerPoolUsage.WithLabelValues("grpc", "workers")))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.WorkerPoolUsage.WithLabelValues("grpc", "queue")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry(), "a")
		NewMetrics(prometheus.NewRegistry(), "b")
	})
}
