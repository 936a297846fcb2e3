package metrics

import (
	"strconv"

	"github.com/devrev/edgecdn/internal/util/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edgecdn"

// Metrics holds all Prometheus metrics for a CDN node. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Transfer metrics
	PutRequestsTotal  *prometheus.CounterVec
	PutDuration       prometheus.Histogram
	PutBytes          prometheus.Histogram
	GetRequestsTotal  *prometheus.CounterVec
	GetBytes          prometheus.Histogram
	HeartbeatsTotal   prometheus.Counter
	ChunksTransferred *prometheus.CounterVec

	// Replication metrics
	ReplicationPushesTotal *prometheus.CounterVec
	ReplicationDuration    prometheus.Histogram

	// Cache metrics
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	CacheUpstreamFetches  *prometheus.CounterVec
	CacheUnavailableTotal prometheus.Counter
	CacheUpstreamDuration prometheus.Histogram

	// Routing metrics
	RoutingDecisionsTotal *prometheus.CounterVec

	// Liveness metrics
	BackendAlive       *prometheus.GaugeVec
	ProbeDuration      prometheus.Histogram
	ProbeFailuresTotal *prometheus.CounterVec

	// Gossip metrics
	GossipMembersTotal prometheus.Gauge
	GossipEventsTotal  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Worker pool metrics
	WorkerPoolActive   *prometheus.GaugeVec
	WorkerPoolQueued   *prometheus.GaugeVec
	WorkerPoolRejected *prometheus.GaugeVec
	WorkerPoolUsage    *prometheus.GaugeVec

	// System metrics
	DiskUsagePercent   prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer, nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	factory := promauto.With(reg)

	return &Metrics{
		PutRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "put_requests_total",
			Help:        "Total number of put requests by outcome",
			ConstLabels: labels,
		}, []string{"status"}),
		PutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "put_duration_seconds",
			Help:        "Histogram of put durations including replication",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		PutBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "put_bytes",
			Help:        "Histogram of uploaded file sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
		}),
		GetRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "get_requests_total",
			Help:        "Total number of get requests by result",
			ConstLabels: labels,
		}, []string{"result"}),
		GetBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "get_bytes",
			Help:        "Histogram of served file sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		HeartbeatsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "heartbeats_total",
			Help:        "Total number of heartbeats answered",
			ConstLabels: labels,
		}),
		ChunksTransferred: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "chunks_total",
			Help:        "Total number of chunks sent or received",
			ConstLabels: labels,
		}, []string{"direction"}),

		ReplicationPushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replication",
			Name:        "pushes_total",
			Help:        "Total number of replica pushes by replica and outcome",
			ConstLabels: labels,
		}, []string{"replica", "status"}),
		ReplicationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "replication",
			Name:        "push_duration_seconds",
			Help:        "Histogram of single replica push durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Total number of fresh cache hits",
			ConstLabels: labels,
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Total number of misses and expired entries",
			ConstLabels: labels,
		}),
		CacheUpstreamFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "upstream_fetches_total",
			Help:        "Total number of upstream fetches by source kind and outcome",
			ConstLabels: labels,
		}, []string{"source", "status"}),
		CacheUnavailableTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "upstream_unavailable_total",
			Help:        "Total number of misses no upstream could serve",
			ConstLabels: labels,
		}),
		CacheUpstreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "upstream_duration_seconds",
			Help:        "Histogram of miss resolution durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		RoutingDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "routing",
			Name:        "decisions_total",
			Help:        "Total number of routing decisions by requested area and outcome",
			ConstLabels: labels,
		}, []string{"area", "outcome"}),

		BackendAlive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "liveness",
			Name:        "backend_alive",
			Help:        "1 when the last probe of the address succeeded",
			ConstLabels: labels,
		}, []string{"address"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "liveness",
			Name:        "probe_duration_seconds",
			Help:        "Histogram of heartbeat probe durations",
			ConstLabels: labels,
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		ProbeFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "liveness",
			Name:        "probe_failures_total",
			Help:        "Total number of failed probes by address",
			ConstLabels: labels,
		}, []string{"address"}),

		GossipMembersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "gossip",
			Name:        "members_total",
			Help:        "Number of gossip cluster members",
			ConstLabels: labels,
		}),
		GossipEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "gossip",
			Name:        "events_total",
			Help:        "Total number of membership events by type",
			ConstLabels: labels,
		}, []string{"event"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Histogram of HTTP request durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),

		WorkerPoolActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "workerpool",
			Name:        "active_workers",
			Help:        "Number of busy workers",
			ConstLabels: labels,
		}, []string{"pool"}),
		WorkerPoolQueued: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "workerpool",
			Name:        "queued_tasks",
			Help:        "Number of queued tasks",
			ConstLabels: labels,
		}, []string{"pool"}),
		WorkerPoolRejected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "workerpool",
			Name:        "rejected_tasks",
			Help:        "Number of tasks rejected since start",
			ConstLabels: labels,
		}, []string{"pool"}),
		WorkerPoolUsage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "workerpool",
			Name:        "utilization_percent",
			Help:        "Busy workers or occupied queue slots as a percentage of capacity",
			ConstLabels: labels,
		}, []string{"pool", "resource"}),

		DiskUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage percentage of the data directory",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Available bytes on the data directory's filesystem",
			ConstLabels: labels,
		}),
	}
}

// RecordPut records an upload outcome
func (m *Metrics) RecordPut(status string, duration float64, bytes int64) {
	if m == nil {
		return
	}
	m.PutRequestsTotal.WithLabelValues(status).Inc()
	m.PutDuration.Observe(duration)
	if status == "ok" {
		m.PutBytes.Observe(float64(bytes))
	}
}

// RecordGet records a download result: "found" or "missing"
func (m *Metrics) RecordGet(result string, bytes int64) {
	if m == nil {
		return
	}
	m.GetRequestsTotal.WithLabelValues(result).Inc()
	if result == "found" {
		m.GetBytes.Observe(float64(bytes))
	}
}

// RecordHeartbeat records an answered heartbeat
func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.HeartbeatsTotal.Inc()
}

// RecordChunks records chunks moving "in" or "out"
func (m *Metrics) RecordChunks(direction string, n int) {
	if m == nil {
		return
	}
	m.ChunksTransferred.WithLabelValues(direction).Add(float64(n))
}

// RecordReplicationPush records one replica push
func (m *Metrics) RecordReplicationPush(replica string, status string, duration float64) {
	if m == nil {
		return
	}
	m.ReplicationPushesTotal.WithLabelValues(replica, status).Inc()
	m.ReplicationDuration.Observe(duration)
}

// RecordCacheHit records a fresh hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a miss or expired entry
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordUpstreamFetch records a fetch attempt against "origin" or "replica"
func (m *Metrics) RecordUpstreamFetch(source, status string) {
	if m == nil {
		return
	}
	m.CacheUpstreamFetches.WithLabelValues(source, status).Inc()
}

// RecordUpstreamResolved records how long a miss took to resolve
func (m *Metrics) RecordUpstreamResolved(duration float64, unavailable bool) {
	if m == nil {
		return
	}
	m.CacheUpstreamDuration.Observe(duration)
	if unavailable {
		m.CacheUnavailableTotal.Inc()
	}
}

// RecordRoutingDecision records a balancer decision: "live" or "fallback"
func (m *Metrics) RecordRoutingDecision(area int, outcome string) {
	if m == nil {
		return
	}
	m.RoutingDecisionsTotal.WithLabelValues(strconv.Itoa(area), outcome).Inc()
}

// RecordProbe records one heartbeat probe
func (m *Metrics) RecordProbe(address string, alive bool, duration float64) {
	if m == nil {
		return
	}
	m.ProbeDuration.Observe(duration)
	if alive {
		m.BackendAlive.WithLabelValues(address).Set(1)
		return
	}
	m.BackendAlive.WithLabelValues(address).Set(0)
	m.ProbeFailuresTotal.WithLabelValues(address).Inc()
}

// UpdateGossipStats records the member count
func (m *Metrics) UpdateGossipStats(members int) {
	if m == nil {
		return
	}
	m.GossipMembersTotal.Set(float64(members))
}

// RecordGossipEvent records a join, leave or update notification
func (m *Metrics) RecordGossipEvent(event string) {
	if m == nil {
		return
	}
	m.GossipEventsTotal.WithLabelValues(event).Inc()
}

// RecordHTTPRequest records a served HTTP request
func (m *Metrics) RecordHTTPRequest(method string, code int, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// UpdateWorkerPoolStats copies pool statistics into gauges
func (m *Metrics) UpdateWorkerPoolStats(stats workerpool.Stats) {
	if m == nil {
		return
	}
	m.WorkerPoolActive.WithLabelValues(stats.Name).Set(float64(stats.ActiveWorkers))
	m.WorkerPoolQueued.WithLabelValues(stats.Name).Set(float64(stats.QueuedTasks))
	m.WorkerPoolRejected.WithLabelValues(stats.Name).Set(float64(stats.RejectedTasks))
	m.WorkerPoolUsage.WithLabelValues(stats.Name, "workers").Set(stats.WorkerUtilization())
	m.WorkerPoolUsage.WithLabelValues(stats.Name, "queue").Set(stats.QueueUtilization())
}

// UpdateDiskStats records data directory usage
func (m *Metrics) UpdateDiskStats(usagePercent float64, availableBytes uint64) {
	if m == nil {
		return
	}
	m.DiskUsagePercent.Set(usagePercent)
	m.DiskAvailableBytes.Set(float64(availableBytes))
}
