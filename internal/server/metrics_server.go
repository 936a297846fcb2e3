package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/devrev/edgecdn/internal/health"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer serves Prometheus metrics and health endpoints via HTTP
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	health     *health.HealthChecker
	pools      []*workerpool.Pool
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port int
	// StatsInterval is how often worker pool gauges are refreshed
	StatsInterval time.Duration
}

// NewMetricsServer creates a new metrics server. Pools have their stats
// exported periodically.
func NewMetricsServer(cfg *MetricsServerConfig, gatherer prometheus.Gatherer, m *metrics.Metrics, checker *health.HealthChecker, logger *zap.Logger, pools ...*workerpool.Pool) *MetricsServer {
	mux := http.NewServeMux()

	interval := cfg.StatsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:  m,
		health:   checker,
		pools:    pools,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health/live", checker.LivenessHandler)
	mux.HandleFunc("/health/ready", checker.ReadinessHandler)

	return ms
}

// Handler returns the server's handler
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the metrics server
func (s *MetricsServer) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("Starting metrics server", zap.String("addr", lis.Addr().String()))

	go s.collectPoolStats()

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")
	s.stopOnce.Do(func() { close(s.stopChan) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

func (s *MetricsServer) collectPoolStats() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updatePoolStats()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MetricsServer) updatePoolStats() {
	for _, p := range s.pools {
		s.metrics.UpdateWorkerPoolStats(p.Stats())
	}
}
