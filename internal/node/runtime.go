// Package node assembles the pieces every CDN process shares: configuration,
// logging, metrics, health checks, the worker pool and an orderly shutdown.
package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devrev/edgecdn/internal/config"
	"github.com/devrev/edgecdn/internal/health"
	"github.com/devrev/edgecdn/internal/liveness"
	"github.com/devrev/edgecdn/internal/logging"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/server"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Component is a long-running server owned by a Runtime
type Component struct {
	Name  string
	Serve func() error
	Stop  func(ctx context.Context) error
}

// Runtime holds the process-wide dependencies of one node
type Runtime struct {
	Role     string
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Health   *health.HealthChecker
	Pool     *workerpool.Pool

	closers []func()
}

// Bootstrap loads configuration for role and builds the shared dependencies
func Bootstrap(role string) (*Runtime, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateFor(role); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", role, err)
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.With(zap.String("node_id", cfg.NodeID), zap.String("role", role))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt := &Runtime{
		Role:     role,
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.NewMetrics(reg, cfg.NodeID),
		Health: health.NewHealthChecker(&health.HealthCheckConfig{
			NodeID: cfg.NodeID,
			Role:   role,
		}, logger),
		Pool: workerpool.New(&workerpool.Config{
			Name:       role,
			MaxWorkers: cfg.MaxWorkers,
			QueueSize:  cfg.QueueSize,
			Logger:     logger,
		}),
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Port),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Int("chunk_size", cfg.ChunkSize))
	return rt, nil
}

// OnClose registers fn to run after all components have stopped. Closers run
// in reverse registration order.
func (rt *Runtime) OnClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// StartGossip joins the gossip cluster when enabled. requester may be nil for
// nodes that only announce themselves.
func (rt *Runtime) StartGossip(requester liveness.ProbeRequester) {
	cfg := rt.Config
	if !cfg.GossipEnabled {
		return
	}
	g, err := liveness.NewGossip(&liveness.GossipConfig{
		NodeID:         cfg.NodeID,
		BindPort:       cfg.GossipBindPort,
		Seeds:          cfg.Seeds(),
		ServiceAddress: cfg.ServiceAddress(rt.Role),
	}, requester, rt.Logger, rt.Metrics)
	if err != nil {
		rt.Logger.Error("Failed to initialize gossip", zap.Error(err))
		return
	}
	rt.Logger.Info("Gossip initialized", zap.Int("bind_port", g.LocalPort()))
	rt.OnClose(func() {
		if err := g.Shutdown(); err != nil {
			rt.Logger.Warn("Gossip shutdown failed", zap.Error(err))
		}
	})
}

// GRPC wraps a file server as a component. The listener is opened at once so
// bind errors surface before Run.
func (rt *Runtime) GRPC(srv *server.GRPCServer) (Component, error) {
	lis, err := net.Listen("tcp", rt.Config.ListenAddress())
	if err != nil {
		return Component{}, fmt.Errorf("failed to listen on %s: %w", rt.Config.ListenAddress(), err)
	}
	return Component{
		Name:  "grpc",
		Serve: func() error { return srv.Serve(lis) },
		Stop: func(ctx context.Context) error {
			srv.Stop()
			return nil
		},
	}, nil
}

// HTTP wraps a proxy or balancer server as a component
func (rt *Runtime) HTTP(srv *server.HTTPServer) (Component, error) {
	lis, err := net.Listen("tcp", rt.Config.ListenAddress())
	if err != nil {
		return Component{}, fmt.Errorf("failed to listen on %s: %w", rt.Config.ListenAddress(), err)
	}
	return Component{
		Name:  "http",
		Serve: func() error { return srv.Serve(lis) },
		Stop:  srv.Shutdown,
	}, nil
}

// HTTPConfig derives the HTTP server settings from the node configuration
func (rt *Runtime) HTTPConfig() *server.HTTPServerConfig {
	return &server.HTTPServerConfig{
		Addr:           rt.Config.ListenAddress(),
		RateLimitRPS:   rt.Config.RateLimitRPS,
		RateLimitBurst: rt.Config.RateLimitBurst,
	}
}

// Run starts the health checker, the metrics server and components, then
// blocks until SIGINT/SIGTERM or a component fails. Components are stopped in
// reverse order before closers run.
func (rt *Runtime) Run(components ...Component) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rt.Health.Start(ctx)

	var metricsServer *server.MetricsServer
	if rt.Config.MetricsPort > 0 {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{Port: rt.Config.MetricsPort},
			rt.Registry, rt.Metrics, rt.Health, rt.Logger, rt.Pool)
		if err := metricsServer.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range components {
		c := c
		g.Go(func() error {
			if err := c.Serve(); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			return nil
		})
	}

	rt.Logger.Info("Node started", zap.String("address", rt.Config.ServiceAddress(rt.Role)))

	g.Go(func() error {
		<-gctx.Done()
		rt.Logger.Info("Shutting down gracefully...")
		rt.Health.SetReadiness(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.Config.ShutdownTimeout)
		defer cancel()
		for i := len(components) - 1; i >= 0; i-- {
			if err := components[i].Stop(shutdownCtx); err != nil {
				rt.Logger.Error("Failed to stop component", zap.String("component", components[i].Name), zap.Error(err))
			}
		}
		return nil
	})

	err := g.Wait()

	if err := rt.Pool.Stop(5 * time.Second); err != nil {
		rt.Logger.Warn("Worker pool did not drain", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			rt.Logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}

	rt.Logger.Info("Node stopped")
	_ = rt.Logger.Sync()
	return err
}

// MonitorConfig derives the liveness monitor settings from the node configuration
func (rt *Runtime) MonitorConfig() *liveness.MonitorConfig {
	cfg := liveness.DefaultMonitorConfig()
	cfg.Interval = rt.Config.PollInterval
	cfg.ProbeTimeout = rt.Config.ProbeTimeout
	return cfg
}
