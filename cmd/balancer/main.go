package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/devrev/edgecdn/internal/config"
	"github.com/devrev/edgecdn/internal/health"
	"github.com/devrev/edgecdn/internal/liveness"
	"github.com/devrev/edgecdn/internal/node"
	"github.com/devrev/edgecdn/internal/server"
	"github.com/devrev/edgecdn/internal/service"
	"go.uber.org/zap"
)

func main() {
	rt, err := node.Bootstrap(config.RoleBalancer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start load balancer: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := rt.Config, rt.Logger

	// Heartbeats must not follow redirects or keep stale connections forever
	probeClient := &http.Client{
		Timeout: cfg.ProbeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	monitor := liveness.NewMonitor(rt.MonitorConfig(), liveness.NewHTTPProber(probeClient), logger, rt.Metrics)

	var proxies []string
	for _, area := range cfg.Areas {
		proxies = append(proxies, area...)
	}
	monitor.Start(context.Background(), proxies)
	rt.OnClose(monitor.Stop)

	routing, err := service.NewRoutingService(cfg.Areas, monitor, logger, rt.Metrics)
	if err != nil {
		logger.Fatal("Failed to initialize routing", zap.Error(err))
	}

	rt.Health.AddCheck("proxies", health.UpstreamCheck(monitor))

	balancer := server.NewBalancerServer(rt.HTTPConfig(), routing, cfg.DefaultPath, rt.Pool, logger, rt.Metrics)
	component, err := rt.HTTP(balancer.HTTPServer)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	rt.StartGossip(monitor)

	for i, area := range cfg.Areas {
		logger.Info("Area configured", zap.Int("area", i), zap.Strings("proxies", area))
	}

	if err := rt.Run(component); err != nil {
		logger.Error("Load balancer stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
