package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devrev/edgecdn/internal/client"
	"github.com/devrev/edgecdn/internal/config"
	"github.com/devrev/edgecdn/internal/health"
	"github.com/devrev/edgecdn/internal/liveness"
	"github.com/devrev/edgecdn/internal/node"
	"github.com/devrev/edgecdn/internal/server"
	"github.com/devrev/edgecdn/internal/service"
	"github.com/devrev/edgecdn/internal/storage/diskmanager"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	"github.com/devrev/edgecdn/internal/store"
	"go.uber.org/zap"
)

// expiryDir holds the file expiry index inside CACHE_DIR
const expiryDir = ".expiry"

func main() {
	rt, err := node.Bootstrap(config.RoleProxy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start proxy: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := rt.Config, rt.Logger

	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(cfg.CacheDir), logger)
	if err != nil {
		logger.Fatal("Failed to initialize disk manager", zap.Error(err))
	}
	files, err := filestore.New(cfg.CacheDir, disk, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache store", zap.Error(err))
	}
	files.Reserve(expiryDir)

	expiry, err := openExpiryStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize expiry store", zap.Error(err))
	}
	rt.OnClose(func() {
		if err := expiry.Close(); err != nil {
			logger.Warn("Failed to close expiry store", zap.Error(err))
		}
	})

	pool := client.NewPool(client.PoolConfig{ChunkSize: cfg.ChunkSize}, logger)
	rt.OnClose(func() { pool.Close() })

	origin := cfg.OriginAddress()
	replicas := cfg.BackupAddresses()

	monitor := liveness.NewMonitor(rt.MonitorConfig(), liveness.NewGRPCProber(pool), logger, rt.Metrics)
	monitor.Start(context.Background(), append([]string{origin}, replicas...))
	rt.OnClose(monitor.Stop)

	cacheSvc := service.NewCacheService(files, expiry, pool, monitor, service.CacheConfig{
		Origin:   origin,
		Replicas: replicas,
		TTL:      cfg.TTLDuration(),
	}, logger, rt.Metrics)

	rt.Health.AddCheck("cache", health.DataDirCheck(cfg.CacheDir))
	rt.Health.AddCheck("disk", health.DiskCheck(disk, rt.Metrics))
	rt.Health.AddCheck("expiry_store", health.PingCheck(expiry, 2*time.Second))
	rt.Health.AddCheck("upstreams", health.UpstreamCheck(monitor))

	proxy := server.NewProxyServer(rt.HTTPConfig(), cacheSvc, rt.Pool, logger, rt.Metrics)
	component, err := rt.HTTP(proxy.HTTPServer)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	rt.StartGossip(monitor)

	logger.Info("Proxy upstreams",
		zap.String("origin", origin),
		zap.Strings("replicas", replicas),
		zap.Duration("ttl", cfg.TTLDuration()))

	if err := rt.Run(component); err != nil {
		logger.Error("Proxy stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func openExpiryStore(cfg *config.Config, logger *zap.Logger) (store.ExpiryStore, error) {
	if cfg.ExpiryBackend == config.ExpiryBackendRedis {
		return store.NewRedisExpiryStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	}
	return store.NewFileExpiryStore(filepath.Join(cfg.CacheDir, expiryDir), logger)
}
