package main

import (
	"fmt"
	"os"

	"github.com/devrev/edgecdn/internal/config"
	"github.com/devrev/edgecdn/internal/handler"
	"github.com/devrev/edgecdn/internal/health"
	"github.com/devrev/edgecdn/internal/node"
	"github.com/devrev/edgecdn/internal/server"
	"github.com/devrev/edgecdn/internal/service"
	"github.com/devrev/edgecdn/internal/storage/diskmanager"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	"go.uber.org/zap"
)

func main() {
	rt, err := node.Bootstrap(config.RoleReplica)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start replica: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := rt.Config, rt.Logger

	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(cfg.StorageDir), logger)
	if err != nil {
		logger.Fatal("Failed to initialize disk manager", zap.Error(err))
	}
	files, err := filestore.New(cfg.StorageDir, disk, logger)
	if err != nil {
		logger.Fatal("Failed to initialize file store", zap.Error(err))
	}

	replicaSvc := service.NewReplicaService(files, cfg.ChunkSize, cfg.ReplicaDelay, logger, rt.Metrics)
	logger.Info("Replica read delay", zap.Duration("delay", cfg.ReplicaDelay))

	rt.Health.AddCheck("storage", health.DataDirCheck(cfg.StorageDir))
	rt.Health.AddCheck("disk", health.DiskCheck(disk, rt.Metrics))

	grpcServer := server.NewGRPCServer(&server.GRPCServerConfig{
		ChunkSize:       cfg.ChunkSize,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, handler.NewFileHandler(replicaSvc, logger), rt.Pool, logger)

	component, err := rt.GRPC(grpcServer)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	rt.StartGossip(nil)

	if err := rt.Run(component); err != nil {
		logger.Error("Replica stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
