package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// GRPCServerConfig holds settings for a file server
type GRPCServerConfig struct {
	ChunkSize       int
	ShutdownTimeout time.Duration
}

// GRPCServer serves the FileServer service with every call run on a worker pool
type GRPCServer struct {
	server          *grpc.Server
	pool            *workerpool.Pool
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewGRPCServer creates a server that runs handlers on pool and registers srv
func NewGRPCServer(cfg *GRPCServerConfig, srv pb.FileServerServer, pool *workerpool.Pool, logger *zap.Logger) *GRPCServer {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	maxMsg := 4 * 1024 * 1024
	if need := chunkSize + 1024*1024; need > maxMsg {
		maxMsg = need
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &GRPCServer{
		pool:            pool,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}

	s.server = grpc.NewServer(
		grpc.ForceServerCodec(pb.Codec()),
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.MaxSendMsgSize(maxMsg),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(s.recoverUnary, s.boundedUnary),
		grpc.ChainStreamInterceptor(s.recoverStream, s.boundedStream),
	)
	pb.RegisterFileServerServer(s.server, srv)
	return s
}

// Serve accepts connections on lis until Stop
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight calls, forcing the stop after the shutdown timeout
func (s *GRPCServer) Stop() {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("gRPC graceful stop timed out, forcing")
		s.server.Stop()
	}
}

// boundedUnary runs unary calls on the pool. Heartbeats skip it so a node busy
// with transfers still answers liveness probes.
func (s *GRPCServer) boundedUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if info.FullMethod == pb.FileServer_Heartbeat_FullMethodName {
		return handler(ctx, req)
	}
	var resp interface{}
	err := s.pool.Do(ctx, info.FullMethod, func(ctx context.Context) error {
		var herr error
		resp, herr = handler(ctx, req)
		return herr
	})
	if err == workerpool.ErrStopped {
		return nil, status.Error(codes.Unavailable, "server is shutting down")
	}
	return resp, err
}

func (s *GRPCServer) boundedStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	err := s.pool.Do(ss.Context(), info.FullMethod, func(context.Context) error {
		return handler(srv, ss)
	})
	if err == workerpool.ErrStopped {
		return status.Error(codes.Unavailable, "server is shutting down")
	}
	return err
}

func (s *GRPCServer) recoverUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in gRPC handler",
				zap.String("method", info.FullMethod),
				zap.Any("panic", r))
			err = apierrors.ToGRPCError(apierrors.InternalError("internal error", nil))
		}
	}()
	return handler(ctx, req)
}

func (s *GRPCServer) recoverStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in gRPC stream handler",
				zap.String("method", info.FullMethod),
				zap.Any("panic", r))
			err = apierrors.ToGRPCError(apierrors.InternalError("internal error", nil))
		}
	}()
	return handler(srv, ss)
}
