package handler

import (
	"context"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"go.uber.org/zap"
)

// FileBackend is the behaviour behind a FileServer: a replica's file service or
// an origin service
type FileBackend interface {
	Put(ctx context.Context, src chunk.Source) (*pb.Reply, error)
	Get(ctx context.Context, name string, sink chunk.Sink) error
	Heartbeat(ctx context.Context, message string) string
}

// FileHandler implements the gRPC FileServer service
type FileHandler struct {
	backend FileBackend
	logger  *zap.Logger
	pb.UnimplementedFileServerServer
}

// NewFileHandler creates a new file handler
func NewFileHandler(backend FileBackend, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{
		backend: backend,
		logger:  logger,
	}
}

// Put handles uploads
func (h *FileHandler) Put(stream pb.FileServer_PutServer) error {
	reply, err := h.backend.Put(stream.Context(), stream)
	if err != nil {
		h.logger.Error("Put failed", zap.Error(err))
		return apierrors.ToGRPCError(err)
	}
	return stream.SendAndClose(reply)
}

// Get handles downloads. A missing file ends the stream without chunks.
func (h *FileHandler) Get(req *pb.Request, stream pb.FileServer_GetServer) error {
	if req.GetName() == "" {
		return apierrors.ToGRPCError(apierrors.InvalidArgument("name is required", nil))
	}
	if err := h.backend.Get(stream.Context(), req.GetName(), stream); err != nil {
		h.logger.Warn("Get failed",
			zap.String("key", req.GetName()),
			zap.Error(err))
		return apierrors.ToGRPCError(err)
	}
	return nil
}

// Heartbeat handles liveness probes
func (h *FileHandler) Heartbeat(ctx context.Context, req *pb.HeartbeatRequest) (*pb.HeartbeatResponse, error) {
	return &pb.HeartbeatResponse{Message: h.backend.Heartbeat(ctx, req.GetMessage())}, nil
}
