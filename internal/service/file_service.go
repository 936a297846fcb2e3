package service

import (
	"context"
	"time"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"go.uber.org/zap"
)

// HeartbeatAck is what origin and replica nodes answer to a heartbeat
const HeartbeatAck = "acknowledged"

// FileServiceConfig holds the settings shared by file-serving nodes
type FileServiceConfig struct {
	ChunkSize int
	// ReadDelay is slept before every Get starts streaming
	ReadDelay time.Duration
}

// FileService stores whole files received as chunk streams and streams them back.
// It is the complete behaviour of a replica node and the local half of an origin.
type FileService struct {
	store   *filestore.FileStore
	cfg     FileServiceConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewFileService creates a file service over store
func NewFileService(store *filestore.FileStore, cfg FileServiceConfig, logger *zap.Logger, m *metrics.Metrics) *FileService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// NewReplicaService creates the service run by replica nodes
func NewReplicaService(store *filestore.FileStore, chunkSize int, delay time.Duration, logger *zap.Logger, m *metrics.Metrics) *FileService {
	return NewFileService(store, FileServiceConfig{ChunkSize: chunkSize, ReadDelay: delay}, logger, m)
}

// Put joins src into local storage under the name carried by its first chunk.
// The reply holds the stored size and CRC32.
func (s *FileService) Put(ctx context.Context, src chunk.Source) (*pb.Reply, error) {
	_, reply, err := s.put(ctx, src)
	return reply, err
}

func (s *FileService) put(ctx context.Context, src chunk.Source) (string, *pb.Reply, error) {
	start := time.Now()
	r, err := s.open(src, start)
	if err != nil {
		return "", nil, err
	}
	return s.commit(r, start)
}

// open reads the first chunk of an upload, which names the file
func (s *FileService) open(src chunk.Source, start time.Time) (*chunk.Reader, error) {
	r := chunk.NewReader(src)
	if err := r.Open(); err != nil {
		s.metrics.RecordPut("error", time.Since(start).Seconds(), 0)
		return nil, err
	}
	return r, nil
}

// commit stores the rest of an opened upload
func (s *FileService) commit(r *chunk.Reader, start time.Time) (string, *pb.Reply, error) {
	name := r.Name()

	n, crc, err := s.store.Put(name, r)
	s.metrics.RecordChunks("in", r.Chunks())
	if err != nil {
		s.metrics.RecordPut("error", time.Since(start).Seconds(), 0)
		s.logger.Error("Failed to store upload",
			zap.String("key", name),
			zap.Error(err))
		return name, nil, err
	}

	s.metrics.RecordPut("success", time.Since(start).Seconds(), n)
	s.logger.Info("Stored upload",
		zap.String("key", name),
		zap.Int64("bytes", n),
		zap.Int("chunks", r.Chunks()))

	return name, &pb.Reply{Length: n, Checksum: crc}, nil
}

// Get streams the file stored under name into sink. A missing file produces no
// chunks and no error.
func (s *FileService) Get(ctx context.Context, name string, sink chunk.Sink) error {
	if s.cfg.ReadDelay > 0 {
		timer := time.NewTimer(s.cfg.ReadDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return apierrors.Unavailable("download cancelled", ctx.Err())
		}
	}

	f, _, err := s.store.Open(name)
	if err != nil {
		if apierrors.Is(err, apierrors.ErrCodeNotFound) {
			s.metrics.RecordGet("missing", 0)
			s.logger.Debug("Requested file not stored", zap.String("key", name))
			return nil
		}
		return err
	}
	defer f.Close()

	sp := chunk.NewSplitter(f, name, s.cfg.ChunkSize)
	n, err := chunk.Send(sink, sp)
	if err != nil {
		s.logger.Warn("Download interrupted",
			zap.String("key", name),
			zap.Int64("bytes_sent", n),
			zap.Error(err))
		return err
	}

	s.metrics.RecordGet("found", n)
	return nil
}

// Heartbeat answers a liveness probe
func (s *FileService) Heartbeat(ctx context.Context, message string) string {
	s.metrics.RecordHeartbeat()
	return HeartbeatAck
}

// Store exposes the backing file store
func (s *FileService) Store() *filestore.FileStore {
	return s.store
}
