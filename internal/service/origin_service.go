package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/model"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"go.uber.org/zap"
)

// OriginConfig holds origin settings
type OriginConfig struct {
	ChunkSize int
	Backups   []string
	// PushTimeout bounds each replica push; zero waits for as long as the replica takes
	PushTimeout time.Duration
}

// OriginService persists uploads locally and then pushes them to every backup in
// roster order. A write is acknowledged only after every backup acknowledged it.
// Uploads of one key run one at a time, store and fan-out together.
type OriginService struct {
	*FileService
	locks       *keyLocks
	roster      []model.Backup
	pusher      Pusher
	pushTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewOriginService creates an origin over store
func NewOriginService(store *filestore.FileStore, pusher Pusher, cfg OriginConfig, logger *zap.Logger, m *metrics.Metrics) *OriginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OriginService{
		FileService: NewFileService(store, FileServiceConfig{ChunkSize: cfg.ChunkSize}, logger, m),
		locks:       newKeyLocks(),
		roster:      model.NewRoster(cfg.Backups),
		pusher:      pusher,
		pushTimeout: cfg.PushTimeout,
		logger:      logger,
		metrics:     m,
	}
}

// Roster returns the backups in push order
func (s *OriginService) Roster() []model.Backup {
	out := make([]model.Backup, len(s.roster))
	copy(out, s.roster)
	return out
}

// Put stores src locally and replicates it. When backup i fails, backups before i
// already hold the file and so does the origin; the error names backup i.
func (s *OriginService) Put(ctx context.Context, src chunk.Source) (*pb.Reply, error) {
	start := time.Now()
	r, err := s.open(src, start)
	if err != nil {
		return nil, err
	}
	// pushes replay the stored file, so a later upload of the key must not
	// replace it until they are done
	unlock := s.locks.lock(r.Name())
	defer unlock()

	key, reply, err := s.commit(r, start)
	if err != nil {
		return nil, err
	}

	// a client that goes away does not stop fan-out
	pushCtx := context.WithoutCancel(ctx)
	for _, b := range s.roster {
		if err := s.push(pushCtx, b, key, reply); err != nil {
			s.logger.Error("Replication failed, origin copy kept",
				zap.String("key", key),
				zap.Int("replica_index", b.Index),
				zap.String("replica", b.Address),
				zap.Error(err))
			return nil, apierrors.ReplicationFailure(b.Index, b.Address, err)
		}
	}

	if len(s.roster) > 0 {
		s.logger.Info("Replicated upload",
			zap.String("key", key),
			zap.Int("replicas", len(s.roster)))
	}
	return reply, nil
}

// push replays the stored copy of key to one backup and checks its reply
// against the local one
func (s *OriginService) push(ctx context.Context, b model.Backup, key string, local *pb.Reply) error {
	start := time.Now()

	if s.pushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pushTimeout)
		defer cancel()
	}

	f, _, err := s.store.Open(key)
	if err != nil {
		return err
	}
	defer f.Close()

	reply, err := s.pusher.Push(ctx, b.Address, f, key)
	if err == nil {
		err = verifyReply(local, reply)
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordReplicationPush(b.Address, status, time.Since(start).Seconds())
	return err
}

// verifyReply compares a replica's reply with the origin's. A zero checksum is
// accepted from replicas that do not report one.
func verifyReply(local, remote *pb.Reply) error {
	if remote.GetLength() != local.GetLength() {
		return fmt.Errorf("replica stored %d bytes, origin stored %d", remote.GetLength(), local.GetLength())
	}
	if remote.GetChecksum() != 0 && remote.GetChecksum() != local.GetChecksum() {
		return fmt.Errorf("checksum mismatch: replica %08x, origin %08x", remote.GetChecksum(), local.GetChecksum())
	}
	return nil
}
