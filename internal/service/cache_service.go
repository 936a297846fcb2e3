package service

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"time"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	"github.com/devrev/edgecdn/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache sources reported for a served file
const (
	SourceCache  = "cache"
	SourceOrigin = "origin"
)

// CacheConfig holds proxy cache settings
type CacheConfig struct {
	Origin   string
	Replicas []string
	TTL      time.Duration
	// Now and Shuffle default to the wall clock and math/rand
	Now     func() time.Time
	Shuffle func([]string)
}

// CachedFile is an open cached file ready to be served. The caller closes File.
type CachedFile struct {
	File *os.File
	Size int64
	Hit  bool
	// Source is SourceCache, SourceOrigin or the replica address the file came from
	Source    string
	ExpiresAt time.Time
}

// CacheService serves files from a local TTL cache and fills misses from the
// origin, or from live replicas while the origin is down.
type CacheService struct {
	files    *filestore.FileStore
	expiry   store.ExpiryStore
	fetcher  Fetcher
	liveness LivenessView
	cfg      CacheConfig
	group    singleflight.Group
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewCacheService creates a cache over files, with freshness tracked in expiry
func NewCacheService(
	files *filestore.FileStore,
	expiry store.ExpiryStore,
	fetcher Fetcher,
	liveness LivenessView,
	cfg CacheConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *CacheService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		files:    files,
		expiry:   expiry,
		fetcher:  fetcher,
		liveness: liveness,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Get returns the file for key, from cache when fresh and from upstream otherwise.
// Unknown keys fail with NotFound; an unreachable upstream fails with
// UpstreamUnavailable.
func (s *CacheService) Get(ctx context.Context, key string) (*CachedFile, error) {
	if _, err := s.files.Path(key); err != nil {
		return nil, err
	}

	if f, ok := s.lookup(ctx, key); ok {
		s.metrics.RecordCacheHit()
		return f, nil
	}
	s.metrics.RecordCacheMiss()

	// concurrent misses on one key share a single upstream download
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.fill(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		return nil, err
	}
	fill := v.(*fillResult)

	f, size, err := s.files.Open(key)
	if err != nil {
		return nil, err
	}
	return &CachedFile{File: f, Size: size, Hit: fill.source == SourceCache, Source: fill.source, ExpiresAt: fill.expiresAt}, nil
}

// lookup opens key when it is cached and fresh. A file without an expiry record
// is stale.
func (s *CacheService) lookup(ctx context.Context, key string) (*CachedFile, bool) {
	if !s.files.Exists(key) {
		return nil, false
	}
	expiresAt, err := s.expiry.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to read cache expiry",
				zap.String("key", key),
				zap.Error(err))
		}
		return nil, false
	}
	if !s.cfg.Now().Before(expiresAt) {
		return nil, false
	}
	f, size, err := s.files.Open(key)
	if err != nil {
		return nil, false
	}
	return &CachedFile{File: f, Size: size, Hit: true, Source: SourceCache, ExpiresAt: expiresAt}, true
}

type fillResult struct {
	source    string
	expiresAt time.Time
}

// fill downloads key into the cache. The origin is asked first while it is alive
// and its empty answer is final. Otherwise replicas are tried in random order and
// the first that has the file wins.
func (s *CacheService) fill(ctx context.Context, key string) (*fillResult, error) {
	// a fill that finished between our lookup and joining the group already did the work
	if f, ok := s.lookup(ctx, key); ok {
		f.File.Close()
		return &fillResult{source: SourceCache, expiresAt: f.ExpiresAt}, nil
	}

	start := time.Now()

	if s.cfg.Origin != "" && s.liveness.IsAlive(s.cfg.Origin) {
		found, err := s.download(ctx, s.cfg.Origin, SourceOrigin, key)
		if err == nil {
			s.metrics.RecordUpstreamResolved(time.Since(start).Seconds(), false)
			if !found {
				s.evict(ctx, key)
				return nil, apierrors.NotFound(key)
			}
			return s.stamp(ctx, key, SourceOrigin), nil
		}
		var we *writeError
		if errors.As(err, &we) {
			return nil, we.err
		}
		s.logger.Warn("Origin download failed, trying replicas",
			zap.String("key", key),
			zap.String("origin", s.cfg.Origin),
			zap.Error(err))
	}

	candidates := make([]string, len(s.cfg.Replicas))
	copy(candidates, s.cfg.Replicas)
	s.cfg.Shuffle(candidates)

	attempted := 0
	for _, addr := range candidates {
		if !s.liveness.IsAlive(addr) {
			continue
		}
		attempted++
		found, err := s.download(ctx, addr, addr, key)
		var we *writeError
		if errors.As(err, &we) {
			return nil, we.err
		}
		if err != nil {
			s.logger.Warn("Replica download failed",
				zap.String("key", key),
				zap.String("replica", addr),
				zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		s.metrics.RecordUpstreamResolved(time.Since(start).Seconds(), false)
		return s.stamp(ctx, key, addr), nil
	}

	s.metrics.RecordUpstreamResolved(time.Since(start).Seconds(), true)
	s.logger.Warn("No upstream could serve request",
		zap.String("key", key),
		zap.Int("replicas_attempted", attempted))
	return nil, apierrors.UpstreamUnavailable(key, attempted)
}

// writeError is a failure to store a download locally. It ends the fill instead
// of moving on to the next upstream.
type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }

func (e *writeError) Unwrap() error { return e.err }

// download streams key from addr into the cache. found is false on an empty stream.
// The upstream stream is cancelled on return, whether or not it was drained.
func (s *CacheService) download(ctx context.Context, addr, source, key string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r, found, err := s.fetcher.Fetch(ctx, addr, key)
	if err != nil {
		s.metrics.RecordUpstreamFetch(sourceLabel(source), "error")
		return false, err
	}
	if !found {
		s.metrics.RecordUpstreamFetch(sourceLabel(source), "missing")
		return false, nil
	}
	n, _, err := s.files.Put(key, r)
	if err != nil {
		s.metrics.RecordUpstreamFetch(sourceLabel(source), "error")
		if !apierrors.Is(err, apierrors.ErrCodeTransfer) {
			return false, &writeError{err: err}
		}
		return false, err
	}
	s.metrics.RecordUpstreamFetch(sourceLabel(source), "found")
	s.logger.Debug("Cached file from upstream",
		zap.String("key", key),
		zap.String("source", source),
		zap.Int64("bytes", n))
	return true, nil
}

// stamp records a fresh expiry for key. A failed write only makes the entry stale.
func (s *CacheService) stamp(ctx context.Context, key, source string) *fillResult {
	expiresAt := s.cfg.Now().Add(s.cfg.TTL)
	if err := s.expiry.Set(ctx, key, expiresAt); err != nil {
		s.logger.Warn("Failed to record cache expiry",
			zap.String("key", key),
			zap.Error(err))
	}
	return &fillResult{source: source, expiresAt: expiresAt}
}

// evict drops a cached copy of key that the origin no longer has
func (s *CacheService) evict(ctx context.Context, key string) {
	if !s.files.Exists(key) {
		return
	}
	if err := s.files.Remove(key); err != nil {
		s.logger.Warn("Failed to evict cached file",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if err := s.expiry.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete cache expiry",
			zap.String("key", key),
			zap.Error(err))
	}
	s.logger.Info("Evicted file the origin no longer serves", zap.String("key", key))
}

func sourceLabel(source string) string {
	if source == SourceOrigin {
		return SourceOrigin
	}
	return "replica"
}
