package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IndexFile is the name of the expiry index inside the store directory
const IndexFile = "index.json"

// FileExpiryStore keeps the expiry index in memory and rewrites it as a single
// JSON document on every change.
type FileExpiryStore struct {
	dir     string
	path    string
	mu      sync.RWMutex
	entries map[string]time.Time
	logger  *zap.Logger
}

// NewFileExpiryStore opens (or creates) the index in dir. An unreadable index is
// discarded, which only makes every cached file look expired.
func NewFileExpiryStore(dir string, logger *zap.Logger) (*FileExpiryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create expiry directory %s: %w", dir, err)
	}

	s := &FileExpiryStore{
		dir:     dir,
		path:    filepath.Join(dir, IndexFile),
		entries: make(map[string]time.Time),
		logger:  logger,
	}

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read expiry index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.entries); err != nil {
			logger.Warn("Discarding corrupt expiry index",
				zap.String("path", s.path),
				zap.Error(err))
			s.entries = make(map[string]time.Time)
		}
	}

	logger.Info("Expiry index loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(s.entries)))

	return s, nil
}

// Get returns the expiry for key
func (s *FileExpiryStore) Get(ctx context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.entries[key]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return t, nil
}

// Set records the expiry for key and persists the index
func (s *FileExpiryStore) Set(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[key]
	s.entries[key] = expiresAt
	if err := s.persist(); err != nil {
		if had {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// Delete removes key from the index
func (s *FileExpiryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[key]
	if !had {
		return nil
	}
	delete(s.entries, key)
	if err := s.persist(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

// Len returns the number of recorded keys
func (s *FileExpiryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ping checks that the index directory is still writable
func (s *FileExpiryStore) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("expiry directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Close is a no-op; every change is already on disk
func (s *FileExpiryStore) Close() error {
	return nil
}

// persist must be called with mu held
func (s *FileExpiryStore) persist() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal expiry index: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create expiry index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write expiry index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close expiry index: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace expiry index: %w", err)
	}
	return nil
}
