// Package filestore keeps whole files under a root directory, one file per key.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/util/checksum"
	"github.com/devrev/edgecdn/internal/validation"
	"go.uber.org/zap"
)

// WriteGuard vetoes writes, e.g. when the disk is nearly full.
type WriteGuard interface {
	CheckBeforeWrite(estimatedBytes uint64) error
}

// FileStore maps keys to files below root. Writes go to a temporary file that is
// renamed into place, so readers never observe a partial file and a re-upload
// overwrites the previous content atomically.
type FileStore struct {
	root      string
	validator *validation.Validator
	guard     WriteGuard
	logger    *zap.Logger
	reserved  map[string]bool
}

// New creates the root directory if needed.
func New(root string, guard WriteGuard, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		root:      root,
		validator: validation.NewValidator(),
		guard:     guard,
		logger:    logger,
		reserved:  make(map[string]bool),
	}, nil
}

// Reserve makes a top-level directory name unavailable to keys, so the store can
// share its root with sidecar data.
func (s *FileStore) Reserve(name string) {
	s.reserved[name] = true
}

// Root returns the directory backing the store.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the on-disk location of key.
func (s *FileStore) Path(key string) (string, error) {
	if err := s.validator.ValidateKey(key); err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(key, "/")
	if s.reserved[first] {
		return "", apierrors.InvalidKey(key, "reserved path")
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes everything from r under key and returns the byte count and the
// CRC32 (IEEE) of the content.
func (s *FileStore) Put(key string, r io.Reader) (int64, uint32, error) {
	dst, err := s.Path(key)
	if err != nil {
		return 0, 0, err
	}
	if s.guard != nil {
		if err := s.guard.CheckBeforeWrite(0); err != nil {
			return 0, 0, err
		}
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, 0, apierrors.IOError("failed to create directory", err).WithDetail("key", key)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, 0, apierrors.IOError("failed to create temporary file", err).WithDetail("key", key)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hash := checksum.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if err != nil {
		// transfer errors keep their own code
		if apierrors.IsCDNError(err) {
			return 0, 0, err
		}
		return 0, 0, apierrors.IOError("failed to write file", err).WithDetail("key", key)
	}
	if err := tmp.Sync(); err != nil {
		return 0, 0, apierrors.IOError("failed to sync file", err).WithDetail("key", key)
	}
	if err := tmp.Close(); err != nil {
		return 0, 0, apierrors.IOError("failed to close file", err).WithDetail("key", key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		committed = true
		return 0, 0, apierrors.IOError("failed to move file into place", err).WithDetail("key", key)
	}
	committed = true

	s.logger.Debug("Stored file",
		zap.String("key", key),
		zap.Int64("bytes", n),
		zap.String("root", s.root))

	return n, hash.Sum32(), nil
}

// Open returns the file stored under key and its size. The caller closes it.
func (s *FileStore) Open(key string) (*os.File, int64, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, apierrors.NotFound(key)
		}
		return nil, 0, apierrors.IOError("failed to open file", err).WithDetail("key", key)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, apierrors.IOError("failed to stat file", err).WithDetail("key", key)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, apierrors.NotFound(key)
	}
	return f, info.Size(), nil
}

// Exists reports whether a regular file is stored under key.
func (s *FileStore) Exists(key string) bool {
	p, err := s.Path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes key. Removing a missing key is not an error.
func (s *FileStore) Remove(key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return apierrors.IOError("failed to remove file", err).WithDetail("key", key)
	}
	return nil
}
