package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileExpiryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileExpiryStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = s.Get(ctx, "img/a.png")
	assert.ErrorIs(t, err, ErrNotFound)

	exp := time.Now().Add(time.Minute)
	require.NoError(t, s.Set(ctx, "img/a.png", exp))

	got, err := s.Get(ctx, "img/a.png")
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "img/a.png"))
	_, err = s.Get(ctx, "img/a.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "img/a.png"))
}

func TestFileExpiryStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileExpiryStore(dir, zap.NewNop())
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour).Round(time.Millisecond)
	require.NoError(t, s.Set(ctx, "index.html", exp))
	require.NoError(t, s.Close())

	reopened, err := NewFileExpiryStore(dir, zap.NewNop())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "index.html")
	require.NoError(t, err)
	assert.True(t, exp.Equal(got), "want %v got %v", exp, got)
}

func TestFileExpiryStoreDiscardsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte("{not json"), 0644))

	s, err := NewFileExpiryStore(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, s.Ping(context.Background()))
}

func TestFileExpiryStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileExpiryStore(dir, zap.NewNop())
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, time.Now()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, IndexFile, entries[0].Name())
}

func TestRedisExpiryStoreUnreachable(t *testing.T) {
	_, err := NewRedisExpiryStore("127.0.0.1:1", "", 0, zap.NewNop())
	assert.Error(t, err)
}

// Runs against a real server when REDIS_ADDR is set.
func TestRedisExpiryStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	s, err := NewRedisExpiryStore(addr, os.Getenv("REDIS_PASSWORD"), 0, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	key := "test/" + time.Now().Format(time.RFC3339Nano)
	defer s.Delete(ctx, key)

	exp := time.Now().Add(time.Minute)
	require.NoError(t, s.Set(ctx, key, exp))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, exp.UnixNano(), got.UnixNano())

	require.NoError(t, s.Set(ctx, key, time.Now().Add(-time.Second)))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
