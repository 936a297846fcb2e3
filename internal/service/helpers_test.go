package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testChunkSize = 4

type fakeLiveness struct {
	mu    sync.Mutex
	alive map[string]bool
}

func newFakeLiveness(alive ...string) *fakeLiveness {
	l := &fakeLiveness{alive: make(map[string]bool)}
	for _, a := range alive {
		l.alive[a] = true
	}
	return l
}

func (l *fakeLiveness) set(addr string, alive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alive[addr] = alive
}

func (l *fakeLiveness) IsAlive(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive[addr]
}

// sliceSink collects chunks sent by a service
type sliceSink struct {
	chunks []*pb.Chunk
}

func (s *sliceSink) Send(c *pb.Chunk) error {
	s.chunks = append(s.chunks, c)
	return nil
}

// cluster routes pushes and fetches straight into in-process file services
type cluster struct {
	mu      sync.Mutex
	nodes   map[string]*FileService
	failing map[string]error
	fetches map[string]int
	ctxs    map[string][]context.Context
}

func newCluster() *cluster {
	return &cluster{
		nodes:   make(map[string]*FileService),
		failing: make(map[string]error),
		fetches: make(map[string]int),
		ctxs:    make(map[string][]context.Context),
	}
}

func (c *cluster) add(t *testing.T, addr string) *FileService {
	t.Helper()
	fs, err := filestore.New(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)
	svc := NewReplicaService(fs, testChunkSize, 0, zap.NewNop(), nil)
	c.mu.Lock()
	c.nodes[addr] = svc
	c.mu.Unlock()
	return svc
}

func (c *cluster) fail(addr string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[addr] = err
}

func (c *cluster) node(addr string) (*FileService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failing[addr]; err != nil {
		return nil, err
	}
	svc, ok := c.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("connection refused: %s", addr)
	}
	return svc, nil
}

func (c *cluster) fetchCount(addr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[addr]
}

// fetchContexts returns the contexts Fetch was called with for addr
func (c *cluster) fetchContexts(addr string) []context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]context.Context(nil), c.ctxs[addr]...)
}

func (c *cluster) Push(ctx context.Context, addr string, r io.Reader, name string) (*pb.Reply, error) {
	svc, err := c.node(addr)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return svc.Put(ctx, chunk.NewSliceSource(chunk.Split(data, name, testChunkSize)...))
}

func (c *cluster) Fetch(ctx context.Context, addr, name string) (*chunk.Reader, bool, error) {
	c.mu.Lock()
	c.fetches[addr]++
	c.ctxs[addr] = append(c.ctxs[addr], ctx)
	c.mu.Unlock()

	svc, err := c.node(addr)
	if err != nil {
		return nil, false, err
	}
	sink := &sliceSink{}
	if err := svc.Get(ctx, name, sink); err != nil {
		return nil, false, err
	}
	r := chunk.NewReader(chunk.NewSliceSource(sink.chunks...))
	if err := r.Open(); err != nil {
		if apierrors.IsEmptyStream(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return r, true, nil
}

// stored reads key from svc's local storage
func stored(t *testing.T, svc *FileService, key string) ([]byte, bool) {
	t.Helper()
	f, _, err := svc.Store().Open(key)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data, true
}

func upload(data []byte, name string) chunk.Source {
	return chunk.NewSliceSource(chunk.Split(data, name, testChunkSize)...)
}
