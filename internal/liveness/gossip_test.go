package liveness

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingRequester struct {
	mu    sync.Mutex
	addrs []string
}

func (r *recordingRequester) ProbeNow(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs = append(r.addrs, addr)
}

func (r *recordingRequester) seen(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func TestGossipJoinTriggersProbe(t *testing.T) {
	watcher := &recordingRequester{}
	first, err := NewGossip(&GossipConfig{
		NodeID:         "proxy-a",
		BindAddr:       "127.0.0.1",
		BindPort:       0,
		ServiceAddress: "http://localhost:5001/",
	}, watcher, zap.NewNop(), nil)
	require.NoError(t, err)
	defer first.Shutdown()

	second, err := NewGossip(&GossipConfig{
		NodeID:         "replica-b",
		BindAddr:       "127.0.0.1",
		BindPort:       0,
		Seeds:          []string{fmt.Sprintf("127.0.0.1:%d", first.LocalPort())},
		ServiceAddress: "localhost:8002",
	}, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	defer second.Shutdown()

	assert.Eventually(t, func() bool { return watcher.seen("localhost:8002") }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, watcher.seen("http://localhost:5001/"), "own address is never re-probed")
	assert.Eventually(t, func() bool { return first.Members() == 2 }, 5*time.Second, 20*time.Millisecond)
}
