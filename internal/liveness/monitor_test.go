package liveness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProber answers from a table that tests can change between cycles
type fakeProber struct {
	mu    sync.Mutex
	up    map[string]bool
	calls map[string]int
	delay time.Duration
}

func newFakeProber(up ...string) *fakeProber {
	p := &fakeProber{up: make(map[string]bool), calls: make(map[string]int)}
	for _, a := range up {
		p.up[a] = true
	}
	return p
}

func (p *fakeProber) set(addr string, alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up[addr] = alive
}

func (p *fakeProber) Probe(ctx context.Context, addr string) error {
	p.mu.Lock()
	p.calls[addr]++
	alive := p.up[addr]
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !alive {
		return errors.New("connection refused")
	}
	return nil
}

func testConfig() *MonitorConfig {
	return &MonitorConfig{Interval: time.Hour, ProbeTimeout: 100 * time.Millisecond, MaxConcurrentProbes: 8}
}

func TestUnknownAddressIsDead(t *testing.T) {
	m := NewMonitor(testConfig(), newFakeProber(), zap.NewNop(), nil)
	assert.False(t, m.IsAlive("localhost:9999"))

	m.Register("localhost:9999")
	assert.False(t, m.IsAlive("localhost:9999"), "registered but not yet probed")
}

func TestCheckAllRecordsEachResult(t *testing.T) {
	prober := newFakeProber("a:1")
	m := NewMonitor(testConfig(), prober, zap.NewNop(), nil)
	m.Register("a:1", "b:2", "a:1")

	m.CheckAll(context.Background())

	assert.True(t, m.IsAlive("a:1"))
	assert.False(t, m.IsAlive("b:2"))
	assert.Equal(t, []string{"a:1", "b:2"}, m.Addresses())
	assert.Equal(t, map[string]bool{"a:1": true, "b:2": false}, m.Snapshot())
}

func TestSingleProbeFlipsState(t *testing.T) {
	prober := newFakeProber("a:1")
	m := NewMonitor(testConfig(), prober, zap.NewNop(), nil)
	m.Register("a:1")

	m.CheckAll(context.Background())
	require.True(t, m.IsAlive("a:1"))

	prober.set("a:1", false)
	m.CheckAll(context.Background())
	assert.False(t, m.IsAlive("a:1"), "one failure is enough")

	prober.set("a:1", true)
	m.CheckAll(context.Background())
	assert.True(t, m.IsAlive("a:1"), "one success is enough")
}

func TestSlowProbeTimesOut(t *testing.T) {
	prober := newFakeProber("slow:1")
	prober.delay = time.Second
	m := NewMonitor(testConfig(), prober, zap.NewNop(), nil)
	m.Register("slow:1")

	start := time.Now()
	m.CheckAll(context.Background())

	assert.False(t, m.IsAlive("slow:1"))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestProbesRunConcurrently(t *testing.T) {
	var addrs []string
	for i := 0; i < 8; i++ {
		addrs = append(addrs, fmt.Sprintf("n%d:1", i))
	}
	prober := newFakeProber(addrs...)
	prober.delay = 50 * time.Millisecond
	m := NewMonitor(testConfig(), prober, zap.NewNop(), nil)
	m.Register(addrs...)

	start := time.Now()
	m.CheckAll(context.Background())

	assert.Less(t, time.Since(start), 300*time.Millisecond)
	for _, a := range addrs {
		assert.True(t, m.IsAlive(a))
	}
}

func TestStartDoesNotBlockAndPolls(t *testing.T) {
	prober := newFakeProber("a:1")
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	m := NewMonitor(cfg, prober, zap.NewNop(), nil)

	m.Start(context.Background(), []string{"a:1"})
	defer m.Stop()

	assert.Eventually(t, func() bool { return m.IsAlive("a:1") }, time.Second, 5*time.Millisecond)

	prober.set("a:1", false)
	assert.Eventually(t, func() bool { return !m.IsAlive("a:1") }, time.Second, 5*time.Millisecond)
}

func TestProbeNowReprobesBeforeNextCycle(t *testing.T) {
	prober := newFakeProber("a:1")
	m := NewMonitor(testConfig(), prober, zap.NewNop(), nil)

	m.Start(context.Background(), []string{"a:1"})
	defer m.Stop()
	require.Eventually(t, func() bool { return m.IsAlive("a:1") }, time.Second, 5*time.Millisecond)

	prober.set("a:1", false)
	m.ProbeNow("a:1")
	m.ProbeNow("unknown:1")

	assert.Eventually(t, func() bool { return !m.IsAlive("a:1") }, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewMonitor(testConfig(), newFakeProber(), zap.NewNop(), nil)
	m.Stop()
	m.Start(context.Background(), nil)
	m.Stop()
	m.Stop()
}

func TestHTTPProber(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"ok", http.StatusOK, "ok", false},
		{"acknowledged", http.StatusOK, "acknowledged\n", false},
		{"wrong payload", http.StatusOK, "busy", true},
		{"server error", http.StatusInternalServerError, "ok", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/heartbeat", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewHTTPProber(srv.Client()).Probe(context.Background(), srv.URL+"/")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPProberUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	assert.Error(t, NewHTTPProber(nil).Probe(context.Background(), url))
}
