// Package liveness tracks which backends answer heartbeats.
//
// A Monitor owns an address -> alive map and is its only writer. Every poll
// cycle probes all addresses concurrently; one failed probe marks an address
// dead and one success marks it alive. Addresses never probed read as dead.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/edgecdn/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prober performs one heartbeat against addr. A nil error means alive.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, addr string) error

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context, addr string) error {
	return f(ctx, addr)
}

// MonitorConfig holds monitor configuration
type MonitorConfig struct {
	Interval            time.Duration
	ProbeTimeout        time.Duration
	MaxConcurrentProbes int
}

// DefaultMonitorConfig returns default monitor configuration
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Interval:            2 * time.Second,
		ProbeTimeout:        time.Second,
		MaxConcurrentProbes: 16,
	}
}

// Monitor polls a fixed set of addresses in the background
type Monitor struct {
	cfg     *MonitorConfig
	prober  Prober
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	addresses []string
	known     map[string]bool
	alive     map[string]bool

	probeNow chan string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	startMu  sync.Mutex
}

// NewMonitor creates a monitor; m may be nil
func NewMonitor(cfg *MonitorConfig, prober Prober, logger *zap.Logger, m *metrics.Metrics) *Monitor {
	if cfg == nil {
		cfg = DefaultMonitorConfig()
	}
	if cfg.MaxConcurrentProbes <= 0 {
		cfg.MaxConcurrentProbes = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:      cfg,
		prober:   prober,
		logger:   logger,
		metrics:  m,
		known:    make(map[string]bool),
		alive:    make(map[string]bool),
		probeNow: make(chan string, 64),
	}
}

// Register adds addresses to the polled set without starting the loop.
// Duplicates are ignored and registration order is kept.
func (m *Monitor) Register(addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range addresses {
		if addr == "" || m.known[addr] {
			continue
		}
		m.known[addr] = true
		m.addresses = append(m.addresses, addr)
	}
}

// Start registers addresses and launches the polling loop. It returns at once;
// the loop runs until ctx ends or Stop is called. A second Start only registers.
func (m *Monitor) Start(ctx context.Context, addresses []string) {
	m.Register(addresses...)

	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.run(ctx)

	m.logger.Info("Liveness monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("probe_timeout", m.cfg.ProbeTimeout),
		zap.Strings("addresses", m.Addresses()))
}

// Stop cancels the loop and waits for it
func (m *Monitor) Stop() {
	m.startMu.Lock()
	cancel := m.cancel
	m.startMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.logger.Info("Liveness monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.CheckAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		case addr := <-m.probeNow:
			m.check(ctx, addr)
		}
	}
}

// CheckAll probes every registered address once and waits for the results
func (m *Monitor) CheckAll(ctx context.Context) {
	addrs := m.Addresses()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrentProbes)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			m.check(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) check(ctx context.Context, addr string) {
	if ctx.Err() != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	start := time.Now()
	err := m.prober.Probe(probeCtx, addr)
	cancel()

	if err != nil && ctx.Err() != nil {
		// shutting down; keep the last real result
		return
	}

	alive := err == nil
	m.metrics.RecordProbe(addr, alive, time.Since(start).Seconds())

	m.mu.Lock()
	prev, seen := m.alive[addr]
	m.alive[addr] = alive
	m.mu.Unlock()

	switch {
	case !seen || prev != alive:
		if alive {
			m.logger.Info("Backend is alive", zap.String("address", addr))
		} else {
			m.logger.Warn("Backend is dead", zap.String("address", addr), zap.Error(err))
		}
	case err != nil:
		m.logger.Debug("Heartbeat failed", zap.String("address", addr), zap.Error(err))
	}
}

// ProbeNow asks the loop to re-probe addr before the next cycle. Unknown
// addresses are ignored and the request is dropped if the loop is busy.
func (m *Monitor) ProbeNow(addr string) {
	m.mu.RLock()
	known := m.known[addr]
	m.mu.RUnlock()
	if !known {
		return
	}
	select {
	case m.probeNow <- addr:
	default:
	}
}

// IsAlive returns the last probe result for addr, false if never probed
func (m *Monitor) IsAlive(addr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alive[addr]
}

// Addresses returns the registered addresses in registration order
func (m *Monitor) Addresses() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.addresses))
	copy(out, m.addresses)
	return out
}

// Snapshot returns a copy of the liveness map for every registered address
func (m *Monitor) Snapshot() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.addresses))
	for _, addr := range m.addresses {
		out[addr] = m.alive[addr]
	}
	return out
}
