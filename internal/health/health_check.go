package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/model"
	"go.uber.org/zap"
)

// Check produces one named result
type Check func(ctx context.Context) model.CheckResult

// HealthChecker runs registered checks periodically. A critical result makes
// the node unready; a warning only degrades it.
type HealthChecker struct {
	nodeID      string
	role        string
	interval    time.Duration
	logger      *zap.Logger
	mu          sync.RWMutex
	checks      map[string]Check
	results     map[string]model.CheckResult
	lastCheck   time.Time
	status      model.NodeStatus
	readinessOK bool
}

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	NodeID   string
	Role     string
	Interval time.Duration
}

// NewHealthChecker creates a checker with no checks
func NewHealthChecker(cfg *HealthCheckConfig, logger *zap.Logger) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		nodeID:      cfg.NodeID,
		role:        cfg.Role,
		interval:    cfg.Interval,
		logger:      logger,
		checks:      make(map[string]Check),
		results:     make(map[string]model.CheckResult),
		status:      model.NodeStatusHealthy,
		readinessOK: true,
	}
}

// AddCheck registers a check under name
func (h *HealthChecker) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Start runs the checks until ctx ends
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			h.RunChecks(ctx)
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// RunChecks runs every check once and updates the overall status
func (h *HealthChecker) RunChecks(ctx context.Context) {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	results := make(map[string]model.CheckResult, len(checks))
	allHealthy, allReady := true, true
	for name, check := range checks {
		r := check(ctx)
		r.Name = name
		if r.Timestamp == 0 {
			r.Timestamp = time.Now().Unix()
		}
		results[name] = r
		if r.Status != model.CheckHealthy {
			allHealthy = false
			if r.Status == model.CheckCritical {
				allReady = false
			}
		}
	}

	status := model.NodeStatusHealthy
	switch {
	case !allReady:
		status = model.NodeStatusUnhealthy
	case !allHealthy:
		status = model.NodeStatusDegraded
	}

	h.mu.Lock()
	h.results = results
	h.lastCheck = time.Now()
	if h.status != status {
		h.logger.Info("Node health changed",
			zap.String("from", string(h.status)),
			zap.String("to", string(status)))
	}
	h.status = status
	h.readinessOK = allReady
	h.mu.Unlock()
}

// IsReady reports whether the node can serve traffic
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// SetReadiness overrides readiness, e.g. while draining on shutdown
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// GetStatus returns the current health status with check results sorted by name
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make([]model.CheckResult, 0, len(h.results))
	for _, r := range h.results {
		checks = append(checks, r)
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	return model.HealthStatus{
		NodeID:    h.nodeID,
		Role:      h.role,
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
		Checks:    checks,
	}
}

// LivenessHandler answers 200 while the process can serve HTTP at all
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := h.GetStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy": true,
		"status":  status.Status,
	})
}

// ReadinessHandler answers 503 when a critical check failed
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  ready,
		"status": h.GetStatus(),
	})
}

// DataDirCheck verifies dir exists and is writable
func DataDirCheck(dir string) Check {
	return func(ctx context.Context) model.CheckResult {
		info, err := os.Stat(dir)
		if err != nil {
			return model.CheckResult{Status: model.CheckCritical, Message: fmt.Sprintf("Data directory not accessible: %v", err)}
		}
		if !info.IsDir() {
			return model.CheckResult{Status: model.CheckCritical, Message: "Data path is not a directory"}
		}
		testFile := filepath.Join(dir, fmt.Sprintf(".health_check_%d", time.Now().UnixNano()))
		f, err := os.Create(testFile)
		if err != nil {
			return model.CheckResult{Status: model.CheckCritical, Message: fmt.Sprintf("Cannot write to data directory: %v", err)}
		}
		f.Close()
		os.Remove(testFile)
		return model.CheckResult{Status: model.CheckHealthy, Message: "Data directory is accessible and writable"}
	}
}

// DiskUsage reports filesystem usage, e.g. *diskmanager.DiskManager
type DiskUsage interface {
	Usage() (usagePercent float64, availableBytes uint64, err error)
}

// DiskCheck warns above 90% usage and fails above 95%. It also feeds the disk gauges.
func DiskCheck(disk DiskUsage, m *metrics.Metrics) Check {
	return func(ctx context.Context) model.CheckResult {
		usage, available, err := disk.Usage()
		if err != nil {
			return model.CheckResult{Status: model.CheckWarning, Message: fmt.Sprintf("Failed to stat filesystem: %v", err)}
		}
		m.UpdateDiskStats(usage, available)
		switch {
		case usage > 95:
			return model.CheckResult{Status: model.CheckCritical, Message: fmt.Sprintf("Disk usage critical: %.2f%%", usage)}
		case usage > 90:
			return model.CheckResult{Status: model.CheckWarning, Message: fmt.Sprintf("Disk usage high: %.2f%%", usage)}
		}
		return model.CheckResult{
			Status:  model.CheckHealthy,
			Message: fmt.Sprintf("Disk usage: %.2f%%, available: %.2f GB", usage, float64(available)/1024/1024/1024),
		}
	}
}

// Pinger is anything with a connectivity check, e.g. an expiry store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails critically when p cannot be reached
func PingCheck(p Pinger, timeout time.Duration) Check {
	return func(ctx context.Context) model.CheckResult {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return model.CheckResult{Status: model.CheckCritical, Message: err.Error()}
		}
		return model.CheckResult{Status: model.CheckHealthy, Message: "reachable"}
	}
}

// LivenessSnapshot exposes what a liveness monitor knows
type LivenessSnapshot interface {
	Snapshot() map[string]bool
}

// UpstreamCheck degrades the node when none of the monitored backends is alive.
// The node keeps serving what it can, so this is never critical.
func UpstreamCheck(view LivenessSnapshot) Check {
	return func(ctx context.Context) model.CheckResult {
		snap := view.Snapshot()
		alive := 0
		for _, ok := range snap {
			if ok {
				alive++
			}
		}
		if len(snap) > 0 && alive == 0 {
			return model.CheckResult{Status: model.CheckWarning, Message: "no monitored backend is alive"}
		}
		return model.CheckResult{Status: model.CheckHealthy, Message: fmt.Sprintf("%d of %d backends alive", alive, len(snap))}
	}
}
