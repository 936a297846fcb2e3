package diskmanager

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"go.uber.org/zap"
)

// DiskManager watches the filesystem holding a node's files and refuses writes
// when it is close to full
type DiskManager struct {
	dir           string
	logger        *zap.Logger
	mu            sync.Mutex
	checkInterval time.Duration
	statfs        func(dir string) (usagePercent float64, available uint64, err error)

	throttleThreshold       float64 // large writes rejected above this percentage
	circuitBreakerThreshold float64 // every write rejected above this percentage

	lastCheck      time.Time
	usagePercent   float64
	availableBytes uint64
}

// Config holds configuration for the disk manager
type Config struct {
	Dir                     string
	CheckInterval           time.Duration
	ThrottleThreshold       float64
	CircuitBreakerThreshold float64
}

// DefaultConfig returns default disk manager configuration
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:                     dir,
		CheckInterval:           10 * time.Second,
		ThrottleThreshold:       90.0,
		CircuitBreakerThreshold: 95.0,
	}
}

// NewDiskManager creates a disk manager for cfg.Dir
func NewDiskManager(cfg *Config, logger *zap.Logger) (*DiskManager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskManager{
		dir:                     cfg.Dir,
		logger:                  logger,
		checkInterval:           cfg.CheckInterval,
		throttleThreshold:       cfg.ThrottleThreshold,
		circuitBreakerThreshold: cfg.CircuitBreakerThreshold,
		statfs:                  statfs,
	}, nil
}

// CheckBeforeWrite returns an error when a write of estimatedBytes should be rejected.
// Pass 0 when the size is not known up front; only the circuit breaker applies then.
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.refresh(); err != nil {
			// unknown usage never blocks a write
			dm.logger.Warn("Disk space check failed", zap.String("dir", dm.dir), zap.Error(err))
			return nil
		}
	}

	if dm.usagePercent >= dm.circuitBreakerThreshold {
		return apierrors.DiskFull(dm.usagePercent, dm.availableBytes)
	}
	if dm.usagePercent >= dm.throttleThreshold && estimatedBytes > dm.availableBytes/10 {
		return apierrors.DiskFull(dm.usagePercent, dm.availableBytes).
			WithDetail("throttled", true)
	}
	if estimatedBytes > dm.availableBytes {
		return apierrors.DiskFull(dm.usagePercent, dm.availableBytes).
			WithDetail("requested_bytes", estimatedBytes)
	}
	return nil
}

// Usage returns the cached usage, refreshing it if stale
func (dm *DiskManager) Usage() (usagePercent float64, availableBytes uint64, err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.refresh(); err != nil {
			return 0, 0, err
		}
	}
	return dm.usagePercent, dm.availableBytes, nil
}

// refresh must be called with mu held
func (dm *DiskManager) refresh() error {
	usage, available, err := dm.statfs(dm.dir)
	if err != nil {
		return err
	}

	wasBroken := dm.usagePercent >= dm.circuitBreakerThreshold
	dm.usagePercent = usage
	dm.availableBytes = available
	dm.lastCheck = time.Now()

	isBroken := usage >= dm.circuitBreakerThreshold
	if isBroken && !wasBroken {
		dm.logger.Error("Disk circuit breaker ENGAGED",
			zap.String("dir", dm.dir),
			zap.Float64("usage_percent", usage),
			zap.Uint64("available_bytes", available))
	} else if !isBroken && wasBroken {
		dm.logger.Info("Disk circuit breaker DISENGAGED",
			zap.String("dir", dm.dir),
			zap.Float64("usage_percent", usage))
	}
	return nil
}

func statfs(dir string) (float64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, 0, fmt.Errorf("filesystem reports zero size")
	}
	available := stat.Bavail * uint64(stat.Bsize)
	used := total - available
	return float64(used) / float64(total) * 100.0, available, nil
}
