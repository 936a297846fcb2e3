package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("worker pool is stopped")

// job is a unit of work. Its result is delivered on done.
type job struct {
	id   string
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs request handlers on a fixed number of goroutines
type Pool struct {
	name       string
	maxWorkers int
	queueSize  int
	jobs       chan job
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}

	activeWorkers  int32
	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New starts cfg.MaxWorkers workers
func New(cfg *Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		jobs:       make(chan job, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("Worker pool started",
		zap.String("name", p.name),
		zap.Int("max_workers", p.maxWorkers),
		zap.Int("queue_size", p.queueSize))

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			// drain what was accepted before Stop so no Do caller waits forever
			for {
				select {
				case j := <-p.jobs:
					p.run(id, j)
				default:
					return
				}
			}
		case j := <-p.jobs:
			p.run(id, j)
		}
	}
}

func (p *Pool) run(workerID int, j job) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)

	start := time.Now()
	err := p.safeExecute(j)

	if err != nil {
		atomic.AddUint64(&p.failedTasks, 1)
		p.logger.Debug("Job failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("job_id", j.id),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	} else {
		atomic.AddUint64(&p.completedTasks, 1)
	}

	j.done <- err
}

func (p *Pool) safeExecute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.id, r)
			p.logger.Error("Job panic recovered",
				zap.String("pool", p.name),
				zap.String("job_id", j.id),
				zap.Any("panic", r))
		}
	}()

	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return j.fn(ctx)
}

// Do runs fn on a worker and waits for it to return. It blocks while the queue
// is full and gives up with ctx.Err() if ctx ends before a worker picks the job.
// Once started, fn runs to completion; it sees ctx and should honour it.
func (p *Pool) Do(ctx context.Context, id string, fn func(context.Context) error) error {
	j := job{id: id, ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ErrStopped
	default:
	}

	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ErrStopped
	case <-ctx.Done():
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ctx.Err()
	case p.jobs <- j:
		atomic.AddUint64(&p.totalTasks, 1)
	}

	return <-j.done
}

// Stop refuses new work and waits up to timeout for accepted jobs to finish
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping worker pool", zap.String("name", p.name))
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("Worker pool stopped gracefully", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
			p.logger.Warn("Worker pool stop timeout", zap.String("name", p.name))
		}
	})
	return err
}

// Name returns the pool name
func (p *Pool) Name() string {
	return p.name
}

// Stats returns current worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Name:           p.name,
		MaxWorkers:     p.maxWorkers,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.jobs),
		TotalTasks:     atomic.LoadUint64(&p.totalTasks),
		CompletedTasks: atomic.LoadUint64(&p.completedTasks),
		FailedTasks:    atomic.LoadUint64(&p.failedTasks),
		RejectedTasks:  atomic.LoadUint64(&p.rejectedTasks),
	}
}

// Stats represents worker pool statistics
type Stats struct {
	Name           string
	MaxWorkers     int
	ActiveWorkers  int
	QueueSize      int
	QueuedTasks    int
	TotalTasks     uint64
	CompletedTasks uint64
	FailedTasks    uint64
	RejectedTasks  uint64
}

// QueueUtilization returns the queue utilization as a percentage
func (s Stats) QueueUtilization() float64 {
	if s.QueueSize == 0 {
		return 0
	}
	return (float64(s.QueuedTasks) / float64(s.QueueSize)) * 100.0
}

// WorkerUtilization returns the worker utilization as a percentage
func (s Stats) WorkerUtilization() float64 {
	if s.MaxWorkers == 0 {
		return 0
	}
	return (float64(s.ActiveWorkers) / float64(s.MaxWorkers)) * 100.0
}
