// Package worker implements the bounded pool that executes record
// processing asynchronously, one job per non-duplicate record.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of processing work.
type Job struct {
	Ctx       context.Context
	LogicalID string
}

// RunFunc executes one job. Outcomes land in the record registry, not in a
// result channel: the pool only logs and measures.
type RunFunc func(ctx context.Context, logicalID string) error

// Observer receives per-job telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	JobStarted()
	JobFinished(duration time.Duration, err error)
}

// Pool manages a fixed set of worker goroutines reading jobs from a
// buffered channel. Submit applies backpressure when the buffer is full.
type Pool struct {
	workers  int
	run      RunFunc
	jobs     chan Job
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	observer Observer
}

// NewPool creates a pool. Call Start to launch the goroutines.
func NewPool(workers int, run RunFunc, logger *slog.Logger, observer Observer) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:  workers,
		run:      run,
		jobs:     make(chan Job, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		observer: observer,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a job, blocking when the buffer is full. It returns false
// once the pool is shutting down.
func (p *Pool) Submit(job Job) bool {
	// The read lock keeps Shutdown from closing the channel while a send is
	// in flight; cancellation unblocks senders waiting on a full buffer.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Shutdown stops accepting jobs, drains the queue, and waits for workers.
func (p *Pool) Shutdown() {
	p.cancel()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.process(id, job)
	}
	p.logger.Debug("worker exiting", slog.Int("worker_id", id))
}

func (p *Pool) process(workerID int, job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		p.logger.Warn("job cancelled before processing",
			slog.Int("worker_id", workerID),
			slog.String("logical_id", job.LogicalID),
		)
		return
	}

	if p.observer != nil {
		p.observer.JobStarted()
	}
	start := time.Now()
	err := p.run(ctx, job.LogicalID)
	latency := time.Since(start)
	if p.observer != nil {
		p.observer.JobFinished(latency, err)
	}

	if err != nil {
		p.logger.Error("processing failed",
			slog.Int("worker_id", workerID),
			slog.String("logical_id", job.LogicalID),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.Info("processing completed",
		slog.Int("worker_id", workerID),
		slog.String("logical_id", job.LogicalID),
		slog.Duration("latency", latency),
	)
}
