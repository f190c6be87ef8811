// Package workerpool runs submitted jobs on a fixed set of goroutines fed by a bounded queue.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrQueueFull  = errors.New("worker pool queue full")
)

// Job is one unit of work. ctx is cancelled when the pool shuts down.
type Job func(ctx context.Context)

// Pool executes jobs concurrently. Submit never blocks.
type Pool struct {
	logger  *slog.Logger
	queue   chan Job
	workers int

	mu      sync.RWMutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a pool with the given worker count and queue capacity.
func New(log *slog.Logger, workers, queueSize int) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		logger:  log.With(slog.String("component", "workerpool")),
		queue:   make(chan Job, queueSize),
		workers: workers,
	}
}

// Start launches the workers. Calling Start more than once is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.logger.Info("worker pool started", slog.Int("workers", p.workers), slog.Int("queue_size", cap(p.queue)))
}

// Submit enqueues job. It fails with ErrQueueFull when the queue is at capacity.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs, cancels running ones and waits for the workers
// until ctx expires. Jobs still queued are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	if p.cancel != nil {
		p.cancel()
	}
	close(p.queue)
	p.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.queue {
		if p.ctx.Err() != nil {
			continue
		}
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", slog.Any("panic", r))
		}
	}()
	job(p.ctx)
}
