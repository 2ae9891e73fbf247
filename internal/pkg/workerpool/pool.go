package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/paulexconde/surveyflow/internal/logger"
)

type Job func(ctx context.Context)

type WorkerPool struct {
	queue chan Job
	wg    sync.WaitGroup
	log   *logger.Logger

	mu     sync.Mutex
	closed bool
}

func NewWorkerPool(ctx context.Context, workerCount int, queueSize int, log *logger.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &WorkerPool{
		queue: make(chan Job, queueSize),
		log:   log.With("component", "WorkerPool"),
	}

	for i := 0; i < workerCount; i++ {
		go pool.worker(ctx)
	}

	return pool
}

func (p *WorkerPool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("worker received shutdown signal")
			// Drain so Shutdown does not wait on jobs that will never run.
			for range p.queue {
				p.wg.Done()
			}
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			job(ctx)
			p.wg.Done()
		}
	}
}

// Submit queues job without blocking. It reports false when the queue is full or the pool
// is shut down.
func (p *WorkerPool) Submit(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.log.Warn("worker pool is shut down, job dropped")
		return false
	}

	p.wg.Add(1)
	select {
	case p.queue <- job:
		return true
	default:
		p.wg.Done()
		p.log.Warn("worker pool queue full, job dropped")
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones until ctx is done.
func (p *WorkerPool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		p.log.Warn("worker pool shutdown timed out")
	case <-done:
		p.log.Debug("worker pool shutdown complete")
	}
}

// WithRetry runs job up to retries times, waiting delay between failed attempts.
func WithRetry(retries int, delay time.Duration, log *logger.Logger, job func(ctx context.Context) error) Job {
	if retries < 1 {
		retries = 1
	}

	return func(ctx context.Context) {
		for i := 0; i < retries; i++ {
			if ctx.Err() != nil {
				log.Warn("job canceled before execution")
				return
			}

			err := job(ctx)
			if err == nil {
				return
			}
			log.Warn("job failed", "attempt", i+1, "retries", retries, "error", err)

			if i == retries-1 {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		log.Error("job failed after max retries", "retries", retries)
	}
}
