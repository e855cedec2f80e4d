package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Submit when no queue slot is free.
var ErrQueueFull = errors.New("job queue is full")

// Orchestrator runs preview jobs on a fixed worker pool.
type Orchestrator struct {
	engine  *Engine
	jobs    *JobStore
	queue   chan *Job
	workers int
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(engine *Engine, workers, queueSize int, ttl time.Duration, log *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Orchestrator{
		engine:  engine,
		jobs:    NewJobStore(ttl),
		queue:   make(chan *Job, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.engine, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
					o.jobs.Put(job)
				}
			}
		}()
	}
}

// Stop cancels running passes and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a preview and returns its job.
func (o *Orchestrator) Submit(req PreviewRequest) (*Job, error) {
	job := NewJob(req)
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return job, nil
	default:
		job.Finish(StatusFailed, nil, ErrQueueFull)
		return job, fmt.Errorf("%w (%d)", ErrQueueFull, cap(o.queue))
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Cancel stops a queued or running job. It reports false for unknown or
// finished jobs.
func (o *Orchestrator) Cancel(id string) bool {
	job := o.jobs.Get(id)
	if job == nil {
		return false
	}
	return job.Cancel()
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Engine returns the engine used for synchronous operations.
func (o *Orchestrator) Engine() *Engine {
	return o.engine
}
