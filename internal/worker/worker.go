package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type ProcessFunc[J any] func(ctx context.Context, job J) error

// WorkerPool runs a fixed number of goroutines draining a buffered job queue.
// A pool is started once and stopped once; Stop waits for queued work.
type WorkerPool[J any] struct {
	numWorkers int
	jobs       chan J
	processor  ProcessFunc[J]
	wg         sync.WaitGroup
	failed     atomic.Int64
	processed  atomic.Int64
}

func NewWorkerPool[J any](numWorkers int, bufferSize int, processor ProcessFunc[J]) *WorkerPool[J] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool[J]{
		numWorkers: numWorkers,
		jobs:       make(chan J, bufferSize),
		processor:  processor,
	}
}

func (wp *WorkerPool[J]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool[J]) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.processed.Add(1)
			if err := wp.processor(ctx, job); err != nil {
				wp.failed.Add(1)
				slog.Debug("job failed", "worker", id, "error", err)
			}
		}
	}
}

// Submit enqueues a job. It returns false if ctx is done before the job
// could be queued.
func (wp *WorkerPool[J]) Submit(ctx context.Context, job J) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func (wp *WorkerPool[J]) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
}

func (wp *WorkerPool[J]) Processed() int64 {
	return wp.processed.Load()
}

func (wp *WorkerPool[J]) Failed() int64 {
	return wp.failed.Load()
}

// Stats counts the jobs a pool picked up and how many of them failed.
type Stats struct {
	Processed int64
	Failed    int64
}

// Run processes every job with a short-lived pool and returns once all of
// them are handled or ctx is cancelled.
func Run[J any](ctx context.Context, numWorkers int, jobs []J, processor ProcessFunc[J]) Stats {
	pool := NewWorkerPool(numWorkers, len(jobs), processor)
	pool.Start(ctx)
	for _, j := range jobs {
		if !pool.Submit(ctx, j) {
			break
		}
	}
	pool.Stop()
	return Stats{Processed: pool.Processed(), Failed: pool.Failed()}
}
