package concurrency

import (
	"context"
	"sync"
)

// WorkerPool runs batches of tasks with bounded parallelism. One slow task
// cannot monopolize the batch; the others proceed on the remaining workers.
type WorkerPool struct {
	workers int
}

// NewWorkerPool creates a pool with the given worker count (minimum one)
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers}
}

// Run executes all tasks and blocks until every task has returned or the
// context is cancelled. Tasks not yet started when the context ends are
// skipped.
func (wp *WorkerPool) Run(ctx context.Context, tasks []func(context.Context)) {
	taskCh := make(chan func(context.Context))

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				task(ctx)
			}
		}()
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return
		case taskCh <- task:
		}
	}
	close(taskCh)
	wg.Wait()
}
