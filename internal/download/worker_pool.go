// Package download retrieves tile resources on a bounded worker pool.
package download

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/geoyee/globetile/internal/model"
)

// ErrPoolStopped is returned when submitting to a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool runs retrieval tasks on a fixed number of goroutines fed by a
// bounded queue.
type WorkerPool struct {
	workers int
	queue   chan *model.RetrievalTask
	handle  func(*model.RetrievalTask)
	stats   *model.RetrievalStats
	wg      sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewWorkerPool creates a pool of workers calling handle for each task.
func NewWorkerPool(workers, queueSize int, handle func(*model.RetrievalTask), stats *model.RetrievalStats) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	return &WorkerPool{
		workers: workers,
		queue:   make(chan *model.RetrievalTask, queueSize),
		handle:  handle,
		stats:   stats,
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.wg.Add(wp.workers)
	for range wp.workers {
		go func() {
			defer wp.wg.Done()
			for task := range wp.queue {
				atomic.AddInt32(&wp.stats.ActiveWorkers, 1)
				wp.handle(task)
				atomic.AddInt32(&wp.stats.ActiveWorkers, -1)
			}
		}()
	}
}

// TrySubmit queues task without blocking. It reports false when the queue is
// full or the pool has stopped.
func (wp *WorkerPool) TrySubmit(task *model.RetrievalTask) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}
	select {
	case wp.queue <- task:
		return true
	default:
		return false
	}
}

// Submit queues task, waiting for space.
func (wp *WorkerPool) Submit(ctx context.Context, task *model.RetrievalTask) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolStopped
	}
	select {
	case wp.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new tasks, lets queued ones finish and waits for the workers.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.queue)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}

// Pending returns the number of queued tasks.
func (wp *WorkerPool) Pending() int {
	return len(wp.queue)
}
