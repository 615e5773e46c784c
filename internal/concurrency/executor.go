// File: internal/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines from one unbounded FIFO.
// Submit never blocks and never drops: the reactor re-posts itself after every
// pass and must not lose its slot to a full queue.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/affinity"
	"github.com/momentics/hioload-net/internal/logging"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue // FIFO of TaskFunc
	workers int
	retire  int // workers asked to exit by Resize
	closed  bool
	wg      sync.WaitGroup
	log     *zap.Logger
	pin     bool

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithCPUAffinity pins worker i to CPU i modulo the CPU count.
func WithCPUAffinity() Option {
	return func(e *Executor) { e.pin = true }
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers int, log *zap.Logger, opts ...Option) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if log == nil {
		log = logging.Logger("executor")
	}
	e := &Executor{
		tasks: queue.New(),
		log:   log,
	}
	for _, o := range opts {
		o(e)
	}
	e.cond = sync.NewCond(&e.mu)
	e.mu.Lock()
	for i := 0; i < numWorkers; i++ {
		e.spawnLocked(i)
	}
	e.mu.Unlock()
	return e
}

// Submit enqueues a task. Returns ErrExecutorClosed if closed.
func (e *Executor) Submit(task func()) error {
	if task == nil {
		return nil
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.tasks.Add(TaskFunc(task))
	e.totalTasks.Add(1)
	e.mu.Unlock()
	e.cond.Signal()
	return nil
}

// Resize dynamically scales the worker pool.
func (e *Executor) Resize(newCount int) error {
	if newCount <= 0 {
		return ErrInvalidWorkerCount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	current := e.workers - e.retire
	switch {
	case newCount > current:
		for i := current; i < newCount; i++ {
			if e.retire > 0 {
				e.retire--
				continue
			}
			e.spawnLocked(i)
		}
	case newCount < current:
		e.retire += current - newCount
		e.cond.Broadcast()
	}
	return nil
}

// NumWorkers returns active worker count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers - e.retire
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks.Length()
}

// Close stops accepting tasks, lets workers drain the queue and waits for them.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.NumWorkers()),
	}
}

func (e *Executor) spawnLocked(id int) {
	e.workers++
	e.wg.Add(1)
	go e.run(id)
}

// run is the main loop for a worker.
func (e *Executor) run(id int) {
	defer e.wg.Done()
	if e.pin {
		// the locked thread is discarded when the worker exits
		if err := affinity.Pin(id % affinity.CPUs()); err != nil {
			e.log.Warn("cpu affinity", zap.Int("worker", id), zap.Error(err))
		}
	}
	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed && e.retire == 0 {
			e.cond.Wait()
		}
		if e.retire > 0 {
			e.retire--
			e.workers--
			e.mu.Unlock()
			return
		}
		if e.tasks.Length() == 0 {
			// closed and drained
			e.workers--
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(TaskFunc)
		e.mu.Unlock()
		e.execute(id, task)
	}
}

// execute runs the task and updates statistics, recovering from panics.
func (e *Executor) execute(id int, task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("task panicked", zap.Int("worker", id), zap.Any("panic", r))
		}
		e.completedTasks.Add(1)
	}()
	task()
}
