// File: adapters/executor_adapter.go
// Package adapters provides glue between internal concurrency and the api contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements api.Executor and api.Scheduler by delegating to the
// internal concurrency.Executor and a clock.Clock.

package adapters

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/concurrency"
)

// ExecutorAdapter wraps an internal concurrency.Executor to satisfy api.Executor and api.Scheduler.
type ExecutorAdapter struct {
	exec  *concurrency.Executor
	clock clock.Clock
}

var (
	_ api.Executor  = (*ExecutorAdapter)(nil)
	_ api.Scheduler = (*ExecutorAdapter)(nil)
)

// NewExecutorAdapter constructs a scheduler with the given number of worker goroutines.
// A nil clk selects the wall/monotonic clock.
func NewExecutorAdapter(workers int, clk clock.Clock, log *zap.Logger, opts ...concurrency.Option) *ExecutorAdapter {
	if clk == nil {
		clk = clock.New()
	}
	return &ExecutorAdapter{
		exec:  concurrency.NewExecutor(workers, log, opts...),
		clock: clk,
	}
}

// Submit dispatches a task function to be executed asynchronously.
func (ea *ExecutorAdapter) Submit(task func()) error {
	if err := ea.exec.Submit(task); err != nil {
		return api.ErrSchedulerClosed
	}
	return nil
}

// Now returns the adapter clock's current instant.
func (ea *ExecutorAdapter) Now() time.Time {
	return ea.clock.Now()
}

// Clock exposes the underlying clock, mainly for tests driving a mock.
func (ea *ExecutorAdapter) Clock() clock.Clock {
	return ea.clock
}

// NumWorkers returns the current number of active worker goroutines.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.exec.NumWorkers()
}

// Resize dynamically adjusts the size of the worker pool.
func (ea *ExecutorAdapter) Resize(newCount int) error {
	return ea.exec.Resize(newCount)
}

// Stats exposes executor counters.
func (ea *ExecutorAdapter) Stats() map[string]int64 {
	return ea.exec.Stats()
}

// Close shuts down the executor, draining queued tasks.
func (ea *ExecutorAdapter) Close() {
	ea.exec.Close()
}
