package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-net/internal/concurrency"
)

func TestExecutorRunsAllTasks(t *testing.T) {
	e := concurrency.NewExecutor(4, zaptest.NewLogger(t))
	defer e.Close()

	var wg sync.WaitGroup
	var n atomic.Int64
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func() {
			n.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 1000, n.Load())
}

func TestExecutorSurvivesPanic(t *testing.T) {
	e := concurrency.NewExecutor(1, zaptest.NewLogger(t))
	defer e.Close()

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { panic("boom") }))
	require.NoError(t, e.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	assert.EqualValues(t, 1, e.Stats()["panics"])
}

func TestExecutorCloseDrainsAndRejects(t *testing.T) {
	e := concurrency.NewExecutor(2, zaptest.NewLogger(t))

	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Submit(func() { n.Add(1) }))
	}
	e.Close()
	assert.EqualValues(t, 100, n.Load())
	assert.ErrorIs(t, e.Submit(func() {}), concurrency.ErrExecutorClosed)
	e.Close() // idempotent
}

func TestExecutorResize(t *testing.T) {
	e := concurrency.NewExecutor(2, zaptest.NewLogger(t))
	defer e.Close()

	require.NoError(t, e.Resize(6))
	assert.Equal(t, 6, e.NumWorkers())
	require.NoError(t, e.Resize(1))
	assert.Equal(t, 1, e.NumWorkers())
	assert.ErrorIs(t, e.Resize(0), concurrency.ErrInvalidWorkerCount)

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task not executed after shrink")
	}
}

func TestExecutorWithCPUAffinityRunsTasks(t *testing.T) {
	e := concurrency.NewExecutor(2, zaptest.NewLogger(t), concurrency.WithCPUAffinity())
	defer e.Close()

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pinned worker did not run the task")
	}
}
