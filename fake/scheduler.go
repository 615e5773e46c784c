// File: fake/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StepScheduler queues tasks until the test runs them.
type StepScheduler struct {
	Clock *clock.Mock

	mu    sync.Mutex
	tasks []func()
}

// NewStepScheduler returns an empty scheduler on a fresh mock clock.
func NewStepScheduler() *StepScheduler {
	return &StepScheduler{Clock: clock.NewMock()}
}

func (s *StepScheduler) Submit(task func()) error {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return nil
}

func (s *StepScheduler) Now() time.Time { return s.Clock.Now() }

// Pending is the number of queued tasks.
func (s *StepScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Step runs the oldest queued task.
func (s *StepScheduler) Step() bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.mu.Unlock()
	task()
	return true
}

// Drain runs tasks until the queue is empty, including tasks queued meanwhile.
func (s *StepScheduler) Drain() {
	for s.Step() {
	}
}
