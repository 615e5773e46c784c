// File: pool/sets.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Active/Inactive set pool. An item is in exactly one set at a time.

package pool

import (
	"errors"
	"sync"
)

// ErrNotActive is returned when releasing an item the pool does not hold as active.
var ErrNotActive = errors.New("pool: item not active")

// SetStats is a snapshot of the pool counters.
type SetStats struct {
	Active    int
	Inactive  int
	Allocated int64
	Destroyed int64
}

// Sets keeps reusable items in an Inactive set and in-use items in an
// Active set, both guarded by one mutex.
type Sets[T comparable] struct {
	mu       sync.Mutex
	active   map[T]struct{}
	inactive map[T]struct{}
	capacity int

	allocate func() T
	reset    func(T)
	destroy  func(T)

	allocated int64
	destroyed int64
}

// NewSets creates a pool keeping at most capacity inactive items. allocate is
// called when no inactive item is available; reset runs on every kept release,
// under the pool lock and before the item can be popped again, so it must not
// call back into the pool. destroy runs on items the pool cannot keep. reset
// and destroy may be nil.
func NewSets[T comparable](capacity int, allocate func() T, reset, destroy func(T)) *Sets[T] {
	return &Sets[T]{
		active:   make(map[T]struct{}),
		inactive: make(map[T]struct{}),
		capacity: capacity,
		allocate: allocate,
		reset:    reset,
		destroy:  destroy,
	}
}

// Pop moves an arbitrary inactive item to Active, allocating a new one when
// the Inactive set is empty. reused reports whether the item came from the pool.
func (s *Sets[T]) Pop() (item T, reused bool) {
	s.mu.Lock()
	for it := range s.inactive {
		delete(s.inactive, it)
		s.active[it] = struct{}{}
		s.mu.Unlock()
		return it, true
	}
	s.allocated++
	s.mu.Unlock()

	item = s.allocate()
	s.mu.Lock()
	s.active[item] = struct{}{}
	s.mu.Unlock()
	return item, false
}

// Push resets item and returns it to Inactive if there is spare capacity,
// otherwise destroys it.
func (s *Sets[T]) Push(item T) error {
	s.mu.Lock()
	if _, ok := s.active[item]; !ok {
		s.mu.Unlock()
		return ErrNotActive
	}
	delete(s.active, item)
	if len(s.inactive) < s.capacity {
		if s.reset != nil {
			s.reset(item)
		}
		s.inactive[item] = struct{}{}
		s.mu.Unlock()
		return nil
	}
	s.destroyed++
	s.mu.Unlock()

	if s.destroy != nil {
		s.destroy(item)
	}
	return nil
}

// Active returns a snapshot of the Active set.
func (s *Sets[T]) Active() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.active))
	for it := range s.active {
		out = append(out, it)
	}
	return out
}

// Drain destroys every inactive item and returns how many were dropped.
func (s *Sets[T]) Drain() int {
	s.mu.Lock()
	items := make([]T, 0, len(s.inactive))
	for it := range s.inactive {
		items = append(items, it)
	}
	clear(s.inactive)
	s.destroyed += int64(len(items))
	s.mu.Unlock()

	if s.destroy != nil {
		for _, it := range items {
			s.destroy(it)
		}
	}
	return len(items)
}

// Stats returns the set sizes and lifetime counters.
func (s *Sets[T]) Stats() SetStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SetStats{
		Active:    len(s.active),
		Inactive:  len(s.inactive),
		Allocated: s.allocated,
		Destroyed: s.destroyed,
	}
}
