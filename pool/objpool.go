// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// ObjectPool is the Get/Put contract shared by the scratch pools.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

var _ ObjectPool[*[]byte] = (*SyncPool[*[]byte])(nil)

// SyncPool is a typed sync.Pool. Items may be reclaimed by the GC at any
// time, so it only suits scratch state; use Sets for objects whose identity
// must survive.
type SyncPool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

// NewSyncPool creates a pool that allocates with creator. reset, if not nil,
// runs on every Put.
func NewSyncPool[T any](creator func() T, reset func(T)) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool.New = func() any { return creator() }
	return sp
}

// Get returns a pooled or new item.
func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

// Put resets obj and makes it available to Get.
func (sp *SyncPool[T]) Put(obj T) {
	if sp.reset != nil {
		sp.reset(obj)
	}
	sp.pool.Put(obj)
}
