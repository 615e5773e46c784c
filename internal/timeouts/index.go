// File: internal/timeouts/index.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package timeouts implements the ordered expiration index the reactor walks
// after every readiness pass. Keys are (instant, handle) pairs, so two sockets
// sharing an instant never collide and removal is always O(log n).
package timeouts

import (
	"container/heap"
	"time"
)

// Handle identifies a socket without owning it.
type Handle = uint64

type entry struct {
	at     time.Time
	handle Handle
	pos    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].handle < h[j].handle
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.pos = -1
	*h = old[:n-1]
	return e
}

// Index maps expiration instants to handles. It is not safe for concurrent use;
// the reactor guards it with its registration mutex.
type Index struct {
	heap    entryHeap
	byOwner map[Handle]*entry
}

// New returns an empty index.
func New() *Index {
	return &Index{byOwner: make(map[Handle]*entry)}
}

// Set (re-)arms h to expire at instant at. An existing entry for h is replaced.
func (ix *Index) Set(h Handle, at time.Time) {
	if e, ok := ix.byOwner[h]; ok {
		e.at = at
		heap.Fix(&ix.heap, e.pos)
		return
	}
	e := &entry{at: at, handle: h}
	heap.Push(&ix.heap, e)
	ix.byOwner[h] = e
}

// Remove drops the entry for h, reporting whether one existed.
func (ix *Index) Remove(h Handle) bool {
	e, ok := ix.byOwner[h]
	if !ok {
		return false
	}
	heap.Remove(&ix.heap, e.pos)
	delete(ix.byOwner, h)
	return true
}

// Deadline returns the instant registered for h.
func (ix *Index) Deadline(h Handle) (time.Time, bool) {
	e, ok := ix.byOwner[h]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// Next returns the earliest registered instant.
func (ix *Index) Next() (time.Time, bool) {
	if len(ix.heap) == 0 {
		return time.Time{}, false
	}
	return ix.heap[0].at, true
}

// Expire removes every entry whose instant is <= now, earliest first, calling fn
// for each. It stops at the first entry still in the future.
func (ix *Index) Expire(now time.Time, fn func(h Handle)) int {
	n := 0
	for len(ix.heap) > 0 {
		e := ix.heap[0]
		if e.at.After(now) {
			break
		}
		heap.Pop(&ix.heap)
		delete(ix.byOwner, e.handle)
		n++
		fn(e.handle)
	}
	return n
}

// Len returns the number of armed handles.
func (ix *Index) Len() int {
	return len(ix.heap)
}
