package pool_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/pool"
)

type item struct {
	id    int
	dirty bool
}

func TestSetsReuseWithinCapacity(t *testing.T) {
	next := 0
	var destroyed []*item
	s := pool.NewSets(2,
		func() *item { next++; return &item{id: next} },
		func(it *item) { it.dirty = false },
		func(it *item) { destroyed = append(destroyed, it) },
	)

	first, reused := s.Pop()
	require.False(t, reused)
	first.dirty = true
	require.NoError(t, s.Push(first))
	assert.False(t, first.dirty, "reset on release")

	for i := 0; i < 10; i++ {
		it, reused := s.Pop()
		assert.True(t, reused)
		assert.Same(t, first, it)
		require.NoError(t, s.Push(it))
	}

	st := s.Stats()
	assert.Equal(t, int64(1), st.Allocated)
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, 1, st.Inactive)
	assert.Empty(t, destroyed)
}

func TestSetsDestroyOverCapacity(t *testing.T) {
	var destroyed int
	s := pool.NewSets(1, func() *item { return &item{} }, nil, func(*item) { destroyed++ })

	a, _ := s.Pop()
	b, _ := s.Pop()
	assert.Len(t, s.Active(), 2)
	require.NoError(t, s.Push(a))
	require.NoError(t, s.Push(b))
	assert.Equal(t, 1, destroyed)

	assert.ErrorIs(t, s.Push(b), pool.ErrNotActive)
	assert.Equal(t, 1, s.Drain())
	assert.Equal(t, 2, destroyed)
	assert.Equal(t, pool.SetStats{Allocated: 2, Destroyed: 2}, s.Stats())
}

func TestSetsResetCompletesBeforeReuse(t *testing.T) {
	resetting := make(chan struct{})
	release := make(chan struct{})
	s := pool.NewSets(1,
		func() *item { return &item{} },
		func(it *item) {
			close(resetting)
			<-release
			it.dirty = false
		},
		nil,
	)

	it, _ := s.Pop()
	pushed := make(chan error, 1)
	go func() { pushed <- s.Push(it) }()
	<-resetting

	popped := make(chan *item, 1)
	go func() {
		again, reused := s.Pop()
		assert.True(t, reused)
		again.dirty = true
		popped <- again
	}()

	select {
	case <-popped:
		t.Fatal("item handed out while its reset was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	again := <-popped
	require.NoError(t, <-pushed)
	assert.Same(t, it, again)
	assert.True(t, again.dirty, "state set after reuse survives the earlier release")
}

func TestBytePoolSize(t *testing.T) {
	bp := pool.NewBytePool(64)
	buf := bp.GetBuffer()
	assert.Len(t, buf, 64)
	bp.PutBuffer(buf[:3])
	assert.Len(t, bp.GetBuffer(), 64)
	bp.PutBuffer(make([]byte, 10))
}

func TestSyncPoolResetsOnPut(t *testing.T) {
	type scratch struct{ n int }
	sp := pool.NewSyncPool(func() *scratch { return &scratch{} }, func(s *scratch) { s.n = 0 })
	s := sp.Get()
	s.n = 42
	sp.Put(s)
	assert.Equal(t, 0, s.n)
}
