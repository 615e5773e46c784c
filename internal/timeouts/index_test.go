package timeouts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/internal/timeouts"
)

func TestExpireOrderAndStop(t *testing.T) {
	ix := timeouts.New()
	base := time.Unix(1000, 0)
	ix.Set(3, base.Add(30*time.Millisecond))
	ix.Set(1, base.Add(10*time.Millisecond))
	ix.Set(2, base.Add(20*time.Millisecond))
	ix.Set(4, base.Add(time.Hour))

	var fired []uint64
	n := ix.Expire(base.Add(25*time.Millisecond), func(h uint64) { fired = append(fired, h) })

	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{1, 2}, fired)
	assert.Equal(t, 2, ix.Len())
	next, ok := ix.Next()
	require.True(t, ok)
	assert.Equal(t, base.Add(30*time.Millisecond), next)
}

func TestSetReplacesExistingEntry(t *testing.T) {
	ix := timeouts.New()
	base := time.Unix(1000, 0)
	ix.Set(7, base)
	ix.Set(7, base.Add(time.Second))

	assert.Equal(t, 1, ix.Len())
	at, ok := ix.Deadline(7)
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Second), at)

	assert.Zero(t, ix.Expire(base.Add(time.Millisecond), func(uint64) { t.Fatal("fired early") }))
}

func TestSharedInstantIsUniquePerHandle(t *testing.T) {
	ix := timeouts.New()
	at := time.Unix(1000, 0)
	for h := uint64(1); h <= 5; h++ {
		ix.Set(h, at)
	}
	assert.True(t, ix.Remove(3))
	assert.False(t, ix.Remove(3))

	var fired []uint64
	ix.Expire(at, func(h uint64) { fired = append(fired, h) })
	assert.Equal(t, []uint64{1, 2, 4, 5}, fired)
	assert.Zero(t, ix.Len())
	_, ok := ix.Next()
	assert.False(t, ok)
}
