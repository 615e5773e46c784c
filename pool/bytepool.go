// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

// BytePool hands out fixed-size scratch buffers. Buffers of a different
// capacity are dropped on Put.
type BytePool struct {
	pool *SyncPool[*[]byte]
	size int
}

// NewBytePool returns a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	return &BytePool{
		pool: NewSyncPool(
			func() *[]byte {
				b := make([]byte, size)
				return &b
			},
			func(b *[]byte) { *b = (*b)[:cap(*b)] },
		),
		size: size,
	}
}

// Size is the length of every buffer handed out.
func (b *BytePool) Size() int {
	return b.size
}

// GetBuffer returns a buffer of Size() bytes.
func (b *BytePool) GetBuffer() []byte {
	return (*b.pool.Get())[:b.size]
}

// PutBuffer returns a buffer to the pool.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.pool.Put(&buf)
}
