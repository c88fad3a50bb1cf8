package util

import "sync"

// ChunkSize is the read size used by shell output pumps.
const ChunkSize = 32 * 1024

var chunkPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// GetChunk returns a pooled ChunkSize-byte slice.
func GetChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

// PutChunk returns a slice to the pool.  Slices of the wrong size are dropped.
func PutChunk(b *[]byte) {
	if b == nil || cap(*b) != ChunkSize {
		return
	}
	*b = (*b)[:ChunkSize]
	chunkPool.Put(b)
}
