package relay

import "sync"

// DefaultBufferSize is the per-direction read size used when none is configured
const DefaultBufferSize = 32 * 1024

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultBufferSize)
		return &b
	},
}

// getBuf returns a buffer of exactly size bytes. Only the default size is pooled.
func getBuf(size int) []byte {
	if size == DefaultBufferSize {
		return *(bufPool.Get().(*[]byte))
	}
	return make([]byte, size)
}

func putBuf(b []byte) {
	if cap(b) != DefaultBufferSize {
		return
	}
	b = b[:DefaultBufferSize]
	bufPool.Put(&b)
}
