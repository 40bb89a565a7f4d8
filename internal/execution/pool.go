package execution

import (
	"bytes"
	"sync"
)

// Response bodies are read into pooled buffers to keep the order path allocation-light.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func acquireBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// releaseBuffer resets buf and returns it to the pool. Oversized buffers are dropped.
func releaseBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxResponseBytes {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// Warmup pre-allocates response buffers before the first order goes out.
func Warmup() {
	const batchSize = 16

	bufs := make([]*bytes.Buffer, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		buf := acquireBuffer()
		buf.Grow(1024)
		bufs = append(bufs, buf)
	}
	for _, buf := range bufs {
		releaseBuffer(buf)
	}
}
