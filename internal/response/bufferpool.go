package response

import "sync"

const copyBufferSize = 32 * 1024

// copyBuffers holds the buffers used to stream file bodies to the socket
var copyBuffers = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

func getBuffer() *[]byte {
	return copyBuffers.Get().(*[]byte)
}

func putBuffer(buf *[]byte) {
	if cap(*buf) != copyBufferSize {
		return
	}
	*buf = (*buf)[:copyBufferSize]
	copyBuffers.Put(buf)
}
