package dirwatch

import (
	"sync/atomic"
	"unsafe"
)

// DefaultBufferSize is the capacity of a notification buffer when none is
// configured. If the watched directory lives on a network share the buffer
// must not be larger than 64KB.
const DefaultBufferSize = 4096

// MinBufferSize is the smallest capacity accepted by NewBuffer.
const MinBufferSize = 1024

const wordSize = int(unsafe.Sizeof(uint64(0)))

const (
	bufIdle int32 = iota
	bufLent
	bufReleased
)

// Buffer is a fixed-size, word-aligned region the facilities write raw
// change records into.
//
// A Buffer is lent to exactly one outstanding read at a time. While it is
// lent nothing but the facility may touch its contents, the completion
// handler reclaims it before decoding.
type Buffer struct {
	words []uint64 // keeps p 8-byte aligned and alive
	p     []byte
	state atomic.Int32
}

// NewBuffer allocates a buffer of at least size bytes. The size is raised to
// MinBufferSize and rounded up to a multiple of the word size.
func NewBuffer(size int) *Buffer {
	if size < MinBufferSize {
		size = MinBufferSize
	}
	n := (size + wordSize - 1) / wordSize
	b := &Buffer{words: make([]uint64, n)}
	b.p = unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), n*wordSize)
	return b
}

// Len gives the capacity of the buffer in bytes.
func (b *Buffer) Len() int { return len(b.p) }

// Bytes gives the underlying memory. The slice must not be accessed while
// the buffer is lent.
func (b *Buffer) Bytes() []byte { return b.p }

// InFlight reports whether the buffer is lent to an outstanding read.
func (b *Buffer) InFlight() bool { return b.state.Load() == bufLent }

func (b *Buffer) lend() error {
	if b.state.CompareAndSwap(bufIdle, bufLent) {
		return nil
	}
	if b.state.Load() == bufReleased {
		return ErrClosed
	}
	return ErrBufferInFlight
}

func (b *Buffer) reclaim() {
	b.state.CompareAndSwap(bufLent, bufIdle)
}

// release drops the memory. It panics if a read still references it, since
// the facility could write into freed memory afterwards.
func (b *Buffer) release() {
	if !b.state.CompareAndSwap(bufIdle, bufReleased) {
		if b.state.Load() == bufReleased {
			return
		}
		panic("dirwatch: releasing notification buffer with a read in flight")
	}
	b.words, b.p = nil, nil
}
