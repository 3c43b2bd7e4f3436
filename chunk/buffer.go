package chunk

import (
	"errors"
	"io"

	"github.com/hupe1980/blockstore/internal/offheap"
	"github.com/hupe1980/blockstore/model"
)

// DefaultChunkSize is used when a Buffer is created with chunkSize <= 0.
const DefaultChunkSize = 4 * 1024 * 1024

// ErrFreed is returned when writing to or reading from a freed buffer.
var ErrFreed = errors.New("chunk: buffer already freed")

// Buffer is an append-only byte buffer split into fixed-size chunks.
// It implements io.Writer. Buffers are not safe for concurrent use;
// a published block's buffer is immutable and may be read concurrently.
type Buffer struct {
	mode      model.MemoryMode
	chunkSize int
	chunks    [][]byte
	off       int // write offset within the last chunk
	size      int64
	freed     bool
}

// NewBuffer creates an empty Buffer whose chunks are allocated in mode.
func NewBuffer(chunkSize int, mode model.MemoryMode) *Buffer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Buffer{mode: mode, chunkSize: chunkSize}
}

// FromBytes wraps b as a single-chunk on-heap Buffer without copying.
func FromBytes(b []byte) *Buffer {
	buf := &Buffer{mode: model.OnHeap, chunkSize: len(b)}
	if len(b) > 0 {
		buf.chunks = [][]byte{b}
		buf.off = len(b)
		buf.size = int64(len(b))
	}
	return buf
}

// Mode returns the memory mode the chunks are allocated in.
func (b *Buffer) Mode() model.MemoryMode {
	return b.mode
}

// Size returns the number of bytes written.
func (b *Buffer) Size() int64 {
	return b.size
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.freed {
		return 0, ErrFreed
	}

	written := 0
	for len(p) > 0 {
		if len(b.chunks) == 0 || b.off == b.chunkSize {
			c, err := b.allocChunk()
			if err != nil {
				return written, err
			}
			b.chunks = append(b.chunks, c)
			b.off = 0
		}

		last := b.chunks[len(b.chunks)-1]
		n := copy(last[b.off:], p)
		b.off += n
		b.size += int64(n)
		written += n
		p = p[n:]
	}
	return written, nil
}

func (b *Buffer) allocChunk() ([]byte, error) {
	if b.mode == model.OffHeap {
		return offheap.Alloc(b.chunkSize)
	}
	return make([]byte, b.chunkSize), nil
}

// Chunks returns the written chunks, each trimmed to its filled length.
// The returned slices alias the buffer's storage and must be treated as
// read-only; they are invalid after Free.
func (b *Buffer) Chunks() [][]byte {
	out := make([][]byte, 0, len(b.chunks))
	for i, c := range b.chunks {
		if i == len(b.chunks)-1 {
			out = append(out, c[:b.off])
		} else {
			out = append(out, c)
		}
	}
	return out
}

// Bytes copies the buffer's contents into a single on-heap slice.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.Chunks() {
		out = append(out, c...)
	}
	return out
}

// Reader returns an io.Reader over the buffer's contents. The buffer must
// not be freed while the reader is in use.
func (b *Buffer) Reader() io.Reader {
	return &reader{buf: b, chunks: b.Chunks()}
}

// Free releases off-heap chunks back to the OS. On-heap chunks are dropped
// for the GC. Free is idempotent; it returns the first unmap error.
func (b *Buffer) Free() error {
	if b.freed {
		return nil
	}
	b.freed = true

	var firstErr error
	if b.mode == model.OffHeap {
		for _, c := range b.chunks {
			if err := offheap.Free(c); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	b.chunks = nil
	b.off = 0
	return firstErr
}

type reader struct {
	buf    *Buffer
	chunks [][]byte
	idx    int
	off    int
}

// Read implements io.Reader.
func (r *reader) Read(p []byte) (int, error) {
	if r.buf.freed {
		return 0, ErrFreed
	}
	for r.idx < len(r.chunks) && r.off == len(r.chunks[r.idx]) {
		r.idx++
		r.off = 0
	}
	if r.idx >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.idx][r.off:])
	r.off += n
	return n, nil
}
