package blockstore

import (
	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/model"
)

// PartialValues is handed back when a values unroll runs out of memory. It
// iterates the records that were materialized before the failure, then the
// untouched remainder of the input. The handle owns the unroll reservation
// accumulated so far; it is released when the iterator is exhausted or the
// handle is closed.
type PartialValues struct {
	store *Store
	task  model.TaskID
	mode  model.MemoryMode
	held  int64

	unrolled []any
	rest     model.Iterator

	pos    int
	cur    any
	closed bool
}

// Unrolled returns the records materialized before the failure.
func (p *PartialValues) Unrolled() []any { return p.unrolled }

// Held returns the unroll reservation the handle still owns, in bytes.
func (p *PartialValues) Held() int64 {
	if p.closed {
		return 0
	}
	return p.held
}

// Next implements model.Iterator.
func (p *PartialValues) Next() bool {
	if p.pos < len(p.unrolled) {
		p.cur = p.unrolled[p.pos]
		p.pos++
		return true
	}
	if p.rest != nil && p.rest.Next() {
		p.cur = p.rest.Value()
		return true
	}
	_ = p.Close()
	return false
}

// Value implements model.Iterator.
func (p *PartialValues) Value() any { return p.cur }

// Close releases the reservation without consuming the remaining records.
// Idempotent.
func (p *PartialValues) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.held > 0 {
		p.store.acct.ReleaseUnroll(p.task, p.held, p.mode)
	}
	return nil
}

// PartialBytes is the serialized-variant counterpart of PartialValues: the
// buffer holds the records encoded before the failure (with compression
// framing flushed), Rest yields the untouched remainder. Close releases the
// reservation and frees the buffer.
type PartialBytes struct {
	store *Store
	task  model.TaskID
	mode  model.MemoryMode
	held  int64

	buffer *chunk.Buffer
	rest   model.Iterator

	closed bool
}

// Buffer returns the serialized prefix. Valid until Close.
func (p *PartialBytes) Buffer() *chunk.Buffer { return p.buffer }

// Rest returns the records that were never consumed.
func (p *PartialBytes) Rest() model.Iterator { return p.rest }

// Held returns the unroll reservation the handle still owns, in bytes.
func (p *PartialBytes) Held() int64 {
	if p.closed {
		return 0
	}
	return p.held
}

// Close releases the reservation and frees the buffer. Idempotent.
func (p *PartialBytes) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.held > 0 {
		p.store.acct.ReleaseUnroll(p.task, p.held, p.mode)
	}
	if p.buffer != nil {
		return p.buffer.Free()
	}
	return nil
}
