package model

import (
	"fmt"

	"github.com/google/uuid"
)

// MemoryMode selects the pool a reservation or resident entry is accounted
// against. The two modes have fully independent accounting.
type MemoryMode uint8

const (
	// OnHeap memory lives on the Go heap and is reclaimed by the GC.
	OnHeap MemoryMode = iota
	// OffHeap memory is allocated outside the heap and must be freed explicitly.
	OffHeap
)

// String returns a string representation of the MemoryMode.
func (m MemoryMode) String() string {
	switch m {
	case OnHeap:
		return "on-heap"
	case OffHeap:
		return "off-heap"
	default:
		return fmt.Sprintf("MemoryMode(%d)", uint8(m))
	}
}

// DatasetID is the coarse identifier shared by blocks computed from the same
// logical input. Eviction uses it to refuse self-displacement; it has no other
// meaning inside the store. Zero means "no dataset".
type DatasetID uint64

// TaskID is a task-attempt identifier. Locks and unroll reservations are
// charged to it so a completed or crashed task can be swept in one call.
type TaskID int64

// DriverTask is the TaskID used for operations performed outside any task.
const DriverTask TaskID = -1

// BlockID identifies a block. It is comparable and usable as a map key.
//
// Blocks produced by partitioning a dataset carry the dataset id and a
// partition index. Ad-hoc blocks (streams, broadcast payloads) carry a
// uuid-derived name instead and belong to no dataset.
type BlockID struct {
	Dataset DatasetID
	Part    uint32
	Temp    string
}

// NewBlockID returns the id of partition part of dataset ds.
func NewBlockID(ds DatasetID, part uint32) BlockID {
	return BlockID{Dataset: ds, Part: part}
}

// NewTempBlockID returns a fresh id that belongs to no dataset.
func NewTempBlockID() BlockID {
	return BlockID{Temp: uuid.NewString()}
}

// DatasetID returns the dataset this block belongs to, if any.
func (id BlockID) DatasetID() (DatasetID, bool) {
	if id.Temp != "" || id.Dataset == 0 {
		return 0, false
	}
	return id.Dataset, true
}

// String returns a string representation of the BlockID.
func (id BlockID) String() string {
	if id.Temp != "" {
		return "temp_" + id.Temp
	}
	return fmt.Sprintf("dataset_%d_%d", id.Dataset, id.Part)
}

// StorageLevel describes where a block may live and in what form. The memory
// store reads only UseOffHeap (through MemoryMode) to pick the pool; it does
// not check UseMemory or Deserialized, and the put variant alone decides the
// entry form. The whole level is passed to the eviction handler; UseDisk and
// Replication are carried for it and for the replication layer.
type StorageLevel struct {
	UseMemory    bool
	UseDisk      bool
	UseOffHeap   bool
	Deserialized bool
	Replication  int
}

// Canonical levels.
var (
	StorageLevelNone = StorageLevel{}
	MemoryOnly       = StorageLevel{UseMemory: true, Deserialized: true, Replication: 1}
	MemoryOnlySer    = StorageLevel{UseMemory: true, Replication: 1}
	MemoryAndDisk    = StorageLevel{UseMemory: true, UseDisk: true, Deserialized: true, Replication: 1}
	MemoryAndDiskSer = StorageLevel{UseMemory: true, UseDisk: true, Replication: 1}
	DiskOnly         = StorageLevel{UseDisk: true, Replication: 1}
	OffHeapSer       = StorageLevel{UseMemory: true, UseOffHeap: true, Replication: 1}
)

// IsValid reports whether the level stores the block anywhere.
func (l StorageLevel) IsValid() bool {
	return (l.UseMemory || l.UseDisk) && l.Replication > 0
}

// MemoryMode returns the pool this level's in-memory representation uses.
func (l StorageLevel) MemoryMode() MemoryMode {
	if l.UseOffHeap {
		return OffHeap
	}
	return OnHeap
}

// String returns a string representation of the StorageLevel.
func (l StorageLevel) String() string {
	return fmt.Sprintf("StorageLevel(memory=%t, disk=%t, offheap=%t, deserialized=%t, replication=%d)",
		l.UseMemory, l.UseDisk, l.UseOffHeap, l.Deserialized, l.Replication)
}

// Iterator is a pull-based record sequence of unknown length.
//
// Next advances and reports whether a record is available; Value returns the
// current record. Producers are synchronous: Next may do CPU work but never
// suspends on I/O inside the store.
type Iterator interface {
	Next() bool
	Value() any
}

// SliceIterator iterates over an in-memory slice of records.
type SliceIterator struct {
	records []any
	pos     int
}

// NewSliceIterator creates an Iterator over records.
func NewSliceIterator(records []any) *SliceIterator {
	return &SliceIterator{records: records, pos: -1}
}

// Next implements Iterator.
func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

// Value implements Iterator.
func (it *SliceIterator) Value() any {
	return it.records[it.pos]
}

// Drain exhausts it and returns the remaining records.
func Drain(it Iterator) []any {
	var out []any
	for it.Next() {
		out = append(out, it.Value())
	}
	return out
}
