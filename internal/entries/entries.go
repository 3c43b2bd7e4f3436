package entries

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/model"
)

// Entry is a resident block payload.
type Entry interface {
	Size() int64
	Mode() model.MemoryMode
}

// Deserialized holds an ordered record sequence plus its estimated byte
// size. Deserialized entries are always on-heap.
type Deserialized struct {
	Records       []any
	EstimatedSize int64
}

// Size implements Entry.
func (e *Deserialized) Size() int64 { return e.EstimatedSize }

// Mode implements Entry.
func (e *Deserialized) Mode() model.MemoryMode { return model.OnHeap }

// Serialized holds a chunked byte buffer in either memory mode.
type Serialized struct {
	Buffer *chunk.Buffer
}

// Size implements Entry.
func (e *Serialized) Size() int64 { return e.Buffer.Size() }

// Mode implements Entry.
func (e *Serialized) Mode() model.MemoryMode { return e.Buffer.Mode() }

type node struct {
	id    model.BlockID
	ent   Entry
	level model.StorageLevel
}

// Removed describes an entry dropped from the map.
type Removed struct {
	ID    model.BlockID
	Entry Entry
	Level model.StorageLevel
}

// Map is the access-ordered block index: a hash map over a doubly-linked
// list, most-recently accessed at the front.
type Map struct {
	mu    sync.Mutex
	items map[model.BlockID]*list.Element
	order *list.List
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{
		items: make(map[model.BlockID]*list.Element),
		order: list.New(),
	}
}

// Put inserts id as the most-recently accessed entry. The facade's write
// lock discipline guarantees id is absent; a duplicate is a defect.
func (m *Map) Put(id model.BlockID, ent Entry, level model.StorageLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; ok {
		panic(fmt.Sprintf("entries: duplicate insert of %s", id))
	}
	m.items[id] = m.order.PushFront(&node{id: id, ent: ent, level: level})
}

// Get returns id's entry and promotes it to most-recently accessed.
func (m *Map) Get(id model.BlockID) (Entry, model.StorageLevel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[id]
	if !ok {
		return nil, model.StorageLevelNone, false
	}
	m.order.MoveToFront(el)
	n := el.Value.(*node)
	return n.ent, n.level, true
}

// Peek returns id's entry without touching the access order.
func (m *Map) Peek(id model.BlockID) (Entry, model.StorageLevel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[id]
	if !ok {
		return nil, model.StorageLevelNone, false
	}
	n := el.Value.(*node)
	return n.ent, n.level, true
}

// Remove drops id and returns what was resident.
func (m *Map) Remove(id model.BlockID) (Entry, model.StorageLevel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[id]
	if !ok {
		return nil, model.StorageLevelNone, false
	}
	m.order.Remove(el)
	delete(m.items, id)
	n := el.Value.(*node)
	return n.ent, n.level, true
}

// Clear drops every entry and returns them for the caller to free.
func (m *Map) Clear() []Removed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Removed, 0, len(m.items))
	for el := m.order.Back(); el != nil; el = el.Prev() {
		n := el.Value.(*node)
		out = append(out, Removed{ID: n.id, Entry: n.ent, Level: n.level})
	}
	m.items = make(map[model.BlockID]*list.Element)
	m.order.Init()
	return out
}

// Len returns the number of resident entries.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// TotalSize sums entry sizes for mode.
func (m *Map) TotalSize(mode model.MemoryMode) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, el := range m.items {
		n := el.Value.(*node)
		if n.ent.Mode() == mode {
			total += n.ent.Size()
		}
	}
	return total
}

// Scan visits entries least-recently accessed first, under the map lock,
// until visit returns false. Visit must not call back into the Map.
func (m *Map) Scan(visit func(id model.BlockID, ent Entry, level model.StorageLevel) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for el := m.order.Back(); el != nil; el = el.Prev() {
		n := el.Value.(*node)
		if !visit(n.id, n.ent, n.level) {
			return
		}
	}
}
