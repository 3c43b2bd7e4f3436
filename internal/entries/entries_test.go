package entries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/model"
)

func deser(size int64) *Deserialized {
	return &Deserialized{Records: []any{"x"}, EstimatedSize: size}
}

func scanIDs(m *Map) []model.BlockID {
	var ids []model.BlockID
	m.Scan(func(id model.BlockID, ent Entry, level model.StorageLevel) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func TestMap_AccessOrderPromotion(t *testing.T) {
	m := NewMap()
	a := model.NewBlockID(1, 0)
	b := model.NewBlockID(1, 1)
	c := model.NewBlockID(1, 2)

	m.Put(a, deser(10), model.MemoryOnly)
	m.Put(b, deser(20), model.MemoryOnly)
	m.Put(c, deser(30), model.MemoryOnly)

	// Least-recently accessed first.
	assert.Equal(t, []model.BlockID{a, b, c}, scanIDs(m))

	// Get promotes to most-recently accessed.
	_, _, ok := m.Get(a)
	require.True(t, ok)
	assert.Equal(t, []model.BlockID{b, c, a}, scanIDs(m))

	// Peek does not.
	_, _, ok = m.Peek(b)
	require.True(t, ok)
	assert.Equal(t, []model.BlockID{b, c, a}, scanIDs(m))
}

func TestMap_RemoveAndLen(t *testing.T) {
	m := NewMap()
	a := model.NewBlockID(1, 0)

	m.Put(a, deser(10), model.MemoryOnly)
	assert.Equal(t, 1, m.Len())

	ent, level, ok := m.Remove(a)
	require.True(t, ok)
	assert.Equal(t, int64(10), ent.Size())
	assert.Equal(t, model.MemoryOnly, level)
	assert.Zero(t, m.Len())

	_, _, ok = m.Remove(a)
	assert.False(t, ok)
}

func TestMap_DuplicatePutPanics(t *testing.T) {
	m := NewMap()
	a := model.NewBlockID(1, 0)
	m.Put(a, deser(10), model.MemoryOnly)
	assert.Panics(t, func() { m.Put(a, deser(10), model.MemoryOnly) })
}

func TestMap_TotalSizePerMode(t *testing.T) {
	m := NewMap()
	m.Put(model.NewBlockID(1, 0), deser(10), model.MemoryOnly)
	m.Put(model.NewBlockID(1, 1), deser(20), model.MemoryOnly)

	buf := chunk.NewBuffer(16, model.OnHeap)
	_, err := buf.Write(make([]byte, 40))
	require.NoError(t, err)
	m.Put(model.NewBlockID(1, 2), &Serialized{Buffer: buf}, model.MemoryOnlySer)

	assert.Equal(t, int64(70), m.TotalSize(model.OnHeap))
	assert.Zero(t, m.TotalSize(model.OffHeap))
}

func TestMap_Clear(t *testing.T) {
	m := NewMap()
	m.Put(model.NewBlockID(1, 0), deser(10), model.MemoryOnly)
	m.Put(model.NewBlockID(1, 1), deser(20), model.MemoryOnly)

	removed := m.Clear()
	assert.Len(t, removed, 2)
	assert.Zero(t, m.Len())
	assert.Empty(t, scanIDs(m))
}

func TestMap_ScanStopsEarly(t *testing.T) {
	m := NewMap()
	for i := uint32(0); i < 5; i++ {
		m.Put(model.NewBlockID(1, i), deser(10), model.MemoryOnly)
	}

	visited := 0
	m.Scan(func(model.BlockID, Entry, model.StorageLevel) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}
