package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockID_DatasetDerivation(t *testing.T) {
	id := NewBlockID(42, 3)
	ds, ok := id.DatasetID()
	require.True(t, ok)
	assert.Equal(t, DatasetID(42), ds)
	assert.Equal(t, "dataset_42_3", id.String())

	tmp := NewTempBlockID()
	_, ok = tmp.DatasetID()
	assert.False(t, ok)
	assert.Contains(t, tmp.String(), "temp_")

	// Temp ids are unique and usable as map keys.
	assert.NotEqual(t, tmp, NewTempBlockID())
	m := map[BlockID]int{id: 1, tmp: 2}
	assert.Len(t, m, 2)
}

func TestStorageLevel_Validity(t *testing.T) {
	assert.True(t, MemoryOnly.IsValid())
	assert.True(t, DiskOnly.IsValid())
	assert.False(t, StorageLevelNone.IsValid())
	assert.False(t, StorageLevel{UseMemory: true}.IsValid(), "zero replication is invalid")
}

func TestStorageLevel_MemoryMode(t *testing.T) {
	assert.Equal(t, OnHeap, MemoryOnly.MemoryMode())
	assert.Equal(t, OffHeap, OffHeapSer.MemoryMode())
}

func TestMemoryMode_String(t *testing.T) {
	assert.Equal(t, "on-heap", OnHeap.String())
	assert.Equal(t, "off-heap", OffHeap.String())
}

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator([]any{1, 2, 3})
	assert.Equal(t, []any{1, 2, 3}, Drain(it))
	assert.False(t, it.Next())

	empty := NewSliceIterator(nil)
	assert.Nil(t, Drain(empty))
}
