package spill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/codec"
	"github.com/hupe1980/blockstore/model"
)

func bytesData(payload []byte) func() blockstore.BlockData {
	return func() blockstore.BlockData {
		return blockstore.BlockData{Bytes: chunk.FromBytes(payload)}
	}
}

func TestDiscard(t *testing.T) {
	h := Discard()
	level, err := h.DropFromMemory(context.Background(), model.NewBlockID(1, 0), bytesData([]byte("x")), model.MemoryAndDiskSer)
	require.NoError(t, err)
	assert.False(t, level.IsValid())
}

func TestDiskHandler_SpillsSerialized(t *testing.T) {
	h, err := NewDiskHandler(t.TempDir())
	require.NoError(t, err)

	id := model.NewBlockID(1, 0)
	payload := []byte("serialized block payload")

	level, err := h.DropFromMemory(context.Background(), id, bytesData(payload), model.MemoryAndDiskSer)
	require.NoError(t, err)
	assert.True(t, level.IsValid())
	assert.True(t, level.UseDisk)
	assert.False(t, level.UseMemory)

	require.True(t, h.Contains(id))
	got, err := h.ReadBlock(id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, h.Remove(id))
	assert.False(t, h.Contains(id))
	require.NoError(t, h.Remove(id))
}

func TestDiskHandler_SpillsValues(t *testing.T) {
	manager := codec.NewManager(nil, codec.CompressionZSTD)
	h, err := NewDiskHandler(t.TempDir(), func(o *DiskOptions) {
		o.Manager = manager
	})
	require.NoError(t, err)

	id := model.NewBlockID(1, 0)
	data := func() blockstore.BlockData {
		return blockstore.BlockData{Values: []any{"r1", "r2"}}
	}

	level, err := h.DropFromMemory(context.Background(), id, data, model.MemoryAndDisk)
	require.NoError(t, err)
	assert.True(t, level.UseDisk)
	require.True(t, h.Contains(id))

	raw, err := h.ReadBlock(id)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestDiskHandler_MemoryOnlyLevelIsDropped(t *testing.T) {
	h, err := NewDiskHandler(t.TempDir())
	require.NoError(t, err)

	id := model.NewBlockID(1, 0)
	level, err := h.DropFromMemory(context.Background(), id, bytesData([]byte("x")), model.MemoryOnlySer)
	require.NoError(t, err)
	assert.False(t, level.IsValid())
	assert.False(t, h.Contains(id))
}

func TestDiskHandler_RateLimited(t *testing.T) {
	h, err := NewDiskHandler(t.TempDir(), func(o *DiskOptions) {
		o.BytesPerSec = 1 << 30
	})
	require.NoError(t, err)

	id := model.NewBlockID(1, 0)
	payload := make([]byte, 1<<20)
	_, err = h.DropFromMemory(context.Background(), id, bytesData(payload), model.MemoryAndDiskSer)
	require.NoError(t, err)

	got, err := h.ReadBlock(id)
	require.NoError(t, err)
	assert.Len(t, got, len(payload))
}

func TestDiskHandler_StoreIntegration(t *testing.T) {
	h, err := NewDiskHandler(t.TempDir())
	require.NoError(t, err)

	s, err := blockstore.New(
		blockstore.WithMaxOnHeapBytes(1000),
		blockstore.WithEvictionHandler(h),
	)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	b1 := model.NewBlockID(1, 0)
	b2 := model.NewBlockID(2, 0)

	put := func(id model.BlockID, size int64) error {
		err := s.PutBytes(ctx, id, 1, model.MemoryAndDiskSer, size, func() *chunk.Buffer {
			return chunk.FromBytes(make([]byte, size))
		})
		if err == nil {
			s.ReleaseLock(id, 1)
		}
		return err
	}

	require.NoError(t, put(b1, 900))
	require.NoError(t, put(b2, 900))

	// b1 was displaced to the disk tier.
	assert.False(t, s.Contains(b1))
	assert.True(t, h.Contains(b1))
	assert.True(t, s.Contains(b2))

	got, err := h.ReadBlock(b1)
	require.NoError(t, err)
	assert.Len(t, got, 900)
}
