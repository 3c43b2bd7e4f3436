package chunk

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockstore/model"
)

func TestBuffer_WriteAcrossChunks(t *testing.T) {
	b := NewBuffer(8, model.OnHeap)

	payload := []byte("0123456789abcdefghij") // 20 bytes over 8-byte chunks
	n, err := b.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, int64(20), b.Size())

	chunks := b.Chunks()
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 8)
	assert.Len(t, chunks[1], 8)
	assert.Len(t, chunks[2], 4)

	assert.Equal(t, payload, b.Bytes())
}

func TestBuffer_ReaderRoundTrip(t *testing.T) {
	b := NewBuffer(4, model.OnHeap)
	payload := []byte("hello chunked world")
	_, err := b.Write(payload)
	require.NoError(t, err)

	got, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBuffer_Empty(t *testing.T) {
	b := NewBuffer(8, model.OnHeap)
	assert.Zero(t, b.Size())
	assert.Empty(t, b.Chunks())

	got, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuffer_FromBytes(t *testing.T) {
	payload := []byte("as-is")
	b := FromBytes(payload)

	assert.Equal(t, int64(5), b.Size())
	assert.Equal(t, model.OnHeap, b.Mode())
	require.Len(t, b.Chunks(), 1)
	assert.True(t, bytes.Equal(payload, b.Chunks()[0]))
}

func TestBuffer_FreeIsIdempotent(t *testing.T) {
	b := NewBuffer(8, model.OnHeap)
	_, err := b.Write([]byte("data"))
	require.NoError(t, err)

	require.NoError(t, b.Free())
	require.NoError(t, b.Free())

	_, err = b.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrFreed)

	_, err = b.Reader().Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrFreed)
}

func TestBuffer_OffHeapRoundTrip(t *testing.T) {
	b := NewBuffer(4096, model.OffHeap)
	payload := bytes.Repeat([]byte{0xAB}, 10000)

	_, err := b.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, model.OffHeap, b.Mode())

	got, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, b.Free())
}

func TestBuffer_DefaultChunkSize(t *testing.T) {
	b := NewBuffer(0, model.OnHeap)
	_, err := b.Write([]byte("x"))
	require.NoError(t, err)
	require.Len(t, b.Chunks(), 1)
}
