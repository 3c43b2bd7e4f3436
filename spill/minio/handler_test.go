package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/model"
)

// TestHandler_Integration requires a running MinIO instance.
// Skip if not available.
func TestHandler_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-blockstore"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	h := NewHandler(client, bucket, "test-prefix/", nil)

	id := model.NewBlockID(1, 0)
	payload := []byte("hello minio spill tier")
	data := func() blockstore.BlockData {
		return blockstore.BlockData{Bytes: chunk.FromBytes(payload)}
	}

	level, err := h.DropFromMemory(ctx, id, data, model.MemoryAndDiskSer)
	require.NoError(t, err)
	assert.True(t, level.UseDisk)
	assert.False(t, level.UseMemory)

	ok, err := h.Contains(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := h.ReadBlock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, h.Remove(ctx, id))
	ok, err = h.Contains(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// Memory-only levels are never uploaded.
	level, err = h.DropFromMemory(ctx, model.NewBlockID(2, 0), data, model.MemoryOnlySer)
	require.NoError(t, err)
	assert.False(t, level.IsValid())
}
