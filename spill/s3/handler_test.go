package s3

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/model"
)

func TestIntegration_Handler(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	prefix := fmt.Sprintf("test-blockstore-%d/", time.Now().UnixNano())
	h := NewHandler(s3.NewFromConfig(cfg), bucket, prefix, nil)

	id := model.NewBlockID(1, 0)
	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := func() blockstore.BlockData {
		return blockstore.BlockData{Bytes: chunk.FromBytes(payload)}
	}

	level, err := h.DropFromMemory(ctx, id, data, model.MemoryAndDiskSer)
	require.NoError(t, err)
	assert.True(t, level.UseDisk)

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
}
