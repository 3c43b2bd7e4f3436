package minio

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/codec"
	"github.com/hupe1980/blockstore/model"
	"github.com/hupe1980/blockstore/spill"
)

// Handler implements blockstore.EvictionHandler on top of a MinIO bucket.
type Handler struct {
	client  *minio.Client
	bucket  string
	prefix  string
	manager *codec.Manager
}

// NewHandler creates a Handler writing under bucket.
// rootPrefix is prepended to all keys (e.g. "blocks/").
func NewHandler(client *minio.Client, bucket, rootPrefix string, manager *codec.Manager) *Handler {
	if manager == nil {
		manager = codec.NewManager(nil, codec.CompressionNone)
	}
	return &Handler{
		client:  client,
		bucket:  bucket,
		prefix:  rootPrefix,
		manager: manager,
	}
}

func (h *Handler) key(id model.BlockID) string {
	return path.Join(h.prefix, id.String())
}

// DropFromMemory implements blockstore.EvictionHandler. The payload is
// streamed through a pipe so large blocks never need a contiguous copy.
func (h *Handler) DropFromMemory(ctx context.Context, id model.BlockID, data func() blockstore.BlockData, level model.StorageLevel) (model.StorageLevel, error) {
	if !level.UseDisk {
		return model.StorageLevelNone, nil
	}

	d := data()
	pr, pw := io.Pipe()

	go func() {
		err := spill.EncodePayload(id, d, h.manager, pw)
		_ = pw.CloseWithError(err)
	}()

	if _, err := h.client.PutObject(ctx, h.bucket, h.key(id), pr, -1, minio.PutObjectOptions{}); err != nil {
		return model.StorageLevelNone, err
	}
	return model.StorageLevel{UseDisk: true, Replication: level.Replication}, nil
}

// Contains reports whether id has been spilled.
func (h *Handler) Contains(ctx context.Context, id model.BlockID) (bool, error) {
	_, err := h.client.StatObject(ctx, h.bucket, h.key(id), minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadBlock returns the spilled payload of id as stored.
func (h *Handler) ReadBlock(ctx context.Context, id model.BlockID) ([]byte, error) {
	obj, err := h.client.GetObject(ctx, h.bucket, h.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Remove deletes the spilled payload of id, if present.
func (h *Handler) Remove(ctx context.Context, id model.BlockID) error {
	err := h.client.RemoveObject(ctx, h.bucket, h.key(id), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil
		}
	}
	return err
}
