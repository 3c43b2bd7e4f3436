package s3

import (
	"context"
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/codec"
	"github.com/hupe1980/blockstore/model"
	"github.com/hupe1980/blockstore/spill"
)

// Handler implements blockstore.EvictionHandler on top of an S3 bucket.
type Handler struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	codecs   *codec.Manager
}

// NewHandler creates a Handler writing under bucket.
// rootPrefix is prepended to all keys (e.g. "blocks/").
func NewHandler(client *s3.Client, bucket, rootPrefix string, codecs *codec.Manager) *Handler {
	if codecs == nil {
		codecs = codec.NewManager(nil, codec.CompressionNone)
	}
	return &Handler{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
		codecs:   codecs,
	}
}

// New creates a Handler with a client built from the default AWS config
// chain (env, shared config, instance role).
func New(ctx context.Context, bucket, rootPrefix string, codecs *codec.Manager) (*Handler, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewHandler(s3.NewFromConfig(cfg), bucket, rootPrefix, codecs), nil
}

func (h *Handler) key(id model.BlockID) string {
	return path.Join(h.prefix, id.String())
}

// DropFromMemory implements blockstore.EvictionHandler. The payload is
// streamed to the uploader through a pipe so large blocks never need a
// contiguous copy.
func (h *Handler) DropFromMemory(ctx context.Context, id model.BlockID, data func() blockstore.BlockData, level model.StorageLevel) (model.StorageLevel, error) {
	if !level.UseDisk {
		return model.StorageLevelNone, nil
	}

	d := data()
	pr, pw := io.Pipe()

	go func() {
		err := spill.EncodePayload(id, d, h.codecs, pw)
		_ = pw.CloseWithError(err)
	}()

	_, err := h.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(id)),
		Body:   pr,
	})
	if err != nil {
		return model.StorageLevelNone, err
	}
	return model.StorageLevel{UseDisk: true, Replication: level.Replication}, nil
}

// Contains reports whether id has been spilled.
func (h *Handler) Contains(ctx context.Context, id model.BlockID) (bool, error) {
	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(id)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadBlock returns the spilled payload of id as stored.
func (h *Handler) ReadBlock(ctx context.Context, id model.BlockID) ([]byte, error) {
	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(id)),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// Remove deletes the spilled payload of id.
func (h *Handler) Remove(ctx context.Context, id model.BlockID) error {
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(id)),
	})
	return err
}
