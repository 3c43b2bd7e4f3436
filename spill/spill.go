package spill

import (
	"context"
	"io"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/codec"
	"github.com/hupe1980/blockstore/model"
)

// Discard returns a handler that drops every displaced block.
func Discard() blockstore.EvictionHandler {
	return blockstore.EvictionHandlerFunc(func(ctx context.Context, id model.BlockID, data func() blockstore.BlockData, level model.StorageLevel) (model.StorageLevel, error) {
		return model.StorageLevelNone, nil
	})
}

// diskLevel strips the in-memory component from level, keeping the block
// findable on the disk tier.
func diskLevel(level model.StorageLevel) model.StorageLevel {
	return model.StorageLevel{UseDisk: true, Replication: level.Replication}
}

// EncodePayload encodes a displaced payload to w. Serialized entries are
// copied as stored; deserialized records go through the manager's serializer
// and compression framing. Object-store handlers share this framing so a
// block spilled to any tier decodes the same way.
func EncodePayload(id model.BlockID, d blockstore.BlockData, m *codec.Manager, w io.Writer) error {
	if d.Bytes != nil {
		_, err := io.Copy(w, d.Bytes.Reader())
		return err
	}

	comp := m.WrapForCompression(id, w)
	enc := m.Serializer("", true).NewEncoder(comp)
	for _, v := range d.Values {
		if err := enc.Encode(v); err != nil {
			_ = comp.Close()
			return err
		}
	}
	return comp.Close()
}
