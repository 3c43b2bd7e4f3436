package blockstore

import (
	"context"

	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/model"
)

// BlockData exposes a displaced entry's payload to the eviction handler.
// Exactly one field is set, matching the entry's variant. The payload is
// valid only for the duration of the DropFromMemory call; handlers that
// persist it must copy.
type BlockData struct {
	Values []any
	Bytes  *chunk.Buffer
}

// EvictionHandler decides whether a block displaced from memory survives in
// another tier (e.g. on disk).
//
// DropFromMemory receives the payload as a thunk so handlers that discard
// the block never materialize it. The returned StorageLevel tells the store
// whether the block is still findable: a valid level keeps the lock record
// alive for readers of the other tier, an invalid one destroys it.
//
// Handlers must complete or fail definitely; they must not call back into
// the store on the eviction path, and they must not retain the payload past
// the call.
type EvictionHandler interface {
	DropFromMemory(ctx context.Context, id model.BlockID, data func() BlockData, level model.StorageLevel) (model.StorageLevel, error)
}

// EvictionHandlerFunc adapts a function to the EvictionHandler interface.
type EvictionHandlerFunc func(ctx context.Context, id model.BlockID, data func() BlockData, level model.StorageLevel) (model.StorageLevel, error)

// DropFromMemory implements EvictionHandler.
func (f EvictionHandlerFunc) DropFromMemory(ctx context.Context, id model.BlockID, data func() BlockData, level model.StorageLevel) (model.StorageLevel, error) {
	return f(ctx, id, data, level)
}

// discardHandler drops displaced blocks entirely.
type discardHandler struct{}

func (discardHandler) DropFromMemory(ctx context.Context, id model.BlockID, data func() BlockData, level model.StorageLevel) (model.StorageLevel, error) {
	return model.StorageLevelNone, nil
}
