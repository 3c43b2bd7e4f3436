package spill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/blockstore"
	"github.com/hupe1980/blockstore/codec"
	"github.com/hupe1980/blockstore/model"
)

// DiskOptions tunes the local-disk tier.
type DiskOptions struct {
	// BytesPerSec limits spill throughput. 0 means unlimited.
	BytesPerSec int64

	// MaxConcurrent bounds concurrent spill writes. Defaults to 4.
	MaxConcurrent int64

	// Manager serializes deserialized payloads. Defaults to the JSON
	// serializer without compression.
	Manager *codec.Manager
}

// rateChunk is the largest single wait issued against the limiter; it must
// stay under the limiter burst.
const rateChunk = 256 * 1024

// DiskHandler spills displaced blocks to one file per block under a root
// directory. Writes go to a temp file first and are renamed into place, so
// readers never observe a partial block.
type DiskHandler struct {
	root    string
	manager *codec.Manager
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewDiskHandler creates a DiskHandler rooted at dir.
func NewDiskHandler(dir string, optFns ...func(*DiskOptions)) (*DiskHandler, error) {
	opts := DiskOptions{
		MaxConcurrent: 4,
		Manager:       codec.NewManager(nil, codec.CompressionNone),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spill: create root %s: %w", dir, err)
	}

	h := &DiskHandler{
		root:    dir,
		manager: opts.Manager,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
	}
	if opts.BytesPerSec > 0 {
		burst := opts.BytesPerSec
		if burst < rateChunk {
			burst = rateChunk
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.BytesPerSec), int(burst))
	}
	return h, nil
}

// DropFromMemory implements blockstore.EvictionHandler.
func (h *DiskHandler) DropFromMemory(ctx context.Context, id model.BlockID, data func() blockstore.BlockData, level model.StorageLevel) (model.StorageLevel, error) {
	if !level.UseDisk {
		return model.StorageLevelNone, nil
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return model.StorageLevelNone, err
	}
	defer h.sem.Release(1)

	if err := h.write(ctx, id, data()); err != nil {
		return model.StorageLevelNone, err
	}
	return diskLevel(level), nil
}

func (h *DiskHandler) write(ctx context.Context, id model.BlockID, d blockstore.BlockData) error {
	tmp, err := os.CreateTemp(h.root, id.String()+".tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := &limitedWriter{ctx: ctx, limiter: h.limiter, w: tmp}
	if err := EncodePayload(id, d, h.manager, w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), h.path(id))
}

// ReadBlock returns the spilled payload of id as stored on disk.
func (h *DiskHandler) ReadBlock(id model.BlockID) ([]byte, error) {
	return os.ReadFile(h.path(id))
}

// Contains reports whether id has been spilled.
func (h *DiskHandler) Contains(id model.BlockID) bool {
	_, err := os.Stat(h.path(id))
	return err == nil
}

// Remove deletes the spilled payload of id, if present.
func (h *DiskHandler) Remove(id model.BlockID) error {
	err := os.Remove(h.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (h *DiskHandler) path(id model.BlockID) string {
	return filepath.Join(h.root, id.String()+".block")
}

// limitedWriter throttles writes through a shared rate limiter, splitting
// large payloads so a single wait never exceeds the limiter burst.
type limitedWriter struct {
	ctx     context.Context
	limiter *rate.Limiter
	w       *os.File
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limiter == nil {
		return lw.w.Write(p)
	}

	written := 0
	for len(p) > 0 {
		n := len(p)
		if n > rateChunk {
			n = rateChunk
		}
		if err := lw.limiter.WaitN(lw.ctx, n); err != nil {
			return written, err
		}
		m, err := lw.w.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
