package blockstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/internal/entries"
	"github.com/hupe1980/blockstore/internal/locktable"
	"github.com/hupe1980/blockstore/internal/memory"
	"github.com/hupe1980/blockstore/internal/sizeof"
	"github.com/hupe1980/blockstore/model"
)

type ctxKey int

// evictionCtxKey tags the context handed to the eviction handler so a
// handler calling back into the store is detected.
const evictionCtxKey ctxKey = 0

// Store caches block payloads in bounded memory. Admission of a block whose
// final size is unknown goes through incremental unrolling; admission under
// pressure goes through LRU eviction that skips read-locked blocks and the
// requesting block's own dataset.
//
// All methods are safe for concurrent use.
type Store struct {
	opts  options
	acct  *memory.Accountant
	locks *locktable.Table
	index *entries.Map

	// admitMu serializes every acquire-evict-retry compound, so two putters
	// cannot each consume part of the space one eviction pass freed.
	admitMu sync.Mutex

	closed atomic.Bool
}

// New creates a Store.
func New(optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	if o.unrollGrowthFactor <= 1 {
		return nil, fmt.Errorf("blockstore: unroll growth factor %v must be > 1", o.unrollGrowthFactor)
	}
	if o.maxOnHeapBytes < 0 || o.maxOffHeapBytes < 0 {
		return nil, fmt.Errorf("blockstore: negative pool ceiling")
	}
	if o.initialUnrollThreshold <= 0 {
		return nil, fmt.Errorf("blockstore: unroll threshold %d must be positive", o.initialUnrollThreshold)
	}
	if o.unrollCheckPeriod <= 0 {
		return nil, fmt.Errorf("blockstore: unroll check period %d must be positive", o.unrollCheckPeriod)
	}

	return &Store{
		opts: o,
		acct: memory.NewAccountant(memory.Config{
			MaxOnHeapBytes:  o.maxOnHeapBytes,
			MaxOffHeapBytes: o.maxOffHeapBytes,
			StorageFraction: o.storageFraction,
			UnrollFraction:  o.unrollFraction,
		}),
		locks: locktable.New(),
		index: entries.NewMap(),
	}, nil
}

func (s *Store) guard(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if ctx.Value(evictionCtxKey) != nil {
		return ErrReentrantEviction
	}
	return nil
}

// PutBytes admits a block whose exact serialized size is known up front.
// The supplier is invoked only after the storage reservation is held. On
// refusal the store evicts once and retries; a second refusal returns
// *AdmissionRejectedError. The put publishes the block and leaves task
// holding a read lock; release it with ReleaseLock or the task sweep.
func (s *Store) PutBytes(ctx context.Context, id model.BlockID, task model.TaskID, level model.StorageLevel, size int64, data func() *chunk.Buffer) error {
	start := time.Now()
	err := s.putBytes(ctx, id, task, level, size, data)
	stored := size
	if err != nil {
		stored = 0
	}
	s.opts.metrics.RecordPut(stored, time.Since(start), err)
	s.opts.logger.LogPut(ctx, id, size, level.MemoryMode(), err)
	return err
}

func (s *Store) putBytes(ctx context.Context, id model.BlockID, task model.TaskID, level model.StorageLevel, size int64, data func() *chunk.Buffer) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("blockstore: negative size %d for %s", size, id)
	}
	mode := level.MemoryMode()

	if !s.locks.LockNewBlockForWriting(id, task) {
		return ErrDuplicateBlock
	}

	s.admitMu.Lock()
	ok, reason := s.acquireStorageLocked(ctx, id, task, size, mode)
	if ok {
		s.index.Put(id, &entries.Serialized{Buffer: data()}, level)
	}
	s.admitMu.Unlock()

	if !ok {
		s.locks.Remove(id, task)
		return &AdmissionRejectedError{ID: id, Reason: reason}
	}

	s.locks.Downgrade(id, task)
	return nil
}

// PutIteratorAsValues incrementally materializes records into a deserialized
// on-heap entry. On success it returns the stored size. On admission failure
// it returns a PartialValues handle that recovers the records, together with
// *AdmissionRejectedError.
func (s *Store) PutIteratorAsValues(ctx context.Context, id model.BlockID, task model.TaskID, level model.StorageLevel, records model.Iterator) (int64, *PartialValues, error) {
	start := time.Now()
	size, partial, err := s.putIteratorAsValues(ctx, id, task, level, records)
	s.opts.metrics.RecordPut(size, time.Since(start), err)
	s.opts.logger.LogPut(ctx, id, size, model.OnHeap, err)
	return size, partial, err
}

func (s *Store) putIteratorAsValues(ctx context.Context, id model.BlockID, task model.TaskID, level model.StorageLevel, records model.Iterator) (int64, *PartialValues, error) {
	if err := s.guard(ctx); err != nil {
		return 0, nil, err
	}
	if !s.locks.LockNewBlockForWriting(id, task) {
		return 0, nil, ErrDuplicateBlock
	}

	held := s.opts.initialUnrollThreshold
	ok, reason := s.acquireUnrollEvicting(ctx, id, task, held, model.OnHeap)
	if !ok {
		s.locks.Remove(id, task)
		partial := &PartialValues{store: s, task: task, mode: model.OnHeap, rest: records}
		return 0, partial, &AdmissionRejectedError{ID: id, Reason: reason}
	}

	var (
		buf           []any
		est           int64
		count         int
		keepUnrolling = true
	)
	for keepUnrolling && records.Next() {
		v := records.Value()
		buf = append(buf, v)
		est += sizeof.Estimate(v)
		count++

		if count%s.opts.unrollCheckPeriod == 0 && est >= held {
			request := int64(float64(est)*s.opts.unrollGrowthFactor) - held
			if ok, reason = s.acquireUnrollEvicting(ctx, id, task, request, model.OnHeap); !ok {
				keepUnrolling = false
				break
			}
			held += request
		}
	}

	if keepUnrolling {
		final := est
		if final > held {
			// One last acquire for the exact shortfall the estimator missed.
			if ok, reason = s.acquireUnrollEvicting(ctx, id, task, final-held, model.OnHeap); ok {
				held = final
			} else {
				keepUnrolling = false
			}
		}
		if keepUnrolling && s.promote(id, task, held, final, model.OnHeap, &entries.Deserialized{Records: buf, EstimatedSize: final}, level) {
			s.locks.Downgrade(id, task)
			return final, nil, nil
		}
	}

	s.locks.Remove(id, task)
	s.opts.logger.LogPartialUnroll(ctx, id, len(buf), held, model.OnHeap)
	if reason == 0 {
		reason = RejectInsufficientMemory
	}
	partial := &PartialValues{store: s, task: task, mode: model.OnHeap, held: held, unrolled: buf, rest: records}
	return 0, partial, &AdmissionRejectedError{ID: id, Reason: reason}
}

// PutIteratorAsBytes incrementally serializes records into a chunked buffer
// in the given memory mode, going through the configured serializer and
// compression framing. Contract mirrors PutIteratorAsValues.
func (s *Store) PutIteratorAsBytes(ctx context.Context, id model.BlockID, task model.TaskID, level model.StorageLevel, mode model.MemoryMode, records model.Iterator) (int64, *PartialBytes, error) {
	start := time.Now()
	size, partial, err := s.putIteratorAsBytes(ctx, id, task, level, mode, records)
	s.opts.metrics.RecordPut(size, time.Since(start), err)
	s.opts.logger.LogPut(ctx, id, size, mode, err)
	return size, partial, err
}

func (s *Store) putIteratorAsBytes(ctx context.Context, id model.BlockID, task model.TaskID, level model.StorageLevel, mode model.MemoryMode, records model.Iterator) (int64, *PartialBytes, error) {
	if err := s.guard(ctx); err != nil {
		return 0, nil, err
	}
	if !s.locks.LockNewBlockForWriting(id, task) {
		return 0, nil, ErrDuplicateBlock
	}

	held := s.opts.initialUnrollThreshold
	ok, reason := s.acquireUnrollEvicting(ctx, id, task, held, mode)
	if !ok {
		s.locks.Remove(id, task)
		partial := &PartialBytes{store: s, task: task, mode: mode, rest: records}
		return 0, partial, &AdmissionRejectedError{ID: id, Reason: reason}
	}

	buffer := chunk.NewBuffer(s.opts.chunkSize, mode)
	comp := s.opts.manager.WrapForCompression(id, buffer)
	enc := s.opts.manager.Serializer("", true).NewEncoder(comp)

	abort := func(cause error) (int64, *PartialBytes, error) {
		s.acct.ReleaseUnroll(task, held, mode)
		_ = buffer.Free()
		s.locks.Remove(id, task)
		return 0, nil, fmt.Errorf("serialize block %s: %w", id, cause)
	}

	keepUnrolling := true
	count := 0
	for keepUnrolling && records.Next() {
		if err := enc.Encode(records.Value()); err != nil {
			return abort(err)
		}
		count++
		if sz := buffer.Size(); sz >= held {
			request := int64(float64(sz)*s.opts.unrollGrowthFactor) - held
			if ok, reason = s.acquireUnrollEvicting(ctx, id, task, request, mode); !ok {
				keepUnrolling = false
				break
			}
			held += request
		}
	}

	if keepUnrolling {
		if err := comp.Close(); err != nil {
			return abort(err)
		}
		final := buffer.Size()
		if final > held {
			// The flushed framing may exceed the reservation; one final
			// acquire for the exact shortfall.
			if ok, reason = s.acquireUnrollEvicting(ctx, id, task, final-held, mode); ok {
				held = final
			} else {
				keepUnrolling = false
			}
		}
		if keepUnrolling && s.promote(id, task, held, final, mode, &entries.Serialized{Buffer: buffer}, level) {
			s.locks.Downgrade(id, task)
			return final, nil, nil
		}
	} else {
		// Flush what was encoded so the partial prefix is decodable.
		_ = comp.Close()
	}

	s.locks.Remove(id, task)
	s.opts.logger.LogPartialUnroll(ctx, id, count, held, mode)
	if reason == 0 {
		reason = RejectInsufficientMemory
	}
	partial := &PartialBytes{store: s, task: task, mode: mode, held: held, buffer: buffer, rest: records}
	return 0, partial, &AdmissionRejectedError{ID: id, Reason: reason}
}

// promote converts the unroll reservation into storage credit and publishes
// the entry. The accountant holds its pool mutex across both legs of the
// transfer; admitMu keeps the insert within the same admission compound.
func (s *Store) promote(id model.BlockID, task model.TaskID, held, final int64, mode model.MemoryMode, ent entries.Entry, level model.StorageLevel) bool {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if !s.acct.TransferUnrollToStorage(id, task, held, final, mode) {
		return false
	}
	s.index.Put(id, ent, level)
	return true
}

// acquireStorageLocked tries a storage reservation, evicting once and
// retrying on refusal. Caller must hold admitMu.
func (s *Store) acquireStorageLocked(ctx context.Context, id model.BlockID, task model.TaskID, n int64, mode model.MemoryMode) (bool, RejectReason) {
	if s.acct.AcquireStorage(id, n, mode) {
		return true, 0
	}
	if n > s.acct.MaxTotal(mode) {
		return false, RejectInsufficientMemory
	}

	skipped := int64(0)
	if needed := n - s.acct.FreeMemory(mode); needed > 0 {
		_, skipped = s.evictBlocksToFreeSpace(ctx, &id, task, needed, mode)
	}
	if s.acct.AcquireStorage(id, n, mode) {
		return true, 0
	}
	if skipped > 0 {
		return false, RejectEvictionForbidden
	}
	return false, RejectInsufficientMemory
}

// acquireUnrollEvicting is the unroll-side twin of acquireStorageLocked; it
// manages admitMu itself because unroll acquires happen between records,
// outside any admission compound.
func (s *Store) acquireUnrollEvicting(ctx context.Context, id model.BlockID, task model.TaskID, n int64, mode model.MemoryMode) (bool, RejectReason) {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if s.acct.AcquireUnroll(id, task, n, mode) {
		return true, 0
	}
	if n > s.acct.MaxTotal(mode) {
		return false, RejectInsufficientMemory
	}

	skipped := int64(0)
	if needed := n - s.acct.FreeMemory(mode); needed > 0 {
		_, skipped = s.evictBlocksToFreeSpace(ctx, &id, task, needed, mode)
	}
	if s.acct.AcquireUnroll(id, task, n, mode) {
		return true, 0
	}
	if skipped > 0 {
		return false, RejectEvictionForbidden
	}
	return false, RejectInsufficientMemory
}

type evictCandidate struct {
	id    model.BlockID
	ent   entries.Entry
	level model.StorageLevel
}

// evictBlocksToFreeSpace scans the index least-recently-accessed first and
// drops enough unlocked, other-dataset blocks of the given mode to free
// needed bytes. All-or-nothing: if the candidates cannot cover the request,
// nothing is evicted. Caller must hold admitMu.
func (s *Store) evictBlocksToFreeSpace(ctx context.Context, requesting *model.BlockID, task model.TaskID, needed int64, mode model.MemoryMode) (freed int64, skippedDataset int64) {
	var excluded model.DatasetID
	var hasExcluded bool
	if requesting != nil {
		excluded, hasExcluded = requesting.DatasetID()
	}

	var cands []evictCandidate
	var selected int64
	s.index.Scan(func(id model.BlockID, ent entries.Entry, level model.StorageLevel) bool {
		if ent.Mode() != mode {
			return true
		}
		if hasExcluded {
			if ds, ok := id.DatasetID(); ok && ds == excluded {
				skippedDataset += ent.Size()
				return true
			}
		}
		if s.locks.LockForWriting(id, task, false) {
			cands = append(cands, evictCandidate{id: id, ent: ent, level: level})
			selected += ent.Size()
		}
		return selected < needed
	})

	if selected < needed {
		for _, c := range cands {
			s.locks.Unlock(c.id, task)
		}
		return 0, skippedDataset
	}

	dropped := 0
	for i, c := range cands {
		newLevel, err := s.dropBlock(ctx, c)
		if err != nil {
			// Blocks already dropped stay dropped; the rest remain resident.
			for _, rest := range cands[i:] {
				s.locks.Unlock(rest.id, task)
			}
			s.opts.logger.WarnContext(ctx, "eviction handler failed",
				"block", c.id.String(), "error", err)
			break
		}
		freed += c.ent.Size()
		dropped++
		if newLevel.IsValid() {
			s.locks.Unlock(c.id, task)
		} else {
			s.locks.Remove(c.id, task)
		}
		s.opts.logger.LogDropped(ctx, c.id, c.ent.Size(), newLevel)
	}
	if dropped > 0 {
		s.opts.metrics.RecordEviction(dropped, freed)
		s.opts.logger.LogEviction(ctx, dropped, freed, mode)
	}
	return freed, skippedDataset
}

func (s *Store) dropBlock(ctx context.Context, c evictCandidate) (model.StorageLevel, error) {
	data := func() BlockData {
		switch e := c.ent.(type) {
		case *entries.Deserialized:
			return BlockData{Values: e.Records}
		case *entries.Serialized:
			return BlockData{Bytes: e.Buffer}
		default:
			return BlockData{}
		}
	}

	ectx := context.WithValue(ctx, evictionCtxKey, c.id)
	newLevel, err := s.opts.handler.DropFromMemory(ectx, c.id, data, c.level)
	if err != nil {
		return model.StorageLevelNone, err
	}

	s.index.Remove(c.id)
	s.acct.ReleaseStorage(c.ent.Size(), c.ent.Mode())
	if ser, ok := c.ent.(*entries.Serialized); ok {
		_ = ser.Buffer.Free()
	}
	return newLevel, nil
}

// BytesResult is a published serialized block held under a read lock.
// Close releases the lock; until then the block cannot be evicted.
type BytesResult struct {
	Bytes *chunk.Buffer

	store *Store
	id    model.BlockID
	task  model.TaskID
	once  sync.Once
}

// Size returns the payload size in bytes.
func (r *BytesResult) Size() int64 { return r.Bytes.Size() }

// Close releases the read lock. Idempotent.
func (r *BytesResult) Close() error {
	r.once.Do(func() { r.store.locks.Unlock(r.id, r.task) })
	return nil
}

// ValuesResult iterates a published deserialized block under a read lock.
// Close releases the lock; until then the block cannot be evicted.
type ValuesResult struct {
	store *Store
	id    model.BlockID
	task  model.TaskID
	once  sync.Once

	records []any
	pos     int
	cur     any
}

// Next implements model.Iterator.
func (r *ValuesResult) Next() bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.cur = r.records[r.pos]
	r.pos++
	return true
}

// Value implements model.Iterator.
func (r *ValuesResult) Value() any { return r.cur }

// Close releases the read lock. Idempotent.
func (r *ValuesResult) Close() error {
	r.once.Do(func() { r.store.locks.Unlock(r.id, r.task) })
	return nil
}

// GetBytes returns the serialized payload of id under a read lock, blocking
// while a writer publishes. The access promotes id in the eviction order.
// Returns ErrUnknownBlock for absent blocks and *WrongVariantError for
// deserialized entries.
func (s *Store) GetBytes(ctx context.Context, id model.BlockID, task model.TaskID) (*BytesResult, error) {
	start := time.Now()
	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	if !s.locks.LockForReading(id, task, true) {
		s.opts.metrics.RecordGet(false, time.Since(start))
		return nil, ErrUnknownBlock
	}
	ent, _, ok := s.index.Get(id)
	if !ok {
		s.locks.Unlock(id, task)
		s.opts.metrics.RecordGet(false, time.Since(start))
		return nil, ErrUnknownBlock
	}
	ser, ok := ent.(*entries.Serialized)
	if !ok {
		s.locks.Unlock(id, task)
		s.opts.metrics.RecordGet(false, time.Since(start))
		return nil, &WrongVariantError{ID: id, Want: "serialized", Got: "deserialized"}
	}

	s.opts.metrics.RecordGet(true, time.Since(start))
	return &BytesResult{Bytes: ser.Buffer, store: s, id: id, task: task}, nil
}

// GetValues is the deserialized counterpart of GetBytes.
func (s *Store) GetValues(ctx context.Context, id model.BlockID, task model.TaskID) (*ValuesResult, error) {
	start := time.Now()
	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	if !s.locks.LockForReading(id, task, true) {
		s.opts.metrics.RecordGet(false, time.Since(start))
		return nil, ErrUnknownBlock
	}
	ent, _, ok := s.index.Get(id)
	if !ok {
		s.locks.Unlock(id, task)
		s.opts.metrics.RecordGet(false, time.Since(start))
		return nil, ErrUnknownBlock
	}
	des, ok := ent.(*entries.Deserialized)
	if !ok {
		s.locks.Unlock(id, task)
		s.opts.metrics.RecordGet(false, time.Since(start))
		return nil, &WrongVariantError{ID: id, Want: "deserialized", Got: "serialized"}
	}

	s.opts.metrics.RecordGet(true, time.Since(start))
	return &ValuesResult{store: s, id: id, task: task, records: des.Records}, nil
}

// Contains reports whether id is resident, without promoting it in the
// access order.
func (s *Store) Contains(id model.BlockID) bool {
	_, _, ok := s.index.Peek(id)
	return ok
}

// Remove drops id under a write lock, releasing its storage reservation and
// destroying its lock record. Returns false, without error, if id is absent.
func (s *Store) Remove(ctx context.Context, id model.BlockID, task model.TaskID) (bool, error) {
	if err := s.guard(ctx); err != nil {
		return false, err
	}

	if !s.locks.LockForWriting(id, task, true) {
		s.opts.metrics.RecordRemove(false)
		return false, nil
	}
	ent, _, ok := s.index.Remove(id)
	if ok {
		s.acct.ReleaseStorage(ent.Size(), ent.Mode())
		if ser, isSer := ent.(*entries.Serialized); isSer {
			_ = ser.Buffer.Free()
		}
	}
	s.locks.Remove(id, task)
	s.opts.metrics.RecordRemove(ok)
	return ok, nil
}

// ReleaseLock releases the read lock a Get or a publishing put left task
// holding on id.
func (s *Store) ReleaseLock(id model.BlockID, task model.TaskID) bool {
	return s.locks.Unlock(id, task)
}

// ReleaseAllLocksForTask sweeps every lock and unroll reservation task still
// holds. Invoked on task completion; returns the block ids whose locks were
// released.
func (s *Store) ReleaseAllLocksForTask(task model.TaskID) []model.BlockID {
	ids := s.locks.ReleaseAllForTask(task)
	s.acct.ReleaseAllUnrollForTask(task)
	return ids
}

// Clear removes every entry and releases all reservations.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.clearAll()
	return nil
}

func (s *Store) clearAll() {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	for _, r := range s.index.Clear() {
		s.acct.ReleaseStorage(r.Entry.Size(), r.Entry.Mode())
		if ser, ok := r.Entry.(*entries.Serialized); ok {
			_ = ser.Buffer.Free()
		}
	}
	s.locks.Clear()
}

// Close clears the store and rejects further operations.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.clearAll()
	return nil
}

// MemoryUsed returns the storage bytes reserved in mode.
func (s *Store) MemoryUsed(mode model.MemoryMode) int64 {
	return s.acct.StorageUsed(mode)
}

// UnrollMemoryUsed returns the unroll bytes reserved in mode.
func (s *Store) UnrollMemoryUsed(mode model.MemoryMode) int64 {
	return s.acct.UnrollUsed(mode)
}

// Usage returns the storage and unroll bytes reserved in mode as one
// consistent snapshot.
func (s *Store) Usage(mode model.MemoryMode) (storage, unroll int64) {
	return s.acct.Usage(mode)
}

// UnrollMemoryForTask returns the unroll bytes task holds in mode.
func (s *Store) UnrollMemoryForTask(task model.TaskID, mode model.MemoryMode) int64 {
	return s.acct.UnrollMemoryForTask(task, mode)
}

// MaxMemory returns the pool ceiling for mode.
func (s *Store) MaxMemory(mode model.MemoryMode) int64 {
	return s.acct.MaxTotal(mode)
}

// SetExecutionUsed records the bytes the peer execution pool holds in mode;
// the store only observes this value when granting reservations.
func (s *Store) SetExecutionUsed(n int64, mode model.MemoryMode) {
	s.acct.SetExecutionUsed(n, mode)
}

// Len returns the number of resident blocks.
func (s *Store) Len() int {
	return s.index.Len()
}
