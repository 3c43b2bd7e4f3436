package memory

import (
	"fmt"
	"sync"

	"github.com/hupe1980/blockstore/model"
)

// Config holds pool limits.
type Config struct {
	// MaxOnHeapBytes and MaxOffHeapBytes are the pool ceilings.
	MaxOnHeapBytes  int64
	MaxOffHeapBytes int64

	// StorageFraction is the share of each pool initially dedicated to
	// storage; the remainder is the execution region observed via
	// SetExecutionUsed. Defaults to 1.0.
	StorageFraction float64

	// UnrollFraction caps a pool's total unroll reservations at this share
	// of the storage region, so one task cannot starve storage. Defaults
	// to 1.0 (no cap beyond free space).
	UnrollFraction float64
}

// pool is the per-mode ledger. All counter updates take mu; the compound
// unroll-to-storage transfer holds mu across both legs.
type pool struct {
	mu sync.Mutex

	maxTotal          int64
	storageRegionSize int64
	unrollCap         int64

	storageUsed   int64
	unrollUsed    int64
	executionUsed int64

	unrollByTask map[model.TaskID]int64
}

func (p *pool) free() int64 {
	return p.maxTotal - p.storageUsed - p.unrollUsed - p.executionUsed
}

// Accountant grants and tracks byte reservations for both memory modes.
// It is pure bookkeeping: a refused acquire changes nothing.
type Accountant struct {
	onHeap  pool
	offHeap pool
}

// NewAccountant creates an Accountant with the given limits.
func NewAccountant(cfg Config) *Accountant {
	if cfg.StorageFraction <= 0 || cfg.StorageFraction > 1 {
		cfg.StorageFraction = 1.0
	}
	if cfg.UnrollFraction <= 0 || cfg.UnrollFraction > 1 {
		cfg.UnrollFraction = 1.0
	}

	a := &Accountant{}
	initPool(&a.onHeap, cfg.MaxOnHeapBytes, cfg)
	initPool(&a.offHeap, cfg.MaxOffHeapBytes, cfg)
	return a
}

func initPool(p *pool, maxTotal int64, cfg Config) {
	p.maxTotal = maxTotal
	p.storageRegionSize = int64(float64(maxTotal) * cfg.StorageFraction)
	p.unrollCap = int64(float64(p.storageRegionSize) * cfg.UnrollFraction)
	p.unrollByTask = make(map[model.TaskID]int64)
}

func (a *Accountant) pool(mode model.MemoryMode) *pool {
	if mode == model.OffHeap {
		return &a.offHeap
	}
	return &a.onHeap
}

// AcquireStorage reserves n bytes of storage credit for id. It returns false
// without side effects if the pool cannot accommodate the request.
func (a *Accountant) AcquireStorage(id model.BlockID, n int64, mode model.MemoryMode) bool {
	if n < 0 {
		panic(fmt.Sprintf("memory: negative storage acquire %d for %s", n, id))
	}
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.free() {
		return false
	}
	p.storageUsed += n
	return true
}

// AcquireUnroll reserves n bytes of unroll credit for id on behalf of task.
// Unroll competes with storage for the same free space and is additionally
// capped at the configured fraction of the storage region.
func (a *Accountant) AcquireUnroll(id model.BlockID, task model.TaskID, n int64, mode model.MemoryMode) bool {
	if n < 0 {
		panic(fmt.Sprintf("memory: negative unroll acquire %d for %s", n, id))
	}
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.free() || p.unrollUsed+n > p.unrollCap {
		return false
	}
	p.unrollUsed += n
	p.unrollByTask[task] += n
	return true
}

// ReleaseStorage returns n bytes of storage credit.
func (a *Accountant) ReleaseStorage(n int64, mode model.MemoryMode) {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()

	if n < 0 || n > p.storageUsed {
		panic(fmt.Sprintf("memory: release of %d storage bytes with %d used (%s)", n, p.storageUsed, mode))
	}
	p.storageUsed -= n
}

// ReleaseUnroll returns n bytes of unroll credit held by task.
func (a *Accountant) ReleaseUnroll(task model.TaskID, n int64, mode model.MemoryMode) {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseUnrollLocked(task, n, mode)
}

func (p *pool) releaseUnrollLocked(task model.TaskID, n int64, mode model.MemoryMode) {
	held := p.unrollByTask[task]
	if n < 0 || n > held || n > p.unrollUsed {
		panic(fmt.Sprintf("memory: release of %d unroll bytes with %d held by task %d (%s)", n, held, task, mode))
	}
	p.unrollUsed -= n
	if held == n {
		delete(p.unrollByTask, task)
	} else {
		p.unrollByTask[task] = held - n
	}
}

// ReleaseAllUnrollForTask drops every unroll reservation task holds in both
// modes and returns the total freed per mode.
func (a *Accountant) ReleaseAllUnrollForTask(task model.TaskID) (onHeap, offHeap int64) {
	onHeap = a.releaseTaskPool(&a.onHeap, task)
	offHeap = a.releaseTaskPool(&a.offHeap, task)
	return onHeap, offHeap
}

func (a *Accountant) releaseTaskPool(p *pool, task model.TaskID) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.unrollByTask[task]
	if held > 0 {
		p.unrollUsed -= held
		delete(p.unrollByTask, task)
	}
	return held
}

// TransferUnrollToStorage atomically converts held bytes of task's unroll
// credit into final bytes of storage credit for id. The pool mutex is held
// across both legs, so no observer sees a transient drop in either counter.
// Returns false, with nothing changed, if the pool cannot cover final-held.
func (a *Accountant) TransferUnrollToStorage(id model.BlockID, task model.TaskID, held, final int64, mode model.MemoryMode) bool {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()

	if final > held && final-held > p.free() {
		return false
	}
	p.releaseUnrollLocked(task, held, mode)
	p.storageUsed += final
	return true
}

// StorageUsed returns the storage bytes reserved in mode.
func (a *Accountant) StorageUsed(mode model.MemoryMode) int64 {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storageUsed
}

// UnrollUsed returns the unroll bytes reserved in mode.
func (a *Accountant) UnrollUsed(mode model.MemoryMode) int64 {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unrollUsed
}

// Usage returns the storage and unroll bytes of mode in one consistent read.
func (a *Accountant) Usage(mode model.MemoryMode) (storage, unroll int64) {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storageUsed, p.unrollUsed
}

// UnrollMemoryForTask returns the unroll bytes task holds in mode.
func (a *Accountant) UnrollMemoryForTask(task model.TaskID, mode model.MemoryMode) int64 {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unrollByTask[task]
}

// FreeMemory returns the bytes still grantable in mode.
func (a *Accountant) FreeMemory(mode model.MemoryMode) int64 {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free()
}

// MaxTotal returns the pool ceiling for mode.
func (a *Accountant) MaxTotal(mode model.MemoryMode) int64 {
	return a.pool(mode).maxTotal
}

// SetExecutionUsed records the bytes the peer execution pool currently holds
// in mode. The store only observes this value; it never modifies it.
func (a *Accountant) SetExecutionUsed(n int64, mode model.MemoryMode) {
	p := a.pool(mode)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executionUsed = n
}
