package locktable

import (
	"fmt"
	"sync"

	"github.com/hupe1980/blockstore/model"
)

// info is the lock record of one tracked block.
type info struct {
	// readers maps a task to the number of read locks it holds.
	readers map[model.TaskID]int

	writer    model.TaskID
	hasWriter bool
}

func (inf *info) readerCount() int {
	n := 0
	for _, c := range inf.readers {
		n += c
	}
	return n
}

// Table is the block lock table. A single condition variable serializes
// waiters; lock hold times are short enough that per-block queues have not
// been worth the bookkeeping.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond

	blocks map[model.BlockID]*info

	// byTask indexes the blocks each task holds at least one lock on, so
	// ReleaseAllForTask avoids a full table scan.
	byTask map[model.TaskID]map[model.BlockID]struct{}
}

// New creates an empty Table.
func New() *Table {
	t := &Table{
		blocks: make(map[model.BlockID]*info),
		byTask: make(map[model.TaskID]map[model.BlockID]struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// LockNewBlockForWriting registers id and acquires its write lock for task.
// Returns false if id is already tracked; the caller reports the duplicate.
func (t *Table) LockNewBlockForWriting(id model.BlockID, task model.TaskID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocks[id]; ok {
		return false
	}
	t.blocks[id] = &info{
		readers:   make(map[model.TaskID]int),
		writer:    task,
		hasWriter: true,
	}
	t.indexLocked(id, task)
	return true
}

// LockForWriting acquires the write lock on id for task. In blocking mode it
// waits for readers and the current writer to drain; otherwise it returns
// false immediately when contended. An unknown id always returns false.
func (t *Table) LockForWriting(id model.BlockID, task model.TaskID, blocking bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		inf, ok := t.blocks[id]
		if !ok {
			return false
		}
		if !inf.hasWriter && inf.readerCount() == 0 {
			inf.writer = task
			inf.hasWriter = true
			t.indexLocked(id, task)
			return true
		}
		if !blocking {
			return false
		}
		t.cond.Wait()
	}
}

// LockForReading acquires a read lock on id for task. Same contract as
// LockForWriting; a task may hold several read locks on the same block.
func (t *Table) LockForReading(id model.BlockID, task model.TaskID, blocking bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		inf, ok := t.blocks[id]
		if !ok {
			return false
		}
		if !inf.hasWriter {
			inf.readers[task]++
			t.indexLocked(id, task)
			return true
		}
		if !blocking {
			return false
		}
		t.cond.Wait()
	}
}

// Unlock releases one lock task holds on id (a read lock, or the write lock)
// and wakes waiters. Returns false if task holds no lock on id.
func (t *Table) Unlock(id model.BlockID, task model.TaskID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	inf, ok := t.blocks[id]
	if !ok {
		return false
	}
	if inf.hasWriter && inf.writer == task {
		inf.hasWriter = false
	} else if inf.readers[task] > 0 {
		inf.readers[task]--
		if inf.readers[task] == 0 {
			delete(inf.readers, task)
		}
	} else {
		return false
	}

	t.unindexIfFreeLocked(id, task, inf)
	t.cond.Broadcast()
	return true
}

// Downgrade converts task's write lock on id into a read lock, waking other
// readers blocked on the writer. Panics if task is not the writer; puts
// publish through this path and a missing write lock is a defect.
func (t *Table) Downgrade(id model.BlockID, task model.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inf, ok := t.blocks[id]
	if !ok || !inf.hasWriter || inf.writer != task {
		panic(fmt.Sprintf("locktable: downgrade of %s by task %d without write lock", id, task))
	}
	inf.hasWriter = false
	inf.readers[task]++
	t.cond.Broadcast()
}

// ReleaseAllForTask removes every lock task holds and returns the affected
// block ids. Invoked on task completion.
func (t *Table) ReleaseAllForTask(task model.TaskID) []model.BlockID {
	t.mu.Lock()
	defer t.mu.Unlock()

	held := t.byTask[task]
	if len(held) == 0 {
		return nil
	}

	ids := make([]model.BlockID, 0, len(held))
	for id := range held {
		inf, ok := t.blocks[id]
		if !ok {
			continue
		}
		if inf.hasWriter && inf.writer == task {
			inf.hasWriter = false
		}
		delete(inf.readers, task)
		ids = append(ids, id)
	}
	delete(t.byTask, task)
	t.cond.Broadcast()
	return ids
}

// Remove drops the lock record of id. The caller must hold the write lock;
// anything else is a defect.
func (t *Table) Remove(id model.BlockID, task model.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inf, ok := t.blocks[id]
	if !ok {
		return
	}
	if !inf.hasWriter || inf.writer != task {
		panic(fmt.Sprintf("locktable: remove of %s by task %d without write lock", id, task))
	}
	delete(t.blocks, id)
	for reader := range inf.readers {
		t.unindexLocked(id, reader)
	}
	t.unindexLocked(id, task)
	t.cond.Broadcast()
}

// Clear wipes every lock record and wakes all waiters. Shutdown path only.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.blocks = make(map[model.BlockID]*info)
	t.byTask = make(map[model.TaskID]map[model.BlockID]struct{})
	t.cond.Broadcast()
}

// Contains reports whether id has a lock record.
func (t *Table) Contains(id model.BlockID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.blocks[id]
	return ok
}

// ReaderCount returns the number of read locks held on id.
func (t *Table) ReaderCount(id model.BlockID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if inf, ok := t.blocks[id]; ok {
		return inf.readerCount()
	}
	return 0
}

// WriteLockedBy returns the writer task, if any.
func (t *Table) WriteLockedBy(id model.BlockID) (model.TaskID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if inf, ok := t.blocks[id]; ok && inf.hasWriter {
		return inf.writer, true
	}
	return 0, false
}

func (t *Table) indexLocked(id model.BlockID, task model.TaskID) {
	held, ok := t.byTask[task]
	if !ok {
		held = make(map[model.BlockID]struct{})
		t.byTask[task] = held
	}
	held[id] = struct{}{}
}

func (t *Table) unindexIfFreeLocked(id model.BlockID, task model.TaskID, inf *info) {
	if inf.readers[task] > 0 || (inf.hasWriter && inf.writer == task) {
		return
	}
	t.unindexLocked(id, task)
}

func (t *Table) unindexLocked(id model.BlockID, task model.TaskID) {
	if held, ok := t.byTask[task]; ok {
		delete(held, id)
		if len(held) == 0 {
			delete(t.byTask, task)
		}
	}
}
