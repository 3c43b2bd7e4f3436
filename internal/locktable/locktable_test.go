package locktable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockstore/model"
)

func TestTable_LockNewBlockForWriting(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)

	assert.True(t, tb.LockNewBlockForWriting(id, 1))
	// Second registration of the same id fails.
	assert.False(t, tb.LockNewBlockForWriting(id, 2))

	writer, ok := tb.WriteLockedBy(id)
	require.True(t, ok)
	assert.Equal(t, model.TaskID(1), writer)
}

func TestTable_WriterExcludesReaders(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)
	require.True(t, tb.LockNewBlockForWriting(id, 1))

	assert.False(t, tb.LockForReading(id, 2, false))
	assert.False(t, tb.LockForWriting(id, 2, false))

	tb.Downgrade(id, 1)
	assert.True(t, tb.LockForReading(id, 2, false))
	assert.Equal(t, 2, tb.ReaderCount(id))

	// Readers exclude writers.
	assert.False(t, tb.LockForWriting(id, 3, false))

	assert.True(t, tb.Unlock(id, 1))
	assert.True(t, tb.Unlock(id, 2))
	assert.True(t, tb.LockForWriting(id, 3, false))
}

func TestTable_UnknownBlock(t *testing.T) {
	tb := New()
	id := model.NewBlockID(9, 9)

	assert.False(t, tb.LockForReading(id, 1, true))
	assert.False(t, tb.LockForWriting(id, 1, true))
	assert.False(t, tb.Unlock(id, 1))
}

func TestTable_BlockingReaderWaitsForWriter(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)
	require.True(t, tb.LockNewBlockForWriting(id, 1))

	acquired := make(chan bool)
	go func() {
		acquired <- tb.LockForReading(id, 2, true)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired while writer held")
	case <-time.After(20 * time.Millisecond):
	}

	tb.Downgrade(id, 1)

	select {
	case got := <-acquired:
		assert.True(t, got)
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}
}

func TestTable_UnlockWrongTask(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)
	require.True(t, tb.LockNewBlockForWriting(id, 1))
	tb.Downgrade(id, 1)

	// Task 2 holds nothing on id.
	assert.False(t, tb.Unlock(id, 2))
	assert.Equal(t, 1, tb.ReaderCount(id))
}

func TestTable_ReleaseAllForTask(t *testing.T) {
	tb := New()
	a := model.NewBlockID(1, 0)
	b := model.NewBlockID(1, 1)
	c := model.NewBlockID(1, 2)

	require.True(t, tb.LockNewBlockForWriting(a, 1))
	require.True(t, tb.LockNewBlockForWriting(b, 1))
	tb.Downgrade(b, 1)
	require.True(t, tb.LockNewBlockForWriting(c, 2))

	ids := tb.ReleaseAllForTask(1)
	assert.ElementsMatch(t, []model.BlockID{a, b}, ids)

	// Task 1's locks are gone; task 2's writer survives.
	assert.Zero(t, tb.ReaderCount(b))
	_, ok := tb.WriteLockedBy(a)
	assert.False(t, ok)
	_, ok = tb.WriteLockedBy(c)
	assert.True(t, ok)

	// Sweeping a task with no locks is a no-op.
	assert.Nil(t, tb.ReleaseAllForTask(1))
}

func TestTable_Remove(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)
	require.True(t, tb.LockNewBlockForWriting(id, 1))

	tb.Remove(id, 1)
	assert.False(t, tb.Contains(id))

	// Removing an unknown id is a no-op.
	tb.Remove(id, 1)

	// Remove without the write lock is a defect.
	require.True(t, tb.LockNewBlockForWriting(id, 1))
	tb.Downgrade(id, 1)
	assert.Panics(t, func() { tb.Remove(id, 1) })
}

func TestTable_RemoveWakesWaiters(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)
	require.True(t, tb.LockNewBlockForWriting(id, 1))

	acquired := make(chan bool)
	go func() {
		acquired <- tb.LockForReading(id, 2, true)
	}()

	time.Sleep(10 * time.Millisecond)
	tb.Remove(id, 1)

	select {
	case got := <-acquired:
		// The block vanished while waiting.
		assert.False(t, got)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestTable_MultipleReadLocksSameTask(t *testing.T) {
	tb := New()
	id := model.NewBlockID(1, 0)
	require.True(t, tb.LockNewBlockForWriting(id, 1))
	tb.Downgrade(id, 1)

	require.True(t, tb.LockForReading(id, 1, false))
	assert.Equal(t, 2, tb.ReaderCount(id))

	assert.True(t, tb.Unlock(id, 1))
	assert.Equal(t, 1, tb.ReaderCount(id))
	assert.True(t, tb.Unlock(id, 1))
	assert.Zero(t, tb.ReaderCount(id))
}
