package offheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFree(t *testing.T) {
	b, err := Alloc(4096)
	require.NoError(t, err)
	require.Len(t, b, 4096)

	// Mapped anonymous memory is zeroed and writable.
	for _, v := range b {
		require.Zero(t, v)
	}
	b[0] = 0xFF
	b[4095] = 0xFF

	require.NoError(t, Free(b))
}

func TestAllocZeroSize(t *testing.T) {
	b, err := Alloc(0)
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.NoError(t, Free(b))
}

func TestAllocUnalignedSize(t *testing.T) {
	// Sizes that are not page multiples still round-trip.
	b, err := Alloc(100)
	require.NoError(t, err)
	require.Len(t, b, 100)
	require.NoError(t, Free(b))
}
