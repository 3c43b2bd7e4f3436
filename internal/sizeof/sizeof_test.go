package sizeof

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
)

// within asserts got is inside ±25% of want, the tolerance the unroll
// reconciliation is designed for.
func within(t *testing.T, want, got int64, v any) {
	t.Helper()
	lo := want - want/4
	hi := want + want/4
	if got < lo || got > hi {
		t.Errorf("estimate %d outside [%d, %d] for:\n%s", got, lo, hi, spew.Sdump(v))
	}
}

func TestEstimate_Primitives(t *testing.T) {
	assert.Equal(t, int64(16+8), Estimate(int64(7)))
	assert.Equal(t, int64(16+1), Estimate(true))
	assert.Equal(t, int64(16+8), Estimate(3.14))
}

func TestEstimate_String(t *testing.T) {
	// interface header + string header + payload
	assert.Equal(t, int64(16+16+5), Estimate("hello"))
	assert.Equal(t, int64(16+16), Estimate(""))
}

func TestEstimate_Nil(t *testing.T) {
	assert.Equal(t, int64(16), Estimate(nil))
}

func TestEstimate_ByteSlice(t *testing.T) {
	v := make([]byte, 4096)
	within(t, 16+24+4096, Estimate(v), v)
}

func TestEstimate_StructWithPointers(t *testing.T) {
	type record struct {
		Key     string
		Payload []byte
		Next    *record
	}
	v := &record{Key: "k-0001", Payload: make([]byte, 1000)}
	within(t, 1100, Estimate(v), v)
}

func TestEstimate_SampledSliceExtrapolates(t *testing.T) {
	// 1000 strings of 100 bytes each; only the first 128 are walked.
	v := make([]any, 1000)
	for i := range v {
		v[i] = string(make([]byte, 100))
	}
	within(t, 1000*(16+16+100)+24, Estimate(v), "slice of 1000 strings")
}

func TestEstimate_Map(t *testing.T) {
	v := map[string]int64{"a": 1, "b": 2, "c": 3}
	got := Estimate(v)
	assert.Greater(t, got, int64(3*(17+8)))
}

func TestEstimate_CyclicGraph(t *testing.T) {
	type node struct {
		Next *node
	}
	a := &node{}
	b := &node{Next: a}
	a.Next = b

	// Must terminate and count each node once.
	got := Estimate(a)
	assert.Greater(t, got, int64(0))
	assert.Less(t, got, int64(200))
}

func TestEstimate_SharedReferenceCountedOnce(t *testing.T) {
	shared := make([]byte, 10000)
	v := [][]byte{shared, shared}

	got := Estimate(v)
	assert.Less(t, got, int64(15000), "second reference must not be re-counted")
}
