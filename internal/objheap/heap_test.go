package objheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArrayAndElementAccess(t *testing.T) {
	h := New()
	ref, err := h.NewArray(KindIntArray, 10)
	require.NoError(t, err)

	arr, ok := h.GetArray(ref)
	require.True(t, ok)
	assert.Equal(t, 10, arr.Length())

	for i := 0; i < 10; i++ {
		require.NoError(t, arr.SetElem(i, uint64(i*i)))
	}
	sum := uint64(0)
	for i := 0; i < 10; i++ {
		v, err := arr.GetElem(i)
		require.NoError(t, err)
		sum += v
	}
	assert.Equal(t, uint64(285), sum) // scenario 5 from spec.md §8
}

func TestArrayOutOfBounds(t *testing.T) {
	h := New()
	ref, err := h.NewArray(KindByteArray, 4)
	require.NoError(t, err)
	arr, _ := h.GetArray(ref)

	_, err = arr.GetElem(4)
	assert.Error(t, err)
	assert.Error(t, arr.SetElem(-1, 0))
}

func TestLiveByteAccountingTracksAllocations(t *testing.T) {
	h := New()
	before := h.LiveBytes()
	_, err := h.NewArray(KindByteArray, 1024)
	require.NoError(t, err)
	assert.Greater(t, h.LiveBytes(), before)
	assert.Equal(t, 1, h.AllocationCount())
}

func TestIsAllocationFiltersPrimitives(t *testing.T) {
	h := New()
	ref, err := h.NewArray(KindIntArray, 1)
	require.NoError(t, err)
	assert.True(t, h.IsAllocation(ref))
	assert.False(t, h.IsAllocation(999999))
}

func TestStringBearingCharArrayLength(t *testing.T) {
	s := "hello"
	arr := &Array{ElemKind: KindCharArray, Count: len(s), String: &s}
	assert.Equal(t, 5, arr.Length())
	assert.Equal(t, "hello", arr.StringValue())
}
