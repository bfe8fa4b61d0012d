package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jvmgo/internal/classfile"
	"jvmgo/internal/frame"
	"jvmgo/internal/objheap"
)

func stubMethod() classfile.MethodInfo {
	return classfile.MethodInfo{Code: &classfile.CodeAttribute{MaxLocals: 0, MaxStack: 4}}
}

func TestCollectReclaimsUnreachableRetainsReachable(t *testing.T) {
	h := objheap.New()
	stack := frame.NewStack()

	// retained: referenced from a live operand-stack slot
	retained, err := h.NewArray(objheap.KindByteArray, 8)
	require.NoError(t, err)

	f := &frame.Frame{Method: &methodStub, BP: 0}
	stack.Push(f)
	stack.Push1(f, retained)

	// garbage: allocated, then nothing references it
	_, err = h.NewArray(objheap.KindByteArray, 8)
	require.NoError(t, err)

	assert.Equal(t, 2, h.AllocationCount())

	c := New(Roots{Heap: h, Frames: stack})
	c.Collect()

	assert.Equal(t, 1, h.AllocationCount())
	assert.True(t, h.IsAllocation(retained))
}

func TestMaybeCollectRespectsDisabledFlag(t *testing.T) {
	h := objheap.New()
	c := New(Roots{Heap: h})
	c.SetDisabled(true)

	// Force liveBytes above threshold without tripping a real cycle by
	// allocating a large array, then confirm MaybeCollect is a no-op.
	_, err := h.NewArray(objheap.KindByteArray, Threshold+1)
	require.NoError(t, err)
	before := h.AllocationCount()
	c.MaybeCollect()
	assert.Equal(t, before, h.AllocationCount())
}

func TestMaybeCollectRunsPastThreshold(t *testing.T) {
	h := objheap.New()
	c := New(Roots{Heap: h})

	_, err := h.NewArray(objheap.KindByteArray, Threshold+1)
	require.NoError(t, err)
	c.MaybeCollect()
	// the single allocation above has nothing keeping it alive (no roots
	// reference it), so the forced cycle reclaims it
	assert.Equal(t, 0, h.AllocationCount())
}

var methodStub = stubMethod()
