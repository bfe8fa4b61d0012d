package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jvmgo/internal/classfile"
)

func method(maxLocals, maxStack uint16) *classfile.MethodInfo {
	return &classfile.MethodInfo{
		Code: &classfile.CodeAttribute{MaxLocals: maxLocals, MaxStack: maxStack},
	}
}

func TestPushPopFrameAndOperandStack(t *testing.T) {
	s := NewStack()
	f := &Frame{Method: method(2, 4), BP: 0}
	s.Push(f)

	assert.Equal(t, 2, f.SP) // sp advanced past max_locals on entry

	s.SetLocal(f, 0, 10)
	s.SetLocal(f, 1, 20)
	assert.Equal(t, uint64(10), s.GetLocal(f, 0))

	s.Push1(f, 99)
	assert.Equal(t, uint64(99), s.Peek(f, 1))
	assert.Equal(t, uint64(99), s.Pop1(f))
	assert.Equal(t, 2, f.SP)

	popped := s.Pop()
	assert.Same(t, f, popped)
	assert.Equal(t, 0, s.Depth())
}

func TestDoubleSlotWidth(t *testing.T) {
	s := NewStack()
	f := &Frame{Method: method(0, 4), BP: 0}
	s.Push(f)

	s.Push2(f, 0x4010000000000000) // bit-punned double
	assert.Equal(t, 2, f.SP)
	assert.Equal(t, uint64(0x4010000000000000), s.Pop2(f))
	assert.Equal(t, 0, f.SP)
}

func TestFrameInvariantCatchesOverflow(t *testing.T) {
	f := &Frame{Method: method(0, 4), BP: 0, SP: 5}
	err := f.CheckInvariant(4)
	assert.Error(t, err)
}

func TestStackGrowsOnDemand(t *testing.T) {
	s := NewStack()
	f := &Frame{Method: method(InitialCapacity+10, 0), BP: 0}
	s.Push(f) // forces a grow since max_locals exceeds InitialCapacity
	assert.Greater(t, s.Capacity(), InitialCapacity)
}
