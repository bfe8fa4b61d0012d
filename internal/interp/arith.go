package interp

import (
	"fmt"

	"jvmgo/internal/frame"
)

func (in *Interp) execIntBinary(f *frame.Frame, op byte) error {
	b := int32(in.Stack.Pop1(f))
	a := int32(in.Stack.Pop1(f))
	var r int32
	switch op {
	case opIadd:
		r = a + b
	case opIsub:
		r = a - b
	case opImul:
		r = a * b
	case opIdiv:
		if b == 0 {
			return fmt.Errorf("interp: division by zero")
		}
		r = a / b
	case opIrem:
		if b == 0 {
			return fmt.Errorf("interp: division by zero")
		}
		r = a % b
	case opIand:
		r = a & b
	case opIor:
		r = a | b
	case opIxor:
		r = a ^ b
	case opIshl:
		r = a << (uint32(b) & 31)
	case opIshr:
		r = a >> (uint32(b) & 31)
	case opIushr:
		r = int32(uint32(a) >> (uint32(b) & 31))
	}
	in.Stack.Push1(f, uint64(uint32(r)))
	return nil
}

func (in *Interp) execLongBinary(f *frame.Frame, op byte) error {
	var b int64
	if op == opLshl || op == opLshr || op == opLushr {
		b = int64(int32(in.Stack.Pop1(f)))
	} else {
		b = int64(in.Stack.Pop2(f))
	}
	a := int64(in.Stack.Pop2(f))
	var r int64
	switch op {
	case opLadd:
		r = a + b
	case opLsub:
		r = a - b
	case opLmul:
		r = a * b
	case opLdiv:
		if b == 0 {
			return fmt.Errorf("interp: division by zero")
		}
		r = a / b
	case opLrem:
		if b == 0 {
			return fmt.Errorf("interp: division by zero")
		}
		r = a % b
	case opLand:
		r = a & b
	case opLor:
		r = a | b
	case opLxor:
		r = a ^ b
	case opLshl:
		r = a << (uint64(b) & 63)
	case opLshr:
		r = a >> (uint64(b) & 63)
	case opLushr:
		r = int64(uint64(a) >> (uint64(b) & 63))
	}
	in.Stack.Push2(f, uint64(r))
	return nil
}

func (in *Interp) execFloatBinary(f *frame.Frame, op byte) {
	b := floatFromBits(uint32(in.Stack.Pop1(f)))
	a := floatFromBits(uint32(in.Stack.Pop1(f)))
	var r float32
	switch op {
	case opFadd:
		r = a + b
	case opFsub:
		r = a - b
	case opFmul:
		r = a * b
	case opFdiv:
		r = a / b
	case opFrem:
		if b != 0 {
			q := a / b
			r = a - float32(int64(q))*b
		}
	}
	in.Stack.Push1(f, uint64(floatBits(r)))
}

func (in *Interp) execDoubleBinary(f *frame.Frame, op byte) {
	b := doubleFromBits(in.Stack.Pop2(f))
	a := doubleFromBits(in.Stack.Pop2(f))
	var r float64
	switch op {
	case opDadd:
		r = a + b
	case opDsub:
		r = a - b
	case opDmul:
		r = a * b
	case opDdiv:
		r = a / b
	case opDrem:
		if b != 0 {
			q := a / b
			r = a - float64(int64(q))*b
		}
	}
	in.Stack.Push2(f, doubleBits(r))
}

func execDupX1(s *frame.Stack, f *frame.Frame) {
	top := s.Pop1(f)
	second := s.Pop1(f)
	s.Push1(f, top)
	s.Push1(f, second)
	s.Push1(f, top)
}

func execDupX2(s *frame.Stack, f *frame.Frame) {
	top := s.Pop1(f)
	second := s.Pop1(f)
	third := s.Pop1(f)
	s.Push1(f, top)
	s.Push1(f, third)
	s.Push1(f, second)
	s.Push1(f, top)
}
