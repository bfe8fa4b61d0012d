package interp

import "jvmgo/internal/frame"

func (in *Interp) execTableswitch(f *frame.Frame, startPC int) (int, error) {
	bc := f.Method.Code.Bytecode
	pos := alignedOperandStart(startPC)

	defaultOff := int32(u32(bc, pos))
	low := int32(u32(bc, pos+4))
	high := int32(u32(bc, pos+8))
	key := int32(in.Stack.Pop1(f))

	if key < low || key > high {
		return startPC + int(defaultOff), nil
	}
	entryPos := pos + 12 + int(key-low)*4
	off := int32(u32(bc, entryPos))
	return startPC + int(off), nil
}

func (in *Interp) execLookupswitch(f *frame.Frame, startPC int) (int, error) {
	bc := f.Method.Code.Bytecode
	pos := alignedOperandStart(startPC)

	defaultOff := int32(u32(bc, pos))
	npairs := int32(u32(bc, pos+4))
	key := int32(in.Stack.Pop1(f))

	base := pos + 8
	for i := int32(0); i < npairs; i++ {
		entry := base + int(i)*8
		match := int32(u32(bc, entry))
		if match == key {
			return startPC + int(u32(bc, entry+4)), nil
		}
	}
	return startPC + int(defaultOff), nil
}

// alignedOperandStart returns the first byte after startPC padded up to the
// next multiple of 4 relative to the start of the bytecode array, per
// JVMS §4.F's tableswitch/lookupswitch padding rule.
func alignedOperandStart(startPC int) int {
	pos := startPC + 1
	for pos%4 != 0 {
		pos++
	}
	return pos
}
