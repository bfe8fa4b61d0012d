package interp

import (
	"fmt"

	"jvmgo/internal/frame"
)

// execWide handles the wide-prefixed forms of the load/store/iinc/ret
// family, which use a 2-byte local-variable index instead of 1 byte (§4.F).
func (in *Interp) execWide(f *frame.Frame, startPC int) (int, error) {
	bc := f.Method.Code.Bytecode
	sub := bc[startPC+1]
	idx := int(u16(bc, startPC+2))

	switch sub {
	case opIload, opFload, opAload:
		in.Stack.Push1(f, in.Stack.GetLocal(f, idx))
		return startPC + 4, nil
	case opLload, opDload:
		in.Stack.Push2(f, in.Stack.GetLocal(f, idx))
		return startPC + 4, nil
	case opIstore, opFstore, opAstore:
		in.Stack.SetLocal(f, idx, in.Stack.Pop1(f))
		return startPC + 4, nil
	case opLstore, opDstore:
		in.Stack.SetLocal(f, idx, in.Stack.Pop2(f))
		return startPC + 4, nil
	case opRet:
		f.PC = int(uint32(in.Stack.GetLocal(f, idx)))
		return f.PC, nil
	case opIinc:
		delta := int16(u16(bc, startPC+4))
		cur := int32(in.Stack.GetLocal(f, idx))
		in.Stack.SetLocal(f, idx, uint64(uint32(cur+int32(delta))))
		return startPC + 6, nil
	default:
		return 0, fmt.Errorf("interp: unsupported wide sub-opcode 0x%02X", sub)
	}
}
