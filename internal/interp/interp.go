// Package interp implements component F: the stack-machine bytecode
// interpreter. It dispatches on a flat switch over opcode bytes, following
// the teacher's execNextInstruction shape (one case per opcode, small
// per-case bodies delegating to helpers for anything non-trivial), adapted
// from a fixed-width register machine to the JVM's variable-width,
// descriptor-driven stack discipline described in spec.md §3/§4.F.
package interp

import (
	"fmt"

	"jvmgo/internal/classfile"
	"jvmgo/internal/env"
	"jvmgo/internal/frame"
	"jvmgo/internal/methodarea"
	"jvmgo/internal/natives"
	"jvmgo/internal/objheap"
)

// Dispatcher is consulted at method entry and at every backward branch, so
// component J (the JIT dispatcher) can maintain its execution counters and
// swap in a compiled WholeMethodState/LoopState.Invoke once a threshold is
// crossed (§4.J). interp holds no reference to internal/jitdispatch itself —
// only this interface — so the compile-triggering logic never needs to
// import the interpreter, matching the DI pattern internal/methodarea uses
// for <clinit>.
type Dispatcher interface {
	OnMethodEntry(class *methodarea.Class, method *classfile.MethodInfo)
	OnBackwardBranch(class *methodarea.Class, method *classfile.MethodInfo, headPC, endPC int)
}

// Interp is the single bytecode execution engine shared by every thread of
// control in the VM (there is exactly one in this implementation, per §1's
// single-threaded scope).
type Interp struct {
	Env        *env.Env
	Heap       *objheap.Heap
	Area       *methodarea.MethodArea
	Stack      *frame.Stack
	Natives    *natives.Registry
	Dispatcher Dispatcher
}

// New constructs an Interp. dispatcher may be nil, in which case methods and
// loops are always interpreted and never JIT-compiled.
func New(e *env.Env, natives *natives.Registry, dispatcher Dispatcher) *Interp {
	return &Interp{
		Env:        e,
		Heap:       e.Heap,
		Area:       e.Area,
		Stack:      e.Stack,
		Natives:    natives,
		Dispatcher: dispatcher,
	}
}

// Invoke runs method on class with args already laid out in calling
// convention (receiver first for instance methods, then parameters in
// left-to-right descriptor order, each occupying its Kind's slot width). It
// is the single entry point used by the CLI's `main` bootstrap, by
// <clinit> initialization, and by the interpreter's own invoke* opcodes.
func (in *Interp) Invoke(class *methodarea.Class, method *classfile.MethodInfo, args []uint64) (uint64, error) {
	if method.IsNative() {
		fn, ok := in.Natives.Lookup(class.Name(), method.Name, method.Descriptor)
		if !ok {
			return 0, fmt.Errorf("interp: no native registered for %s.%s%s", class.Name(), method.Name, method.Descriptor)
		}
		return fn(in.Env, args)
	}
	if method.Code == nil {
		return 0, fmt.Errorf("interp: %s.%s%s has no Code attribute and is not native", class.Name(), method.Name, method.Descriptor)
	}

	st := class.JITState(method)
	if in.Dispatcher != nil {
		in.Dispatcher.OnMethodEntry(class, method)
	}
	if st.Whole.Compiled && st.Whole.Invoke != nil {
		return st.Whole.Invoke(args)
	}

	bp := 0
	if cur := in.Stack.Current(); cur != nil {
		bp = cur.Top()
	}
	f := &frame.Frame{Class: class, Method: method, BP: bp}
	in.Stack.Push(f)
	for i, v := range args {
		in.Stack.SetRawSlot(f.LocalsBase()+i, v)
	}
	result, err := in.run(f)
	in.Stack.Pop()
	return result, err
}

// run executes f's bytecode to completion, returning the method's result
// value (0/ignored for void returns) or the first error encountered. Each
// opcode case is a small, self-contained step, matching the teacher's
// execNextInstruction dispatch shape (vm/exec.go).
func (in *Interp) run(f *frame.Frame) (uint64, error) {
	code := f.Method.Code
	bc := code.Bytecode

	for {
		if err := f.CheckInvariant(in.Stack.Capacity()); err != nil {
			return 0, err
		}
		if f.PC >= len(bc) {
			return 0, fmt.Errorf("interp: pc ran past end of bytecode in %s.%s", f.Class.Name(), f.Method.Name)
		}
		op := bc[f.PC]
		startPC := f.PC

		switch op {
		case opNop:
			f.PC++

		case opAconstNull:
			in.Stack.Push1(f, 0)
			f.PC++

		case opIconstM1, opIconst0, opIconst1, opIconst2, opIconst3, opIconst4, opIconst5:
			in.Stack.Push1(f, uint64(uint32(int32(op)-int32(opIconst0))))
			f.PC++

		case opLconst0, opLconst1:
			in.Stack.Push2(f, uint64(int64(op-opLconst0)))
			f.PC++

		case opFconst0, opFconst1, opFconst2:
			v := float32(op - opFconst0)
			in.Stack.Push1(f, uint64(floatBits(v)))
			f.PC++

		case opDconst0, opDconst1:
			v := float64(op - opDconst0)
			in.Stack.Push2(f, doubleBits(v))
			f.PC++

		case opBipush:
			v := int8(bc[f.PC+1])
			in.Stack.Push1(f, uint64(uint32(int32(v))))
			f.PC += 2

		case opSipush:
			v := int16(u16(bc, f.PC+1))
			in.Stack.Push1(f, uint64(uint32(int32(v))))
			f.PC += 3

		case opLdc:
			idx := uint16(bc[f.PC+1])
			if err := in.execLdc(f, idx); err != nil {
				return 0, err
			}
			f.PC += 2

		case opLdcW:
			idx := u16(bc, f.PC+1)
			if err := in.execLdc(f, idx); err != nil {
				return 0, err
			}
			f.PC += 3

		case opLdc2W:
			idx := u16(bc, f.PC+1)
			if err := in.execLdc2(f, idx); err != nil {
				return 0, err
			}
			f.PC += 3

		case opIload, opFload, opAload:
			idx := int(bc[f.PC+1])
			in.Stack.Push1(f, in.Stack.GetLocal(f, idx))
			f.PC += 2

		case opLload, opDload:
			idx := int(bc[f.PC+1])
			in.Stack.Push2(f, in.Stack.GetLocal(f, idx))
			f.PC += 2

		case opIload0, opIload1, opIload2, opIload3,
			opFload0, opFload1, opFload2, opFload3,
			opAload0, opAload1, opAload2, opAload3:
			idx := load0Index(op)
			in.Stack.Push1(f, in.Stack.GetLocal(f, idx))
			f.PC++

		case opLload0, opLload1, opLload2, opLload3,
			opDload0, opDload1, opDload2, opDload3:
			idx := load0Index(op)
			in.Stack.Push2(f, in.Stack.GetLocal(f, idx))
			f.PC++

		case opIstore, opFstore, opAstore:
			idx := int(bc[f.PC+1])
			in.Stack.SetLocal(f, idx, in.Stack.Pop1(f))
			f.PC += 2

		case opLstore, opDstore:
			idx := int(bc[f.PC+1])
			in.Stack.SetLocal(f, idx, in.Stack.Pop2(f))
			f.PC += 2

		case opIstore0, opIstore1, opIstore2, opIstore3,
			opFstore0, opFstore1, opFstore2, opFstore3,
			opAstore0, opAstore1, opAstore2, opAstore3:
			idx := store0Index(op)
			in.Stack.SetLocal(f, idx, in.Stack.Pop1(f))
			f.PC++

		case opLstore0, opLstore1, opLstore2, opLstore3,
			opDstore0, opDstore1, opDstore2, opDstore3:
			idx := store0Index(op)
			in.Stack.SetLocal(f, idx, in.Stack.Pop2(f))
			f.PC++

		case opIaload, opFaload, opAaload, opBaload, opCaload, opSaload, opLaload, opDaload:
			if err := in.execArrayLoad(f, op); err != nil {
				return 0, err
			}
			f.PC++

		case opIastore, opFastore, opAastore, opBastore, opCastore, opSastore, opLastore, opDastore:
			if err := in.execArrayStore(f, op); err != nil {
				return 0, err
			}
			f.PC++

		case opPop:
			in.Stack.Pop1(f)
			f.PC++
		case opPop2:
			in.Stack.Pop2(f)
			f.PC++
		case opDup:
			v := in.Stack.Peek(f, 1)
			in.Stack.Push1(f, v)
			f.PC++
		case opDupX1:
			execDupX1(in.Stack, f)
			f.PC++
		case opDupX2:
			execDupX2(in.Stack, f)
			f.PC++
		case opDup2:
			// Copies the top two slots without checking their categories:
			// two category-1 values and the two slots of one long/double are
			// duplicated alike. dup2_x1/dup2_x2 are not implemented.
			top := in.Stack.Peek(f, 1)
			second := in.Stack.Peek(f, 2)
			in.Stack.Push1(f, second)
			in.Stack.Push1(f, top)
			f.PC++
		case opSwap:
			a := in.Stack.Pop1(f)
			b := in.Stack.Pop1(f)
			in.Stack.Push1(f, a)
			in.Stack.Push1(f, b)
			f.PC++

		case opIadd, opIsub, opImul, opIdiv, opIrem, opIand, opIor, opIxor, opIshl, opIshr, opIushr:
			if err := in.execIntBinary(f, op); err != nil {
				return 0, err
			}
			f.PC++
		case opLadd, opLsub, opLmul, opLdiv, opLrem, opLand, opLor, opLxor, opLshl, opLshr, opLushr:
			if err := in.execLongBinary(f, op); err != nil {
				return 0, err
			}
			f.PC++
		case opFadd, opFsub, opFmul, opFdiv, opFrem:
			in.execFloatBinary(f, op)
			f.PC++
		case opDadd, opDsub, opDmul, opDdiv, opDrem:
			in.execDoubleBinary(f, op)
			f.PC++
		case opIneg:
			v := int32(in.Stack.Pop1(f))
			in.Stack.Push1(f, uint64(uint32(-v)))
			f.PC++
		case opLneg:
			v := int64(in.Stack.Pop2(f))
			in.Stack.Push2(f, uint64(-v))
			f.PC++
		case opFneg:
			v := floatFromBits(uint32(in.Stack.Pop1(f)))
			in.Stack.Push1(f, uint64(floatBits(-v)))
			f.PC++
		case opDneg:
			v := doubleFromBits(in.Stack.Pop2(f))
			in.Stack.Push2(f, doubleBits(-v))
			f.PC++

		case opIinc:
			idx := int(bc[f.PC+1])
			delta := int8(bc[f.PC+2])
			cur := int32(in.Stack.GetLocal(f, idx))
			in.Stack.SetLocal(f, idx, uint64(uint32(cur+int32(delta))))
			f.PC += 3

		case opI2l:
			in.Stack.Push2(f, uint64(int64(int32(in.Stack.Pop1(f)))))
			f.PC++
		case opI2f:
			in.Stack.Push1(f, uint64(floatBits(float32(int32(in.Stack.Pop1(f))))))
			f.PC++
		case opI2d:
			in.Stack.Push2(f, doubleBits(float64(int32(in.Stack.Pop1(f)))))
			f.PC++
		case opL2i:
			in.Stack.Push1(f, uint64(uint32(int32(int64(in.Stack.Pop2(f))))))
			f.PC++
		case opL2f:
			in.Stack.Push1(f, uint64(floatBits(float32(int64(in.Stack.Pop2(f))))))
			f.PC++
		case opL2d:
			in.Stack.Push2(f, doubleBits(float64(int64(in.Stack.Pop2(f)))))
			f.PC++
		case opF2i:
			in.Stack.Push1(f, uint64(uint32(int32(floatFromBits(uint32(in.Stack.Pop1(f)))))))
			f.PC++
		case opF2l:
			in.Stack.Push2(f, uint64(int64(floatFromBits(uint32(in.Stack.Pop1(f))))))
			f.PC++
		case opF2d:
			in.Stack.Push2(f, doubleBits(float64(floatFromBits(uint32(in.Stack.Pop1(f))))))
			f.PC++
		case opD2i:
			in.Stack.Push1(f, uint64(uint32(int32(doubleFromBits(in.Stack.Pop2(f))))))
			f.PC++
		case opD2l:
			in.Stack.Push2(f, uint64(int64(doubleFromBits(in.Stack.Pop2(f)))))
			f.PC++
		case opD2f:
			in.Stack.Push1(f, uint64(floatBits(float32(doubleFromBits(in.Stack.Pop2(f))))))
			f.PC++
		case opI2b:
			in.Stack.Push1(f, uint64(uint32(int32(int8(in.Stack.Pop1(f))))))
			f.PC++
		case opI2c:
			in.Stack.Push1(f, uint64(uint32(uint16(in.Stack.Pop1(f)))))
			f.PC++
		case opI2s:
			in.Stack.Push1(f, uint64(uint32(int32(int16(in.Stack.Pop1(f))))))
			f.PC++

		case opLcmp:
			b := int64(in.Stack.Pop2(f))
			a := int64(in.Stack.Pop2(f))
			in.Stack.Push1(f, uint64(uint32(int32(cmp3(a, b)))))
			f.PC++
		case opFcmpl, opFcmpg:
			b := floatFromBits(uint32(in.Stack.Pop1(f)))
			a := floatFromBits(uint32(in.Stack.Pop1(f)))
			in.Stack.Push1(f, uint64(uint32(int32(fcmp3(float64(a), float64(b), op == opFcmpg)))))
			f.PC++
		case opDcmpl, opDcmpg:
			b := doubleFromBits(in.Stack.Pop2(f))
			a := doubleFromBits(in.Stack.Pop2(f))
			in.Stack.Push1(f, uint64(uint32(int32(fcmp3(a, b, op == opDcmpg)))))
			f.PC++

		case opIfeq, opIfne, opIflt, opIfge, opIfgt, opIfle:
			v := int32(in.Stack.Pop1(f))
			if unaryCompare(op, v) {
				if err := in.branch(f, startPC); err != nil {
					return 0, err
				}
				continue
			}
			f.PC += 3

		case opIfIcmpeq, opIfIcmpne, opIfIcmplt, opIfIcmpge, opIfIcmpgt, opIfIcmple:
			b := int32(in.Stack.Pop1(f))
			a := int32(in.Stack.Pop1(f))
			if binaryCompare(op, a, b) {
				if err := in.branch(f, startPC); err != nil {
					return 0, err
				}
				continue
			}
			f.PC += 3

		case opIfAcmpeq, opIfAcmpne:
			b := in.Stack.Pop1(f)
			a := in.Stack.Pop1(f)
			eq := a == b
			if (op == opIfAcmpeq) == eq {
				if err := in.branch(f, startPC); err != nil {
					return 0, err
				}
				continue
			}
			f.PC += 3

		case opIfnull, opIfnonnull:
			v := in.Stack.Pop1(f)
			isNull := v == 0
			if (op == opIfnull) == isNull {
				if err := in.branch(f, startPC); err != nil {
					return 0, err
				}
				continue
			}
			f.PC += 3

		case opGoto:
			if err := in.branch(f, startPC); err != nil {
				return 0, err
			}
			continue

		case opGotoW:
			off := int32(u32(bc, f.PC+1))
			f.PC = startPC + int(off)
			if off < 0 {
				if err := in.notifyBackwardBranch(f, startPC); err != nil {
					return 0, err
				}
			}
			continue

		case opJsr:
			ret := f.PC + 3
			in.Stack.Push1(f, uint64(uint32(ret)))
			off := int16(u16(bc, f.PC+1))
			f.PC = startPC + int(off)
			continue

		case opJsrW:
			ret := f.PC + 5
			in.Stack.Push1(f, uint64(uint32(ret)))
			off := int32(u32(bc, f.PC+1))
			f.PC = startPC + int(off)
			continue

		case opRet:
			idx := int(bc[f.PC+1])
			f.PC = int(uint32(in.Stack.GetLocal(f, idx)))
			continue

		case opTableswitch:
			next, err := in.execTableswitch(f, startPC)
			if err != nil {
				return 0, err
			}
			f.PC = next
			continue

		case opLookupswitch:
			next, err := in.execLookupswitch(f, startPC)
			if err != nil {
				return 0, err
			}
			f.PC = next
			continue

		case opIreturn, opFreturn, opAreturn:
			return in.Stack.Pop1(f), nil
		case opLreturn, opDreturn:
			return in.Stack.Pop2(f), nil
		case opReturn:
			return 0, nil

		case opGetstatic:
			if err := in.execGetstatic(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opPutstatic:
			if err := in.execPutstatic(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opGetfield:
			if err := in.execGetfield(f, startPC); err != nil {
				return 0, err
			}
			f.PC += 3
		case opPutfield:
			if err := in.execPutfield(f, startPC); err != nil {
				return 0, err
			}
			f.PC += 3
		case opGetfieldQuick:
			slot := int(u16(bc, f.PC+1))
			obj, err := in.popObject(f)
			if err != nil {
				return 0, err
			}
			in.Stack.Push1(f, obj.Slots[slot])
			f.PC += 3
		case opGetfieldQuickWide:
			slot := int(u16(bc, f.PC+1))
			obj, err := in.popObject(f)
			if err != nil {
				return 0, err
			}
			in.Stack.Push2(f, obj.Slots[slot])
			f.PC += 3
		case opPutfieldQuick:
			slot := int(u16(bc, f.PC+1))
			v := in.Stack.Pop1(f)
			obj, err := in.popObject(f)
			if err != nil {
				return 0, err
			}
			obj.Slots[slot] = v
			f.PC += 3
		case opPutfieldQuickWide:
			slot := int(u16(bc, f.PC+1))
			v := in.Stack.Pop2(f)
			obj, err := in.popObject(f)
			if err != nil {
				return 0, err
			}
			obj.Slots[slot] = v
			f.PC += 3

		case opInvokestatic:
			if err := in.execInvokeStatic(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opInvokespecial:
			if err := in.execInvokeSpecial(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opInvokevirtual:
			if err := in.execInvokeVirtual(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opInvokeinterface:
			if err := in.execInvokeVirtual(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 5 // count + zero byte, unused in this core

		case opNew:
			if err := in.execNew(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opNewarray:
			if err := in.execNewarray(f, int(bc[f.PC+1])); err != nil {
				return 0, err
			}
			f.PC += 2
		case opAnewarray:
			if err := in.execAnewarray(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opMultianewarray:
			if err := in.execMultianewarray(f, u16(bc, f.PC+1), int(bc[f.PC+3])); err != nil {
				return 0, err
			}
			f.PC += 4
		case opArraylength:
			if err := in.execArraylength(f); err != nil {
				return 0, err
			}
			f.PC++

		case opCheckcast:
			if err := in.execCheckcast(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3
		case opInstanceof:
			if err := in.execInstanceof(f, u16(bc, f.PC+1)); err != nil {
				return 0, err
			}
			f.PC += 3

		case opAthrow:
			ref := in.Stack.Pop1(f)
			return 0, in.athrowError(ref)

		case opMonitorenter, opMonitorexit:
			in.Stack.Pop1(f) // locking is out of scope (§1 non-goals); the reference is simply consumed
			f.PC++

		case opInvokedynamic:
			return 0, fmt.Errorf("interp: invokedynamic is unsupported (%s.%s)", f.Class.Name(), f.Method.Name)

		case opWide:
			next, err := in.execWide(f, startPC)
			if err != nil {
				return 0, err
			}
			f.PC = next

		default:
			return 0, fmt.Errorf("interp: unrecognized opcode 0x%02X at %s.%s pc=%d", op, f.Class.Name(), f.Method.Name, f.PC)
		}
	}
}

// branch applies a signed 16-bit relative offset read at fromPC+1, then
// notifies the dispatcher when the jump is backward (a loop back-edge,
// §4.J); a compiled loop run there moves f.PC on to its exit pc.
func (in *Interp) branch(f *frame.Frame, fromPC int) error {
	off := int16(u16(f.Method.Code.Bytecode, fromPC+1))
	f.PC = fromPC + int(off)
	if off < 0 {
		return in.notifyBackwardBranch(f, fromPC)
	}
	return nil
}

// notifyBackwardBranch is called with f.PC already set to the branch
// target, which is the loop head; the loop ends after the branch at fromPC.
func (in *Interp) notifyBackwardBranch(f *frame.Frame, fromPC int) error {
	headPC, endPC := f.PC, fromPC+3
	if f.Method.Code.Bytecode[fromPC] == opGotoW {
		endPC = fromPC + 5
	}
	if in.Dispatcher != nil {
		in.Dispatcher.OnBackwardBranch(f.Class, f.Method, headPC, endPC)
		st := f.Class.JITState(f.Method)
		if ls, ok := st.Loops[headPC]; ok && ls.Compiled && ls.Invoke != nil {
			locals := make([]uint64, f.MaxLocals())
			for i := range locals {
				locals[i] = in.Stack.GetLocal(f, i)
			}
			resumePC, err := ls.Invoke(locals)
			if err != nil {
				return err
			}
			for i, v := range locals {
				in.Stack.SetLocal(f, i, v)
			}
			f.PC = resumePC
		}
	}
	return nil
}

func (in *Interp) athrowError(ref uint64) error {
	if obj, ok := in.Heap.GetObject(ref); ok && obj.Class != nil {
		return fmt.Errorf("interp: uncaught exception of class %s", obj.Class.Name())
	}
	return fmt.Errorf("interp: athrow with non-object or null reference")
}

func (in *Interp) popObject(f *frame.Frame) (*objheap.Object, error) {
	ref := in.Stack.Pop1(f)
	obj, ok := in.Heap.GetObject(ref)
	if !ok {
		return nil, fmt.Errorf("interp: expected an object reference, got %d", ref)
	}
	return obj, nil
}
