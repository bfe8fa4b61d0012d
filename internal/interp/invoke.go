package interp

import (
	"fmt"

	"jvmgo/internal/frame"
	"jvmgo/internal/types"
)

func (in *Interp) execInvokeStatic(f *frame.Frame, cpIndex uint16) error {
	owner, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: invokestatic with unresolved constant pool index %d", cpIndex)
	}
	class, err := in.Area.LoadClass(owner)
	if err != nil {
		return err
	}
	declaring, method, found := in.Area.GetMethod(class, name, descriptor)
	if !found {
		return fmt.Errorf("interp: no such static method %s.%s%s", owner, name, descriptor)
	}
	desc, err := types.ParseDescriptor(descriptor)
	if err != nil {
		return err
	}
	width := desc.ParamsSlotWidth()
	args := in.popArgs(f, width)
	result, err := in.Invoke(declaring, method, args)
	if err != nil {
		return err
	}
	in.pushResult(f, desc.Return.Kind)(result)
	return nil
}

func (in *Interp) execInvokeSpecial(f *frame.Frame, cpIndex uint16) error {
	owner, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: invokespecial with unresolved constant pool index %d", cpIndex)
	}
	class, err := in.Area.LoadClass(owner)
	if err != nil {
		return err
	}
	declaring, method, found := in.Area.GetMethod(class, name, descriptor)
	if !found {
		return fmt.Errorf("interp: no such method %s.%s%s", owner, name, descriptor)
	}
	desc, err := types.ParseDescriptor(descriptor)
	if err != nil {
		return err
	}
	width := 1 + desc.ParamsSlotWidth()
	args := in.popArgs(f, width)
	result, err := in.Invoke(declaring, method, args)
	if err != nil {
		return err
	}
	in.pushResult(f, desc.Return.Kind)(result)
	return nil
}

// execInvokeVirtual performs dynamic dispatch: the receiver's actual
// runtime class (not the statically-resolved owner) determines which
// override runs, walking the superclass chain from there (§4.B/§4.F). It is
// reused for invokeinterface, which this core does not distinguish further.
func (in *Interp) execInvokeVirtual(f *frame.Frame, cpIndex uint16) error {
	owner, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: invokevirtual with unresolved constant pool index %d", cpIndex)
	}
	if _, err := in.Area.LoadClass(owner); err != nil {
		return err
	}
	desc, err := types.ParseDescriptor(descriptor)
	if err != nil {
		return err
	}
	width := 1 + desc.ParamsSlotWidth()
	args := in.popArgs(f, width)

	receiverRef := args[0]
	obj, ok := in.Heap.GetObject(receiverRef)
	if !ok {
		return fmt.Errorf("interp: invokevirtual on null or non-object receiver")
	}
	declaring, method, found := in.Area.GetMethod(obj.Class, name, descriptor)
	if !found {
		return fmt.Errorf("interp: no such virtual method %s.%s%s", obj.Class.Name(), name, descriptor)
	}
	result, err := in.Invoke(declaring, method, args)
	if err != nil {
		return err
	}
	in.pushResult(f, desc.Return.Kind)(result)
	return nil
}

// popArgs pops width slots off f's operand stack in their original
// left-to-right order (the stack already holds them in push order, so a
// direct copy suffices — no reversal needed).
func (in *Interp) popArgs(f *frame.Frame, width int) []uint64 {
	top := f.Top()
	args := make([]uint64, width)
	for i := 0; i < width; i++ {
		args[i] = in.Stack.RawSlot(top - width + i)
	}
	f.SP -= width
	return args
}

func (in *Interp) pushResult(f *frame.Frame, k types.Kind) func(uint64) {
	return func(v uint64) {
		if k == types.KindVoid {
			return
		}
		if k.SlotWidth() == 2 {
			in.Stack.Push2(f, v)
		} else {
			in.Stack.Push1(f, v)
		}
	}
}
