package interp

import (
	"fmt"

	"jvmgo/internal/frame"
	"jvmgo/internal/types"
)

func (in *Interp) execGetstatic(f *frame.Frame, cpIndex uint16) error {
	owner, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: getstatic with unresolved constant pool index %d", cpIndex)
	}
	class, err := in.Area.LoadClass(owner)
	if err != nil {
		return err
	}
	param, err := types.FieldKind(descriptor)
	if err != nil {
		return err
	}
	declaring, _, found := in.Area.GetField(class, name, descriptor)
	if !found {
		declaring = class
	}
	v, _ := declaring.GetStatic(name)
	if param.Kind.SlotWidth() == 2 {
		in.Stack.Push2(f, v)
	} else {
		in.Stack.Push1(f, v)
	}
	return nil
}

func (in *Interp) execPutstatic(f *frame.Frame, cpIndex uint16) error {
	owner, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: putstatic with unresolved constant pool index %d", cpIndex)
	}
	class, err := in.Area.LoadClass(owner)
	if err != nil {
		return err
	}
	param, err := types.FieldKind(descriptor)
	if err != nil {
		return err
	}
	var v uint64
	if param.Kind.SlotWidth() == 2 {
		v = in.Stack.Pop2(f)
	} else {
		v = in.Stack.Pop1(f)
	}
	declaring, _, found := in.Area.GetField(class, name, descriptor)
	if !found {
		declaring = class
	}
	declaring.PutStatic(name, v)
	return nil
}

// execGetfield resolves the field's flattened slot index and value width on
// first execution, then quickens the bytecode in place (§4.F: the
// interpreter rewrites getfield/putfield sites so repeated executions skip
// constant-pool resolution) by overwriting the 2-byte operand with the
// resolved slot and the opcode itself with the appropriate quick form.
func (in *Interp) execGetfield(f *frame.Frame, startPC int) error {
	cpIndex := u16(f.Method.Code.Bytecode, startPC+1)
	_, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: getfield with unresolved constant pool index %d", cpIndex)
	}
	param, err := types.FieldKind(descriptor)
	if err != nil {
		return err
	}
	obj, err := in.popObject(f)
	if err != nil {
		return err
	}
	slot, _, found := in.Area.GetNumberedFieldInfo(obj.Class, name)
	if !found {
		return fmt.Errorf("interp: field %q not found on %s", name, obj.Class.Name())
	}
	wide := param.Kind.SlotWidth() == 2
	if wide {
		in.Stack.Push2(f, obj.Slots[slot])
		quickenField(f, startPC, opGetfieldQuickWide, slot)
	} else {
		in.Stack.Push1(f, obj.Slots[slot])
		quickenField(f, startPC, opGetfieldQuick, slot)
	}
	return nil
}

func (in *Interp) execPutfield(f *frame.Frame, startPC int) error {
	cpIndex := u16(f.Method.Code.Bytecode, startPC+1)
	_, name, descriptor, ok := f.Class.ConstantPool.RefInfo(cpIndex)
	if !ok {
		return fmt.Errorf("interp: putfield with unresolved constant pool index %d", cpIndex)
	}
	param, err := types.FieldKind(descriptor)
	if err != nil {
		return err
	}
	wide := param.Kind.SlotWidth() == 2
	var v uint64
	if wide {
		v = in.Stack.Pop2(f)
	} else {
		v = in.Stack.Pop1(f)
	}
	obj, err := in.popObject(f)
	if err != nil {
		return err
	}
	slot, _, found := in.Area.GetNumberedFieldInfo(obj.Class, name)
	if !found {
		return fmt.Errorf("interp: field %q not found on %s", name, obj.Class.Name())
	}
	obj.Slots[slot] = v
	if wide {
		quickenField(f, startPC, opPutfieldQuickWide, slot)
	} else {
		quickenField(f, startPC, opPutfieldQuick, slot)
	}
	return nil
}

func quickenField(f *frame.Frame, startPC int, quickOp byte, slot int) {
	bc := f.Method.Code.Bytecode
	bc[startPC] = quickOp
	bc[startPC+1] = byte(slot >> 8)
	bc[startPC+2] = byte(slot)
}
