package interp

import (
	"fmt"

	"jvmgo/internal/classfile"
	"jvmgo/internal/frame"
	"jvmgo/internal/methodarea"
)

// execLdc pushes the constant at index: an int, float, already-interned
// string, or a freshly-interned string (the interning happens at most once
// per Utf8 entry, per §3's invariant — internal/methodarea.Class stores the
// resulting handle back onto the CPUtf8 entry itself).
func (in *Interp) execLdc(f *frame.Frame, index uint16) error {
	entry, ok := f.Class.ConstantPool.Get(index)
	if !ok {
		return fmt.Errorf("interp: ldc with unresolved constant pool index %d", index)
	}
	switch e := entry.(type) {
	case *classfile.CPInteger:
		in.Stack.Push1(f, uint64(uint32(e.Value)))
	case *classfile.CPFloat:
		in.Stack.Push1(f, uint64(floatBits(e.Value)))
	case *classfile.CPString:
		ref, err := in.internString(f.Class, e.Utf8Index)
		if err != nil {
			return err
		}
		in.Stack.Push1(f, ref)
	case *classfile.CPClass:
		// A class literal (Foo.class) is not part of this core's scope; push
		// null rather than failing so a class that merely mentions one
		// still runs so long as it never dereferences it.
		in.Stack.Push1(f, 0)
	default:
		return fmt.Errorf("interp: ldc on unsupported constant pool entry at index %d", index)
	}
	return nil
}

// execLdc2 pushes a wide (long/double) constant.
func (in *Interp) execLdc2(f *frame.Frame, index uint16) error {
	entry, ok := f.Class.ConstantPool.Get(index)
	if !ok {
		return fmt.Errorf("interp: ldc2_w with unresolved constant pool index %d", index)
	}
	switch e := entry.(type) {
	case *classfile.CPLong:
		in.Stack.Push2(f, uint64(e.Value))
	case *classfile.CPDouble:
		in.Stack.Push2(f, doubleBits(e.Value))
	default:
		return fmt.Errorf("interp: ldc2_w on unsupported constant pool entry at index %d", index)
	}
	return nil
}

// internString returns the heap handle for a Utf8 constant's boxed
// java.lang.String, interning it on first use (§3 invariant: initialised at
// most once).
func (in *Interp) internString(class *methodarea.Class, utf8Index uint16) (uint64, error) {
	if ref, ok := class.InternedStringRef(utf8Index); ok {
		return ref, nil
	}
	text, ok := class.ConstantPool.Utf8(utf8Index)
	if !ok {
		return 0, fmt.Errorf("interp: string constant references non-Utf8 entry %d", utf8Index)
	}
	ref, err := in.Heap.NewString(text, in.Area)
	if err != nil {
		return 0, err
	}
	class.SetInternedStringRef(utf8Index, ref)
	return ref, nil
}
