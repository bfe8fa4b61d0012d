package interp

import (
	"fmt"

	"jvmgo/internal/frame"
	"jvmgo/internal/methodarea"
	"jvmgo/internal/objheap"
)

func (in *Interp) execArrayLoad(f *frame.Frame, op byte) error {
	index := int32(in.Stack.Pop1(f))
	ref := in.Stack.Pop1(f)
	arr, ok := in.Heap.GetArray(ref)
	if !ok {
		return fmt.Errorf("interp: array load on non-array reference %d", ref)
	}
	if op == opAaload {
		if objheap.CheckedBoundsEnabled && (index < 0 || int(index) >= arr.Count) {
			return fmt.Errorf("interp: array index %d out of bounds (length %d)", index, arr.Count)
		}
		in.Stack.Push1(f, objheap.GetObjArrayElem(arr, int(index)))
		return nil
	}
	v, err := arr.GetElem(int(index))
	if err != nil {
		if !objheap.CheckedBoundsEnabled {
			// Default mode tolerates an out-of-range index as spec.md §9
			// allows; callers that want the check get it via
			// objheap.CheckedBoundsEnabled.
			in.Stack.Push1(f, 0)
			return nil
		}
		return err
	}
	if op == opLaload || op == opDaload {
		in.Stack.Push2(f, v)
	} else {
		in.Stack.Push1(f, v)
	}
	return nil
}

func (in *Interp) execArrayStore(f *frame.Frame, op byte) error {
	var value uint64
	if op == opLastore || op == opDastore {
		value = in.Stack.Pop2(f)
	} else {
		value = in.Stack.Pop1(f)
	}
	index := int32(in.Stack.Pop1(f))
	ref := in.Stack.Pop1(f)
	arr, ok := in.Heap.GetArray(ref)
	if !ok {
		return fmt.Errorf("interp: array store on non-array reference %d", ref)
	}
	if op == opAastore {
		if objheap.CheckedBoundsEnabled && (index < 0 || int(index) >= arr.Count) {
			return fmt.Errorf("interp: array index %d out of bounds (length %d)", index, arr.Count)
		}
		objheap.PutObjArrayElem(arr, int(index), value)
		return nil
	}
	if err := arr.SetElem(int(index), value); err != nil && objheap.CheckedBoundsEnabled {
		return err
	}
	return nil
}

func (in *Interp) execArraylength(f *frame.Frame) error {
	ref := in.Stack.Pop1(f)
	arr, ok := in.Heap.GetArray(ref)
	if !ok {
		return fmt.Errorf("interp: arraylength on non-array reference %d", ref)
	}
	in.Stack.Push1(f, uint64(uint32(arr.Length())))
	return nil
}

func (in *Interp) execNewarray(f *frame.Frame, atype int) error {
	count := int32(in.Stack.Pop1(f))
	kind, err := newarrayKind(atype)
	if err != nil {
		return err
	}
	ref, err := in.Heap.NewArray(kind, int(count))
	if err != nil {
		return err
	}
	in.Stack.Push1(f, ref)
	return nil
}

func newarrayKind(atype int) (objheap.Kind, error) {
	switch atype {
	case atBoolean:
		return objheap.KindBoolArray, nil
	case atChar:
		return objheap.KindCharArray, nil
	case atFloat:
		return objheap.KindFloatArray, nil
	case atDouble:
		return objheap.KindDoubleArray, nil
	case atByte:
		return objheap.KindByteArray, nil
	case atShort:
		return objheap.KindShortArray, nil
	case atInt:
		return objheap.KindIntArray, nil
	case atLong:
		return objheap.KindLongArray, nil
	default:
		return 0, fmt.Errorf("interp: unrecognized newarray atype %d", atype)
	}
}

func (in *Interp) execAnewarray(f *frame.Frame, classIndex uint16) error {
	count := int32(in.Stack.Pop1(f))
	name, ok := f.Class.ConstantPool.ClassName(classIndex)
	if !ok {
		return fmt.Errorf("interp: anewarray with unresolved class index %d", classIndex)
	}
	elemClass, _ := in.Area.LoadClass(name) // nil tolerated for primitive/array element descriptors
	ref, err := in.Heap.NewObjArray(elemClass, int(count))
	if err != nil {
		return err
	}
	in.Stack.Push1(f, ref)
	return nil
}

func (in *Interp) execMultianewarray(f *frame.Frame, classIndex uint16, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("interp: multianewarray with non-positive dimensions %d", dims)
	}
	counts := make([]int, dims)
	for i := dims - 1; i >= 0; i-- {
		counts[i] = int(int32(in.Stack.Pop1(f)))
	}
	name, ok := f.Class.ConstantPool.ClassName(classIndex)
	if !ok {
		return fmt.Errorf("interp: multianewarray with unresolved class index %d", classIndex)
	}
	i := 0
	for i < len(name) && name[i] == '[' {
		i++
	}
	var elemClass *methodarea.Class
	kind := elemArrayKind(name[i])
	if name[i] == 'L' {
		className := name[i+1 : len(name)-1]
		elemClass, _ = in.Area.LoadClass(className)
	}
	ref, err := in.Heap.NewMultiArray(kind, elemClass, counts)
	if err != nil {
		return err
	}
	in.Stack.Push1(f, ref)
	return nil
}

func elemArrayKind(b byte) objheap.Kind {
	switch b {
	case 'Z':
		return objheap.KindBoolArray
	case 'B':
		return objheap.KindByteArray
	case 'C':
		return objheap.KindCharArray
	case 'S':
		return objheap.KindShortArray
	case 'I':
		return objheap.KindIntArray
	case 'J':
		return objheap.KindLongArray
	case 'F':
		return objheap.KindFloatArray
	case 'D':
		return objheap.KindDoubleArray
	default:
		return objheap.KindObjectArray
	}
}
