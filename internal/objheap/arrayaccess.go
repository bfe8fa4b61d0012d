package objheap

import "fmt"

// GetElem reads element index of a primitive array (not KindObjectArray —
// use GetObjArrayElem for those) sign/zero-extended into a u64, matching
// the interpreter's uniform u64 operand-stack representation (§3).
func (a *Array) GetElem(index int) (uint64, error) {
	if index < 0 || index >= a.Count {
		return 0, fmt.Errorf("objheap: array index %d out of bounds (length %d)", index, a.Count)
	}
	size := a.ElemKind.ElemByteSize()
	off := index * size
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(a.Bytes[off+i]) << (8 * i)
	}
	switch a.ElemKind {
	case KindByteArray:
		return uint64(int64(int8(v))), nil
	case KindShortArray:
		return uint64(int64(int16(v))), nil
	default:
		return v, nil
	}
}

// SetElem writes element index of a primitive array, narrowing value to the
// element's byte width (§4.F: "narrows stack[1]... and writes it").
func (a *Array) SetElem(index int, value uint64) error {
	if index < 0 || index >= a.Count {
		return fmt.Errorf("objheap: array index %d out of bounds (length %d)", index, a.Count)
	}
	size := a.ElemKind.ElemByteSize()
	off := index * size
	for i := 0; i < size; i++ {
		a.Bytes[off+i] = byte(value >> (8 * i))
	}
	return nil
}

// CheckedBoundsEnabled gates the optional array bounds check spec.md §9
// leaves as an open question ("may optionally add checked stores"). It
// defaults to off, matching the baseline's documented no-bounds-check
// behaviour; internal/vm can flip it on for a stricter, still-conforming
// execution mode.
var CheckedBoundsEnabled = false
