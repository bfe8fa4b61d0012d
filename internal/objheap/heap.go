// Package objheap implements component C: allocation of objects, primitive
// arrays, object arrays, and interned strings. Every allocation returns a
// u64 handle (the spec's "pointer bit-pattern") and registers itself with
// the GC for size accounting, following the arena-plus-stable-handle
// ownership strategy spec.md §9 prescribes in place of the original's raw,
// cyclic pointers.
package objheap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"jvmgo/internal/methodarea"
)

// Kind tags what an allocation actually is, so the GC can trace it
// correctly and so a stray primitive value on the operand stack that
// happens to collide with a live handle is never mistaken for a pointer
// (the allocation registry is the source of truth — §4.D).
type Kind int

const (
	KindObject Kind = iota
	KindByteArray
	KindCharArray
	KindIntArray
	KindLongArray
	KindFloatArray
	KindDoubleArray
	KindBoolArray
	KindShortArray
	KindObjectArray
)

// ElemByteSize is the per-element width of a primitive array Kind, used to
// size its raw byte buffer (§4.C).
func (k Kind) ElemByteSize() int {
	switch k {
	case KindByteArray, KindBoolArray:
		return 1
	case KindCharArray, KindShortArray:
		return 2
	case KindIntArray, KindFloatArray, KindObjectArray:
		return 4
	case KindLongArray, KindDoubleArray:
		return 8
	default:
		return 0
	}
}

// Object is a heap-allocated record: a pointer to its Class plus a dense
// vector of u64 field slots, one per flattened field ordinal (§3).
type Object struct {
	Class *methodarea.Class
	Slots []uint64
}

// Array is a heap-allocated record carrying an element-type tag and a raw
// byte buffer sized count*element_byte_size. As a special case it may embed
// a Go string — the compact representation for a Java string's backing
// char array (§3).
type Array struct {
	ElemKind  Kind
	ElemClass *methodarea.Class // populated when ElemKind == KindObjectArray
	Count     int
	Bytes     []byte  // unused when String != nil
	String    *string // non-nil iff this array is a Java string's char-array backing
}

// allocation is what the GC's registry tracks per live handle: enough to
// trace it (kind, object/array pointer) and to account its size.
type allocation struct {
	kind    Kind
	obj     *Object
	arr     *Array
	size    int
	marked  bool
}

// Heap owns every allocation. It never moves objects; only
// unreachability (determined by the GC) causes deallocation (§3).
type Heap struct {
	mu        sync.Mutex
	next      uint64
	allocs    map[uint64]*allocation
	liveBytes atomic.Int64

	onAllocate func(size int) // hook the GC uses to trigger MaybeCollect
}

func New() *Heap {
	return &Heap{
		allocs: make(map[uint64]*allocation),
		next:   1, // handle 0 is reserved for Java null
	}
}

// SetAllocationHook installs the callback the GC uses to observe every
// allocation and decide whether to run a cycle (§4.D). internal/vm wires
// this after constructing both the heap and the collector, since the two
// packages must not import each other directly.
func (h *Heap) SetAllocationHook(fn func(size int)) { h.onAllocate = fn }

func (h *Heap) register(a *allocation) uint64 {
	h.mu.Lock()
	ref := h.next
	h.next++
	h.allocs[ref] = a
	h.mu.Unlock()
	h.liveBytes.Add(int64(a.size))
	if h.onAllocate != nil {
		h.onAllocate(a.size)
	}
	return ref
}

// LiveBytes is the GC's live-byte counter (§4.D), kept as an atomic in
// anticipation of future parallelism per §5, though only ever touched from
// the single mutator goroutine in this implementation.
func (h *Heap) LiveBytes() int64 { return h.liveBytes.Load() }

// AllocationCount reports how many allocations are currently registered,
// used by property tests asserting GC safety (§8).
func (h *Heap) AllocationCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.allocs)
}

// Sweep deallocates every registered allocation whose handle is not a key
// of marked, decrementing the live-byte counter for each (§4.D step 4). The
// GC never moves surviving objects, so their handles remain valid.
func (h *Heap) Sweep(marked map[uint64]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ref, a := range h.allocs {
		if !marked[ref] {
			delete(h.allocs, ref)
			h.liveBytes.Add(-int64(a.size))
		}
	}
}

// IsAllocation reports whether ref is a currently-registered handle — the
// filter the GC's root-set trace uses to decide whether an operand-stack
// slot is a pointer or a primitive (§4.D's "GC contract violation" is *not*
// an error; it's simply not-followed).
func (h *Heap) IsAllocation(ref uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.allocs[ref]
	return ok
}

// GetObject dereferences ref as an Object, or (nil, false) if it isn't one.
func (h *Heap) GetObject(ref uint64) (*Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.allocs[ref]
	if !ok || a.obj == nil {
		return nil, false
	}
	return a.obj, true
}

// GetArray dereferences ref as an Array, or (nil, false) if it isn't one.
func (h *Heap) GetArray(ref uint64) (*Array, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.allocs[ref]
	if !ok || a.arr == nil {
		return nil, false
	}
	return a.arr, true
}

// NewObject allocates a zero-initialised object of class, sized to the
// method area's flattened field count (§4.C).
func (h *Heap) NewObject(class *methodarea.Class) uint64 {
	n := class.Area.ObjectFieldCount(class)
	obj := &Object{Class: class, Slots: make([]uint64, n)}
	size := 16 + n*8 // fixed per-kind constant, per spec.md §9's allowance
	return h.register(&allocation{kind: KindObject, obj: obj, size: size})
}

// NewArray allocates a primitive array of the given element kind and size.
func (h *Heap) NewArray(kind Kind, size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("objheap: negative array size %d", size)
	}
	elemSize := kind.ElemByteSize()
	arr := &Array{ElemKind: kind, Count: size, Bytes: make([]byte, size*elemSize)}
	return h.register(&allocation{kind: kind, arr: arr, size: 16 + size*elemSize}), nil
}

// NewObjArray allocates an array of size object references, all null.
func (h *Heap) NewObjArray(class *methodarea.Class, size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("objheap: negative array size %d", size)
	}
	arr := &Array{ElemKind: KindObjectArray, ElemClass: class, Count: size, Bytes: make([]byte, size*8)}
	return h.register(&allocation{kind: KindObjectArray, arr: arr, size: 16 + size*8}), nil
}

// NewMultiArray recursively constructs a multi-dimensional array: an
// KindObjectArray of KindObjectArray... bottoming out at elemKind arrays,
// one dimension per entry in counts (§4.C).
func (h *Heap) NewMultiArray(elemKind Kind, elemClass *methodarea.Class, counts []int) (uint64, error) {
	if len(counts) == 0 {
		return 0, fmt.Errorf("objheap: multianewarray with zero dimensions")
	}
	if len(counts) == 1 {
		if elemKind == KindObjectArray {
			return h.NewObjArray(elemClass, counts[0])
		}
		return h.NewArray(elemKind, counts[0])
	}
	outerSize := counts[0]
	outer := &Array{ElemKind: KindObjectArray, Count: outerSize, Bytes: make([]byte, outerSize*8)}
	ref := h.register(&allocation{kind: KindObjectArray, arr: outer, size: 16 + outerSize*8})
	for i := 0; i < outerSize; i++ {
		childRef, err := h.NewMultiArray(elemKind, elemClass, counts[1:])
		if err != nil {
			return 0, err
		}
		PutObjArrayElem(outer, i, childRef)
	}
	return ref, nil
}

// NewString boxes text as a java/lang/String object whose backing char
// array carries the UTF-8 payload directly (the compact representation
// from §3). method area is consulted to load java/lang/String and to find
// its "value" field's slot index.
func (h *Heap) NewString(text string, area *methodarea.MethodArea) (uint64, error) {
	strClass, err := area.LoadClass("java/lang/String")
	if err != nil {
		return 0, err
	}
	charArr := &Array{ElemKind: KindCharArray, Count: len(text), String: &text}
	arrRef := h.register(&allocation{kind: KindCharArray, arr: charArr, size: 16 + len(text)})

	objRef := h.NewObject(strClass)
	slot, _, ok := area.GetNumberedFieldInfo(strClass, "value")
	if ok {
		obj, _ := h.GetObject(objRef)
		obj.Slots[slot] = arrRef
	}
	return objRef, nil
}

// StringValue returns the Go string carried by a string-bearing char array,
// or the decoded contents of a plain char array otherwise.
func (a *Array) StringValue() string {
	if a.String != nil {
		return *a.String
	}
	runes := make([]rune, a.Count)
	for i := range runes {
		runes[i] = rune(uint16(a.Bytes[i*2]) | uint16(a.Bytes[i*2+1])<<8)
	}
	return string(runes)
}

// Length returns an array's element count. For a string-bearing char array
// this is the UTF-8 byte length of the embedded string, per §4.F's
// `arraylength` contract, not the rune count.
func (a *Array) Length() int {
	if a.String != nil {
		return len(*a.String)
	}
	return a.Count
}

func PutObjArrayElem(a *Array, index int, ref uint64) {
	off := index * 8
	for i := 0; i < 8; i++ {
		a.Bytes[off+i] = byte(ref >> (8 * i))
	}
}

func GetObjArrayElem(a *Array, index int) uint64 {
	off := index * 8
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(a.Bytes[off+i]) << (8 * i)
	}
	return v
}
