// Package gc implements component D: a single-generation, threshold-
// triggered mark-and-sweep collector over the VM's documented root set.
package gc

import (
	"jvmgo/internal/classfile"
	"jvmgo/internal/frame"
	"jvmgo/internal/methodarea"
	"jvmgo/internal/objheap"
)

// Threshold is the live-byte level that triggers a collection cycle (§4.D).
const Threshold = 10 * 1024 * 1024 // 10 MiB

// Roots is everything the collector needs read access to in order to trace
// the VM's root set (§4.D, glossary "Root set"): the frame stack, the
// shared operand stack, every loaded class's statics and interned Utf8
// handles. internal/vm supplies a live view of these each cycle; gc does
// not own any of them, matching the arena-plus-handles ownership model of
// spec.md §9.
type Roots struct {
	Heap    *objheap.Heap
	Area    *methodarea.MethodArea
	Frames  *frame.Stack
	Classes func() []*methodarea.Class
}

// Collector runs mark-and-sweep cycles over a Heap. It may be globally
// disabled for debugging (§4.D); object identity is always preserved
// across cycles since the collector never moves memory.
type Collector struct {
	roots    Roots
	disabled bool
}

func New(roots Roots) *Collector {
	return &Collector{roots: roots}
}

// SetDisabled toggles the debug-mode collection disable switch from §4.D.
func (c *Collector) SetDisabled(disabled bool) { c.disabled = disabled }

// MaybeCollect is called after every allocation-producing opcode (§4.D). It
// runs a cycle only once the heap's live-byte counter exceeds Threshold.
func (c *Collector) MaybeCollect() {
	if c.disabled {
		return
	}
	if c.roots.Heap.LiveBytes() <= Threshold {
		return
	}
	c.Collect()
}

// Collect runs one unconditional mark-and-sweep cycle, ignoring the
// threshold. Exposed for tests and for callers that want a deterministic
// collection point.
func (c *Collector) Collect() {
	marked := make(map[uint64]bool)

	// Trace the frame stack: every frame's class pointer's statics, plus
	// every live operand-stack slot interpreted as a potential pointer —
	// non-pointer primitives are filtered by the allocation registry, so a
	// slot is only followed if it is a currently-registered handle (§4.D).
	if c.roots.Frames != nil {
		for _, fr := range c.roots.Frames.Snapshot() {
			if fr.Class != nil {
				c.traceClass(fr.Class, marked)
			}
			for _, slot := range c.roots.Frames.LiveSlotsOf(fr) {
				c.traceValue(slot, marked)
			}
		}
	}

	// Trace every loaded class's statics and interned Utf8 constants.
	if c.roots.Classes != nil {
		for _, cl := range c.roots.Classes() {
			c.traceClass(cl, marked)
		}
	}

	c.roots.Heap.Sweep(marked)
}

func (c *Collector) traceClass(cl *methodarea.Class, marked map[uint64]bool) {
	for _, name := range cl.StaticNames() {
		if v, ok := cl.GetStatic(name); ok {
			c.traceValue(v, marked)
		}
	}
	for _, entry := range cl.ConstantPool {
		if u, ok := entry.(*classfile.CPUtf8); ok && u.InternedRef != 0 {
			c.traceValue(u.InternedRef, marked)
		}
	}
	if cl.Super != nil {
		c.traceClass(cl.Super, marked)
	}
}

// traceValue marks ref as reachable if — and only if — it is a registered
// allocation, and recursively traces what it points to. A value that is
// not a registered allocation is simply a primitive int/float/double slot
// and is not followed; this is the GC-contract-violation-is-not-an-error
// tolerance of §7.
func (c *Collector) traceValue(ref uint64, marked map[uint64]bool) {
	if ref == 0 || marked[ref] {
		return
	}
	if !c.roots.Heap.IsAllocation(ref) {
		return
	}
	marked[ref] = true

	if obj, ok := c.roots.Heap.GetObject(ref); ok {
		for _, slot := range obj.Slots {
			c.traceValue(slot, marked)
		}
		return
	}
	if arr, ok := c.roots.Heap.GetArray(ref); ok {
		if arr.ElemKind == objheap.KindObjectArray {
			for i := 0; i < arr.Count; i++ {
				c.traceValue(objheap.GetObjArrayElem(arr, i), marked)
			}
		}
	}
}
