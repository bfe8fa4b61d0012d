package methodarea

import (
	"math"
	"sync"

	"jvmgo/internal/classfile"
	"jvmgo/internal/types"
)

// Class is the runtime-facing wrapper around a parsed *classfile.ClassFile:
// it adds the superclass link, static field storage, and the per-method JIT
// state table described in spec.md §3. It carries a back-reference to its
// owning MethodArea, since resolution and JIT-emitted runtime calls both
// need to reach back into the method area from a bare *Class (§3).
type Class struct {
	*classfile.ClassFile
	Super *Class
	Area  *MethodArea

	staticsMu sync.Mutex
	statics   map[string]uint64

	jitMu sync.Mutex
	jit   map[methodKey]*JITState
}

func newClass(cf *classfile.ClassFile, area *MethodArea) *Class {
	c := &Class{
		ClassFile: cf,
		Area:      area,
		statics:   make(map[string]uint64),
		jit:       make(map[methodKey]*JITState),
	}
	for _, f := range cf.Fields {
		if f.AccessFlags&classfile.AccStatic != 0 {
			c.statics[f.Name] = staticInitialValue(f)
		}
	}
	return c
}

// staticInitialValue returns a ConstantValue attribute's value bit-punned
// into a u64 slot, or zero if the field has none.
func staticInitialValue(f *classfile.FieldInfo) uint64 {
	if f.ConstantValue == nil {
		return 0
	}
	switch v := f.ConstantValue.(type) {
	case *classfile.CPInteger:
		return uint64(uint32(v.Value))
	case *classfile.CPLong:
		return uint64(v.Value)
	case *classfile.CPFloat:
		return uint64(math.Float32bits(v.Value))
	case *classfile.CPDouble:
		return math.Float64bits(v.Value)
	default:
		return 0
	}
}

func (c *Class) findDeclaredMethod(name, descriptor string) *classfile.MethodInfo {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

func (c *Class) findDeclaredField(name, descriptor string) *classfile.FieldInfo {
	for _, f := range c.Fields {
		if f.Name == name && f.Descriptor == descriptor {
			return f
		}
	}
	return nil
}

// GetStatic reads a static field's current slot value.
func (c *Class) GetStatic(name string) (uint64, bool) {
	c.staticsMu.Lock()
	defer c.staticsMu.Unlock()
	v, ok := c.statics[name]
	return v, ok
}

// PutStatic writes a static field's slot value.
func (c *Class) PutStatic(name string, value uint64) {
	c.staticsMu.Lock()
	defer c.staticsMu.Unlock()
	c.statics[name] = value
}

// StaticNames returns every static field name this class declares directly
// (not inherited), used by the GC to trace class roots (§4.D).
func (c *Class) StaticNames() []string {
	c.staticsMu.Lock()
	defer c.staticsMu.Unlock()
	names := make([]string, 0, len(c.statics))
	for n := range c.statics {
		names = append(names, n)
	}
	return names
}

// InternedStringRef reads back the heap handle previously stored by
// SetInternedStringRef for the Utf8 entry at utf8Index, if any.
func (c *Class) InternedStringRef(utf8Index uint16) (ref uint64, has bool) {
	e, ok := c.ConstantPool.Get(utf8Index)
	if !ok {
		return 0, false
	}
	u, ok := e.(*classfile.CPUtf8)
	if !ok || u.InternedRef == 0 {
		return 0, false
	}
	return u.InternedRef, true
}

// SetInternedStringRef records the heap handle for a Utf8 constant's boxed
// java.lang.String, once. Per §3 this field is initialised at most once;
// callers (internal/interp) only call this the first time a `ldc`/`ldc_w`
// site interns the string.
func (c *Class) SetInternedStringRef(utf8Index uint16, ref uint64) {
	if e, ok := c.ConstantPool.Get(utf8Index); ok {
		if u, ok := e.(*classfile.CPUtf8); ok {
			u.InternedRef = ref
		}
	}
}

type methodKey struct {
	nameIndex, descIndex uint16
}

// WholeMethodState is the whole-method compilation slot from spec.md §3: an
// execution counter plus, once compiled, the function descriptor and a
// sticky cant-compile bit.
type WholeMethodState struct {
	ExecCount      int
	Compiled       bool
	CantCompile    bool
	ParamKinds     []types.Kind
	ParamSlotWidth int
	ReturnKind     types.Kind
	// Invoke is the dispatcher trampoline: marshals the operand-stack
	// argument window into the compiled function and returns its result.
	Invoke func(args []uint64) (uint64, error)
}

// LoopState is one entry of the loop-map from spec.md §3.
type LoopState struct {
	LoopEndPC      int
	ExecCount      int
	Compiled       bool
	CantCompile    bool
	LocalOffsetTypes map[int]types.Kind
	// Invoke hands per-local boxed pointers to the compiled loop and
	// receives back the bytecode pc to resume interpretation at.
	Invoke func(locals []uint64) (resumePC int, err error)
}

// JITState is the (whole-method slot, loop-map slot) pair from spec.md §3.
type JITState struct {
	mu    sync.Mutex
	Whole *WholeMethodState
	Loops map[int]*LoopState
}

// JITState returns (creating if necessary) the JIT state for one method,
// keyed by (name_index, descriptor_index) as spec.md §3 requires.
func (c *Class) JITState(m *classfile.MethodInfo) *JITState {
	key := methodKey{m.NameIndex, m.DescriptorIndex}
	c.jitMu.Lock()
	defer c.jitMu.Unlock()
	st, ok := c.jit[key]
	if !ok {
		st = &JITState{Whole: &WholeMethodState{}, Loops: make(map[int]*LoopState)}
		c.jit[key] = st
	}
	return st
}

// LoopState returns (creating if necessary) the loop-map entry for the loop
// headed at headPC.
func (js *JITState) LoopState(headPC, endPC int) *LoopState {
	js.mu.Lock()
	defer js.mu.Unlock()
	ls, ok := js.Loops[headPC]
	if !ok {
		ls = &LoopState{LoopEndPC: endPC}
		js.Loops[headPC] = ls
	}
	return ls
}
