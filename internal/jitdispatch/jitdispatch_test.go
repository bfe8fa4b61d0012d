package jitdispatch

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jvmgo/internal/classfile"
	"jvmgo/internal/jit"
	"jvmgo/internal/methodarea"
)

type mapResolver map[string][]byte

func (m mapResolver) Resolve(name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, &notFoundErr{name}
	}
	return b, nil
}

type notFoundErr struct{ name string }

func (e *notFoundErr) Error() string { return "class not found: " + e.name }

// buildClassNoMethods assembles a minimal class with a name, no superclass,
// and no declared methods — component tests in this package attach their
// own in-memory *classfile.MethodInfo directly rather than looking one up
// through the class file, so JITState's (name_index, descriptor_index) key
// only needs to be stable within a test, not resolvable.
func buildClassNoMethods(t *testing.T, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w16 := func(v uint16) { binary.Write(&buf, binary.BigEndian, v) }
	w32 := func(v uint32) { binary.Write(&buf, binary.BigEndian, v) }
	wutf8 := func(s string) {
		buf.WriteByte(classfile.TagUtf8)
		w16(uint16(len(s)))
		buf.WriteString(s)
	}

	w32(classfile.ClassFileMagic)
	w16(0)
	w16(52)

	w16(3)
	wutf8(name) // #1
	buf.WriteByte(classfile.TagClass)
	w16(1) // #2 Class(name)

	w16(classfile.AccPublic | classfile.AccSuper)
	w16(2) // this_class
	w16(0) // super_class
	w16(0) // interfaces
	w16(0) // fields
	w16(0) // methods
	w16(0) // class attributes

	return buf.Bytes()
}

func newTestClass(t *testing.T, name string) *methodarea.Class {
	t.Helper()
	res := mapResolver{name: buildClassNoMethods(t, name)}
	ma := methodarea.New(res, nil)
	c, err := ma.LoadClass(name)
	require.NoError(t, err)
	return c
}

func countingLoopMethod() *classfile.MethodInfo {
	bc := make([]byte, 15)
	bc[0] = 0x03  // iconst_0
	bc[1] = 0x3C  // istore_1
	bc[2] = 0x1B  // iload_1
	bc[3] = 0x08  // iconst_5
	bc[4] = 0xA2  // if_icmpge
	bc[5] = 0x00
	bc[6] = 0x0A
	bc[7] = 0x1B  // iload_1
	bc[8] = 0x04  // iconst_1
	bc[9] = 0x60  // iadd
	bc[10] = 0x3C // istore_1
	bc[11] = 0xA7 // goto
	bc[12] = 0xFF
	bc[13] = 0xF7
	bc[14] = 0xB1 // return
	return &classfile.MethodInfo{
		Name:       "count",
		Descriptor: "()V",
		Code:       &classfile.CodeAttribute{MaxLocals: 2, Bytecode: bc},
	}
}

func TestOnMethodEntryCompilesAfterThresholdExceeded(t *testing.T) {
	class := newTestClass(t, "Counter")
	method := countingLoopMethod()
	d := New(jit.NullBackend{}, nil)

	for i := 0; i < WholeMethodThreshold; i++ {
		d.OnMethodEntry(class, method)
	}
	st := class.JITState(method)
	assert.False(t, st.Whole.Compiled)
	assert.False(t, st.Whole.CantCompile)

	d.OnMethodEntry(class, method)
	assert.True(t, st.Whole.CantCompile, "NullBackend always declines, so the sticky bit should be set once the threshold is crossed")
	assert.False(t, st.Whole.Compiled)
}

func TestOnMethodEntryStopsRetryingOnceCantCompileIsSet(t *testing.T) {
	class := newTestClass(t, "Counter")
	method := countingLoopMethod()
	d := New(jit.NullBackend{}, nil)

	for i := 0; i < WholeMethodThreshold+1; i++ {
		d.OnMethodEntry(class, method)
	}
	st := class.JITState(method)
	require.True(t, st.Whole.CantCompile)
	countAfterFirstDecline := st.Whole.ExecCount

	d.OnMethodEntry(class, method)
	assert.Equal(t, countAfterFirstDecline, st.Whole.ExecCount, "counter must not keep incrementing once cant-compile is sticky")
}

func TestOnBackwardBranchCompilesLoopAfterThresholdExceeded(t *testing.T) {
	class := newTestClass(t, "Counter")
	method := countingLoopMethod()
	d := New(jit.NullBackend{}, nil)

	for i := 0; i < LoopThreshold+1; i++ {
		d.OnBackwardBranch(class, method, 2, 11)
	}
	st := class.JITState(method)
	ls := st.Loops[2]
	require.NotNil(t, ls)
	assert.True(t, ls.CantCompile)
}
