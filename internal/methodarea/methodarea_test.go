package methodarea

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jvmgo/internal/classfile"
)

// mapResolver serves class bytes from an in-memory map, standing in for the
// external resolver (§6) in tests.
type mapResolver map[string][]byte

func (m mapResolver) Resolve(name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, assertErr(name)
	}
	return b, nil
}

func assertErr(name string) error { return &notFoundErr{name} }

type notFoundErr struct{ name string }

func (e *notFoundErr) Error() string { return "class not found: " + e.name }

// buildClass assembles a class with the given name, superclass, one
// declared method (name/descriptor, no Code, so it behaves like an
// abstract/native stub for resolution-only tests), and no fields.
func buildClass(t *testing.T, name, super string, methodName, methodDesc string) []byte {
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

	hasSuper := super != ""
	count := 5
	if hasSuper {
		count = 7
	}
	w16(uint16(count))
	wutf8(name)                    // #1
	buf.WriteByte(classfile.TagClass)
	w16(1) // #2 Class(name)
	idx := uint16(3)
	superClassIdx := uint16(0)
	if hasSuper {
		wutf8(super) // #3
		buf.WriteByte(classfile.TagClass)
		w16(3) // #4 Class(super)
		superClassIdx = 4
		idx = 5
	}
	wutf8(methodName) // method name
	methodNameIdx := idx
	idx++
	wutf8(methodDesc) // method descriptor
	methodDescIdx := idx

	w16(classfile.AccPublic | classfile.AccSuper)
	w16(2)             // this_class
	w16(superClassIdx) // super_class
	w16(0)              // interfaces
	w16(0)              // fields
	w16(1)              // methods
	w16(classfile.AccPublic)
	w16(methodNameIdx)
	w16(methodDescIdx)
	w16(0) // no attributes
	w16(0) // class attributes

	return buf.Bytes()
}

func TestLoadClassIsIdempotent(t *testing.T) {
	res := mapResolver{
		"java/lang/Object": buildClass(t, "java/lang/Object", "", "<init>", "()V"),
	}
	var initCount int
	ma := New(res, func(c *Class, m *classfile.MethodInfo) error {
		initCount++
		return nil
	})

	c1, err := ma.LoadClass("java/lang/Object")
	require.NoError(t, err)
	c2, err := ma.LoadClass("java/lang/Object")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestMethodResolutionWalksSuperclassChain(t *testing.T) {
	res := mapResolver{
		"pkg/A": buildClass(t, "pkg/A", "", "f", "()I"),
		"pkg/B": buildClass(t, "pkg/B", "pkg/A", "g", "()I"),
	}
	ma := New(res, nil)
	b, err := ma.LoadClass("pkg/B")
	require.NoError(t, err)

	declaring, method, ok := ma.GetMethod(b, "f", "()I")
	require.True(t, ok)
	assert.Equal(t, "pkg/A", declaring.Name())
	assert.Equal(t, "f", method.Name)

	_, _, ok = ma.GetMethod(b, "nonexistent", "()I")
	assert.False(t, ok)
}

func TestStaticFieldReadWrite(t *testing.T) {
	res := mapResolver{"pkg/C": buildClass(t, "pkg/C", "", "m", "()V")}
	ma := New(res, nil)
	c, err := ma.LoadClass("pkg/C")
	require.NoError(t, err)

	c.PutStatic("counter", 7)
	v, ok := c.GetStatic("counter")
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v)

	_, ok = c.GetStatic("neverSet")
	assert.False(t, ok)
}
