package interp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jvmgo/internal/classfile"
	"jvmgo/internal/env"
	"jvmgo/internal/frame"
	"jvmgo/internal/methodarea"
	"jvmgo/internal/natives"
	"jvmgo/internal/objheap"
)

// mapResolver serves class bytes from an in-memory map, the same stand-in
// for the external resolver (§6) used by methodarea's and jitdispatch's own
// tests.
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

// newTestInterp wires a minimal Interp with no JIT dispatcher (nil, so
// every method stays interpreted) over an in-memory resolver.
func newTestInterp(res mapResolver) *Interp {
	ma := methodarea.New(res, nil)
	e := env.New(objheap.New(), ma, nil, frame.NewStack(), zap.NewNop().Sugar())
	return New(e, natives.NewRegistry(), nil)
}

// buildClassNoMethods assembles a minimal class with a name and no declared
// methods — tests in this file attach their own in-memory
// *classfile.MethodInfo for opcode sequences that don't touch the constant
// pool, matching jitdispatch_test.go's established pattern.
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
	wutf8(name)
	buf.WriteByte(classfile.TagClass)
	w16(1)

	w16(classfile.AccPublic | classfile.AccSuper)
	w16(2)
	w16(0)
	w16(0)
	w16(0)
	w16(0)
	w16(0)

	return buf.Bytes()
}

func newTestClass(t *testing.T, res mapResolver, name string) *methodarea.Class {
	t.Helper()
	ma := methodarea.New(res, nil)
	c, err := ma.LoadClass(name)
	require.NoError(t, err)
	return c
}

func TestArithmeticComputesExpression(t *testing.T) {
	// (2 + 3) * 4, staged through a local: bipush 2, bipush 3, iadd, istore_1,
	// bipush 4, iload_1, imul, ireturn.
	bc := []byte{
		opBipush, 2,
		opBipush, 3,
		opIadd,
		opIstore1,
		opBipush, 4,
		opIload1,
		opImul,
		opIreturn,
	}
	method := &classfile.MethodInfo{
		Name:       "compute",
		Descriptor: "()I",
		Code:       &classfile.CodeAttribute{MaxLocals: 2, Bytecode: bc},
	}
	res := mapResolver{"Calc": buildClassNoMethods(t, "Calc")}
	class := newTestClass(t, res, "Calc")
	in := newTestInterp(res)

	result, err := in.Invoke(class, method, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), result)
}

func TestBackwardBranchSumsOneToTen(t *testing.T) {
	// int sum = 0, i = 1; while (i <= 10) { sum += i; i++ } return sum;
	// locals: 0=sum, 1=i
	bc := buildSumLoop()

	method := &classfile.MethodInfo{
		Name:       "sum",
		Descriptor: "()I",
		Code:       &classfile.CodeAttribute{MaxLocals: 2, Bytecode: bc},
	}
	res := mapResolver{"Sum": buildClassNoMethods(t, "Sum")}
	class := newTestClass(t, res, "Sum")
	in := newTestInterp(res)

	result, err := in.Invoke(class, method, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(55), result)
}

// buildSumLoop hand-assembles:
//
//	0: iconst_0
//	1: istore_0       ; sum = 0
//	2: bipush 1
//	4: istore_1       ; i = 1
//	5: iload_1        <- loop head
//	6: bipush 10
//	8: if_icmpgt 21   ; branch to exit if i > 10
//	11: iload_0
//	12: iload_1
//	13: iadd
//	14: istore_0       ; sum += i
//	15: iinc 1, 1       ; i++
//	18: goto 5          (actually placed after iinc; recomputed below)
//	21: iload_0         ; exit: load sum
//	22: ireturn
func buildSumLoop() []byte {
	bc := make([]byte, 23)
	bc[0] = 0x03 // iconst_0
	bc[1] = opIstore0
	bc[2] = opBipush
	bc[3] = 1
	bc[4] = opIstore1
	// loop head @5
	bc[5] = opIload1
	bc[6] = opBipush
	bc[7] = 10
	bc[8] = opIfIcmpgt
	// offset for if_icmpgt is relative to pc=8; exit target is pc=21
	putOffset(bc, 8, 21-8)
	bc[11] = opIload0
	bc[12] = opIload1
	bc[13] = opIadd
	bc[14] = opIstore0
	bc[15] = opIinc
	bc[16] = 1
	bc[17] = 1
	bc[18] = opGoto
	// goto back to loop head (pc=5) from pc=18
	putOffset(bc, 18, 5-18)
	bc[21] = opIload0
	bc[22] = opIreturn
	return bc
}

func putOffset(bc []byte, at int, offset int) {
	bc[at+1] = byte(int16(offset) >> 8)
	bc[at+2] = byte(int16(offset))
}

func TestInvokeStaticDispatchesToDeclaringClass(t *testing.T) {
	adderBytes, mainBytes := buildAdderAndMain(t)
	res := mapResolver{"Adder": adderBytes, "Main": mainBytes}
	ma := methodarea.New(res, nil)
	mainClass, err := ma.LoadClass("Main")
	require.NoError(t, err)

	e := env.New(objheap.New(), ma, nil, frame.NewStack(), zap.NewNop().Sugar())
	in := New(e, natives.NewRegistry(), nil)

	_, mainMethod, ok := ma.GetMethod(mainClass, "main", "()I")
	require.True(t, ok)

	result, err := in.Invoke(mainClass, mainMethod, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), result)
}

// buildAdderAndMain assembles two real class files (full constant pools,
// so invokestatic can resolve through Methodref/NameAndType like production
// bytecode does): Adder.add(II)I returns its two int params summed, and
// Main.main()I pushes 3 and 4 and invokes Adder.add.
func buildAdderAndMain(t *testing.T) (adder, main []byte) {
	t.Helper()

	var abuf bytes.Buffer
	w16 := func(buf *bytes.Buffer, v uint16) { binary.Write(buf, binary.BigEndian, v) }
	w32 := func(buf *bytes.Buffer, v uint32) { binary.Write(buf, binary.BigEndian, v) }
	wutf8 := func(buf *bytes.Buffer, s string) {
		buf.WriteByte(classfile.TagUtf8)
		w16(buf, uint16(len(s)))
		buf.WriteString(s)
	}

	// Adder: #1 Utf8 "Adder" #2 Class(#1) #3 Utf8 "add" #4 Utf8 "(II)I"
	// #5 Utf8 "Code"
	w32(&abuf, classfile.ClassFileMagic)
	w16(&abuf, 0)
	w16(&abuf, 52)
	w16(&abuf, 6)
	wutf8(&abuf, "Adder")
	abuf.WriteByte(classfile.TagClass)
	w16(&abuf, 1)
	wutf8(&abuf, "add")
	wutf8(&abuf, "(II)I")
	wutf8(&abuf, "Code")

	w16(&abuf, classfile.AccPublic|classfile.AccSuper)
	w16(&abuf, 2) // this_class
	w16(&abuf, 0) // super_class
	w16(&abuf, 0) // interfaces
	w16(&abuf, 0) // fields
	w16(&abuf, 1) // methods
	w16(&abuf, classfile.AccPublic|classfile.AccStatic)
	w16(&abuf, 3) // name "add"
	w16(&abuf, 4) // descriptor "(II)I"
	w16(&abuf, 1) // one attribute: Code
	w16(&abuf, 5) // attribute name "Code"
	addCode := []byte{opIload0, opIload1, opIadd, opIreturn}
	codeInfo := encodeCodeAttribute(t, 2, 2, addCode)
	w32(&abuf, uint32(len(codeInfo)))
	abuf.Write(codeInfo)
	w16(&abuf, 0) // class attributes

	// Main: #1 Utf8 "Main" #2 Class(#1) #3 Utf8 "Adder" #4 Class(#3)
	// #5 Utf8 "add" #6 Utf8 "(II)I" #7 NameAndType(5,6) #8 Methodref(4,7)
	// #9 Utf8 "main" #10 Utf8 "()I" #11 Utf8 "Code"
	var mbuf bytes.Buffer
	w32(&mbuf, classfile.ClassFileMagic)
	w16(&mbuf, 0)
	w16(&mbuf, 52)
	w16(&mbuf, 12)
	wutf8(&mbuf, "Main")
	mbuf.WriteByte(classfile.TagClass)
	w16(&mbuf, 1)
	wutf8(&mbuf, "Adder")
	mbuf.WriteByte(classfile.TagClass)
	w16(&mbuf, 3)
	wutf8(&mbuf, "add")
	wutf8(&mbuf, "(II)I")
	mbuf.WriteByte(classfile.TagNameAndType)
	w16(&mbuf, 5)
	w16(&mbuf, 6)
	mbuf.WriteByte(classfile.TagMethodref)
	w16(&mbuf, 4)
	w16(&mbuf, 7)
	wutf8(&mbuf, "main")
	wutf8(&mbuf, "()I")
	wutf8(&mbuf, "Code")

	w16(&mbuf, classfile.AccPublic|classfile.AccSuper)
	w16(&mbuf, 2) // this_class
	w16(&mbuf, 0) // super_class
	w16(&mbuf, 0) // interfaces
	w16(&mbuf, 0) // fields
	w16(&mbuf, 1) // methods
	w16(&mbuf, classfile.AccPublic|classfile.AccStatic)
	w16(&mbuf, 9)  // name "main"
	w16(&mbuf, 10) // descriptor "()I"
	w16(&mbuf, 1)  // one attribute: Code
	w16(&mbuf, 11) // attribute name "Code"
	mainCode := []byte{
		opBipush, 3,
		opBipush, 4,
		opInvokestatic, 0, 8,
		opIreturn,
	}
	mainCodeInfo := encodeCodeAttribute(t, 2, 2, mainCode)
	w32(&mbuf, uint32(len(mainCodeInfo)))
	mbuf.Write(mainCodeInfo)
	w16(&mbuf, 0) // class attributes

	return abuf.Bytes(), mbuf.Bytes()
}

// encodeCodeAttribute writes a Code attribute's body (max_stack, max_locals,
// code_length, code, an empty exception table, and zero further attributes)
// exactly as classfile.reader.parseCodeAttribute expects to read it back.
func encodeCodeAttribute(t *testing.T, maxStack, maxLocals uint16, code []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, maxStack)
	binary.Write(&buf, binary.BigEndian, maxLocals)
	binary.Write(&buf, binary.BigEndian, uint32(len(code)))
	buf.Write(code)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // exception table length
	binary.Write(&buf, binary.BigEndian, uint16(0)) // attribute count
	return buf.Bytes()
}
