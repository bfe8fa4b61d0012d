package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ClassFileMagic is the leading four bytes every class file must carry.
const ClassFileMagic = 0xCAFEBABE

// knownAttributes is the set of attribute names the reader understands by
// name, per spec.md §4.A. Anything else is a fatal, loud rejection rather
// than a silent skip — the spec requires this so a class using a feature
// the core doesn't model (e.g. BootstrapMethods for invokedynamic) fails at
// load time instead of misbehaving at run time.
var knownAttributes = map[string]bool{
	"Code":                      true,
	"LineNumberTable":           true,
	"SourceFile":                true,
	"StackMapTable":             true,
	"Signature":                 true,
	"Exceptions":                true,
	"Deprecated":                true,
	"RuntimeVisibleAnnotations": true,
	"InnerClasses":              true,
	"ConstantValue":             true,
}

// reader holds the cursor over the raw class bytes while parsing.
type reader struct {
	r  *bytes.Reader
	cp ConstantPool
}

// Parse reads one class file from r and produces its in-memory form. The
// byte stream is consumed fully in network (big-endian) byte order, as the
// class-file format requires.
func Parse(data []byte) (*ClassFile, error) {
	rd := &reader{r: bytes.NewReader(data)}

	magic, err := rd.u32()
	if err != nil {
		return nil, errors.Wrap(err, "classfile: reading magic")
	}
	if magic != ClassFileMagic {
		return nil, fmt.Errorf("classfile: bad magic %#08x, want %#08x", magic, uint32(ClassFileMagic))
	}

	cf := &ClassFile{}
	if cf.MinorVersion, err = rd.u16(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading minor version")
	}
	if cf.MajorVersion, err = rd.u16(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading major version")
	}

	if err := rd.readConstantPool(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading constant pool")
	}
	cf.ConstantPool = rd.cp

	if cf.AccessFlags, err = rd.u16(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading access flags")
	}
	if cf.ThisClass, err = rd.u16(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading this_class")
	}
	if cf.SuperClass, err = rd.u16(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading super_class")
	}

	ifaceCount, err := rd.u16()
	if err != nil {
		return nil, errors.Wrap(err, "classfile: reading interfaces_count")
	}
	cf.Interfaces = make([]uint16, ifaceCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = rd.u16(); err != nil {
			return nil, errors.Wrap(err, "classfile: reading interface index")
		}
	}

	if cf.Fields, err = rd.readFields(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading fields")
	}
	if cf.Methods, err = rd.readMethods(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading methods")
	}
	if cf.Attributes, err = rd.readAttributes(); err != nil {
		return nil, errors.Wrap(err, "classfile: reading class attributes")
	}
	for _, a := range cf.Attributes {
		if a.Name == "SourceFile" {
			idx := binary.BigEndian.Uint16(a.Info)
			cf.SourceFile, _ = cf.ConstantPool.Utf8(idx)
		}
	}

	return cf, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.r.ReadByte()
	return b, err
}

func (r *reader) u16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (r *reader) u32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (r *reader) u64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (r *reader) bytesN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readConstantPool honours the long/double "double-slot" rule: a Long or
// Double entry consumes its own index plus the following one, which is left
// as CPNone and must never be dereferenced (§3, §8).
func (r *reader) readConstantPool() error {
	count, err := r.u16()
	if err != nil {
		return err
	}
	r.cp = make(ConstantPool, count) // slot 0 left as nil -> filled below
	r.cp[0] = CPNone{}

	for i := 1; i < int(count); i++ {
		tag, err := r.u8()
		if err != nil {
			return errors.Wrapf(err, "reading tag for cp index %d", i)
		}
		entry, wide, err := r.readCPEntry(tag)
		if err != nil {
			return errors.Wrapf(err, "reading cp entry %d (tag %d)", i, tag)
		}
		r.cp[i] = entry
		if wide {
			i++
			if i < int(count) {
				r.cp[i] = CPNone{}
			}
		}
	}
	for i := range r.cp {
		if r.cp[i] == nil {
			r.cp[i] = CPNone{}
		}
	}
	return nil
}

// readCPEntry reads one constant-pool entry body. wide is true for Long and
// Double, which occupy two consecutive indices.
func (r *reader) readCPEntry(tag uint8) (entry CPEntry, wide bool, err error) {
	switch tag {
	case TagUtf8:
		n, err := r.u16()
		if err != nil {
			return nil, false, err
		}
		b, err := r.bytesN(int(n))
		if err != nil {
			return nil, false, err
		}
		return &CPUtf8{Value: string(b)}, false, nil
	case TagInteger:
		v, err := r.u32()
		if err != nil {
			return nil, false, err
		}
		return &CPInteger{Value: int32(v)}, false, nil
	case TagFloat:
		v, err := r.u32()
		if err != nil {
			return nil, false, err
		}
		return &CPFloat{Value: math32FromBits(v)}, false, nil
	case TagLong:
		v, err := r.u64()
		if err != nil {
			return nil, false, err
		}
		return &CPLong{Value: int64(v)}, true, nil
	case TagDouble:
		v, err := r.u64()
		if err != nil {
			return nil, false, err
		}
		return &CPDouble{Value: math64FromBits(v)}, true, nil
	case TagClass:
		idx, err := r.u16()
		if err != nil {
			return nil, false, err
		}
		return &CPClass{NameIndex: idx}, false, nil
	case TagString:
		idx, err := r.u16()
		if err != nil {
			return nil, false, err
		}
		return &CPString{Utf8Index: idx}, false, nil
	case TagFieldref:
		a, b, err := r.u16pair()
		if err != nil {
			return nil, false, err
		}
		return &CPFieldref{ClassIndex: a, NameAndTypeIndex: b}, false, nil
	case TagMethodref:
		a, b, err := r.u16pair()
		if err != nil {
			return nil, false, err
		}
		return &CPMethodref{ClassIndex: a, NameAndTypeIndex: b}, false, nil
	case TagInterfaceMethodref:
		a, b, err := r.u16pair()
		if err != nil {
			return nil, false, err
		}
		return &CPInterfaceMethodref{ClassIndex: a, NameAndTypeIndex: b}, false, nil
	case TagNameAndType:
		a, b, err := r.u16pair()
		if err != nil {
			return nil, false, err
		}
		return &CPNameAndType{NameIndex: a, DescriptorIndex: b}, false, nil
	case TagMethodHandle:
		kind, err := r.u8()
		if err != nil {
			return nil, false, err
		}
		idx, err := r.u16()
		if err != nil {
			return nil, false, err
		}
		return &CPMethodHandle{ReferenceKind: kind, ReferenceIndex: idx}, false, nil
	case TagMethodType:
		idx, err := r.u16()
		if err != nil {
			return nil, false, err
		}
		return &CPMethodType{DescriptorIndex: idx}, false, nil
	case TagInvokeDynamic:
		a, b, err := r.u16pair()
		if err != nil {
			return nil, false, err
		}
		return &CPInvokeDynamic{BootstrapMethodAttrIndex: a, NameAndTypeIndex: b}, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported constant-pool tag %d", tag)
	}
}

func (r *reader) u16pair() (uint16, uint16, error) {
	a, err := r.u16()
	if err != nil {
		return 0, 0, err
	}
	b, err := r.u16()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (r *reader) readFields() ([]*FieldInfo, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	fields := make([]*FieldInfo, count)
	for i := range fields {
		f := &FieldInfo{}
		if f.AccessFlags, err = r.u16(); err != nil {
			return nil, err
		}
		if f.NameIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if f.DescriptorIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if f.Attributes, err = r.readAttributes(); err != nil {
			return nil, err
		}
		f.Name, _ = r.cp.Utf8(f.NameIndex)
		f.Descriptor, _ = r.cp.Utf8(f.DescriptorIndex)
		for _, a := range f.Attributes {
			if a.Name == "ConstantValue" {
				idx := binary.BigEndian.Uint16(a.Info)
				f.ConstantValue, _ = r.cp.Get(idx)
			}
		}
		fields[i] = f
	}
	return fields, nil
}

func (r *reader) readMethods() ([]*MethodInfo, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	methods := make([]*MethodInfo, count)
	for i := range methods {
		m := &MethodInfo{}
		if m.AccessFlags, err = r.u16(); err != nil {
			return nil, err
		}
		if m.NameIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if m.DescriptorIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if m.Attributes, err = r.readAttributes(); err != nil {
			return nil, err
		}
		m.Name, _ = r.cp.Utf8(m.NameIndex)
		m.Descriptor, _ = r.cp.Utf8(m.DescriptorIndex)
		for _, a := range m.Attributes {
			if a.Name == "Code" {
				code, err := r.parseCodeAttribute(a.Info)
				if err != nil {
					return nil, errors.Wrapf(err, "parsing Code attribute of %s%s", m.Name, m.Descriptor)
				}
				m.Code = code
			}
		}
		methods[i] = m
	}
	return methods, nil
}

// readAttributes reads one attribute_info table. An unrecognised attribute
// name is a fatal error per spec.md §4.A ("Unknown attribute names fail
// loudly").
func (r *reader) readAttributes() ([]Attribute, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, count)
	for i := range attrs {
		nameIdx, err := r.u16()
		if err != nil {
			return nil, err
		}
		length, err := r.u32()
		if err != nil {
			return nil, err
		}
		info, err := r.bytesN(int(length))
		if err != nil {
			return nil, err
		}
		name, ok := r.cp.Utf8(nameIdx)
		if !ok {
			return nil, fmt.Errorf("attribute name index %d is not a Utf8 entry", nameIdx)
		}
		if !knownAttributes[name] {
			return nil, fmt.Errorf("unknown attribute %q", name)
		}
		attrs[i] = Attribute{Name: name, Info: info}
	}
	return attrs, nil
}

// parseCodeAttribute lifts a Code attribute's raw bytes into a CodeAttribute,
// heap-owning the bytecode buffer so its address stays stable for the
// lifetime of the containing class (§3, §4.A).
func (r *reader) parseCodeAttribute(info []byte) (*CodeAttribute, error) {
	sub := &reader{r: bytes.NewReader(info), cp: r.cp}
	code := &CodeAttribute{}

	var err error
	if code.MaxStack, err = sub.u16(); err != nil {
		return nil, err
	}
	if code.MaxLocals, err = sub.u16(); err != nil {
		return nil, err
	}
	codeLen, err := sub.u32()
	if err != nil {
		return nil, err
	}
	bc, err := sub.bytesN(int(codeLen))
	if err != nil {
		return nil, err
	}
	// Copy into a freshly allocated, appropriately sized buffer: this is the
	// buffer whose address must remain stable across quickening rewrites.
	code.Bytecode = append([]byte(nil), bc...)

	excLen, err := sub.u16()
	if err != nil {
		return nil, err
	}
	code.ExceptionTable = make([]ExceptionTableEntry, excLen)
	for i := range code.ExceptionTable {
		var e ExceptionTableEntry
		if e.StartPC, err = sub.u16(); err != nil {
			return nil, err
		}
		if e.EndPC, err = sub.u16(); err != nil {
			return nil, err
		}
		if e.HandlerPC, err = sub.u16(); err != nil {
			return nil, err
		}
		if e.CatchType, err = sub.u16(); err != nil {
			return nil, err
		}
		code.ExceptionTable[i] = e
	}

	code.Attributes, err = sub.readAttributes()
	if err != nil {
		return nil, err
	}
	for _, a := range code.Attributes {
		if a.Name == "LineNumberTable" {
			code.LineNumbers = parseLineNumberTable(a.Info)
		}
	}
	return code, nil
}

func parseLineNumberTable(info []byte) map[int]int {
	if len(info) < 2 {
		return nil
	}
	n := binary.BigEndian.Uint16(info)
	out := make(map[int]int, n)
	for i := 0; i < int(n); i++ {
		off := 2 + i*4
		if off+4 > len(info) {
			break
		}
		pc := binary.BigEndian.Uint16(info[off:])
		line := binary.BigEndian.Uint16(info[off+2:])
		out[int(pc)] = int(line)
	}
	return out
}
