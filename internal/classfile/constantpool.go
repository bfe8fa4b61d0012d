package classfile

// Constant-pool tags, per JVMS §4.4. Values match the class-file format
// exactly; unlisted tags (Module=19, Package=20, Dynamic=17) are rejected by
// the reader since the core's scope is the subset described in spec.md §3.
const (
	TagUtf8               = 1
	TagInteger             = 3
	TagFloat               = 4
	TagLong                = 5
	TagDouble              = 6
	TagClass               = 7
	TagString              = 8
	TagFieldref            = 9
	TagMethodref           = 10
	TagInterfaceMethodref  = 11
	TagNameAndType         = 12
	TagMethodHandle        = 15
	TagMethodType          = 16
	TagInvokeDynamic       = 18
)

// CPEntry is one tagged constant-pool entry. The concrete types below
// realize the "tagged variant" union described in spec.md §3 as an
// interface plus one struct per case, which is the idiomatic Go rendition
// of a sum type; a type switch replaces a Rust `match`.
type CPEntry interface {
	Tag() int
}

// CPNone occupies slot 0 and the slot immediately following a Long or
// Double entry. It must never be dereferenced as a real entry (§3, §8).
type CPNone struct{}

func (CPNone) Tag() int { return 0 }

// CPUtf8 carries the decoded string plus, once a `String` constant
// referencing it is interned, the heap handle for the corresponding Java
// string object. InternedRef is initialised at most once (§3 invariant);
// 0 means "not yet interned".
type CPUtf8 struct {
	Value       string
	InternedRef uint64
}

func (CPUtf8) Tag() int { return TagUtf8 }

type CPInteger struct{ Value int32 }

func (CPInteger) Tag() int { return TagInteger }

type CPFloat struct{ Value float32 }

func (CPFloat) Tag() int { return TagFloat }

type CPLong struct{ Value int64 }

func (CPLong) Tag() int { return TagLong }

type CPDouble struct{ Value float64 }

func (CPDouble) Tag() int { return TagDouble }

type CPClass struct{ NameIndex uint16 }

func (CPClass) Tag() int { return TagClass }

type CPString struct{ Utf8Index uint16 }

func (CPString) Tag() int { return TagString }

type CPFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (CPFieldref) Tag() int { return TagFieldref }

type CPMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (CPMethodref) Tag() int { return TagMethodref }

type CPInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (CPInterfaceMethodref) Tag() int { return TagInterfaceMethodref }

type CPNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (CPNameAndType) Tag() int { return TagNameAndType }

type CPMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (CPMethodHandle) Tag() int { return TagMethodHandle }

type CPMethodType struct{ DescriptorIndex uint16 }

func (CPMethodType) Tag() int { return TagMethodType }

type CPInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (CPInvokeDynamic) Tag() int { return TagInvokeDynamic }

// ConstantPool is 1-indexed with an unused CPNone at slot 0, per §3.
type ConstantPool []CPEntry

func (cp ConstantPool) Get(index uint16) (CPEntry, bool) {
	if int(index) <= 0 || int(index) >= len(cp) {
		return nil, false
	}
	return cp[index], true
}

func (cp ConstantPool) Utf8(index uint16) (string, bool) {
	e, ok := cp.Get(index)
	if !ok {
		return "", false
	}
	u, ok := e.(*CPUtf8)
	if !ok {
		return "", false
	}
	return u.Value, true
}

// ClassName resolves a CONSTANT_Class_info entry to its binary name.
func (cp ConstantPool) ClassName(index uint16) (string, bool) {
	e, ok := cp.Get(index)
	if !ok {
		return "", false
	}
	c, ok := e.(*CPClass)
	if !ok {
		return "", false
	}
	return cp.Utf8(c.NameIndex)
}

// NameAndType resolves a CONSTANT_NameAndType_info entry to (name, descriptor).
func (cp ConstantPool) NameAndType(index uint16) (name, descriptor string, ok bool) {
	e, found := cp.Get(index)
	if !found {
		return "", "", false
	}
	nt, ok := e.(*CPNameAndType)
	if !ok {
		return "", "", false
	}
	name, ok1 := cp.Utf8(nt.NameIndex)
	descriptor, ok2 := cp.Utf8(nt.DescriptorIndex)
	return name, descriptor, ok1 && ok2
}

// RefInfo resolves a Fieldref/Methodref/InterfaceMethodref entry to its
// owning class name plus member name and descriptor.
func (cp ConstantPool) RefInfo(index uint16) (class, name, descriptor string, ok bool) {
	e, found := cp.Get(index)
	if !found {
		return "", "", "", false
	}
	var classIndex, natIndex uint16
	switch r := e.(type) {
	case *CPFieldref:
		classIndex, natIndex = r.ClassIndex, r.NameAndTypeIndex
	case *CPMethodref:
		classIndex, natIndex = r.ClassIndex, r.NameAndTypeIndex
	case *CPInterfaceMethodref:
		classIndex, natIndex = r.ClassIndex, r.NameAndTypeIndex
	default:
		return "", "", "", false
	}
	class, ok1 := cp.ClassName(classIndex)
	name, descriptor, ok2 := cp.NameAndType(natIndex)
	return class, name, descriptor, ok1 && ok2
}
