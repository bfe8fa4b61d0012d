// Package methodarea owns every loaded class, its constant pool, static
// fields, and per-method JIT state, and performs superclass-chain-aware
// method/field resolution — component B of the spec.
package methodarea

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"jvmgo/internal/classfile"
)

// Resolver locates the raw bytes for a binary class name. The default
// FileResolver implements §6's "./examples/<name>.class" contract; CLI
// argument parsing and any other source of class bytes are external
// collaborators per §1 and plug in through this interface.
type Resolver interface {
	Resolve(className string) ([]byte, error)
}

// FileResolver reads class bytes from disk under a configurable root,
// defaulting to "./examples".
type FileResolver struct {
	Root string
}

// Initializer runs a freshly-loaded class's <clinit>; LoadClass calls it for
// no other method, so <init> is not run on load. It is injected by the owning runtime
// (internal/vm) rather than imported directly, because running bytecode
// requires the interpreter, and the interpreter in turn needs the method
// area to resolve against — the same class/method-area back-reference cycle
// spec.md §3 calls out, broken here by dependency injection instead of an
// import cycle.
type Initializer func(class *Class, method *classfile.MethodInfo) error

// MethodArea is the single owner of every loaded Class.
type MethodArea struct {
	mu          sync.Mutex
	classes     map[string]*Class
	resolver    Resolver
	initializer Initializer
}

func New(resolver Resolver, init Initializer) *MethodArea {
	return &MethodArea{
		classes:     make(map[string]*Class),
		resolver:    resolver,
		initializer: init,
	}
}

// GetClass returns an already-loaded class, or (nil, false) if it hasn't
// been loaded yet.
func (ma *MethodArea) GetClass(name string) (*Class, bool) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	c, ok := ma.classes[name]
	return c, ok
}

// LoadClass resolves, parses, installs, and initialises a class by binary
// name. It is idempotent: a second call for an already-loaded class returns
// the cached instance without re-running <clinit> (§4.B).
func (ma *MethodArea) LoadClass(name string) (*Class, error) {
	ma.mu.Lock()
	if c, ok := ma.classes[name]; ok {
		ma.mu.Unlock()
		return c, nil
	}
	ma.mu.Unlock()

	raw, err := ma.resolver.Resolve(name)
	if err != nil {
		return nil, errors.Wrapf(err, "methodarea: resolving class %q", name)
	}
	cf, err := classfile.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "methodarea: parsing class %q", name)
	}
	if cf.Name() != name && name != "" {
		// Tolerate the caller requesting by a different spelling than the
		// class file's own this_class entry (e.g. a path-derived name);
		// the authoritative name is what the class file itself declares.
	}

	class := newClass(cf, ma)

	// Load the superclass first so the numbered-field flattening in
	// GetNumberedFieldInfo can walk a fully-populated chain.
	if super := cf.SuperName(); super != "" {
		superClass, err := ma.LoadClass(super)
		if err != nil {
			return nil, errors.Wrapf(err, "methodarea: loading superclass %q of %q", super, name)
		}
		class.Super = superClass
	}

	ma.mu.Lock()
	ma.classes[cf.Name()] = class
	ma.mu.Unlock()

	if ma.initializer != nil {
		if clinit := class.findDeclaredMethod("<clinit>", "()V"); clinit != nil {
			if err := ma.initializer(class, clinit); err != nil {
				return nil, errors.Wrapf(err, "methodarea: running <clinit> of %q", name)
			}
		}
	}

	return class, nil
}

// AllClasses returns every class currently loaded, for the GC's root-set
// trace over class statics and interned constants (§4.D). The returned
// slice is a snapshot; the *Class pointers themselves are shared and must
// not be mutated by the caller.
func (ma *MethodArea) AllClasses() []*Class {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	out := make([]*Class, 0, len(ma.classes))
	for _, c := range ma.classes {
		out = append(out, c)
	}
	return out
}

// GetMethod walks up the superclass chain starting at class, returning the
// first declaring class and method matching name+descriptor (§4.B).
func (ma *MethodArea) GetMethod(class *Class, name, descriptor string) (*Class, *classfile.MethodInfo, bool) {
	for c := class; c != nil; c = c.Super {
		if m := c.findDeclaredMethod(name, descriptor); m != nil {
			return c, m, true
		}
	}
	return nil, nil, false
}

// GetField walks up the superclass chain the same way GetMethod does.
func (ma *MethodArea) GetField(class *Class, name, descriptor string) (*Class, *classfile.FieldInfo, bool) {
	for c := class; c != nil; c = c.Super {
		if f := c.findDeclaredField(name, descriptor); f != nil {
			return c, f, true
		}
	}
	return nil, nil, false
}

// GetNumberedFieldInfo flattens class's inheritance chain (superclass
// fields first) and returns the stable ordinal assigned to name, used as
// the object-layout slot index (§3, §4.B).
func (ma *MethodArea) GetNumberedFieldInfo(class *Class, name string) (int, *classfile.FieldInfo, bool) {
	order := flattenFieldOrder(class)
	for i, f := range order {
		if f.Name == name {
			return i, f, true
		}
	}
	return -1, nil, false
}

// ObjectFieldCount returns the total number of instance-field slots an
// object of this class occupies, including inherited fields.
func (ma *MethodArea) ObjectFieldCount(class *Class) int {
	return len(flattenFieldOrder(class))
}

func flattenFieldOrder(class *Class) []*classfile.FieldInfo {
	var chain []*Class
	for c := class; c != nil; c = c.Super {
		chain = append(chain, c)
	}
	var order []*classfile.FieldInfo
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].ClassFile.Fields {
			if f.AccessFlags&classfile.AccStatic == 0 {
				order = append(order, f)
			}
		}
	}
	return order
}

func (r FileResolver) Resolve(className string) ([]byte, error) {
	root := r.Root
	if root == "" {
		root = "./examples"
	}
	path := fmt.Sprintf("%s/%s.class", root, className)
	return readFile(path)
}
