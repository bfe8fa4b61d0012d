// Package natives implements component G: a string-keyed table of host
// functions callable from the interpreter; JIT-emitted code makes no native
// calls (§4.G).
package natives

import (
	"fmt"

	"jvmgo/internal/env"
	"jvmgo/internal/types"
)

// Func is a native method body. For an instance method args[0] is the
// receiver and the parameters follow at args[1:]; for a static method args
// holds only the parameters. Each parameter occupies the slot width its
// Kind implies, unpacked from the operand stack by the caller according to
// the descriptor (§4.G, §6). The return value is ignored by the dispatcher
// when the descriptor's return kind is void.
type Func func(e *env.Env, args []uint64) (uint64, error)

// Registry is the native method table, keyed by
// "class/name.method:descriptor" per §4.G.
type Registry struct {
	table map[string]Func
	descs map[string]types.Descriptor
}

func NewRegistry() *Registry {
	return &Registry{table: make(map[string]Func), descs: make(map[string]types.Descriptor)}
}

func key(class, name, descriptor string) string {
	return class + "." + name + ":" + descriptor
}

// Register installs a native under "class/name.method:descriptor". It
// panics on a duplicate registration, since that can only be a programming
// error in the native set itself (not a Java-level condition).
func (r *Registry) Register(class, name, descriptor string, fn Func) {
	k := key(class, name, descriptor)
	if _, exists := r.table[k]; exists {
		panic(fmt.Sprintf("natives: duplicate registration for %s", k))
	}
	desc, err := types.ParseDescriptor(descriptor)
	if err != nil {
		panic(fmt.Sprintf("natives: bad descriptor for %s: %v", k, err))
	}
	r.table[k] = fn
	r.descs[k] = desc
}

// Lookup returns the native registered for class/name:descriptor, if any.
func (r *Registry) Lookup(class, name, descriptor string) (Func, bool) {
	fn, ok := r.table[key(class, name, descriptor)]
	return fn, ok
}

// Descriptor returns the parsed descriptor for a registered native. The
// interpreter and internal/jit do not call it; internal/jit declares no
// natives in the modules it emits.
func (r *Registry) Descriptor(class, name, descriptor string) (types.Descriptor, bool) {
	d, ok := r.descs[key(class, name, descriptor)]
	return d, ok
}

// Names lists every registered native key. internal/jit does not read it:
// the LLVM modules it emits declare no natives.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.table))
	for k := range r.table {
		out = append(out, k)
	}
	return out
}
