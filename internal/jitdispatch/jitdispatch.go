// Package jitdispatch implements component J: execution counters that
// decide when a method or loop has run often enough to compile, the
// marshalling trampoline between the interpreter's shared operand stack and
// a compiled function's boxed argument slice, and the glue that writes a
// successful compile's Invoke function back onto methodarea's JITState.
//
// Grounded on original_source's exec/vm.rs dispatcher glue for the
// behavioural contract (count, threshold, compile-or-give-up, trampoline)
// per spec.md §4.J; internal/interp never imports this package — it only
// depends on interp.Dispatcher, the same inversion methodarea.Initializer
// already uses for <clinit>.
package jitdispatch

import (
	"fmt"

	"go.uber.org/zap"

	"jvmgo/internal/cfg"
	"jvmgo/internal/classfile"
	"jvmgo/internal/jit"
	"jvmgo/internal/methodarea"
	"jvmgo/internal/types"
)

// WholeMethodThreshold and LoopThreshold are the unchanged counts from
// spec.md §4.J: a whole method compiles once its execution count exceeds 4,
// a loop once its backward-branch count exceeds 7.
const (
	WholeMethodThreshold = 4
	LoopThreshold         = 7
)

// Dispatcher implements interp.Dispatcher, counting method entries and
// backward branches and triggering a compile once the relevant threshold is
// crossed.
type Dispatcher struct {
	Backend jit.Backend
	Log     *zap.SugaredLogger
}

// New constructs a Dispatcher. A nil backend is replaced with
// jit.NullBackend, matching the test-mode default SPEC_FULL.md §4.I
// describes (cant-compile bookkeeping exercised without a host LLVM
// install).
func New(backend jit.Backend, log *zap.SugaredLogger) *Dispatcher {
	if backend == nil {
		backend = jit.NullBackend{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{Backend: backend, Log: log}
}

// OnMethodEntry bumps class/method's whole-method execution counter and, once
// it exceeds WholeMethodThreshold, attempts to compile the entire method.
// CantCompile is sticky: once set, this method is never retried.
func (d *Dispatcher) OnMethodEntry(class *methodarea.Class, method *classfile.MethodInfo) {
	if method.Code == nil {
		return
	}
	st := class.JITState(method)
	whole := st.Whole
	if whole.Compiled || whole.CantCompile {
		return
	}
	whole.ExecCount++
	if whole.ExecCount <= WholeMethodThreshold {
		return
	}
	if err := d.compileWhole(class, method, whole); err != nil {
		whole.CantCompile = true
		d.Log.Debugw("jit: whole-method compile declined", "class", class.Name(), "method", method.Name, "descriptor", method.Descriptor, "error", err.Error())
		return
	}
	whole.Compiled = true
	d.Log.Debugw("jit: whole-method compiled", "class", class.Name(), "method", method.Name)
}

// OnBackwardBranch bumps the per-loop execution counter for the loop headed
// at headPC and, once it exceeds LoopThreshold, attempts to compile just
// that loop's block span.
func (d *Dispatcher) OnBackwardBranch(class *methodarea.Class, method *classfile.MethodInfo, headPC, endPC int) {
	if method.Code == nil {
		return
	}
	js := class.JITState(method)
	ls := js.LoopState(headPC, endPC)
	if ls.Compiled || ls.CantCompile {
		return
	}
	ls.ExecCount++
	if ls.ExecCount <= LoopThreshold {
		return
	}
	if err := d.compileLoop(class, method, headPC, endPC, ls); err != nil {
		ls.CantCompile = true
		d.Log.Debugw("jit: loop compile declined", "class", class.Name(), "method", method.Name, "headPC", headPC, "error", err.Error())
		return
	}
	ls.Compiled = true
	d.Log.Debugw("jit: loop compiled", "class", class.Name(), "method", method.Name, "headPC", headPC)
}

func (d *Dispatcher) compileWhole(class *methodarea.Class, method *classfile.MethodInfo, whole *methodarea.WholeMethodState) error {
	desc, err := types.ParseDescriptor(method.Descriptor)
	if err != nil {
		return err
	}
	paramKinds := make([]types.Kind, len(desc.Params))
	intKinds := make([]int, len(desc.Params))
	for i, p := range desc.Params {
		paramKinds[i] = p.Kind
		if p.Kind != types.KindInt {
			return fmt.Errorf("jitdispatch: %s%s has a non-int parameter, outside the JIT's lowerable subset", method.Name, method.Descriptor)
		}
	}
	if desc.Return.Kind != types.KindInt && desc.Return.Kind != types.KindVoid {
		return fmt.Errorf("jitdispatch: %s%s has a non-int, non-void return, outside the JIT's lowerable subset", method.Name, method.Descriptor)
	}

	blocks := cfg.Build(method.Code)
	module, funcName, err := jit.CompileFunc(class.Name(), method, intKinds, blocks)
	if err != nil {
		return err
	}
	compiled, err := d.Backend.Compile(module, funcName)
	if err != nil {
		return err
	}
	whole.ParamKinds = paramKinds
	whole.ParamSlotWidth = desc.ParamsSlotWidth()
	whole.ReturnKind = desc.Return.Kind
	whole.Invoke = func(args []uint64) (uint64, error) {
		boxed := make([]int64, len(args))
		for i, a := range args {
			boxed[i] = int64(a)
		}
		result, err := compiled.Invoke(boxed)
		if err != nil {
			return 0, err
		}
		return uint64(result), nil
	}
	return nil
}

func (d *Dispatcher) compileLoop(class *methodarea.Class, method *classfile.MethodInfo, headPC, endPC int, ls *methodarea.LoopState) error {
	blocks := cfg.Build(method.Code)
	module, funcName, touchedLocals, err := jit.CompileLoop(class.Name(), method, headPC, endPC, blocks)
	if err != nil {
		return err
	}
	compiled, err := d.Backend.Compile(module, funcName)
	if err != nil {
		return err
	}
	// Every local CompileLoop actually read or wrote lowers through the
	// integer-only opcode subset (emitBlock rejects anything else), so each
	// one is known int-typed here — this is where LocalOffsetTypes (§4.I's
	// "each local's type is inferred from its load/store opcodes") gets
	// populated, straight from the emitter's own bookkeeping rather than a
	// second bytecode scan.
	kinds := make(map[int]types.Kind, len(touchedLocals))
	for _, idx := range touchedLocals {
		kinds[idx] = types.KindInt
	}
	ls.LocalOffsetTypes = kinds
	ls.Invoke = func(locals []uint64) (int, error) {
		boxed := make([]int64, len(locals))
		for i, v := range locals {
			boxed[i] = int64(v)
		}
		resumePC, err := compiled.Invoke(boxed)
		if err != nil {
			return 0, err
		}
		for i := range locals {
			if i < len(boxed) {
				locals[i] = uint64(boxed[i])
			}
		}
		return int(resumePC), nil
	}
	return nil
}
