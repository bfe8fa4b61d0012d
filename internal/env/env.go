// Package env defines the runtime-environment handle threaded through the
// interpreter, the native registry, and JIT-emitted code: the "env*" first
// argument every native receives (§6), granting access to the method area
// and object heap so natives can allocate.
package env

import (
	"go.uber.org/zap"

	"jvmgo/internal/frame"
	"jvmgo/internal/gc"
	"jvmgo/internal/methodarea"
	"jvmgo/internal/objheap"
)

// Env is the single runtime-environment pointer passed to every native and
// reachable from JIT-emitted code's runtime calls (§6 External Interfaces,
// §2 control-flow narrative).
type Env struct {
	Heap   *objheap.Heap
	Area   *methodarea.MethodArea
	GC     *gc.Collector
	Stack  *frame.Stack
	Logger *zap.SugaredLogger
}

func New(heap *objheap.Heap, area *methodarea.MethodArea, collector *gc.Collector, stack *frame.Stack, logger *zap.SugaredLogger) *Env {
	return &Env{Heap: heap, Area: area, GC: collector, Stack: stack, Logger: logger}
}
