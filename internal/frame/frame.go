// Package frame implements component E: the frame stack and the shared
// flat operand stack, with the bp/sp discipline spec.md §3/§4.E define.
package frame

import (
	"jvmgo/internal/classfile"
	"jvmgo/internal/methodarea"
)

// InitialCapacity mirrors the teacher's fixed-size stack (GVM's
// StackSize), but as a starting capacity for a slice that is grown on
// demand — §4.E explicitly permits this relaxation ("typical depth 1024,
// grown on demand is permitted").
const InitialCapacity = 1024

// Frame is one activation record: a class pointer, method pointer, program
// counter, and the base/stack pointers into the shared operand stack (§3).
//
// SP is measured from BP and covers both locals and the operand stack
// proper: a frame addresses the shared stack as stack[BP:BP+SP]. On entry
// SP is advanced past MaxLocals so locals occupy stack[BP:BP+MaxLocals]
// and the operand stack proper occupies stack[BP+MaxLocals:BP+SP] (§4.E).
type Frame struct {
	Class  *methodarea.Class
	Method *classfile.MethodInfo
	PC     int
	BP     int
	SP     int
}

// MaxLocals is a convenience accessor onto the frame's method's Code
// attribute; frames for native methods never call this.
func (f *Frame) MaxLocals() int { return int(f.Method.Code.MaxLocals) }

// LocalsBase is the absolute index where this frame's locals begin.
func (f *Frame) LocalsBase() int { return f.BP }

// OperandBase is the absolute index where this frame's operand stack
// proper begins, i.e. just past its locals.
func (f *Frame) OperandBase() int { return f.BP + f.MaxLocals() }

// Top is the absolute index one past the frame's current top-of-stack
// slot — BP+SP.
func (f *Frame) Top() int { return f.BP + f.SP }
