package jit

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jvmgo/internal/cfg"
	"jvmgo/internal/classfile"
)

// evalModule interprets a module CompileFunc/CompileLoop emitted by walking
// its typed llir/llvm IR objects directly — no opt/lli subprocess, so this
// runs the actual compiled control flow in any environment these tests run
// in, LLVM toolchain or not, and can assert the result agrees with what the
// interpreter would compute for the same bytecode (§8's "interpreter and
// JIT agree" property). It only understands the instruction set
// internal/jit's emitter ever produces: alloca/load/store, add/sub/mul,
// icmp, br/condbr/ret.
func evalModule(t *testing.T, module *ir.Module, args []int64) (result int64, locals []int64) {
	t.Helper()
	require.Len(t, module.Funcs, 1)
	fn := module.Funcs[0]
	require.Equal(t, len(args), len(fn.Params), "compiled function's parameter count must match the locals width it is invoked with")

	ssa := map[value.Value]int64{}
	for i, p := range fn.Params {
		ssa[p] = args[i]
	}
	cells := map[value.Value]*int64{}

	read := func(v value.Value) int64 {
		if c, ok := v.(*constant.Int); ok {
			return c.X.Int64()
		}
		got, ok := ssa[v]
		require.True(t, ok, "evalModule: unresolved SSA operand %v", v)
		return got
	}

	require.NotEmpty(t, fn.Blocks)
	block := fn.Blocks[0]
	for steps := 0; ; steps++ {
		require.Less(t, steps, 100000, "evalModule: instruction budget exceeded, probable infinite loop in emitted IR")
		for _, inst := range block.Insts {
			switch in := inst.(type) {
			case *ir.InstAlloca:
				zero := int64(0)
				cells[in] = &zero
			case *ir.InstStore:
				cell, ok := cells[in.Dst]
				require.True(t, ok, "evalModule: store to an untracked alloca")
				*cell = read(in.Src)
			case *ir.InstLoad:
				cell, ok := cells[in.Src]
				require.True(t, ok, "evalModule: load from an untracked alloca")
				ssa[in] = *cell
			case *ir.InstAdd:
				ssa[in] = read(in.X) + read(in.Y)
			case *ir.InstSub:
				ssa[in] = read(in.X) - read(in.Y)
			case *ir.InstMul:
				ssa[in] = read(in.X) * read(in.Y)
			case *ir.InstICmp:
				ssa[in] = boolToInt(evalICmp(in.Pred, read(in.X), read(in.Y)))
			default:
				t.Fatalf("evalModule: instruction %T outside the subset internal/jit emits", inst)
			}
		}
		switch term := block.Term.(type) {
		case *ir.TermRet:
			locals = finalLocals(cells, fn)
			if term.X == nil {
				return 0, locals
			}
			return read(term.X), locals
		case *ir.TermBr:
			block = term.Target
		case *ir.TermCondBr:
			if read(term.Cond) != 0 {
				block = term.TargetTrue
			} else {
				block = term.TargetFalse
			}
		default:
			t.Fatalf("evalModule: terminator %T outside the subset internal/jit emits", block.Term)
		}
	}
}

// finalLocals reads every local's alloca cell back out in slot order,
// mirroring what LoopState.Invoke's real, argument-slice-mutating contract
// hands back to interp.notifyBackwardBranch.
func finalLocals(cells map[value.Value]*int64, fn *ir.Func) []int64 {
	entry := fn.Blocks[0]
	out := make([]int64, 0, len(entry.Insts))
	for _, inst := range entry.Insts {
		if alloc, ok := inst.(*ir.InstAlloca); ok {
			out = append(out, *cells[alloc])
		}
	}
	return out
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func evalICmp(pred enum.IPred, a, b int64) bool {
	switch pred {
	case enum.IPredEQ:
		return a == b
	case enum.IPredNE:
		return a != b
	case enum.IPredSLT:
		return a < b
	case enum.IPredSGE:
		return a >= b
	case enum.IPredSGT:
		return a > b
	case enum.IPredSLE:
		return a <= b
	}
	return false
}

// buildSumLoopBytecode hand-assembles the same summing loop
// internal/interp's own test exercises at the opcode level: int sum = 0,
// i = 1; while (i <= 10) { sum += i; i++ } return sum; locals: 0=sum, 1=i.
func buildSumLoopBytecode() []byte {
	bc := make([]byte, 23)
	bc[0] = 0x03 // iconst_0
	bc[1] = 0x3B // istore_0
	bc[2] = 0x10 // bipush
	bc[3] = 1
	bc[4] = 0x3C // istore_1
	// loop head @5
	bc[5] = 0x1B // iload_1
	bc[6] = 0x10 // bipush
	bc[7] = 10
	bc[8] = 0xA3 // if_icmpgt
	setOffset(bc, 8, 21-8)
	bc[11] = 0x1A // iload_0
	bc[12] = 0x1B // iload_1
	bc[13] = 0x60 // iadd
	bc[14] = 0x3B // istore_0
	bc[15] = 0x84 // iinc
	bc[16] = 1
	bc[17] = 1
	bc[18] = 0xA7 // goto
	setOffset(bc, 18, 5-18)
	bc[21] = 0x1A // iload_0
	bc[22] = 0xAC // ireturn
	return bc
}

func setOffset(bc []byte, at int, offset int) {
	bc[at+1] = byte(int16(offset) >> 8)
	bc[at+2] = byte(int16(offset))
}

// TestCompileLoopAgreesWithInterpreterSemantics drives the compiled loop
// function's actual IR (via evalModule, not a stub) over the same locals
// the interpreter's notifyBackwardBranch would hand it, and checks the
// result against hand-computed bytecode semantics — the regression the
// nil-paramKinds bug (every local reading back 0) would have failed.
func TestCompileLoopAgreesWithInterpreterSemantics(t *testing.T) {
	method := &classfile.MethodInfo{
		Name:       "sum",
		Descriptor: "()I",
		Code:       &classfile.CodeAttribute{MaxLocals: 2, Bytecode: buildSumLoopBytecode()},
	}
	blocks := cfg.Build(method.Code)

	module, _, touched, err := CompileLoop("Sum", method, 5, 21, blocks)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, touched, "the loop body reads/writes both sum (0) and i (1)")

	fn := module.Funcs[0]
	require.Len(t, fn.Params, 2, "loop function must take one parameter per local slot (MaxLocals), not per method argument")

	resumePC, locals := evalModule(t, module, []int64{0, 1}) // sum=0, i=1 entering the loop head
	assert.Equal(t, int64(21), resumePC, "loop exit should resume interpretation at the post-loop pc")
	require.Len(t, locals, 2)
	assert.Equal(t, int64(55), locals[0], "sum of 1..10")
	assert.Equal(t, int64(11), locals[1], "i stops one past the last iteration")
}

// TestCompileLoopRejectsZeroWidthRegression guards the exact shape of the
// original bug report: a loop compile must size its parameter list (and
// therefore every local read inside the loop) from the method's
// MaxLocals, never from the (always-nil) paramKinds CompileLoop is called
// with.
func TestCompileLoopRejectsZeroWidthRegression(t *testing.T) {
	method := &classfile.MethodInfo{
		Name:       "sum",
		Descriptor: "()I",
		Code:       &classfile.CodeAttribute{MaxLocals: 2, Bytecode: buildSumLoopBytecode()},
	}
	blocks := cfg.Build(method.Code)

	module, _, _, err := CompileLoop("Sum", method, 5, 21, blocks)
	require.NoError(t, err)
	assert.Equal(t, int(method.Code.MaxLocals), len(module.Funcs[0].Params))
}
