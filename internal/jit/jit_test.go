package jit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jvmgo/internal/cfg"
	"jvmgo/internal/classfile"
)

func countingLoopMethod() *classfile.MethodInfo {
	bc := make([]byte, 15)
	bc[0] = 0x03
	bc[1] = 0x3C
	bc[2] = 0x1B
	bc[3] = 0x08
	bc[4] = 0xA2
	bc[5] = 0x00
	bc[6] = 0x0A
	bc[7] = 0x1B
	bc[8] = 0x04
	bc[9] = 0x60
	bc[10] = 0x3C
	bc[11] = 0xA7
	bc[12] = 0xFF
	bc[13] = 0xF7
	bc[14] = 0xB1
	return &classfile.MethodInfo{
		Name:       "count",
		Descriptor: "()V",
		Code:       &classfile.CodeAttribute{MaxLocals: 2, Bytecode: bc},
	}
}

func TestCompileFuncLowersIntegerOnlyCountingLoop(t *testing.T) {
	method := countingLoopMethod()
	blocks := cfg.Build(method.Code)

	module, name, err := CompileFunc("Counter", method, nil, blocks)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	assert.Len(t, module.Funcs, 1)

	text := module.String()
	assert.True(t, strings.Contains(text, "icmp"), "loop condition should lower to an icmp instruction")
	assert.True(t, strings.Contains(text, "ret"), "the return block should lower to a ret instruction")
}

func TestCompileFuncRejectsNonIntParam(t *testing.T) {
	method := &classfile.MethodInfo{
		Name:       "m",
		Descriptor: "(Ljava/lang/String;)V",
		Code:       &classfile.CodeAttribute{MaxLocals: 1, Bytecode: []byte{0xB1}},
	}
	blocks := cfg.Build(method.Code)
	_, _, err := CompileFunc("C", method, []int{99}, blocks)
	assert.Error(t, err)
}

func TestCompileFuncRejectsUnsupportedOpcode(t *testing.T) {
	method := &classfile.MethodInfo{
		Name:       "m",
		Descriptor: "()V",
		Code:       &classfile.CodeAttribute{MaxLocals: 1, Bytecode: []byte{0xB8, 0x00, 0x01}}, // invokestatic
	}
	blocks := cfg.Build(method.Code)
	_, _, err := CompileFunc("C", method, nil, blocks)
	assert.Error(t, err)
}

func TestNullBackendAlwaysDeclines(t *testing.T) {
	method := countingLoopMethod()
	blocks := cfg.Build(method.Code)
	module, name, err := CompileFunc("Counter", method, nil, blocks)
	require.NoError(t, err)

	_, err = NullBackend{}.Compile(module, name)
	assert.Error(t, err)
}

func TestCompileLoopIsolatesOnlyTheLoopSpan(t *testing.T) {
	method := countingLoopMethod()
	blocks := cfg.Build(method.Code)

	module, name, touched, err := CompileLoop("Counter", method, 2, 14, blocks)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	require.Len(t, module.Funcs, 1)
	assert.Equal(t, []int{1}, touched, "the loop span only ever reads/writes local 1")
	// The loop span excludes the entry block (pc 0-2) and the exit block
	// (pc 14-15), so it should lower to fewer basic blocks than the whole
	// method would.
	wholeModule, _, err := CompileFunc("Counter", method, nil, blocks)
	require.NoError(t, err)
	assert.Less(t, len(module.Funcs[0].Blocks), len(wholeModule.Funcs[0].Blocks))
}
