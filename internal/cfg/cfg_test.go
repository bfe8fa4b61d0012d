package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jvmgo/internal/classfile"
)

// buildLoopBytecode assembles the classic counting-loop shape:
//
//	iconst_0; istore_1
//	loop: iload_1; iconst_5; if_icmpge exit
//	      iload_1; iconst_1; iadd; istore_1; goto loop
//	exit: return
func buildLoopBytecode() []byte {
	bc := make([]byte, 15)
	bc[0] = 0x03 // iconst_0
	bc[1] = 0x3C // istore_1
	bc[2] = 0x1B // iload_1   (loop head, pc=2)
	bc[3] = 0x08 // iconst_5
	bc[4] = 0xA2 // if_icmpge, operand at pc 5-6, target pc 14
	bc[5] = 0x00
	bc[6] = 0x0A // offset 10 -> 4+10=14
	bc[7] = 0x1B // iload_1
	bc[8] = 0x04 // iconst_1
	bc[9] = 0x60 // iadd
	bc[10] = 0x3C // istore_1
	bc[11] = 0xA7 // goto, operand at pc 12-13, target pc 2
	bc[12] = 0xFF
	bc[13] = 0xF7 // offset -9 -> 11-9=2
	bc[14] = 0xB1 // return
	return bc
}

func TestBuildSplitsCountingLoopIntoFourBlocks(t *testing.T) {
	code := &classfile.CodeAttribute{Bytecode: buildLoopBytecode()}
	blocks := Build(code)

	require.Len(t, blocks, 4)

	assert.Equal(t, 0, blocks[0].Start)
	assert.Equal(t, 2, blocks[0].End)
	assert.Equal(t, JmpRequired, blocks[0].Kind)
	assert.Equal(t, []int{2}, blocks[0].Destinations)

	assert.Equal(t, 2, blocks[1].Start)
	assert.Equal(t, 7, blocks[1].End)
	assert.Equal(t, ConditionalJmp, blocks[1].Kind)
	assert.ElementsMatch(t, []int{14, 7}, blocks[1].Destinations)

	assert.Equal(t, 7, blocks[2].Start)
	assert.Equal(t, 14, blocks[2].End)
	assert.Equal(t, UnconditionalJmp, blocks[2].Kind)
	assert.Equal(t, []int{2}, blocks[2].Destinations)

	assert.Equal(t, 14, blocks[3].Start)
	assert.Equal(t, 15, blocks[3].End)
}

func TestBuildSingleBlockStraightLineCode(t *testing.T) {
	code := &classfile.CodeAttribute{Bytecode: []byte{0x03, 0x3C, 0xB1}} // iconst_0; istore_1; return
	blocks := Build(code)

	require.Len(t, blocks, 1)
	assert.Equal(t, 0, blocks[0].Start)
	assert.Equal(t, 3, blocks[0].End)
}
