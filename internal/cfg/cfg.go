// Package cfg implements component H: a two-pass basic-block extractor
// over a method's bytecode, the front end the JIT consumes before emitting
// LLVM IR. Grounded on original_source's exec/cfg.rs CFGMaker: a first pass
// records every branch target and fall-through boundary into a pc-ordered
// map, a second pass slices the bytecode into contiguous Blocks at those
// boundaries.
package cfg

import (
	"sort"

	"jvmgo/internal/classfile"
)

// BrKind classifies how a Block ends. BlockStart marks a pc that merely
// begins a block (the boundary itself carries no branch); the other three
// describe the terminating instruction's control transfer. Build never
// tags a block BlockStart: a block ending in a return or athrow is tagged
// UnconditionalJmp with no Destinations.
type BrKind int

const (
	BlockStart BrKind = iota
	ConditionalJmp
	UnconditionalJmp
	// JmpRequired marks a block that falls through to the next one in
	// bytecode order but still needs an explicit terminating branch once
	// lowered to LLVM IR, since LLVM basic blocks have no implicit
	// fall-through (cfg.rs's JIT consumer inserts one at every such block).
	JmpRequired
)

// Block is one basic block: a contiguous bytecode range plus how control
// leaves it.
type Block struct {
	Start        int // inclusive pc
	End          int // exclusive pc
	Kind         BrKind
	Destinations []int // branch targets; two for ConditionalJmp (taken, fall-through), one for a goto or a fall-through block, none for a return/athrow block or a block that runs off the end of the bytecode
}

// boundary records, for a given pc, both whether it starts a new block and
// (if it also ends one) how that block's control leaves.
type boundary struct {
	startsBlock bool
	kind        BrKind
	targets     []int
}

// Build extracts the basic-block list for code, suitable for CompileFunc
// (whole-method) or CompileLoop (one back-edge's span) in internal/jit.
func Build(code *classfile.CodeAttribute) []Block {
	bc := code.Bytecode
	bounds := map[int]*boundary{}

	mark := func(pc int, startsBlock bool) *boundary {
		b, ok := bounds[pc]
		if !ok {
			b = &boundary{}
			bounds[pc] = b
		}
		if startsBlock {
			b.startsBlock = true
		}
		return b
	}

	pc := 0
	for pc < len(bc) {
		op := bc[pc]
		size := instructionSize(bc, pc)

		if isConditionalBranch(op) {
			dst := pc + int(branchOffset16(bc, pc))
			end := mark(pc, false)
			end.kind = ConditionalJmp
			end.targets = []int{dst, pc + size}
			mark(dst, true)
			mark(pc+size, true)
		} else if op == opGoto {
			dst := pc + int(branchOffset16(bc, pc))
			end := mark(pc, false)
			end.kind = UnconditionalJmp
			end.targets = []int{dst}
			mark(dst, true)
		} else if isReturn(op) || op == opAthrow {
			end := mark(pc, false)
			end.kind = UnconditionalJmp // terminal; Destinations left empty by the caller's interpretation
			end.targets = nil
			if pc+size < len(bc) {
				mark(pc+size, true)
			}
		}
		pc += size
	}
	mark(0, true)

	var starts []int
	for p, b := range bounds {
		if b.startsBlock {
			starts = append(starts, p)
		}
	}
	sort.Ints(starts)
	if len(starts) == 0 || starts[0] != 0 {
		starts = append([]int{0}, starts...)
	}

	var blocks []Block
	for i, s := range starts {
		end := len(bc)
		if i+1 < len(starts) {
			end = starts[i+1]
		}

		// Walk to the last instruction in [s, end) — the one whose own
		// span reaches end — and check whether a branch/return was
		// recorded there.
		lastPC := s
		for pc := s; pc < end; pc += instructionSize(bc, pc) {
			lastPC = pc
		}
		kind := JmpRequired
		var targets []int
		if b, ok := bounds[lastPC]; ok && (b.kind == ConditionalJmp || b.kind == UnconditionalJmp) {
			kind = b.kind
			targets = b.targets
		} else if end < len(bc) {
			targets = []int{end}
		}
		blocks = append(blocks, Block{Start: s, End: end, Kind: kind, Destinations: targets})
	}
	return blocks
}

const opGoto = 0xA7
const opAthrow = 0xBF

func isConditionalBranch(op byte) bool {
	switch op {
	case 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, // ifeq..ifle
		0x9F, 0xA0, 0xA1, 0xA2, 0xA3, 0xA4, // if_icmp*
		0xA5, 0xA6, // if_acmp*
		0xC6, 0xC7: // ifnull, ifnonnull
		return true
	}
	return false
}

func isReturn(op byte) bool {
	switch op {
	case 0xAC, 0xAD, 0xAE, 0xAF, 0xB0, 0xB1: // ireturn..return
		return true
	}
	return false
}

func branchOffset16(bc []byte, pc int) int16 {
	return int16(uint16(bc[pc+1])<<8 | uint16(bc[pc+2]))
}

// instructionSize returns the byte length of the instruction at pc,
// covering every opcode this core's interpreter supports plus the two
// variable-length switch forms.
func instructionSize(bc []byte, pc int) int {
	op := bc[pc]
	switch op {
	case 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F:
		return 1
	case 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F,
		0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D,
		0x2E, 0x2F, 0x30, 0x31, 0x32, 0x33, 0x34, 0x35,
		0x3B, 0x3C, 0x3D, 0x3E, 0x3F, 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47,
		0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F, 0x50, 0x51, 0x52, 0x53, 0x54,
		0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F, 0x60, 0x61,
		0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6A, 0x6B, 0x6C, 0x6D, 0x6E,
		0x6F, 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x7B,
		0x7C, 0x7D, 0x7E, 0x7F, 0x80, 0x81, 0x82, 0x83, 0x85, 0x86, 0x87, 0x88, 0x89,
		0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F, 0x90, 0x91, 0x92, 0x93, 0x94, 0x95, 0x96,
		0x97, 0x98, 0xAC, 0xAD, 0xAE, 0xAF, 0xB0, 0xB1, 0xBE, 0xBF, 0xC2, 0xC3:
		return 1
	case 0x11, 0x13, 0x14, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F, 0xA0, 0xA1, 0xA2,
		0xA3, 0xA4, 0xA5, 0xA6, 0xA7, 0xA8, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8,
		0xBB, 0xBD, 0xC0, 0xC1, 0xC6, 0xC7, 0xCB, 0xCC, 0xCD, 0xCE:
		return 3
	case 0x10, 0x12, 0x15, 0x16, 0x17, 0x18, 0x19, 0x36, 0x37, 0x38, 0x39, 0x3A, 0xA9: // bipush, ldc, xload, xstore, ret
		return 2
	case 0xBC: // newarray
		return 2
	case 0x84: // iinc
		return 3
	case 0xB9, 0xBA: // invokeinterface, invokedynamic
		return 5
	case 0xC5: // multianewarray
		return 4
	case 0xC8, 0xC9: // goto_w, jsr_w
		return 5
	case 0xC4: // wide
		if bc[pc+1] == 0x84 {
			return 6
		}
		return 4
	case 0xAA: // tableswitch
		pos := pc + 1
		for pos%4 != 0 {
			pos++
		}
		low := int32(uint32(bc[pos+4])<<24 | uint32(bc[pos+5])<<16 | uint32(bc[pos+6])<<8 | uint32(bc[pos+7]))
		high := int32(uint32(bc[pos+8])<<24 | uint32(bc[pos+9])<<16 | uint32(bc[pos+10])<<8 | uint32(bc[pos+11]))
		n := int(high-low) + 1
		return (pos + 12 + n*4) - pc
	case 0xAB: // lookupswitch
		pos := pc + 1
		for pos%4 != 0 {
			pos++
		}
		npairs := int32(uint32(bc[pos+4])<<24 | uint32(bc[pos+5])<<16 | uint32(bc[pos+6])<<8 | uint32(bc[pos+7]))
		return (pos + 8 + int(npairs)*8) - pc
	default:
		return 1
	}
}
