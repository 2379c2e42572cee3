// Package corefunc implements the control-flow recovery core: recursive
// descent disassembly, basic-block partitioning, control-flow graph
// construction with unresolved jump targets, and reverse-postorder IL
// layout, as well as the two destructive mutations (extend, rewrite) of an
// already-built Function.
package corefunc

import (
	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

// BlockIndex is an opaque position into a Function's block vector. It can
// only be constructed inside this package; callers receive it from
// iterators and pass it back to query methods.
type BlockIndex struct {
	index int
}

// Index returns the underlying zero-based position.
func (b BlockIndex) Index() int { return b.index }

func newBlockIndex(i int) BlockIndex { return BlockIndex{index: i} }

// MnemonicIndex is an opaque position into a Function's mnemonic vector. It
// can only be constructed inside this package.
type MnemonicIndex struct {
	index int
}

// Index returns the underlying zero-based position.
func (m MnemonicIndex) Index() int { return m.index }

func newMnemonicIndex(i int) MnemonicIndex { return MnemonicIndex{index: i} }

// Mnemonic is one decoded instruction: an address range, opcode, operand
// list, format tokens for rendering, and a range into the function's IL
// container. Mnemonic is immutable after assembly except for Statements,
// which is recomputed on every rewrite/extend.
type Mnemonic struct {
	Area       bin.Range
	Opcode     string
	Operands   []rvalue.Value
	Format     []arch.FormatToken
	Statements il.Range
}

// BasicBlock is a maximal straight-line mnemonic sequence with one entry
// and one exit. Mnemonics is a half-open range into the function's
// mnemonic vector; Area is derived from the first and last mnemonic in the
// block.
type BasicBlock struct {
	Mnemonics MnemonicRange
	Area      bin.Range
	node      nodeIndex
}

// MnemonicRange is a half-open range [Start, End) of MnemonicIndex values.
type MnemonicRange struct {
	Start MnemonicIndex
	End   MnemonicIndex
}

// Len returns the number of mnemonics covered by r.
func (r MnemonicRange) Len() int {
	return r.End.index - r.Start.index
}

// CfgNodeKind distinguishes the two tagged variants of a CFG node.
type CfgNodeKind uint8

const (
	// CfgBlockRef is a node that refers to a decoded BasicBlock.
	CfgBlockRef CfgNodeKind = iota
	// CfgUnresolvedTarget is a node standing in for a jump destination
	// that was not a constant (or was a constant outside the disassembled
	// range) at assembly time.
	CfgUnresolvedTarget
)

// CfgNode is a node of the control-flow graph: either a reference to a
// basic block, or an unresolved jump target carrying the r-value the
// decoder produced.
type CfgNode struct {
	Kind  CfgNodeKind
	Block BlockIndex
	Value rvalue.Value
}

// nodeIndex is the internal arena index of a CfgNode; it is never exposed
// to callers directly (they navigate the graph via BlockIndex and the CFG
// query methods).
type nodeIndex int

// FunctionKind distinguishes a regular function from a PLT stub.
type FunctionKind struct {
	// IsStub is true when this function is a PLT stub.
	IsStub bool
	// ImportName is the import name found in the PLT table (Stub only).
	ImportName string
	// PLTAddress is the address of the PLT table entry (Stub only).
	PLTAddress bin.Addr
}
