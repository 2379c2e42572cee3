package corefunc

import (
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

// BlockEntry pairs a BlockIndex with the block it identifies, as yielded by
// Blocks().
type BlockEntry struct {
	Index BlockIndex
	Block BasicBlock
}

// Blocks returns every block together with its index, in block-vector order
// (reverse-postorder from the entry; spec §4.4's blocks() iterator).
func (f *Function) Blocks() []BlockEntry {
	entries := make([]BlockEntry, len(f.blocks))
	for i, bb := range f.blocks {
		entries[i] = BlockEntry{Index: newBlockIndex(i), Block: bb}
	}
	return entries
}

// MnemonicEntry pairs a MnemonicIndex with the mnemonic it identifies, as
// yielded by Mnemonics().
type MnemonicEntry struct {
	Index    MnemonicIndex
	Mnemonic Mnemonic
}

// Mnemonics returns every mnemonic whose index falls in r, together with
// its index, in address order (spec §4.4's mnemonics(range) iterator).
func (f *Function) Mnemonics(r MnemonicRange) ([]MnemonicEntry, error) {
	if r.Start.index < 0 || r.End.index > len(f.mnemonics) || r.Start.index > r.End.index {
		return nil, errors.Errorf("mnemonic range %v..%v out of bounds of function with %d mnemonics", r.Start.index, r.End.index, len(f.mnemonics))
	}
	entries := make([]MnemonicEntry, 0, r.Len())
	for i := r.Start.index; i < r.End.index; i++ {
		entries = append(entries, MnemonicEntry{Index: newMnemonicIndex(i), Mnemonic: f.mnemonics[i]})
	}
	return entries, nil
}

// AllMnemonics returns every mnemonic in the function together with its
// index, in address order.
func (f *Function) AllMnemonics() []MnemonicEntry {
	entries, _ := f.Mnemonics(MnemonicRange{Start: newMnemonicIndex(0), End: newMnemonicIndex(len(f.mnemonics))})
	return entries
}

// Scope selects which statements Statements returns (spec §4.4's
// polymorphic statements(scope) query). The zero value selects the full
// function.
type Scope struct {
	kind scopeKind
	r    il.Range
	blk  BlockIndex
	mne  MnemonicIndex
}

type scopeKind uint8

const (
	scopeFull scopeKind = iota
	scopeRange
	scopeBlock
	scopeMnemonic
)

// FullScope selects every statement in the function's IL container.
func FullScope() Scope { return Scope{kind: scopeFull} }

// RangeScope selects a raw IL range.
func RangeScope(r il.Range) Scope { return Scope{kind: scopeRange, r: r} }

// BlockScope selects every statement belonging to a block's mnemonics.
func BlockScope(idx BlockIndex) Scope { return Scope{kind: scopeBlock, blk: idx} }

// MnemonicScope selects the statements belonging to a single mnemonic.
func MnemonicScope(idx MnemonicIndex) Scope { return Scope{kind: scopeMnemonic, mne: idx} }

// Statements resolves scope against the function's current IL container and
// mnemonic/block vectors.
func (f *Function) Statements(scope Scope) ([]il.Statement, error) {
	switch scope.kind {
	case scopeFull:
		return f.code.IterStatements(il.Range{Start: 0, End: f.code.Len()})
	case scopeRange:
		stmts, err := f.code.IterStatements(scope.r)
		return stmts, errors.WithStack(err)
	case scopeBlock:
		bb := f.blocks[scope.blk.index]
		if bb.Mnemonics.Len() == 0 {
			return nil, nil
		}
		start := f.mnemonics[bb.Mnemonics.Start.index].Statements.Start
		end := f.mnemonics[bb.Mnemonics.End.index-1].Statements.End
		stmts, err := f.code.IterStatements(il.Range{Start: start, End: end})
		return stmts, errors.WithStack(err)
	case scopeMnemonic:
		stmts, err := f.code.IterStatements(f.mnemonics[scope.mne.index].Statements)
		return stmts, errors.WithStack(err)
	default:
		return nil, errors.Errorf("unrecognized statement scope")
	}
}

// IndirectJumps returns every symbolic variable currently carried by an
// UnresolvedTarget CFG node (spec §4.4's indirect_jumps()). Constant and
// undefined UnresolvedTarget values are not included.
func (f *Function) IndirectJumps() []rvalue.Value {
	var values []rvalue.Value
	for _, n := range f.graph.nodes {
		if n.Kind == CfgUnresolvedTarget && n.Value.IsVariable() {
			values = append(values, n.Value)
		}
	}
	return values
}
