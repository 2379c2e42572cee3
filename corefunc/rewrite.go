package corefunc

import (
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

// MnemonicEdit is one editable (Mnemonic, statements) pair exposed to a
// Rewrite transformer. The transformer may mutate Mnemonic's fields
// in-place (e.g. rename a variable inside Statements), reorder/add/remove
// entries in Statements, and reorder/add/remove MnemonicEdit entries within
// its enclosing BlockEdit.
type MnemonicEdit struct {
	Mnemonic   Mnemonic
	Statements []il.Statement
}

// BlockEdit is one block's editable mnemonic list, as exposed to a Rewrite
// transformer. The transformer may not change the number of blocks or
// which CFG node a block maps to; it may edit, add, or reorder entries of
// Mnemonics, and remove entries so long as at least one remains — a block
// must never be emptied entirely (see BlockEmptiedError).
type BlockEdit struct {
	Mnemonics []MnemonicEdit
}

// Rewrite materializes an editable view of every block's mnemonics and
// statements, invokes transform against it, validates the result, and
// rebuilds the function's mnemonic vector and IL container from it (spec
// §4.7). The CFG and block count are never touched.
//
// Adjacent mnemonics within a block must remain address-contiguous
// (prev.Area.End == next.Area.Start), with one allowance: a pair of
// mnemonics that are both zero-width at the same address (prev.Area.End ==
// prev.Area.Start == next.Area.Start == next.Area.End) is accepted, so a
// caller can splice a synthetic zero-width mnemonic at an existing block
// boundary (spec §9's empty-range open question).
//
// On any error — from transform itself, or from the contiguity check — the
// function is left completely unmodified.
func (f *Function) Rewrite(transform func(view []BlockEdit) error) error {
	view := make([]BlockEdit, len(f.blocks))
	for bi, bb := range f.blocks {
		edits := make([]MnemonicEdit, 0, bb.Mnemonics.Len())
		for i := bb.Mnemonics.Start.index; i < bb.Mnemonics.End.index; i++ {
			mne := f.mnemonics[i]
			stmts, err := f.code.IterStatements(mne.Statements)
			if err != nil {
				return errors.WithStack(err)
			}
			cp := make([]il.Statement, len(stmts))
			for si, s := range stmts {
				if s.Result != nil {
					r := *s.Result
					s.Result = &r
				}
				s.Operands = append([]rvalue.Value(nil), s.Operands...)
				cp[si] = s
			}
			mne.Operands = append([]rvalue.Value(nil), mne.Operands...)
			mne.Format = append([]arch.FormatToken(nil), mne.Format...)
			edits = append(edits, MnemonicEdit{Mnemonic: mne, Statements: cp})
		}
		view[bi] = BlockEdit{Mnemonics: edits}
	}

	if err := transform(view); err != nil {
		return errors.WithStack(err)
	}

	for bi, be := range view {
		if len(be.Mnemonics) == 0 {
			return errors.WithStack(&BlockEmptiedError{BlockIndex: bi})
		}
		for i := 0; i+1 < len(be.Mnemonics); i++ {
			prev := be.Mnemonics[i].Mnemonic.Area
			next := be.Mnemonics[i+1].Mnemonic.Area
			if prev.End == next.Start {
				continue
			}
			if prev.Start == prev.End && prev.End == next.Start && next.Start == next.End {
				continue
			}
			return errors.WithStack(&NonContinuousBlockError{
				BlockIndex: bi,
				PrevEnd:    uint64(prev.End),
				NextStart:  uint64(next.Start),
			})
		}
	}

	code := il.NewContainer()
	var mnemonics []Mnemonic
	blocks := make([]BasicBlock, len(f.blocks))
	for bi, be := range view {
		start := newMnemonicIndex(len(mnemonics))
		for _, me := range be.Mnemonics {
			mne := me.Mnemonic
			rangeStart := code.Len()
			end := rangeStart
			for _, stmt := range me.Statements {
				n, err := code.Push(stmt)
				if err != nil {
					return errors.WithStack(err)
				}
				end += n
			}
			mne.Statements = il.Range{Start: rangeStart, End: end}
			mnemonics = append(mnemonics, mne)
		}
		end := newMnemonicIndex(len(mnemonics))

		area := bin.Range{
			Start: be.Mnemonics[0].Mnemonic.Area.Start,
			End:   be.Mnemonics[len(be.Mnemonics)-1].Mnemonic.Area.End,
		}
		blocks[bi] = BasicBlock{
			Mnemonics: MnemonicRange{Start: start, End: end},
			Area:      area,
			node:      f.blocks[bi].node,
		}
	}

	f.mnemonics = mnemonics
	f.blocks = blocks
	f.code = code
	return nil
}
