package corefunc

import (
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

// Extend re-runs disassembly starting from every UnresolvedTarget node that
// ResolveIndirectJump has reduced to a constant, then re-assembles the
// function from scratch (spec §4.6). Decoder and region need not be the
// ones the function was originally built with (e.g. a freshly mapped
// overlay), but must cover the same address space.
//
// On success the function's mnemonic vector, block vector, CFG, and IL
// container are replaced atomically. On failure the function is left
// unmodified.
func (f *Function) Extend(decoder arch.Decoder, region *bin.Region) error {
	pending, maps, seeds, err := rebuildForExtend(f)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := disassemble(decoder, region, seeds, &pending, maps); err != nil {
		return errors.WithStack(err)
	}

	asm, err := assemble(f.EntryAddress(), pending, maps)
	if err != nil {
		return errors.WithStack(err)
	}

	f.mnemonics = asm.mnemonics
	f.blocks = asm.blocks
	f.graph = asm.graph
	f.code = asm.code
	f.entry = asm.entry
	f.decoder = decoder
	f.region = region
	return nil
}

// rebuildForExtend performs extend's step 1-2 (spec §4.6): it drains the
// current IL container into a pending vector keyed by the existing
// mnemonics, then walks every CFG edge to reconstruct by_source/
// by_destination as disassemble would have produced them, collecting the
// set of newly-constant UnresolvedTarget addresses as the re-disassembly
// seed.
func rebuildForExtend(f *Function) ([]pendingMnemonic, *jumpMaps, []bin.Addr, error) {
	pending := make([]pendingMnemonic, len(f.mnemonics))
	for i, mne := range f.mnemonics {
		stmts, err := f.code.IterStatements(mne.Statements)
		if err != nil {
			return nil, nil, nil, errors.WithStack(err)
		}
		cp := make([]il.Statement, len(stmts))
		copy(cp, stmts)
		pending[i] = pendingMnemonic{mne: mne, statements: cp}
	}

	maps := newJumpMaps()
	var seeds []bin.Addr
	seen := make(map[bin.Addr]bool)

	for i, node := range f.graph.nodes {
		if node.Kind != CfgBlockRef {
			continue
		}
		bb := f.blocks[node.Block.index]
		origin := f.mnemonics[bb.Mnemonics.End.index-1].Area.Start

		for _, e := range f.graph.out[i] {
			target := f.graph.nodes[e.target]

			var value rvalue.Value
			if target.Kind == CfgBlockRef {
				tgtBlock := f.blocks[target.Block.index]
				firstMne := f.mnemonics[tgtBlock.Mnemonics.Start.index]
				v, err := rvalue.ValConstant(uint64(firstMne.Area.Start), 64)
				if err != nil {
					return nil, nil, nil, errors.WithStack(err)
				}
				value = v
			} else {
				value = target.Value
			}
			maps.bySource[origin] = append(maps.bySource[origin], jumpFact{value: value, guard: e.guard})

			if value.IsConstant() {
				addr := bin.Addr(value.Constant)
				originVal, err := rvalue.ValConstant(uint64(origin), 64)
				if err != nil {
					return nil, nil, nil, errors.WithStack(err)
				}
				maps.byDestination[addr] = append(maps.byDestination[addr], jumpFact{value: originVal, guard: e.guard})

				if target.Kind == CfgUnresolvedTarget && !seen[addr] {
					seen[addr] = true
					seeds = append(seeds, addr)
				}
			}
		}
	}
	return pending, maps, seeds, nil
}
