package corefunc

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
)

// Function is the control-flow recovery result for one entry address: the
// owned mnemonic vector, block vector, CFG, and IL container, plus the
// metadata a front-end attaches to a recovered function (spec §3, §4.4).
//
// A Function exclusively owns its vectors, CFG, and IL container; it is not
// safe for concurrent mutation, though concurrent read-only queries are
// fine (spec §5).
type Function struct {
	name    string
	id      uuid.UUID
	kind    FunctionKind
	aliases []string

	mnemonics []Mnemonic
	blocks    []BasicBlock
	graph     *cfg
	code      *il.Container
	entry     BlockIndex

	decoder arch.Decoder
	region  *bin.Region
}

// New disassembles region starting at entry using decoder and assembles the
// result into a Function named func_<entry> with a freshly generated UUID.
func New(decoder arch.Decoder, region *bin.Region, entry bin.Addr) (*Function, error) {
	return WithUUID(uuid.New(), decoder, region, entry)
}

// WithUUID is New, but with the caller supplying the Function's UUID
// (e.g. when re-hydrating a previously recovered function).
func WithUUID(id uuid.UUID, decoder arch.Decoder, region *bin.Region, entry bin.Addr) (*Function, error) {
	pending, maps, err := runDisassemble(decoder, region, []bin.Addr{entry})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	asm, err := assemble(entry, pending, maps)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Function{
		name:      fmt.Sprintf("func_%x", uint64(entry)),
		id:        id,
		mnemonics: asm.mnemonics,
		blocks:    asm.blocks,
		graph:     asm.graph,
		code:      asm.code,
		entry:     asm.entry,
		decoder:   decoder,
		region:    region,
	}, nil
}

// runDisassemble wraps disassemble with a fresh pending vector and jump
// maps, as New/WithUUID need. Extend calls disassemble directly with the
// pending vector and maps it rebuilds from the existing function.
func runDisassemble(decoder arch.Decoder, region *bin.Region, seeds []bin.Addr) ([]pendingMnemonic, *jumpMaps, error) {
	var pending []pendingMnemonic
	maps := newJumpMaps()
	if err := disassemble(decoder, region, seeds, &pending, maps); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return pending, maps, nil
}

// Name returns the function's name.
func (f *Function) Name() string { return f.name }

// UUID returns the function's unique identifier.
func (f *Function) UUID() uuid.UUID { return f.id }

// Kind returns the function's kind (Regular, or Stub metadata).
func (f *Function) Kind() FunctionKind { return f.kind }

// Aliases returns the function's alternate names.
func (f *Function) Aliases() []string { return f.aliases }

// SetPLT promotes the function to a PLT-stub kind carrying importName and
// pltAddr, retiring its current name as an alias and renaming it to
// importName@plt.
func (f *Function) SetPLT(importName string, pltAddr bin.Addr) {
	f.aliases = append(f.aliases, f.name)
	f.name = importName + "@plt"
	f.kind = FunctionKind{IsStub: true, ImportName: importName, PLTAddress: pltAddr}
}

// AddAlias records an additional name for the function.
func (f *Function) AddAlias(name string) {
	f.aliases = append(f.aliases, name)
}

// EntryPoint returns the block index of the function's entry block.
func (f *Function) EntryPoint() BlockIndex { return f.entry }

// EntryAddress returns the address of the function's entry block.
func (f *Function) EntryAddress() bin.Addr {
	return f.blocks[f.entry.index].Area.Start
}

// FirstAddress returns the minimum start address over all blocks.
func (f *Function) FirstAddress() bin.Addr {
	first := f.blocks[0].Area.Start
	for _, bb := range f.blocks[1:] {
		if bb.Area.Start < first {
			first = bb.Area.Start
		}
	}
	return first
}

// LastAddress returns the maximum end address over all blocks.
func (f *Function) LastAddress() bin.Addr {
	last := f.blocks[0].Area.End
	for _, bb := range f.blocks[1:] {
		if bb.Area.End > last {
			last = bb.Area.End
		}
	}
	return last
}

// Contains reports whether addr falls within some block's address range.
func (f *Function) Contains(addr bin.Addr) bool {
	for _, bb := range f.blocks {
		if bb.Area.Contains(addr) {
			return true
		}
	}
	return false
}

// BlockCount returns the number of blocks in the function.
func (f *Function) BlockCount() int { return len(f.blocks) }

// MnemonicCount returns the number of mnemonics in the function.
func (f *Function) MnemonicCount() int { return len(f.mnemonics) }

// Block returns the block at idx.
func (f *Function) Block(idx BlockIndex) BasicBlock { return f.blocks[idx.index] }

// Mnemonic returns the mnemonic at idx.
func (f *Function) Mnemonic(idx MnemonicIndex) Mnemonic { return f.mnemonics[idx.index] }

// CFG returns a read-only view of the function's control-flow graph.
func (f *Function) CFG() CFG { return CFG{g: f.graph} }
