package corefunc

import (
	"log"
	"os"
	"sort"

	"github.com/mewkiz/pkg/term"
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

var (
	// dbg is a logger which logs debug messages with "corefunc:" prefix to
	// standard error.
	dbg = log.New(os.Stderr, term.MagentaBold("corefunc:")+" ", 0)
	// warn is a logger which logs warning messages with "warning:" prefix
	// to standard error.
	warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)
)

// pendingMnemonic pairs a decoded core Mnemonic with its not-yet-stored IL
// statements, as accumulated by the work queue before assembly relocates
// them into the function's Container.
type pendingMnemonic struct {
	mne        Mnemonic
	statements []il.Statement
}

// jumpFact is one (value, guard) pair recorded against an address in the
// fan-in/fan-out maps.
type jumpFact struct {
	value rvalue.Value
	guard rvalue.Guard
}

// jumpMaps bundles the fan-out (by_source) and fan-in (by_destination)
// indexes built by disassemble, keyed by the origin mnemonic's start
// address and by the constant target address respectively.
type jumpMaps struct {
	bySource      map[bin.Addr][]jumpFact
	byDestination map[bin.Addr][]jumpFact
}

func newJumpMaps() *jumpMaps {
	return &jumpMaps{
		bySource:      make(map[bin.Addr][]jumpFact),
		byDestination: make(map[bin.Addr][]jumpFact),
	}
}

// disassemble drives recursive-descent disassembly starting from the given
// seed addresses, splicing newly decoded mnemonics into mnemonics (which
// must remain address-sorted) and recording jump fan-out/fan-in into maps.
func disassemble(decoder arch.Decoder, region *bin.Region, seeds []bin.Addr, mnemonics *[]pendingMnemonic, maps *jumpMaps) error {
	todo := make(map[bin.Addr]bool, len(seeds))
	for _, a := range seeds {
		todo[a] = true
	}

	for len(todo) > 0 {
		addr := popAny(todo)

		pos := sort.Search(len(*mnemonics), func(i int) bool {
			return (*mnemonics)[i].mne.Area.Start >= addr
		})
		if pos < len(*mnemonics) && (*mnemonics)[pos].mne.Area.Start == addr {
			// Already visited.
			continue
		}
		if pos > 0 && (*mnemonics)[pos-1].mne.Area.Start < addr && addr < (*mnemonics)[pos-1].mne.Area.End {
			warn.Printf("%v: jump inside mnemonic %q at %v", addr, (*mnemonics)[pos-1].mne.Opcode, (*mnemonics)[pos-1].mne.Area.Start)
			continue
		}

		result, err := decoder.Decode(region, addr)
		if err != nil {
			warn.Printf("%v: failed to disassemble: %v", addr, err)
			continue
		}
		if len(result.Mnemonics) == 0 {
			warn.Printf("%v: unrecognized instruction", addr)
			continue
		}

		for _, mne := range result.Mnemonics {
			insertPos := sort.Search(len(*mnemonics), func(i int) bool {
				return (*mnemonics)[i].mne.Area.Start >= mne.Area.Start
			})
			entry := pendingMnemonic{
				mne: Mnemonic{
					Area:     mne.Area,
					Opcode:   mne.Opcode,
					Operands: mne.Operands,
					Format:   mne.Format,
				},
				statements: mne.Statements,
			}
			*mnemonics = append(*mnemonics, pendingMnemonic{})
			copy((*mnemonics)[insertPos+1:], (*mnemonics)[insertPos:])
			(*mnemonics)[insertPos] = entry
			dbg.Printf("%v: %s", mne.Area.Start, mne.Opcode)
		}

		for _, j := range result.Jumps {
			switch {
			case j.Target.IsConstant():
				target := bin.Addr(j.Target.Constant)
				maps.bySource[j.Origin] = append(maps.bySource[j.Origin], jumpFact{value: j.Target, guard: j.Guard})
				origin, err := rvalue.ValConstant(uint64(j.Origin), 64)
				if err != nil {
					return errors.WithStack(err)
				}
				maps.byDestination[target] = append(maps.byDestination[target], jumpFact{value: origin, guard: j.Guard})
				if !todo[target] {
					todo[target] = true
				}
			case j.Target.IsVariable():
				maps.bySource[j.Origin] = append(maps.bySource[j.Origin], jumpFact{value: j.Target, guard: j.Guard})
			default:
				maps.bySource[j.Origin] = append(maps.bySource[j.Origin], jumpFact{value: rvalue.ValUndefined(), guard: j.Guard})
			}
		}
	}
	return nil
}

// popAny removes and returns an arbitrary key from todo.
func popAny(todo map[bin.Addr]bool) bin.Addr {
	for a := range todo {
		delete(todo, a)
		return a
	}
	panic("popAny called on empty set")
}
