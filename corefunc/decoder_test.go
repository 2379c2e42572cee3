package corefunc_test

import (
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

// fakeJump describes one outgoing transfer a testDecoder emits for a given
// origin address, overriding the default single-byte fallthrough.
type fakeJump struct {
	target rvalue.Value
	guard  rvalue.Guard
}

// testDecoder is a minimal arch.Decoder fake used throughout this package's
// tests: every address decodes to a one-byte mnemonic named "A" (unless
// widths overrides its length), falling through to addr+width by default,
// unless jumps overrides the set of outgoing transfers for that address.
// This mirrors the narrow, configurable stand-in decoders the original
// Rust test suite used to drive the assembler in isolation from any real
// instruction set.
type testDecoder struct {
	widths  map[bin.Addr]int
	jumps   map[bin.Addr][]fakeJump
	noJumps map[bin.Addr]bool
	failAt  map[bin.Addr]bool
}

func newTestDecoder() *testDecoder {
	return &testDecoder{
		widths:  make(map[bin.Addr]int),
		jumps:   make(map[bin.Addr][]fakeJump),
		noJumps: make(map[bin.Addr]bool),
		failAt:  make(map[bin.Addr]bool),
	}
}

func (d *testDecoder) Decode(region *bin.Region, addr bin.Addr) (arch.DecodeResult, error) {
	if d.failAt[addr] {
		return arch.DecodeResult{}, errors.Errorf("forced decode failure at %v", addr)
	}

	width := 1
	if w, ok := d.widths[addr]; ok {
		width = w
	}
	end := addr + bin.Addr(width)

	mne := arch.Mnemonic{
		Area:       bin.Range{Start: addr, End: end},
		Opcode:     "A",
		Statements: []il.Statement{il.NewAssign(mustVar(), il.OpAssign, mustVar())},
	}

	var jumps []arch.Jump
	switch {
	case d.noJumps[addr]:
		// no outgoing transfers.
	case len(d.jumps[addr]) > 0:
		for _, j := range d.jumps[addr] {
			jumps = append(jumps, arch.Jump{Origin: addr, Target: j.target, Guard: j.guard})
		}
	default:
		v, err := rvalue.ValConstant(uint64(end), 64)
		if err != nil {
			return arch.DecodeResult{}, errors.WithStack(err)
		}
		jumps = []arch.Jump{{Origin: addr, Target: v, Guard: rvalue.Always()}}
	}

	return arch.DecodeResult{Mnemonics: []arch.Mnemonic{mne}, Jumps: jumps}, nil
}

func mustVar() rvalue.Value {
	v, err := rvalue.ValVariable("x", 32, nil)
	if err != nil {
		panic(err)
	}
	return v
}

func constVal(v uint64) rvalue.Value {
	val, err := rvalue.ValConstant(v, 64)
	if err != nil {
		panic(err)
	}
	return val
}
