package corefunc_test

import (
	"testing"

	"github.com/kr/pretty"
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/corefunc"
	"github.com/opcodeflow/recore/rvalue"
)

func newRegion(n int) *bin.Region {
	return bin.NewRegion("test", 0, make([]byte, n))
}

// S1 — single instruction, no outgoing jumps.
func TestSingleInstruction(t *testing.T) {
	d := newTestDecoder()
	d.noJumps[0] = true

	f, err := corefunc.New(d, newRegion(1), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := f.BlockCount(), 1; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}
	if got, want := f.MnemonicCount(), 1; got != want {
		t.Fatalf("MnemonicCount = %d, want %d", got, want)
	}
	cfg := f.CFG()
	if got, want := cfg.NodeCount(), 1; got != want {
		t.Errorf("NodeCount = %d, want %d", got, want)
	}
	if got, want := cfg.EdgeCount(), 0; got != want {
		t.Errorf("EdgeCount = %d, want %d", got, want)
	}
	if got, want := f.EntryAddress(), bin.Addr(0); got != want {
		t.Errorf("EntryAddress = %v, want %v", got, want)
	}
	if got, want := f.Name(), "func_0"; got != want {
		t.Errorf("Name = %q, want %q", got, want)
	}
}

// SetPLT promotes a function to a PLT stub, retiring its prior name as an
// alias and renaming it to importName@plt.
func TestSetPLT(t *testing.T) {
	d := newTestDecoder()
	d.noJumps[0] = true

	f, err := corefunc.New(d, newRegion(1), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oldName := f.Name()

	f.SetPLT("memcpy", 0x1000)

	if got, want := f.Name(), "memcpy@plt"; got != want {
		t.Errorf("Name = %q, want %q", got, want)
	}
	found := false
	for _, a := range f.Aliases() {
		if a == oldName {
			found = true
		}
	}
	if !found {
		t.Errorf("Aliases() = %v, want to contain retired name %q", f.Aliases(), oldName)
	}
	if got, want := f.Kind(), (corefunc.FunctionKind{IsStub: true, ImportName: "memcpy", PLTAddress: 0x1000}); got != want {
		t.Errorf("Kind() = %+v, want %+v", got, want)
	}
}

// S2 — straight-line six mnemonics, each falling through to addr+1; the
// sixth's fallthrough (6) lies outside the decodable region.
func TestStraightLineSix(t *testing.T) {
	d := newTestDecoder()
	d.failAt[6] = true

	f, err := corefunc.New(d, newRegion(6), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := f.BlockCount(), 1; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}
	bb := f.Block(f.EntryPoint())
	if got, want := bb.Area, (bin.Range{Start: 0, End: 6}); got != want {
		t.Errorf("entry block area = %v, want %v", got, want)
	}

	cfg := f.CFG()
	if got, want := cfg.NodeCount(), 2; got != want {
		t.Errorf("NodeCount = %d, want %d", got, want)
	}
	if got, want := cfg.EdgeCount(), 1; got != want {
		t.Errorf("EdgeCount = %d, want %d", got, want)
	}
}

// S3 — two-way branch.
func TestTwoWayBranch(t *testing.T) {
	d := newTestDecoder()
	d.jumps[0] = []fakeJump{
		{target: constVal(1), guard: rvalue.NewGuard("taken")},
		{target: constVal(2), guard: rvalue.NewGuard("!taken")},
	}
	d.jumps[1] = []fakeJump{{target: constVal(3), guard: rvalue.Always()}}
	d.jumps[2] = []fakeJump{{target: constVal(1), guard: rvalue.Always()}}
	d.failAt[3] = true

	f, err := corefunc.New(d, newRegion(3), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := f.BlockCount(), 3; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}
	cfg := f.CFG()
	if got, want := cfg.NodeCount(), 4; got != want {
		t.Errorf("NodeCount = %d, want %d", got, want)
	}
	if got, want := cfg.EdgeCount(), 4; got != want {
		t.Errorf("EdgeCount = %d, want %d", got, want)
	}
}

// S4 — tight loop, entry at the loop head.
func TestTightLoop(t *testing.T) {
	d := newTestDecoder()
	d.jumps[2] = []fakeJump{{target: constVal(0), guard: rvalue.Always()}}

	f, err := corefunc.New(d, newRegion(3), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := f.BlockCount(), 1; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}
	bb := f.Block(f.EntryPoint())
	if got, want := bb.Area, (bin.Range{Start: 0, End: 3}); got != want {
		t.Errorf("block area = %v, want %v", got, want)
	}
	cfg := f.CFG()
	if got, want := cfg.NodeCount(), 1; got != want {
		t.Errorf("NodeCount = %d, want %d", got, want)
	}
	if got, want := cfg.EdgeCount(), 1; got != want {
		t.Errorf("EdgeCount = %d, want %d", got, want)
	}
}

// S5 — same loop as S4, but entry is mid-loop, forcing a split.
func TestEntryForcesSplit(t *testing.T) {
	d := newTestDecoder()
	d.jumps[2] = []fakeJump{{target: constVal(0), guard: rvalue.Always()}}

	f, err := corefunc.New(d, newRegion(3), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := f.BlockCount(), 2; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}
	entryBB := f.Block(f.EntryPoint())
	if got, want := entryBB.Area, (bin.Range{Start: 1, End: 3}); got != want {
		t.Errorf("entry block area = %v, want %v", got, want)
	}
	cfg := f.CFG()
	if got, want := cfg.EdgeCount(), 2; got != want {
		t.Errorf("EdgeCount = %d, want %d", got, want)
	}
}

// S6 — a two-byte mnemonic at 0 overlaps a one-byte mnemonic forced into
// existence by an entry point of 1.
func TestOverlappingEntry(t *testing.T) {
	d := newTestDecoder()
	d.widths[0] = 2
	d.jumps[2] = []fakeJump{{target: constVal(0), guard: rvalue.Always()}}

	f, err := corefunc.New(d, newRegion(3), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := f.BlockCount(), 3; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}
	entryBB := f.Block(f.EntryPoint())
	if got, want := entryBB.Area, (bin.Range{Start: 1, End: 2}); got != want {
		t.Errorf("entry block area = %v, want %v", got, want)
	}
	cfg := f.CFG()
	if got, want := cfg.NodeCount(), 3; got != want {
		t.Errorf("NodeCount = %d, want %d", got, want)
	}
	if got, want := cfg.EdgeCount(), 3; got != want {
		t.Errorf("EdgeCount = %d, want %d", got, want)
	}
}

// S7 — resolving a variable jump target and extending from it grows the
// function and retires the resolved UnresolvedTarget node.
func TestResolveAndExtend(t *testing.T) {
	variable, err := rvalue.ValVariable("A", 32, nil)
	if err != nil {
		t.Fatalf("ValVariable: %v", err)
	}

	d := newTestDecoder()
	d.jumps[1] = []fakeJump{{target: variable, guard: rvalue.Always()}}

	f, err := corefunc.New(d, newRegion(2), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := f.BlockCount(), 1; got != want {
		t.Fatalf("BlockCount = %d, want %d", got, want)
	}

	jumps := f.IndirectJumps()
	found := false
	for _, v := range jumps {
		if v.Equal(variable) {
			found = true
		}
	}
	if !found {
		t.Fatalf("IndirectJumps() = %v, want to contain %v", jumps, variable)
	}

	if ok := f.ResolveIndirectJump(variable, constVal(2)); !ok {
		t.Fatalf("ResolveIndirectJump: not found")
	}

	d.failAt[4] = true
	region := newRegion(4)
	if err := f.Extend(d, region); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	bb := f.Block(f.EntryPoint())
	if got, want := bb.Area, (bin.Range{Start: 0, End: 4}); got != want {
		t.Errorf("extended block area = %v, want %v", got, want)
	}

	for _, v := range f.IndirectJumps() {
		if v.Equal(variable) {
			t.Fatalf("IndirectJumps() still contains resolved variable %v", variable)
		}
	}
	wantConst := constVal(4)
	foundConst := false
	cfg := f.CFG()
	for _, ref := range cfg.Nodes() {
		n := cfg.Node(ref)
		if n.Kind == corefunc.CfgUnresolvedTarget && n.Value.Equal(wantConst) {
			foundConst = true
		}
	}
	if !foundConst {
		t.Fatalf("CFG has no UnresolvedTarget node for sentinel %v", wantConst)
	}
}

// S8 — rewrite renaming every statement's result variable to uppercase
// leaves block structure and per-block statement counts unchanged.
func TestRewriteRename(t *testing.T) {
	d := newTestDecoder()
	d.noJumps[0] = true

	f, err := corefunc.New(d, newRegion(1), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	before, err := f.Statements(corefunc.FullScope())
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	err = f.Rewrite(func(view []corefunc.BlockEdit) error {
		for bi := range view {
			for mi := range view[bi].Mnemonics {
				for si := range view[bi].Mnemonics[mi].Statements {
					s := &view[bi].Mnemonics[mi].Statements[si]
					if s.Result != nil {
						s.Result.Variable = upper(s.Result.Variable)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	after, err := f.Statements(corefunc.FullScope())
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("statement count changed: %d -> %d\n%s", len(before), len(after), pretty.Diff(before, after))
	}
	for _, s := range after {
		if s.Result != nil && s.Result.Variable != upper(s.Result.Variable) {
			t.Errorf("result variable %q not uppercased", s.Result.Variable)
		}
	}
}

// Rewrite rejects a transform that empties a block of all its mnemonics,
// leaving the function unmodified.
func TestRewriteRejectsEmptiedBlock(t *testing.T) {
	d := newTestDecoder()
	d.noJumps[0] = true

	f, err := corefunc.New(d, newRegion(1), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before, err := f.Statements(corefunc.FullScope())
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}

	err = f.Rewrite(func(view []corefunc.BlockEdit) error {
		view[0].Mnemonics = nil
		return nil
	})
	if err == nil {
		t.Fatalf("Rewrite: got nil error, want BlockEmptiedError")
	}
	emptied, ok := errors.Cause(err).(*corefunc.BlockEmptiedError)
	if !ok {
		t.Fatalf("Rewrite error = %#v (%v), want *corefunc.BlockEmptiedError", err, err)
	}
	if got, want := emptied.BlockIndex, 0; got != want {
		t.Errorf("BlockIndex = %d, want %d", got, want)
	}

	after, err := f.Statements(corefunc.FullScope())
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("function mutated despite rejected Rewrite: %d -> %d statements", len(before), len(after))
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
