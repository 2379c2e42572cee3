// Package arch defines the narrow, per-architecture decoder interface
// consumed by the core (spec §6): given a region and an address, produce
// the mnemonics found there and the jumps they emit.
package arch

import (
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

// FormatTokenKind distinguishes literal text from an operand placeholder in
// a mnemonic's format string (used for textual rendering only).
type FormatTokenKind uint8

const (
	// FormatLiteral is verbatim text (e.g. an opcode mnemonic or a comma).
	FormatLiteral FormatTokenKind = iota
	// FormatOperand references one of the mnemonic's Operands by index.
	FormatOperand
)

// FormatToken is one token of a mnemonic's human-readable rendering.
type FormatToken struct {
	Kind    FormatTokenKind
	Literal string
	// OperandIndex is valid when Kind == FormatOperand.
	OperandIndex int
}

// Mnemonic is a single decoded instruction, as produced by a Decoder. It is
// converted into the core's own Mnemonic type (which additionally tracks a
// statement range into the function's IL container) during disassembly.
type Mnemonic struct {
	// Area is the half-open address range covered by the instruction.
	Area bin.Range
	// Opcode is a short, interned textual mnemonic ("mov", "jmp", ...).
	Opcode string
	// Operands holds the instruction's typed r-value operands.
	Operands []rvalue.Value
	// Format renders Opcode/Operands as human-readable text.
	Format []FormatToken
	// Statements holds the raw IL statements produced for this instruction.
	// They have not yet been pushed into any Container.
	Statements []il.Statement
}

// Jump is a single outgoing control transfer discovered while decoding the
// instruction whose start address is Origin.
type Jump struct {
	// Origin is the start address of the mnemonic the jump originates from.
	Origin bin.Addr
	// Target is the jump destination: a constant, a symbolic variable, or
	// undefined.
	Target rvalue.Value
	// Guard is the predicate governing the transfer.
	Guard rvalue.Guard
}

// DecodeResult is everything a Decoder produces for a single call: the
// mnemonics found starting at the requested address (usually exactly one,
// but a decoder may legitimately split a prefix run into several), and the
// jumps those mnemonics emit.
type DecodeResult struct {
	Mnemonics []Mnemonic
	Jumps     []Jump
}

// Decoder is the external, per-architecture instruction decoder the core
// is driven through. Implementations do not see the core's internal types;
// they only see a Region and an address.
type Decoder interface {
	// Decode decodes the instruction(s) starting at address addr within
	// region. It returns an error if no valid instruction starts there.
	Decode(region *bin.Region, addr bin.Addr) (DecodeResult, error)
}
