// Package x86 implements a reference Decoder for the x86 architecture,
// built on top of golang.org/x/arch/x86/x86asm.
package x86

import (
	"fmt"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/opcodeflow/recore/arch"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
	"github.com/opcodeflow/recore/rvalue"
)

var (
	// dbg is a logger which logs debug messages with "x86:" prefix to
	// standard error.
	dbg = log.New(os.Stderr, term.MagentaBold("x86:")+" ", 0)
	// warn is a logger which logs warning messages with "warning:" prefix
	// to standard error.
	warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)
)

// Mode selects the processor mode the decoder operates in.
type Mode int

// Supported processor modes.
const (
	Mode16 Mode = 16
	Mode32 Mode = 32
	Mode64 Mode = 64
)

// Decoder is a reference arch.Decoder for x86, decoding one instruction at
// a time with golang.org/x/arch/x86/x86asm.
type Decoder struct {
	// Mode is the processor mode (16, 32 or 64-bit execution mode).
	Mode Mode
}

// NewDecoder returns a Decoder operating in the given processor mode.
func NewDecoder(mode Mode) *Decoder {
	return &Decoder{Mode: mode}
}

// maxInstLen bounds the number of bytes read for a single decode attempt;
// x86 instructions are at most 15 bytes.
const maxInstLen = 16

// Decode decodes the single x86 instruction starting at addr within region.
func (d *Decoder) Decode(region *bin.Region, addr bin.Addr) (arch.DecodeResult, error) {
	cur, err := region.Iter(addr)
	if err != nil {
		return arch.DecodeResult{}, errors.WithStack(err)
	}
	src := cur.Bytes(maxInstLen)
	if len(src) == 0 {
		return arch.DecodeResult{}, errors.Errorf("no bytes available at address %v", addr)
	}
	inst, err := x86asm.Decode(src, int(d.Mode))
	if err != nil {
		return arch.DecodeResult{}, errors.Wrapf(err, "unable to decode instruction at address %v", addr)
	}
	dbg.Printf("%v: %v", addr, inst)

	mne, err := mnemonicFromInst(addr, inst)
	if err != nil {
		return arch.DecodeResult{}, errors.WithStack(err)
	}
	jumps, err := jumpsFromInst(addr, inst)
	if err != nil {
		return arch.DecodeResult{}, errors.WithStack(err)
	}
	return arch.DecodeResult{
		Mnemonics: []arch.Mnemonic{mne},
		Jumps:     jumps,
	}, nil
}

// mnemonicFromInst converts an x86asm.Inst, decoded at addr, into the
// decoder-facing arch.Mnemonic shape.
func mnemonicFromInst(addr bin.Addr, inst x86asm.Inst) (arch.Mnemonic, error) {
	end := addr + bin.Addr(inst.Len)
	operands, err := operandsFromArgs(addr, inst)
	if err != nil {
		return arch.Mnemonic{}, errors.WithStack(err)
	}
	format := formatTokens(inst, operands)
	stmt, err := statementFromInst(inst, operands)
	if err != nil {
		return arch.Mnemonic{}, errors.WithStack(err)
	}
	return arch.Mnemonic{
		Area:       bin.Range{Start: addr, End: end},
		Opcode:     inst.Op.String(),
		Operands:   operands,
		Format:     format,
		Statements: []il.Statement{stmt},
	}, nil
}

// operandsFromArgs converts x86asm's fixed-size argument array into typed
// r-value operands, skipping unused trailing slots.
func operandsFromArgs(addr bin.Addr, inst x86asm.Inst) ([]rvalue.Value, error) {
	var operands []rvalue.Value
	for _, a := range inst.Args {
		if a == nil {
			continue
		}
		v, err := operandFromArg(addr, inst, a)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		operands = append(operands, v)
	}
	return operands, nil
}

// operandFromArg converts a single x86asm.Arg into a typed r-value operand.
// A Rel operand is resolved to its absolute destination address (addr +
// inst.Len + rel), matching branchTarget's resolution of the same operand
// kind, rather than left as the raw relative displacement.
func operandFromArg(addr bin.Addr, inst x86asm.Inst, a x86asm.Arg) (rvalue.Value, error) {
	switch x := a.(type) {
	case x86asm.Imm:
		return rvalue.ValConstant(uint64(x), 32)
	case x86asm.Reg:
		return rvalue.ValVariable(x.String(), regBits(x), nil)
	case x86asm.Mem:
		return rvalue.ValVariable(x.String(), 32, nil)
	case x86asm.Rel:
		dest := int64(addr) + int64(inst.Len) + int64(x)
		return rvalue.ValConstant(uint64(dest), 32)
	default:
		return rvalue.ValUndefined(), nil
	}
}

// regBits returns a conservative bit width for register r. x86asm does not
// directly expose this, so the width is inferred from the register class
// boundaries documented in golang.org/x/arch/x86/x86asm.
func regBits(r x86asm.Reg) uint8 {
	switch {
	case r >= x86asm.AL && r <= x86asm.R15B:
		return 8
	case r >= x86asm.AX && r <= x86asm.R15W:
		return 16
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return 32
	case r >= x86asm.RAX && r <= x86asm.R15:
		return 64
	default:
		return 32
	}
}

// formatTokens produces a human-readable rendering of inst as a sequence of
// literal/operand tokens: the opcode mnemonic followed by comma-separated
// operand placeholders.
func formatTokens(inst x86asm.Inst, operands []rvalue.Value) []arch.FormatToken {
	tokens := []arch.FormatToken{{Kind: arch.FormatLiteral, Literal: inst.Op.String()}}
	for i := range operands {
		if i == 0 {
			tokens = append(tokens, arch.FormatToken{Kind: arch.FormatLiteral, Literal: " "})
		} else {
			tokens = append(tokens, arch.FormatToken{Kind: arch.FormatLiteral, Literal: ", "})
		}
		tokens = append(tokens, arch.FormatToken{Kind: arch.FormatOperand, OperandIndex: i})
	}
	return tokens
}

// statementFromInst produces the (intentionally coarse) IL statement for
// inst; the core treats statements as opaque, so no attempt is made at a
// faithful semantic lift here.
func statementFromInst(inst x86asm.Inst, operands []rvalue.Value) (il.Statement, error) {
	op := ilOpFromX86Op(inst.Op)
	if len(operands) == 0 {
		return il.NewStatement(op), nil
	}
	result := operands[0]
	return il.NewAssign(result, op, operands...), nil
}

// ilOpFromX86Op maps an x86 opcode to a coarse il.Operation.
func ilOpFromX86Op(op x86asm.Op) il.Operation {
	switch op {
	case x86asm.MOV, x86asm.MOVZX, x86asm.MOVSX, x86asm.LEA:
		return il.OpAssign
	case x86asm.ADD, x86asm.INC:
		return il.OpAdd
	case x86asm.SUB, x86asm.DEC:
		return il.OpSub
	case x86asm.IMUL, x86asm.MUL:
		return il.OpMul
	case x86asm.AND:
		return il.OpAnd
	case x86asm.OR:
		return il.OpOr
	case x86asm.XOR:
		return il.OpXor
	case x86asm.NOT, x86asm.NEG:
		return il.OpNot
	case x86asm.CMP, x86asm.TEST:
		return il.OpCompare
	case x86asm.CALL:
		return il.OpCall
	case x86asm.RET:
		return il.OpReturn
	default:
		return il.OpNop
	}
}

// jumpsFromInst derives the outgoing control transfers of inst, decoded at
// addr.
func jumpsFromInst(addr bin.Addr, inst x86asm.Inst) ([]arch.Jump, error) {
	fallthroughAddr := addr + bin.Addr(inst.Len)
	switch {
	case isUnconditionalJump(inst.Op):
		target, err := branchTarget(addr, inst)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return []arch.Jump{{Origin: addr, Target: target, Guard: rvalue.Always()}}, nil

	case isConditionalJump(inst.Op):
		taken, err := branchTarget(addr, inst)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		notTaken, err := rvalue.ValConstant(uint64(fallthroughAddr), 32)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		cond := inst.Op.String()
		return []arch.Jump{
			{Origin: addr, Target: taken, Guard: rvalue.NewGuard(cond)},
			{Origin: addr, Target: notTaken, Guard: rvalue.NewGuard("!" + cond)},
		}, nil

	case inst.Op == x86asm.RET:
		return []arch.Jump{{Origin: addr, Target: rvalue.ValUndefined(), Guard: rvalue.Always()}}, nil

	default:
		// Non-terminator instruction (including CALL, which the core does
		// not treat as a block boundary: control returns to the next
		// instruction once the callee completes).
		target, err := rvalue.ValConstant(uint64(fallthroughAddr), 32)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return []arch.Jump{{Origin: addr, Target: target, Guard: rvalue.Always()}}, nil
	}
}

// branchTarget resolves the destination of a (possibly indirect) branch
// instruction decoded at addr.
func branchTarget(addr bin.Addr, inst x86asm.Inst) (rvalue.Value, error) {
	for _, a := range inst.Args {
		if a == nil {
			continue
		}
		switch x := a.(type) {
		case x86asm.Rel:
			dest := int64(addr) + int64(inst.Len) + int64(x)
			return rvalue.ValConstant(uint64(dest), 32)
		case x86asm.Imm:
			return rvalue.ValConstant(uint64(x), 32)
		case x86asm.Reg, x86asm.Mem:
			name := fmt.Sprintf("indirect_%v_%v", addr, a)
			return rvalue.ValVariable(name, 32, nil)
		}
	}
	warn.Printf("%v: branch instruction %v has no recognizable target operand", addr, inst.Op)
	return rvalue.ValUndefined(), nil
}

// isUnconditionalJump reports whether op is an unconditional jump.
func isUnconditionalJump(op x86asm.Op) bool {
	return op == x86asm.JMP
}

// isConditionalJump reports whether op is a conditional jump or loop
// terminator.
func isConditionalJump(op x86asm.Op) bool {
	switch op {
	case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JE,
		x86asm.JECXZ, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE,
		x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS:
		return true
	}
	return false
}
