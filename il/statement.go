// Package il implements the intermediate-language statement type and the
// append-only container that stores a function's IL stream (spec §6's IL
// container interface).
package il

import (
	"fmt"

	"github.com/opcodeflow/recore/rvalue"
)

// Operation names the IL operation carried out by a Statement. The core
// never interprets operations itself; it only stores and relocates them.
type Operation string

// A representative subset of operations a decoder may emit, modeled on
// original_source's il::Language operation set.
const (
	OpAssign   Operation = "assign"
	OpAdd      Operation = "add"
	OpSub      Operation = "sub"
	OpMul      Operation = "mul"
	OpAnd      Operation = "and"
	OpOr       Operation = "or"
	OpXor      Operation = "xor"
	OpNot      Operation = "not"
	OpCompare  Operation = "cmp"
	OpCall     Operation = "call"
	OpReturn   Operation = "return"
	OpNop      Operation = "nop"
)

// Statement is a single IL instruction: an operation applied to zero or
// more operands, optionally producing a result. Statements are opaque to
// the core beyond their storage position; only the decoder and downstream
// analyses interpret Operation/Operands/Result.
type Statement struct {
	Op       Operation
	Result   *rvalue.Value
	Operands []rvalue.Value
}

// NewStatement returns a statement applying op to operands, without a
// result (e.g. a bare call or a conditional branch guard side-effect).
func NewStatement(op Operation, operands ...rvalue.Value) Statement {
	return Statement{Op: op, Operands: operands}
}

// NewAssign returns a statement assigning the result of op applied to
// operands into result.
func NewAssign(result rvalue.Value, op Operation, operands ...rvalue.Value) Statement {
	r := result
	return Statement{Op: op, Result: &r, Operands: operands}
}

// String returns the textual representation of s.
func (s Statement) String() string {
	if s.Result != nil {
		return fmt.Sprintf("%s = %s %v", s.Result, s.Op, s.Operands)
	}
	return fmt.Sprintf("%s %v", s.Op, s.Operands)
}
