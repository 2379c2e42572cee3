// Package rvalue implements the tagged r-value variant consumed and
// produced by per-architecture decoders: constants, symbolic variables, and
// the undefined value, plus the guard predicate attached to control-flow
// edges.
package rvalue

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which variant of Value is populated.
type Kind uint8

const (
	// KindConstant is a fixed, known value.
	KindConstant Kind = iota
	// KindVariable is a symbolic value, resolved only when the front-end
	// reduces it to a constant (see corefunc.ResolveIndirectJump).
	KindVariable
	// KindUndefined is a value the decoder could not characterize at all.
	KindUndefined
)

// Value is the r-value variant used throughout the core: a jump target, an
// operand, or the payload of an UnresolvedTarget CFG node.
type Value struct {
	Kind Kind

	// Constant holds the numeric value when Kind == KindConstant.
	Constant uint64
	// Variable holds the symbolic name when Kind == KindVariable.
	Variable string
	// Subscript disambiguates repeated uses of the same Variable name
	// (SSA-style subscript); nil when not subscripted.
	Subscript *uint32
	// Bits is the width of the value in bits; required to be non-zero for
	// KindConstant and KindVariable.
	Bits uint8
}

// ValConstant constructs a constant Value of the given bit width.
func ValConstant(value uint64, bits uint8) (Value, error) {
	if bits == 0 {
		return Value{}, errors.WithStack(&ValueConstructionError{Reason: "constant has zero bit width"})
	}
	return Value{Kind: KindConstant, Constant: value, Bits: bits}, nil
}

// ValVariable constructs a symbolic Value of the given bit width.
func ValVariable(name string, bits uint8, subscript *uint32) (Value, error) {
	if bits == 0 {
		return Value{}, errors.WithStack(&ValueConstructionError{Reason: fmt.Sprintf("variable %q has zero bit width", name)})
	}
	if name == "" {
		return Value{}, errors.WithStack(&ValueConstructionError{Reason: "variable has empty name"})
	}
	return Value{Kind: KindVariable, Variable: name, Subscript: subscript, Bits: bits}, nil
}

// ValUndefined constructs the undefined Value.
func ValUndefined() Value {
	return Value{Kind: KindUndefined}
}

// IsConstant reports whether v holds a constant.
func (v Value) IsConstant() bool { return v.Kind == KindConstant }

// IsVariable reports whether v holds a symbolic variable.
func (v Value) IsVariable() bool { return v.Kind == KindVariable }

// IsUndefined reports whether v is the undefined value.
func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }

// Equal reports whether v and other denote the same r-value.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindConstant:
		return v.Constant == other.Constant
	case KindVariable:
		if v.Variable != other.Variable || v.Bits != other.Bits {
			return false
		}
		switch {
		case v.Subscript == nil && other.Subscript == nil:
			return true
		case v.Subscript == nil || other.Subscript == nil:
			return false
		default:
			return *v.Subscript == *other.Subscript
		}
	case KindUndefined:
		return true
	default:
		return false
	}
}

// String returns the textual representation of v.
func (v Value) String() string {
	switch v.Kind {
	case KindConstant:
		return fmt.Sprintf("%#x:%d", v.Constant, v.Bits)
	case KindVariable:
		if v.Subscript != nil {
			return fmt.Sprintf("%s#%d:%d", v.Variable, *v.Subscript, v.Bits)
		}
		return fmt.Sprintf("%s:%d", v.Variable, v.Bits)
	case KindUndefined:
		return "undefined"
	default:
		return "?"
	}
}

// ValueConstructionError reports that an r-value could not be constructed
// (spec §7's ValueConstructionFailure).
type ValueConstructionError struct {
	Reason string
}

func (e *ValueConstructionError) Error() string {
	return fmt.Sprintf("value construction failure: %s", e.Reason)
}

// Guard is a predicate governing a control-flow transfer.
type Guard struct {
	// always is true for an unconditional transfer.
	always bool
	// expr describes the condition in human-readable form (e.g. "ZF == 1");
	// empty when always is true.
	expr string
}

// Always returns the guard that is unconditionally true.
func Always() Guard {
	return Guard{always: true}
}

// NewGuard returns a guard with the given textual condition.
func NewGuard(expr string) Guard {
	return Guard{expr: expr}
}

// IsAlways reports whether g is the unconditional guard.
func (g Guard) IsAlways() bool {
	return g.always
}

// String returns the textual representation of g.
func (g Guard) String() string {
	if g.always {
		return "true"
	}
	return g.expr
}

// Equal reports whether g and other are the same guard.
func (g Guard) Equal(other Guard) bool {
	return g.always == other.always && g.expr == other.expr
}
