// Package bin provides a uniform representation of executable memory: a
// virtual address type and a byte-addressable, length-bounded memory region.
package bin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Addr is a virtual address that may be specified in hexadecimal notation.
// It implements the flag.Value and encoding.TextUnmarshaler interfaces.
type Addr uint64

// Address size in number of bits.
const addrSize = 64

// String returns the hexadecimal string representation of v.
func (v Addr) String() string {
	return fmt.Sprintf("0x%08X", uint64(v))
}

// Set sets v to the numeric value represented by s.
func (v *Addr) Set(s string) error {
	x, err := parseUint64(s)
	if err != nil {
		return errors.WithStack(err)
	}
	*v = Addr(x)
	return nil
}

// UnmarshalText unmarshals the text into v.
func (v *Addr) UnmarshalText(text []byte) error {
	return v.Set(string(text))
}

// MarshalText returns the textual representation of v.
func (v Addr) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Addrs implements the sort.Interface interface, sorting addresses in
// ascending order.
type Addrs []Addr

func (as Addrs) Len() int           { return len(as) }
func (as Addrs) Swap(i, j int)      { as[i], as[j] = as[j], as[i] }
func (as Addrs) Less(i, j int) bool { return as[i] < as[j] }

// Range is a half-open address range [Start, End).
type Range struct {
	Start Addr
	End   Addr
}

// Len returns the number of addresses covered by r.
func (r Range) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Contains reports whether addr lies within the half-open range r.
func (r Range) Contains(addr Addr) bool {
	return addr >= r.Start && addr < r.End
}

// String returns the string representation of r.
func (r Range) String() string {
	return fmt.Sprintf("%v..%v", r.Start, r.End)
}

// ### [ Helper functions ] ####################################################

// parseUint64 interprets the given string in base 10 or base 16 (if prefixed
// with `0x` or `0X`) and returns the corresponding value.
func parseUint64(s string) (uint64, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[len("0x"):]
		base = 16
	}
	x, err := strconv.ParseUint(s, base, addrSize)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return x, nil
}
