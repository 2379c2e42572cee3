package bin

import "github.com/pkg/errors"

// Region is a length-bounded, byte-addressable memory region as consumed by
// a per-architecture decoder (spec §6's Region interface). Region does not
// know about instructions; it only hands out bytes starting at an address.
type Region struct {
	// name identifies the region (e.g. a section name), for diagnostics.
	name string
	// base is the address of data[0].
	base Addr
	// data holds the bytes of the region.
	data []byte
}

// NewRegion returns a new memory region named name, holding data, whose
// first byte is located at address base.
func NewRegion(name string, base Addr, data []byte) *Region {
	return &Region{name: name, base: base, data: data}
}

// Name returns the name of the region.
func (r *Region) Name() string {
	return r.name
}

// Base returns the address of the first byte of the region.
func (r *Region) Base() Addr {
	return r.base
}

// Len returns the number of bytes covered by the region.
func (r *Region) Len() int {
	return len(r.data)
}

// End returns the address one past the last byte of the region.
func (r *Region) End() Addr {
	return r.base + Addr(len(r.data))
}

// Contains reports whether addr lies within the region.
func (r *Region) Contains(addr Addr) bool {
	return addr >= r.base && addr < r.End()
}

// Cursor is a bounded, forward-only byte stream into a Region, starting at a
// given address.
type Cursor struct {
	region *Region
	offset int
}

// Iter returns a cursor over the bytes of the region starting at addr. The
// cursor is bounded by the length of the region.
func (r *Region) Iter(addr Addr) (*Cursor, error) {
	if !r.Contains(addr) {
		return nil, errors.Errorf("address %v out of bounds of region %q %v", addr, r.name, bounds(r))
	}
	return &Cursor{region: r, offset: int(addr - r.base)}, nil
}

// bounds renders the [start,end) range covered by r, for error messages.
func bounds(r *Region) Range {
	return Range{Start: r.base, End: r.End()}
}

// Bytes returns up to n unconsumed bytes starting at the cursor's current
// position, without advancing the cursor. Fewer than n bytes are returned
// if the region ends first.
func (c *Cursor) Bytes(n int) []byte {
	end := c.offset + n
	if end > len(c.region.data) {
		end = len(c.region.data)
	}
	if end < c.offset {
		return nil
	}
	return c.region.data[c.offset:end]
}

// Addr returns the address of the cursor's current position.
func (c *Cursor) Addr() Addr {
	return c.region.base + Addr(c.offset)
}

// Advance moves the cursor forward by n bytes.
func (c *Cursor) Advance(n int) {
	c.offset += n
}

// Remaining returns the number of unconsumed bytes in the region.
func (c *Cursor) Remaining() int {
	return len(c.region.data) - c.offset
}
