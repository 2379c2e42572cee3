package corefunc

import "github.com/opcodeflow/recore/bin"

// isBasicBlockBoundary is the boundary oracle (spec §4.2): a pure predicate
// over two address-adjacent mnemonics deciding whether a block must end
// between them. It never looks past its two arguments and the jump maps, so
// partitionBlocks can apply it in a single left-to-right scan.
func isBasicBlockBoundary(a, b Mnemonic, entry bin.Addr, maps *jumpMaps) bool {
	// Rule 1: a gap (or overlap) between the two mnemonics always splits.
	if a.Area.End != b.Area.Start {
		return true
	}

	// Rule 2: a jumps somewhere other than straight into b.
	for _, f := range maps.bySource[a.Area.Start] {
		if f.value.IsConstant() && bin.Addr(f.value.Constant) != b.Area.Start {
			return true
		}
	}

	// Rule 3: b is jumped into from somewhere other than a falling through.
	for _, f := range maps.byDestination[b.Area.Start] {
		if f.value.IsConstant() && bin.Addr(f.value.Constant) != a.Area.Start {
			return true
		}
	}

	// Rule 4: b is the function's entry point, so it must start its own
	// block even when a falls straight through into it.
	if b.Area.Start == entry {
		return true
	}

	return false
}
