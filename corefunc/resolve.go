package corefunc

import "github.com/opcodeflow/recore/rvalue"

// ResolveIndirectJump locates the unique UnresolvedTarget node whose payload
// equals v and mutates it in place to hold c. It reports whether such a
// node was found. This is a point edit only (spec §4.5): it neither
// re-disassembles nor re-partitions; Extend performs that separately.
func (f *Function) ResolveIndirectJump(v rvalue.Value, c rvalue.Value) bool {
	for i, n := range f.graph.nodes {
		if n.Kind == CfgUnresolvedTarget && n.Value.Equal(v) {
			f.graph.nodes[i].Value = c
			return true
		}
	}
	return false
}
