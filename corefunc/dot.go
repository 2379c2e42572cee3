package corefunc

import (
	"fmt"
	"strings"
)

// DOT renders the function's control-flow graph as Graphviz DOT source, for
// debug dumps (spec §6's "debug dump (DOT rendering of the CFG)"). No
// third-party DOT-rendering library is pulled in for this; the teacher's
// own String() methods build text by hand with strings.Builder/fmt, and
// this follows the same idiom.
func (f *Function) DOT() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotIdent(f.name))

	for i, n := range f.graph.nodes {
		switch n.Kind {
		case CfgBlockRef:
			bb := f.blocks[n.Block.index]
			label := bb.Area.String()
			if n.Block.index == f.entry.index {
				fmt.Fprintf(&b, "\tn%d [label=%q shape=box style=bold];\n", i, label)
			} else {
				fmt.Fprintf(&b, "\tn%d [label=%q shape=box];\n", i, label)
			}
		case CfgUnresolvedTarget:
			fmt.Fprintf(&b, "\tn%d [label=%q shape=diamond];\n", i, n.Value.String())
		}
	}

	for src, edges := range f.graph.out {
		for _, e := range edges {
			fmt.Fprintf(&b, "\tn%d -> n%d [label=%q];\n", src, e.target, e.guard.String())
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// dotIdent sanitizes name for use as a DOT graph identifier.
func dotIdent(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}
