package corefunc

import "github.com/opcodeflow/recore/rvalue"

// cfgEdge is one outgoing control-flow edge from a node, carrying the
// guard governing the transfer.
type cfgEdge struct {
	target nodeIndex
	guard  rvalue.Guard
}

// cfg is the control-flow graph arena: a flat slice of nodes plus, per
// node, a slice of outgoing edges in insertion order (spec §9's
// determinism requirement for reverse-postorder layout). No third-party
// graph library is used; see DESIGN.md.
type cfg struct {
	nodes []CfgNode
	out   [][]cfgEdge
}

func newCfg(capacity int) *cfg {
	return &cfg{
		nodes: make([]CfgNode, 0, capacity),
		out:   make([][]cfgEdge, 0, capacity),
	}
}

// addBlockNode adds a node referencing the given block and returns its
// index.
func (g *cfg) addBlockNode(idx BlockIndex) nodeIndex {
	return g.addNode(CfgNode{Kind: CfgBlockRef, Block: idx})
}

// addValueNode adds an UnresolvedTarget node carrying value and returns its
// index.
func (g *cfg) addValueNode(value rvalue.Value) nodeIndex {
	return g.addNode(CfgNode{Kind: CfgUnresolvedTarget, Value: value})
}

func (g *cfg) addNode(n CfgNode) nodeIndex {
	idx := nodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	return idx
}

// findValueNode returns the node carrying an UnresolvedTarget equal to
// value, if any.
func (g *cfg) findValueNode(value rvalue.Value) (nodeIndex, bool) {
	for i, n := range g.nodes {
		if n.Kind == CfgUnresolvedTarget && n.Value.Equal(value) {
			return nodeIndex(i), true
		}
	}
	return 0, false
}

// upsertEdge inserts an edge (src -> dst) with the given guard, or updates
// the guard of an existing edge between the same endpoints (spec's edge
// identity rule: "a second insertion with the same endpoints updates the
// guard rather than duplicating").
func (g *cfg) upsertEdge(src, dst nodeIndex, guard rvalue.Guard) {
	edges := g.out[src]
	for i, e := range edges {
		if e.target == dst {
			edges[i].guard = guard
			return
		}
	}
	g.out[src] = append(g.out[src], cfgEdge{target: dst, guard: guard})
}

// NodeCount returns the number of nodes in the graph.
func (g *cfg) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *cfg) EdgeCount() int {
	n := 0
	for _, edges := range g.out {
		n += len(edges)
	}
	return n
}

// CfgNodeRef is a stable, opaque reference to a CFG node. It can only be
// constructed by this package.
type CfgNodeRef struct {
	idx nodeIndex
}

// CfgEdgeRef describes one outgoing edge as seen from CFG.Edges.
type CfgEdgeRef struct {
	Target CfgNodeRef
	Guard  rvalue.Guard
}

// CFG is a read-only view of a Function's control-flow graph (spec §4.4's
// cfg() query).
type CFG struct {
	g *cfg
}

// Nodes returns a stable reference to every node in the graph, in
// insertion order.
func (c CFG) Nodes() []CfgNodeRef {
	refs := make([]CfgNodeRef, len(c.g.nodes))
	for i := range c.g.nodes {
		refs[i] = CfgNodeRef{idx: nodeIndex(i)}
	}
	return refs
}

// Node returns the node data referenced by ref.
func (c CFG) Node(ref CfgNodeRef) CfgNode {
	return c.g.nodes[ref.idx]
}

// Edges returns the outgoing edges of ref, in insertion order.
func (c CFG) Edges(ref CfgNodeRef) []CfgEdgeRef {
	edges := c.g.out[ref.idx]
	refs := make([]CfgEdgeRef, len(edges))
	for i, e := range edges {
		refs[i] = CfgEdgeRef{Target: CfgNodeRef{idx: e.target}, Guard: e.guard}
	}
	return refs
}

// FindEdge reports the guard of the edge from src to dst, if one exists.
func (c CFG) FindEdge(src, dst CfgNodeRef) (rvalue.Guard, bool) {
	for _, e := range c.g.out[src.idx] {
		if e.target == dst.idx {
			return e.guard, true
		}
	}
	return rvalue.Guard{}, false
}

// NodeCount returns the number of nodes in the graph.
func (c CFG) NodeCount() int { return c.g.NodeCount() }

// EdgeCount returns the number of edges in the graph.
func (c CFG) EdgeCount() int { return c.g.EdgeCount() }
