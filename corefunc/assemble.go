package corefunc

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/il"
)

// assembled bundles everything assemble replaces in a Function, so that
// extend/rewrite can build it in a local and swap it in atomically.
type assembled struct {
	mnemonics []Mnemonic
	blocks    []BasicBlock
	graph     *cfg
	code      *il.Container
	entry     BlockIndex
}

// assemble consumes the address-sorted mnemonic/statement vector plus the
// jump maps produced by disassemble, and produces the block vector, CFG,
// and IL stream (spec §4.3, Phases A-D).
func assemble(entry bin.Addr, pending []pendingMnemonic, maps *jumpMaps) (*assembled, error) {
	blocks, err := partitionBlocks(entry, pending, maps)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	graph := newCfg(len(blocks) + len(blocks)/2)
	for i := range blocks {
		blocks[i].node = graph.addBlockNode(newBlockIndex(i))
	}

	if err := buildEdges(blocks, pending, graph, maps); err != nil {
		return nil, errors.WithStack(err)
	}

	entryIdx := -1
	for i, bb := range blocks {
		if bb.Area.Start == entry {
			entryIdx = i
			break
		}
	}
	if entryIdx == -1 {
		return nil, errors.WithStack(&NoEntryBlockError{Entry: uint64(entry)})
	}

	// Reverse-postorder: reverse the post-order DFS finish sequence from the
	// entry node. Reachable blocks are renumbered into this order (spec §3's
	// "block vector is in reverse-postorder from the entry block"); blocks
	// never reached from the entry keep their original address-sorted tail
	// position.
	rpo := postOrder(graph, blocks[entryIdx].node)
	for l, r := 0, len(rpo)-1; l < r; l, r = l+1, r-1 {
		rpo[l], rpo[r] = rpo[r], rpo[l]
	}

	blocks, oldToNew := reorderBlocks(blocks, graph, rpo)
	entryIdx = oldToNew[entryIdx]

	reachable := 0
	for _, n := range rpo {
		if graph.nodes[n].Kind == CfgBlockRef {
			reachable++
		}
	}

	mnemonics, code, err := layoutIL(blocks[:reachable], pending)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &assembled{
		mnemonics: mnemonics,
		blocks:    blocks,
		graph:     graph,
		code:      code,
		entry:     newBlockIndex(entryIdx),
	}, nil
}

// reorderBlocks renumbers blocks so that every block reached by rpo (the
// reverse-postorder node sequence from the entry) appears in that order,
// followed by any unreached blocks in their original address order. It
// rewrites graph.nodes' Block fields in place to match, and returns the old
// to new index mapping.
func reorderBlocks(blocks []BasicBlock, graph *cfg, rpo []nodeIndex) ([]BasicBlock, []int) {
	oldToNew := make([]int, len(blocks))
	for i := range oldToNew {
		oldToNew[i] = -1
	}

	reordered := make([]BasicBlock, 0, len(blocks))
	for _, n := range rpo {
		node := graph.nodes[n]
		if node.Kind != CfgBlockRef {
			continue
		}
		oldToNew[node.Block.index] = len(reordered)
		reordered = append(reordered, blocks[node.Block.index])
	}
	for i, bb := range blocks {
		if oldToNew[i] != -1 {
			continue
		}
		oldToNew[i] = len(reordered)
		reordered = append(reordered, bb)
	}

	for i, node := range graph.nodes {
		if node.Kind == CfgBlockRef {
			graph.nodes[i].Block = newBlockIndex(oldToNew[node.Block.index])
		}
	}

	return reordered, oldToNew
}

// partitionBlocks scans adjacent mnemonic pairs and applies the boundary
// oracle to emit an exhaustive, address-sorted partition of pending into
// basic blocks (Phase A).
func partitionBlocks(entry bin.Addr, pending []pendingMnemonic, maps *jumpMaps) ([]BasicBlock, error) {
	if len(pending) == 0 {
		return nil, errors.WithStack(&NoEntryBlockError{Entry: uint64(entry)})
	}

	var blocks []BasicBlock
	idx := 0
	for idx < len(pending) {
		end := len(pending)
		for j := idx; j+1 < len(pending); j++ {
			if isBasicBlockBoundary(pending[j].mne, pending[j+1].mne, entry, maps) {
				end = j + 1
				break
			}
		}
		blocks = append(blocks, BasicBlock{
			Mnemonics: MnemonicRange{Start: newMnemonicIndex(idx), End: newMnemonicIndex(end)},
			Area:      bin.Range{Start: pending[idx].mne.Area.Start, End: pending[end-1].mne.Area.End},
		})
		idx = end
	}
	return blocks, nil
}

// buildEdges adds one CFG edge per recorded jump out of each block's last
// mnemonic (Phase B).
func buildEdges(blocks []BasicBlock, pending []pendingMnemonic, graph *cfg, maps *jumpMaps) error {
	// blockByStart supports the binary search required to decide whether a
	// constant jump target lands on an existing block.
	starts := make([]bin.Addr, len(blocks))
	for i, bb := range blocks {
		starts[i] = bb.Area.Start
	}

	for _, bb := range blocks {
		lastMne := pending[bb.Mnemonics.End.index-1].mne
		facts := maps.bySource[lastMne.Area.Start]
		for _, f := range facts {
			switch {
			case f.value.IsConstant():
				target := bin.Addr(f.value.Constant)
				pos := sort.Search(len(starts), func(i int) bool { return starts[i] >= target })
				if pos < len(starts) && starts[pos] == target {
					graph.upsertEdge(bb.node, blocks[pos].node, f.guard)
				} else {
					n, ok := graph.findValueNode(f.value)
					if !ok {
						n = graph.addValueNode(f.value)
					}
					graph.upsertEdge(bb.node, n, f.guard)
				}
			default:
				n, ok := graph.findValueNode(f.value)
				if !ok {
					n = graph.addValueNode(f.value)
				}
				graph.upsertEdge(bb.node, n, f.guard)
			}
		}
	}
	return nil
}

// layoutIL drains the pending statements of the mnemonics of blocks (the
// reachable blocks, already renumbered into reverse-postorder by
// reorderBlocks) into a fresh IL container in that order (Phase D).
// Mnemonics belonging to unreachable blocks keep an empty statement range
// and occupy no IL space.
func layoutIL(blocks []BasicBlock, pending []pendingMnemonic) ([]Mnemonic, *il.Container, error) {
	code := il.NewContainer()
	mnemonics := make([]Mnemonic, len(pending))
	for i, p := range pending {
		mnemonics[i] = p.mne
		mnemonics[i].Statements = il.Range{}
	}

	for _, bb := range blocks {
		for i := bb.Mnemonics.Start.index; i < bb.Mnemonics.End.index; i++ {
			start := code.Len()
			end := start
			for _, stmt := range pending[i].statements {
				n, err := code.Push(stmt)
				if err != nil {
					return nil, nil, errors.WithStack(err)
				}
				end += n
			}
			mnemonics[i].Statements = il.Range{Start: start, End: end}
		}
	}
	return mnemonics, code, nil
}

// postOrder returns the nodes reachable from start in depth-first
// post-order (each node appended once all of its out-edges have been
// explored), visiting edges in insertion order for determinism (spec §9).
// Reversing this sequence yields the reverse-postorder block layout order.
func postOrder(graph *cfg, start nodeIndex) []nodeIndex {
	visited := make([]bool, len(graph.nodes))
	var order []nodeIndex

	type frame struct {
		node     nodeIndex
		edgeIdx  int
	}
	visited[start] = true
	stack := []frame{{node: start}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.edgeIdx < len(graph.out[top.node]) {
			e := graph.out[top.node][top.edgeIdx]
			top.edgeIdx++
			if !visited[e.target] {
				visited[e.target] = true
				stack = append(stack, frame{node: e.target})
			}
			continue
		}
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}
	return order
}
