package taproot

import (
	"container/heap"
	"errors"

	"github.com/btcsuite/btcd/txscript"
)

// ErrNoLeaves is returned when a tree is requested for zero scripts.
var ErrNoLeaves = errors.New("at least one leaf is required")

// WeightedLeaf is a tap leaf together with its relative spend probability.
type WeightedLeaf struct {
	Weight uint32
	Leaf   txscript.TapLeaf
}

// weightedNode is a heap entry. Entries with equal weights are ordered by
// their insertion sequence.
type weightedNode struct {
	weight uint64
	seq    int
	node   txscript.TapNode
}

type nodeHeap []*weightedNode

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}

	return h[i].seq < h[j].seq
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(*weightedNode)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]

	return n
}

// BuildHuffmanTree builds a script tree in which likely leaves sit closer to
// the root. The two lightest nodes are combined until one node remains.
func BuildHuffmanTree(leaves []WeightedLeaf) (txscript.TapNode, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	h := make(nodeHeap, 0, len(leaves))
	for i, l := range leaves {
		h = append(h, &weightedNode{
			weight: uint64(l.Weight),
			seq:    i,
			node:   l.Leaf,
		})
	}
	heap.Init(&h)

	seq := len(leaves)
	for h.Len() > 1 {
		a := heap.Pop(&h).(*weightedNode)
		b := heap.Pop(&h).(*weightedNode)
		heap.Push(&h, &weightedNode{
			weight: a.weight + b.weight,
			seq:    seq,
			node:   txscript.NewTapBranch(a.node, b.node),
		})
		seq++
	}

	return h[0].node, nil
}

// leafProof is a leaf of a script tree with the sibling hashes on its path
// to the root, ordered from the leaf upwards.
type leafProof struct {
	leaf     txscript.TapLeaf
	siblings [][]byte
}

// collectLeaves walks the tree left to right and records the merkle path of
// every leaf.
func collectLeaves(node txscript.TapNode, path [][]byte) []leafProof {
	if leaf, ok := node.(txscript.TapLeaf); ok {
		siblings := make([][]byte, len(path))
		for i := range path {
			siblings[i] = path[len(path)-1-i]
		}

		return []leafProof{{leaf: leaf, siblings: siblings}}
	}

	left, right := node.Left(), node.Right()
	rightHash := right.TapHash()
	leftHash := left.TapHash()

	proofs := collectLeaves(
		left, append(append([][]byte(nil), path...), rightHash[:]),
	)

	return append(proofs, collectLeaves(
		right, append(append([][]byte(nil), path...), leftHash[:]),
	)...)
}
