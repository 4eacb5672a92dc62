package merbinner

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// parallelThreshold is the leaf count above which subtree digests are
// computed concurrently.
const parallelThreshold = 2048

// parallelDepth is the depth at which subtrees are handed to workers.
const parallelDepth = 4

type nodeKind uint8

const (
	kindEmpty nodeKind = iota
	kindLeaf
	kindInner
)

// node is an arena entry. Inner nodes reference children by index; left is
// the subtree whose keys have a 1 bit at this depth.
type node struct {
	kind   nodeKind
	left   int32
	right  int32
	leaf   int32
	hashed bool
	digest types.Hash
}

// Tree is an immutable commitment tree. It is safe for concurrent use.
type Tree struct {
	nodes  []node
	leaves []Leaf
	index  map[types.Hash]int
	root   int32
}

// Build constructs the tree committing to leaves. The result depends only on
// the leaf set, not on its order.
func Build(leaves []Leaf) (*Tree, error) {
	sorted := make([]Leaf, len(leaves))
	for i, l := range leaves {
		if err := l.check(); err != nil {
			return nil, err
		}
		sorted[i] = l.clone()
	}
	slices.SortFunc(sorted, func(a, b Leaf) int {
		return bytes.Compare(a.Key[:], b.Key[:])
	})

	t := &Tree{
		nodes:  make([]node, 0, 2*len(sorted)+1),
		leaves: sorted,
		index:  make(map[types.Hash]int, len(sorted)),
	}
	for i, l := range sorted {
		if i > 0 && sorted[i-1].Key == l.Key {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, l.Key)
		}
		t.index[l.Key] = i
	}

	t.root = t.build(0, len(sorted), 0)
	t.hashAll()
	return t, nil
}

func (t *Tree) add(n node) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

// build lays out the sorted leaves [lo, hi) below depth. A range holding
// zero or one leaf collapses to an empty or leaf node.
func (t *Tree) build(lo, hi, depth int) int32 {
	switch hi - lo {
	case 0:
		return t.add(node{kind: kindEmpty})
	case 1:
		return t.add(node{kind: kindLeaf, leaf: int32(lo)})
	}
	// Keys are sorted, so those with a 0 bit at depth come first.
	mid := lo + sort.Search(hi-lo, func(i int) bool {
		return t.leaves[lo+i].Key.Bit(depth)
	})
	idx := t.add(node{kind: kindInner})
	left := t.build(mid, hi, depth+1)
	right := t.build(lo, mid, depth+1)
	t.nodes[idx].left = left
	t.nodes[idx].right = right
	return idx
}

func (t *Tree) hashAll() {
	if len(t.leaves) >= parallelThreshold {
		var frontier []int32
		t.collect(t.root, 0, &frontier)
		var g errgroup.Group
		for _, i := range frontier {
			i := i
			g.Go(func() error {
				t.hashNode(i)
				return nil
			})
		}
		_ = g.Wait()
	}
	t.hashNode(t.root)
}

// collect gathers the inner nodes at parallelDepth. Each is the root of a
// disjoint subtree, so workers never touch the same arena entry.
func (t *Tree) collect(i int32, depth int, out *[]int32) {
	n := &t.nodes[i]
	if n.kind != kindInner {
		return
	}
	if depth == parallelDepth {
		*out = append(*out, i)
		return
	}
	t.collect(n.left, depth+1, out)
	t.collect(n.right, depth+1, out)
}

func (t *Tree) hashNode(i int32) types.Hash {
	n := &t.nodes[i]
	if n.hashed {
		return n.digest
	}
	switch n.kind {
	case kindEmpty:
		n.digest = emptyDigest
	case kindLeaf:
		n.digest = t.leaves[n.leaf].Digest()
	case kindInner:
		n.digest = innerDigest(t.hashNode(n.left), t.hashNode(n.right))
	}
	n.hashed = true
	return n.digest
}

// Root returns the root digest.
func (t *Tree) Root() types.Hash {
	return t.nodes[t.root].digest
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.leaves)
}

// Leaves returns the leaves in key order.
func (t *Tree) Leaves() []Leaf {
	out := make([]Leaf, len(t.leaves))
	for i, l := range t.leaves {
		out[i] = l.clone()
	}
	return out
}

// Get returns the leaf stored under key.
func (t *Tree) Get(key types.Hash) (Leaf, bool) {
	i, ok := t.index[key]
	if !ok {
		return Leaf{}, false
	}
	return t.leaves[i].clone(), true
}

// Prove returns a pruned branch containing the leaves for keys and the
// digests of every subtree off their paths.
func (t *Tree) Prove(keys ...types.Hash) (*Branch, error) {
	ks := make([]types.Hash, 0, len(keys))
	for _, k := range keys {
		if _, ok := t.index[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, k)
		}
		ks = append(ks, k)
	}
	slices.SortFunc(ks, func(a, b types.Hash) int {
		return bytes.Compare(a[:], b[:])
	})
	ks = slices.Compact(ks)

	b := &Branch{}
	t.prove(t.root, 0, ks, b)
	return b, nil
}

func (t *Tree) prove(i int32, depth int, keys []types.Hash, b *Branch) {
	n := &t.nodes[i]
	if n.kind == kindEmpty {
		b.Nodes = append(b.Nodes, BranchNode{Kind: NodeEmpty})
		return
	}
	if len(keys) == 0 {
		b.Nodes = append(b.Nodes, BranchNode{Kind: NodePruned, Digest: n.digest})
		return
	}
	if n.kind == kindLeaf {
		b.Nodes = append(b.Nodes, BranchNode{Kind: NodeLeaf, Leaf: t.leaves[n.leaf].clone()})
		return
	}
	b.Nodes = append(b.Nodes, BranchNode{Kind: NodeInner})
	mid := sort.Search(len(keys), func(j int) bool {
		return keys[j].Bit(depth)
	})
	t.prove(n.left, depth+1, keys[mid:], b)
	t.prove(n.right, depth+1, keys[:mid], b)
}

// Builder is the issuer's mutable view of a leaf set. It is not safe for
// concurrent use; Build snapshots it into an immutable Tree.
type Builder struct {
	leaves map[types.Hash]Leaf
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{leaves: make(map[types.Hash]Leaf)}
}

// Builder returns a builder seeded with this tree's leaves, for preparing
// the next version.
func (t *Tree) Builder() *Builder {
	b := NewBuilder()
	for _, l := range t.leaves {
		b.leaves[l.Key] = l.clone()
	}
	return b
}

// Put adds or replaces the leaf for l.Key.
func (b *Builder) Put(l Leaf) error {
	if err := l.check(); err != nil {
		return err
	}
	b.leaves[l.Key] = l.clone()
	return nil
}

// Remove drops the leaf for key, reporting whether it was present.
func (b *Builder) Remove(key types.Hash) bool {
	_, ok := b.leaves[key]
	delete(b.leaves, key)
	return ok
}

// Len returns the number of leaves staged.
func (b *Builder) Len() int {
	return len(b.leaves)
}

// Build produces the tree for the staged leaves.
func (b *Builder) Build() (*Tree, error) {
	leaves := make([]Leaf, 0, len(b.leaves))
	for _, l := range b.leaves {
		leaves = append(leaves, l)
	}
	return Build(leaves)
}
