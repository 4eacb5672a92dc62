package merbinner

import (
	"fmt"

	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// NodeKind tags an entry of a pruned branch.
type NodeKind uint8

const (
	// NodeEmpty is an empty subtree.
	NodeEmpty NodeKind = iota
	// NodeInner is an expanded inner node; its left then right children
	// follow in preorder.
	NodeInner
	// NodeLeaf is a leaf given in full.
	NodeLeaf
	// NodePruned is a subtree known only by its digest.
	NodePruned
)

func (k NodeKind) String() string {
	switch k {
	case NodeEmpty:
		return "empty"
	case NodeInner:
		return "inner"
	case NodeLeaf:
		return "leaf"
	case NodePruned:
		return "pruned"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// BranchNode is one preorder entry of a pruned branch.
type BranchNode struct {
	Kind   NodeKind
	Digest types.Hash // NodePruned only
	Leaf   Leaf       // NodeLeaf only
}

// Branch is a pruned tree: enough of the structure to recompute the root,
// with the proven leaves in full.
type Branch struct {
	Nodes []BranchNode
}

// MaxBranchNodes bounds the node count accepted when decoding.
const MaxBranchNodes = 1 << 20

// Leaves returns the full leaves carried by the branch, in preorder.
func (b *Branch) Leaves() []Leaf {
	var out []Leaf
	for _, n := range b.Nodes {
		if n.Kind == NodeLeaf {
			out = append(out, n.Leaf.clone())
		}
	}
	return out
}

// Leaf returns the carried leaf for key. The result is only meaningful once
// the branch has been verified against a trusted root.
func (b *Branch) Leaf(key types.Hash) (Leaf, bool) {
	for _, n := range b.Nodes {
		if n.Kind == NodeLeaf && n.Leaf.Key == key {
			return n.Leaf.clone(), true
		}
	}
	return Leaf{}, false
}

// Root recomputes the root digest from the branch alone. It fails when the
// branch is not a well-formed pruned tree: truncated or trailing entries,
// leaves sitting on a path their key does not follow, inner nodes that
// should have collapsed, or nesting deeper than the key width.
func (b *Branch) Root() (types.Hash, error) {
	w := walker{nodes: b.Nodes}
	h, _, err := w.walk(0)
	if err != nil {
		return types.Hash{}, err
	}
	if w.pos != len(w.nodes) {
		return types.Hash{}, fmt.Errorf("%w: %d trailing nodes", ErrMalformedBranch, len(w.nodes)-w.pos)
	}
	return h, nil
}

// Verify reports whether the branch recomputes to root.
func Verify(b *Branch, root types.Hash) bool {
	if b == nil {
		return false
	}
	got, err := b.Root()
	return err == nil && got == root
}

type walker struct {
	nodes []BranchNode
	pos   int
	path  [MaxDepth]bool
}

func (w *walker) walk(depth int) (types.Hash, NodeKind, error) {
	if w.pos >= len(w.nodes) {
		return types.Hash{}, 0, fmt.Errorf("%w: truncated at depth %d", ErrMalformedBranch, depth)
	}
	n := w.nodes[w.pos]
	w.pos++

	switch n.Kind {
	case NodeEmpty:
		return emptyDigest, NodeEmpty, nil
	case NodePruned:
		return n.Digest, NodePruned, nil
	case NodeLeaf:
		if err := n.Leaf.check(); err != nil {
			return types.Hash{}, 0, fmt.Errorf("%w: %w", ErrMalformedBranch, err)
		}
		for i := 0; i < depth; i++ {
			if n.Leaf.Key.Bit(i) != w.path[i] {
				return types.Hash{}, 0, fmt.Errorf("%w: leaf %s off its key path at bit %d", ErrMalformedBranch, n.Leaf.Key, i)
			}
		}
		return n.Leaf.Digest(), NodeLeaf, nil
	case NodeInner:
		if depth >= MaxDepth {
			return types.Hash{}, 0, fmt.Errorf("%w: nesting exceeds %d", ErrMalformedBranch, MaxDepth)
		}
		w.path[depth] = true
		left, lk, err := w.walk(depth + 1)
		if err != nil {
			return types.Hash{}, 0, err
		}
		w.path[depth] = false
		right, rk, err := w.walk(depth + 1)
		if err != nil {
			return types.Hash{}, 0, err
		}
		if collapsible(lk, rk) {
			return types.Hash{}, 0, fmt.Errorf("%w: uncollapsed inner node at depth %d", ErrMalformedBranch, depth)
		}
		return innerDigest(left, right), NodeInner, nil
	default:
		return types.Hash{}, 0, fmt.Errorf("%w: unknown node kind %d", ErrMalformedBranch, n.Kind)
	}
}

// collapsible reports whether an inner node with these children holds at
// most one leaf, in which case the tree would have stored that leaf (or an
// empty node) in its place.
func collapsible(l, r NodeKind) bool {
	small := func(k NodeKind) bool { return k == NodeEmpty || k == NodeLeaf }
	return small(l) && small(r) && (l == NodeEmpty || r == NodeEmpty)
}

// Encode serializes the branch.
func (b *Branch) Encode() []byte {
	return b.AppendTo(nil)
}

// AppendTo appends the encoded branch to out.
func (b *Branch) AppendTo(out []byte) []byte {
	out = serde.PutUint64(out, uint64(len(b.Nodes)))
	for _, n := range b.Nodes {
		out = serde.PutByte(out, byte(n.Kind))
		switch n.Kind {
		case NodePruned:
			out = serde.PutHash(out, n.Digest)
		case NodeLeaf:
			out = serde.PutHash(out, n.Leaf.Key)
			out = serde.PutUint64(out, n.Leaf.Quantity)
			out = serde.PutSlice(out, n.Leaf.Metadata)
		}
	}
	return out
}

// DecodeBranch parses a branch written by Encode.
func DecodeBranch(data []byte) (*Branch, error) {
	r := serde.NewReader(data)
	b, err := ReadBranch(r)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode branch: %w", err)
	}
	return b, nil
}

// ReadBranch parses a branch from r, leaving any following data unread.
func ReadBranch(r *serde.Reader) (*Branch, error) {
	count := r.Count(MaxBranchNodes)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode branch: %w", err)
	}
	b := &Branch{Nodes: make([]BranchNode, 0, min(count, 1024))}
	for i := 0; i < count; i++ {
		n := BranchNode{Kind: NodeKind(r.Byte())}
		switch n.Kind {
		case NodeEmpty, NodeInner:
		case NodePruned:
			n.Digest = r.Hash()
		case NodeLeaf:
			n.Leaf.Key = r.Hash()
			n.Leaf.Quantity = r.Uint64()
			if md := r.Slice(); len(md) > 0 {
				n.Leaf.Metadata = md
			}
		default:
			if r.Err() == nil {
				return nil, fmt.Errorf("%w: unknown node kind %d", ErrMalformedBranch, n.Kind)
			}
		}
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("decode branch: %w", err)
		}
		b.Nodes = append(b.Nodes, n)
	}
	return b, nil
}
