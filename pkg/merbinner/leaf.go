// Package merbinner implements the commitment tree ("merbinner tree"): a
// binary trie keyed by the bits of 256-bit color keys whose root digest
// commits to a set of genesis leaves, and pruned branches that prove the
// presence of selected leaves against that root.
package merbinner

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// MaxDepth is the deepest an inner node can sit: one level per key bit.
const MaxDepth = types.HashSize * 8

// MaxQuantity is the exclusive bound on leaf quantities: a genesis point can
// only hold what an output value can encode.
const MaxQuantity = msbdrop.MaxQuantity

// Domain separation tags appended to hashed node contents.
const (
	tagEmpty byte = 0x00
	tagInner byte = 0x01
	tagLeaf  byte = 0x02
)

var (
	ErrDuplicateKey    = errors.New("duplicate leaf key")
	ErrQuantityRange   = errors.New("leaf quantity out of range")
	ErrKeyNotFound     = errors.New("key not in tree")
	ErrMalformedBranch = errors.New("malformed branch")
)

var emptyDigest = crypto.Hash([]byte{tagEmpty})

// EmptyDigest returns the digest of an empty subtree, which is also the root
// of a tree with no leaves.
func EmptyDigest() types.Hash {
	return emptyDigest
}

// Leaf is a genesis declaration: color key, quantity and optional metadata.
type Leaf struct {
	Key      types.Hash
	Quantity uint64
	Metadata []byte
}

// NewLeaf builds the leaf declaring op as a genesis point holding qty.
func NewLeaf(op types.Outpoint, qty uint64, metadata []byte) Leaf {
	return Leaf{Key: crypto.ColorKey(op), Quantity: qty, Metadata: metadata}
}

// Value returns the committed leaf contents: quantity (big-endian) then
// metadata.
func (l Leaf) Value() []byte {
	b := make([]byte, 8, 8+len(l.Metadata))
	binary.BigEndian.PutUint64(b, l.Quantity)
	return append(b, l.Metadata...)
}

// Digest returns H(H(value) || key || 0x02).
func (l Leaf) Digest() types.Hash {
	v := crypto.Hash(l.Value())
	return crypto.HashParts(v[:], l.Key[:], []byte{tagLeaf})
}

func (l Leaf) clone() Leaf {
	if l.Metadata != nil {
		l.Metadata = append([]byte(nil), l.Metadata...)
	}
	return l
}

func (l Leaf) check() error {
	if l.Quantity >= MaxQuantity {
		return fmt.Errorf("%w: %d for key %s", ErrQuantityRange, l.Quantity, l.Key)
	}
	return nil
}

func innerDigest(left, right types.Hash) types.Hash {
	return crypto.HashParts(left[:], right[:], []byte{tagInner})
}
