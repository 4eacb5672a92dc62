// Package crypto provides the hashing primitives used by color commitments.
package crypto

import (
	"github.com/Klingon-tech/smartcolors/pkg/types"
	"github.com/btcsuite/btcd/wire"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the concatenation of parts without building the
// concatenated buffer.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// HashConcat hashes the concatenation of two hashes.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// ColorKey derives the commitment-tree key of an outpoint: BLAKE3 over the
// outpoint in base ledger wire encoding.
func ColorKey(op types.Outpoint) types.Hash {
	h := blake3.New()
	w := op.Wire()
	// Writes to a hasher cannot fail.
	_ = wire.WriteOutPoint(h, 0, 0, &w)
	var out types.Hash
	h.Sum(out[:0])
	return out
}
