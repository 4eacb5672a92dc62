// Package serde holds the length-checked binary helpers shared by the
// definition, branch and proof encoders. Integers are little-endian, as
// tchajed/marshal writes them, so they must not be used where byte order has
// to follow numeric order, such as database keys.
package serde

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// ErrShortBuffer is returned when a decoder runs out of input.
var ErrShortBuffer = errors.New("short buffer")

// MaxSliceLen bounds length prefixes read from untrusted input.
const MaxSliceLen = 1 << 26

// Reader consumes a byte slice. The first failure sticks; later reads
// return zero values and Err reports it.
type Reader struct {
	b   []byte
	err error
}

// NewReader returns a reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) fail(what string, need int) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: reading %s needs %d bytes, have %d", ErrShortBuffer, what, need, len(r.b))
	}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.b) }

// Uint64 reads an 8 byte integer.
func (r *Reader) Uint64() uint64 {
	if r.err != nil || len(r.b) < 8 {
		r.fail("uint64", 8)
		return 0
	}
	v, rest := marshal.ReadInt(r.b)
	r.b = rest
	return v
}

// Uint32 reads a 4 byte integer.
func (r *Reader) Uint32() uint32 {
	if r.err != nil || len(r.b) < 4 {
		r.fail("uint32", 4)
		return 0
	}
	v, rest := marshal.ReadInt32(r.b)
	r.b = rest
	return v
}

// Byte reads a single byte.
func (r *Reader) Byte() byte {
	b := r.Fixed(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a one byte boolean.
func (r *Reader) Bool() bool {
	if r.err != nil || len(r.b) < 1 {
		r.fail("bool", 1)
		return false
	}
	v, rest := marshal.ReadBool(r.b)
	r.b = rest
	return v
}

// Fixed reads exactly n bytes. The result is a copy.
func (r *Reader) Fixed(n int) []byte {
	if r.err != nil || len(r.b) < n {
		r.fail("bytes", n)
		return nil
	}
	v, rest := marshal.ReadBytesCopy(r.b, uint64(n))
	r.b = rest
	return v
}

// Hash reads a 32 byte hash.
func (r *Reader) Hash() types.Hash {
	var h types.Hash
	copy(h[:], r.Fixed(types.HashSize))
	return h
}

// Slice reads a length-prefixed byte slice.
func (r *Reader) Slice() []byte {
	n := r.Uint64()
	if r.err != nil {
		return nil
	}
	if n > MaxSliceLen {
		r.err = fmt.Errorf("slice length %d exceeds limit", n)
		return nil
	}
	return r.Fixed(int(n))
}

// Count reads a length prefix for a list and bounds it by limit.
func (r *Reader) Count(limit uint64) int {
	n := r.Uint64()
	if r.err == nil && n > limit {
		r.err = fmt.Errorf("count %d exceeds limit %d", n, limit)
		return 0
	}
	return int(n)
}

// Done fails unless all input was consumed.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.b) != 0 {
		return fmt.Errorf("%d trailing bytes", len(r.b))
	}
	return nil
}

// PutUint64 appends an 8 byte integer.
func PutUint64(b []byte, v uint64) []byte { return marshal.WriteInt(b, v) }

// PutUint32 appends a 4 byte integer.
func PutUint32(b []byte, v uint32) []byte { return marshal.WriteInt32(b, v) }

// PutByte appends a single byte.
func PutByte(b []byte, v byte) []byte { return marshal.WriteBytes(b, []byte{v}) }

// PutBool appends a one byte boolean.
func PutBool(b []byte, v bool) []byte { return marshal.WriteBool(b, v) }

// PutHash appends a 32 byte hash.
func PutHash(b []byte, h types.Hash) []byte { return marshal.WriteBytes(b, h[:]) }

// PutSlice appends a length-prefixed byte slice.
func PutSlice(b []byte, data []byte) []byte {
	b = marshal.WriteInt(b, uint64(len(data)))
	return marshal.WriteBytes(b, data)
}
