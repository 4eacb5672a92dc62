// Package msbdrop implements the MSB-drop value codec, which hides a color
// quantity inside an ordinary 64-bit output value.
//
// The least significant bit of a value is the colored flag. When it is set,
// the most significant set bit is a marker with no quantity meaning; the bits
// between the marker and the flag hold the quantity.
package msbdrop

import (
	"errors"
	"fmt"
	"math/bits"
)

// MaxQuantity is the exclusive upper bound on encodable quantities.
const MaxQuantity uint64 = 1 << 62

var (
	// ErrQuantityRange is returned when a quantity is too large to encode.
	ErrQuantityRange = errors.New("quantity out of range")
	// ErrBelowMinimum is returned when no marker position lifts the value to
	// the requested minimum.
	ErrBelowMinimum = errors.New("cannot pad value to minimum")
)

// Value is the result of decoding an output value.
type Value struct {
	colored bool
	n       uint64
}

// Colored returns a decoded value carrying quantity q.
func Colored(q uint64) Value { return Value{colored: true, n: q} }

// Uncolored returns a decoded plain value.
func Uncolored(v uint64) Value { return Value{n: v} }

// IsColored reports whether the value carries a color quantity.
func (v Value) IsColored() bool { return v.colored }

// Quantity returns the color quantity, or 0 for an uncolored value.
func (v Value) Quantity() uint64 {
	if !v.colored {
		return 0
	}
	return v.n
}

// Plain returns the ordinary value of an uncolored output, or 0 for a
// colored one.
func (v Value) Plain() uint64 {
	if v.colored {
		return 0
	}
	return v.n
}

func (v Value) String() string {
	if v.colored {
		return fmt.Sprintf("colored(%d)", v.n)
	}
	return fmt.Sprintf("uncolored(%d)", v.n)
}

// Decode interprets a raw output value. Every value decodes.
func Decode(v uint64) Value {
	if v&1 == 0 {
		return Uncolored(v)
	}
	marker := uint64(1) << (bits.Len64(v) - 1)
	return Colored((v &^ marker) >> 1)
}

// Encode returns the smallest colored value that decodes to q.
func Encode(q uint64) (uint64, error) {
	if q >= MaxQuantity {
		return 0, fmt.Errorf("%w: %d", ErrQuantityRange, q)
	}
	body := q<<1 | 1
	return uint64(1)<<bits.Len64(body) | body, nil
}

// EncodeAbove encodes q, raising the marker bit until the value is at least
// floor. Used to keep colored outputs above the network's dust threshold.
func EncodeAbove(q, floor uint64) (uint64, error) {
	v, err := Encode(q)
	if err != nil {
		return 0, err
	}
	body := q<<1 | 1
	for pos := bits.Len64(body); v < floor; pos++ {
		if pos >= 63 {
			return 0, fmt.Errorf("%w: quantity %d, minimum %d", ErrBelowMinimum, q, floor)
		}
		v = uint64(1)<<(pos+1) | body
	}
	return v, nil
}
