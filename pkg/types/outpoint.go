package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// OutpointSize is the serialized size of an outpoint: txid followed by a
// little-endian output index, as on the base ledger.
const OutpointSize = HashSize + 4

// ErrBadOutpoint is returned when an outpoint string cannot be parsed.
var ErrBadOutpoint = errors.New("malformed outpoint")

// Outpoint references a specific output in a transaction.
// TxID is kept in internal byte order; String renders it the way the base
// ledger displays transaction ids (byte-reversed).
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" with the txid in display order.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", chainhash.Hash(o.TxID).String(), o.Index)
}

// Bytes returns the 36 byte serialization of the outpoint.
func (o Outpoint) Bytes() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.TxID[:])
	binary.LittleEndian.PutUint32(b[HashSize:], o.Index)
	return b
}

// Compare orders outpoints by txid bytes, then by index.
func (o Outpoint) Compare(other Outpoint) int {
	if c := bytes.Compare(o.TxID[:], other.TxID[:]); c != 0 {
		return c
	}
	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}
	return 0
}

// Wire converts the outpoint to its base ledger wire representation.
func (o Outpoint) Wire() wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash(o.TxID), Index: o.Index}
}

// OutpointFromWire converts a base ledger outpoint.
func OutpointFromWire(op wire.OutPoint) Outpoint {
	return Outpoint{TxID: Hash(op.Hash), Index: op.Index}
}

// OutpointFromBytes parses the 36 byte form produced by Bytes.
func OutpointFromBytes(b []byte) (Outpoint, error) {
	if len(b) != OutpointSize {
		return Outpoint{}, fmt.Errorf("%w: want %d bytes, got %d", ErrBadOutpoint, OutpointSize, len(b))
	}
	var o Outpoint
	copy(o.TxID[:], b[:HashSize])
	o.Index = binary.LittleEndian.Uint32(b[HashSize:])
	return o, nil
}

// ParseOutpoint parses "txid:index" with the txid in display order.
func ParseOutpoint(s string) (Outpoint, error) {
	txid, idx, ok := strings.Cut(s, ":")
	if !ok {
		return Outpoint{}, fmt.Errorf("%w: %q missing ':'", ErrBadOutpoint, s)
	}
	h, err := chainhash.NewHashFromStr(txid)
	if err != nil || len(txid) != 2*HashSize {
		return Outpoint{}, fmt.Errorf("%w: bad txid %q", ErrBadOutpoint, txid)
	}
	n, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: bad index %q", ErrBadOutpoint, idx)
	}
	return Outpoint{TxID: Hash(*h), Index: uint32(n)}, nil
}
