// Package tx defines the base ledger transaction as seen by the color
// kernel, backed by the Bitcoin wire format.
package tx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// ErrMalformed is returned when raw bytes are not a valid wire transaction.
var ErrMalformed = errors.New("malformed transaction")

// SequenceFinal is the sequence value of an input that routes no color
// anywhere it is not explicitly told to.
const SequenceFinal uint32 = wire.MaxTxInSequenceNum

// Input spends a previous output. Sequence doubles as the color routing
// mask: bit j set sends the input's color to output j.
type Input struct {
	PrevOut         types.Outpoint `json:"prev_out"`
	Sequence        uint32         `json:"sequence"`
	SignatureScript []byte         `json:"signature_script,omitempty"`
}

// Output carries a raw 64-bit value and a locking script. Colored outputs
// hold an MSB-drop encoded quantity in Value.
type Output struct {
	Value    uint64 `json:"value"`
	PkScript []byte `json:"pk_script"`
}

// Transaction is a base ledger transaction.
type Transaction struct {
	Version  int32    `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint32   `json:"locktime"`
}

// Wire converts the transaction to its wire form. Values are carried
// bit-for-bit into the signed wire field.
func (tx *Transaction) Wire() *wire.MsgTx {
	msg := wire.NewMsgTx(tx.Version)
	for _, in := range tx.Inputs {
		op := in.PrevOut.Wire()
		txIn := wire.NewTxIn(&op, in.SignatureScript, nil)
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}
	for _, out := range tx.Outputs {
		msg.AddTxOut(wire.NewTxOut(int64(out.Value), out.PkScript))
	}
	msg.LockTime = tx.LockTime
	return msg
}

// FromWire converts a wire transaction. Witness data is dropped.
func FromWire(msg *wire.MsgTx) *Transaction {
	tx := &Transaction{
		Version:  msg.Version,
		Inputs:   make([]Input, len(msg.TxIn)),
		Outputs:  make([]Output, len(msg.TxOut)),
		LockTime: msg.LockTime,
	}
	for i, in := range msg.TxIn {
		tx.Inputs[i] = Input{
			PrevOut:         types.OutpointFromWire(in.PreviousOutPoint),
			Sequence:        in.Sequence,
			SignatureScript: in.SignatureScript,
		}
	}
	for i, out := range msg.TxOut {
		tx.Outputs[i] = Output{Value: uint64(out.Value), PkScript: out.PkScript}
	}
	return tx
}

// Hash returns the transaction id in internal byte order.
func (tx *Transaction) Hash() types.Hash {
	return types.Hash(tx.Wire().TxHash())
}

// Bytes returns the wire serialization without witness data.
func (tx *Transaction) Bytes() []byte {
	msg := tx.Wire()
	var buf bytes.Buffer
	buf.Grow(msg.SerializeSizeStripped())
	// Serializing into a bytes.Buffer cannot fail.
	_ = msg.SerializeNoWitness(&buf)
	return buf.Bytes()
}

// Decode parses a wire transaction.
func Decode(raw []byte) (*Transaction, error) {
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return FromWire(&msg), nil
}

// Outpoint returns the outpoint of output i.
func (tx *Transaction) Outpoint(i uint32) types.Outpoint {
	return types.Outpoint{TxID: tx.Hash(), Index: i}
}

// Spends reports the index of the input spending op, or -1.
func (tx *Transaction) Spends(op types.Outpoint) int {
	for i, in := range tx.Inputs {
		if in.PrevOut == op {
			return i
		}
	}
	return -1
}
