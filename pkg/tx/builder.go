package tx

import (
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: 2},
	}
}

// AddInput adds an input referencing a previous output with the given
// sequence (color routing mask).
func (b *Builder) AddInput(prevOut types.Outpoint, sequence uint32) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut, Sequence: sequence})
	return b
}

// AddOutput adds an output with a raw value and script.
func (b *Builder) AddOutput(value uint64, pkScript []byte) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Value: value, PkScript: pkScript})
	return b
}

// SetLockTime sets the transaction lock time.
func (b *Builder) SetLockTime(lockTime uint32) *Builder {
	b.tx.LockTime = lockTime
	return b
}

// Build returns the constructed transaction.
// Does NOT validate; call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
