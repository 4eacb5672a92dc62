package kernel

import (
	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// InputQuantities provides the color already held by spent outpoints.
type InputQuantities interface {
	// Quantity returns the color held by op, or 0 if none.
	Quantity(op types.Outpoint) uint64
}

// Genesis resolves outpoints declared as genesis points by the
// authoritative commitment tree.
type Genesis interface {
	GenesisQuantity(op types.Outpoint) (uint64, bool)
}

// Quantities is a map-backed InputQuantities.
type Quantities map[types.Outpoint]uint64

// Quantity implements InputQuantities.
func (q Quantities) Quantity(op types.Outpoint) uint64 {
	return q[op]
}

// leafSource is satisfied by both *merbinner.Tree and *merbinner.Branch.
type leafSource interface {
	Get(key types.Hash) (merbinner.Leaf, bool)
}

type leafGenesis struct {
	src leafSource
}

func (g leafGenesis) GenesisQuantity(op types.Outpoint) (uint64, bool) {
	l, ok := g.src.Get(crypto.ColorKey(op))
	if !ok {
		return 0, false
	}
	return l.Quantity, true
}

// TreeGenesis resolves genesis points from a full commitment tree.
func TreeGenesis(t *merbinner.Tree) Genesis {
	return leafGenesis{src: t}
}

// BranchGenesis resolves genesis points from the leaves carried by a pruned
// branch. The branch must already be verified against a trusted root.
func BranchGenesis(b *merbinner.Branch) Genesis {
	return leafGenesis{src: branchLeaves{b}}
}

type branchLeaves struct{ b *merbinner.Branch }

func (bl branchLeaves) Get(key types.Hash) (merbinner.Leaf, bool) {
	return bl.b.Leaf(key)
}

// NoGenesis injects nothing.
var NoGenesis Genesis = noGenesis{}

type noGenesis struct{}

func (noGenesis) GenesisQuantity(types.Outpoint) (uint64, bool) { return 0, false }

// ApplyTx runs the transition over a decoded transaction. Inputs spending a
// genesis point take the leaf quantity; all others take what prior reports.
func ApplyTx(transaction *tx.Transaction, genesis Genesis, prior InputQuantities) (*Result, error) {
	inputs := make([]Input, len(transaction.Inputs))
	for i, in := range transaction.Inputs {
		q, ok := genesis.GenesisQuantity(in.PrevOut)
		if !ok {
			q = prior.Quantity(in.PrevOut)
		}
		inputs[i] = Input{Quantity: q, Sequence: in.Sequence}
	}
	outputs := make([]msbdrop.Value, len(transaction.Outputs))
	for j, out := range transaction.Outputs {
		outputs[j] = msbdrop.Decode(out.Value)
	}
	return Apply(inputs, outputs)
}
