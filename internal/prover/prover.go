// Package prover builds color proofs by following a genesis point's color
// forward through a ledger source.
package prover

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/kernel"
	"github.com/Klingon-tech/smartcolors/internal/ledger"
	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/internal/proof"
	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var (
	// ErrNotGenesis is returned when the start point is not in the tree.
	ErrNotGenesis = errors.New("outpoint is not a genesis point")
	// ErrNotReached is returned when the color never reaches the target.
	ErrNotReached = errors.New("color does not reach target")
	// ErrTooLong is returned when the walk exceeds the proof size limit.
	ErrTooLong = errors.New("color chain too long")
	// ErrTreeMismatch is returned when the tree is not the definition's.
	ErrTreeMismatch = errors.New("tree does not match definition")
)

// Prover builds proofs from a ledger source.
type Prover struct {
	src    ledger.Source
	maxTxs int
}

// New creates a prover reading from src.
func New(src ledger.Source) *Prover {
	return &Prover{src: src, maxTxs: config.MaxProofTxs}
}

// singleGenesis resolves only the traced genesis point, matching what a
// one-leaf branch lets a verifier see. The ledger lets only one transaction
// spend it.
type singleGenesis struct {
	op  types.Outpoint
	qty uint64
}

func (g *singleGenesis) GenesisQuantity(op types.Outpoint) (uint64, bool) {
	if op != g.op {
		return 0, false
	}
	return g.qty, true
}

// walk is the state of one forward trace. A transaction is applied again
// each time another of its inputs turns colored; an output holds either
// nothing or its full claim, and more colored inputs never take color away,
// so earlier results only grow.
type walk struct {
	genesis  *singleGenesis
	held     kernel.Quantities
	producer map[types.Outpoint]types.Hash   // colored outpoint -> creating tx
	inputs   map[types.Hash][]types.Outpoint // tx -> colored outpoints it spent
	order    map[types.Hash]int
	txs      []*tx.Transaction
}

// Prove traces the color of genesis forward until target is colored and
// returns a proof holding only the transactions target depends on. Color
// joined in from other lineages is not followed.
func (p *Prover) Prove(ctx context.Context, def *colordef.Definition, tree *merbinner.Tree, genesis, target types.Outpoint) (*proof.Proof, error) {
	if tree.Root() != def.Root {
		return nil, fmt.Errorf("%w: %s", ErrTreeMismatch, def)
	}
	leaf, ok := tree.Get(crypto.ColorKey(genesis))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotGenesis, genesis)
	}
	branch, err := tree.Prove(leaf.Key)
	if err != nil {
		return nil, err
	}
	pf := &proof.Proof{
		ColorID: def.ColorID,
		Version: def.Version,
		Genesis: genesis,
		Branch:  branch,
		Target:  target,
	}
	if target == genesis {
		return pf, nil
	}

	w := &walk{
		genesis:  &singleGenesis{op: genesis, qty: leaf.Quantity},
		held:     make(kernel.Quantities),
		producer: make(map[types.Outpoint]types.Hash),
		inputs:   make(map[types.Hash][]types.Outpoint),
		order:    make(map[types.Hash]int),
	}
	queue := []types.Outpoint{genesis}
	reached := false
	for len(queue) > 0 && !reached {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op := queue[0]
		queue = queue[1:]

		t, err := p.src.Spender(ctx, op)
		if errors.Is(err, ledger.ErrUnspent) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("trace %s: %w", op, err)
		}
		txid := t.Hash()
		if _, seen := w.order[txid]; !seen && len(w.txs) >= p.maxTxs {
			return nil, fmt.Errorf("%w: over %d transactions", ErrTooLong, p.maxTxs)
		}

		colored, err := w.apply(txid, t)
		if err != nil {
			return nil, err
		}
		for _, c := range colored {
			if c == target {
				reached = true
			}
			queue = append(queue, c)
		}
	}
	if !reached {
		return nil, fmt.Errorf("%w: %s from %s", ErrNotReached, target, genesis)
	}

	pf.Txs = w.ancestry(target)
	log.Proof.Debug().
		Str("color", def.ColorID.String()).
		Str("target", target.String()).
		Int("walked", len(w.txs)).
		Int("kept", len(pf.Txs)).
		Msg("Proof built")
	return pf, nil
}

// apply runs t over the color traced so far and returns the outputs that
// newly turned colored.
func (w *walk) apply(txid types.Hash, t *tx.Transaction) ([]types.Outpoint, error) {
	res, err := kernel.ApplyTx(t, w.genesis, w.held)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", txid, err)
	}
	var spent []types.Outpoint
	for _, in := range t.Inputs {
		if in.PrevOut == w.genesis.op || w.held[in.PrevOut] > 0 {
			spent = append(spent, in.PrevOut)
		}
	}
	w.inputs[txid] = spent
	if _, seen := w.order[txid]; !seen {
		w.order[txid] = len(w.txs)
		w.txs = append(w.txs, t)
	}

	var out []types.Outpoint
	for _, c := range res.Colored(txid, types.ColorID{}) {
		if _, ok := w.producer[c.Outpoint]; ok {
			continue
		}
		w.held[c.Outpoint] = c.Quantity
		w.producer[c.Outpoint] = txid
		out = append(out, c.Outpoint)
	}
	return out, nil
}

// ancestry returns the walked transactions target's color depends on, each
// after the transactions it spends from.
func (w *walk) ancestry(target types.Outpoint) []*tx.Transaction {
	var out []*tx.Transaction
	done := make(map[types.Hash]bool)
	var visit func(op types.Outpoint)
	visit = func(op types.Outpoint) {
		txid, ok := w.producer[op]
		if !ok || done[txid] {
			return
		}
		done[txid] = true
		for _, in := range w.inputs[txid] {
			visit(in)
		}
		out = append(out, w.txs[w.order[txid]])
	}
	visit(target)
	return out
}
