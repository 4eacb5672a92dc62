// Package proof implements color proofs: a pruned commitment branch that
// anchors one genesis point, plus the ordered transactions that carry its
// color to a target outpoint. Verification replays the kernel over the
// chain and trusts nothing the prover says.
package proof

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/kernel"
	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var (
	// ErrBadCommitment means the branch does not recompute to the expected
	// root, or does not carry the genesis leaf.
	ErrBadCommitment = errors.New("proof does not match commitment")
	// ErrDiscontinued means the chain lost the color before the target.
	ErrDiscontinued = errors.New("color chain discontinued")
	// ErrMalformed covers structurally invalid proofs.
	ErrMalformed = errors.New("malformed proof")
	// ErrWrongDefinition means the proof names another color or version.
	ErrWrongDefinition = errors.New("proof is for another definition")
	// ErrUnconfirmed means the ledger does not confirm a chain transaction
	// or reports a conflicting spend.
	ErrUnconfirmed = errors.New("proof transaction not confirmed")
)

// Proof establishes the color quantity held by Target.
type Proof struct {
	ColorID types.ColorID
	Version uint32
	Genesis types.Outpoint
	Branch  *merbinner.Branch
	Txs     []*tx.Transaction
	Target  types.Outpoint
}

// chainState tracks the colored outpoints produced while replaying. A
// genesis point feeds the kernel at most once.
type chainState struct {
	genesis kernel.Genesis
	held    kernel.Quantities
	spent   map[types.Outpoint]struct{}
}

func (s *chainState) GenesisQuantity(op types.Outpoint) (uint64, bool) {
	if _, ok := s.spent[op]; ok {
		return 0, false
	}
	return s.genesis.GenesisQuantity(op)
}

func (s *chainState) Quantity(op types.Outpoint) uint64 {
	return s.held[op]
}

// colored reports whether op currently carries color in the replay.
func (s *chainState) colored(op types.Outpoint) bool {
	if s.held[op] > 0 {
		return true
	}
	q, ok := s.GenesisQuantity(op)
	return ok && q > 0
}

// Verify checks the proof against the root of the definition version it
// names and returns the quantity held by the target.
func (p *Proof) Verify(ctx context.Context, root types.Hash) (uint64, error) {
	if p.Branch == nil {
		return 0, fmt.Errorf("%w: missing branch", ErrMalformed)
	}
	if !merbinner.Verify(p.Branch, root) {
		return 0, fmt.Errorf("%w: branch does not recompute to %s", ErrBadCommitment, root)
	}
	genesis := kernel.BranchGenesis(p.Branch)
	seed, ok := genesis.GenesisQuantity(p.Genesis)
	if !ok {
		return 0, fmt.Errorf("%w: genesis %s not in branch", ErrBadCommitment, p.Genesis)
	}

	st := &chainState{
		genesis: genesis,
		held:    make(kernel.Quantities),
		spent:   make(map[types.Outpoint]struct{}),
	}
	if len(p.Txs) == 0 {
		if p.Target != p.Genesis || seed == 0 {
			return 0, fmt.Errorf("%w: no transactions lead to %s", ErrDiscontinued, p.Target)
		}
		return seed, nil
	}

	for i, t := range p.Txs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := st.apply(i, t); err != nil {
			return 0, err
		}
	}

	q := st.held[p.Target]
	if q == 0 {
		return 0, fmt.Errorf("%w: target %s holds no color", ErrDiscontinued, p.Target)
	}
	log.Proof.Debug().
		Str("color", p.ColorID.String()).
		Str("target", p.Target.String()).
		Uint64("quantity", q).
		Int("txs", len(p.Txs)).
		Msg("Proof verified")
	return q, nil
}

func (s *chainState) apply(i int, t *tx.Transaction) error {
	if t == nil {
		return fmt.Errorf("%w: tx %d is nil", ErrMalformed, i)
	}
	linked := false
	for _, in := range t.Inputs {
		if s.colored(in.PrevOut) {
			linked = true
			break
		}
	}
	if !linked {
		return fmt.Errorf("%w: tx %d (%s) spends no colored outpoint", ErrDiscontinued, i, t.Hash())
	}

	res, err := kernel.ApplyTx(t, s, s)
	if err != nil {
		return fmt.Errorf("%w: tx %d: %w", ErrMalformed, i, err)
	}
	for _, in := range t.Inputs {
		delete(s.held, in.PrevOut)
		s.spent[in.PrevOut] = struct{}{}
	}
	if res.Out() == 0 {
		return fmt.Errorf("%w: tx %d (%s) destroyed %d", ErrDiscontinued, i, t.Hash(), res.Destroyed)
	}
	for _, c := range res.Colored(t.Hash(), types.ColorID{}) {
		s.held[c.Outpoint] = c.Quantity
	}
	return nil
}

// VerifyDefinition verifies the proof against a published definition,
// which must be the color and version the proof names.
func (p *Proof) VerifyDefinition(ctx context.Context, def *colordef.Definition) (uint64, error) {
	if def.ColorID != p.ColorID || def.Version != p.Version {
		return 0, fmt.Errorf("%w: proof is for %s@v%d, have %s", ErrWrongDefinition, p.ColorID, p.Version, def)
	}
	return p.Verify(ctx, def.Root)
}

// Ledger is the part of a ledger data source that confirmation checks need.
type Ledger interface {
	// Confirmed reports whether txid is confirmed.
	Confirmed(ctx context.Context, txid types.Hash) (bool, error)
	// SpenderID returns the id of the confirmed transaction spending op,
	// or false if op is unspent.
	SpenderID(ctx context.Context, op types.Outpoint) (types.Hash, bool, error)
}

// VerifyConfirmed verifies the proof, then asks the ledger that every
// chain transaction is confirmed and that each colored link is spent by the
// transaction the proof claims.
func (p *Proof) VerifyConfirmed(ctx context.Context, def *colordef.Definition, src Ledger) (uint64, error) {
	q, err := p.VerifyDefinition(ctx, def)
	if err != nil {
		return 0, err
	}

	links := map[types.Outpoint]struct{}{p.Genesis: {}}
	for i, t := range p.Txs {
		txid := t.Hash()
		ok, err := src.Confirmed(ctx, txid)
		if err != nil {
			return 0, fmt.Errorf("check tx %d: %w", i, err)
		}
		if !ok {
			return 0, fmt.Errorf("%w: tx %d (%s)", ErrUnconfirmed, i, txid)
		}
		for _, in := range t.Inputs {
			if _, ok := links[in.PrevOut]; !ok {
				continue
			}
			spender, spent, err := src.SpenderID(ctx, in.PrevOut)
			if err != nil {
				return 0, fmt.Errorf("check spend of %s: %w", in.PrevOut, err)
			}
			if !spent || spender != txid {
				return 0, fmt.Errorf("%w: %s spent by %s, proof claims %s", ErrUnconfirmed, in.PrevOut, spender, txid)
			}
		}
		for j := range t.Outputs {
			links[types.Outpoint{TxID: txid, Index: uint32(j)}] = struct{}{}
		}
	}
	return q, nil
}
