package colordb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/golang/snappy"

	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/internal/proof"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Prove returns a proof for the color held by target, built by walking back
// from target to the genesis points its color came from. Proofs are cached
// compressed until the transactions behind them are removed or the color's
// definition changes.
func (d *DB) Prove(ctx context.Context, id types.ColorID, target types.Outpoint) (*proof.Proof, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, err := d.color(id)
	if err != nil {
		return nil, err
	}
	if p, ok := c.cachedProof(target); ok {
		return p, nil
	}

	rec, err := c.out(target)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotColored, target)
	}
	if err != nil {
		return nil, err
	}

	var (
		genesis []types.Outpoint
		txs     = make(map[types.Hash]*txRecord)
		stack   = []types.Outpoint{target}
		seen    = map[types.Outpoint]bool{target: true}
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r := rec
		if op != target {
			if r, err = c.out(op); err != nil {
				return nil, fmt.Errorf("prove %s: record %s: %w", target, op, err)
			}
		}
		if r.Producer.IsZero() {
			genesis = append(genesis, op)
			continue
		}
		if _, ok := txs[r.Producer]; ok {
			continue
		}
		data, err := c.db.Get(hashKey(prefixTx, r.Producer))
		if err != nil {
			return nil, fmt.Errorf("prove %s: tx %s: %w", target, r.Producer, err)
		}
		xr, err := decodeTxRecord(data)
		if err != nil {
			return nil, err
		}
		txs[r.Producer] = xr
		for _, s := range xr.Spent {
			if !seen[s.Outpoint] {
				seen[s.Outpoint] = true
				stack = append(stack, s.Outpoint)
			}
		}
	}

	slices.SortFunc(genesis, types.Outpoint.Compare)
	keys := make([]types.Hash, len(genesis))
	for i, g := range genesis {
		keys[i] = crypto.ColorKey(g)
	}
	def, tree := c.anchor(keys)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDefinition, target)
	}
	branch, err := tree.Prove(keys...)
	if err != nil {
		return nil, err
	}

	recs := make([]*txRecord, 0, len(txs))
	for _, xr := range txs {
		recs = append(recs, xr)
	}
	slices.SortFunc(recs, func(a, b *txRecord) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	p := &proof.Proof{
		ColorID: id,
		Version: def.Version,
		Genesis: genesis[0],
		Branch:  branch,
		Txs:     make([]*tx.Transaction, len(recs)),
		Target:  target,
	}
	for i, xr := range recs {
		if p.Txs[i], err = tx.Decode(xr.Raw); err != nil {
			return nil, err
		}
	}

	q, err := p.Verify(ctx, def.Root)
	if err != nil {
		return nil, fmt.Errorf("prove %s: built proof does not verify: %w", target, err)
	}
	if q != rec.Quantity {
		return nil, fmt.Errorf("prove %s: proof shows %d, recorded %d", target, q, rec.Quantity)
	}

	if err := c.db.Put(outpointKey(prefixProof, target), snappy.Encode(nil, p.Encode())); err != nil {
		log.ColorDB.Warn().Err(err).Str("target", target.String()).Msg("Failed to cache proof")
	}
	return p, nil
}

func (c *color) cachedProof(target types.Outpoint) (*proof.Proof, bool) {
	data, err := c.db.Get(outpointKey(prefixProof, target))
	if err != nil {
		return nil, false
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, false
	}
	p, err := proof.Decode(raw)
	if err != nil {
		return nil, false
	}
	return p, true
}

// anchor picks the newest definition version whose tree commits to every
// key.
func (c *color) anchor(keys []types.Hash) (*colordef.Definition, *merbinner.Tree) {
	cur := c.chain.Current().Version
	for v := int64(cur); v >= 0; v-- {
		def, ok := c.chain.At(uint32(v))
		if !ok {
			break
		}
		tree := c.trees[def.Version]
		all := true
		for _, k := range keys {
			if _, ok := tree.Get(k); !ok {
				all = false
				break
			}
		}
		if all {
			return def, tree
		}
	}
	return nil, nil
}
