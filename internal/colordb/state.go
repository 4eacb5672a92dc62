package colordb

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/internal/kernel"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// forEachUnspent calls fn for every unspent colored outpoint of c in key
// order.
func (c *color) forEachUnspent(fn func(op types.Outpoint, qty uint64) error) error {
	return c.db.ForEach(prefixOut, func(key, value []byte) error {
		rec, err := decodeOutRecord(value)
		if err != nil {
			return err
		}
		if !rec.unspent() {
			return nil
		}
		op, err := types.OutpointFromBytes(key[len(prefixOut):])
		if err != nil {
			return err
		}
		return fn(op, rec.Quantity)
	})
}

// Outputs lists the unspent outpoints holding a color.
func (d *DB) Outputs(id types.ColorID) ([]kernel.ColoredOutput, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, err := d.color(id)
	if err != nil {
		return nil, err
	}
	var out []kernel.ColoredOutput
	err = c.forEachUnspent(func(op types.Outpoint, qty uint64) error {
		out = append(out, kernel.ColoredOutput{Outpoint: op, Color: id, Quantity: qty})
		return nil
	})
	return out, err
}

// Balance returns the total unspent quantity of a color.
func (d *DB) Balance(id types.ColorID) (uint64, error) {
	outs, err := d.Outputs(id)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, o := range outs {
		total += o.Quantity
	}
	return total, nil
}

// Get returns the colors an unspent outpoint holds.
func (d *DB) Get(op types.Outpoint) ([]kernel.ColoredOutput, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []kernel.ColoredOutput
	for _, id := range d.sortedIDs() {
		rec, err := d.colors[id].out(op)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.unspent() {
			out = append(out, kernel.ColoredOutput{Outpoint: op, Color: id, Quantity: rec.Quantity})
		}
	}
	return out, nil
}

// StateHash returns a digest of the database's colored state: each color's
// current definition and its unspent colored outpoints. Two databases that
// processed the same transactions under the same definitions agree on it.
func (d *DB) StateHash() (types.Hash, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf []byte
	for _, id := range d.sortedIDs() {
		c := d.colors[id]
		buf = serde.PutHash(buf, types.Hash(id))
		buf = serde.PutHash(buf, c.chain.Current().Hash())

		var outs []byte
		n := uint64(0)
		err := c.forEachUnspent(func(op types.Outpoint, qty uint64) error {
			outs = append(outs, op.Bytes()...)
			outs = serde.PutUint64(outs, qty)
			n++
			return nil
		})
		if err != nil {
			return types.Hash{}, fmt.Errorf("state hash %s: %w", id, err)
		}
		buf = serde.PutUint64(buf, n)
		buf = serde.PutHash(buf, crypto.Hash(outs))
	}
	return crypto.Hash(buf), nil
}
