package colordb

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/internal/kernel"
	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// txn stages writes to the color database in a batch and keeps them
// readable until the batch commits, so later transactions of a block see
// the outputs earlier ones colored. Keys are relative to the database's
// store.
type txn struct {
	d      *DB
	b      storage.Batch
	staged map[string][]byte // nil value: deleted
	seq    uint64
}

func (d *DB) begin(b storage.Batch) *txn {
	return &txn{d: d, b: b, staged: make(map[string][]byte), seq: d.seq}
}

func (x *txn) get(key []byte) ([]byte, error) {
	if v, ok := x.staged[string(key)]; ok {
		if v == nil {
			return nil, storage.ErrNotFound
		}
		return v, nil
	}
	return x.d.store.Get(key)
}

func (x *txn) has(key []byte) (bool, error) {
	_, err := x.get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (x *txn) put(key, value []byte) error {
	x.staged[string(key)] = append([]byte{}, value...)
	return x.b.Put(key, value)
}

func (x *txn) delete(key []byte) error {
	x.staged[string(key)] = nil
	return x.b.Delete(key)
}

func (x *txn) out(c *color, op types.Outpoint) (*outRecord, error) {
	data, err := x.get(c.key(outpointKey(prefixOut, op)))
	if err != nil {
		return nil, err
	}
	return decodeOutRecord(data)
}

// AddTx applies the kernel to t for every color it spends and records the
// outputs it colors. Transactions must be added in ledger order. Adding a
// transaction twice is a no-op.
func (d *DB) AddTx(t *tx.Transaction) ([]kernel.ColoredOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	x := d.begin(storage.NewBatch(d.store))
	colored, err := d.addTx(x, t)
	if err != nil {
		return nil, err
	}
	if x.seq == d.seq {
		return nil, nil
	}
	if err := x.b.Commit(); err != nil {
		return nil, fmt.Errorf("addtx %s: %w", t.Hash(), err)
	}
	d.seq = x.seq
	return colored, nil
}

func (d *DB) addTx(x *txn, t *tx.Transaction) ([]kernel.ColoredOutput, error) {
	txid := t.Hash()
	seq := x.seq + 1
	touched := false
	var colored []kernel.ColoredOutput

	for _, id := range d.sortedIDs() {
		c := d.colors[id]
		if has, err := x.has(c.key(hashKey(prefixTx, txid))); err != nil {
			return nil, err
		} else if has {
			continue
		}

		held := make(kernel.Quantities)
		var spent []spentInput
		recs := make(map[types.Outpoint]*outRecord)
		for _, in := range t.Inputs {
			rec, err := x.out(c, in.PrevOut)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("addtx %s: %w", txid, err)
			}
			if !rec.unspent() || rec.Quantity == 0 {
				continue
			}
			if _, dup := recs[in.PrevOut]; dup {
				continue
			}
			held[in.PrevOut] = rec.Quantity
			recs[in.PrevOut] = rec
			spent = append(spent, spentInput{Outpoint: in.PrevOut, Quantity: rec.Quantity})
		}
		if len(spent) == 0 {
			continue
		}

		res, err := kernel.ApplyTx(t, kernel.NoGenesis, held)
		if err != nil {
			return nil, fmt.Errorf("addtx %s color %s: %w", txid, id, err)
		}

		for op, rec := range recs {
			rec.Spender = txid
			if err := x.put(c.key(outpointKey(prefixOut, op)), rec.encode()); err != nil {
				return nil, err
			}
		}
		xr := &txRecord{Seq: seq, Raw: t.Bytes(), Spent: spent}
		for _, out := range res.Colored(txid, id) {
			rec := outRecord{Quantity: out.Quantity, Producer: txid}
			if err := x.put(c.key(outpointKey(prefixOut, out.Outpoint)), rec.encode()); err != nil {
				return nil, err
			}
			xr.Produced = append(xr.Produced, out.Outpoint.Index)
			colored = append(colored, out)
		}
		if err := x.put(c.key(hashKey(prefixTx, txid)), xr.encode()); err != nil {
			return nil, err
		}
		touched = true

		ev := log.ColorDB.Debug().
			Str("color", id.String()).
			Str("tx", txid.String()).
			Uint64("in", res.In)
		if res.Destroyed > 0 {
			ev = ev.Uint64("destroyed", res.Destroyed)
		}
		ev.Int("outputs", len(xr.Produced)).Msg("Color moved")
	}

	if !touched {
		return nil, nil
	}
	if err := x.put(keySeq, serde.PutUint64(nil, seq)); err != nil {
		return nil, err
	}
	x.seq = seq
	return colored, nil
}

// RemoveTx undoes AddTx for t. Transactions must be removed in reverse
// ledger order.
func (d *DB) RemoveTx(t *tx.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	x := d.begin(storage.NewBatch(d.store))
	touched, err := d.removeTx(x, t)
	if err != nil || !touched {
		return err
	}
	return x.b.Commit()
}

func (d *DB) removeTx(x *txn, t *tx.Transaction) (bool, error) {
	txid := t.Hash()
	touched := false
	for _, id := range d.sortedIDs() {
		c := d.colors[id]
		data, err := x.get(c.key(hashKey(prefixTx, txid)))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		xr, err := decodeTxRecord(data)
		if err != nil {
			return false, err
		}

		for _, j := range xr.Produced {
			op := types.Outpoint{TxID: txid, Index: j}
			if err := x.delete(c.key(outpointKey(prefixOut, op))); err != nil {
				return false, err
			}
			if err := x.delete(c.key(outpointKey(prefixProof, op))); err != nil {
				return false, err
			}
		}
		for _, s := range xr.Spent {
			rec, err := x.out(c, s.Outpoint)
			if err != nil {
				return false, fmt.Errorf("removetx %s: input %s: %w", txid, s.Outpoint, err)
			}
			rec.Spender = types.Hash{}
			if err := x.put(c.key(outpointKey(prefixOut, s.Outpoint)), rec.encode()); err != nil {
				return false, err
			}
		}
		if err := x.delete(c.key(hashKey(prefixTx, txid))); err != nil {
			return false, err
		}
		touched = true
		log.ColorDB.Debug().Str("color", id.String()).Str("tx", txid.String()).Msg("Color move undone")
	}
	return touched, nil
}

// ConnectBlock stages a block's transactions in b, in order. b is a batch
// over the root of the database's store; the caller commits it.
func (d *DB) ConnectBlock(b storage.Batch, height int64, txs []*tx.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	x := d.begin(storage.View(d.store, b))
	for _, t := range txs {
		if _, err := d.addTx(x, t); err != nil {
			return fmt.Errorf("block %d: %w", height, err)
		}
	}
	// Sequence numbers only order tx records; a batch that never commits
	// leaves a gap.
	d.seq = x.seq
	return nil
}

// DisconnectBlock stages the removal of a block's transactions in b, in
// reverse order.
func (d *DB) DisconnectBlock(b storage.Batch, height int64, txs []*tx.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	x := d.begin(storage.View(d.store, b))
	for i := len(txs) - 1; i >= 0; i-- {
		if _, err := d.removeTx(x, txs[i]); err != nil {
			return fmt.Errorf("block %d: %w", height, err)
		}
	}
	return nil
}
