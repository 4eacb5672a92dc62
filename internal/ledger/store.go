package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Key prefixes for the ledger store.
var (
	prefixTx    = []byte("t/") // t/<txid> -> height(8) || raw tx
	prefixSpend = []byte("s/") // s/<txid><index> -> spender txid
	prefixBlock = []byte("b/") // b/<height> -> block hash || txids
	keyTip      = []byte("m/tip")
)

// ErrNotTip is returned when a block does not extend the stored tip.
var ErrNotTip = errors.New("block does not extend tip")

// Store is a Source backed by a storage.DB, filled block by block. Only
// connected blocks are stored, so every stored transaction is confirmed.
type Store struct {
	db storage.DB
}

// NewStore creates a ledger store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func txKey(txid types.Hash) []byte {
	return append(append([]byte{}, prefixTx...), txid[:]...)
}

// spendKey is "s/" + txid(32) + index(4, big-endian).
func spendKey(op types.Outpoint) []byte {
	key := append([]byte{}, prefixSpend...)
	key = append(key, op.TxID[:]...)
	return binary.BigEndian.AppendUint32(key, op.Index)
}

// blockKey is "b/" + height(8, big-endian).
func blockKey(height int64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixBlock...), uint64(height))
}

// isCoinbase reports whether op is the null prevout of a coinbase input.
func isCoinbase(op types.Outpoint) bool {
	return op.TxID.IsZero() && op.Index == math.MaxUint32
}

// Tip returns the height and hash of the last connected block.
func (s *Store) Tip() (int64, types.Hash, bool, error) {
	data, err := s.db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, types.Hash{}, false, nil
	}
	if err != nil {
		return 0, types.Hash{}, false, fmt.Errorf("ledger tip: %w", err)
	}
	r := serde.NewReader(data)
	height := int64(r.Uint64())
	hash := r.Hash()
	if err := r.Done(); err != nil {
		return 0, types.Hash{}, false, fmt.Errorf("ledger tip: %w", err)
	}
	return height, hash, true, nil
}

type blockRecord struct {
	hash  types.Hash
	txids []types.Hash
}

func (s *Store) block(height int64) (*blockRecord, error) {
	data, err := s.db.Get(blockKey(height))
	if err != nil {
		return nil, fmt.Errorf("ledger block %d: %w", height, err)
	}
	r := serde.NewReader(data)
	rec := &blockRecord{hash: r.Hash()}
	n := r.Count(uint64(len(data)) / types.HashSize)
	for i := 0; i < n; i++ {
		rec.txids = append(rec.txids, r.Hash())
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("ledger block %d: %w", height, err)
	}
	return rec, nil
}

// BlockHash returns the hash of the connected block at height.
func (s *Store) BlockHash(height int64) (types.Hash, error) {
	rec, err := s.block(height)
	if err != nil {
		return types.Hash{}, err
	}
	return rec.hash, nil
}

// NewBatch returns a batch over the database beneath the store's namespace,
// so that a block's ledger records and whatever listeners derive from it
// commit together.
func (s *Store) NewBatch() storage.Batch {
	return storage.NewBatch(storage.Root(s.db))
}

// ConnectBlock stores a block's transactions and commits them.
func (s *Store) ConnectBlock(height int64, hash types.Hash, txs []*tx.Transaction) error {
	b := s.NewBatch()
	if err := s.Connect(b, height, hash, txs); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("connect block %d: %w", height, err)
	}
	return nil
}

// Connect stages a block's transactions in root, a batch from NewBatch.
// The block must extend the current tip; the first block may have any
// height.
func (s *Store) Connect(root storage.Batch, height int64, hash types.Hash, txs []*tx.Transaction) error {
	tip, _, ok, err := s.Tip()
	if err != nil {
		return err
	}
	if ok && height != tip+1 {
		return fmt.Errorf("%w: height %d, tip %d", ErrNotTip, height, tip)
	}

	b := storage.View(s.db, root)
	rec := serde.PutHash(nil, hash)
	rec = serde.PutUint64(rec, uint64(len(txs)))
	spent := make(map[types.Outpoint]struct{})
	for _, t := range txs {
		txid := t.Hash()
		rec = serde.PutHash(rec, txid)
		val := serde.PutUint64(nil, uint64(height))
		if err := b.Put(txKey(txid), append(val, t.Bytes()...)); err != nil {
			return err
		}
		for _, in := range t.Inputs {
			if isCoinbase(in.PrevOut) {
				continue
			}
			if _, dup := spent[in.PrevOut]; dup {
				return fmt.Errorf("%w: %s twice in block %d", ErrConflict, in.PrevOut, height)
			}
			if has, err := s.db.Has(spendKey(in.PrevOut)); err != nil {
				return err
			} else if has {
				return fmt.Errorf("%w: %s already spent", ErrConflict, in.PrevOut)
			}
			spent[in.PrevOut] = struct{}{}
			if err := b.Put(spendKey(in.PrevOut), txid[:]); err != nil {
				return err
			}
		}
	}
	if err := b.Put(blockKey(height), rec); err != nil {
		return err
	}
	tipRec := serde.PutHash(serde.PutUint64(nil, uint64(height)), hash)
	return b.Put(keyTip, tipRec)
}

// DisconnectTip removes the last connected block, commits, and returns its
// transactions in block order.
func (s *Store) DisconnectTip() (int64, []*tx.Transaction, error) {
	b := s.NewBatch()
	height, txs, err := s.Disconnect(b)
	if err != nil {
		return 0, nil, err
	}
	if err := b.Commit(); err != nil {
		return 0, nil, fmt.Errorf("disconnect block %d: %w", height, err)
	}
	return height, txs, nil
}

// Disconnect stages the removal of the last connected block in root, a
// batch from NewBatch, and returns its transactions in block order.
func (s *Store) Disconnect(root storage.Batch) (int64, []*tx.Transaction, error) {
	height, _, ok, err := s.Tip()
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, fmt.Errorf("disconnect: %w", storage.ErrNotFound)
	}
	rec, err := s.block(height)
	if err != nil {
		return 0, nil, err
	}

	b := storage.View(s.db, root)
	txs := make([]*tx.Transaction, 0, len(rec.txids))
	for _, txid := range rec.txids {
		t, _, err := s.load(txid)
		if err != nil {
			return 0, nil, err
		}
		txs = append(txs, t)
		for _, in := range t.Inputs {
			if !isCoinbase(in.PrevOut) {
				if err := b.Delete(spendKey(in.PrevOut)); err != nil {
					return 0, nil, err
				}
			}
		}
		if err := b.Delete(txKey(txid)); err != nil {
			return 0, nil, err
		}
	}
	if err := b.Delete(blockKey(height)); err != nil {
		return 0, nil, err
	}
	if prev, err := s.block(height - 1); err == nil {
		if err := b.Put(keyTip, serde.PutHash(serde.PutUint64(nil, uint64(height-1)), prev.hash)); err != nil {
			return 0, nil, err
		}
	} else if errors.Is(err, storage.ErrNotFound) {
		if err := b.Delete(keyTip); err != nil {
			return 0, nil, err
		}
	} else {
		return 0, nil, err
	}
	return height, txs, nil
}

func (s *Store) load(txid types.Hash) (*tx.Transaction, int64, error) {
	data, err := s.db.Get(txKey(txid))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("ledger tx get: %w", err)
	}
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("ledger tx %s: short record", txid)
	}
	r := serde.NewReader(data[:8])
	height := int64(r.Uint64())
	t, err := tx.Decode(data[8:])
	if err != nil {
		return nil, 0, fmt.Errorf("ledger tx %s: %w", txid, err)
	}
	return t, height, nil
}

// Height returns the height of the block confirming txid.
func (s *Store) Height(txid types.Hash) (int64, error) {
	_, h, err := s.load(txid)
	return h, err
}

// Transaction implements Source.
func (s *Store) Transaction(_ context.Context, txid types.Hash) (*tx.Transaction, error) {
	t, _, err := s.load(txid)
	return t, err
}

// Spender implements Source.
func (s *Store) Spender(ctx context.Context, op types.Outpoint) (*tx.Transaction, error) {
	data, err := s.db.Get(spendKey(op))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnspent, op)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger spend get: %w", err)
	}
	var txid types.Hash
	copy(txid[:], data)
	return s.Transaction(ctx, txid)
}

// Confirmed implements Source.
func (s *Store) Confirmed(_ context.Context, txid types.Hash) (bool, error) {
	return s.db.Has(txKey(txid))
}
