package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Memory is an in-memory Source. Every added transaction counts as
// confirmed.
type Memory struct {
	mu      sync.RWMutex
	txs     map[types.Hash]*tx.Transaction
	spender map[types.Outpoint]types.Hash
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		txs:     make(map[types.Hash]*tx.Transaction),
		spender: make(map[types.Outpoint]types.Hash),
	}
}

// Add records confirmed transactions. A transaction spending an outpoint
// already spent by another is rejected; re-adding the same one is a no-op.
func (m *Memory) Add(txs ...*tx.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range txs {
		txid := t.Hash()
		if _, ok := m.txs[txid]; ok {
			continue
		}
		for _, in := range t.Inputs {
			if prev, ok := m.spender[in.PrevOut]; ok {
				return fmt.Errorf("%w: %s spent by %s and %s", ErrConflict, in.PrevOut, prev, txid)
			}
		}
		for _, in := range t.Inputs {
			m.spender[in.PrevOut] = txid
		}
		m.txs[txid] = t
	}
	return nil
}

// Transaction implements Source.
func (m *Memory) Transaction(_ context.Context, txid types.Hash) (*tx.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	return t, nil
}

// Spender implements Source.
func (m *Memory) Spender(_ context.Context, op types.Outpoint) (*tx.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txid, ok := m.spender[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnspent, op)
	}
	return m.txs[txid], nil
}

// Confirmed implements Source.
func (m *Memory) Confirmed(_ context.Context, txid types.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.txs[txid]
	return ok, nil
}
