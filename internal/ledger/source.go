// Package ledger provides the base ledger data sources color tracking and
// proof checks rely on: confirmed transactions and their spends.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var (
	// ErrTxNotFound is returned for a transaction the source does not know.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrUnspent is returned by Spender for an unspent outpoint.
	ErrUnspent = errors.New("outpoint unspent")
	// ErrConflict is returned when two transactions spend the same outpoint.
	ErrConflict = errors.New("conflicting spend")
	// ErrNoSpendIndex is returned by sources that cannot look up spenders.
	ErrNoSpendIndex = errors.New("source has no spend index")
)

// Source answers questions about confirmed ledger state. Ledger-level
// validity (scripts, double spends, confirmation depth) is the source's
// responsibility.
type Source interface {
	// Transaction returns a confirmed transaction by id.
	Transaction(ctx context.Context, txid types.Hash) (*tx.Transaction, error)
	// Spender returns the confirmed transaction spending op.
	Spender(ctx context.Context, op types.Outpoint) (*tx.Transaction, error)
	// Confirmed reports whether txid is confirmed.
	Confirmed(ctx context.Context, txid types.Hash) (bool, error)
}

// Creator returns the transaction that created op.
func Creator(ctx context.Context, src Source, op types.Outpoint) (*tx.Transaction, error) {
	t, err := src.Transaction(ctx, op.TxID)
	if err != nil {
		return nil, err
	}
	if int(op.Index) >= len(t.Outputs) {
		return nil, fmt.Errorf("%w: %s has %d outputs", ErrTxNotFound, op, len(t.Outputs))
	}
	return t, nil
}

// Spends adapts a Source to the spend lookups proof checks use.
type Spends struct {
	Source
}

// SpenderID returns the id of the transaction spending op.
func (s Spends) SpenderID(ctx context.Context, op types.Outpoint) (types.Hash, bool, error) {
	t, err := s.Spender(ctx, op)
	if errors.Is(err, ErrUnspent) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, err
	}
	return t.Hash(), true, nil
}
