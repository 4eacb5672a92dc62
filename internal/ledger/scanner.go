package ledger

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// BlockSource is a node serving the best chain.
type BlockSource interface {
	BlockCount(ctx context.Context) (int64, error)
	BlockHash(ctx context.Context, height int64) (types.Hash, error)
	Block(ctx context.Context, hash types.Hash) ([]*tx.Transaction, error)
}

// Listener is told about every block the scanner connects or disconnects.
// It stages its writes in b, a batch over the store's root database that
// commits together with the ledger records once every listener succeeds.
type Listener interface {
	ConnectBlock(b storage.Batch, height int64, txs []*tx.Transaction) error
	DisconnectBlock(b storage.Batch, height int64, txs []*tx.Transaction) error
}

// Scanner copies confirmed blocks from a node into a Store. Before
// extending the store it checks that the stored tip is still on the node's
// best chain and unwinds blocks until it is.
type Scanner struct {
	node          BlockSource
	store         *Store
	start         int64
	confirmations int64
	listeners     []Listener
}

// NewScanner creates a scanner indexing from height start once blocks have
// the given number of confirmations.
func NewScanner(node BlockSource, store *Store, start, confirmations int64) *Scanner {
	if confirmations < 1 {
		confirmations = 1
	}
	return &Scanner{node: node, store: store, start: start, confirmations: confirmations}
}

// Subscribe registers l for block notifications.
func (s *Scanner) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Store returns the store the scanner fills.
func (s *Scanner) Store() *Store {
	return s.store
}

// Sync indexes every new confirmed block and returns how many were
// connected.
func (s *Scanner) Sync(ctx context.Context) (int, error) {
	best, err := s.node.BlockCount(ctx)
	if err != nil {
		return 0, err
	}
	target := best - s.confirmations + 1

	connected := 0
	for {
		if err := ctx.Err(); err != nil {
			return connected, err
		}
		tip, tipHash, ok, err := s.store.Tip()
		if err != nil {
			return connected, err
		}

		next := s.start
		if ok {
			stale := tip > best
			if !stale {
				nodeHash, err := s.node.BlockHash(ctx, tip)
				if err != nil {
					return connected, err
				}
				stale = nodeHash != tipHash
			}
			if stale {
				if err := s.disconnect(tipHash); err != nil {
					return connected, err
				}
				continue
			}
			next = tip + 1
		}
		if next > target {
			return connected, nil
		}

		hash, err := s.node.BlockHash(ctx, next)
		if err != nil {
			return connected, err
		}
		txs, err := s.node.Block(ctx, hash)
		if err != nil {
			return connected, err
		}
		b := s.store.NewBatch()
		if err := s.store.Connect(b, next, hash, txs); err != nil {
			return connected, err
		}
		for _, l := range s.listeners {
			if err := l.ConnectBlock(b, next, txs); err != nil {
				return connected, fmt.Errorf("connect block %d: %w", next, err)
			}
		}
		if err := b.Commit(); err != nil {
			return connected, fmt.Errorf("connect block %d: %w", next, err)
		}
		connected++
		log.Ledger.Debug().Int64("height", next).Str("hash", displayHash(hash)).Int("txs", len(txs)).Msg("Block connected")
	}
}

func (s *Scanner) disconnect(hash types.Hash) error {
	b := s.store.NewBatch()
	height, txs, err := s.store.Disconnect(b)
	if err != nil {
		return err
	}
	for i := len(s.listeners) - 1; i >= 0; i-- {
		if err := s.listeners[i].DisconnectBlock(b, height, txs); err != nil {
			return fmt.Errorf("disconnect block %d: %w", height, err)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("disconnect block %d: %w", height, err)
	}
	log.Ledger.Info().Int64("height", height).Str("hash", displayHash(hash)).Msg("Reorganizing: block disconnected")
	return nil
}
