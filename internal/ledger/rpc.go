package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/smartcolors/internal/rpcclient"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// RPC is a Source backed by a Bitcoin Core compatible node. Transaction
// lookups need the node's txindex. The node keeps no spend index, so
// Spender only answers for unspent outputs; use a Scanner-filled Store
// when spends must be resolved.
type RPC struct {
	client        *rpcclient.Client
	confirmations int64
}

// NewRPC wraps client. A transaction counts as confirmed once it has at
// least confirmations confirmations.
func NewRPC(client *rpcclient.Client, confirmations int64) *RPC {
	if confirmations < 1 {
		confirmations = 1
	}
	return &RPC{client: client, confirmations: confirmations}
}

func isNotFound(err error) bool {
	var rpcErr *rpcclient.RPCError
	return errors.As(err, &rpcErr) &&
		(rpcErr.Code == rpcclient.CodeInvalidAddressOrKey || rpcErr.Code == rpcclient.CodeInvalidParameter)
}

// displayHash renders h the way the node expects ids: byte-reversed hex.
func displayHash(h types.Hash) string {
	return chainhash.Hash(h).String()
}

func parseDisplayHash(s string) (types.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return types.Hash(*h), nil
}

// Transaction implements Source.
func (r *RPC) Transaction(ctx context.Context, txid types.Hash) (*tx.Transaction, error) {
	var raw string
	err := r.client.Call(ctx, "getrawtransaction", []interface{}{displayHash(txid), false}, &raw)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	if err != nil {
		return nil, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}
	return tx.Decode(b)
}

// Spender implements Source. It reports ErrUnspent for outputs the node
// still holds in its UTXO set and ErrNoSpendIndex otherwise.
func (r *RPC) Spender(ctx context.Context, op types.Outpoint) (*tx.Transaction, error) {
	var out *struct {
		Confirmations int64 `json:"confirmations"`
	}
	if err := r.client.Call(ctx, "gettxout", []interface{}{displayHash(op.TxID), op.Index, false}, &out); err != nil {
		return nil, fmt.Errorf("gettxout %s: %w", op, err)
	}
	if out != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnspent, op)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSpendIndex, op)
}

// Confirmed implements Source.
func (r *RPC) Confirmed(ctx context.Context, txid types.Hash) (bool, error) {
	var info struct {
		Confirmations int64 `json:"confirmations"`
	}
	err := r.client.Call(ctx, "getrawtransaction", []interface{}{displayHash(txid), true}, &info)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}
	return info.Confirmations >= r.confirmations, nil
}

// BlockCount returns the height of the node's best chain.
func (r *RPC) BlockCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.client.Call(ctx, "getblockcount", nil, &n); err != nil {
		return 0, fmt.Errorf("getblockcount: %w", err)
	}
	return n, nil
}

// BlockHash returns the hash of the best-chain block at height.
func (r *RPC) BlockHash(ctx context.Context, height int64) (types.Hash, error) {
	var s string
	if err := r.client.Call(ctx, "getblockhash", []interface{}{height}, &s); err != nil {
		return types.Hash{}, fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return parseDisplayHash(s)
}

// Block fetches and decodes a block.
func (r *RPC) Block(ctx context.Context, hash types.Hash) ([]*tx.Transaction, error) {
	var raw string
	if err := r.client.Call(ctx, "getblock", []interface{}{displayHash(hash), 0}, &raw); err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}
	var msg wire.MsgBlock
	if err := msg.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("decode block %s: %w", hash, err)
	}
	if got := types.Hash(msg.BlockHash()); got != hash {
		return nil, fmt.Errorf("getblock %s: node returned %s", hash, got)
	}
	txs := make([]*tx.Transaction, len(msg.Transactions))
	for i, m := range msg.Transactions {
		txs[i] = tx.FromWire(m)
	}
	return txs, nil
}
