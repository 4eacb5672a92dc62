package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/smartcolors/internal/rpcclient"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// bitcoind answers the handful of calls the RPC source makes from one
// block holding cb and pay.
type bitcoind struct {
	block   *wire.MsgBlock
	txs     map[string]*tx.Transaction
	unspent map[string]bool
}

func newBitcoind(cb, pay *tx.Transaction) *bitcoind {
	blk := wire.NewMsgBlock(&wire.BlockHeader{Version: 4, Timestamp: time.Unix(1_400_000_000, 0)})
	blk.AddTransaction(cb.Wire())
	blk.AddTransaction(pay.Wire())
	return &bitcoind{
		block: blk,
		txs: map[string]*tx.Transaction{
			displayHash(cb.Hash()):  cb,
			displayHash(pay.Hash()): pay,
		},
		unspent: map[string]bool{pay.Outpoint(0).String(): true},
	}
}

func (b *bitcoind) handle(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		str := func(i int) string {
			var s string
			json.Unmarshal(req.Params[i], &s)
			return s
		}
		var result interface{}
		var rpcErr interface{}
		switch req.Method {
		case "getblockcount":
			result = 0
		case "getblockhash":
			result = b.block.BlockHash().String()
		case "getblock":
			var buf bytes.Buffer
			b.block.Serialize(&buf)
			result = hex.EncodeToString(buf.Bytes())
		case "getrawtransaction":
			found, ok := b.txs[str(0)]
			if !ok {
				rpcErr = map[string]interface{}{"code": rpcclient.CodeInvalidAddressOrKey, "message": "No such mempool or blockchain transaction"}
				break
			}
			var verbose bool
			json.Unmarshal(req.Params[1], &verbose)
			if verbose {
				result = map[string]interface{}{"txid": str(0), "confirmations": 3}
			} else {
				result = hex.EncodeToString(found.Bytes())
			}
		case "gettxout":
			var n uint32
			json.Unmarshal(req.Params[1], &n)
			h, _ := chainhash.NewHashFromStr(str(0))
			op := types.Outpoint{TxID: types.Hash(*h), Index: n}
			if b.unspent[op.String()] {
				result = map[string]interface{}{"confirmations": 3, "value": 0.00001}
			}
		default:
			rpcErr = map[string]interface{}{"code": -32601, "message": "Method not found"}
		}
		if rpcErr != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result, "error": rpcErr, "id": 1})
	}
}

func newTestRPC(t *testing.T, confirmations int64) (*RPC, *tx.Transaction, *tx.Transaction, *bitcoind) {
	t.Helper()
	cb := coinbase(0, 0)
	pay := spend(cb.Outpoint(0), 1000)
	node := newBitcoind(cb, pay)
	srv := httptest.NewServer(node.handle(t))
	t.Cleanup(srv.Close)
	return NewRPC(rpcclient.New(srv.URL), confirmations), cb, pay, node
}

func TestRPC_Transaction(t *testing.T) {
	src, _, pay, _ := newTestRPC(t, 1)
	ctx := context.Background()

	got, err := src.Transaction(ctx, pay.Hash())
	if err != nil {
		t.Fatalf("Transaction() error: %v", err)
	}
	if got.Hash() != pay.Hash() {
		t.Error("Transaction() returned the wrong transaction")
	}
	if _, err := src.Transaction(ctx, types.Hash{0xde}); !errors.Is(err, ErrTxNotFound) {
		t.Errorf("Transaction(unknown) error = %v, want ErrTxNotFound", err)
	}
}

func TestRPC_Confirmed(t *testing.T) {
	ctx := context.Background()
	src, _, pay, _ := newTestRPC(t, 3)
	if ok, err := src.Confirmed(ctx, pay.Hash()); err != nil || !ok {
		t.Errorf("Confirmed() = %v, %v", ok, err)
	}
	if ok, err := src.Confirmed(ctx, types.Hash{0xde}); err != nil || ok {
		t.Errorf("Confirmed(unknown) = %v, %v", ok, err)
	}

	deep, _, pay, _ := newTestRPC(t, 6)
	if ok, _ := deep.Confirmed(ctx, pay.Hash()); ok {
		t.Error("Confirmed() should require six confirmations")
	}
}

func TestRPC_Spender(t *testing.T) {
	ctx := context.Background()
	src, cb, pay, _ := newTestRPC(t, 1)
	if _, err := src.Spender(ctx, pay.Outpoint(0)); !errors.Is(err, ErrUnspent) {
		t.Errorf("Spender(unspent) error = %v, want ErrUnspent", err)
	}
	if _, err := src.Spender(ctx, cb.Outpoint(0)); !errors.Is(err, ErrNoSpendIndex) {
		t.Errorf("Spender(spent) error = %v, want ErrNoSpendIndex", err)
	}
}

func TestRPC_Blocks(t *testing.T) {
	ctx := context.Background()
	src, cb, pay, node := newTestRPC(t, 1)

	if n, err := src.BlockCount(ctx); err != nil || n != 0 {
		t.Fatalf("BlockCount() = %d, %v", n, err)
	}
	hash, err := src.BlockHash(ctx, 0)
	if err != nil {
		t.Fatalf("BlockHash() error: %v", err)
	}
	if hash != types.Hash(node.block.BlockHash()) {
		t.Errorf("BlockHash() = %s", hash)
	}
	txs, err := src.Block(ctx, hash)
	if err != nil {
		t.Fatalf("Block() error: %v", err)
	}
	if len(txs) != 2 || txs[0].Hash() != cb.Hash() || txs[1].Hash() != pay.Hash() {
		t.Errorf("Block() returned %d txs", len(txs))
	}
	if _, err := src.Block(ctx, types.Hash{0x01}); err == nil {
		t.Error("Block() should reject a block with another hash")
	}
}

func TestRPC_Scanner(t *testing.T) {
	ctx := context.Background()
	src, cb, pay, _ := newTestRPC(t, 1)
	store := NewStore(storage.NewMemory())
	if n, err := NewScanner(src, store, 0, 1).Sync(ctx); err != nil || n != 1 {
		t.Fatalf("Sync() = %d, %v", n, err)
	}
	if sp, err := store.Spender(ctx, cb.Outpoint(0)); err != nil || sp.Hash() != pay.Hash() {
		t.Errorf("Spender() = %v, %v", sp, err)
	}
}
