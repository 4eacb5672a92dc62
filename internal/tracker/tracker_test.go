package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/ledger"
	"github.com/Klingon-tech/smartcolors/internal/rpc"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/internal/wallet"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var (
	gold        = types.ColorID{0x60, 0x1d}
	aliceScript = []byte{0x00, 0x14, 0xa1}
	bobScript   = []byte{0x00, 0x14, 0xb0}
)

// fakeNode serves a chain of blocks held in memory.
type fakeNode struct {
	mu     sync.Mutex
	blocks [][]*tx.Transaction
	forks  []byte
}

func (n *fakeNode) setBlock(height int, fork byte, txs ...*tx.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks = append(n.blocks[:height], txs)
	n.forks = append(n.forks[:height], fork)
}

func (n *fakeNode) BlockCount(context.Context) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return int64(len(n.blocks)) - 1, nil
}

func (n *fakeNode) BlockHash(_ context.Context, height int64) (types.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if height < 0 || height >= int64(len(n.blocks)) {
		return types.Hash{}, errors.New("height out of range")
	}
	return types.Hash{0xb1, byte(height), n.forks[height]}, nil
}

func (n *fakeNode) Block(ctx context.Context, hash types.Hash) ([]*tx.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := int(hash[1])
	if h >= len(n.blocks) || n.forks[h] != hash[2] {
		return nil, errors.New("unknown block")
	}
	return n.blocks[h], nil
}

func (n *fakeNode) find(match func(*tx.Transaction) bool) *tx.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, b := range n.blocks {
		for _, t := range b {
			if match(t) {
				return t
			}
		}
	}
	return nil
}

func (n *fakeNode) Transaction(_ context.Context, txid types.Hash) (*tx.Transaction, error) {
	if t := n.find(func(t *tx.Transaction) bool { return t.Hash() == txid }); t != nil {
		return t, nil
	}
	return nil, ledger.ErrTxNotFound
}

func (n *fakeNode) Spender(_ context.Context, op types.Outpoint) (*tx.Transaction, error) {
	if t := n.find(func(t *tx.Transaction) bool { return t.Spends(op) >= 0 }); t != nil {
		return t, nil
	}
	return nil, ledger.ErrUnspent
}

func (n *fakeNode) Confirmed(ctx context.Context, txid types.Hash) (bool, error) {
	_, err := n.Transaction(ctx, txid)
	return err == nil, nil
}

func coinbase(tag byte, script []byte) *tx.Transaction {
	t := tx.NewBuilder().
		AddInput(types.Outpoint{Index: math.MaxUint32}, tx.SequenceFinal).
		AddOutput(50_000, script).
		Build()
	t.Inputs[0].SignatureScript = []byte{tag}
	return t
}

// setup returns a tracker following a node whose block 0 pays alice the
// genesis output of gold.
func setup(t *testing.T) (*Tracker, *fakeNode, *tx.Transaction) {
	t.Helper()
	genesis := coinbase(0, aliceScript)
	node := &fakeNode{}
	node.setBlock(0, 0, genesis)

	is, _, err := colordef.NewIssuance(gold, 0, []byte("gold"), []colordef.GenesisPoint{
		{Outpoint: genesis.Outpoint(0), Quantity: 1000},
	})
	if err != nil {
		t.Fatalf("NewIssuance() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "gold.issuance")
	if err := is.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg := config.DefaultRegtest()
	cfg.Storage.Engine = config.EngineMemory
	cfg.Color.Definitions = []string{path}
	cfg.Ledger.PollInterval = 10 * time.Millisecond
	cfg.Server.Port = 0

	tr, err := newTracker(cfg, storage.NewMemory(), node)
	if err != nil {
		t.Fatalf("newTracker() error: %v", err)
	}
	t.Cleanup(func() { tr.db.Close() })
	return tr, node, genesis
}

func TestTracker_TransferAndProve(t *testing.T) {
	ctx := context.Background()
	tr, node, genesis := setup(t)

	if n, err := tr.Sync(ctx); err != nil || n != 1 {
		t.Fatalf("Sync() = %d, %v; want 1 block", n, err)
	}

	coins, err := tr.ColoredCoins(ctx, gold, [][]byte{aliceScript})
	if err != nil {
		t.Fatalf("ColoredCoins() error: %v", err)
	}
	if len(coins) != 1 || coins[0].Outpoint != genesis.Outpoint(0) || coins[0].Quantity != 1000 || coins[0].Value != 50_000 {
		t.Fatalf("ColoredCoins() = %+v", coins)
	}

	built, err := tr.Transfer(ctx, gold, [][]byte{aliceScript}, nil,
		[]wallet.Recipient{{Quantity: 600, PkScript: bobScript}}, aliceScript, 1000)
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if built.ColoredChange != 400 {
		t.Errorf("ColoredChange = %d, want 400", built.ColoredChange)
	}

	node.setBlock(1, 0, coinbase(1, aliceScript), built.Tx)
	if n, err := tr.Sync(ctx); err != nil || n != 1 {
		t.Fatalf("Sync() = %d, %v; want 1 block", n, err)
	}
	if h, _ := tr.Height(); h != 1 {
		t.Errorf("Height() = %d, want 1", h)
	}

	bal, err := tr.Colors().Balance(gold)
	if err != nil || bal != 1000 {
		t.Fatalf("Balance() = %d, %v; want 1000", bal, err)
	}
	bob, err := tr.ColoredCoins(ctx, gold, [][]byte{bobScript})
	if err != nil {
		t.Fatalf("ColoredCoins(bob) error: %v", err)
	}
	target := built.Tx.Outpoint(0)
	if len(bob) != 1 || bob[0].Outpoint != target || bob[0].Quantity != 600 {
		t.Fatalf("ColoredCoins(bob) = %+v", bob)
	}

	p, err := tr.Prove(ctx, gold, target)
	if err != nil {
		t.Fatalf("Prove() error: %v", err)
	}
	q, err := tr.Verify(ctx, p)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if q != 600 {
		t.Errorf("Verify() = %d, want 600", q)
	}

	traced, err := tr.Trace(ctx, gold, genesis.Outpoint(0), target)
	if err != nil {
		t.Fatalf("Trace() error: %v", err)
	}
	if q, err := tr.Verify(ctx, traced); err != nil || q != 600 {
		t.Errorf("Verify(traced) = %d, %v; want 600", q, err)
	}
}

func TestTracker_Reorg(t *testing.T) {
	ctx := context.Background()
	tr, node, genesis := setup(t)
	if _, err := tr.Sync(ctx); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	built, err := tr.Transfer(ctx, gold, [][]byte{aliceScript}, nil,
		[]wallet.Recipient{{Quantity: 1000, PkScript: bobScript}}, aliceScript, 500)
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	node.setBlock(1, 0, coinbase(1, aliceScript), built.Tx)
	if _, err := tr.Sync(ctx); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if coins, _ := tr.ColoredCoins(ctx, gold, [][]byte{aliceScript}); len(coins) != 0 {
		t.Fatalf("alice still holds %+v", coins)
	}

	// The transfer is dropped by a longer fork.
	node.setBlock(1, 1, coinbase(2, aliceScript))
	node.setBlock(2, 1, coinbase(3, aliceScript))
	if n, err := tr.Sync(ctx); err != nil || n != 2 {
		t.Fatalf("Sync() after reorg = %d, %v; want 2 blocks", n, err)
	}

	outs, err := tr.Colors().Outputs(gold)
	if err != nil {
		t.Fatalf("Outputs() error: %v", err)
	}
	if len(outs) != 1 || outs[0].Outpoint != genesis.Outpoint(0) || outs[0].Quantity != 1000 {
		t.Errorf("Outputs() after reorg = %+v", outs)
	}
	if _, err := tr.Prove(ctx, gold, built.Tx.Outpoint(0)); err == nil {
		t.Error("Prove() of a reorganized output should fail")
	}
}

func TestTracker_RunStops(t *testing.T) {
	tr, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if h, _ := tr.Height(); h == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Run() did not index the first block")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestTracker_BadDefinition(t *testing.T) {
	cfg := config.DefaultRegtest()
	cfg.Storage.Engine = config.EngineMemory
	cfg.Color.Definitions = []string{filepath.Join(t.TempDir(), "missing.issuance")}
	if _, err := newTracker(cfg, storage.NewMemory(), &fakeNode{}); err == nil {
		t.Fatal("newTracker() with a missing definition file should fail")
	}
}

func TestTracker_ServesRPC(t *testing.T) {
	tr, _, _ := setup(t)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer tr.Stop()

	body, _ := json.Marshal(rpc.Request{JSONRPC: "2.0", Method: "color_list", ID: 1})
	resp, err := http.Post("http://"+tr.RPCAddr()+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Result rpc.ColorListResult `json:"result"`
		Error  *rpc.Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("color_list error: %s", out.Error.Message)
	}
	if len(out.Result.Colors) != 1 || out.Result.Colors[0].Color != gold.String() {
		t.Errorf("color_list = %+v", out.Result.Colors)
	}
}
