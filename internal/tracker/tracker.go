// Package tracker runs a color tracker: it follows the base ledger through a
// node's RPC interface, indexes confirmed blocks, and keeps the color
// database of every configured color current so proofs can be served for
// any colored outpoint.
package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/internal/colordb"
	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/ledger"
	klog "github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/internal/proof"
	"github.com/Klingon-tech/smartcolors/internal/prover"
	"github.com/Klingon-tech/smartcolors/internal/rpc"
	"github.com/Klingon-tech/smartcolors/internal/rpcclient"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/internal/wallet"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
	"github.com/rs/zerolog"
)

var _ rpc.Backend = (*Tracker)(nil)

// Key namespaces inside the shared database.
var (
	nsLedger = []byte("L")
	nsColors = []byte("C")
)

// Node is the base ledger node the tracker follows.
type Node interface {
	ledger.BlockSource
	ledger.Source
}

// Tracker is a fully-initialized color tracker.
type Tracker struct {
	cfg    *config.Config
	logger zerolog.Logger

	db      storage.DB
	node    Node
	store   *ledger.Store
	colors  *colordb.DB
	scanner *ledger.Scanner
	server  *rpc.Server // nil when disabled

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a tracker from cfg. It sets up logging, opens the database,
// connects to the node's RPC endpoint and registers every configured color
// definition, but does NOT start scanning. Call Start() for that.
func New(cfg *config.Config) (*Tracker, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "tracker.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	// ── 2. Open storage ─────────────────────────────────────────────
	path := cfg.IndexDir()
	if cfg.Storage.Engine != config.EngineMemory {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating index dir: %w", err)
		}
	}
	db, err := storage.Open(cfg.Storage.Engine, path)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}

	// ── 3. Node RPC ─────────────────────────────────────────────────
	client := rpcclient.NewWithTimeout(cfg.Ledger.RPCURL, cfg.Ledger.Timeout)
	if cfg.Ledger.RPCUser != "" {
		client.SetAuth(cfg.Ledger.RPCUser, cfg.Ledger.RPCPassword)
	}
	node := ledger.NewRPC(client, int64(cfg.Ledger.Confirmations))

	t, err := newTracker(cfg, db, node)
	if err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

// newTracker wires a tracker over an open database and a node.
func newTracker(cfg *config.Config, db storage.DB, node Node) (*Tracker, error) {
	logger := klog.Tracker
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("engine", cfg.Storage.Engine).
		Str("rpc", cfg.Ledger.RPCURL).
		Msg("Starting color tracker")

	store := ledger.NewStore(storage.NewPrefixDB(db, nsLedger))
	colors, err := colordb.Open(storage.NewPrefixDB(db, nsColors))
	if err != nil {
		return nil, fmt.Errorf("open color database: %w", err)
	}

	for _, path := range cfg.Color.Definitions {
		is, err := colordef.ReadIssuanceFile(path)
		if err != nil {
			return nil, fmt.Errorf("load color definition %s: %w", path, err)
		}
		if err := colors.Register(is); err != nil {
			return nil, fmt.Errorf("register %s: %w", is.Definition, err)
		}
		logger.Info().
			Str("color", is.Definition.String()).
			Int("genesis_points", len(is.Points)).
			Msg("Color registered")
	}

	scanner := ledger.NewScanner(node, store, cfg.Ledger.StartHeight, int64(cfg.Ledger.Confirmations))
	scanner.Subscribe(colors)

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		node:    node,
		store:   store,
		colors:  colors,
		scanner: scanner,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.Server.Enabled {
		addr := net.JoinHostPort(cfg.Server.Addr, strconv.Itoa(cfg.Server.Port))
		t.server = rpc.New(addr, t, cfg.Server)
	}
	return t, nil
}

// Start launches the scan loop and the RPC server.
func (t *Tracker) Start() error {
	if t.server != nil {
		if err := t.server.Start(); err != nil {
			return err
		}
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.Run(t.ctx)
	}()

	height, _, _, err := t.store.Tip()
	if err != nil {
		return err
	}
	t.logger.Info().
		Int64("height", height).
		Int("colors", len(t.colors.Colors())).
		Dur("poll", t.cfg.Ledger.PollInterval).
		Msg("Tracker started successfully")
	return nil
}

// Stop performs graceful shutdown.
func (t *Tracker) Stop() {
	if t.server != nil {
		if err := t.server.Stop(); err != nil {
			t.logger.Warn().Err(err).Msg("RPC server shutdown")
		}
	}
	t.cancel()
	t.wg.Wait()
	if t.db != nil {
		t.db.Close()
	}
	t.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server listens on, or "" when the
// server is disabled.
func (t *Tracker) RPCAddr() string {
	if t.server == nil {
		return ""
	}
	return t.server.Addr()
}

// ── Scanning ────────────────────────────────────────────────────────

// Run syncs with the node immediately and then on every poll interval
// until ctx is done. Sync failures are logged and retried on the next tick.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.cfg.Ledger.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := t.Sync(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn().Err(err).Msg("Ledger sync failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sync runs one scan pass and returns the number of blocks connected.
func (t *Tracker) Sync(ctx context.Context) (int, error) {
	n, err := t.scanner.Sync(ctx)
	if n > 0 {
		height, _, _, _ := t.store.Tip()
		t.logger.Info().Int("blocks", n).Int64("height", height).Msg("Ledger synced")
	}
	return n, err
}

// Height returns the height of the last indexed block, or -1 before the
// first one.
func (t *Tracker) Height() (int64, error) {
	height, _, ok, err := t.store.Tip()
	if err != nil || !ok {
		return -1, err
	}
	return height, nil
}

// ── Queries ─────────────────────────────────────────────────────────

// Colors returns the database of tracked colors.
func (t *Tracker) Colors() *colordb.DB {
	return t.colors
}

// Ledger returns the local ledger index.
func (t *Tracker) Ledger() *ledger.Store {
	return t.store
}

// Prove builds a proof that target holds color id.
func (t *Tracker) Prove(ctx context.Context, id types.ColorID, target types.Outpoint) (*proof.Proof, error) {
	return t.colors.Prove(ctx, id, target)
}

// Verify checks a proof received from elsewhere against the registered
// definition of its color and against the indexed ledger.
func (t *Tracker) Verify(ctx context.Context, p *proof.Proof) (uint64, error) {
	def, err := t.colors.DefinitionAt(p.ColorID, p.Version)
	if err != nil {
		return 0, err
	}
	return p.VerifyConfirmed(ctx, def, ledger.Spends{Source: t.store})
}

// Trace builds a proof by following the color of one genesis point forward
// through the indexed ledger until it reaches target. Color joined into
// target from other genesis points is not included, so the proof can show
// less than Prove does.
func (t *Tracker) Trace(ctx context.Context, id types.ColorID, genesis, target types.Outpoint) (*proof.Proof, error) {
	def, err := t.colors.Definition(id)
	if err != nil {
		return nil, err
	}
	tree, err := t.colors.Tree(id, def.Version)
	if err != nil {
		return nil, err
	}
	return prover.New(t.store).Prove(ctx, def, tree, genesis, target)
}

// transaction looks txid up in the local index first and falls back to the
// node for transactions outside the scanned range, such as genesis
// transactions older than the start height.
func (t *Tracker) transaction(ctx context.Context, txid types.Hash) (*tx.Transaction, error) {
	got, err := t.store.Transaction(ctx, txid)
	if errors.Is(err, ledger.ErrTxNotFound) {
		return t.node.Transaction(ctx, txid)
	}
	return got, err
}

// ColoredCoins lists the unspent coins of color id paying to one of scripts.
func (t *Tracker) ColoredCoins(ctx context.Context, id types.ColorID, scripts [][]byte) ([]wallet.Coin, error) {
	outs, err := t.colors.Outputs(id)
	if err != nil {
		return nil, err
	}
	var coins []wallet.Coin
	for _, o := range outs {
		creator, err := t.transaction(ctx, o.Outpoint.TxID)
		if err != nil {
			return nil, fmt.Errorf("creator of %s: %w", o.Outpoint, err)
		}
		if int(o.Outpoint.Index) >= len(creator.Outputs) {
			return nil, fmt.Errorf("creator of %s: %w", o.Outpoint, tx.ErrMalformed)
		}
		out := creator.Outputs[o.Outpoint.Index]
		if !ownedBy(out.PkScript, scripts) {
			continue
		}
		coins = append(coins, wallet.Coin{Outpoint: o.Outpoint, Value: out.Value, Quantity: o.Quantity})
	}
	return coins, nil
}

func ownedBy(script []byte, scripts [][]byte) bool {
	for _, s := range scripts {
		if bytes.Equal(script, s) {
			return true
		}
	}
	return false
}

// Transfer builds an unsigned transaction sending color id from the coins
// paying to owned. Colored outputs are padded to the configured dust limit.
func (t *Tracker) Transfer(ctx context.Context, id types.ColorID, owned [][]byte, funding []wallet.Coin,
	recipients []wallet.Recipient, change []byte, fee uint64) (*wallet.Built, error) {
	coins, err := t.ColoredCoins(ctx, id, owned)
	if err != nil {
		return nil, err
	}
	tr := &wallet.Transfer{
		Colored:      coins,
		Funding:      funding,
		Recipients:   recipients,
		ChangeScript: change,
		DustLimit:    t.cfg.Color.DustLimit,
		Fee:          fee,
	}
	built, err := tr.Build()
	if err != nil {
		return nil, err
	}
	clog := klog.WithColor(id.String())
	clog.Info().
		Str("txid", built.Tx.Hash().String()).
		Int("recipients", len(recipients)).
		Msg("Transfer built")
	return built, nil
}
