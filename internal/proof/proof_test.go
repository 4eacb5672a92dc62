package proof

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/kernel"
	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var testColor = types.ColorID{0xc0}

func mustEncode(t *testing.T, q uint64) uint64 {
	t.Helper()
	v, err := msbdrop.Encode(q)
	if err != nil {
		t.Fatalf("Encode(%d) error: %v", q, err)
	}
	return v
}

// fixture is a genesis point of 1000 committed in a tree with a few other
// genesis points, and a three transaction chain spending it.
type fixture struct {
	tree    *merbinner.Tree
	def     *colordef.Definition
	genesis types.Outpoint
	tx1     *tx.Transaction // splits 1000 into 600 + 400
	tx2     *tx.Transaction // moves the 600
	tx3     *tx.Transaction // spends the 600 with an empty mask
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{genesis: types.Outpoint{TxID: types.Hash{0xaa}, Index: 1}}
	leaves := []merbinner.Leaf{merbinner.NewLeaf(f.genesis, 1000, []byte("mint"))}
	for i := byte(0); i < 5; i++ {
		leaves = append(leaves, merbinner.NewLeaf(types.Outpoint{TxID: types.Hash{0xbb, i}}, uint64(i)+1, nil))
	}
	var err error
	if f.tree, err = merbinner.Build(leaves); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	f.def = colordef.PublishTree(testColor, f.tree, 1, nil)

	f.tx1 = tx.NewBuilder().
		AddInput(f.genesis, 0b11).
		AddOutput(mustEncode(t, 600), []byte{0x51}).
		AddOutput(mustEncode(t, 400), []byte{0x52}).
		Build()
	f.tx2 = tx.NewBuilder().
		AddInput(f.tx1.Outpoint(0), 0b1).
		AddInput(types.Outpoint{TxID: types.Hash{0xee}}, 0).
		AddOutput(mustEncode(t, 600), []byte{0x53}).
		AddOutput(50000, []byte{0x54}).
		Build()
	f.tx3 = tx.NewBuilder().
		AddInput(f.tx2.Outpoint(0), 0).
		AddOutput(5000, []byte{0x55}).
		Build()
	return f
}

func (f *fixture) proof(t *testing.T, target types.Outpoint, txs ...*tx.Transaction) *Proof {
	t.Helper()
	branch, err := f.tree.Prove(crypto.ColorKey(f.genesis))
	if err != nil {
		t.Fatalf("Prove() error: %v", err)
	}
	return &Proof{
		ColorID: testColor,
		Version: 1,
		Genesis: f.genesis,
		Branch:  branch,
		Txs:     txs,
		Target:  target,
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		proof   *Proof
		want    uint64
		wantErr error
	}{
		{"genesis itself", f.proof(t, f.genesis), 1000, nil},
		{"first hop", f.proof(t, f.tx1.Outpoint(1), f.tx1), 400, nil},
		{"two hops", f.proof(t, f.tx2.Outpoint(0), f.tx1, f.tx2), 600, nil},
		{"uncolored target", f.proof(t, f.tx2.Outpoint(1), f.tx1, f.tx2), 0, ErrDiscontinued},
		{"destroying spend", f.proof(t, f.tx3.Outpoint(0), f.tx1, f.tx2, f.tx3), 0, ErrDiscontinued},
		{"gap in chain", f.proof(t, f.tx2.Outpoint(0), f.tx2), 0, ErrDiscontinued},
		{"genesis target with txs spent", f.proof(t, f.genesis, f.tx1), 0, ErrDiscontinued},
		{"no txs to other target", f.proof(t, f.tx1.Outpoint(0)), 0, ErrDiscontinued},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.proof.Verify(ctx, f.def.Root)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVerify_BadCommitment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.proof(t, f.tx1.Outpoint(0), f.tx1)

	other, err := merbinner.Build([]merbinner.Leaf{merbinner.NewLeaf(f.genesis, 1000, nil)})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if _, err := p.Verify(ctx, other.Root()); !errors.Is(err, ErrBadCommitment) {
		t.Errorf("Verify(other root) error = %v, want ErrBadCommitment", err)
	}

	// Inflating the proven leaf changes the recomputed root.
	for i, n := range p.Branch.Nodes {
		if n.Kind == merbinner.NodeLeaf {
			p.Branch.Nodes[i].Leaf.Quantity = 1_000_000
		}
	}
	if _, err := p.Verify(ctx, f.def.Root); !errors.Is(err, ErrBadCommitment) {
		t.Errorf("Verify(inflated leaf) error = %v, want ErrBadCommitment", err)
	}

	// A genuine branch for another genesis point does not anchor this one.
	otherKey := f.tree.Leaves()[0].Key
	if otherKey == crypto.ColorKey(f.genesis) {
		otherKey = f.tree.Leaves()[1].Key
	}
	q := f.proof(t, f.tx1.Outpoint(0), f.tx1)
	if q.Branch, err = f.tree.Prove(otherKey); err != nil {
		t.Fatalf("Prove() error: %v", err)
	}
	if _, err := q.Verify(ctx, f.def.Root); !errors.Is(err, ErrBadCommitment) {
		t.Errorf("Verify(foreign branch) error = %v, want ErrBadCommitment", err)
	}

	q.Branch = nil
	if _, err := q.Verify(ctx, f.def.Root); !errors.Is(err, ErrMalformed) {
		t.Errorf("Verify(nil branch) error = %v, want ErrMalformed", err)
	}
}

func TestVerify_GenesisUsedOnce(t *testing.T) {
	f := newFixture(t)
	// A second transaction spending the genesis point again gains nothing.
	again := tx.NewBuilder().
		AddInput(f.genesis, 0b1).
		AddOutput(mustEncode(t, 1000), nil).
		Build()
	p := f.proof(t, again.Outpoint(0), f.tx1, again)
	if _, err := p.Verify(context.Background(), f.def.Root); !errors.Is(err, ErrDiscontinued) {
		t.Errorf("Verify() error = %v, want ErrDiscontinued", err)
	}
}

// TestVerify_OmittedInput checks that a proof anchored on one of several
// colored inputs never proves more than replaying the whole transaction with
// every genesis point known.
func TestVerify_OmittedInput(t *testing.T) {
	a := types.Outpoint{TxID: types.Hash{0xa1}}
	b := types.Outpoint{TxID: types.Hash{0xb1}}
	tree, err := merbinner.Build([]merbinner.Leaf{
		merbinner.NewLeaf(a, 600, nil),
		merbinner.NewLeaf(b, 400, nil),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	ctx := context.Background()

	for _, claim := range []uint64{600, 400, 1000} {
		spend := tx.NewBuilder().
			AddInput(a, 0b1).
			AddInput(b, 0b1).
			AddOutput(mustEncode(t, claim), []byte{0x51}).
			Build()
		full, err := kernel.ApplyTx(spend, kernel.TreeGenesis(tree), kernel.Quantities{})
		if err != nil {
			t.Fatalf("ApplyTx() error: %v", err)
		}

		for _, anchor := range []types.Outpoint{a, b} {
			branch, err := tree.Prove(crypto.ColorKey(anchor))
			if err != nil {
				t.Fatalf("Prove() error: %v", err)
			}
			p := &Proof{
				ColorID: testColor,
				Version: 1,
				Genesis: anchor,
				Branch:  branch,
				Txs:     []*tx.Transaction{spend},
				Target:  spend.Outpoint(0),
			}
			got, err := p.Verify(ctx, tree.Root())
			if err != nil && !errors.Is(err, ErrDiscontinued) {
				t.Fatalf("Verify(claim %d, anchor %s) error: %v", claim, anchor, err)
			}
			if got > full.Outputs[0] {
				t.Errorf("claim %d anchored on %s proves %d, full replay gives %d",
					claim, anchor, got, full.Outputs[0])
			}
		}
	}
}

func TestVerify_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := f.proof(t, f.tx2.Outpoint(0), f.tx1, f.tx2)
	if _, err := p.Verify(ctx, f.def.Root); !errors.Is(err, context.Canceled) {
		t.Errorf("Verify() error = %v, want context.Canceled", err)
	}
}

func TestVerifyDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.proof(t, f.tx1.Outpoint(0), f.tx1)

	if q, err := p.VerifyDefinition(ctx, f.def); err != nil || q != 600 {
		t.Fatalf("VerifyDefinition() = %d, %v", q, err)
	}
	next, err := f.def.Supersede(f.def.Root)
	if err != nil {
		t.Fatalf("Supersede() error: %v", err)
	}
	if _, err := p.VerifyDefinition(ctx, next); !errors.Is(err, ErrWrongDefinition) {
		t.Errorf("VerifyDefinition(v2) error = %v, want ErrWrongDefinition", err)
	}
}

type fakeLedger struct {
	confirmed map[types.Hash]bool
	spenders  map[types.Outpoint]types.Hash
}

func (l *fakeLedger) Confirmed(_ context.Context, txid types.Hash) (bool, error) {
	return l.confirmed[txid], nil
}

func (l *fakeLedger) SpenderID(_ context.Context, op types.Outpoint) (types.Hash, bool, error) {
	h, ok := l.spenders[op]
	return h, ok, nil
}

func TestVerifyConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.proof(t, f.tx2.Outpoint(0), f.tx1, f.tx2)

	ledger := &fakeLedger{
		confirmed: map[types.Hash]bool{f.tx1.Hash(): true, f.tx2.Hash(): true},
		spenders: map[types.Outpoint]types.Hash{
			f.genesis:          f.tx1.Hash(),
			f.tx1.Outpoint(0): f.tx2.Hash(),
		},
	}
	if q, err := p.VerifyConfirmed(ctx, f.def, ledger); err != nil || q != 600 {
		t.Fatalf("VerifyConfirmed() = %d, %v", q, err)
	}

	ledger.spenders[f.tx1.Outpoint(0)] = types.Hash{0x99}
	if _, err := p.VerifyConfirmed(ctx, f.def, ledger); !errors.Is(err, ErrUnconfirmed) {
		t.Errorf("VerifyConfirmed(conflict) error = %v, want ErrUnconfirmed", err)
	}

	ledger.spenders[f.tx1.Outpoint(0)] = f.tx2.Hash()
	ledger.confirmed[f.tx2.Hash()] = false
	if _, err := p.VerifyConfirmed(ctx, f.def, ledger); !errors.Is(err, ErrUnconfirmed) {
		t.Errorf("VerifyConfirmed(unconfirmed) error = %v, want ErrUnconfirmed", err)
	}
}

func TestVerifyAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proofs := []*Proof{
		f.proof(t, f.tx1.Outpoint(0), f.tx1),
		f.proof(t, f.tx1.Outpoint(1), f.tx1),
		f.proof(t, f.tx2.Outpoint(0), f.tx1, f.tx2),
	}
	got, err := VerifyAll(ctx, proofs, f.def.Root)
	if err != nil {
		t.Fatalf("VerifyAll() error: %v", err)
	}
	want := []uint64{600, 400, 600}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("VerifyAll()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	proofs = append(proofs, f.proof(t, f.tx3.Outpoint(0), f.tx1, f.tx2, f.tx3))
	if _, err := VerifyAll(ctx, proofs, f.def.Root); !errors.Is(err, ErrDiscontinued) {
		t.Errorf("VerifyAll() error = %v, want ErrDiscontinued", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.proof(t, f.tx2.Outpoint(0), f.tx1, f.tx2)

	got, err := Decode(p.Encode())
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.ColorID != p.ColorID || got.Version != p.Version || got.Genesis != p.Genesis || got.Target != p.Target {
		t.Errorf("Decode() header = %+v", got)
	}
	if len(got.Txs) != 2 || got.Txs[1].Hash() != f.tx2.Hash() {
		t.Fatal("Decode() lost transactions")
	}
	if q, err := got.Verify(ctx, f.def.Root); err != nil || q != 600 {
		t.Errorf("decoded Verify() = %d, %v", q, err)
	}

	file, err := UnmarshalFile(p.MarshalFile())
	if err != nil {
		t.Fatalf("UnmarshalFile() error: %v", err)
	}
	if file.Target != p.Target {
		t.Error("UnmarshalFile() target mismatch")
	}
}

func TestDecode_Malformed(t *testing.T) {
	f := newFixture(t)
	enc := f.proof(t, f.tx1.Outpoint(0), f.tx1).Encode()
	cases := map[string][]byte{
		"empty":     nil,
		"truncated": enc[:len(enc)-1],
		"trailing":  append(append([]byte(nil), enc...), 0),
		"header":    enc[:40],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(data); !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
}
