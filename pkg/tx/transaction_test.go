package tx

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

func testTx() *Transaction {
	return NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, 0b11).
		AddInput(types.Outpoint{TxID: types.Hash{0x02}, Index: 5}, SequenceFinal).
		AddOutput(3249, []byte{0x51}).
		AddOutput(math.MaxUint64, []byte{0x52}).
		SetLockTime(100).
		Build()
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	tx := testTx()
	h1 := tx.Hash()
	h2 := tx.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithSequence(t *testing.T) {
	tx1 := testTx()
	tx2 := testTx()
	tx2.Inputs[0].Sequence = 0

	if tx1.Hash() == tx2.Hash() {
		t.Error("sequence is part of the transaction id")
	}
}

func TestTransaction_WireRoundTrip(t *testing.T) {
	tx := testTx()
	raw := tx.Bytes()

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !reflect.DeepEqual(decoded.Inputs[0].PrevOut, tx.Inputs[0].PrevOut) {
		t.Errorf("prevout = %v, want %v", decoded.Inputs[0].PrevOut, tx.Inputs[0].PrevOut)
	}
	if decoded.Inputs[0].Sequence != 0b11 {
		t.Errorf("sequence = %x, want 3", decoded.Inputs[0].Sequence)
	}
	// The full 64-bit value survives the signed wire field.
	if decoded.Outputs[1].Value != math.MaxUint64 {
		t.Errorf("value = %d, want MaxUint64", decoded.Outputs[1].Value)
	}
	if decoded.LockTime != 100 || decoded.Version != 2 {
		t.Errorf("header = v%d lock %d", decoded.Version, decoded.LockTime)
	}
	if decoded.Hash() != tx.Hash() {
		t.Error("decoded transaction hashes differently")
	}
}

func TestDecode_Malformed(t *testing.T) {
	raw := testTx().Bytes()
	for _, data := range [][]byte{nil, {0x01}, raw[:len(raw)-3]} {
		if _, err := Decode(data); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%x) error = %v, want ErrMalformed", data, err)
		}
	}
}

func TestTransaction_Outpoint(t *testing.T) {
	tx := testTx()
	op := tx.Outpoint(1)
	if op.TxID != tx.Hash() || op.Index != 1 {
		t.Errorf("Outpoint(1) = %v", op)
	}
	if got := tx.Spends(types.Outpoint{TxID: types.Hash{0x02}, Index: 5}); got != 1 {
		t.Errorf("Spends() = %d, want 1", got)
	}
	if got := tx.Spends(op); got != -1 {
		t.Errorf("Spends() of own output = %d, want -1", got)
	}
}
