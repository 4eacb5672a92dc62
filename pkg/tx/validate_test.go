package tx

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

func TestValidate(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x01}}

	manyOutputs := NewBuilder().AddInput(op, 0)
	for i := 0; i <= config.MaxTxOutputs; i++ {
		manyOutputs.AddOutput(1, nil)
	}

	tests := []struct {
		name string
		tx   *Transaction
		want error
	}{
		{
			name: "valid",
			tx:   NewBuilder().AddInput(op, 1).AddOutput(3, nil).Build(),
		},
		{
			name: "no inputs",
			tx:   NewBuilder().AddOutput(3, nil).Build(),
			want: ErrNoInputs,
		},
		{
			name: "no outputs",
			tx:   NewBuilder().AddInput(op, 1).Build(),
			want: ErrNoOutputs,
		},
		{
			name: "duplicate input",
			tx:   NewBuilder().AddInput(op, 1).AddInput(op, 2).AddOutput(3, nil).Build(),
			want: ErrDuplicateInput,
		},
		{
			name: "too many outputs",
			tx:   manyOutputs.Build(),
			want: ErrTooManyOutputs,
		},
		{
			name: "value overflow",
			tx:   NewBuilder().AddInput(op, 1).AddOutput(math.MaxUint64, nil).AddOutput(1, nil).Build(),
			want: ErrOutputOverflow,
		},
		{
			name: "oversized script",
			tx:   NewBuilder().AddInput(op, 1).AddOutput(1, make([]byte, config.MaxScriptSize+1)).Build(),
			want: ErrScriptTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTotalOutputValue(t *testing.T) {
	tx := NewBuilder().AddInput(types.Outpoint{}, 0).AddOutput(5, nil).AddOutput(7, nil).Build()
	total, err := tx.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if total != 12 {
		t.Errorf("TotalOutputValue() = %d, want 12", total)
	}
}
