package kernel

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

func colored(qs ...uint64) []msbdrop.Value {
	out := make([]msbdrop.Value, len(qs))
	for i, q := range qs {
		out[i] = msbdrop.Colored(q)
	}
	return out
}

func mustApply(t *testing.T, inputs []Input, outputs []msbdrop.Value) *Result {
	t.Helper()
	res, err := Apply(inputs, outputs)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	return res
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		inputs    []Input
		outputs   []msbdrop.Value
		want      []uint64
		destroyed uint64
	}{
		{
			name:      "single mark with split claims destroys all",
			inputs:    []Input{{Quantity: 1000, Sequence: 0b01}},
			outputs:   colored(600, 400),
			want:      []uint64{0, 0},
			destroyed: 1000,
		},
		{
			name:    "split across both marked outputs",
			inputs:  []Input{{Quantity: 1000, Sequence: 0b11}},
			outputs: colored(600, 400),
			want:    []uint64{600, 400},
		},
		{
			name:      "empty mask destroys",
			inputs:    []Input{{Quantity: 50, Sequence: 0}},
			outputs:   colored(50),
			want:      []uint64{0},
			destroyed: 50,
		},
		{
			name:    "uncolored input is ignored",
			inputs:  []Input{{Quantity: 0, Sequence: 0b1}, {Quantity: 7, Sequence: 0b10}},
			outputs: colored(99, 7),
			want:    []uint64{0, 7},
		},
		{
			name:    "uncolored output claims nothing",
			inputs:  []Input{{Quantity: 100, Sequence: 0b11}},
			outputs: []msbdrop.Value{msbdrop.Colored(100), msbdrop.Uncolored(5000)},
			want:    []uint64{100, 0},
		},
		{
			name:      "under-claim destroys",
			inputs:    []Input{{Quantity: 100, Sequence: 0b1}},
			outputs:   colored(60),
			want:      []uint64{0},
			destroyed: 100,
		},
		{
			name:      "over-claim destroys",
			inputs:    []Input{{Quantity: 100, Sequence: 0b1}},
			outputs:   colored(160),
			want:      []uint64{0},
			destroyed: 100,
		},
		{
			name:    "bits past the last output are ignored",
			inputs:  []Input{{Quantity: 10, Sequence: 0xffffffff}},
			outputs: colored(4, 6),
			want:    []uint64{4, 6},
		},
		{
			name:      "only unaddressable bits destroy",
			inputs:    []Input{{Quantity: 10, Sequence: 0b100}},
			outputs:   colored(10, 0),
			want:      []uint64{0, 0},
			destroyed: 10,
		},
		{
			name: "claims are checked per input",
			inputs: []Input{
				{Quantity: 300, Sequence: 0b01},
				{Quantity: 700, Sequence: 0b11},
			},
			outputs:   colored(500, 500),
			want:      []uint64{0, 0},
			destroyed: 1000,
		},
		{
			name: "each input settles its own outputs",
			inputs: []Input{
				{Quantity: 300, Sequence: 0b001},
				{Quantity: 700, Sequence: 0b110},
			},
			outputs: colored(300, 400, 300),
			want:    []uint64{300, 400, 300},
		},
		{
			name: "independent routes settle separately",
			inputs: []Input{
				{Quantity: 300, Sequence: 0b001},
				{Quantity: 700, Sequence: 0b110},
			},
			outputs:   colored(300, 100, 100),
			want:      []uint64{300, 0, 0},
			destroyed: 700,
		},
		{
			name: "a valid input cannot carry a partner's claim",
			inputs: []Input{
				{Quantity: 1, Sequence: 0b001},
				{Quantity: 2, Sequence: 0b100},
				{Quantity: 3, Sequence: 0b101},
			},
			outputs:   colored(4, 9, 2),
			want:      []uint64{0, 0, 2},
			destroyed: 4,
		},
		{
			name: "two inputs on one output",
			inputs: []Input{
				{Quantity: 600, Sequence: 0b1},
				{Quantity: 400, Sequence: 0b1},
			},
			outputs:   colored(600),
			want:      []uint64{600},
			destroyed: 400,
		},
		{
			name: "double routing honours the claim once",
			inputs: []Input{
				{Quantity: 600, Sequence: 0b1},
				{Quantity: 600, Sequence: 0b1},
			},
			outputs:   colored(600),
			want:      []uint64{600},
			destroyed: 600,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustApply(t, tt.inputs, tt.outputs)
			if !reflect.DeepEqual(res.Outputs, tt.want) {
				t.Errorf("Outputs = %v, want %v", res.Outputs, tt.want)
			}
			if res.Destroyed != tt.destroyed {
				t.Errorf("Destroyed = %d, want %d", res.Destroyed, tt.destroyed)
			}
		})
	}
}

func TestApply_Routes(t *testing.T) {
	res := mustApply(t, []Input{
		{Quantity: 300, Sequence: 0b001},
		{Quantity: 0, Sequence: 0b001},
		{Quantity: 700, Sequence: 0b110},
		{Quantity: 5, Sequence: 0},
	}, colored(300, 100, 100))

	if len(res.Routes) != 3 {
		t.Fatalf("Routes = %+v, want 3 routes", res.Routes)
	}
	want := []struct {
		input   int
		outputs []int
		claimed uint64
		status  RouteStatus
	}{
		{0, []int{0}, 300, RouteValid},
		{2, []int{1, 2}, 200, RouteDestroyed},
		{3, nil, 0, RouteDestroyed},
	}
	for i, w := range want {
		r := res.Routes[i]
		if r.Input != w.input || !reflect.DeepEqual(r.Outputs, w.outputs) || r.Claimed != w.claimed || r.Status != w.status {
			t.Errorf("route %d = {%d %v %d %s}, want {%d %v %d %s}",
				i, r.Input, r.Outputs, r.Claimed, r.Status, w.input, w.outputs, w.claimed, w.status)
		}
	}
	if res.In != 1005 || res.Out() != 300 {
		t.Errorf("In = %d, Out = %d; want 1005, 300", res.In, res.Out())
	}
}

func TestApply_Overflow(t *testing.T) {
	big := uint64(1) << 63
	_, err := Apply([]Input{{Quantity: big, Sequence: 1}, {Quantity: big, Sequence: 2}}, colored(1, 1))
	if !errors.Is(err, ErrQuantityOverflow) {
		t.Errorf("Apply() error = %v, want ErrQuantityOverflow", err)
	}
}

func TestApply_NoInputs(t *testing.T) {
	res := mustApply(t, nil, colored(5, 6))
	if res.Outputs[0] != 0 || res.Outputs[1] != 0 {
		t.Errorf("color created from nothing: %v", res.Outputs)
	}
}

func randomTx(rng *rand.Rand) ([]Input, []msbdrop.Value) {
	nIn := 1 + rng.Intn(5)
	nOut := 1 + rng.Intn(6)
	inputs := make([]Input, nIn)
	for i := range inputs {
		inputs[i] = Input{Quantity: uint64(rng.Intn(4)) * 10, Sequence: rng.Uint32() & 0x3f}
	}
	outputs := make([]msbdrop.Value, nOut)
	for j := range outputs {
		if rng.Intn(4) == 0 {
			outputs[j] = msbdrop.Uncolored(uint64(rng.Intn(1000)))
		} else {
			outputs[j] = msbdrop.Colored(uint64(rng.Intn(4)) * 10)
		}
	}
	return inputs, outputs
}

// TestApply_Conservation checks over random transactions that color is
// never created, and that nothing is lost exactly when every route is valid
// and no output is reached by more than its claim.
func TestApply_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 2000; iter++ {
		inputs, outputs := randomTx(rng)
		res := mustApply(t, inputs, outputs)
		var in, out uint64
		for _, i := range inputs {
			in += i.Quantity
		}
		for _, q := range res.Outputs {
			out += q
		}
		if out > in {
			t.Fatalf("iter %d: created color: in %d out %d", iter, in, out)
		}
		if out != res.Out() || in != res.In {
			t.Fatalf("iter %d: totals disagree: in %d/%d out %d/%d", iter, in, res.In, out, res.Out())
		}
		exact := true
		routed := make([]uint64, len(outputs))
		for _, r := range res.Routes {
			if r.Status != RouteValid {
				exact = false
				continue
			}
			for _, j := range r.Outputs {
				routed[j] += outputs[j].Quantity()
			}
		}
		for j := range outputs {
			if routed[j] != res.Outputs[j] {
				exact = false
			}
		}
		if (in == out) != exact {
			t.Fatalf("iter %d: in %d out %d but exact=%v", iter, in, out, exact)
		}
	}
}

// TestApply_DroppedInput checks that leaving a colored input out of a
// transaction never raises the color any output holds. A proof that omits
// one of a transaction's colored inputs replays exactly that.
func TestApply_DroppedInput(t *testing.T) {
	// Genesis A=600 and B=400 both mark output 0, which claims 600.
	both := mustApply(t, []Input{{Quantity: 600, Sequence: 1}, {Quantity: 400, Sequence: 1}}, colored(600))
	onlyB := mustApply(t, []Input{{Quantity: 0, Sequence: 1}, {Quantity: 400, Sequence: 1}}, colored(600))
	if onlyB.Outputs[0] > both.Outputs[0] {
		t.Errorf("dropping A raised output 0 from %d to %d", both.Outputs[0], onlyB.Outputs[0])
	}

	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 2000; iter++ {
		inputs, outputs := randomTx(rng)
		full := mustApply(t, inputs, outputs)
		for i := range inputs {
			partial := append([]Input(nil), inputs...)
			partial[i].Quantity = 0
			res := mustApply(t, partial, outputs)
			for j, q := range res.Outputs {
				if q > full.Outputs[j] {
					t.Fatalf("iter %d: dropping input %d raised output %d from %d to %d",
						iter, i, j, full.Outputs[j], q)
				}
			}
		}
	}
}

func TestResult_Colored(t *testing.T) {
	res := mustApply(t, []Input{{Quantity: 10, Sequence: 0b101}}, colored(4, 0, 6))
	txid := types.Hash{0x09}
	color := types.ColorID{0x01}
	got := res.Colored(txid, color)
	want := []ColoredOutput{
		{Outpoint: types.Outpoint{TxID: txid, Index: 0}, Color: color, Quantity: 4},
		{Outpoint: types.Outpoint{TxID: txid, Index: 2}, Color: color, Quantity: 6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Colored() = %+v, want %+v", got, want)
	}
}
