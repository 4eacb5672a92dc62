// Package kernel implements the per-transaction color state transition:
// given each input's incoming color quantity and sequence mask, and each
// output's decoded value, it computes the color quantity each output holds.
//
// Each colored input routes its color to the outputs whose bits are set in
// its sequence field. The route is valid only when the quantities claimed by
// those outputs add up exactly to the input's own quantity; otherwise the
// input's color is destroyed. An output then holds its claim only if it is
// colored and valid routes bring it at least that much. Destruction is never
// an error.
package kernel

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// ErrQuantityOverflow is returned when route sums overflow 64 bits. No
// honest transaction can trigger it.
var ErrQuantityOverflow = errors.New("color quantity overflow")

// Input is one transaction input as the kernel sees it.
type Input struct {
	Quantity uint64
	Sequence uint32
}

// RouteStatus tags the outcome of a route.
type RouteStatus uint8

const (
	// RouteValid means the route's claims matched its inputs and were honored.
	RouteValid RouteStatus = iota + 1
	// RouteDestroyed means the route's color was destroyed.
	RouteDestroyed
)

func (s RouteStatus) String() string {
	switch s {
	case RouteValid:
		return "valid"
	case RouteDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("RouteStatus(%d)", uint8(s))
	}
}

// Route is one colored input and the outputs it marks.
type Route struct {
	Input   int    // input index
	Outputs []int  // marked output indexes, ascending; empty for a bare destroy
	In      uint64 // color brought by the input
	Claimed uint64 // colored quantity claimed by the marked outputs
	Status  RouteStatus
}

// Result is the outcome of one transition.
type Result struct {
	// Outputs holds the color quantity of each output.
	Outputs []uint64
	// Routes holds one route per colored input, in input order.
	Routes []Route
	// In is the total color brought by the inputs.
	In uint64
	// Destroyed is the color not held by any output: invalid or empty routes,
	// plus whatever valid routes bring beyond an output's claim.
	Destroyed uint64
}

// Out returns the total color held by the outputs.
func (r *Result) Out() uint64 {
	return r.In - r.Destroyed
}

// Colored lists the outputs of transaction txid holding color.
func (r *Result) Colored(txid types.Hash, color types.ColorID) []ColoredOutput {
	var out []ColoredOutput
	for j, q := range r.Outputs {
		if q > 0 {
			out = append(out, ColoredOutput{
				Outpoint: types.Outpoint{TxID: txid, Index: uint32(j)},
				Color:    color,
				Quantity: q,
			})
		}
	}
	return out
}

// ColoredOutput is an outpoint holding a quantity of one color.
type ColoredOutput struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Color    types.ColorID  `json:"color"`
	Quantity uint64         `json:"quantity"`
}

// outputMask returns the mask of addressable output indexes.
func outputMask(n int) uint32 {
	if n >= config.MaxColoredOutputs {
		return ^uint32(0)
	}
	return uint32(1)<<n - 1
}

// Apply runs the transition. outputs holds the decoded value of each output.
func Apply(inputs []Input, outputs []msbdrop.Value) (*Result, error) {
	res := &Result{Outputs: make([]uint64, len(outputs))}
	valid := outputMask(len(outputs))
	routed := make([]uint64, len(outputs))

	var ok bool
	for i, in := range inputs {
		if in.Quantity == 0 {
			continue
		}
		if res.In, ok = add(res.In, in.Quantity); !ok {
			return nil, fmt.Errorf("%w: input total", ErrQuantityOverflow)
		}

		r := Route{Input: i, In: in.Quantity, Status: RouteDestroyed}
		for m := in.Sequence & valid; m != 0; m &= m - 1 {
			j := bits.TrailingZeros32(m)
			r.Outputs = append(r.Outputs, j)
			if r.Claimed, ok = add(r.Claimed, outputs[j].Quantity()); !ok {
				return nil, fmt.Errorf("%w: claims of input %d", ErrQuantityOverflow, i)
			}
		}
		if len(r.Outputs) > 0 && r.Claimed == r.In {
			r.Status = RouteValid
			for _, j := range r.Outputs {
				if routed[j], ok = add(routed[j], outputs[j].Quantity()); !ok {
					return nil, fmt.Errorf("%w: routed to output %d", ErrQuantityOverflow, j)
				}
			}
		}
		res.Routes = append(res.Routes, r)
	}

	var out uint64
	for j, v := range outputs {
		q := v.Quantity()
		if !v.IsColored() || q == 0 || q > routed[j] {
			continue
		}
		res.Outputs[j] = q
		// out <= sum of valid claims == sum of their inputs <= res.In.
		out += q
	}
	res.Destroyed = res.In - out
	return res, nil
}

func add(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}
