package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoCoins           = errors.New("no spendable coins")
)

// Coin is an unspent output the wallet can spend.
type Coin struct {
	Outpoint types.Outpoint
	Value    uint64 // raw output value
	Quantity uint64 // color held; 0 for a plain coin
}

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []Coin // Selected coins to spend.
	Total  uint64 // Sum of the selected amounts.
	Change uint64 // Change = Total - target.
}

// SelectCoins chooses plain coins covering target by value.
func SelectCoins(coins []Coin, target uint64) (*CoinSelection, error) {
	return selectBy(coins, target, func(c Coin) uint64 { return c.Value })
}

// SelectColored chooses colored coins covering target by color quantity.
func SelectColored(coins []Coin, target uint64) (*CoinSelection, error) {
	return selectBy(coins, target, func(c Coin) uint64 { return c.Quantity })
}

// selectBy tries two strategies and returns the one leaving less change:
//  1. Single coin: the smallest single coin that covers the target.
//  2. Largest-first accumulation: greedily add the largest coins until the
//     target is met.
func selectBy(coins []Coin, target uint64, amount func(Coin) uint64) (*CoinSelection, error) {
	if len(coins) == 0 {
		return nil, ErrNoCoins
	}
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]Coin, 0, len(coins))
	for _, c := range coins {
		if amount(c) > 0 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCoins
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return amount(candidates[i]) < amount(candidates[j])
	})

	var single *CoinSelection
	for _, c := range candidates {
		if amount(c) >= target {
			single = &CoinSelection{
				Inputs: []Coin{c},
				Total:  amount(c),
				Change: amount(c) - target,
			}
			break // Sorted ascending, first match is smallest.
		}
	}

	var accum *CoinSelection
	var selected []Coin
	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		total += amount(candidates[i])
		if total >= target {
			accum = &CoinSelection{
				Inputs: selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, target)
	}
}
