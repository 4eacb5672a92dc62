package wallet

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
)

// Builder errors.
var (
	ErrNoRecipients      = errors.New("no colored recipients")
	ErrTooManyRecipients = errors.New("too many colored outputs")
	ErrNoChangeScript    = errors.New("change script required")
	ErrColoredFunding    = errors.New("funding coin carries color")
	ErrZeroQuantity      = errors.New("recipient quantity must be positive")
	ErrValueOverflow     = errors.New("output values overflow")
)

// Recipient receives a quantity of color.
type Recipient struct {
	Quantity uint64
	PkScript []byte
}

// Transfer describes a colored send. Colored holds coins of a single color;
// Funding holds plain coins used to pay for output values and the fee.
type Transfer struct {
	Colored    []Coin
	Funding    []Coin
	Recipients []Recipient

	// ChangeScript receives both colored and plain change.
	ChangeScript []byte
	// DustLimit is the minimum output value. Zero means config.DefaultDustLimit.
	DustLimit uint64
	// Fee is paid on top of the output values.
	Fee uint64
}

// Built is a constructed, unsigned colored transaction.
type Built struct {
	Tx *tx.Transaction
	// Colored lists the indexes of the colored outputs, recipients first and
	// colored change last. A recipient paid from several coins appears once
	// per coin.
	Colored []int
	// ColoredChange is the quantity returned to ChangeScript.
	ColoredChange uint64
	// Fee is the fee actually paid. It can exceed the requested fee when
	// plain change was below dust or odd.
	Fee uint64
}

// part is a colored output carved from one selected coin.
type part struct {
	coin     int
	quantity uint64
	pkScript []byte
}

// split carves the recipients out of the selected coins in order. Every
// coin's parts add up to exactly its quantity, the remainder going to change.
func split(coins []Coin, recipients []Recipient, change []byte) []part {
	var parts []part
	next, owed := 0, recipients[0].Quantity
	for i, c := range coins {
		left := c.Quantity
		for left > 0 && next < len(recipients) {
			q := min(left, owed)
			parts = append(parts, part{coin: i, quantity: q, pkScript: recipients[next].PkScript})
			left -= q
			owed -= q
			if owed == 0 {
				next++
				if next < len(recipients) {
					owed = recipients[next].Quantity
				}
			}
		}
		if left > 0 {
			parts = append(parts, part{coin: i, quantity: left, pkScript: change})
		}
	}
	return parts
}

// Build assembles the transaction. Colored outputs come first. Each colored
// input marks only the outputs carved from its own coin, so the claims over
// every input's marks add up to exactly the color it brings.
func (t *Transfer) Build() (*Built, error) {
	if len(t.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if len(t.ChangeScript) == 0 {
		return nil, ErrNoChangeScript
	}
	dust := t.DustLimit
	if dust == 0 {
		dust = config.DefaultDustLimit
	}

	var want uint64
	for i, r := range t.Recipients {
		if r.Quantity == 0 {
			return nil, fmt.Errorf("recipient %d: %w", i, ErrZeroQuantity)
		}
		if want > math.MaxUint64-r.Quantity {
			return nil, fmt.Errorf("recipient %d: %w", i, ErrValueOverflow)
		}
		want += r.Quantity
	}

	sel, err := SelectColored(t.Colored, want)
	if err != nil {
		return nil, fmt.Errorf("select colored coins: %w", err)
	}

	parts := split(sel.Inputs, t.Recipients, t.ChangeScript)
	if len(parts) > config.MaxColoredOutputs {
		return nil, fmt.Errorf("%w: %d, max %d", ErrTooManyRecipients, len(parts), config.MaxColoredOutputs)
	}

	b := tx.NewBuilder()
	masks := make([]uint32, len(sel.Inputs))
	var outTotal uint64
	indexes := make([]int, len(parts))
	for j, p := range parts {
		v, err := msbdrop.EncodeAbove(p.quantity, dust)
		if err != nil {
			return nil, fmt.Errorf("colored output %d: %w", j, err)
		}
		if outTotal > math.MaxUint64-v {
			return nil, ErrValueOverflow
		}
		outTotal += v
		b.AddOutput(v, p.pkScript)
		masks[p.coin] |= 1 << j
		indexes[j] = j
	}

	var inTotal uint64
	for i, c := range sel.Inputs {
		b.AddInput(c.Outpoint, masks[i])
		inTotal += c.Value
	}

	need := outTotal
	if need > math.MaxUint64-t.Fee {
		return nil, ErrValueOverflow
	}
	need += t.Fee
	if inTotal < need {
		for _, c := range t.Funding {
			if c.Quantity > 0 {
				return nil, fmt.Errorf("%w: %s", ErrColoredFunding, c.Outpoint)
			}
		}
		fund, err := SelectCoins(t.Funding, need-inTotal)
		if err != nil {
			return nil, fmt.Errorf("select funding coins: %w", err)
		}
		for _, c := range fund.Inputs {
			b.AddInput(c.Outpoint, tx.SequenceFinal)
		}
		inTotal += fund.Total
	}

	// Plain outputs must decode as uncolored, so change is kept even.
	fee := t.Fee
	change := (inTotal - need) &^ 1
	fee += inTotal - need - change
	if change >= dust {
		b.AddOutput(change, t.ChangeScript)
	} else {
		fee += change
	}

	built := &Built{
		Tx:            b.Build(),
		Colored:       indexes,
		ColoredChange: sel.Change,
		Fee:           fee,
	}
	if err := built.Tx.Validate(); err != nil {
		return nil, err
	}

	log.Wallet.Debug().
		Int("inputs", len(built.Tx.Inputs)).
		Int("colored_outputs", len(indexes)).
		Uint64("quantity", want).
		Uint64("color_change", sel.Change).
		Uint64("fee", fee).
		Msg("Built colored transfer")
	return built, nil
}
