package proof

import (
	"fmt"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/tx"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var fileMagic = serde.Magic("colorproof")

// Encode serializes the proof:
//
//	color_id(32) || version(4) || genesis(36) || branch ||
//	tx_count(8) || { raw tx (length-prefixed) }* || target(36)
//
// Transactions use the base ledger's own serialization.
func (p *Proof) Encode() []byte {
	out := serde.PutHash(nil, types.Hash(p.ColorID))
	out = serde.PutUint32(out, p.Version)
	out = append(out, p.Genesis.Bytes()...)
	branch := p.Branch
	if branch == nil {
		branch = &merbinner.Branch{}
	}
	out = branch.AppendTo(out)
	out = serde.PutUint64(out, uint64(len(p.Txs)))
	for _, t := range p.Txs {
		out = serde.PutSlice(out, t.Bytes())
	}
	return append(out, p.Target.Bytes()...)
}

// Decode parses a proof written by Encode.
func Decode(data []byte) (*Proof, error) {
	r := serde.NewReader(data)
	p := &Proof{
		ColorID: types.ColorID(r.Hash()),
		Version: r.Uint32(),
	}
	var err error
	if p.Genesis, err = readOutpoint(r); err != nil {
		return nil, err
	}
	if p.Branch, err = merbinner.ReadBranch(r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	n := r.Count(config.MaxProofTxs)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	p.Txs = make([]*tx.Transaction, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		raw := r.Slice()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: tx %d: %w", ErrMalformed, i, err)
		}
		t, err := tx.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: tx %d: %w", ErrMalformed, i, err)
		}
		p.Txs = append(p.Txs, t)
	}
	if p.Target, err = readOutpoint(r); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return p, nil
}

func readOutpoint(r *serde.Reader) (types.Outpoint, error) {
	b := r.Fixed(types.OutpointSize)
	if err := r.Err(); err != nil {
		return types.Outpoint{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return types.OutpointFromBytes(b)
}

// MarshalFile wraps the encoded proof in the proof file envelope.
func (p *Proof) MarshalFile() []byte {
	return serde.Seal(fileMagic, p.Encode())
}

// UnmarshalFile parses a proof file.
func UnmarshalFile(data []byte) (*Proof, error) {
	payload, err := serde.Open(fileMagic, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Decode(payload)
}
