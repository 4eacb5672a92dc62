package colordb

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Keys inside a color's namespace.
var (
	prefixDef      = []byte("d/") // d/<version> -> definition record
	prefixIssuance = []byte("i/") // i/<version> -> issuance (definition + genesis points)
	prefixOut      = []byte("o/") // o/<outpoint> -> outRecord
	prefixTx       = []byte("x/") // x/<txid> -> txRecord
	prefixProof    = []byte("p/") // p/<outpoint> -> snappy(encoded proof)
)

// Global keys.
var (
	prefixColor = []byte("k/") // k/<color id> -> empty (registry)
	keySeq      = []byte("m/seq")
)

func colorPrefix(color types.ColorID) []byte {
	p := append([]byte("c/"), color[:]...)
	return append(p, '/')
}

// versionKey is big-endian so that versions iterate in order.
func versionKey(prefix []byte, version uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, prefix...), version)
}

func outpointKey(prefix []byte, op types.Outpoint) []byte {
	return append(append([]byte{}, prefix...), op.Bytes()...)
}

func hashKey(prefix []byte, h types.Hash) []byte {
	return append(append([]byte{}, prefix...), h[:]...)
}

// outRecord is a colored outpoint. Producer is zero for genesis points and
// Spender is zero while unspent.
type outRecord struct {
	Quantity uint64
	Producer types.Hash
	Spender  types.Hash
}

func (r *outRecord) encode() []byte {
	b := serde.PutUint64(nil, r.Quantity)
	b = serde.PutHash(b, r.Producer)
	return serde.PutHash(b, r.Spender)
}

func decodeOutRecord(data []byte) (*outRecord, error) {
	rd := serde.NewReader(data)
	r := &outRecord{Quantity: rd.Uint64(), Producer: rd.Hash(), Spender: rd.Hash()}
	if err := rd.Done(); err != nil {
		return nil, fmt.Errorf("output record: %w", err)
	}
	return r, nil
}

func (r *outRecord) unspent() bool {
	return r.Spender.IsZero()
}

type spentInput struct {
	Outpoint types.Outpoint
	Quantity uint64
}

// txRecord is a transaction that moved a color: its raw bytes, the colored
// outpoints it consumed and the outputs it colored.
type txRecord struct {
	Seq      uint64
	Raw      []byte
	Spent    []spentInput
	Produced []uint32
}

func (r *txRecord) encode() []byte {
	b := serde.PutUint64(nil, r.Seq)
	b = serde.PutSlice(b, r.Raw)
	b = serde.PutUint64(b, uint64(len(r.Spent)))
	for _, s := range r.Spent {
		b = append(b, s.Outpoint.Bytes()...)
		b = serde.PutUint64(b, s.Quantity)
	}
	b = serde.PutUint64(b, uint64(len(r.Produced)))
	for _, j := range r.Produced {
		b = serde.PutUint32(b, j)
	}
	return b
}

func decodeTxRecord(data []byte) (*txRecord, error) {
	rd := serde.NewReader(data)
	r := &txRecord{Seq: rd.Uint64(), Raw: rd.Slice()}
	n := rd.Count(uint64(len(data)))
	for i := 0; i < n && rd.Err() == nil; i++ {
		op, err := types.OutpointFromBytes(rd.Fixed(types.OutpointSize))
		if rd.Err() == nil && err != nil {
			return nil, err
		}
		r.Spent = append(r.Spent, spentInput{Outpoint: op, Quantity: rd.Uint64()})
	}
	n = rd.Count(uint64(len(data)))
	for i := 0; i < n && rd.Err() == nil; i++ {
		r.Produced = append(r.Produced, rd.Uint32())
	}
	if err := rd.Done(); err != nil {
		return nil, fmt.Errorf("tx record: %w", err)
	}
	return r, nil
}
