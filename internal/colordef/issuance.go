package colordef

import (
	"fmt"
	"os"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var issuanceMagic = serde.Magic("issuance")

// GenesisPoint is an outpoint an issuer declares colored.
type GenesisPoint struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Quantity uint64         `json:"quantity"`
	Metadata []byte         `json:"metadata,omitempty"`
}

// Leaf returns the commitment tree leaf for the point.
func (g GenesisPoint) Leaf() merbinner.Leaf {
	return merbinner.NewLeaf(g.Outpoint, g.Quantity, g.Metadata)
}

// BuildTree builds the commitment tree over points.
func BuildTree(points []GenesisPoint) (*merbinner.Tree, error) {
	leaves := make([]merbinner.Leaf, len(points))
	for i, g := range points {
		leaves[i] = g.Leaf()
	}
	return merbinner.Build(leaves)
}

// Issuance is what an issuer hands to trackers: a definition together with
// the genesis points its tree commits to. Verifiers only ever need the
// definition.
type Issuance struct {
	Definition *Definition
	Points     []GenesisPoint
}

// NewIssuance builds the tree over points and publishes it.
func NewIssuance(color types.ColorID, version uint32, metadata []byte, points []GenesisPoint) (*Issuance, *merbinner.Tree, error) {
	tree, err := BuildTree(points)
	if err != nil {
		return nil, nil, err
	}
	return &Issuance{
		Definition: PublishTree(color, tree, version, metadata),
		Points:     points,
	}, tree, nil
}

// Tree rebuilds the commitment tree and checks it against the definition.
func (is *Issuance) Tree() (*merbinner.Tree, error) {
	tree, err := BuildTree(is.Points)
	if err != nil {
		return nil, err
	}
	if tree.Root() != is.Definition.Root {
		return nil, fmt.Errorf("%w: genesis points do not build root %s", ErrMalformed, is.Definition.Root)
	}
	return tree, nil
}

// Encode serializes the issuance: definition record (length-prefixed),
// point count, then outpoint(36) || quantity(8) || metadata per point.
func (is *Issuance) Encode() []byte {
	out := serde.PutSlice(nil, is.Definition.Encode())
	out = serde.PutUint64(out, uint64(len(is.Points)))
	for _, g := range is.Points {
		out = append(out, g.Outpoint.Bytes()...)
		out = serde.PutUint64(out, g.Quantity)
		out = serde.PutSlice(out, g.Metadata)
	}
	return out
}

// DecodeIssuance parses an issuance written by Encode.
func DecodeIssuance(data []byte) (*Issuance, error) {
	r := serde.NewReader(data)
	def, err := Decode(r.Slice())
	if err != nil {
		return nil, err
	}
	n := r.Count(config.MaxGenesisPoints)
	is := &Issuance{Definition: def, Points: make([]GenesisPoint, 0, min(n, 1024))}
	for i := 0; i < n && r.Err() == nil; i++ {
		op, err := types.OutpointFromBytes(r.Fixed(types.OutpointSize))
		if r.Err() != nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		g := GenesisPoint{Outpoint: op, Quantity: r.Uint64()}
		if md := r.Slice(); len(md) > 0 {
			g.Metadata = md
		}
		is.Points = append(is.Points, g)
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return is, nil
}

// WriteFile saves the issuance to path.
func (is *Issuance) WriteFile(path string) error {
	return os.WriteFile(path, serde.Seal(issuanceMagic, is.Encode()), 0644)
}

// ReadIssuanceFile loads an issuance from path.
func ReadIssuanceFile(path string) (*Issuance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	payload, err := serde.Open(issuanceMagic, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrMalformed, err)
	}
	is, err := DecodeIssuance(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return is, nil
}
