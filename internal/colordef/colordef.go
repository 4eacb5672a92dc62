// Package colordef defines color definitions: the published, versioned
// commitment of an issuer to the genesis points of one color.
package colordef

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var (
	ErrVersionOverflow = errors.New("definition version overflow")
	ErrColorMismatch   = errors.New("definition belongs to another color")
	ErrVersionGap      = errors.New("definition version out of sequence")
	ErrMalformed       = errors.New("malformed color definition")
)

var fileMagic = serde.Magic("colordef")

// Definition is one published version of a color: the root of the
// commitment tree holding its genesis points. Definitions are immutable; a
// tree update publishes a new version.
type Definition struct {
	ColorID  types.ColorID `json:"color_id"`
	Version  uint32        `json:"version"`
	Root     types.Hash    `json:"root"`
	Metadata []byte        `json:"metadata,omitempty"`
}

// Publish creates a definition for the given tree root.
func Publish(color types.ColorID, root types.Hash, version uint32, metadata []byte) *Definition {
	return &Definition{
		ColorID:  color,
		Version:  version,
		Root:     root,
		Metadata: append([]byte(nil), metadata...),
	}
}

// PublishTree creates a definition committing to tree.
func PublishTree(color types.ColorID, tree *merbinner.Tree, version uint32, metadata []byte) *Definition {
	return Publish(color, tree.Root(), version, metadata)
}

// DeriveColorID derives a color id from the issuer's identifying bytes and
// the first genesis outpoint, so two issuers never collide by accident.
func DeriveColorID(issuer []byte, genesis types.Outpoint) types.ColorID {
	return types.ColorID(crypto.HashParts([]byte("smartcolors/color"), issuer, genesis.Bytes()))
}

// Supersede publishes the next version with a new root, keeping the color
// id and metadata.
func (d *Definition) Supersede(root types.Hash) (*Definition, error) {
	if d.Version == math.MaxUint32 {
		return nil, fmt.Errorf("%w: color %s", ErrVersionOverflow, d.ColorID)
	}
	return Publish(d.ColorID, root, d.Version+1, d.Metadata), nil
}

// Encode serializes the definition record:
// color_id(32) || version(4) || root(32) || metadata (length-prefixed).
func (d *Definition) Encode() []byte {
	b := make([]byte, 0, 32+4+32+8+len(d.Metadata))
	b = serde.PutHash(b, types.Hash(d.ColorID))
	b = serde.PutUint32(b, d.Version)
	b = serde.PutHash(b, d.Root)
	return serde.PutSlice(b, d.Metadata)
}

// Hash identifies this exact definition version.
func (d *Definition) Hash() types.Hash {
	return crypto.Hash(d.Encode())
}

// Decode parses a definition record.
func Decode(data []byte) (*Definition, error) {
	r := serde.NewReader(data)
	d := &Definition{
		ColorID: types.ColorID(r.Hash()),
		Version: r.Uint32(),
		Root:    r.Hash(),
	}
	if md := r.Slice(); len(md) > 0 {
		d.Metadata = md
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return d, nil
}

// MarshalFile wraps the record in the color definition file envelope.
func (d *Definition) MarshalFile() []byte {
	return serde.Seal(fileMagic, d.Encode())
}

// UnmarshalFile parses a color definition file.
func UnmarshalFile(data []byte) (*Definition, error) {
	payload, err := serde.Open(fileMagic, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Decode(payload)
}

// WriteFile saves the definition to path.
func (d *Definition) WriteFile(path string) error {
	return os.WriteFile(path, d.MarshalFile(), 0644)
}

// ReadFile loads a definition from path.
func ReadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := UnmarshalFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s@v%d", d.ColorID, d.Version)
}
