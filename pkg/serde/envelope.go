package serde

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// MagicSize is the length of a file envelope's leading magic.
const MagicSize = 32

// EnvelopeVersion is the only envelope format version written.
const EnvelopeVersion byte = 0

var (
	ErrBadMagic      = errors.New("bad file magic")
	ErrBadVersion    = errors.New("unsupported envelope version")
	ErrBadChecksum   = errors.New("envelope checksum mismatch")
	errShortEnvelope = errors.New("envelope too short")
)

const magicPrefix = "smartcolors/"

// Magic builds the 32 byte magic for an object kind.
func Magic(kind string) [MagicSize]byte {
	var m [MagicSize]byte
	n := copy(m[:], magicPrefix)
	copy(m[n:], kind)
	return m
}

// Seal wraps payload as magic || version || payload || BLAKE3(payload).
func Seal(magic [MagicSize]byte, payload []byte) []byte {
	out := make([]byte, 0, MagicSize+1+len(payload)+types.HashSize)
	out = append(out, magic[:]...)
	out = append(out, EnvelopeVersion)
	out = append(out, payload...)
	sum := crypto.Hash(payload)
	return append(out, sum[:]...)
}

// Open checks an envelope produced by Seal and returns its payload.
func Open(magic [MagicSize]byte, data []byte) ([]byte, error) {
	if len(data) < MagicSize+1+types.HashSize {
		return nil, errShortEnvelope
	}
	if !bytes.Equal(data[:MagicSize], magic[:]) {
		return nil, ErrBadMagic
	}
	if v := data[MagicSize]; v != EnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	payload := data[MagicSize+1 : len(data)-types.HashSize]
	var want types.Hash
	copy(want[:], data[len(data)-types.HashSize:])
	if crypto.Hash(payload) != want {
		return nil, ErrBadChecksum
	}
	return payload, nil
}
