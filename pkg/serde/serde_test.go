package serde

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

func TestReader_RoundTrip(t *testing.T) {
	var b []byte
	b = PutUint64(b, 1<<40+7)
	b = PutUint32(b, 0xdeadbeef)
	b = PutByte(b, 0x7e)
	b = PutBool(b, true)
	b = PutHash(b, types.Hash{0xaa, 0xbb})
	b = PutSlice(b, []byte("metadata"))
	b = PutSlice(b, nil)

	r := NewReader(b)
	if got := r.Uint64(); got != 1<<40+7 {
		t.Errorf("Uint64() = %d", got)
	}
	if got := r.Uint32(); got != 0xdeadbeef {
		t.Errorf("Uint32() = %x", got)
	}
	if got := r.Byte(); got != 0x7e {
		t.Errorf("Byte() = %x", got)
	}
	if !r.Bool() {
		t.Error("Bool() = false")
	}
	if got := r.Hash(); got != (types.Hash{0xaa, 0xbb}) {
		t.Errorf("Hash() = %s", got)
	}
	if got := r.Slice(); !bytes.Equal(got, []byte("metadata")) {
		t.Errorf("Slice() = %q", got)
	}
	if got := r.Slice(); len(got) != 0 {
		t.Errorf("empty Slice() = %q", got)
	}
	if err := r.Done(); err != nil {
		t.Fatalf("Done() error: %v", err)
	}
}

func TestReader_Short(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_ = r.Uint64()
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Fatalf("Err() = %v, want ErrShortBuffer", r.Err())
	}
	// Errors stick.
	if r.Byte() != 0 {
		t.Error("read after failure should return zero")
	}
	if !errors.Is(r.Done(), ErrShortBuffer) {
		t.Error("Done() should report the first error")
	}
}

func TestReader_SliceLimit(t *testing.T) {
	b := PutUint64(nil, MaxSliceLen+1)
	r := NewReader(b)
	if r.Slice() != nil || r.Err() == nil {
		t.Error("oversized slice prefix should fail")
	}
}

func TestReader_Trailing(t *testing.T) {
	r := NewReader([]byte{1, 2})
	r.Byte()
	if err := r.Done(); err == nil {
		t.Error("Done() should fail with trailing bytes")
	}
}

func TestEnvelope(t *testing.T) {
	magic := Magic("test")
	payload := []byte("hello envelope")
	sealed := Seal(magic, payload)

	got, err := Open(magic, sealed)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Open() = %q, want %q", got, payload)
	}

	if _, err := Open(Magic("other"), sealed); !errors.Is(err, ErrBadMagic) {
		t.Errorf("wrong magic error = %v, want ErrBadMagic", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[MagicSize+2] ^= 0xff
	if _, err := Open(magic, tampered); !errors.Is(err, ErrBadChecksum) {
		t.Errorf("tampered error = %v, want ErrBadChecksum", err)
	}

	badVersion := append([]byte(nil), sealed...)
	badVersion[MagicSize] = 9
	if _, err := Open(magic, badVersion); !errors.Is(err, ErrBadVersion) {
		t.Errorf("version error = %v, want ErrBadVersion", err)
	}

	if _, err := Open(magic, sealed[:10]); err == nil {
		t.Error("Open() of truncated data should fail")
	}
}
