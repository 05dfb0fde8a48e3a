package models

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
)

// FingerprintBits is the width of a Fingerprint.
const FingerprintBits = 128

// Fingerprint is a perceptual image signature. Word 0 holds the average hash,
// word 1 the difference hash.
type Fingerprint [2]uint64

// Distance returns the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(f[0]^other[0]) + bits.OnesCount64(f[1]^other[1])
}

// Bytes returns the big-endian byte form of the fingerprint.
func (f Fingerprint) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], f[0])
	binary.BigEndian.PutUint64(b[8:], f[1])
	return b
}

// String returns the 32-character hex form.
func (f Fingerprint) String() string {
	b := f.Bytes()
	return hex.EncodeToString(b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	fp, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(raw) != 16 {
		return Fingerprint{}, fmt.Errorf("parse fingerprint: expected 16 bytes, got %d", len(raw))
	}
	return Fingerprint{
		binary.BigEndian.Uint64(raw[:8]),
		binary.BigEndian.Uint64(raw[8:]),
	}, nil
}
