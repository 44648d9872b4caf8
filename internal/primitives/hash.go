// Copyright 2025 Certen Protocol
//
// Hash is the canonical 32-byte digest used throughout the settlement
// network for blocks, transactions, and Merkle commitments.

package primitives

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the width of a Hash in bytes.
const HashSize = 32

// ErrInvalidHashLength is returned when decoding a hash of the wrong width.
var ErrInvalidHashLength = errors.New("primitives: hash must be 32 bytes")

// Hash is a fixed-width Blake2b digest. The zero value is the all-zero hash.
type Hash [HashSize]byte

// ZeroHash is the designated zero value.
var ZeroHash = Hash{}

// SumHash hashes data with Blake2b-256 and returns the digest.
func SumHash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// SumHashConcat hashes the concatenation of data without allocating an
// intermediate slice for single-part inputs.
func SumHashConcat(parts ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes returns a copy of the hash's bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// Less defines a total order over hashes, used for deterministic fork
// tie-breaks via the block seed (lower digest wins).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// HashFromBytes copies b into a Hash, requiring an exact 32-byte length.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != HashSize {
		return Hash{}, ErrInvalidHashLength
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MarshalJSON implements json.Marshaler as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.Hex() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler from a hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return ErrInvalidHashLength
	}
	parsed, err := HashFromHex(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
