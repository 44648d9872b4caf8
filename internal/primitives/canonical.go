// Copyright 2025 Certen Protocol
//
// Canonical byte encoding helpers shared by every entity that is hashed,
// signed, or persisted. One fixed layout — little-endian integers,
// length-prefixed variable fields — is reused for network transport,
// on-disk storage, and hashing so that two independent encodings of the
// same value always produce identical bytes.

package primitives

import "encoding/binary"

// AppendUint64 appends a little-endian uint64.
func AppendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// AppendUint32 appends a little-endian uint32.
func AppendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// AppendInt64 appends a little-endian int64.
func AppendInt64(buf []byte, v int64) []byte {
	return AppendUint64(buf, uint64(v))
}

// AppendBytesLP appends a length-prefixed byte slice (4-byte LE length).
func AppendBytesLP(buf, field []byte) []byte {
	return appendLP(buf, field)
}

// AppendStringLP appends a length-prefixed string (4-byte LE length).
func AppendStringLP(buf []byte, s string) []byte {
	return appendLP(buf, []byte(s))
}
