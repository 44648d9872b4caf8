// Copyright 2025 Certen Protocol
//
// NetworkId identifies a consortium participant: either the shared ledger
// identity (SPConsortium) or a single operator keyed by its PLMN (mcc+mnc).

package primitives

import "fmt"

// NetworkKind discriminates the two NetworkId variants.
type NetworkKind uint8

const (
	NetworkKindConsortium NetworkKind = iota
	NetworkKindOperator
)

// NetworkId is a stable, canonically-encoded participant identifier.
type NetworkId struct {
	Kind NetworkKind
	MCC  string // mobile country code, e.g. "262"
	MNC  string // mobile network code, e.g. "01"
	Name string // human-readable operator name, e.g. "T-Mobile"
}

// SPConsortium is the shared ledger identity used for consortium-level
// transactions (e.g. ValidatorUpdate) that are not attributable to a single
// operator.
var SPConsortium = NetworkId{Kind: NetworkKindConsortium}

// NewOperator constructs an operator NetworkId from its display name and
// PLMN components.
func NewOperator(name, mcc, mnc string) NetworkId {
	return NetworkId{Kind: NetworkKindOperator, Name: name, MCC: mcc, MNC: mnc}
}

// PLMN returns the 5-6 digit PLMN code (mcc+mnc) this operator is known by
// on the ledger; the empty string for the consortium identity.
func (n NetworkId) PLMN() string {
	if n.Kind != NetworkKindOperator {
		return ""
	}
	return n.MCC + n.MNC
}

// String renders a human-readable label, e.g. "Operator(T-Mobile/26201)".
func (n NetworkId) String() string {
	if n.Kind == NetworkKindConsortium {
		return "SPConsortium"
	}
	return fmt.Sprintf("Operator(%s/%s)", n.Name, n.PLMN())
}

// CanonicalBytes produces the deterministic byte encoding used for hashing
// and signatures: a one-byte kind tag followed by length-prefixed PLMN and
// name fields. Field order and prefixing are fixed so two calls on equal
// values always produce identical bytes.
func (n NetworkId) CanonicalBytes() []byte {
	var buf []byte
	buf = append(buf, byte(n.Kind))
	buf = appendLP(buf, []byte(n.PLMN()))
	buf = appendLP(buf, []byte(n.Name))
	return buf
}

// Equal reports whether two NetworkIds denote the same participant.
func (n NetworkId) Equal(other NetworkId) bool {
	return n.Kind == other.Kind && n.MCC == other.MCC && n.MNC == other.MNC
}

// appendLP appends a length-prefixed (4-byte little-endian length) field,
// the canonical variable-length field encoding used across the ledger model.
func appendLP(buf, field []byte) []byte {
	n := uint32(len(field))
	buf = append(buf, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	return append(buf, field...)
}
