// Copyright 2025 Certen Protocol
//
// Block model: MicroBlock (one per BLOCK_TIME) and MacroBlock (checkpoint
// every BATCH_LENGTH blocks, election every ElectionInterval blocks).
// Hashing is deterministic canonical serialization + Blake2b, grounded on
// the same hash-the-canonical-encoding approach as primitives.Hash and
// a height-and-hash-chained block model.

package ledger

import (
	"errors"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// Block is implemented by both MicroBlock and MacroBlock.
type Block interface {
	Hash() primitives.Hash
	BlockNumber() uint64
	Timestamp() uint64
}

// MicroHeader carries the per-block metadata common to every block.
type MicroHeader struct {
	Network     primitives.NetworkId
	Version     uint8
	BlockNumber uint64
	Timestamp   uint64 // milliseconds since epoch
	ParentHash  primitives.Hash
	Seed        primitives.Hash
	ExtraData   []byte
	StateRoot   primitives.Hash
	BodyRoot    primitives.Hash
	HistoryRoot primitives.Hash
}

func (h MicroHeader) canonicalBytes() []byte {
	buf := append([]byte(nil), h.Network.CanonicalBytes()...)
	buf = append(buf, h.Version)
	buf = primitives.AppendUint64(buf, h.BlockNumber)
	buf = primitives.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.Seed[:]...)
	buf = primitives.AppendBytesLP(buf, h.ExtraData)
	buf = append(buf, h.StateRoot[:]...)
	buf = append(buf, h.BodyRoot[:]...)
	buf = append(buf, h.HistoryRoot[:]...)
	return buf
}

// MicroBody carries the block's transactions.
type MicroBody struct {
	Transactions []Transaction
}

func (b MicroBody) root() primitives.Hash {
	buf := primitives.AppendUint64(nil, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		h := tx.Hash()
		buf = append(buf, h[:]...)
	}
	return primitives.SumHash(buf)
}

// MicroBlock is a regular, non-checkpoint block.
type MicroBlock struct {
	Header MicroHeader
	Body   MicroBody
}

// Hash is the deterministic digest of the block: canonical header bytes
// concatenated with the body root, hashed with Blake2b. Two independent
// calls on an unchanged block return bit-identical results.
func (b MicroBlock) Hash() primitives.Hash {
	root := b.Body.root()
	buf := append(b.Header.canonicalBytes(), root[:]...)
	return primitives.SumHash(buf)
}

func (b MicroBlock) BlockNumber() uint64 { return b.Header.BlockNumber }
func (b MicroBlock) Timestamp() uint64   { return b.Header.Timestamp }

// MacroHeader extends MicroHeader with the fields specific to checkpoint
// and election blocks.
type MacroHeader struct {
	MicroHeader
	Round               uint32
	ParentElectionHash  primitives.Hash
}

func (h MacroHeader) canonicalBytes() []byte {
	buf := h.MicroHeader.canonicalBytes()
	buf = primitives.AppendUint32(buf, h.Round)
	buf = append(buf, h.ParentElectionHash[:]...)
	return buf
}

// MacroBody carries a macro block's transactions plus the optional
// validator-set rotation payload, present only at election heights.
type MacroBody struct {
	Transactions  []Transaction
	Validators    []ValidatorInfo // nil unless this is an election block
	LostRewardSet []primitives.Hash
	DisabledSet   []primitives.Hash
}

func (b MacroBody) root() primitives.Hash {
	buf := primitives.AppendUint64(nil, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		h := tx.Hash()
		buf = append(buf, h[:]...)
	}
	buf = primitives.AppendUint64(buf, uint64(len(b.Validators)))
	for _, v := range b.Validators {
		buf = append(buf, v.CanonicalBytes()...)
	}
	buf = primitives.AppendUint64(buf, uint64(len(b.LostRewardSet)))
	for _, h := range b.LostRewardSet {
		buf = append(buf, h[:]...)
	}
	buf = primitives.AppendUint64(buf, uint64(len(b.DisabledSet)))
	for _, h := range b.DisabledSet {
		buf = append(buf, h[:]...)
	}
	return primitives.SumHash(buf)
}

// MacroBlock is a checkpoint block, carrying a validator-set rotation at
// election heights.
type MacroBlock struct {
	Header MacroHeader
	Body   MacroBody
}

// Hash is the deterministic digest of the macro block.
func (b MacroBlock) Hash() primitives.Hash {
	root := b.Body.root()
	buf := append(b.Header.canonicalBytes(), root[:]...)
	return primitives.SumHash(buf)
}

func (b MacroBlock) BlockNumber() uint64 { return b.Header.BlockNumber }
func (b MacroBlock) Timestamp() uint64   { return b.Header.Timestamp }

// IsElection reports whether this macro block carries a validator-set
// rotation.
func (b MacroBlock) IsElection() bool { return b.Body.Validators != nil }

var (
	ErrNotMacroHeight       = errors.New("ledger: block_number is not a macro checkpoint height")
	ErrElectionHeightOnly   = errors.New("ledger: validators payload only allowed at election heights")
)

// ValidateCadence checks the macro-block cadence invariants from the
// policy constants: every macro block falls on a BatchLength boundary, and
// only an ElectionInterval boundary may carry a non-nil validator set.
func (b MacroBlock) ValidateCadence() error {
	if !IsMacroHeight(b.Header.BlockNumber) {
		return fmt.Errorf("%w: block %d", ErrNotMacroHeight, b.Header.BlockNumber)
	}
	if b.IsElection() && !IsElectionHeight(b.Header.BlockNumber) {
		return fmt.Errorf("%w: block %d", ErrElectionHeightOnly, b.Header.BlockNumber)
	}
	return nil
}

// SeedTiebreak returns true if a's seed wins the canonical fork-head
// tie-break against b (lower digest wins), used when two blocks share a
// block_number before consensus finality settles the fork.
func SeedTiebreak(a, b primitives.Hash) bool {
	return a.Less(b)
}
