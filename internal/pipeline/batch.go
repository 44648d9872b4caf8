// Copyright 2025 Certen Protocol
//
// BCEBatch: a multiset of BCERecords sharing (home, visited, currency,
// period). Grounded on a mutable-accumulator/immutable-sealed-value split
// in pkg/batch/collector.go — an open, mutable accumulator that becomes
// an immutable sealed value once closed.

package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/certen/sp-cdr-settlement/internal/merkle"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
	"github.com/certen/sp-cdr-settlement/internal/zkp"
)

// BatchKey identifies the open-batch slot a record belongs to.
type BatchKey struct {
	HomePLMN string
	VisitedPLMN string
	Currency string
	Period string
}

func keyFor(r BCERecord) BatchKey {
	return BatchKey{HomePLMN: r.HomePLMN, VisitedPLMN: r.VisitedPLMN, Currency: r.Currency, Period: r.Period()}
}

// BatchID is the 8-byte identifier derived from (period, home, visited).
type BatchID [8]byte

func computeBatchID(key BatchKey) BatchID {
	h := primitives.SumHash([]byte(key.Period + "|" + key.HomePLMN + "|" + key.VisitedPLMN))
	var id BatchID
	copy(id[:], h[:8])
	return id
}

func (id BatchID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// openBatch is a mutable, in-progress accumulation of records for one key.
// Exclusively owned by the pipeline until sealed (the protocol "Ownership").
type openBatch struct {
	key BatchKey
	id BatchID
	openedAt time.Time
	records []BCERecord
	seenIDs map[string]struct{}
}

func newOpenBatch(key BatchKey) *openBatch {
	return &openBatch{
		key: key,
		id: computeBatchID(key),
		openedAt: time.Now(),
		seenIDs: make(map[string]struct{}),
	}
}

// add appends r if its record_id hasn't been seen, enforcing the
// idempotence invariant ("process_bce_record with the
// same record_id twice yields one record in the batch"). Returns false if
// the record was a duplicate.
func (b *openBatch) add(r BCERecord) bool {
	if _, ok := b.seenIDs[r.RecordID]; ok {
		return false
	}
	b.seenIDs[r.RecordID] = struct{}{}
	b.records = append(b.records, r)
	return true
}

// BCEBatch is a sealed, immutable batch: sealed batches are never mutated
// again, enforcing the openBatch/BCEBatch ownership invariant.
type BCEBatch struct {
	ID BatchID
	Key BatchKey
	Records []BCERecord
	// MerkleRoot is the zkp.CDRCommitment fold over the batch's charges
	// and PLMNs: the exact value CDRPrivacyCircuit.Define recomputes
	// in-circuit and asserts equal to this public input, so it is what
	// gets published in a BatchAnnouncement and proved against.
	MerkleRoot primitives.Hash
	// LeafRoot is the real Blake2b Merkle-tree root over each record's
	// own hash, independent of the circuit's commitment scheme.
	LeafRoot primitives.Hash
	SealedAt time.Time
}

var ErrEmptyBatch = errors.New("pipeline: cannot seal an empty batch")

func (b *openBatch) seal() (*BCEBatch, error) {
	if len(b.records) == 0 {
		return nil, ErrEmptyBatch
	}
	leaves := make([]primitives.Hash, len(b.records))
	charges := make([]zkp.RecordCharge, len(b.records))
	for i, r := range b.records {
		leaves[i] = r.Hash()
		charges[i] = zkp.RecordCharge{Wholesale: r.WholesaleCharge, Retail: r.RetailCharge}
	}
	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("pipeline: seal batch %s: %w", b.id, err)
	}
	return &BCEBatch{
		ID: b.id,
		Key: b.key,
		Records: append([]BCERecord(nil), b.records...),
		MerkleRoot: zkp.CDRCommitment(charges, b.key.HomePLMN, b.key.VisitedPLMN),
		LeafRoot: tree.Root(),
		SealedAt: time.Now(),
	}, nil
}

// RecordCount is the number of records in the batch.
func (b *BCEBatch) RecordCount() int { return len(b.Records) }

// TotalWholesale sums wholesale_charge across all records.
func (b *BCEBatch) TotalWholesale() int64 {
	var total int64
	for _, r := range b.Records {
		total += r.WholesaleCharge
	}
	return total
}

// TotalRetail sums retail_charge across all records.
func (b *BCEBatch) TotalRetail() int64 {
	var total int64
	for _, r := range b.Records {
		total += r.RetailCharge
	}
	return total
}
