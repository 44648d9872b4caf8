// Copyright 2025 Certen Protocol
//
// Helpers that turn plain integers/hashes into the fixed-width circuit
// assignments CDRPrivacyCircuit and SettlementCalculationCircuit expect.
// Kept separate from circuits.go so the circuit definitions stay a pure
// gnark artifact and this file stays the one place the pipeline and
// settlement packages touch.

package zkp

import (
	"fmt"
	"math/big"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// ErrTooManyRecords is returned when a batch exceeds MaxBatchRecords.
var ErrTooManyRecords = fmt.Errorf("zkp: batch exceeds max %d records per circuit", MaxBatchRecords)

// CDRPrivacyPublicInputs mirrors the circuit's public fields in Go-native
// types, as published alongside a BatchAnnouncement.
type CDRPrivacyPublicInputs struct {
	MerkleRoot     primitives.Hash
	TotalWholesale int64
	TotalRetail    int64
	RecordCount    int
	HomePLMN       string
	VisitedPLMN    string
	Period         string
}

// RecordCharge is the minimal per-record data the cdr_privacy witness
// needs: the two charge amounts.
type RecordCharge struct {
	Wholesale int64
	Retail    int64
}

// plmnToField folds a PLMN string into a field element via its integer
// value (PLMNs are numeric, 5-6 ASCII digits).
func plmnToField(plmn string) frontendVariable {
	n := new(big.Int)
	n.SetString(plmn, 10)
	return n
}

func stringToField(s string) frontendVariable {
	return new(big.Int).SetBytes([]byte(s))
}

func hashToField(h primitives.Hash) frontendVariable {
	return new(big.Int).SetBytes(h[:])
}

// frontendVariable is an alias kept local to this file: gnark accepts any
// value satisfying frontend.Variable's untyped-interface contract, and
// *big.Int is the concrete type assignments are built from.
type frontendVariable = *big.Int

// BuildCDRPrivacyAssignment constructs a full (public+private) assignment
// for proving, padding records up to MaxBatchRecords.
func BuildCDRPrivacyAssignment(pub CDRPrivacyPublicInputs, records []RecordCharge, encryptionKey []byte) (*CDRPrivacyCircuit, error) {
	if len(records) > MaxBatchRecords {
		return nil, ErrTooManyRecords
	}

	c := &CDRPrivacyCircuit{
		MerkleRoot:     hashToField(pub.MerkleRoot),
		TotalWholesale: big.NewInt(pub.TotalWholesale),
		TotalRetail:    big.NewInt(pub.TotalRetail),
		RecordCount:    big.NewInt(int64(pub.RecordCount)),
		HomePLMN:       plmnToField(pub.HomePLMN),
		VisitedPLMN:    plmnToField(pub.VisitedPLMN),
		Period:         stringToField(pub.Period),
	}

	for i := range c.Wholesale {
		c.Wholesale[i] = big.NewInt(0)
		c.Retail[i] = big.NewInt(0)
		c.Active[i] = big.NewInt(0)
	}
	for i, r := range records {
		c.Wholesale[i] = big.NewInt(r.Wholesale)
		c.Retail[i] = big.NewInt(r.Retail)
		c.Active[i] = big.NewInt(1)
	}
	c.EncryptionKey = new(big.Int).SetBytes(encryptionKey)

	return c, nil
}

// BuildCDRPrivacyPublicAssignment builds an assignment carrying only the
// public fields, for verification.
func BuildCDRPrivacyPublicAssignment(pub CDRPrivacyPublicInputs) *CDRPrivacyCircuit {
	return &CDRPrivacyCircuit{
		MerkleRoot:     hashToField(pub.MerkleRoot),
		TotalWholesale: big.NewInt(pub.TotalWholesale),
		TotalRetail:    big.NewInt(pub.TotalRetail),
		RecordCount:    big.NewInt(int64(pub.RecordCount)),
		HomePLMN:       plmnToField(pub.HomePLMN),
		VisitedPLMN:    plmnToField(pub.VisitedPLMN),
		Period:         stringToField(pub.Period),
	}
}

// SettlementPublicInputs mirrors SettlementCalculationCircuit's public
// fields. Period is the period's hash (netp2p.SettlementProposal.PeriodHash)
// rather than the plaintext period string: that hash is all a receiving
// node has on hand to verify against, since the plaintext period never
// travels on the wire.
type SettlementPublicInputs struct {
	Creditor   primitives.NetworkId
	Debtor     primitives.NetworkId
	AmountCents int64
	Period     primitives.Hash
	BatchRootA primitives.Hash
	BatchRootB primitives.Hash
}

func networkIDToField(n primitives.NetworkId) frontendVariable {
	return new(big.Int).SetBytes(n.CanonicalBytes())
}

// BuildSettlementAssignment constructs a full assignment for proving the
// settlement_calculation circuit.
func BuildSettlementAssignment(pub SettlementPublicInputs, batchA, batchB []RecordCharge) (*SettlementCalculationCircuit, error) {
	if len(batchA) > MaxBatchRecords || len(batchB) > MaxBatchRecords {
		return nil, ErrTooManyRecords
	}

	c := &SettlementCalculationCircuit{
		Creditor:   networkIDToField(pub.Creditor),
		Debtor:     networkIDToField(pub.Debtor),
		Amount:     big.NewInt(pub.AmountCents),
		Period:     hashToField(pub.Period),
		BatchRootA: hashToField(pub.BatchRootA),
		BatchRootB: hashToField(pub.BatchRootB),
		ClaimKey:   claimKeyField(pub.Creditor, pub.Debtor, pub.Period, pub.BatchRootA, pub.BatchRootB),
	}

	for i := range c.WholesaleA {
		c.WholesaleA[i] = big.NewInt(0)
		c.ActiveA[i] = big.NewInt(0)
		c.WholesaleB[i] = big.NewInt(0)
		c.ActiveB[i] = big.NewInt(0)
	}
	for i, r := range batchA {
		c.WholesaleA[i] = big.NewInt(r.Wholesale)
		c.ActiveA[i] = big.NewInt(1)
	}
	for i, r := range batchB {
		c.WholesaleB[i] = big.NewInt(r.Wholesale)
		c.ActiveB[i] = big.NewInt(1)
	}

	return c, nil
}

// BuildSettlementPublicAssignment builds an assignment carrying only the
// public fields, for verification. ClaimKey is left unset: it is a private
// witness field, supplied only by the prover and never part of the public
// witness frontend.PublicOnly() extracts.
func BuildSettlementPublicAssignment(pub SettlementPublicInputs) *SettlementCalculationCircuit {
	return &SettlementCalculationCircuit{
		Creditor:   networkIDToField(pub.Creditor),
		Debtor:     networkIDToField(pub.Debtor),
		Amount:     big.NewInt(pub.AmountCents),
		Period:     hashToField(pub.Period),
		BatchRootA: hashToField(pub.BatchRootA),
		BatchRootB: hashToField(pub.BatchRootB),
	}
}
