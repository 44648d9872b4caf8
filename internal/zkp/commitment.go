// Copyright 2025 Certen Protocol
//
// Go-native mirrors of the field-element folds the two circuits assert
// in-circuit, so callers outside the circuit (batch sealing, settlement
// proposal bookkeeping) can compute the exact values Define() will later
// check, ahead of ever building a witness.

package zkp

import (
	"math/big"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

var cdrFoldBase = big.NewInt(11)
var claimFoldBase = big.NewInt(13)

// CDRCommitment folds each record's (wholesale, retail) pair together with
// the batch's home/visited PLMNs using the same fixed-coefficient linear
// combination as leafCommitment, reduced modulo the circuit's scalar
// field. The pipeline calls this when sealing a batch so the published
// root is exactly what CDRPrivacyCircuit.Define checks, rather than an
// unrelated hash.
func CDRCommitment(records []RecordCharge, homePLMN, visitedPLMN string) primitives.Hash {
	mod := curve.ScalarField()

	r2 := new(big.Int).Mod(new(big.Int).Mul(cdrFoldBase, cdrFoldBase), mod)
	r3 := new(big.Int).Mod(new(big.Int).Mul(r2, cdrFoldBase), mod)
	homeTerm := new(big.Int).Mod(new(big.Int).Mul(plmnToField(homePLMN), r2), mod)
	visitedTerm := new(big.Int).Mod(new(big.Int).Mul(plmnToField(visitedPLMN), r3), mod)

	root := new(big.Int)
	for _, rec := range records {
		leaf := big.NewInt(rec.Wholesale)
		retailTerm := new(big.Int).Mul(big.NewInt(rec.Retail), cdrFoldBase)
		leaf.Add(leaf, retailTerm)
		leaf.Add(leaf, homeTerm)
		leaf.Add(leaf, visitedTerm)
		leaf.Mod(leaf, mod)
		root.Add(root, leaf)
		root.Mod(root, mod)
	}
	return fieldToHash(root)
}

// claimKeyField mirrors claimCommitment's fold in plain field arithmetic:
// the value a settlement_calculation witness must carry as ClaimKey for
// its own original (creditor, debtor, period, batchRootA, batchRootB).
func claimKeyField(creditor, debtor primitives.NetworkId, periodHash primitives.Hash, batchRootA, batchRootB primitives.Hash) *big.Int {
	mod := curve.ScalarField()

	power := new(big.Int).Set(claimFoldBase)
	result := new(big.Int).Mod(networkIDToField(creditor), mod)

	addTerm := func(v *big.Int) {
		term := new(big.Int).Mod(new(big.Int).Mul(v, power), mod)
		result.Add(result, term)
		result.Mod(result, mod)
		power.Mod(new(big.Int).Mul(power, claimFoldBase), mod)
	}
	addTerm(networkIDToField(debtor))
	addTerm(hashToField(periodHash))
	addTerm(hashToField(batchRootA))
	addTerm(hashToField(batchRootB))

	return result
}

// fieldToHash renders a scalar-field-reduced element as a 32-byte
// big-endian hash, the inverse of hashToField.
func fieldToHash(n *big.Int) primitives.Hash {
	var h primitives.Hash
	n.FillBytes(h[:])
	return h
}
