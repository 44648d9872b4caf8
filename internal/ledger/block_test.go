// Copyright 2025 Certen Protocol

package ledger

import (
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

func sampleMicroBlock() MicroBlock {
	return MicroBlock{
		Header: MicroHeader{
			Network:     primitives.SPConsortium,
			Version:     1,
			BlockNumber: 5,
			Timestamp:   1000,
			ParentHash:  primitives.SumHash([]byte("parent")),
			Seed:        primitives.SumHash([]byte("seed")),
			StateRoot:   primitives.SumHash([]byte("state")),
		},
		Body: MicroBody{},
	}
}

func TestMicroBlock_HashIsDeterministic(t *testing.T) {
	b := sampleMicroBlock()
	if b.Hash() != b.Hash() {
		t.Fatal("two hash calls on the same block must be identical")
	}
}

func TestMicroBlock_HashChangesWithContent(t *testing.T) {
	b1 := sampleMicroBlock()
	b2 := sampleMicroBlock()
	b2.Header.BlockNumber = 6
	if b1.Hash() == b2.Hash() {
		t.Fatal("distinct blocks must not share a hash")
	}
}

func TestMacroBlock_ValidateCadence(t *testing.T) {
	valid := MacroBlock{Header: MacroHeader{MicroHeader: MicroHeader{BlockNumber: BatchLength}}}
	if err := valid.ValidateCadence(); err != nil {
		t.Fatalf("expected valid cadence, got %v", err)
	}

	invalid := MacroBlock{Header: MacroHeader{MicroHeader: MicroHeader{BlockNumber: BatchLength + 1}}}
	if err := invalid.ValidateCadence(); err == nil {
		t.Fatal("expected non-macro-height block to be rejected")
	}
}

func TestMacroBlock_ElectionHeightOnly(t *testing.T) {
	b := MacroBlock{
		Header: MacroHeader{MicroHeader: MicroHeader{BlockNumber: BatchLength}},
		Body:   MacroBody{Validators: []ValidatorInfo{{}}},
	}
	if err := b.ValidateCadence(); err == nil {
		t.Fatal("expected validators payload off an election height to be rejected")
	}

	b.Header.BlockNumber = ElectionInterval
	if err := b.ValidateCadence(); err != nil {
		t.Fatalf("expected election height to accept validators payload, got %v", err)
	}
}

func TestTransaction_Hash_ChangesWithSignature(t *testing.T) {
	tx := Transaction{
		Sender:    primitives.SumHash([]byte("sender")),
		Recipient: primitives.SumHash([]byte("recipient")),
		Data: SettlementPayload{
			Creditor: primitives.NewOperator("T-Mobile", "262", "01"),
			Debtor:   primitives.NewOperator("Vodafone", "234", "15"),
			Amount:   primitives.Money{Cents: 25000, Currency: "EUR"},
			Period:   "2026-07",
		},
		Signature: []byte("sig-a"),
	}
	other := tx
	other.Signature = []byte("sig-b")

	if tx.Hash() == other.Hash() {
		t.Fatal("changing the signature must change the transaction hash")
	}
}

func TestTransaction_IsValid(t *testing.T) {
	tx := Transaction{Data: SettlementPayload{
		Creditor: primitives.NewOperator("T-Mobile", "262", "01"),
		Debtor:   primitives.NewOperator("Vodafone", "234", "15"),
		Amount:   primitives.Money{Cents: 25000, Currency: "EUR"},
		Period:   "2026-07",
	}}
	if err := tx.IsValid(); err != ErrMissingSignature {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}

	tx.Signature = []byte("sig")
	if err := tx.IsValid(); err != nil {
		t.Fatalf("expected valid transaction, got %v", err)
	}
}

func TestApplyValidatorUpdate_RetireThenReactivate(t *testing.T) {
	v := &ValidatorInfo{Address: primitives.SumHash([]byte("validator-1")), Stake: 100}
	if err := ApplyValidatorUpdate(v, ActionRetire, 42, 0); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if v.IsActive() {
		t.Fatal("expected validator to be inactive after retire")
	}
	if err := ApplyValidatorUpdate(v, ActionReactivate, 50, 0); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if !v.IsActive() {
		t.Fatal("expected validator to be active after reactivate")
	}
}

func TestValidatorSet_HasQuorum(t *testing.T) {
	vs := NewValidatorSet([]ValidatorInfo{
		{Address: primitives.SumHash([]byte("a")), Stake: 40},
		{Address: primitives.SumHash([]byte("b")), Stake: 30},
		{Address: primitives.SumHash([]byte("c")), Stake: 30},
	})
	if vs.HasQuorum(65) {
		t.Fatal("65/100 should not reach two-thirds quorum")
	}
	if !vs.HasQuorum(70) {
		t.Fatal("70/100 should reach two-thirds quorum")
	}
}
