// Copyright 2025 Certen Protocol

package settlement

import (
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/netp2p"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
	"github.com/certen/sp-cdr-settlement/internal/zkp"
)

func newTestHarness(t *testing.T) *zkp.Harness {
	t.Helper()
	dir := t.TempDir()
	if _, err := zkp.RunCeremony(dir, zkp.CircuitSettlementCalculation); err != nil {
		t.Fatalf("run ceremony: %v", err)
	}
	h := zkp.NewHarness(dir)
	if err := h.LoadKeys(zkp.CircuitSettlementCalculation); err != nil {
		t.Fatalf("load keys: %v", err)
	}
	return h
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, chan netp2p.Command, chan ledger.Transaction) {
	t.Helper()
	netCmd := make(chan netp2p.Command, 16)
	txOut := make(chan ledger.Transaction, 16)
	c := NewCoordinator(cfg, newTestHarness(t), netCmd, txOut)
	return c, netCmd, txOut
}

var (
	tmobile = primitives.NewOperator("T-Mobile", "262", "01")
	vodafone = primitives.NewOperator("Vodafone", "234", "15")
	orange = primitives.NewOperator("Orange", "208", "01")
)

// TestHappyPath_AutoAcceptFinalizesSettlement covers acceptance scenario 1:
// a proposal at or below the auto-accept threshold is accepted without
// manual review and produces a Settlement transaction on the proposer side.
func TestHappyPath_AutoAcceptFinalizesSettlement(t *testing.T) {
	cfg := Config{Own: tmobile, SettlementThresholdCents: 1000, AutoAcceptThresholdCents: 50000}
	proposer, proposerNet, proposerTx := newTestCoordinator(t, cfg)

	rootA := primitives.SumHash([]byte("tmobile-batch"))
	rootB := primitives.SumHash([]byte("vodafone-batch"))
	amount := primitives.Money{Cents: 25000, Currency: "EUR"}
	batchA := []zkp.RecordCharge{{Wholesale: 25000}}

	p, err := proposer.ProposeSettlement(vodafone, amount, "2026-07", rootA, rootB, batchA, nil, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if p.Status != StatusProposalSent {
		t.Fatalf("expected ProposalSent, got %v", p.Status)
	}
	drainCommand(t, proposerNet) // the gossiped SettlementProposal

	receiverCfg := Config{Own: vodafone, SettlementThresholdCents: 1000, AutoAcceptThresholdCents: 50000}
	receiver, receiverNet, _ := newTestCoordinator(t, receiverCfg)

	msg := netp2p.SettlementProposal{
		Creditor: tmobile,
		Debtor: vodafone,
		AmountCents: amount.Cents,
		Currency: amount.Currency,
		PeriodHash: primitives.SumHash([]byte("2026-07")),
		Nonce: 1,
		Proof: p.Proof,
	}
	_, decision, err := receiver.HandleProposal(msg, rootA, rootB)
	if err != nil {
		t.Fatalf("handle proposal: %v", err)
	}
	if !decision.Accept {
		t.Fatalf("expected auto-accept, got reject reason %q", decision.Reason)
	}
	drainCommand(t, receiverNet) // the gossiped SettlementAcceptance

	acc := netp2p.SettlementAcceptance{ProposalHash: p.Hash}
	if err := proposer.HandleAcceptance(acc); err != nil {
		t.Fatalf("handle acceptance: %v", err)
	}

	select {
	case tx := <-proposerTx:
		sp, ok := tx.Data.(ledger.SettlementPayload)
		if !ok {
			t.Fatalf("expected SettlementPayload, got %T", tx.Data)
		}
		if sp.Amount.Cents != 25000 {
			t.Fatalf("expected 25000 cents, got %d", sp.Amount.Cents)
		}
	default:
		t.Fatal("expected a Settlement transaction to be emitted")
	}

	got, ok := proposer.Get(p.Hash)
	if !ok || got.Status != StatusAccepted {
		t.Fatalf("expected proposal recorded as Accepted, got %+v", got)
	}
}

// TestBelowThreshold_RejectedWithoutTransaction covers acceptance scenario 2.
func TestBelowThreshold_RejectedWithoutTransaction(t *testing.T) {
	cfg := Config{Own: vodafone, SettlementThresholdCents: 1000, AutoAcceptThresholdCents: 50000}
	receiver, receiverNet, _ := newTestCoordinator(t, cfg)

	harness := newTestHarness(t)
	pub := zkp.SettlementPublicInputs{Creditor: tmobile, Debtor: vodafone, AmountCents: 500, Period: primitives.SumHash([]byte("2026-07"))}
	assignment, err := zkp.BuildSettlementAssignment(pub, []zkp.RecordCharge{{Wholesale: 500}}, nil)
	if err != nil {
		t.Fatalf("build assignment: %v", err)
	}
	proof, err := harness.Prove(zkp.CircuitSettlementCalculation, assignment)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	msg := netp2p.SettlementProposal{
		Creditor: tmobile,
		Debtor: vodafone,
		AmountCents: 500,
		Currency: "EUR",
		PeriodHash: primitives.SumHash([]byte("2026-07")),
		Nonce: 1,
		Proof: proof,
	}
	_, decision, err := receiver.HandleProposal(msg, primitives.Hash{}, primitives.Hash{})
	if err != nil {
		t.Fatalf("handle proposal: %v", err)
	}
	if decision.Accept || decision.Reason != "below_threshold" {
		t.Fatalf("expected below_threshold rejection, got accept=%v reason=%q", decision.Accept, decision.Reason)
	}
	drainCommand(t, receiverNet)
}

// TestBadProof_RejectedAndNoSettlementRecorded covers acceptance scenario 3.
func TestBadProof_RejectedAndNoSettlementRecorded(t *testing.T) {
	cfg := Config{Own: vodafone, SettlementThresholdCents: 1000, AutoAcceptThresholdCents: 50000}
	receiver, receiverNet, _ := newTestCoordinator(t, cfg)

	msg := netp2p.SettlementProposal{
		Creditor: tmobile,
		Debtor: vodafone,
		AmountCents: 25000,
		Currency: "EUR",
		PeriodHash: primitives.SumHash([]byte("2026-07")),
		Nonce: 1,
		Proof: []byte("not-a-real-proof"),
	}
	_, decision, err := receiver.HandleProposal(msg, primitives.Hash{}, primitives.Hash{})
	if err == nil {
		t.Fatalf("expected a deserialization error for a malformed proof")
	}
	if decision.Accept {
		t.Fatal("expected reject on malformed proof")
	}
	drainCommand(t, receiverNet)
}

// TestReplayedNonce_Rejected covers the nonce replay-prevention invariant
// ("replaying a Settlement transaction is rejected by nonce").
func TestReplayedNonce_Rejected(t *testing.T) {
	cfg := Config{Own: vodafone, SettlementThresholdCents: 1000, AutoAcceptThresholdCents: 50000}
	receiver, receiverNet, _ := newTestCoordinator(t, cfg)

	harness := newTestHarness(t)
	pub := zkp.SettlementPublicInputs{Creditor: tmobile, Debtor: vodafone, AmountCents: 25000, Period: primitives.SumHash([]byte("2026-07"))}
	assignment, err := zkp.BuildSettlementAssignment(pub, []zkp.RecordCharge{{Wholesale: 25000}}, nil)
	if err != nil {
		t.Fatalf("build assignment: %v", err)
	}
	proof, err := harness.Prove(zkp.CircuitSettlementCalculation, assignment)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	msg := netp2p.SettlementProposal{
		Creditor: tmobile, Debtor: vodafone, AmountCents: 25000, Currency: "EUR",
		PeriodHash: primitives.SumHash([]byte("2026-07")), Nonce: 7, Proof: proof,
	}
	if _, _, err := receiver.HandleProposal(msg, primitives.Hash{}, primitives.Hash{}); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	drainCommand(t, receiverNet)

	_, decision, err := receiver.HandleProposal(msg, primitives.Hash{}, primitives.Hash{})
	if err != nil {
		t.Fatalf("replay handle: %v", err)
	}
	if decision.Accept || decision.Reason != "replayed_nonce" {
		t.Fatalf("expected replayed_nonce rejection, got accept=%v reason=%q", decision.Accept, decision.Reason)
	}
}

// TestHandleProposal_RejectsSubstitutedClaim verifies that a proof built
// for one (creditor, debtor, period) cannot be replayed by re-wrapping it
// in a SettlementProposal naming a different debtor.
func TestHandleProposal_RejectsSubstitutedClaim(t *testing.T) {
	cfg := Config{Own: vodafone, SettlementThresholdCents: 1000, AutoAcceptThresholdCents: 50000}
	receiver, receiverNet, _ := newTestCoordinator(t, cfg)

	harness := newTestHarness(t)
	pub := zkp.SettlementPublicInputs{Creditor: tmobile, Debtor: vodafone, AmountCents: 25000, Period: primitives.SumHash([]byte("2026-07"))}
	assignment, err := zkp.BuildSettlementAssignment(pub, []zkp.RecordCharge{{Wholesale: 25000}}, nil)
	if err != nil {
		t.Fatalf("build assignment: %v", err)
	}
	proof, err := harness.Prove(zkp.CircuitSettlementCalculation, assignment)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	msg := netp2p.SettlementProposal{
		Creditor: tmobile, Debtor: orange, AmountCents: 25000, Currency: "EUR",
		PeriodHash: primitives.SumHash([]byte("2026-07")), Nonce: 1, Proof: proof,
	}
	_, decision, err := receiver.HandleProposal(msg, primitives.Hash{}, primitives.Hash{})
	if err != nil {
		t.Fatalf("handle proposal: %v", err)
	}
	if decision.Accept || decision.Reason != "proof_verification_failed" {
		t.Fatalf("expected proof_verification_failed for a substituted debtor, got accept=%v reason=%q", decision.Accept, decision.Reason)
	}
	drainCommand(t, receiverNet)
}

// TestTriangularNetting_AllZeroVectorSupersedesWithoutNewTransactions
// covers acceptance scenario 4.
func TestTriangularNetting_AllZeroVectorSupersedesWithoutNewTransactions(t *testing.T) {
	cfg := Config{Own: tmobile, EnableTriangularNetting: true}
	c, netCmd, txOut := newTestCoordinator(t, cfg)

	participants := []primitives.NetworkId{tmobile, vodafone, orange}
	netVector := []int64{0, 0, 0}
	supersedes := []primitives.Hash{primitives.SumHash([]byte("a-b")), primitives.SumHash([]byte("b-c")), primitives.SumHash([]byte("c-a"))}
	for _, h := range supersedes {
		c.proposals[h] = &Proposal{Hash: h, Status: StatusAccepted}
	}

	nettingH, err := c.ProposeNetting(participants, netVector, "EUR", "2026-07", supersedes)
	if err != nil {
		t.Fatalf("propose netting: %v", err)
	}
	drainCommand(t, netCmd)

	for i := range participants {
		finalized, err := c.HandleNettingSignature(nettingH, i, []byte("sig"))
		if err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		if i < len(participants)-1 && finalized {
			t.Fatalf("should not finalize before all %d signatures collected", len(participants))
		}
		if i == len(participants)-1 && !finalized {
			t.Fatal("expected finalization on the last signature")
		}
	}

	select {
	case tx := <-txOut:
		t.Fatalf("expected zero settlement transactions for an all-zero net vector, got %+v", tx)
	default:
	}

	for _, h := range supersedes {
		p, ok := c.Get(h)
		if !ok || p.Status != StatusSuperseded {
			t.Fatalf("expected %s marked Superseded, got %+v", h.Hex(), p)
		}
	}
}

// TestTriangularNetting_NonZeroVectorRealizesNetPositions covers the
// interesting case scenario 4 also calls out: a non-trivial net reducing
// bilaterals between three participants, rather than a perfectly balanced
// all-zero vector.
func TestTriangularNetting_NonZeroVectorRealizesNetPositions(t *testing.T) {
	cfg := Config{Own: tmobile, EnableTriangularNetting: true}
	c, netCmd, txOut := newTestCoordinator(t, cfg)

	participants := []primitives.NetworkId{tmobile, vodafone, orange}
	netVector := []int64{10, -5, -5}
	supersedes := []primitives.Hash{primitives.SumHash([]byte("a-b")), primitives.SumHash([]byte("b-c"))}

	nettingH, err := c.ProposeNetting(participants, netVector, "EUR", "2026-07", supersedes)
	if err != nil {
		t.Fatalf("propose netting: %v", err)
	}
	drainCommand(t, netCmd)

	for i := range participants {
		if _, err := c.HandleNettingSignature(nettingH, i, []byte("sig")); err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
	}

	realized := map[primitives.NetworkId]int64{}
	for len(realized) < len(participants) {
		select {
		case tx := <-txOut:
			payload, ok := tx.Data.(ledger.SettlementPayload)
			if !ok {
				t.Fatalf("expected a SettlementPayload, got %T", tx.Data)
			}
			if err := payload.Validate(); err != nil {
				t.Fatalf("invalid settlement payload: %v", err)
			}
			if payload.Amount.Currency != "EUR" {
				t.Fatalf("expected currency EUR, got %q", payload.Amount.Currency)
			}
			if payload.Period != "2026-07" {
				t.Fatalf("expected period 2026-07, got %q", payload.Period)
			}
			realized[payload.Creditor] += payload.Amount.Cents
			realized[payload.Debtor] -= payload.Amount.Cents
		default:
			t.Fatal("expected more settlement transactions")
		}
	}

	for i, p := range participants {
		if got := realized[p]; got != netVector[i] {
			t.Fatalf("participant %d: expected net %d, got %d", i, netVector[i], got)
		}
	}
}

func TestValidateNetVector_RejectsUnbalancedOrTooFew(t *testing.T) {
	if err := validateNetVector([]int64{1, -1}); err != ErrNettingTooFewParticipants {
		t.Fatalf("expected ErrNettingTooFewParticipants, got %v", err)
	}
	if err := validateNetVector([]int64{10, -5, -4}); err != ErrNettingVectorUnbalanced {
		t.Fatalf("expected ErrNettingVectorUnbalanced, got %v", err)
	}
	if err := validateNetVector([]int64{10, -5, -5}); err != nil {
		t.Fatalf("expected a balanced vector to validate, got %v", err)
	}
}

func drainCommand(t *testing.T, ch chan netp2p.Command) {
	t.Helper()
	select {
	case <-ch:
	default:
		t.Fatal("expected a queued network command")
	}
}
