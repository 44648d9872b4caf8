// Copyright 2025 Certen Protocol

package consensus

import (
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

func addr(b byte) primitives.Hash {
	var h primitives.Hash
	h[0] = b
	return h
}

func threeValidatorSet() *ledger.ValidatorSet {
	return ledger.NewValidatorSet([]ledger.ValidatorInfo{
		{Address: addr(1), Stake: 40},
		{Address: addr(2), Stake: 30},
		{Address: addr(3), Stake: 30},
	})
}

func TestSelectLeader_PicksAnActiveValidatorDeterministically(t *testing.T) {
	vs := threeValidatorSet()
	seed := primitives.SumHash([]byte("genesis-seed"))

	leaderA, ok := SelectLeader(seed, 0, vs)
	if !ok {
		t.Fatal("expected a leader to be selected")
	}
	leaderB, ok := SelectLeader(seed, 0, vs)
	if !ok {
		t.Fatal("expected a leader to be selected")
	}
	if leaderA != leaderB {
		t.Fatalf("leader selection is not deterministic: %v vs %v", leaderA, leaderB)
	}
}

func TestSelectLeader_RoundAdvanceChangesLeaderEventually(t *testing.T) {
	vs := threeValidatorSet()
	seed := primitives.SumHash([]byte("genesis-seed"))

	leaders := make(map[primitives.Hash]struct{})
	for round := uint32(0); round < 10; round++ {
		leader, ok := SelectLeader(seed, round, vs)
		if !ok {
			t.Fatal("expected a leader to be selected")
		}
		leaders[leader] = struct{}{}
	}
	if len(leaders) < 2 {
		t.Fatal("expected leader rotation to eventually select more than one validator across rounds")
	}
}

func TestSelectLeader_NoActiveValidators(t *testing.T) {
	vs := ledger.NewValidatorSet(nil)
	_, ok := SelectLeader(primitives.Hash{}, 0, vs)
	if ok {
		t.Fatal("expected no leader with an empty validator set")
	}
}

func TestRoundState_QuorumAdvancesStep(t *testing.T) {
	vs := threeValidatorSet()
	rs := NewRoundState(100)

	if rs.RecordPrevote(addr(1), 40, vs) {
		t.Fatal("40/100 stake should not reach quorum")
	}
	if !rs.RecordPrevote(addr(2), 30, vs) {
		t.Fatal("70/100 stake should reach quorum")
	}
	if rs.Step != StepPrecommit {
		t.Fatalf("expected step to advance to precommit, got %v", rs.Step)
	}

	if rs.RecordPrevote(addr(1), 40, vs) {
		// repeated delivery must not double-count, but quorum was already reached
	}
}

func TestRoundState_AdvanceRoundResetsTallies(t *testing.T) {
	vs := threeValidatorSet()
	rs := NewRoundState(100)
	rs.RecordPrevote(addr(1), 40, vs)
	rs.RecordPrevote(addr(2), 30, vs)

	rs.AdvanceRound()
	if rs.Round != 1 || rs.Step != StepPropose {
		t.Fatalf("expected round 1 / propose step, got round=%d step=%v", rs.Round, rs.Step)
	}
	if rs.prevoteWeight != 0 {
		t.Fatal("expected prevote weight to reset on round advance")
	}
}
