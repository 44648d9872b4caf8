// Copyright 2025 Certen Protocol

package consensus

import (
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

func TestElection_RotatesTopNByScore(t *testing.T) {
	vs := ledger.NewValidatorSet([]ledger.ValidatorInfo{
		{Address: addr(1), Stake: 50},
		{Address: addr(2), Stake: 30},
		{Address: addr(3), Stake: 15},
		{Address: addr(4), Stake: 5},
	})
	election := NewElection(2, NewLivenessTracker())

	active := election.Rotate(vs)
	if len(active) != 2 {
		t.Fatalf("expected 2 active validators, got %d", len(active))
	}

	snap := vs.Snapshot()
	activeCount := 0
	for _, v := range snap {
		if v.IsActive() {
			activeCount++
		}
	}
	if activeCount != 2 {
		t.Fatalf("expected 2 active entries in the set, got %d", activeCount)
	}

	v1, _ := vs.Get(addr(1))
	if !v1.IsActive() {
		t.Fatal("highest-stake validator should remain active")
	}
	v4, _ := vs.Get(addr(4))
	if v4.IsActive() {
		t.Fatal("lowest-stake validator should be retired")
	}
}

func TestElection_LivenessPenalizesScore(t *testing.T) {
	vs := ledger.NewValidatorSet([]ledger.ValidatorInfo{
		{Address: addr(1), Stake: 50},
		{Address: addr(2), Stake: 50},
	})

	lt := NewLivenessTracker()
	for i := 0; i < 10; i++ {
		present := map[primitives.Hash]struct{}{addr(2): {}}
		lt.RecordRound([]primitives.Hash{addr(1), addr(2)}, present)
	}

	election := NewElection(1, lt)
	active := election.Rotate(vs)
	if len(active) != 1 || active[0] != addr(2) {
		t.Fatalf("expected addr(2) to win on liveness despite equal stake, got %v", active)
	}
}
