// Copyright 2025 Certen Protocol
//
// Round state machine and leader selection. CometBFT drives the actual
// Propose/Prevote/Precommit/Commit network protocol; this type tracks the
// round state this application owns directly: which validator is expected
// to propose a given height+round, and whether a round has reached the
// quorum needed to finalize (internal/ledger's ValidatorSet.HasQuorum,
// reused rather than reimplemented).

package consensus

import (
	"encoding/binary"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// Step names the four phases of one consensus round.
type Step uint8

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
	StepCommit
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	case StepCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// SelectLeader deterministically picks the validator expected to propose
// height+round, as a function of the block seed and the round number: the
// seed (the parent block's own Seed field) is hashed together with round,
// and the validator whose address has the smallest XOR distance to that
// digest (distances compared via Hash.Less) is the leader. This generalizes a weighted-ordering-by-address
// approach in pkg/consensus/types.go to a round-aware rotation so a
// non-responsive leader at round 0 is replaced at round 1 without needing a
// fresh block seed.
func SelectLeader(seed primitives.Hash, round uint32, vs *ledger.ValidatorSet) (primitives.Hash, bool) {
	active := activeAddresses(vs)
	if len(active) == 0 {
		return primitives.Hash{}, false
	}

	var roundBytes [4]byte
	binary.LittleEndian.PutUint32(roundBytes[:], round)
	target := primitives.SumHashConcat(seed.Bytes(), roundBytes[:])

	best := active[0]
	bestDist := xorDistance(target, best)
	for _, addr := range active[1:] {
		if d := xorDistance(target, addr); d.Less(bestDist) {
			best, bestDist = addr, d
		}
	}
	return best, true
}

func activeAddresses(vs *ledger.ValidatorSet) []primitives.Hash {
	snap := vs.Snapshot()
	out := make([]primitives.Hash, 0, len(snap))
	for _, v := range snap {
		if v.IsActive() {
			out = append(out, v.Address)
		}
	}
	return out
}

// xorDistance is the metric SelectLeader minimizes: the
// byte-wise XOR of two hashes, compared via Hash.Less like any other hash.
func xorDistance(a, b primitives.Hash) primitives.Hash {
	var out primitives.Hash
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// RoundState tracks one height's in-progress round: the current step, the
// votes seen so far, and whether quorum has been reached at each step.
// CometBFT owns the wire protocol for exchanging these votes; this struct
// is the application-level view used to decide when internal/pipeline and
// internal/settlement may treat a block as final.
type RoundState struct {
	Height uint64
	Round uint32
	Step Step

	prevoteWeight uint64
	precommitWeight uint64
	seenPrevote map[primitives.Hash]struct{}
	seenPrecommit map[primitives.Hash]struct{}
}

// NewRoundState starts a fresh round at height, round 0, Propose step.
func NewRoundState(height uint64) *RoundState {
	return &RoundState{
		Height: height,
		Step: StepPropose,
		seenPrevote: make(map[primitives.Hash]struct{}),
		seenPrecommit: make(map[primitives.Hash]struct{}),
	}
}

// AdvanceRound resets round-scoped vote tallies on a leader timeout,
// incrementing Round and returning to StepPropose.
func (rs *RoundState) AdvanceRound() {
	rs.Round++
	rs.Step = StepPropose
	rs.prevoteWeight = 0
	rs.precommitWeight = 0
	rs.seenPrevote = make(map[primitives.Hash]struct{})
	rs.seenPrecommit = make(map[primitives.Hash]struct{})
}

// RecordPrevote registers validator's prevote weight once (idempotent on
// repeated delivery) and reports whether vs now has quorum on prevotes.
func (rs *RoundState) RecordPrevote(validator primitives.Hash, weight uint64, vs *ledger.ValidatorSet) bool {
	if _, seen := rs.seenPrevote[validator]; seen {
		return vs.HasQuorum(rs.prevoteWeight)
	}
	rs.seenPrevote[validator] = struct{}{}
	rs.prevoteWeight += weight
	if vs.HasQuorum(rs.prevoteWeight) {
		rs.Step = StepPrecommit
		return true
	}
	return false
}

// RecordPrecommit registers validator's precommit weight once and reports
// whether vs now has quorum on precommits, at which point the round is
// ready to commit.
func (rs *RoundState) RecordPrecommit(validator primitives.Hash, weight uint64, vs *ledger.ValidatorSet) bool {
	if _, seen := rs.seenPrecommit[validator]; seen {
		return vs.HasQuorum(rs.precommitWeight)
	}
	rs.seenPrecommit[validator] = struct{}{}
	rs.precommitWeight += weight
	if vs.HasQuorum(rs.precommitWeight) {
		rs.Step = StepCommit
		return true
	}
	return false
}
