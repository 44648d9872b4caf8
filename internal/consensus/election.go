// Copyright 2025 Certen Protocol
//
// Epoch-boundary validator election. The election formula was an open
// design question; DESIGN.md
// records the decision this implements: score = stake_fraction *
// liveness_fraction, frozen at genesis, top-N by score with ties broken
// by validator address, computed with a deterministic ordering — the
// same preference for sort.Slice over map iteration seen in
// pkg/consensus/types.go (sort on a stable key, never on map iteration
// order).

package consensus

import (
	"sort"
	"sync"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// LivenessTracker counts missed precommits per validator over the current
// epoch. Liveness fraction is 1 - missed/total.
type LivenessTracker struct {
	mu sync.Mutex
	missed map[primitives.Hash]uint64
	total map[primitives.Hash]uint64
}

// NewLivenessTracker returns an empty tracker.
func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{
		missed: make(map[primitives.Hash]uint64),
		total: make(map[primitives.Hash]uint64),
	}
}

// RecordRound tallies one height's precommit round: present lists
// validators whose precommit was counted in RoundState, everyone else in
// candidates is charged a miss.
func (lt *LivenessTracker) RecordRound(candidates []primitives.Hash, present map[primitives.Hash]struct{}) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for _, addr := range candidates {
		lt.total[addr]++
		if _, ok := present[addr]; !ok {
			lt.missed[addr]++
		}
	}
}

// Fraction returns addr's liveness fraction for the current epoch, 1.0 if
// it has no recorded rounds yet.
func (lt *LivenessTracker) Fraction(addr primitives.Hash) float64 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	total := lt.total[addr]
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(lt.missed[addr])/float64(total)
}

// Reset clears all tallies, called at the start of a new epoch.
func (lt *LivenessTracker) Reset() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.missed = make(map[primitives.Hash]uint64)
	lt.total = make(map[primitives.Hash]uint64)
}

// Election computes the active validator set for the next epoch from the
// full candidate pool (every ValidatorInfo recorded on-chain, active or
// not) at each election height.
type Election struct {
	Size int // top-N candidates selected into the active set
	Liveness *LivenessTracker
}

// NewElection returns an Election selecting the top size candidates by
// score.
func NewElection(size int, liveness *LivenessTracker) *Election {
	if liveness == nil {
		liveness = NewLivenessTracker()
	}
	return &Election{Size: size, Liveness: liveness}
}

type scoredCandidate struct {
	addr primitives.Hash
	score float64
}

// Rotate scores every candidate in vs, activates the top Size by score
// (reactivating if previously retired), retires everyone else, and returns
// the addresses selected into the active set. There is no separate
// liveness floor: low liveness only lowers a candidate's score. No
// lost_reward_set or disabled_set is produced.
func (e *Election) Rotate(vs *ledger.ValidatorSet) []primitives.Hash {
	snap := vs.Snapshot()
	totalStake := uint64(0)
	for _, v := range snap {
		totalStake += v.Stake
	}

	scored := make([]scoredCandidate, 0, len(snap))
	for _, v := range snap {
		if v.JailedFrom != nil {
			continue // jailed validators never re-enter an election
		}
		stakeFrac := 0.0
		if totalStake > 0 {
			stakeFrac = float64(v.Stake) / float64(totalStake)
		}
		score := stakeFrac * e.Liveness.Fraction(v.Address)
		scored = append(scored, scoredCandidate{addr: v.Address, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].addr.Less(scored[j].addr)
	})

	n := e.Size
	if n > len(scored) {
		n = len(scored)
	}
	selected := make(map[primitives.Hash]struct{}, n)
	active := make([]primitives.Hash, 0, n)
	for _, c := range scored[:n] {
		selected[c.addr] = struct{}{}
		active = append(active, c.addr)
	}

	for _, v := range snap {
		_, chosen := selected[v.Address]
		switch {
		case chosen && !v.IsActive() && v.JailedFrom == nil:
			_ = vs.Apply(ledger.ValidatorUpdatePayload{Action: ledger.ActionReactivate, ValidatorAddress: v.Address}, 0)
		case !chosen && v.IsActive():
			_ = vs.Apply(ledger.ValidatorUpdatePayload{Action: ledger.ActionRetire, ValidatorAddress: v.Address}, 0)
		}
	}

	e.Liveness.Reset()
	return active
}
