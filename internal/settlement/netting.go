// Copyright 2025 Certen Protocol
//
// Triangular (multilateral) netting: when ≥3 operators
// hold mutually pending bilaterals in the same period and currency, any
// participant may broadcast a NettingOffer carrying a net_vector that
// sums to zero. It is accepted once every participant has signed, and the
// resulting Settlement transactions (if any — a perfectly balanced vector
// yields none) replace the underlying bilaterals atomically, marking the
// originals Superseded.

package settlement

import (
	"errors"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/netp2p"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// nettingSession tracks one in-flight NettingOffer's collected signatures.
type nettingSession struct {
	offer netp2p.NettingOffer
	period string
	currency string
	signed map[int]struct{} // participant indices that have signed
	superseded []primitives.Hash
}

func nettingHash(o netp2p.NettingOffer) primitives.Hash {
	buf := append([]byte(nil), o.PeriodHash[:]...)
	for _, p := range o.Participants {
		buf = append(buf, p.CanonicalBytes()...)
	}
	for _, v := range o.NetVector {
		buf = primitives.AppendInt64(buf, v)
	}
	return primitives.SumHash(buf)
}

var (
	// ErrNettingDisabled is returned by ProposeNetting while
	// EnableTriangularNetting is false; HandleNettingSignature does not
	// check the flag.
	ErrNettingDisabled = errors.New("settlement: triangular netting disabled")
	// ErrNettingVectorUnbalanced is returned when a net_vector does not sum
	// to zero.
	ErrNettingVectorUnbalanced = errors.New("settlement: net_vector does not sum to zero")
	// ErrNettingTooFewParticipants is returned for fewer than three
	// participants.
	ErrNettingTooFewParticipants = errors.New("settlement: netting requires at least 3 participants")
)

func validateNetVector(vector []int64) error {
	if len(vector) < 3 {
		return ErrNettingTooFewParticipants
	}
	var sum int64
	for _, v := range vector {
		sum += v
	}
	if sum != 0 {
		return ErrNettingVectorUnbalanced
	}
	return nil
}

// ProposeNetting validates and broadcasts a NettingOffer replacing the
// bilaterals named by supersedes (the proposal hashes the net_vector
// nets out).
func (c *Coordinator) ProposeNetting(participants []primitives.NetworkId, netVector []int64, currency, period string, supersedes []primitives.Hash) (primitives.Hash, error) {
	if !c.cfg.EnableTriangularNetting {
		return primitives.Hash{}, ErrNettingDisabled
	}
	if err := validateNetVector(netVector); err != nil {
		return primitives.Hash{}, err
	}
	if len(participants) != len(netVector) {
		return primitives.Hash{}, fmt.Errorf("settlement: %d participants but %d net_vector entries", len(participants), len(netVector))
	}

	offer := netp2p.NettingOffer{
		Participants: participants,
		NetVector: netVector,
		Currency: currency,
		PeriodHash: primitives.SumHash([]byte(period)),
	}
	h := nettingHash(offer)

	c.mu.Lock()
	c.nettings[h] = &nettingSession{offer: offer, period: period, currency: currency, signed: make(map[int]struct{}), superseded: supersedes}
	c.mu.Unlock()

	env, err := netp2p.EncodeNettingOffer(offer)
	if err != nil {
		return primitives.Hash{}, fmt.Errorf("settlement: encode netting offer: %w", err)
	}
	c.netCmd <- netp2p.Command{Kind: netp2p.CommandBroadcast, Topic: netp2p.TopicSettlement, Msg: env}
	c.log.Info("netting offer proposed", "netting_hash", h.Hex(), "participants", len(participants))
	return h, nil
}

// HandleNettingSignature records one participant's signature on a netting
// offer, finalizing it once every participant has signed: the bilaterals
// in supersedes are marked Superseded and any non-zero net positions are
// submitted as Settlement transactions (a perfectly balanced three-way
// net yields zero Settlement transactions).
func (c *Coordinator) HandleNettingSignature(nettingH primitives.Hash, participantIndex int, signature []byte) (finalized bool, err error) {
	c.mu.Lock()
	session, ok := c.nettings[nettingH]
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("settlement: netting offer %s not found", nettingH.Hex())
	}
	if participantIndex < 0 || participantIndex >= len(session.offer.Participants) {
		c.mu.Unlock()
		return false, fmt.Errorf("settlement: netting offer %s has no participant index %d", nettingH.Hex(), participantIndex)
	}
	session.signed[participantIndex] = struct{}{}
	if len(session.offer.Signatures) == 0 {
		session.offer.Signatures = make([][]byte, len(session.offer.Participants))
	}
	session.offer.Signatures[participantIndex] = signature
	complete := len(session.signed) == len(session.offer.Participants)
	c.mu.Unlock()

	if !complete {
		return false, nil
	}

	for _, h := range session.superseded {
		c.mu.Lock()
		if p, ok := c.proposals[h]; ok {
			p.Status = StatusSuperseded
		}
		c.mu.Unlock()
	}

	for _, tx := range settlementsForNetVector(session.offer.Participants, session.offer.NetVector, session.currency, session.period) {
		c.txOut <- tx
	}

	c.log.Info("netting offer finalized", "netting_hash", nettingH.Hex(), "superseded", len(session.superseded))
	return true, nil
}

// settlementsForNetVector decomposes a balanced net_vector into the
// smallest set of pairwise transfers that realizes it: creditors
// (positive net) are paired against debtors (negative net) in index
// order, each pairing moving min(remaining credit, remaining debit),
// until every participant's remaining amount is zero. This replaces a
// naive adjacent-participant translation, which does not reproduce the
// declared net positions for anything but a trivially balanced pair.
func settlementsForNetVector(participants []primitives.NetworkId, netVector []int64, currency, period string) []ledger.Transaction {
	remaining := append([]int64(nil), netVector...)

	var txs []ledger.Transaction
	credIdx, debIdx := 0, 0
	for {
		for credIdx < len(remaining) && remaining[credIdx] <= 0 {
			credIdx++
		}
		for debIdx < len(remaining) && remaining[debIdx] >= 0 {
			debIdx++
		}
		if credIdx >= len(remaining) || debIdx >= len(remaining) {
			break
		}

		amount := remaining[credIdx]
		if -remaining[debIdx] < amount {
			amount = -remaining[debIdx]
		}
		remaining[credIdx] -= amount
		remaining[debIdx] += amount

		txs = append(txs, ledger.Transaction{
			Data: ledger.SettlementPayload{
				Creditor: participants[credIdx],
				Debtor:   participants[debIdx],
				Amount:   primitives.Money{Cents: amount, Currency: currency},
				Period:   period,
			},
		})
	}
	return txs
}
