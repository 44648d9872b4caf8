// Copyright 2025 Certen Protocol
//
// Per-proposal state machine: Idle → ProposalSent →
// {Accepted, Rejected, Expired} on the proposer side, Idle →
// ProposalReceived → {AcceptSent, RejectSent} on the receiver side.
// Modeled the same way as ledger.ValidatorAction — a small fixed set of
// named states plus explicit transition methods, not an interface
// hierarchy.

package settlement

import (
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// Status names one state in the bilateral settlement state machine.
type Status uint8

const (
	StatusIdle Status = iota
	StatusProposalSent
	StatusProposalReceived
	StatusAccepted
	StatusRejected
	StatusExpired
	StatusAcceptSent
	StatusRejectSent
	StatusSuperseded
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusProposalSent:
		return "ProposalSent"
	case StatusProposalReceived:
		return "ProposalReceived"
	case StatusAccepted:
		return "Accepted"
	case StatusRejected:
		return "Rejected"
	case StatusExpired:
		return "Expired"
	case StatusAcceptSent:
		return "AcceptSent"
	case StatusRejectSent:
		return "RejectSent"
	case StatusSuperseded:
		return "Superseded"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Proposal tracks one bilateral settlement negotiation for a (creditor,
// debtor, period) triple, on whichever side of the wire this node sits.
type Proposal struct {
	Hash primitives.Hash
	Creditor primitives.NetworkId
	Debtor primitives.NetworkId
	Amount primitives.Money
	Period string
	Nonce uint64
	Proof []byte
	BatchRootA primitives.Hash
	BatchRootB primitives.Hash
	ProposedAt uint64 // block height at proposal time
	ExpiresAt uint64 // block height after which the proposal is dead
	Status Status
	RejectReason string
}

// IsTerminal reports whether the proposal has left the in-flight states.
func (p *Proposal) IsTerminal() bool {
	switch p.Status {
	case StatusAccepted, StatusRejected, StatusExpired, StatusSuperseded:
		return true
	default:
		return false
	}
}

// proposalHash derives the content hash identifying a proposal across the
// wire, so a SettlementAcceptance/Rejection can reference it without
// re-transmitting the whole proposal. Takes periodHash rather than the
// plaintext period since that is all the wire SettlementProposal message
// carries (netp2p.SettlementProposal.PeriodHash).
func proposalHash(creditor, debtor primitives.NetworkId, amountCents int64, currency string, periodHash primitives.Hash, nonce uint64) primitives.Hash {
	buf := append([]byte(nil), creditor.CanonicalBytes()...)
	buf = append(buf, debtor.CanonicalBytes()...)
	buf = primitives.AppendInt64(buf, amountCents)
	buf = primitives.AppendStringLP(buf, currency)
	buf = append(buf, periodHash[:]...)
	buf = primitives.AppendUint64(buf, nonce)
	return primitives.SumHash(buf)
}
