// Copyright 2025 Certen Protocol
//
// Wire message grammar for the three gossip topics (the protocol). Every
// message travels inside an Envelope versioned by a leading byte, so a
// future wire revision can coexist with old peers during rollout.

package netp2p

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// Topic names the three gossip topics this network uses.
type Topic string

const (
	TopicBatches Topic = "batches"
	TopicSettlement Topic = "settlement"
	TopicConsensus Topic = "consensus"
)

// MessageType discriminates the payload carried inside an Envelope.
type MessageType uint8

const (
	MsgBatchAnnouncement MessageType = iota + 1
	MsgSettlementProposal
	MsgSettlementAcceptance
	MsgSettlementRejection
	MsgNettingOffer
	MsgConsensus // opaque bytes handed to internal/consensus
)

// wireVersion is the leading byte of every serialized Envelope.
const wireVersion byte = 1

// Envelope is the canonical on-wire frame: a version byte, a message type
// byte, and a JSON body.
type Envelope struct {
	Type MessageType
	Body []byte
}

var ErrBadEnvelope = errors.New("netp2p: malformed envelope")

// Encode serializes the envelope: [version][type][json body].
func (e Envelope) Encode() []byte {
	buf := make([]byte, 0, 2+len(e.Body))
	buf = append(buf, wireVersion, byte(e.Type))
	buf = append(buf, e.Body...)
	return buf
}

// DecodeEnvelope parses a wire frame produced by Encode.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) < 2 {
		return Envelope{}, ErrBadEnvelope
	}
	if data[0] != wireVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported wire version %d", ErrBadEnvelope, data[0])
	}
	return Envelope{Type: MessageType(data[1]), Body: data[2:]}, nil
}

// BatchAnnouncement is gossiped on TopicBatches when a batch seals.
type BatchAnnouncement struct {
	BatchID string `json:"batch_id"`
	MerkleRoot primitives.Hash `json:"merkle_root"`
	TotalWholesale int64 `json:"total_wholesale"`
	TotalRetail int64 `json:"total_retail"`
	RecordCount int `json:"record_count"`
	Period string `json:"period"`
	HomePLMN string `json:"home_plmn"`
	VisitedPLMN string `json:"visited_plmn"`
	CDRPrivacyProof []byte `json:"cdr_privacy_proof"`
}

// SettlementProposal is gossiped on TopicSettlement to open a bilateral
// settlement.
type SettlementProposal struct {
	Creditor primitives.NetworkId `json:"creditor"`
	Debtor primitives.NetworkId `json:"debtor"`
	AmountCents int64 `json:"amount_cents"`
	Currency string `json:"currency"`
	PeriodHash primitives.Hash `json:"period_hash"`
	Nonce uint64 `json:"nonce"`
	Proof []byte `json:"settlement_calculation_proof"`
}

// SettlementAcceptance accepts a prior SettlementProposal by hash.
type SettlementAcceptance struct {
	ProposalHash primitives.Hash `json:"proposal_hash"`
	Signature []byte `json:"signature"`
}

// SettlementRejection rejects a prior SettlementProposal with a reason.
type SettlementRejection struct {
	ProposalHash primitives.Hash `json:"proposal_hash"`
	Reason string `json:"reason"`
}

// NettingOffer proposes a multilateral net of ≥3 mutual bilaterals.
type NettingOffer struct {
	Participants []primitives.NetworkId `json:"participants"`
	NetVector []int64 `json:"net_vector"` // signed amounts, one per participant, summing to zero
	Currency string `json:"currency"`
	PeriodHash primitives.Hash `json:"period_hash"`
	Signatures [][]byte `json:"signatures,omitempty"`
}

// EncodeBatchAnnouncement wraps a to an Envelope.
func EncodeBatchAnnouncement(a BatchAnnouncement) (Envelope, error) {
	return encode(MsgBatchAnnouncement, a)
}

// EncodeSettlementProposal wraps p to an Envelope.
func EncodeSettlementProposal(p SettlementProposal) (Envelope, error) {
	return encode(MsgSettlementProposal, p)
}

// EncodeSettlementAcceptance wraps a to an Envelope.
func EncodeSettlementAcceptance(a SettlementAcceptance) (Envelope, error) {
	return encode(MsgSettlementAcceptance, a)
}

// EncodeSettlementRejection wraps r to an Envelope.
func EncodeSettlementRejection(r SettlementRejection) (Envelope, error) {
	return encode(MsgSettlementRejection, r)
}

// EncodeNettingOffer wraps o to an Envelope.
func EncodeNettingOffer(o NettingOffer) (Envelope, error) {
	return encode(MsgNettingOffer, o)
}

func encode(t MessageType, v interface{}) (Envelope, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("netp2p: encode message type %d: %w", t, err)
	}
	return Envelope{Type: t, Body: body}, nil
}

// DecodeBatchAnnouncement unwraps an Envelope of MsgBatchAnnouncement.
func DecodeBatchAnnouncement(e Envelope) (BatchAnnouncement, error) {
	var v BatchAnnouncement
	err := decode(e, MsgBatchAnnouncement, &v)
	return v, err
}

// DecodeSettlementProposal unwraps an Envelope of MsgSettlementProposal.
func DecodeSettlementProposal(e Envelope) (SettlementProposal, error) {
	var v SettlementProposal
	err := decode(e, MsgSettlementProposal, &v)
	return v, err
}

// DecodeSettlementAcceptance unwraps an Envelope of MsgSettlementAcceptance.
func DecodeSettlementAcceptance(e Envelope) (SettlementAcceptance, error) {
	var v SettlementAcceptance
	err := decode(e, MsgSettlementAcceptance, &v)
	return v, err
}

// DecodeSettlementRejection unwraps an Envelope of MsgSettlementRejection.
func DecodeSettlementRejection(e Envelope) (SettlementRejection, error) {
	var v SettlementRejection
	err := decode(e, MsgSettlementRejection, &v)
	return v, err
}

// DecodeNettingOffer unwraps an Envelope of MsgNettingOffer.
func DecodeNettingOffer(e Envelope) (NettingOffer, error) {
	var v NettingOffer
	err := decode(e, MsgNettingOffer, &v)
	return v, err
}

func decode(e Envelope, want MessageType, into interface{}) error {
	if e.Type != want {
		return fmt.Errorf("%w: expected message type %d, got %d", ErrBadEnvelope, want, e.Type)
	}
	if err := json.Unmarshal(e.Body, into); err != nil {
		return fmt.Errorf("netp2p: decode message type %d: %w", want, err)
	}
	return nil
}
