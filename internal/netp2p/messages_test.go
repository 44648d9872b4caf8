// Copyright 2025 Certen Protocol

package netp2p

import (
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

func TestEnvelope_EncodeDecodeRoundTrip(t *testing.T) {
	ann := BatchAnnouncement{
		BatchID:        "abc123",
		MerkleRoot:     primitives.SumHash([]byte("root")),
		TotalWholesale: 1000,
		TotalRetail:    1500,
		RecordCount:    3,
		Period:         "2026-07",
		HomePLMN:       "26201",
		VisitedPLMN:    "23415",
	}

	envelope, err := EncodeBatchAnnouncement(ann)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeEnvelope(envelope.Encode())
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	got, err := DecodeBatchAnnouncement(decoded)
	if err != nil {
		t.Fatalf("decode batch announcement: %v", err)
	}
	if got.BatchID != ann.BatchID || got.MerkleRoot != ann.MerkleRoot || got.RecordCount != ann.RecordCount {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ann)
	}
}

func TestDecodeEnvelope_RejectsBadVersion(t *testing.T) {
	_, err := DecodeEnvelope([]byte{9, byte(MsgBatchAnnouncement)})
	if err == nil {
		t.Fatal("expected an error for an unsupported wire version")
	}
}

func TestDecode_RejectsWrongMessageType(t *testing.T) {
	envelope, err := EncodeSettlementRejection(SettlementRejection{Reason: "below_threshold"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeBatchAnnouncement(envelope); err == nil {
		t.Fatal("expected a type mismatch error")
	}
}

func TestNettingOffer_RoundTrip(t *testing.T) {
	offer := NettingOffer{
		Participants: []primitives.NetworkId{
			primitives.NewOperator("T-Mobile", "262", "01"),
			primitives.NewOperator("Vodafone", "234", "15"),
			primitives.NewOperator("Orange", "208", "01"),
		},
		NetVector:  []int64{25000, -25000, 0},
		PeriodHash: primitives.SumHash([]byte("period")),
	}
	envelope, err := EncodeNettingOffer(offer)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeNettingOffer(envelope)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Participants) != 3 || got.NetVector[1] != -25000 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
