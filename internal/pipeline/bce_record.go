// Copyright 2025 Certen Protocol
//
// BCERecord: one chargeable billing/charging event submitted by an
// operator's billing system. Grounded on the comparable transaction
// record in pkg/batch/collector.go, generalized from an Accumulate
// transaction reference to a telecom billing record.

package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// RecordType enumerates the three BCE record kinds.
type RecordType string

const (
	RecordTypeDataSession RecordType = "DataSession"
	RecordTypeVoiceCall RecordType = "VoiceCall"
	RecordTypeSMS RecordType = "SMS"
)

func (t RecordType) valid() bool {
	switch t {
	case RecordTypeDataSession, RecordTypeVoiceCall, RecordTypeSMS:
		return true
	default:
		return false
	}
}

// BCERecord is one chargeable event produced by an operator's billing
// system. IMSI is sensitive and never leaves the originating operator in
// the clear — it travels only inside the encrypted batch ciphertext
// committed by a CDRRecord transaction. It is part of CanonicalBytes, so
// it enters the record's hash, but never appears as a plaintext field.
type BCERecord struct {
	RecordID string `json:"record_id"`
	RecordType RecordType `json:"record_type"`
	IMSI string `json:"imsi"`
	HomePLMN string `json:"home_plmn"`
	VisitedPLMN string `json:"visited_plmn"`
	SessionDuration int64 `json:"session_duration"` // seconds, >= 0
	BytesUplink uint64 `json:"bytes_uplink"`
	BytesDownlink uint64 `json:"bytes_downlink"`
	WholesaleCharge int64 `json:"wholesale_charge"` // minor currency units
	RetailCharge int64 `json:"retail_charge"` // minor currency units
	Currency string `json:"currency"`
	Timestamp int64 `json:"timestamp"` // seconds since epoch
	ChargingID string `json:"charging_id"`
}

var (
	ErrInvalidRecord = errors.New("pipeline: invalid BCE record")
)

// Validate checks the BCERecord invariants: byte counts are
// zero for Voice/SMS, wholesale never exceeds retail, required fields are
// present, and counters are non-negative.
func (r BCERecord) Validate() error {
	if r.RecordID == "" {
		return fmt.Errorf("%w: record_id is required", ErrInvalidRecord)
	}
	if !r.RecordType.valid() {
		return fmt.Errorf("%w: unknown record_type %q", ErrInvalidRecord, r.RecordType)
	}
	if len(r.HomePLMN) != 5 && len(r.HomePLMN) != 6 {
		return fmt.Errorf("%w: home_plmn must be a 5-6 digit PLMN", ErrInvalidRecord)
	}
	if len(r.VisitedPLMN) != 5 && len(r.VisitedPLMN) != 6 {
		return fmt.Errorf("%w: visited_plmn must be a 5-6 digit PLMN", ErrInvalidRecord)
	}
	if r.SessionDuration < 0 {
		return fmt.Errorf("%w: session_duration must be >= 0", ErrInvalidRecord)
	}
	if r.RecordType != RecordTypeDataSession && (r.BytesUplink != 0 || r.BytesDownlink != 0) {
		return fmt.Errorf("%w: byte counts must be 0 for %s records", ErrInvalidRecord, r.RecordType)
	}
	if r.WholesaleCharge < 0 || r.RetailCharge < 0 {
		return fmt.Errorf("%w: charges must be non-negative", ErrInvalidRecord)
	}
	if r.WholesaleCharge > r.RetailCharge {
		return fmt.Errorf("%w: wholesale_charge must not exceed retail_charge", ErrInvalidRecord)
	}
	if r.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidRecord)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be set", ErrInvalidRecord)
	}
	return nil
}

// Period buckets a record into its settlement period, a calendar month
// derived from its timestamp.
func (r BCERecord) Period() string {
	return time.Unix(r.Timestamp, 0).UTC().Format("2006-01")
}

// CanonicalBytes is the deterministic encoding hashed into the batch's
// Merkle tree. IMSI is included (it's only ever transmitted inside the
// batch ciphertext, never published as a standalone field), so its hash
// still binds the record without exposing it outside that ciphertext.
func (r BCERecord) CanonicalBytes() []byte {
	buf := primitives.AppendStringLP(nil, r.RecordID)
	buf = primitives.AppendStringLP(buf, string(r.RecordType))
	buf = primitives.AppendStringLP(buf, r.IMSI)
	buf = primitives.AppendStringLP(buf, r.HomePLMN)
	buf = primitives.AppendStringLP(buf, r.VisitedPLMN)
	buf = primitives.AppendInt64(buf, r.SessionDuration)
	buf = primitives.AppendUint64(buf, r.BytesUplink)
	buf = primitives.AppendUint64(buf, r.BytesDownlink)
	buf = primitives.AppendInt64(buf, r.WholesaleCharge)
	buf = primitives.AppendInt64(buf, r.RetailCharge)
	buf = primitives.AppendStringLP(buf, r.Currency)
	buf = primitives.AppendInt64(buf, r.Timestamp)
	buf = primitives.AppendStringLP(buf, r.ChargingID)
	return buf
}

// Hash is the record's leaf hash in its batch's Merkle tree.
func (r BCERecord) Hash() primitives.Hash {
	return primitives.SumHash(r.CanonicalBytes())
}
