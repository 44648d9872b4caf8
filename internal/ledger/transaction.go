// Copyright 2025 Certen Protocol
//
// Transaction and its tagged data payload. The payload is one of three
// variants (CDRRecord, Settlement, ValidatorUpdate); dispatch is by an
// explicit Kind tag rather than a type-switch hierarchy, matching the
// dispatch-table convention used for ValidatorAction in validator.go.

package ledger

import (
	"errors"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// TransactionKind discriminates the payload carried by a Transaction.
type TransactionKind uint8

const (
	KindCDRRecord TransactionKind = iota
	KindSettlement
	KindValidatorUpdate
)

func (k TransactionKind) String() string {
	switch k {
	case KindCDRRecord:
		return "CDRRecord"
	case KindSettlement:
		return "Settlement"
	case KindValidatorUpdate:
		return "ValidatorUpdate"
	default:
		return fmt.Sprintf("TransactionKind(%d)", uint8(k))
	}
}

// Payload is implemented by the three transaction data variants.
type Payload interface {
	Kind() TransactionKind
	CanonicalBytes() []byte
	Validate() error
}

// CDRRecordPayload commits a sealed BCEBatch on-chain by its ciphertext and
// cdr_privacy zero-knowledge proof.
type CDRRecordPayload struct {
	RecordType    string // "DataSession" | "VoiceCall" | "SMS"
	Home          primitives.NetworkId
	Visited       primitives.NetworkId
	EncryptedData []byte
	ZKProof       []byte
}

func (p CDRRecordPayload) Kind() TransactionKind { return KindCDRRecord }

func (p CDRRecordPayload) CanonicalBytes() []byte {
	buf := []byte{byte(KindCDRRecord)}
	buf = primitives.AppendStringLP(buf, p.RecordType)
	buf = append(buf, p.Home.CanonicalBytes()...)
	buf = append(buf, p.Visited.CanonicalBytes()...)
	buf = primitives.AppendBytesLP(buf, p.EncryptedData)
	buf = primitives.AppendBytesLP(buf, p.ZKProof)
	return buf
}

func (p CDRRecordPayload) Validate() error {
	switch p.RecordType {
	case "DataSession", "VoiceCall", "SMS":
	default:
		return fmt.Errorf("ledger: unknown cdr record type %q", p.RecordType)
	}
	if len(p.EncryptedData) == 0 {
		return errors.New("ledger: CDRRecord payload missing encrypted_data")
	}
	if len(p.ZKProof) == 0 {
		return errors.New("ledger: CDRRecord payload missing zk_proof")
	}
	return nil
}

// SettlementPayload records a finalized bilateral obligation between two
// operators for a settlement period.
type SettlementPayload struct {
	Creditor primitives.NetworkId
	Debtor   primitives.NetworkId
	Amount   primitives.Money
	Period   string
}

func (p SettlementPayload) Kind() TransactionKind { return KindSettlement }

func (p SettlementPayload) CanonicalBytes() []byte {
	buf := []byte{byte(KindSettlement)}
	buf = append(buf, p.Creditor.CanonicalBytes()...)
	buf = append(buf, p.Debtor.CanonicalBytes()...)
	buf = append(buf, p.Amount.CanonicalBytes()...)
	buf = primitives.AppendStringLP(buf, p.Period)
	return buf
}

func (p SettlementPayload) Validate() error {
	if !p.Amount.IsPositive() {
		return errors.New("ledger: Settlement.amount must be positive")
	}
	if p.Amount.Currency == "" {
		return errors.New("ledger: Settlement.currency must be non-empty")
	}
	if p.Period == "" {
		return errors.New("ledger: Settlement.period must be non-empty")
	}
	return nil
}

// ValidatorUpdatePayload is one of the four validator-set mutations.
type ValidatorUpdatePayload struct {
	Action            ValidatorAction
	ValidatorAddress  primitives.Hash
	Stake             uint64
}

func (p ValidatorUpdatePayload) Kind() TransactionKind { return KindValidatorUpdate }

func (p ValidatorUpdatePayload) CanonicalBytes() []byte {
	buf := []byte{byte(KindValidatorUpdate), byte(p.Action)}
	buf = append(buf, p.ValidatorAddress[:]...)
	buf = primitives.AppendUint64(buf, p.Stake)
	return buf
}

func (p ValidatorUpdatePayload) Validate() error {
	switch p.Action {
	case ActionCreate, ActionUpdate, ActionRetire, ActionReactivate:
	default:
		return fmt.Errorf("ledger: unknown validator action %v", p.Action)
	}
	if p.ValidatorAddress.IsZero() {
		return errors.New("ledger: ValidatorUpdate.validator_address must be set")
	}
	return nil
}

// Transaction is a signed ledger operation carrying one Payload variant.
type Transaction struct {
	Sender              primitives.Hash
	Recipient           primitives.Hash
	Value               uint64
	Fee                 uint64
	ValidityStartHeight uint64
	Data                Payload
	Signature           []byte
	SignatureProof      []byte
}

var (
	ErrMissingSignature = errors.New("ledger: transaction missing signature")
	ErrMissingPayload   = errors.New("ledger: transaction missing data payload")
)

// IsValid checks the invariants common to every transaction plus the
// type-specific checks on its payload.
func (tx Transaction) IsValid() error {
	if len(tx.Signature) == 0 {
		return ErrMissingSignature
	}
	if tx.Data == nil {
		return ErrMissingPayload
	}
	return tx.Data.Validate()
}

// CanonicalBytes is the deterministic byte encoding of the transaction,
// excluding the signature itself (the signature is computed over this).
func (tx Transaction) CanonicalBytes() []byte {
	buf := append([]byte(nil), tx.Sender[:]...)
	buf = append(buf, tx.Recipient[:]...)
	buf = primitives.AppendUint64(buf, tx.Value)
	buf = primitives.AppendUint64(buf, tx.Fee)
	buf = primitives.AppendUint64(buf, tx.ValidityStartHeight)
	if tx.Data != nil {
		buf = append(buf, tx.Data.CanonicalBytes()...)
	}
	return buf
}

// Hash returns the transaction's content hash, computed over its canonical
// bytes plus signature and signature_proof so that two signed copies of an
// otherwise-identical transaction hash differently.
func (tx Transaction) Hash() primitives.Hash {
	buf := tx.CanonicalBytes()
	buf = primitives.AppendBytesLP(buf, tx.Signature)
	buf = primitives.AppendBytesLP(buf, tx.SignatureProof)
	return primitives.SumHash(buf)
}
