// Copyright 2025 Certen Protocol
//
// Operator signature verification for POST /api/v1/bce/submit's optional
// operator_signature field. Grounded on pkg/ethereum/client.go's use of
// go-ethereum's crypto package (crypto.HexToECDSA, crypto.PubkeyToAddress,
// crypto.Keccak256Hash) — here inverted from signing to recovery, the
// same way an Ethereum node authenticates a submitted transaction.

package httpapi

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/sp-cdr-settlement/internal/pipeline"
)

// ErrSignatureMismatch is returned when a recovered address does not match
// the operator's registered address.
var ErrSignatureMismatch = errors.New("httpapi: operator_signature does not match registered address")

// ECDSAVerifier recovers the signer of a submitted BCERecord and checks it
// against a registered per-PLMN address book.
type ECDSAVerifier struct {
	// addresses maps home_plmn to the operator's registered Ethereum
	// address; submissions from an unregistered PLMN are rejected.
	addresses map[string]common.Address
}

// NewECDSAVerifier builds a verifier from a home_plmn -> address map.
func NewECDSAVerifier(addresses map[string]common.Address) *ECDSAVerifier {
	return &ECDSAVerifier{addresses: addresses}
}

// Verify recovers the address that produced signatureHex over record's
// canonical bytes and checks it matches the registered address for
// record.HomePLMN.
func (v *ECDSAVerifier) Verify(record pipeline.BCERecord, signatureHex string) error {
	want, ok := v.addresses[record.HomePLMN]
	if !ok {
		return fmt.Errorf("httpapi: no registered operator address for home_plmn %s", record.HomePLMN)
	}

	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return fmt.Errorf("httpapi: decode operator_signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("httpapi: operator_signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	digest := crypto.Keccak256(record.CanonicalBytes())
	// Ecrecover's v byte is 0/1; Ethereum wallets commonly produce 27/28.
	recoverSig := append([]byte(nil), sig...)
	if recoverSig[64] >= 27 {
		recoverSig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, recoverSig)
	if err != nil {
		return fmt.Errorf("httpapi: recover signer: %w", err)
	}
	got := crypto.PubkeyToAddress(*pub)
	if got != want {
		return ErrSignatureMismatch
	}
	return nil
}
