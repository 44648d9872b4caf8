// Copyright 2025 Certen Protocol
//
// Batch ciphertext: BCERecord.IMSI is never published outside this
// encrypted envelope (the protocol's "IMSI never leaves the originating
// operator in the clear"). Grounded on this repo's own blake2b/golang.org/x
// /crypto usage elsewhere in this repo (internal/primitives/hash.go);
// AEAD encryption here reaches for the same module's chacha20poly1305
// subpackage rather than hand-rolling a cipher mode on top of stdlib aes.

package pipeline

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// EncryptBatch seals batch's records under key (32 bytes), returning
// nonce||ciphertext. The caller supplies an operator-held symmetric key;
// this package has no opinion on how that key is provisioned.
func EncryptBatch(batch *BCEBatch, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("pipeline: init aead: %w", err)
	}
	plaintext, err := json.Marshal(batch.Records)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal batch records: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("pipeline: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, batch.MerkleRoot[:])
	return sealed, nil
}

// DecryptBatch reverses EncryptBatch, authenticating against the same
// Merkle root used as associated data during sealing.
func DecryptBatch(ciphertext []byte, merkleRoot primitives.Hash, key []byte) ([]BCERecord, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("pipeline: init aead: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("pipeline: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, merkleRoot[:])
	if err != nil {
		return nil, fmt.Errorf("pipeline: decrypt batch: %w", err)
	}
	var records []BCERecord
	if err := json.Unmarshal(plaintext, &records); err != nil {
		return nil, fmt.Errorf("pipeline: unmarshal decrypted records: %w", err)
	}
	return records, nil
}
