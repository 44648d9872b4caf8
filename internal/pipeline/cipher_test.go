// Copyright 2025 Certen Protocol

package pipeline

import (
	"bytes"
	"context"
	"testing"
)

func sealedTestBatch(t *testing.T) *BCEBatch {
	t.Helper()
	const home, visited = "26201", "23415"

	var sealed *BCEBatch
	p := New(Config{OwnPLMN: home, BatchSize: 1}, func(ctx context.Context, batch *BCEBatch) {
		sealed = batch
	})
	if _, err := p.ProcessBCERecord(context.Background(), sampleRecord("r1", home, visited, 1700000000)); err != nil {
		t.Fatalf("process record: %v", err)
	}
	if sealed == nil {
		t.Fatal("expected batch to seal")
	}
	return sealed
}

func TestEncryptDecryptBatch_RoundTrips(t *testing.T) {
	batch := sealedTestBatch(t)
	key := bytes.Repeat([]byte{0x42}, 32)

	ciphertext, err := EncryptBatch(batch, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, []byte(batch.Records[0].IMSI)) {
		t.Fatal("ciphertext leaks the IMSI in cleartext")
	}

	records, err := DecryptBatch(ciphertext, batch.MerkleRoot, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if len(records) != len(batch.Records) || records[0].RecordID != batch.Records[0].RecordID {
		t.Fatalf("decrypted records do not match original: %+v", records)
	}
}

func TestDecryptBatch_RejectsWrongKey(t *testing.T) {
	batch := sealedTestBatch(t)
	key := bytes.Repeat([]byte{0x42}, 32)
	wrongKey := bytes.Repeat([]byte{0x99}, 32)

	ciphertext, err := EncryptBatch(batch, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptBatch(ciphertext, batch.MerkleRoot, wrongKey); err == nil {
		t.Fatal("expected decryption to fail with the wrong key")
	}
}

func TestDecryptBatch_RejectsTamperedMerkleRoot(t *testing.T) {
	batch := sealedTestBatch(t)
	key := bytes.Repeat([]byte{0x42}, 32)

	ciphertext, err := EncryptBatch(batch, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	var tamperedRoot = batch.MerkleRoot
	tamperedRoot[0] ^= 0xff

	if _, err := DecryptBatch(ciphertext, tamperedRoot, key); err == nil {
		t.Fatal("expected decryption to fail against a tampered merkle root")
	}
}
