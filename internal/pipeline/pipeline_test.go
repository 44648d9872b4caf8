// Copyright 2025 Certen Protocol

package pipeline

import (
	"context"
	"testing"
)

func sampleRecord(id string, home, visited string, timestamp int64) BCERecord {
	return BCERecord{
		RecordID:        id,
		RecordType:      RecordTypeVoiceCall,
		IMSI:            "262011234567890",
		HomePLMN:        home,
		VisitedPLMN:     visited,
		SessionDuration: 120,
		WholesaleCharge: 100,
		RetailCharge:    150,
		Currency:        "EUR",
		Timestamp:       timestamp,
		ChargingID:      "chg-1",
	}
}

func TestProcessBCERecord_RejectsWrongOperator(t *testing.T) {
	p := New(Config{OwnPLMN: "26201", BatchSize: 10}, nil)
	_, err := p.ProcessBCERecord(context.Background(), sampleRecord("r1", "23415", "26201", 1700000000))
	if err == nil {
		t.Fatal("expected ErrWrongOperator")
	}
}

func TestProcessBCERecord_DuplicateIsIdempotent(t *testing.T) {
	p := New(Config{OwnPLMN: "26201", BatchSize: 10}, nil)
	rec := sampleRecord("r1", "26201", "23415", 1700000000)

	if _, err := p.ProcessBCERecord(context.Background(), rec); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := p.ProcessBCERecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if !res.Duplicate {
		t.Fatal("expected duplicate flag")
	}
	if got := p.GetStats().RecordsIn; got != 1 {
		t.Fatalf("expected 1 record counted, got %d", got)
	}
}

func TestProcessBCERecord_SealsOnBatchSize(t *testing.T) {
	var sealedCount int
	p := New(Config{OwnPLMN: "26201", BatchSize: 2}, func(ctx context.Context, batch *BCEBatch) {
		sealedCount++
		if batch.RecordCount() != 2 {
			t.Errorf("expected 2 records in sealed batch, got %d", batch.RecordCount())
		}
	})

	ctx := context.Background()
	if _, err := p.ProcessBCERecord(ctx, sampleRecord("r1", "26201", "23415", 1700000000)); err != nil {
		t.Fatalf("r1: %v", err)
	}
	res, err := p.ProcessBCERecord(ctx, sampleRecord("r2", "26201", "23415", 1700000000))
	if err != nil {
		t.Fatalf("r2: %v", err)
	}
	if !res.BatchSealed {
		t.Fatal("expected batch to be sealed at size threshold")
	}
	if sealedCount != 1 {
		t.Fatalf("expected one seal callback, got %d", sealedCount)
	}
	if got := p.GetStats().BatchesSealed; got != 1 {
		t.Fatalf("expected 1 sealed batch stat, got %d", got)
	}
}

func TestSealPeriod_FlushesOpenBatchRegardlessOfSize(t *testing.T) {
	var sealed *BCEBatch
	p := New(Config{OwnPLMN: "26201", BatchSize: 100}, func(ctx context.Context, batch *BCEBatch) {
		sealed = batch
	})

	ctx := context.Background()
	rec := sampleRecord("r1", "26201", "23415", 1700000000)
	if _, err := p.ProcessBCERecord(ctx, rec); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.SealPeriod(ctx, keyFor(rec)); err != nil {
		t.Fatalf("seal period: %v", err)
	}
	if sealed == nil || sealed.RecordCount() != 1 {
		t.Fatal("expected the single-record batch to be sealed by the period timer")
	}
}

func TestProcessBCERecord_RejectedAfterShutdown(t *testing.T) {
	p := New(Config{OwnPLMN: "26201", BatchSize: 10}, nil)
	p.Shutdown()
	_, err := p.ProcessBCERecord(context.Background(), sampleRecord("r1", "26201", "23415", 1700000000))
	if err != ErrPipelineClosed {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}
