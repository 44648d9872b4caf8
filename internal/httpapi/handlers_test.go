// Copyright 2025 Certen Protocol

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/pipeline"
	"github.com/certen/sp-cdr-settlement/internal/storage"
)

func sampleRecord(id string) pipeline.BCERecord {
	return pipeline.BCERecord{
		RecordID:        id,
		RecordType:      pipeline.RecordTypeVoiceCall,
		IMSI:            "262011234567890",
		HomePLMN:        "26201",
		VisitedPLMN:     "23415",
		SessionDuration: 120,
		WholesaleCharge: 100,
		RetailCharge:    150,
		Currency:        "EUR",
		Timestamp:       1700000000,
		ChargingID:      "chg-1",
	}
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	batches, err := storage.NewBatchStore(t.TempDir())
	if err != nil {
		t.Fatalf("new batch store: %v", err)
	}
	p := pipeline.New(pipeline.Config{OwnPLMN: "26201", BatchSize: 2}, func(ctx context.Context, batch *pipeline.BCEBatch) {})
	return NewHandlers(p, batches, nil, nil)
}

func TestHandleSubmit_AcceptsValidRecord(t *testing.T) {
	h := newTestHandlers(t)
	body, _ := json.Marshal(submitRequest{Record: sampleRecord("r1")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bce/submit", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleSubmit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got message %q", resp.Message)
	}
}

func TestHandleSubmit_RejectsWrongMethod(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bce/submit", nil)
	w := httptest.NewRecorder()

	h.HandleSubmit(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.HandleHealth(w, req)

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Service != "SP-BCE-Ingestion" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestHandleBatchStatus_NotFound(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bce/batch/0011223344556677/status", nil)
	w := httptest.NewRecorder()

	h.HandleBatchStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleStats_ReflectsIngestedRecords(t *testing.T) {
	h := newTestHandlers(t)
	body, _ := json.Marshal(submitRequest{Record: sampleRecord("r1")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bce/submit", bytes.NewReader(body))
	h.HandleSubmit(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/bce/stats", nil))

	var stats pipeline.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.RecordsIn != 1 {
		t.Fatalf("expected 1 record ingested, got %d", stats.RecordsIn)
	}
}
