// Copyright 2025 Certen Protocol
//
// HTTP ingestion surface: BCE record submission, batch
// status, pipeline stats, and health. Grounded on the handler-struct
// pattern in pkg/server/batch_handlers.go (a struct holding its
// dependencies plus a logger, with writeJSON/writeError helpers and
// strings.TrimPrefix path parsing) — adapted to a *slog.Logger per the
// ambient-stack decision in the protocol, since every other
// long-running component in this repo already takes one.

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/certen/sp-cdr-settlement/internal/pipeline"
	"github.com/certen/sp-cdr-settlement/internal/storage"
)

// OperatorSignatureVerifier checks the optional operator_signature field a
// BCE submission may carry. Satisfied by httpapi's own go-ethereum-backed
// helper in signature.go; accepted here as an interface so handlers are
// testable without a real key.
type OperatorSignatureVerifier interface {
	Verify(record pipeline.BCERecord, signatureHex string) error
}

// Handlers implements the five HTTP endpoints the protocol names.
type Handlers struct {
	pipeline *pipeline.Pipeline
	batches *storage.BatchStore
	sigVerifier OperatorSignatureVerifier
	log *slog.Logger
}

// NewHandlers constructs Handlers. sigVerifier may be nil, in which case
// operator_signature is accepted without verification, since the field
// is optional.
func NewHandlers(p *pipeline.Pipeline, batches *storage.BatchStore, sigVerifier OperatorSignatureVerifier, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{pipeline: p, batches: batches, sigVerifier: sigVerifier, log: logger.With("component", "httpapi")}
}

// submitRequest is the body of POST /api/v1/bce/submit.
type submitRequest struct {
	Record pipeline.BCERecord `json:"record"`
	OperatorSignature string `json:"operator_signature,omitempty"`
}

// submitResponse is the shared response shape for both submit endpoints.
type submitResponse struct {
	Success bool `json:"success"`
	Message string `json:"message"`
	BatchID string `json:"batch_id,omitempty"`
}

// HandleSubmit handles POST /api/v1/bce/submit.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Success: false, Message: "invalid request body: " + err.Error()})
		return
	}

	if req.OperatorSignature != "" && h.sigVerifier != nil {
		if err := h.sigVerifier.Verify(req.Record, req.OperatorSignature); err != nil {
			writeJSON(w, http.StatusOK, submitResponse{Success: false, Message: "invalid operator_signature: " + err.Error()})
			return
		}
	}

	result, err := h.pipeline.ProcessBCERecord(r.Context(), req.Record)
	if err != nil {
		h.log.Warn("bce submit rejected", "error", err)
		writeJSON(w, http.StatusOK, submitResponse{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Success: true, Message: "accepted", BatchID: result.BatchID.String()})
}

// HandleBatchSubmit handles POST /api/v1/bce/batch/submit.
func (h *Handlers) HandleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var records []pipeline.BCERecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Success: false, Message: "invalid request body: " + err.Error()})
		return
	}

	var lastBatchID string
	for _, rec := range records {
		result, err := h.pipeline.ProcessBCERecord(r.Context(), rec)
		if err != nil {
			h.log.Warn("bce batch submit rejected a record", "record_id", rec.RecordID, "error", err)
			writeJSON(w, http.StatusOK, submitResponse{Success: false, Message: err.Error()})
			return
		}
		lastBatchID = result.BatchID.String()
	}

	writeJSON(w, http.StatusOK, submitResponse{Success: true, Message: "accepted", BatchID: lastBatchID})
}

// batchStatusResponse is the body of GET /api/v1/bce/batch/{batch_id}/status.
type batchStatusResponse struct {
	BatchID string `json:"batch_id"`
	RecordCount int `json:"record_count"`
	TotalChargesCents int64 `json:"total_charges_cents"`
	ProcessingStatus string `json:"processing_status"`
}

// HandleBatchStatus handles GET /api/v1/bce/batch/{batch_id}/status.
func (h *Handlers) HandleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/bce/batch/"), "/status")
	if id == "" {
		writeError(w, http.StatusBadRequest, "batch_id required")
		return
	}

	batchID, err := parseBatchID(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch_id")
		return
	}

	batch, err := h.batches.Get(batchID)
	if err == storage.ErrKeyNotFound {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, batchStatusResponse{
		BatchID: batch.ID.String(),
		RecordCount: batch.RecordCount(),
		TotalChargesCents: batch.TotalWholesale(),
		ProcessingStatus: "sealed",
	})
}

// HandleStats handles GET /api/v1/bce/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.pipeline.GetStats())
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status string `json:"status"`
	Service string `json:"service"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "SP-BCE-Ingestion"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
