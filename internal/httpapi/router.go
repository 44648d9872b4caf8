// Copyright 2025 Certen Protocol
//
// NewRouter wires Handlers onto the BCE ingestion API's five routes,
// wrapped in an any-origin CORS policy (GET, POST, content-type) and a
// request-ID tag for log correlation, grounded on a uuid.New()-per-ID
// convention used elsewhere for proof and batch identifiers.

package httpapi

import (
	"net/http"

	"github.com/google/uuid"
)

// NewRouter builds the *http.ServeMux for the BCE ingestion API.
func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/bce/submit", h.HandleSubmit)
	mux.HandleFunc("/api/v1/bce/batch/submit", h.HandleBatchSubmit)
	mux.HandleFunc("/api/v1/bce/batch/", h.HandleBatchStatus)
	mux.HandleFunc("/api/v1/bce/stats", h.HandleStats)
	mux.HandleFunc("/health", h.HandleHealth)
	return withCORS(withRequestID(mux))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID tags every response with a fresh request ID, so an
// operator reporting a failed submission can hand back one value that
// correlates their client log with this node's own.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.New().String())
		next.ServeHTTP(w, r)
	})
}
