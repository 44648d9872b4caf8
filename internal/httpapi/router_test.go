// Copyright 2025 Certen Protocol

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRouter_TagsResponsesWithARequestID(t *testing.T) {
	router := NewRouter(newTestHandlers(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	id := rec.Header().Get("X-Request-Id")
	if id == "" {
		t.Fatal("expected a non-empty X-Request-Id header")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	if rec2.Header().Get("X-Request-Id") == id {
		t.Fatal("expected a fresh request id per request")
	}
}

func TestNewRouter_HandlesCORSPreflight(t *testing.T) {
	router := NewRouter(newTestHandlers(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bce/submit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected any-origin CORS header")
	}
}
