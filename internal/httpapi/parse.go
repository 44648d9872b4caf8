// Copyright 2025 Certen Protocol

package httpapi

import (
	"encoding/hex"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/pipeline"
)

// parseBatchID decodes a hex-encoded batch ID from a URL path segment.
func parseBatchID(s string) (pipeline.BatchID, error) {
	var id pipeline.BatchID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("httpapi: decode batch_id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("httpapi: batch_id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
