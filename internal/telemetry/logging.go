// Copyright 2025 Certen Protocol
//
// Structured logging configuration shared by every long-running component
// (pipeline, network, consensus, settlement). Grounded on the
// accumulate-lite-client-2/liteclient/logging.Config{Level,Format,Output}
// wrapper around slog.Logger — the richest logging sub-package in the
// pack — carried forward as a fresh package since the lite-client module
// itself has no home in this domain (DESIGN.md).

package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures the process-wide structured logger.
type LogConfig struct {
	Level slog.Level
	Format string // "json" or "text"
	Output string // "stdout", "stderr", or a file path
}

// DefaultLogConfig returns the settings a node runs with absent overrides.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: slog.LevelInfo, Format: "json", Output: "stdout"}
}

// NewLogger builds a *slog.Logger per cfg. Every component that takes a
// *slog.Logger field (internal/pipeline.Config.Logger,
// internal/netp2p.NewHost, internal/consensus.NewApp) is expected to be
// constructed from the same process-wide logger via .With("component", ...).
func NewLogger(cfg LogConfig) (*slog.Logger, error) {
	var out *os.File
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("telemetry: open log file %q: %w", cfg.Output, err)
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), nil
}

// ParseLevel parses a level name ("debug", "info", "warn", "error"),
// defaulting to info on an unrecognized value.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithBatch returns a child logger tagged with a batch_id field, the
// correlation ID needed for internal batch-sealing failures.
func WithBatch(log *slog.Logger, batchID string) *slog.Logger {
	return log.With("batch_id", batchID)
}

// WithProposal returns a child logger tagged with a proposal_hash field,
// the correlation ID needed for settlement-protocol failures.
func WithProposal(log *slog.Logger, proposalHash string) *slog.Logger {
	return log.With("proposal_hash", proposalHash)
}
