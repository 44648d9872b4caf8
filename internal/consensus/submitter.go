// Copyright 2025 Certen Protocol
//
// TxSubmitter pushes locally produced transactions (sealed CDR batches,
// settlement proposals/acceptances) into CometBFT's mempool over its RPC
// client. Adapted from pkg/consensus/bft_integration.go's
// BroadcastTxSync-with-retry path, trimmed to the sync-submit half: this
// chain's transaction results are observed through TxResultRecorder at
// FinalizeBlock time rather than polled for via Tx().

package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
)

// TxSubmitter wraps a CometBFT RPC client for mempool submission.
type TxSubmitter struct {
	client *rpchttp.HTTP
	log    *slog.Logger
}

// NewTxSubmitter builds an RPC client for the local node's RPC listen
// address (e.g. "tcp://127.0.0.1:26657"). An address without a scheme is
// rejected; the connection itself is made by Start.
func NewTxSubmitter(rpcAddr string, logger *slog.Logger) (*TxSubmitter, error) {
	if u, err := url.Parse(rpcAddr); err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("consensus: malformed rpc address %q", rpcAddr)
	}
	client, err := rpchttp.New(rpcAddr, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("consensus: create rpc client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxSubmitter{client: client, log: logger.With("component", "tx_submitter")}, nil
}

// Start connects the underlying RPC client; call once the node is running.
func (s *TxSubmitter) Start() error { return s.client.Start() }

// Submit encodes tx and submits it to the mempool with up to 3 attempts,
// a small, fixed retry budget rather than retrying indefinitely.
func (s *TxSubmitter) Submit(ctx context.Context, tx ledger.Transaction) error {
	payload, err := EncodeTx(tx)
	if err != nil {
		return fmt.Errorf("consensus: encode transaction: %w", err)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		submitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		res, err := s.client.BroadcastTxSync(submitCtx, payload)
		cancel()
		if err == nil {
			if res.Code != 0 {
				return fmt.Errorf("consensus: transaction rejected by mempool: %s", res.Log)
			}
			return nil
		}
		lastErr = err
		s.log.Warn("broadcast_tx_sync attempt failed", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	return fmt.Errorf("consensus: broadcast_tx_sync failed after %d attempts: %w", maxAttempts, lastErr)
}

// Run drains txOut, submitting every transaction the pipeline/settlement
// layers produce, until ctx is canceled.
func (s *TxSubmitter) Run(ctx context.Context, txOut <-chan ledger.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-txOut:
			if err := s.Submit(ctx, tx); err != nil {
				s.log.Error("failed to submit transaction", "kind", tx.Data.Kind().String(), "error", err)
			}
		}
	}
}
