// Copyright 2025 Certen Protocol
//
// Pipeline: the BCE ingestion and batching state machine. One open batch
// per (home,visited,currency,period), enforced by a key→state map so at
// most one batch can be accumulating for a given key at a time. Grounded
// on the mutex-guarded Collector in pkg/batch/collector.go, generalized
// from two fixed batch lanes (on-cadence/on-demand) to an arbitrary-key
// map, and from size-only closing to a size-or-period-boundary policy.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrWrongOperator = errors.New("pipeline: home_plmn does not match this operator")
	ErrPipelineClosed = errors.New("pipeline: pipeline is closed")
)

// Config configures a Pipeline instance.
type Config struct {
	// OwnPLMN is this operator's PLMN; ingress records whose home_plmn
	// doesn't match are rejected with ErrWrongOperator.
	OwnPLMN string
	// BatchSize is the size-triggered seal threshold (record_count).
	BatchSize int
	Logger *slog.Logger
}

// OnBatchSealed is invoked synchronously whenever a batch seals, handing
// the immutable BCEBatch to whatever builds the cdr_privacy proof and the
// resulting CDRRecord transaction (in cmd/sp-validator, a callback that
// proves with internal/zkp, stores and encrypts the batch, and emits the
// transaction).
type OnBatchSealed func(ctx context.Context, batch *BCEBatch)

// Stats is a snapshot of the pipeline's ingestion and batching counters.
type Stats struct {
	RecordsIn int64
	BatchesOpen int64
	BatchesSealed int64
	SettlementsProposed int64
	SettlementsFinal int64
}

// Pipeline ingests BCERecords and seals them into BCEBatches.
type Pipeline struct {
	cfg Config
	log *slog.Logger

	mu sync.Mutex
	open map[BatchKey]*openBatch
	closed bool

	onSealed OnBatchSealed

	recordsIn atomic.Int64
	batchesSealed atomic.Int64
	settlementsProposed atomic.Int64
	settlementsFinal atomic.Int64
}

// New constructs a Pipeline. onSealed may be nil during tests that only
// exercise ingestion.
func New(cfg Config, onSealed OnBatchSealed) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg: cfg,
		log: logger,
		open: make(map[BatchKey]*openBatch),
		onSealed: onSealed,
	}
}

// ProcessResult is returned by ProcessBCERecord.
type ProcessResult struct {
	BatchID BatchID
	Duplicate bool
	BatchSealed bool
}

// ProcessBCERecord validates r, appends it to the open batch for its key,
// and seals the batch if it has reached BatchSize. Duplicate record_ids
// are accepted idempotently: the call succeeds
// and BatchID/Duplicate are populated, but the record is not counted
// twice.
func (p *Pipeline) ProcessBCERecord(ctx context.Context, r BCERecord) (*ProcessResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if p.cfg.OwnPLMN != "" && r.HomePLMN != p.cfg.OwnPLMN {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongOperator, r.HomePLMN, p.cfg.OwnPLMN)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPipelineClosed
	}

	key := keyFor(r)
	batch, ok := p.open[key]
	if !ok {
		batch = newOpenBatch(key)
		p.open[key] = batch
	}

	added := batch.add(r)
	if added {
		p.recordsIn.Add(1)
	}

	result := &ProcessResult{BatchID: batch.id, Duplicate: !added}

	var sealed *BCEBatch
	if len(batch.records) >= p.cfg.BatchSize {
		var err error
		sealed, err = batch.seal()
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		delete(p.open, key)
		result.BatchSealed = true
	}
	p.mu.Unlock()

	if sealed != nil {
		p.batchesSealed.Add(1)
		p.log.Info("batch sealed", "batch_id", sealed.ID.String(), "records", sealed.RecordCount(), "trigger", "size")
		if p.onSealed != nil {
			p.onSealed(ctx, sealed)
		}
	}

	return result, nil
}

// SealPeriod force-seals the open batch for key, if any, regardless of
// its size — the time-triggered seal path that closes a batch at the
// current period boundary regardless of count. The pipeline runs no timer
// of its own and cmd/sp-validator does not call this, so batches there
// seal only by size.
func (p *Pipeline) SealPeriod(ctx context.Context, key BatchKey) error {
	p.mu.Lock()
	batch, ok := p.open[key]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	sealed, err := batch.seal()
	if err != nil {
		p.mu.Unlock()
		if errors.Is(err, ErrEmptyBatch) {
			delete(p.open, key)
			return nil
		}
		return err
	}
	delete(p.open, key)
	p.mu.Unlock()

	p.batchesSealed.Add(1)
	p.log.Info("batch sealed", "batch_id", sealed.ID.String(), "records", sealed.RecordCount(), "trigger", "period")
	if p.onSealed != nil {
		p.onSealed(ctx, sealed)
	}
	return nil
}

// OpenKeys lists the keys with a currently open batch, for period-timer
// sweeps.
func (p *Pipeline) OpenKeys() []BatchKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]BatchKey, 0, len(p.open))
	for k := range p.open {
		keys = append(keys, k)
	}
	return keys
}

// RecordSettlementProposed increments the settlements_proposed stat. The
// settlement coordinator holds no Pipeline reference and does not call it.
func (p *Pipeline) RecordSettlementProposed() { p.settlementsProposed.Add(1) }

// RecordSettlementFinal increments the settlements_final stat. Like
// RecordSettlementProposed, nothing in the settlement or consensus
// packages calls it.
func (p *Pipeline) RecordSettlementFinal() { p.settlementsFinal.Add(1) }

// GetStats returns a snapshot of the pipeline's counters.
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	open := int64(len(p.open))
	p.mu.Unlock()
	return Stats{
		RecordsIn: p.recordsIn.Load(),
		BatchesOpen: open,
		BatchesSealed: p.batchesSealed.Load(),
		SettlementsProposed: p.settlementsProposed.Load(),
		SettlementsFinal: p.settlementsFinal.Load(),
	}
}

// Shutdown stops accepting new records. Batches still open are neither
// sealed nor written to disk; they stay in memory, listed by OpenKeys.
func (p *Pipeline) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
