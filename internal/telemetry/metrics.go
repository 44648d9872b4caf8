// Copyright 2025 Certen Protocol
//
// Prometheus counters for the pipeline and consensus stats (records_in,
// batches_sealed, settlements_final, consensus rounds).
// github.com/prometheus/client_golang is already a direct dependency;
// this package gives it its first concrete collector registration.

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide set of Prometheus collectors this node
// exposes on /metrics.
type Metrics struct {
	RecordsIngested     prometheus.Counter
	BatchesSealed       prometheus.Counter
	BatchesProofFailed  prometheus.Counter
	SettlementsProposed prometheus.Counter
	SettlementsFinal    prometheus.Counter
	SettlementsRejected prometheus.Counter
	NettingOffers       prometheus.Counter
	ConsensusRounds     prometheus.Counter
	ConsensusHeight     prometheus.Gauge
}

// NewMetrics registers and returns a fresh Metrics set on a dedicated
// registry (never the global default, so repeated test construction
// doesn't panic on duplicate registration).
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		RecordsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_records_ingested_total",
			Help: "Total BCE records accepted by process_bce_record.",
		}),
		BatchesSealed: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_batches_sealed_total",
			Help: "Total BCEBatches sealed, by size or period trigger.",
		}),
		BatchesProofFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_batches_proof_failed_total",
			Help: "Total batches whose cdr_privacy proof failed after retry.",
		}),
		SettlementsProposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_settlements_proposed_total",
			Help: "Total SettlementProposals emitted.",
		}),
		SettlementsFinal: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_settlements_final_total",
			Help: "Total Settlement transactions finalized on-chain.",
		}),
		SettlementsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_settlements_rejected_total",
			Help: "Total settlement proposals rejected (threshold or bad proof).",
		}),
		NettingOffers: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_netting_offers_total",
			Help: "Total triangular netting offers accepted.",
		}),
		ConsensusRounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "spcdr_consensus_rounds_total",
			Help: "Total consensus round advances (leader timeouts).",
		}),
		ConsensusHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spcdr_consensus_height",
			Help: "Latest committed block height.",
		}),
	}
	return m, reg
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
