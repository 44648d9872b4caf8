// Copyright 2025 Certen Protocol
//
// ABCI application wired to CometBFT, guarded by one mutex over
// height/app-hash/block-in-flight state: the same lifecycle
// (Info/CheckTx/FinalizeBlock/Commit under one mutex, restore-on-construct
// from persisted ABCI state), but executing ledger.Transaction/
// ledger.Payload and updating a ledger.ValidatorSet instead of a raw
// validator-block cache.

package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// State is the durable ABCI checkpoint an App restores from on restart,
// restored on construct from a persisted State.
type State struct {
	LastBlockHeight int64
	LastBlockAppHash []byte
}

// StateStore persists the ABCI checkpoint. internal/storage provides a
// KV-backed implementation (cometbft-db or Postgres); tests use an
// in-memory one.
type StateStore interface {
	LoadState() (*State, error)
	SaveState(*State) error
}

// TxResultRecorder is notified of each applied transaction's outcome so the
// settlement and pipeline layers can react (proposal finalized, validator
// rotated, etc). Optional: App works with a nil recorder.
type TxResultRecorder interface {
	OnTransactionApplied(height uint64, tx ledger.Transaction, err error)
}

// App implements the CometBFT abcitypes.Application interface for this
// chain's one transaction kind set: CDR record commitments, settlement
// proposals, and validator-set updates.
type App struct {
	log *slog.Logger
	store StateStore
	rec TxResultRecorder

	chainID string

	mu sync.Mutex
	latestHeight int64
	lastCommitHash []byte
	validators *ledger.ValidatorSet
	currentBlockHeight uint64
	currentBlockHash []byte
	currentElection *Election

	appliedTxs []ledger.Transaction // transactions finalized in the in-flight block
}

// NewApp constructs an App bound to chainID, restoring persisted ABCI state
// from store if present.
func NewApp(chainID string, validators *ledger.ValidatorSet, store StateStore, rec TxResultRecorder, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		log: logger,
		store: store,
		rec: rec,
		chainID: chainID,
		validators: validators,
	}
	if st, err := store.LoadState(); err != nil {
		logger.Warn("consensus: failed to restore ABCI state, starting from genesis", "error", err)
	} else if st != nil {
		app.latestHeight = st.LastBlockHeight
		app.lastCommitHash = st.LastBlockAppHash
	}
	return app
}

var _ abcitypes.Application = (*App)(nil)

// SetElection wires the epoch-rotation policy this App runs at election
// heights. Left nil, FinalizeBlock skips rotation (useful for tests that
// only exercise transaction application).
func (app *App) SetElection(e *Election) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.currentElection = e
}

// Validators exposes the validator set this App mutates, for wiring into
// internal/consensus's SelectLeader and RoundState from the node's main
// driver loop.
func (app *App) Validators() *ledger.ValidatorSet { return app.validators }

// Info reports the application's current height and app hash so CometBFT
// can detect a height mismatch after a restart.
func (app *App) Info(_ context.Context, _ *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	return &abcitypes.ResponseInfo{
		Data: "sp-cdr-settlement",
		Version: "1.0.0",
		AppVersion: 1,
		LastBlockHeight: app.latestHeight,
		LastBlockAppHash: app.lastCommitHash,
	}, nil
}

// CheckTx validates a transaction before it enters the mempool.
func (app *App) CheckTx(_ context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	tx, err := decodeTx(req.Tx)
	if err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: "malformed transaction: " + err.Error()}, nil
	}
	if err := tx.IsValid(); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 2, Log: "invalid transaction: " + err.Error()}, nil
	}
	return &abcitypes.ResponseCheckTx{Code: 0, GasWanted: 1, GasUsed: 1}, nil
}

// InitChain acknowledges chain initialization. The validator set is the
// one passed to NewApp; req.Validators is not applied here.
func (app *App) InitChain(_ context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	return &abcitypes.ResponseInitChain{}, nil
}

func (app *App) PrepareProposal(_ context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

func (app *App) ProcessProposal(_ context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, raw := range req.Txs {
		tx, err := decodeTx(raw)
		if err != nil || tx.IsValid() != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// FinalizeBlock applies every transaction in the block to the validator set
// (CDR/settlement payloads are applied by internal/pipeline and
// internal/settlement, which observe committed blocks separately; this
// application is only responsible for consensus-level state, the
// ledger.ValidatorSet).
func (app *App) FinalizeBlock(_ context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.currentBlockHeight = uint64(req.Height)
	app.currentBlockHash = req.Hash
	app.appliedTxs = app.appliedTxs[:0]

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		result, tx, applyErr := app.applyTx(raw)
		results[i] = &result
		if applyErr == nil {
			app.appliedTxs = append(app.appliedTxs, tx)
		}
		if app.rec != nil {
			app.rec.OnTransactionApplied(app.currentBlockHeight, tx, applyErr)
		}
	}

	if ledger.IsElectionHeight(app.currentBlockHeight) && app.currentElection != nil {
		rotated := app.currentElection.Rotate(app.validators)
		app.log.Info("consensus: election height rotation", "height", app.currentBlockHeight, "validators", len(rotated))
	}

	return &abcitypes.ResponseFinalizeBlock{TxResults: results}, nil
}

func (app *App) applyTx(raw []byte) (abcitypes.ExecTxResult, ledger.Transaction, error) {
	tx, err := decodeTx(raw)
	if err != nil {
		return abcitypes.ExecTxResult{Code: 1, Log: err.Error()}, tx, err
	}
	if err := tx.IsValid(); err != nil {
		return abcitypes.ExecTxResult{Code: 2, Log: err.Error()}, tx, err
	}
	if update, ok := tx.Data.(ledger.ValidatorUpdatePayload); ok {
		if err := app.validators.Apply(update, app.currentBlockHeight); err != nil {
			return abcitypes.ExecTxResult{Code: 3, Log: err.Error()}, tx, err
		}
	}
	return abcitypes.ExecTxResult{
		Code: 0,
		Events: []abcitypes.Event{{
			Type: "transaction",
			Attributes: []abcitypes.EventAttribute{
				{Key: "kind", Value: tx.Data.Kind().String()},
				{Key: "sender", Value: tx.Sender.String()},
			},
		}},
	}, tx, nil
}

// Commit advances the height and persists the ABCI checkpoint.
func (app *App) Commit(_ context.Context, _ *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.latestHeight++
	app.lastCommitHash = app.appHash()

	if err := app.store.SaveState(&State{
		LastBlockHeight: app.latestHeight,
		LastBlockAppHash: app.lastCommitHash,
	}); err != nil {
		app.log.Error("consensus: failed to persist ABCI state", "error", err)
	}

	retain := app.latestHeight - 100
	if retain < 0 {
		retain = 0
	}
	return &abcitypes.ResponseCommit{RetainHeight: retain}, nil
}

// appHash derives the application hash from the current validator set and
// block hash, standing in for a full state-tree root.
func (app *App) appHash() []byte {
	snap := app.validators.Snapshot()
	parts := make([][]byte, 0, len(snap)+1)
	parts = append(parts, app.currentBlockHash)
	for _, v := range snap {
		parts = append(parts, v.CanonicalBytes())
	}
	digest := primitives.SumHashConcat(parts...)
	return digest.Bytes()
}

func (app *App) Query(_ context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	switch req.Path {
	case "/validators":
		body, err := json.Marshal(app.validators.Snapshot())
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		return &abcitypes.ResponseQuery{Code: 0, Value: body}, nil
	default:
		return &abcitypes.ResponseQuery{Code: 1, Log: fmt.Sprintf("unknown query path %q", req.Path)}, nil
	}
}

func (app *App) ExtendVote(_ context.Context, _ *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *App) VerifyVoteExtension(_ context.Context, _ *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (app *App) ListSnapshots(_ context.Context, _ *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (app *App) OfferSnapshot(_ context.Context, _ *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}, nil
}

func (app *App) LoadSnapshotChunk(_ context.Context, _ *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (app *App) ApplySnapshotChunk(_ context.Context, _ *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}, nil
}

func decodeTx(raw []byte) (ledger.Transaction, error) {
	var wire wireTx
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ledger.Transaction{}, err
	}
	return wire.toTransaction()
}
