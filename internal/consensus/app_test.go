// Copyright 2025 Certen Protocol

package consensus

import (
	"context"
	"testing"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

type memStore struct {
	state *State
}

func (m *memStore) LoadState() (*State, error) { return m.state, nil }
func (m *memStore) SaveState(s *State) error    { m.state = s; return nil }

func TestApp_CheckTxRejectsMissingSignature(t *testing.T) {
	vs := ledger.NewValidatorSet(nil)
	app := NewApp("test-chain", vs, &memStore{}, nil, nil)

	tx := ledger.Transaction{
		Sender: addr(1),
		Data:   ledger.ValidatorUpdatePayload{Action: ledger.ActionCreate, ValidatorAddress: addr(1), Stake: 10},
	}
	raw, err := EncodeTx(tx)
	if err != nil {
		t.Fatalf("encode tx: %v", err)
	}

	resp, err := app.CheckTx(context.Background(), &abcitypes.RequestCheckTx{Tx: raw})
	if err != nil {
		t.Fatalf("CheckTx returned error: %v", err)
	}
	if resp.Code == 0 {
		t.Fatal("expected CheckTx to reject a transaction with no signature")
	}
}

func TestApp_FinalizeBlockAppliesValidatorCreate(t *testing.T) {
	vs := ledger.NewValidatorSet(nil)
	app := NewApp("test-chain", vs, &memStore{}, nil, nil)

	raw := validatorCreateTx(t, addr(7), 25)
	resp, err := app.FinalizeBlock(context.Background(), &abcitypes.RequestFinalizeBlock{
		Height: 1,
		Hash:   []byte("block-hash"),
		Txs:    [][]byte{raw},
	})
	if err != nil {
		t.Fatalf("FinalizeBlock returned error: %v", err)
	}
	if len(resp.TxResults) != 1 || resp.TxResults[0].Code != 0 {
		t.Fatalf("expected the validator-create tx to apply cleanly, got %+v", resp.TxResults)
	}

	v, ok := vs.Get(addr(7))
	if !ok || v.Stake != 25 || !v.IsActive() {
		t.Fatalf("expected validator 7 to be created active with stake 25, got %+v ok=%v", v, ok)
	}

	if _, err := app.Commit(context.Background(), &abcitypes.RequestCommit{}); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
}

func validatorCreateTx(t *testing.T, address primitives.Hash, stake uint64) []byte {
	t.Helper()
	tx := ledger.Transaction{
		Sender: address,
		Data: ledger.ValidatorUpdatePayload{
			Action:           ledger.ActionCreate,
			ValidatorAddress: address,
			Stake:            stake,
		},
		Signature: []byte("sig"),
	}
	raw, err := EncodeTx(tx)
	if err != nil {
		t.Fatalf("encode tx: %v", err)
	}
	return raw
}

func TestApp_RestoresStateFromStore(t *testing.T) {
	store := &memStore{state: &State{LastBlockHeight: 42, LastBlockAppHash: []byte("hash-42")}}
	vs := ledger.NewValidatorSet(nil)
	app := NewApp("test-chain", vs, store, nil, nil)

	resp, err := app.Info(context.Background(), &abcitypes.RequestInfo{})
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if resp.LastBlockHeight != 42 {
		t.Fatalf("expected restored height 42, got %d", resp.LastBlockHeight)
	}
}
