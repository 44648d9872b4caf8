// Copyright 2025 Certen Protocol
//
// Bootstrap itself spins up a real CometBFT node.Node and isn't exercised
// here, since doing so would require a live multi-node network; writeGenesisIfNeeded
// and the key-type adapter it depends on are plain functions and get direct
// coverage instead.

package consensus

import (
	"bytes"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfg "github.com/cometbft/cometbft/config"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

func testValidators(t *testing.T, n int) []ledger.ValidatorInfo {
	t.Helper()
	validators := make([]ledger.ValidatorInfo, n)
	for i := range validators {
		pub, _, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("generate voting key: %v", err)
		}
		var votingKey [32]byte
		copy(votingKey[:], pub)
		validators[i] = ledger.ValidatorInfo{
			Address:   primitives.SumHash([]byte{byte(i)}),
			VotingKey: votingKey,
			Stake:     uint64(10 * (i + 1)),
		}
	}
	return validators
}

func TestWriteGenesisIfNeeded_WritesValidatorSetFromVotingKeys(t *testing.T) {
	root := t.TempDir()
	cometCfg := cfg.DefaultConfig()
	cometCfg.SetRoot(root)
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}

	nc := NodeConfig{
		ChainID:     "sp-test-chain",
		GenesisTime: time.Unix(1700000000, 0).UTC(),
		Validators:  testValidators(t, 3),
	}

	if err := writeGenesisIfNeeded(cometCfg, nc); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	doc, err := cmttypes.GenesisDocFromFile(cometCfg.GenesisFile())
	if err != nil {
		t.Fatalf("read genesis: %v", err)
	}
	if doc.ChainID != nc.ChainID {
		t.Errorf("chain id = %q, want %q", doc.ChainID, nc.ChainID)
	}
	if len(doc.Validators) != len(nc.Validators) {
		t.Fatalf("expected %d genesis validators, got %d", len(nc.Validators), len(doc.Validators))
	}
	for i, v := range doc.Validators {
		if v.Power != int64(nc.Validators[i].Stake) {
			t.Errorf("validator %d power = %d, want %d", i, v.Power, nc.Validators[i].Stake)
		}
	}
}

func TestWriteGenesisIfNeeded_SkipsExistingGenesis(t *testing.T) {
	root := t.TempDir()
	cometCfg := cfg.DefaultConfig()
	cometCfg.SetRoot(root)
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}

	nc := NodeConfig{ChainID: "first", Validators: testValidators(t, 1)}
	if err := writeGenesisIfNeeded(cometCfg, nc); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	nc2 := NodeConfig{ChainID: "second", Validators: testValidators(t, 2)}
	if err := writeGenesisIfNeeded(cometCfg, nc2); err != nil {
		t.Fatalf("write genesis again: %v", err)
	}

	doc, err := cmttypes.GenesisDocFromFile(cometCfg.GenesisFile())
	if err != nil {
		t.Fatalf("read genesis: %v", err)
	}
	if doc.ChainID != "first" {
		t.Fatalf("expected genesis to remain unchanged, got chain id %q", doc.ChainID)
	}
}

func TestEd25519VotingPubKey_AddressIsDeterministic(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var raw [32]byte
	copy(raw[:], pub)

	a := ed25519VotingPubKey(raw)
	b := ed25519VotingPubKey(raw)
	if !bytes.Equal(a.Address(), b.Address()) {
		t.Fatal("expected the same raw key to produce the same cometbft address")
	}
}
