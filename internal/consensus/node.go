// Copyright 2025 Certen Protocol
//
// Bootstrap wires an App into a real in-process CometBFT node: on-disk
// private validator key, node key, and a deterministic genesis document
// derived from this chain's own validator set. Adapted from
// pkg/consensus/bft_integration.go's NewRealCometBFTEngine (privval
// load-or-create under RootDir, DefaultGenesisDocProviderFunc, a
// cometbft-db-backed DBProvider) — generalized from that file's
// hardcoded four-validator testnet list to the ValidatorInfo set this
// App already carries.

package consensus

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	cfg "github.com/cometbft/cometbft/config"
	cmted25519 "github.com/cometbft/cometbft/crypto/ed25519"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmttypes "github.com/cometbft/cometbft/types"
	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
)

// NodeConfig configures the in-process CometBFT node Bootstrap creates.
type NodeConfig struct {
	RootDir      string // holds config/, data/, and key files
	Moniker      string
	ChainID      string
	ListenP2P    string // e.g. "tcp://0.0.0.0:26656"
	ListenRPC    string // e.g. "tcp://127.0.0.1:26657"
	GenesisTime  time.Time
	Validators   []ledger.ValidatorInfo // the chain's genesis validator set
}

// Bootstrap constructs (but does not start) a CometBFT node bound to app,
// loading or generating the private validator and node keys under
// nc.RootDir and writing a deterministic genesis document if none exists.
func Bootstrap(nc NodeConfig, app *App) (*node.Node, error) {
	cometCfg := cfg.DefaultConfig()
	cometCfg.SetRoot(nc.RootDir)
	cometCfg.Moniker = nc.Moniker
	if nc.ListenP2P != "" {
		cometCfg.P2P.ListenAddress = nc.ListenP2P
	}
	if nc.ListenRPC != "" {
		cometCfg.RPC.ListenAddress = nc.ListenRPC
	}

	for _, dir := range []string{cometCfg.RootDir, filepath.Join(cometCfg.RootDir, "config"), filepath.Join(cometCfg.RootDir, "data")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("consensus: create %s: %w", dir, err)
		}
	}

	if err := writeGenesisIfNeeded(cometCfg, nc); err != nil {
		return nil, fmt.Errorf("consensus: write genesis: %w", err)
	}

	pv := privval.LoadOrGenFilePV(cometCfg.PrivValidatorKeyFile(), cometCfg.PrivValidatorStateFile())

	nodeKey, err := p2p.LoadOrGenNodeKey(cometCfg.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("consensus: load or generate node key: %w", err)
	}

	dbProvider := func(ctx *cfg.DBContext) (dbm.DB, error) {
		return dbm.NewDB(ctx.ID, dbm.GoLevelDBBackend, filepath.Join(cometCfg.RootDir, "data"))
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "cometbft")

	n, err := node.NewNode(
		cometCfg,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(app),
		node.DefaultGenesisDocProviderFunc(cometCfg),
		dbProvider,
		node.DefaultMetricsProvider(cometCfg.Instrumentation),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("consensus: create cometbft node: %w", err)
	}
	return n, nil
}

// writeGenesisIfNeeded lays down a genesis document deriving CometBFT's
// own validator set from nc.Validators' Ed25519 voting keys, skipping the
// write if a genesis file already exists at cometCfg's configured path
// (so re-running Bootstrap against an existing data directory is a no-op
// here, so re-running Bootstrap against an existing data directory is a no-op.
func writeGenesisIfNeeded(cometCfg *cfg.Config, nc NodeConfig) error {
	genFile := cometCfg.GenesisFile()
	if _, err := os.Stat(genFile); err == nil {
		return nil
	}

	validators := make([]cmttypes.GenesisValidator, 0, len(nc.Validators))
	for _, v := range nc.Validators {
		pubKey := ed25519VotingPubKey(v.VotingKey)
		validators = append(validators, cmttypes.GenesisValidator{
			Address: pubKey.Address(),
			PubKey:  pubKey,
			Power:   int64(v.Stake),
			Name:    v.Address.Hex(),
		})
	}

	genesisTime := nc.GenesisTime
	if genesisTime.IsZero() {
		genesisTime = time.Unix(0, 0).UTC()
	}

	doc := &cmttypes.GenesisDoc{
		ChainID:         nc.ChainID,
		GenesisTime:     genesisTime,
		InitialHeight:   1,
		ConsensusParams: cmttypes.DefaultConsensusParams(),
		Validators:      validators,
		AppState:        []byte(`{}`),
	}
	return doc.SaveAs(genFile)
}

// ed25519VotingPubKey adapts a ValidatorInfo's raw 32-byte Ed25519 voting
// key to CometBFT's crypto.PubKey interface.
func ed25519VotingPubKey(raw [32]byte) cmted25519.PubKey {
	return cmted25519.PubKey(raw[:])
}
