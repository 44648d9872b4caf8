// Copyright 2025 Certen Protocol
//
// sp-validator is the node binary: it wires the BCE ingestion pipeline,
// the libp2p network layer, the CometBFT-backed consensus application,
// the settlement protocol, and the HTTP API into one running process.

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/certen/sp-cdr-settlement/internal/config"
	"github.com/certen/sp-cdr-settlement/internal/consensus"
	"github.com/certen/sp-cdr-settlement/internal/httpapi"
	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/netp2p"
	"github.com/certen/sp-cdr-settlement/internal/pipeline"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
	"github.com/certen/sp-cdr-settlement/internal/settlement"
	"github.com/certen/sp-cdr-settlement/internal/storage"
	"github.com/certen/sp-cdr-settlement/internal/telemetry"
	"github.com/certen/sp-cdr-settlement/internal/zkp"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to a YAML settings file overlaying env-var defaults")
		dataDir    = flag.String("data-dir", "./data", "directory for keys, CometBFT state, and sealed batches")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if *configFile != "" {
		if err := cfg.LoadYAML(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, "load yaml config:", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(telemetry.LogConfig{Level: telemetry.ParseLevel(cfg.LogLevel), Format: cfg.LogFormat, Output: "stdout"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	metrics, promReg := telemetry.NewMetrics()
	logger.Info("starting sp-validator", "operator", cfg.OperatorName, "chain_id", cfg.ChainID)

	own := primitives.NewOperator(cfg.OperatorName, cfg.OperatorMCC, cfg.OperatorMNC)

	if !zkp.KeysExist(cfg.KeysDir, zkp.CircuitCDRPrivacy) || !zkp.KeysExist(cfg.KeysDir, zkp.CircuitSettlementCalculation) {
		logger.Error("proving keys missing; run sp-ceremony first", "keys_dir", cfg.KeysDir)
		os.Exit(1)
	}
	harness := zkp.NewHarness(cfg.KeysDir)
	if err := harness.LoadKeys(zkp.CircuitCDRPrivacy); err != nil {
		logger.Error("load cdr_privacy keys", "error", err)
		os.Exit(1)
	}
	if err := harness.LoadKeys(zkp.CircuitSettlementCalculation); err != nil {
		logger.Error("load settlement_calculation keys", "error", err)
		os.Exit(1)
	}

	votingKey, err := loadOrGenerateVotingKey(filepath.Join(*dataDir, "voting_key.hex"))
	if err != nil {
		logger.Error("load voting key", "error", err)
		os.Exit(1)
	}
	batchKey, err := loadOrGenerateSymmetricKey(filepath.Join(*dataDir, "batch_key.hex"))
	if err != nil {
		logger.Error("load batch encryption key", "error", err)
		os.Exit(1)
	}

	kv, err := storage.NewCometKV(filepath.Join(*dataDir, "kv"), "sp-cdr-settlement")
	if err != nil {
		logger.Error("open kv store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	stateStore := storage.NewStateStore(kv)
	validatorStore := storage.NewValidatorSnapshotStore(kv)
	blockStore := storage.NewBlockStore(kv)
	_ = blockStore // populated by the macro/micro block assembly loop, wired once that loop lands here.

	batchStore, err := storage.NewBatchStore(filepath.Join(*dataDir, "batches"))
	if err != nil {
		logger.Error("open batch store", "error", err)
		os.Exit(1)
	}

	_, validators, err := validatorStore.Latest()
	if err != nil {
		logger.Error("load validator snapshot", "error", err)
		os.Exit(1)
	}
	if len(validators) == 0 {
		validators = []ledger.ValidatorInfo{selfAsGenesisValidator(own, votingKey)}
		if err := validatorStore.Put(0, validators); err != nil {
			logger.Error("persist genesis validator snapshot", "error", err)
			os.Exit(1)
		}
	}
	validatorSet := ledger.NewValidatorSet(validators)

	app := consensus.NewApp(cfg.ChainID, validatorSet, stateStore, nil, logger)
	liveness := consensus.NewLivenessTracker()
	app.SetElection(consensus.NewElection(len(validators), liveness))

	cometNode, err := consensus.Bootstrap(consensus.NodeConfig{
		RootDir:     filepath.Join(*dataDir, "cometbft"),
		Moniker:     cfg.OperatorName,
		ChainID:     cfg.ChainID,
		ListenP2P:   "tcp://0.0.0.0:26656",
		ListenRPC:   "tcp://127.0.0.1:26657",
		GenesisTime: time.Unix(0, 0).UTC(),
		Validators:  validators,
	}, app)
	if err != nil {
		logger.Error("bootstrap cometbft node", "error", err)
		os.Exit(1)
	}

	txOut := make(chan ledger.Transaction, 256)

	onBatchSealed := func(ctx context.Context, batch *pipeline.BCEBatch) {
		metrics.BatchesSealed.Inc()
		assignment, err := zkp.BuildCDRPrivacyAssignment(zkp.CDRPrivacyPublicInputs{
			MerkleRoot: batch.MerkleRoot, TotalWholesale: batch.TotalWholesale(), TotalRetail: batch.TotalRetail(),
			RecordCount: batch.RecordCount(), HomePLMN: batch.Key.HomePLMN, VisitedPLMN: batch.Key.VisitedPLMN,
			Period: batch.Key.Period,
		}, chargesFor(batch), batchKey)
		if err != nil {
			logger.Error("build cdr_privacy witness", "batch_id", batch.ID.String(), "error", err)
			return
		}
		proof, err := harness.ProveWithRetry(zkp.CircuitCDRPrivacy, assignment, 3)
		if err != nil {
			logger.Error("prove cdr_privacy", "batch_id", batch.ID.String(), "error", err)
			return
		}
		if err := batchStore.Put(batch); err != nil {
			logger.Error("persist sealed batch", "batch_id", batch.ID.String(), "error", err)
			return
		}
		ciphertext, err := pipeline.EncryptBatch(batch, batchKey)
		if err != nil {
			logger.Error("encrypt sealed batch", "batch_id", batch.ID.String(), "error", err)
			return
		}
		txOut <- ledger.Transaction{
			Sender: primitives.SumHash(own.CanonicalBytes()),
			Data: ledger.CDRRecordPayload{
				RecordType:    string(batch.Records[0].RecordType),
				Home:          networkIDFromPLMN(batch.Key.HomePLMN),
				Visited:       networkIDFromPLMN(batch.Key.VisitedPLMN),
				EncryptedData: ciphertext,
				ZKProof:       proof,
			},
		}
	}

	pl := pipeline.New(pipeline.Config{OwnPLMN: own.PLMN(), BatchSize: cfg.BatchSize, Logger: logger}, onBatchSealed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	netCmd := make(chan netp2p.Command, 256)
	host, err := netp2p.NewHost(ctx, cfg.ListenMultiaddr, votingKey, logger)
	if err != nil {
		logger.Error("start network host", "error", err)
		os.Exit(1)
	}
	defer host.Close()
	go forwardCommands(ctx, netCmd, host.Commands())
	for _, addr := range cfg.BootstrapPeers {
		host.Commands() <- netp2p.Command{Kind: netp2p.CommandDial, Addr: addr}
	}

	settleCfg := settlement.Config{
		Own: own, SettlementThresholdCents: cfg.SettlementThresholdCents,
		AutoAcceptThresholdCents: cfg.AutoAcceptThresholdCents, EnableTriangularNetting: cfg.EnableTriangularNetting,
		ProposalExpiryBlocks: cfg.ProposalExpiryBlocks, Logger: logger,
	}
	coordinator := settlement.NewCoordinator(settleCfg, harness, netCmd, txOut)
	go dispatchNetworkEvents(ctx, host.Events(), coordinator, logger)

	submitter, err := consensus.NewTxSubmitter("tcp://127.0.0.1:26657", logger)
	if err != nil {
		logger.Error("create tx submitter", "error", err)
		os.Exit(1)
	}

	sigVerifier := httpapi.NewECDSAVerifier(nil)
	handlers := httpapi.NewHandlers(pl, batchStore, sigVerifier, logger)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: httpapi.NewRouter(handlers)}

	metricsServer := &http.Server{Addr: ":9090", Handler: telemetry.Handler(promReg)}

	go func() {
		if err := cometNode.Start(); err != nil {
			logger.Error("start cometbft node", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(500 * time.Millisecond) // give the node's RPC listener a moment to come up
	if err := submitter.Start(); err != nil {
		logger.Error("start tx submitter rpc client", "error", err)
		os.Exit(1)
	}
	go submitter.Run(ctx, txOut)

	go func() {
		logger.Info("http api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	pl.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := cometNode.Stop(); err != nil {
		logger.Error("cometbft node stop", "error", err)
	}
	logger.Info("stopped")
}

// loadOrGenerateVotingKey follows the same hex-file-with-0600-perms
// in main.go: load an existing hex-encoded key, or generate and persist a
// fresh one with owner-only permissions.
func loadOrGenerateVotingKey(path string) (ed25519.PrivateKey, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode voting key: %w", err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid voting key size: expected %d, got %d", ed25519.PrivateKeySize, len(raw))
		}
		return ed25519.PrivateKey(raw), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate voting key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return nil, fmt.Errorf("save voting key: %w", err)
	}
	return priv, nil
}

// loadOrGenerateSymmetricKey loads or generates the 32-byte chacha20poly1305
// key this operator encrypts its own sealed batches under, the same
// load-or-create pattern as loadOrGenerateVotingKey.
func loadOrGenerateSymmetricKey(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode batch key: %w", err)
		}
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate batch key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("save batch key: %w", err)
	}
	return key, nil
}

// networkIDFromPLMN recovers a NetworkId from a 5-6 digit PLMN, the
// display name a batch key itself doesn't carry.
func networkIDFromPLMN(plmn string) primitives.NetworkId {
	mcc, mnc := plmn[:3], plmn[3:]
	return primitives.NewOperator("", mcc, mnc)
}

func selfAsGenesisValidator(own primitives.NetworkId, votingKey ed25519.PrivateKey) ledger.ValidatorInfo {
	var v ledger.ValidatorInfo
	v.Address = primitives.SumHash(own.CanonicalBytes())
	copy(v.VotingKey[:], votingKey.Public().(ed25519.PublicKey))
	v.Stake = 1
	return v
}

func chargesFor(batch *pipeline.BCEBatch) []zkp.RecordCharge {
	charges := make([]zkp.RecordCharge, len(batch.Records))
	for i, r := range batch.Records {
		charges[i] = zkp.RecordCharge{Wholesale: r.WholesaleCharge, Retail: r.RetailCharge}
	}
	return charges
}

func forwardCommands(ctx context.Context, in <-chan netp2p.Command, out chan<- netp2p.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-in:
			out <- cmd
		}
	}
}

// dispatchNetworkEvents routes gossip received on the settlement topic to
// the Coordinator; events of every other kind and topic are ignored (the
// pipeline consumes no network events, and CometBFT runs its own
// networking).
func dispatchNetworkEvents(ctx context.Context, events <-chan netp2p.Event, coordinator *settlement.Coordinator, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind != netp2p.EventGossipReceived || ev.Topic != netp2p.TopicSettlement {
				continue
			}
			switch ev.Msg.Type {
			case netp2p.MsgSettlementProposal:
				msg, err := netp2p.DecodeSettlementProposal(ev.Msg)
				if err != nil {
					logger.Warn("decode settlement proposal", "error", err)
					continue
				}
				// TODO: look up this node's own sealed batch roots for
				// msg.PeriodHash instead of reusing it as a stand-in.
				if _, _, err := coordinator.HandleProposal(msg, msg.PeriodHash, msg.PeriodHash); err != nil {
					logger.Warn("handle settlement proposal", "error", err)
				}
			case netp2p.MsgSettlementAcceptance:
				msg, err := netp2p.DecodeSettlementAcceptance(ev.Msg)
				if err != nil {
					logger.Warn("decode settlement acceptance", "error", err)
					continue
				}
				if err := coordinator.HandleAcceptance(msg); err != nil {
					logger.Warn("handle settlement acceptance", "error", err)
				}
			case netp2p.MsgSettlementRejection:
				msg, err := netp2p.DecodeSettlementRejection(ev.Msg)
				if err != nil {
					logger.Warn("decode settlement rejection", "error", err)
					continue
				}
				if err := coordinator.HandleRejection(msg); err != nil {
					logger.Warn("handle settlement rejection", "error", err)
				}
			}
		}
	}
}
