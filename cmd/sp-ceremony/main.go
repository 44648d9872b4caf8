// Copyright 2025 Certen Protocol
//
// sp-ceremony runs the one-time Groth16 trusted setup for both circuits
// this network proves, then self-checks the written artifacts by
// loading them back into a fresh Harness. Supplemented from
// original_source/src/bin/trusted_setup_demo.rs's
// run_ceremony/verify_ceremony/keys_exist/load_circuit_keys sequence;
// logging follows the same structured-logger-over-flags convention as
// cmd/sp-validator.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/certen/sp-cdr-settlement/internal/telemetry"
	"github.com/certen/sp-cdr-settlement/internal/zkp"
)

func main() {
	var (
		keysDir = flag.String("keys-dir", "./keys", "directory to write proving/verifying key artifacts into")
		force   = flag.Bool("force", false, "re-run the ceremony even if artifacts already exist")
	)
	flag.Parse()

	logger, err := telemetry.NewLogger(telemetry.LogConfig{Level: telemetry.ParseLevel("info"), Format: "json", Output: "stdout"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}

	circuits := []zkp.CircuitID{zkp.CircuitCDRPrivacy, zkp.CircuitSettlementCalculation}

	for _, circuitID := range circuits {
		if !*force && zkp.KeysExist(*keysDir, circuitID) {
			logger.Info("keys already exist, skipping", "circuit", circuitID, "keys_dir", *keysDir)
			continue
		}
		logger.Info("running trusted setup ceremony", "circuit", circuitID, "keys_dir", *keysDir)
		result, err := zkp.RunCeremony(*keysDir, circuitID)
		if err != nil {
			logger.Error("ceremony failed", "circuit", circuitID, "error", err)
			os.Exit(1)
		}
		logger.Info("ceremony complete",
			"circuit", result.CircuitID,
			"pk_path", result.PKPath,
			"pk_size_bytes", result.PKSizeBytes,
			"vk_path", result.VKPath,
			"vk_size_bytes", result.VKSizeBytes,
		)
	}

	logger.Info("verifying written artifacts load back cleanly")
	harness := zkp.NewHarness(*keysDir)
	for _, circuitID := range circuits {
		if !zkp.KeysExist(*keysDir, circuitID) {
			logger.Error("keys missing after ceremony", "circuit", circuitID)
			os.Exit(1)
		}
		if err := harness.LoadKeys(circuitID); err != nil {
			logger.Error("load keys failed", "circuit", circuitID, "error", err)
			os.Exit(1)
		}
		logger.Info("loaded circuit keys", "circuit", circuitID)
	}

	logger.Info("trusted setup ceremony complete", "keys_dir", *keysDir)
}
