// Copyright 2025 Certen Protocol
//
// Trusted-setup ceremony: a one-time Groth16 setup per circuit producing
// `{circuit_id}.pk`/`.vk` artifacts. Supplemented from
// original_source/src/bin/trusted_setup_demo.rs, whose
// TrustedSetupCeremony.run_ceremony/verify_ceremony/keys_exist/
// load_circuit_keys cycle this mirrors; out of scope beyond
// its output-artifact contract, so the ceremony here does the minimum
// real work (compile, setup, write) without modeling a full multi-party
// MPC ceremony. The load-back self-check is run by cmd/sp-ceremony, not
// here.

package zkp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// CeremonyResult reports the artifact sizes produced for one circuit.
type CeremonyResult struct {
	CircuitID CircuitID
	PKPath string
	VKPath string
	PKSizeBytes int64
	VKSizeBytes int64
}

// RunCeremony compiles circuitID, runs Groth16 setup, and writes
// `{circuit_id}.pk`/`.vk` into keysDir.
func RunCeremony(keysDir string, circuitID CircuitID) (*CeremonyResult, error) {
	factory, ok := circuitFactories[circuitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCircuit, circuitID)
	}

	if err := os.MkdirAll(keysDir, 0o755); err != nil {
		return nil, fmt.Errorf("zkp: create keys dir: %w", err)
	}

	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, factory())
	if err != nil {
		return nil, fmt.Errorf("zkp: compile %s: %w", circuitID, err)
	}

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("zkp: setup %s: %w", circuitID, err)
	}

	pkPath := filepath.Join(keysDir, string(circuitID)+".pk")
	vkPath := filepath.Join(keysDir, string(circuitID)+".vk")

	pkSize, err := writeTo(pkPath, pk)
	if err != nil {
		return nil, fmt.Errorf("zkp: write proving key: %w", err)
	}
	vkSize, err := writeTo(vkPath, vk)
	if err != nil {
		return nil, fmt.Errorf("zkp: write verifying key: %w", err)
	}

	return &CeremonyResult{
		CircuitID: circuitID,
		PKPath: pkPath,
		VKPath: vkPath,
		PKSizeBytes: pkSize,
		VKSizeBytes: vkSize,
	}, nil
}

func writeTo(path string, from io.WriterTo) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return from.WriteTo(f)
}

// KeysExist reports whether both artifacts for circuitID are present in
// keysDir.
func KeysExist(keysDir string, circuitID CircuitID) bool {
	pkPath := filepath.Join(keysDir, string(circuitID)+".pk")
	vkPath := filepath.Join(keysDir, string(circuitID)+".vk")
	if _, err := os.Stat(pkPath); err != nil {
		return false
	}
	if _, err := os.Stat(vkPath); err != nil {
		return false
	}
	return true
}
