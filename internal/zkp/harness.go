// Copyright 2025 Certen Protocol
//
// The circuit harness: load_keys/prove/verify. Grounded on
// pkg/crypto/bls_zkp/prover.go's BLSZKProver (Initialize/
// InitializeFromKeys/GenerateProof/VerifyProofLocally), generalized from
// a single hardcoded circuit to a registry of two circuits. Proving keys
// are large and loaded once per process, then shared read-only via a
// single immutable handle — callers never get a copy, only a
// *ProvingKeyHandle pointer into the harness's internal map.

package zkp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// CircuitID names one of the two circuits this network proves.
type CircuitID string

const (
	CircuitCDRPrivacy CircuitID = "cdr_privacy"
	CircuitSettlementCalculation CircuitID = "settlement_calculation"

	// curve is the scalar field the circuits are compiled over. Chosen to
	// match the circuit package's own curve (BN254), which keeps the
	// Groth16 backend identical across the pack.
	curve = ecc.BN254
)

var circuitFactories = map[CircuitID]func() frontend.Circuit{
	CircuitCDRPrivacy: NewCDRPrivacyCircuit,
	CircuitSettlementCalculation: NewSettlementCalculationCircuit,
}

var ErrUnknownCircuit = errors.New("zkp: unknown circuit id")

// ProvingKeyHandle is an immutable, shared handle onto a compiled circuit's
// proving material. Never copy the struct it points to; pass the pointer.
type ProvingKeyHandle struct {
	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey
}

// Harness loads and holds the proving/verifying material for every circuit
// this process uses, keyed by CircuitID. One Harness per node, shared
// read-only among the pipeline's proof-generation worker pool.
type Harness struct {
	mu sync.RWMutex
	keysDir string
	circuits map[CircuitID]*ProvingKeyHandle
}

// NewHarness returns a harness that will read `{circuit_id}.pk` and
// `{circuit_id}.vk` from keysDir on demand.
func NewHarness(keysDir string) *Harness {
	return &Harness{keysDir: keysDir, circuits: make(map[CircuitID]*ProvingKeyHandle)}
}

// LoadKeys compiles circuitID's constraint system and reads its PK/VK from
// disk, caching the result. Safe to call repeatedly; subsequent calls are
// no-ops once a circuit is loaded.
func (h *Harness) LoadKeys(circuitID CircuitID) error {
	h.mu.RLock()
	if _, ok := h.circuits[circuitID]; ok {
		h.mu.RUnlock()
		return nil
	}
	h.mu.RUnlock()

	factory, ok := circuitFactories[circuitID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCircuit, circuitID)
	}

	cs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, factory())
	if err != nil {
		return fmt.Errorf("zkp: compile %s: %w", circuitID, err)
	}

	pk := groth16.NewProvingKey(curve)
	if err := readFrom(filepath.Join(h.keysDir, string(circuitID)+".pk"), pk); err != nil {
		return fmt.Errorf("zkp: load proving key for %s: %w", circuitID, err)
	}

	vk := groth16.NewVerifyingKey(curve)
	if err := readFrom(filepath.Join(h.keysDir, string(circuitID)+".vk"), vk); err != nil {
		return fmt.Errorf("zkp: load verifying key for %s: %w", circuitID, err)
	}

	h.mu.Lock()
	h.circuits[circuitID] = &ProvingKeyHandle{cs: cs, pk: pk, vk: vk}
	h.mu.Unlock()
	return nil
}

func readFrom(path string, into io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = into.ReadFrom(f)
	return err
}

// handle returns the cached handle for circuitID, requiring a prior
// successful LoadKeys call.
func (h *Harness) handle(circuitID CircuitID) (*ProvingKeyHandle, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hd, ok := h.circuits[circuitID]
	if !ok {
		return nil, fmt.Errorf("zkp: %s keys not loaded, call LoadKeys first", circuitID)
	}
	return hd, nil
}

// Prove builds a witness from assignment and produces a serialized proof.
// Deterministic given (PK, assignment) aside from Groth16's internal
// blinding randomness — two calls with the same assignment are not
// byte-identical, but both verify.
func (h *Harness) Prove(circuitID CircuitID, assignment frontend.Circuit) ([]byte, error) {
	hd, err := h.handle(circuitID)
	if err != nil {
		return nil, err
	}

	witness, err := frontend.NewWitness(assignment, curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("zkp: build witness for %s: %w", circuitID, err)
	}

	proof, err := groth16.Prove(hd.cs, hd.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("zkp: prove %s: %w", circuitID, err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("zkp: serialize proof for %s: %w", circuitID, err)
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the public fields of
// publicAssignment. A verification failure returns (false, nil): a bad
// peer-supplied proof is not an error condition, it is a disqualifying
// signal the caller must act on (drop proposal, decrement peer
// reputation).
func (h *Harness) Verify(circuitID CircuitID, publicAssignment frontend.Circuit, proofBytes []byte) (bool, error) {
	hd, err := h.handle(circuitID)
	if err != nil {
		return false, err
	}

	publicWitness, err := frontend.NewWitness(publicAssignment, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("zkp: build public witness for %s: %w", circuitID, err)
	}

	proof := groth16.NewProof(curve)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("zkp: deserialize proof for %s: %w", circuitID, err)
	}

	if err := groth16.Verify(proof, hd.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}

// ProveWithRetry retries Prove up to maxAttempts times (fresh RNG each
// attempt, then surfaced to the caller). Groth16's own internal
// randomness differs per call, so a retry is a plain re-invocation rather
// than an explicit seed.
func (h *Harness) ProveWithRetry(circuitID CircuitID, assignment frontend.Circuit, maxAttempts int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		proof, err := h.Prove(circuitID, assignment)
		if err == nil {
			return proof, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("zkp: prove %s failed after %d attempts: %w", circuitID, maxAttempts, lastErr)
}
