// Copyright 2025 Certen Protocol
//
// ValidatorSnapshotStore persists a validator-set snapshot per election
// epoch, keyed by election height, so a restarting node can restore its
// consensus.Election history without replaying every macro block from
// genesis. Grounded on the same height-prefixed key layout block_store.go
// uses, following pkg/ledger/store.go's convention.

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
)

var validatorSnapshotPrefix = []byte("valset/")

// ValidatorSnapshotStore persists ValidatorSet snapshots by election
// height.
type ValidatorSnapshotStore struct {
	kv KV
}

// NewValidatorSnapshotStore wraps kv as a validator snapshot store.
func NewValidatorSnapshotStore(kv KV) *ValidatorSnapshotStore {
	return &ValidatorSnapshotStore{kv: kv}
}

func validatorSnapshotKey(electionHeight uint64) []byte {
	key := make([]byte, len(validatorSnapshotPrefix)+8)
	copy(key, validatorSnapshotPrefix)
	binary.BigEndian.PutUint64(key[len(validatorSnapshotPrefix):], electionHeight)
	return key
}

// Put records the validator set effective as of electionHeight.
func (s *ValidatorSnapshotStore) Put(electionHeight uint64, validators []ledger.ValidatorInfo) error {
	data, err := json.Marshal(validators)
	if err != nil {
		return fmt.Errorf("storage: marshal validator snapshot %d: %w", electionHeight, err)
	}
	if err := s.kv.Set(validatorSnapshotKey(electionHeight), data); err != nil {
		return fmt.Errorf("storage: put validator snapshot %d: %w", electionHeight, err)
	}
	return nil
}

// Get returns the validator set recorded at electionHeight.
func (s *ValidatorSnapshotStore) Get(electionHeight uint64) ([]ledger.ValidatorInfo, error) {
	data, err := s.kv.Get(validatorSnapshotKey(electionHeight))
	if err != nil {
		return nil, err
	}
	var validators []ledger.ValidatorInfo
	if err := json.Unmarshal(data, &validators); err != nil {
		return nil, fmt.Errorf("storage: unmarshal validator snapshot %d: %w", electionHeight, err)
	}
	return validators, nil
}

// Latest scans for the highest recorded election height and returns its
// validator set. Used once at node startup to rebuild the in-memory
// ledger.ValidatorSet before consensus resumes.
func (s *ValidatorSnapshotStore) Latest() (uint64, []ledger.ValidatorInfo, error) {
	var latest uint64
	found := false
	if err := s.kv.Iterate(validatorSnapshotPrefix, func(key, _ []byte) error {
		height := binary.BigEndian.Uint64(key[len(validatorSnapshotPrefix):])
		if !found || height > latest {
			latest = height
			found = true
		}
		return nil
	}); err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, ErrKeyNotFound
	}
	validators, err := s.Get(latest)
	return latest, validators, err
}
