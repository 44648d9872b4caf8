// Copyright 2025 Certen Protocol
//
// StateStore implements consensus.StateStore, persisting the ABCI
// checkpoint (last committed height + app hash) a node restores from on
// restart. Grounded on pkg/database/client.go's checkpoint-row pattern,
// adapted to a single fixed-key record stored through the generic KV
// interface, since the checkpoint has exactly one current value.

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/consensus"
)

// StateStore persists a consensus.State via the KV abstraction, so it
// works unmodified against either the cometbft-db or Postgres backend.
type StateStore struct {
	kv KV
}

var stateKey = []byte("abci/state")

// NewStateStore wraps kv as a consensus.StateStore.
func NewStateStore(kv KV) *StateStore {
	return &StateStore{kv: kv}
}

// LoadState returns the persisted checkpoint, or a zero-value State with
// no error if none has been saved yet (a fresh chain at genesis).
func (s *StateStore) LoadState() (*consensus.State, error) {
	data, err := s.kv.Get(stateKey)
	if err == ErrKeyNotFound {
		return &consensus.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load abci state: %w", err)
	}
	st, err := decodeState(data)
	if err != nil {
		return nil, fmt.Errorf("storage: decode abci state: %w", err)
	}
	return st, nil
}

// SaveState persists st, overwriting any prior checkpoint.
func (s *StateStore) SaveState(st *consensus.State) error {
	data := encodeState(st)
	if err := s.kv.Set(stateKey, data); err != nil {
		return fmt.Errorf("storage: save abci state: %w", err)
	}
	return nil
}

func encodeState(st *consensus.State) []byte {
	buf := make([]byte, 8+len(st.LastBlockAppHash))
	binary.BigEndian.PutUint64(buf[:8], uint64(st.LastBlockHeight))
	copy(buf[8:], st.LastBlockAppHash)
	return buf
}

func decodeState(data []byte) (*consensus.State, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("abci state record too short: %d bytes", len(data))
	}
	height := int64(binary.BigEndian.Uint64(data[:8]))
	appHash := append([]byte(nil), data[8:]...)
	return &consensus.State{LastBlockHeight: height, LastBlockAppHash: appHash}, nil
}
