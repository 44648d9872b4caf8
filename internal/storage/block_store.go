// Copyright 2025 Certen Protocol
//
// BlockStore is the append-only ledger of committed MicroBlock/MacroBlock
// bodies, keyed the way pkg/ledger/store.go's LedgerStore keys its blocks:
// a big-endian height prefix so range scans return blocks in height order,
// plus a secondary hash→height index for lookups by block hash.

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

var (
	blockPrefix     = []byte("blk/")
	blockHashPrefix = []byte("blkh/")
)

// BlockStore persists committed blocks. Single-writer (the consensus
// commit thread), multi-reader, matching the access pattern
// pkg/ledger/store.go documents for its own LedgerStore.
type BlockStore struct {
	kv KV
}

// NewBlockStore wraps kv as a block store.
func NewBlockStore(kv KV) *BlockStore {
	return &BlockStore{kv: kv}
}

// storedBlock is the on-disk envelope distinguishing micro from macro
// blocks, since ledger.Block is an interface and json.Marshal alone can't
// recover the concrete type on read-back.
type storedBlock struct {
	IsMacro bool
	Micro   *ledger.MicroBlock `json:",omitempty"`
	Macro   *ledger.MacroBlock `json:",omitempty"`
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], height)
	return key
}

func blockHashKey(h primitives.Hash) []byte {
	key := make([]byte, len(blockHashPrefix)+len(h))
	copy(key, blockHashPrefix)
	copy(key[len(blockHashPrefix):], h[:])
	return key
}

// PutMicro appends a MicroBlock at its own height.
func (s *BlockStore) PutMicro(b ledger.MicroBlock) error {
	return s.put(b.BlockNumber(), b.Hash(), storedBlock{IsMacro: false, Micro: &b})
}

// PutMacro appends a MacroBlock at its own height.
func (s *BlockStore) PutMacro(b ledger.MacroBlock) error {
	return s.put(b.BlockNumber(), b.Hash(), storedBlock{IsMacro: true, Macro: &b})
}

func (s *BlockStore) put(height uint64, hash primitives.Hash, sb storedBlock) error {
	data, err := json.Marshal(sb)
	if err != nil {
		return fmt.Errorf("storage: marshal block %d: %w", height, err)
	}
	if err := s.kv.Set(blockKey(height), data); err != nil {
		return fmt.Errorf("storage: put block %d: %w", height, err)
	}
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, height)
	if err := s.kv.Set(blockHashKey(hash), heightBytes); err != nil {
		return fmt.Errorf("storage: index block hash %d: %w", height, err)
	}
	return nil
}

// GetByHeight returns the block committed at height, as ledger.Block.
func (s *BlockStore) GetByHeight(height uint64) (ledger.Block, error) {
	data, err := s.kv.Get(blockKey(height))
	if err != nil {
		return nil, err
	}
	var sb storedBlock
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("storage: unmarshal block %d: %w", height, err)
	}
	if sb.IsMacro {
		return *sb.Macro, nil
	}
	return *sb.Micro, nil
}

// GetByHash resolves a block hash to its stored block via the secondary
// index.
func (s *BlockStore) GetByHash(hash primitives.Hash) (ledger.Block, error) {
	heightBytes, err := s.kv.Get(blockHashKey(hash))
	if err != nil {
		return nil, err
	}
	height := binary.BigEndian.Uint64(heightBytes)
	return s.GetByHeight(height)
}

// LatestHeight scans the block prefix for the highest stored height. O(n)
// in the absence of a dedicated counter key; acceptable since it only runs
// once at startup to resume the chain.
func (s *BlockStore) LatestHeight() (uint64, bool, error) {
	var latest uint64
	found := false
	err := s.kv.Iterate(blockPrefix, func(key, _ []byte) error {
		height := binary.BigEndian.Uint64(key[len(blockPrefix):])
		if !found || height > latest {
			latest = height
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return latest, found, nil
}
