// Copyright 2025 Certen Protocol
//
// KV is the pluggable key-value abstraction backing the ledger store,
// grounded on pkg/ledger/store.go's own KV interface ("Get/Set, single
// writer from the consensus commit thread"). Two implementations are
// provided: a cometbft-db (goleveldb) embedded store for a single-node or
// test deployment, and a Postgres-backed store (lib/pq) for a production
// consortium deployment, both satisfying the same interface so
// BlockStore/ValidatorSnapshotStore are storage-engine agnostic.

package storage

import (
	"database/sql"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	_ "github.com/lib/pq"
)

// KV is a minimal synchronous key-value store. the sealed
// batch store is append-only/multi-reader and the ledger store has a
// single writer (the consensus task); KV implementations need no internal
// locking beyond what their backend already provides for that access
// pattern.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Has(key []byte) (bool, error)
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// ErrKeyNotFound is returned by Get when key is absent.
var ErrKeyNotFound = fmt.Errorf("storage: key not found")

// cometKV wraps a cometbft-db database (goleveldb backend), the embedded
// single-node option named in this package's dependency table.
type cometKV struct {
	db dbm.DB
}

// NewCometKV opens (creating if absent) a goleveldb-backed store rooted at
// dir/name.db.
func NewCometKV(dir, name string) (KV, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("storage: open cometbft-db %s: %w", name, err)
	}
	return &cometKV{db: db}, nil
}

func (k *cometKV) Get(key []byte) ([]byte, error) {
	v, err := k.db.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (k *cometKV) Set(key, value []byte) error { return k.db.Set(key, value) }

func (k *cometKV) Has(key []byte) (bool, error) { return k.db.Has(key) }

func (k *cometKV) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	it, err := k.db.Iterator(prefix, dbm.PrefixEndBytes(prefix))
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (k *cometKV) Close() error { return k.db.Close() }

// postgresKV backs the KV interface with a single `kv_store(key, value)`
// table, grounded on pkg/database/client.go's connection-pooled sql.DB
// client — the production deployment target for a multi-operator
// consortium where every validator's ledger state lives in Postgres
// rather than a node-local embedded file.
type postgresKV struct {
	db *sql.DB
}

// NewPostgresKV opens a connection pool to dsn and ensures the backing
// table exists.
func NewPostgresKV(dsn string, maxOpenConns, maxIdleConns int) (KV, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv_store (
		key BYTEA PRIMARY KEY,
		value BYTEA NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create kv_store table: %w", err)
	}
	return &postgresKV{db: db}, nil
}

func (k *postgresKV) Get(key []byte) ([]byte, error) {
	var value []byte
	err := k.db.QueryRow(`SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (k *postgresKV) Set(key, value []byte) error {
	_, err := k.db.Exec(`INSERT INTO kv_store (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (k *postgresKV) Has(key []byte) (bool, error) {
	var exists bool
	err := k.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM kv_store WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}

func (k *postgresKV) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	rows, err := k.db.Query(`SELECT key, value FROM kv_store WHERE key >= $1 AND key < $2 ORDER BY key`,
		prefix, prefixUpperBound(prefix))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (k *postgresKV) Close() error { return k.db.Close() }

// prefixUpperBound returns the smallest key strictly greater than every
// key sharing prefix, the same prefix-scan boundary cometbft-db computes
// internally via PrefixEndBytes.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}
