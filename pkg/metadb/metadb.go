/*
Package metadb implements the relational metadata store of spec.md §6:
space/delegation/abilities/parent_delegations/revocation/invocation/
kv_write/kv_delete/epoch/epoch_order/event_order/actor over
database/sql + modernc.org/sqlite. It exposes the single transaction
boundary the Delegation Validator, Event Log, and KV Executor share —
every commit in pkg/core opens exactly one *metadb.Tx and passes it
through all three.
*/
package metadb

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
)

// DB is a handle to the opened sqlite database, schema already applied.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if absent) the sqlite file at path and applies the
// schema. path may be ":memory:" for ephemeral/test use — note sqlite's
// in-memory databases are per-connection, so callers using ":memory:"
// must keep MaxOpenConns at 1 (Open sets this automatically).
func Open(path string) (*DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.ConnectionAcquire, err, "open sqlite database")
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, tcerr.Wrap(tcerr.ConnectionAcquire, err, "enable foreign keys")
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, tcerr.Wrap(tcerr.ConnectionAcquire, err, "apply schema")
	}
	return &DB{sql: sqlDB}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping reports whether the database is reachable, backing GET /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sql.PingContext(ctx); err != nil {
		return tcerr.Wrap(tcerr.ConnectionAcquire, err, "ping metadb")
	}
	return nil
}

// Tx is a single metadata-store transaction. Spec.md §5 requires
// read-uncommitted isolation: the invariants rely on primary-key/unique
// constraints rather than snapshot isolation, so sqlite's default
// serialized writer behavior is a stricter superset that still satisfies
// every invariant.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a new Tx. Every request that appends to the event log opens
// exactly one Tx spanning the Delegation Validator (or KV Executor) and
// the Event Log commit.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.sql.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	if err != nil {
		return nil, tcerr.Wrap(tcerr.ConnectionAcquire, err, "begin transaction")
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return tcerr.Wrap(tcerr.ConnectionAcquire, err, "commit transaction")
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return tcerr.Wrap(tcerr.ConnectionAcquire, err, "rollback transaction")
	}
	return nil
}

// wrapExec wraps a non-nil database error as a generic ConnectionAcquire
// failure; callers needing a more specific Kind (e.g.
// SpaceNotFound) check that condition themselves before calling.
func wrapExec(err error, action string) error {
	if err == nil {
		return nil
	}
	return tcerr.Wrap(tcerr.ConnectionAcquire, err, fmt.Sprintf("metadb: %s", action))
}
