// Package store implements the sync store: the transactional
// persistence layer for blocks, transactions, logs, filter coverage
// intervals, factory child-address filters, and the RPC result cache
// (spec §4.4–§4.9), plus the realtime reorg truncator (spec §4.8).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/joacorob/evmsync/internal/store/migrate"
)

// Store wraps a single *sql.DB. Per spec §5, one writer at a time is
// sufficient: max open connections is pinned to 1 so the driver itself
// serializes mutations, matching "the database handle is process-wide".
type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open creates (or attaches to) a SQLite database at dsn and applies all
// pending migrations. Use ":memory:" for an ephemeral store (tests).
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	return &Store{
		db:  db,
		log: logrus.WithField("component", "store"),
	}, nil
}

// DB exposes the underlying handle to collaborating packages (the event
// iterator) that need to run their own read queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Kill releases the database handle (spec §6).
func (s *Store) Kill() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, retrying on transient
// SQLITE_BUSY-style aborts with bounded exponential backoff (generalizing
// the teacher's hand-rolled retry loops in internal/rpc.Client), and rolls
// back unless fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	op := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin: %v", ErrTransactionAborted, err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit: %v", ErrTransactionAborted, err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, ErrTransactionAborted) {
			// Not a transient failure (e.g. StorageConflict or a plain
			// query error) — surface immediately, do not retry.
			return backoff.Permanent(err)
		}
		return err
	}, bo)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
