package store

import "errors"

// Error kinds from spec §7. NotFound is intentionally absent here: readers
// return it as an empty option (zero value + false/nil), never as an error.
var (
	// ErrMigrationFailed wraps any error while applying schema migrations.
	ErrMigrationFailed = errors.New("store: migration failed")

	// ErrStorageConflict indicates a row violated a uniqueness or
	// foreign-key invariant despite ignore-on-conflict semantics — this
	// points at data corruption and is never retried automatically.
	ErrStorageConflict = errors.New("store: storage conflict")

	// ErrTransactionAborted indicates the underlying engine aborted the
	// transaction; the caller may retry.
	ErrTransactionAborted = errors.New("store: transaction aborted")
)
