// Package sink persists matched events to an external destination. The
// backfill in internal/indexer writes each matched log to the sink as it
// stores it (cmd/indexer enables this with -export-dir); the sync store
// itself is the system of record, but an
// operator may still want a flat export for inspection or a downstream
// pipeline that isn't ready to query SQLite directly.
package sink

import "github.com/joacorob/evmsync/internal/model"

// Sink defines the behaviour expected from any event export back-end (e.g.
// CSV files, a webhook, a message queue).
//
// Implementations should be thread-safe if they will be accessed
// concurrently. Returning an error allows the caller to trigger a retry via
// RetrySink.
type Sink interface {
	// Write persists the provided event and returns an error if the
	// operation fails for any reason.
	Write(model.Event) error
}
