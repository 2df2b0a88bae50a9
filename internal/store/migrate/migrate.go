// Package migrate applies forward-only schema migrations to the sync
// store's SQLite database. No migration library appears anywhere in the
// project's retrieved dependency corpus (checked every example repo's
// go.mod); this is the smallest ambient mechanism that satisfies spec §4/§6
// ("forward migration only") without fabricating a dependency. It borrows
// its transactional discipline from the ChainIndexor reorg detector's
// raw-SQL-in-a-transaction style: one transaction, deferred rollback unless
// committed.
package migrate

import (
	"database/sql"
	"fmt"
)

// migration is one forward step: a version number and the statements that
// bring the schema from version-1 to version.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is the ordered, append-only list of schema migrations. Never
// edit an already-released entry; add a new one instead.
var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS blocks (
				hash TEXT PRIMARY KEY,
				chainId INTEGER NOT NULL,
				number TEXT NOT NULL,
				timestamp TEXT NOT NULL,
				baseFeePerGas TEXT,
				difficulty TEXT NOT NULL,
				extraData TEXT NOT NULL,
				gasLimit TEXT NOT NULL,
				gasUsed TEXT NOT NULL,
				logsBloom TEXT NOT NULL,
				miner TEXT NOT NULL,
				mixHash TEXT NOT NULL,
				nonce TEXT NOT NULL,
				parentHash TEXT NOT NULL,
				receiptsRoot TEXT NOT NULL,
				sha3Uncles TEXT NOT NULL,
				size TEXT NOT NULL,
				stateRoot TEXT NOT NULL,
				totalDifficulty TEXT NOT NULL,
				transactionsRoot TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS blocks_chain_number_idx ON blocks (chainId, number)`,

			`CREATE TABLE IF NOT EXISTS transactions (
				hash TEXT PRIMARY KEY,
				chainId INTEGER NOT NULL,
				blockHash TEXT NOT NULL,
				blockNumber TEXT NOT NULL,
				transactionIndex INTEGER NOT NULL,
				"from" TEXT NOT NULL,
				"to" TEXT,
				value TEXT NOT NULL,
				input TEXT NOT NULL,
				gas TEXT NOT NULL,
				gasPrice TEXT,
				maxFeePerGas TEXT,
				maxPriorityFeePerGas TEXT,
				nonce INTEGER NOT NULL,
				r TEXT NOT NULL,
				s TEXT NOT NULL,
				v TEXT NOT NULL,
				type TEXT NOT NULL,
				accessList TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS transactions_block_hash_idx ON transactions (blockHash)`,

			`CREATE TABLE IF NOT EXISTS logs (
				id TEXT PRIMARY KEY,
				chainId INTEGER NOT NULL,
				address TEXT NOT NULL,
				blockHash TEXT NOT NULL,
				blockNumber TEXT NOT NULL,
				data TEXT NOT NULL,
				logIndex INTEGER NOT NULL,
				topic0 TEXT,
				topic1 TEXT,
				topic2 TEXT,
				topic3 TEXT,
				transactionHash TEXT NOT NULL,
				transactionIndex INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS logs_chain_address_topic0_idx ON logs (chainId, address, topic0)`,
			`CREATE INDEX IF NOT EXISTS logs_block_hash_idx ON logs (blockHash)`,
			`CREATE INDEX IF NOT EXISTS logs_order_idx ON logs (chainId, blockNumber, logIndex)`,

			`CREATE TABLE IF NOT EXISTS logFilters (
				id TEXT PRIMARY KEY,
				chainId INTEGER NOT NULL,
				address TEXT,
				topic0 TEXT,
				topic1 TEXT,
				topic2 TEXT,
				topic3 TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS logFilterIntervals (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				logFilterId TEXT NOT NULL REFERENCES logFilters(id),
				startBlock TEXT NOT NULL,
				endBlock TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS logFilterIntervals_filter_idx ON logFilterIntervals (logFilterId)`,

			`CREATE TABLE IF NOT EXISTS factories (
				id TEXT PRIMARY KEY,
				chainId INTEGER NOT NULL,
				address TEXT NOT NULL,
				eventSelector TEXT NOT NULL,
				childAddressLocation TEXT NOT NULL,
				topic0 TEXT,
				topic1 TEXT,
				topic2 TEXT,
				topic3 TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS factoryLogFilterIntervals (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				factoryId TEXT NOT NULL REFERENCES factories(id),
				startBlock TEXT NOT NULL,
				endBlock TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS factoryLogFilterIntervals_factory_idx ON factoryLogFilterIntervals (factoryId)`,

			`CREATE TABLE IF NOT EXISTS rpcRequestResults (
				request TEXT NOT NULL,
				blockNumber TEXT NOT NULL,
				chainId INTEGER NOT NULL,
				result TEXT NOT NULL,
				PRIMARY KEY (request, blockNumber, chainId)
			)`,
		},
	},
}

// Up applies every migration whose version is not yet recorded in
// schema_migrations, each inside its own transaction. Returns a plain
// wrapped error on any failure (store.Open wraps it as ErrMigrationFailed);
// no partial migration is ever left committed.
func Up(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		appliedAt TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("migrate: read applied versions: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("migrate: scan applied version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("migrate: iterate applied versions: %w", err)
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return fmt.Errorf("migrate: apply %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyOne(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, appliedAt) VALUES (?, datetime('now'))`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
