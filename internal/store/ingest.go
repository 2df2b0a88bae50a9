package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/russross/meddler"

	"github.com/joacorob/evmsync/internal/bigtext"
	"github.com/joacorob/evmsync/internal/interval"
	"github.com/joacorob/evmsync/internal/logfilter"
	"github.com/joacorob/evmsync/internal/model"
)

func init() {
	meddler.Default = meddler.SQLite
}

// insertBlockTx inserts a block row, ignoring a key conflict (idempotent
// replay per spec §4.4) unless the existing row's content actually differs
// from b, which indicates real corruption (spec §7: ErrStorageConflict).
// Both sides are compared after the same encode/decode round trip, so
// representation-only differences (nil vs empty slices, RawType) are not
// conflicts.
func insertBlockTx(tx *sql.Tx, b model.Block) error {
	row := blockToRow(b)
	res, err := tx.Exec(`INSERT OR IGNORE INTO blocks (
		hash, chainId, number, timestamp, baseFeePerGas, difficulty, extraData,
		gasLimit, gasUsed, logsBloom, miner, mixHash, nonce, parentHash,
		receiptsRoot, sha3Uncles, size, stateRoot, totalDifficulty, transactionsRoot
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.Hash, row.ChainID, row.Number, row.Timestamp, row.BaseFeePerGas, row.Difficulty, row.ExtraData,
		row.GasLimit, row.GasUsed, row.LogsBloom, row.Miner, row.MixHash, row.Nonce, row.ParentHash,
		row.ReceiptsRoot, row.Sha3Uncles, row.Size, row.StateRoot, row.TotalDifficulty, row.TransactionsRoot,
	)
	if err != nil {
		return fmt.Errorf("insert block %s: %w", b.Hash, err)
	}
	if ignored, err := wasIgnored(res); err != nil {
		return fmt.Errorf("insert block %s: %w", b.Hash, err)
	} else if ignored {
		var existing blockRow
		if err := meddler.QueryRow(tx, &existing, `SELECT * FROM blocks WHERE hash = ?`, row.Hash); err != nil {
			return fmt.Errorf("insert block %s: load existing: %w", b.Hash, err)
		}
		if !reflect.DeepEqual(rowToBlock(&existing), rowToBlock(row)) {
			return fmt.Errorf("%w: block %s", ErrStorageConflict, b.Hash)
		}
	}
	return nil
}

func insertTransactionsTx(tx *sql.Tx, txs []model.Transaction) error {
	for _, t := range txs {
		row := txToRow(t)
		res, err := tx.Exec(`INSERT OR IGNORE INTO transactions (
			hash, chainId, blockHash, blockNumber, transactionIndex, "from", "to",
			value, input, gas, gasPrice, maxFeePerGas, maxPriorityFeePerGas, nonce,
			r, s, v, type, accessList
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			row.Hash, row.ChainID, row.BlockHash, row.BlockNumber, row.TransactionIndex, row.From, row.To,
			row.Value, row.Input, row.Gas, row.GasPrice, row.MaxFeePerGas, row.MaxPriorityFeePerGas, row.Nonce,
			row.R, row.S, row.V, row.Type, row.AccessList,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.Hash, err)
		}
		if ignored, err := wasIgnored(res); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.Hash, err)
		} else if ignored {
			var existing transactionRow
			if err := meddler.QueryRow(tx, &existing, `SELECT * FROM transactions WHERE hash = ?`, row.Hash); err != nil {
				return fmt.Errorf("insert transaction %s: load existing: %w", t.Hash, err)
			}
			if !reflect.DeepEqual(rowToTx(&existing), rowToTx(row)) {
				return fmt.Errorf("%w: transaction %s", ErrStorageConflict, t.Hash)
			}
		}
	}
	return nil
}

func insertLogsTx(tx *sql.Tx, logs []model.Log) error {
	for _, l := range logs {
		row := logToRow(l)
		res, err := tx.Exec(`INSERT OR IGNORE INTO logs (
			id, chainId, address, blockHash, blockNumber, data, logIndex,
			topic0, topic1, topic2, topic3, transactionHash, transactionIndex
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			row.ID, row.ChainID, row.Address, row.BlockHash, row.BlockNumber, row.Data, row.LogIndex,
			row.Topic0, row.Topic1, row.Topic2, row.Topic3, row.TransactionHash, row.TransactionIndex,
		)
		if err != nil {
			return fmt.Errorf("insert log %s: %w", l.ID, err)
		}
		if ignored, err := wasIgnored(res); err != nil {
			return fmt.Errorf("insert log %s: %w", l.ID, err)
		} else if ignored {
			var existing logRow
			if err := meddler.QueryRow(tx, &existing, `SELECT * FROM logs WHERE id = ?`, row.ID); err != nil {
				return fmt.Errorf("insert log %s: load existing: %w", l.ID, err)
			}
			if !reflect.DeepEqual(rowToLog(&existing), rowToLog(row)) {
				return fmt.Errorf("%w: log %s", ErrStorageConflict, l.ID)
			}
		}
	}
	return nil
}

// wasIgnored reports whether an INSERT OR IGNORE matched an existing row
// instead of inserting a new one.
func wasIgnored(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// upsertLogFilterTx inserts the fragment's logFilters row if absent and
// returns its id (the fragment's deterministic id, per spec §4.3).
func upsertLogFilterTx(tx *sql.Tx, f model.LogFilterFragment) (string, error) {
	_, err := tx.Exec(`INSERT OR IGNORE INTO logFilters (id, chainId, address, topic0, topic1, topic2, topic3)
		VALUES (?,?,?,?,?,?,?)`,
		f.ID, f.ChainID, strOrNil(f.Address), strOrNil(f.Topic0), strOrNil(f.Topic1), strOrNil(f.Topic2), strOrNil(f.Topic3),
	)
	if err != nil {
		return "", fmt.Errorf("upsert log filter %s: %w", f.ID, err)
	}
	return f.ID, nil
}

// upsertFactoryTx is the factory-fragment analogue; factories are also
// recorded as a plain log filter keyed on (address, eventSelector) so that
// factory-emitter coverage can be reused by ordinary log filter queries
// (spec §4.4, insertRealtimeInterval).
func upsertFactoryTx(tx *sql.Tx, f model.FactoryFragment) (string, error) {
	_, err := tx.Exec(`INSERT OR IGNORE INTO factories (
		id, chainId, address, eventSelector, childAddressLocation, topic0, topic1, topic2, topic3
	) VALUES (?,?,?,?,?,?,?,?,?)`,
		f.ID, f.ChainID, f.Address, f.EventSelector, f.ChildAddressLocation,
		strOrNil(f.Topic0), strOrNil(f.Topic1), strOrNil(f.Topic2), strOrNil(f.Topic3),
	)
	if err != nil {
		return "", fmt.Errorf("upsert factory %s: %w", f.ID, err)
	}
	return f.ID, nil
}

// emitterLogFilterFragment derives the plain log-filter fragment that
// shadows a factory's emitter coverage: keyed on (address, eventSelector)
// only, per spec §4.4.
func emitterLogFilterFragment(f model.FactoryFragment) model.LogFilterFragment {
	return model.LogFilterFragment{
		ID:      logfilter.FragmentID(f.ChainID, f.Address, f.EventSelector, "", "", ""),
		ChainID: f.ChainID,
		Address: f.Address,
		Topic0:  f.EventSelector,
	}
}

// mergeIntervalTx is the per-fragment interval merge procedure of spec
// §4.4: atomically delete existing rows for the fragment, union them with
// the new interval, reinsert. Must run inside the caller's transaction so
// concurrent calls for the same fragment serialize through the store's
// single writer.
func mergeIntervalTx(tx *sql.Tx, table, fkColumn, fragmentID string, newInterval interval.Interval) error {
	return rewriteIntervalsTx(tx, table, fkColumn, fragmentID, &newInterval)
}

// canonicalizeIntervalsTx re-unions a fragment's existing interval rows in
// place, with no new interval added. Coverage queries run this before
// reading (spec §4.5: "execute one interval merge (idempotent; cheap if
// already merged)") so they always observe the canonical, maximally-merged
// form.
func canonicalizeIntervalsTx(tx *sql.Tx, table, fkColumn, fragmentID string) error {
	return rewriteIntervalsTx(tx, table, fkColumn, fragmentID, nil)
}

func rewriteIntervalsTx(tx *sql.Tx, table, fkColumn, fragmentID string, newInterval *interval.Interval) error {
	rows, err := tx.Query(fmt.Sprintf(`SELECT startBlock, endBlock FROM %s WHERE %s = ?`, table, fkColumn), fragmentID)
	if err != nil {
		return fmt.Errorf("merge interval: select existing: %w", err)
	}

	var existing []interval.Interval
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			rows.Close()
			return fmt.Errorf("merge interval: scan: %w", err)
		}
		existing = append(existing, interval.Interval{
			Start: decodeUint64(startStr),
			End:   decodeUint64(endStr),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("merge interval: iterate: %w", err)
	}
	rows.Close()

	if newInterval != nil {
		existing = append(existing, *newInterval)
	}
	merged := interval.Union(existing)

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, fkColumn), fragmentID); err != nil {
		return fmt.Errorf("merge interval: delete existing: %w", err)
	}

	for _, iv := range merged {
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (%s, startBlock, endBlock) VALUES (?,?,?)`, table, fkColumn),
			fragmentID, bigtext.EncodeUint64AsText(iv.Start), bigtext.EncodeUint64AsText(iv.End),
		); err != nil {
			return fmt.Errorf("merge interval: insert merged: %w", err)
		}
	}
	return nil
}

// InsertLogFilterInterval records a raw block/transactions/logs batch and
// merges the given interval into every fragment of logFilter (spec §4.4).
func (s *Store) InsertLogFilterInterval(
	ctx context.Context,
	chainID uint64,
	criteria model.LogFilterCriteria,
	block model.Block,
	txs []model.Transaction,
	logs []model.Log,
	iv interval.Interval,
) error {
	fragments := logfilter.BuildLogFilterFragments(chainID, criteria)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertBlockTx(tx, block); err != nil {
			return err
		}
		if err := insertTransactionsTx(tx, txs); err != nil {
			return err
		}
		if err := insertLogsTx(tx, logs); err != nil {
			return err
		}
		for _, f := range fragments {
			id, err := upsertLogFilterTx(tx, f)
			if err != nil {
				return err
			}
			if err := mergeIntervalTx(tx, "logFilterIntervals", "logFilterId", id, iv); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertFactoryChildAddressLogs inserts raw logs only — used while scanning
// factory-emitter contracts for child-address announcements (spec §4.4).
func (s *Store) InsertFactoryChildAddressLogs(ctx context.Context, logs []model.Log) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertLogsTx(tx, logs)
	})
}

// InsertFactoryLogFilterInterval records a raw batch and merges the given
// interval into every fragment of factory (spec §4.4).
func (s *Store) InsertFactoryLogFilterInterval(
	ctx context.Context,
	chainID uint64,
	criteria model.FactoryCriteria,
	block model.Block,
	txs []model.Transaction,
	logs []model.Log,
	iv interval.Interval,
) error {
	fragments := logfilter.BuildFactoryFragments(chainID, criteria)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertBlockTx(tx, block); err != nil {
			return err
		}
		if err := insertTransactionsTx(tx, txs); err != nil {
			return err
		}
		if err := insertLogsTx(tx, logs); err != nil {
			return err
		}
		for _, f := range fragments {
			id, err := upsertFactoryTx(tx, f)
			if err != nil {
				return err
			}
			if err := mergeIntervalTx(tx, "factoryLogFilterIntervals", "factoryId", id, iv); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertRealtimeBlock inserts a block and its transactions/logs without
// recording coverage — confirmation happens in bulk via
// InsertRealtimeInterval (spec §4.4).
func (s *Store) InsertRealtimeBlock(ctx context.Context, block model.Block, txs []model.Transaction, logs []model.Log) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertBlockTx(tx, block); err != nil {
			return err
		}
		if err := insertTransactionsTx(tx, txs); err != nil {
			return err
		}
		return insertLogsTx(tx, logs)
	})
}

// InsertRealtimeInterval records one new interval for every fragment of
// every filter and factory, in a single transaction. Factories are also
// recorded as an (address, eventSelector)-keyed log filter so their
// emitter coverage can be reused (spec §4.4).
func (s *Store) InsertRealtimeInterval(
	ctx context.Context,
	chainID uint64,
	logFilters []model.LogFilterCriteria,
	factories []model.FactoryCriteria,
	iv interval.Interval,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, criteria := range logFilters {
			for _, f := range logfilter.BuildLogFilterFragments(chainID, criteria) {
				id, err := upsertLogFilterTx(tx, f)
				if err != nil {
					return err
				}
				if err := mergeIntervalTx(tx, "logFilterIntervals", "logFilterId", id, iv); err != nil {
					return err
				}
			}
		}
		for _, criteria := range factories {
			for _, f := range logfilter.BuildFactoryFragments(chainID, criteria) {
				id, err := upsertFactoryTx(tx, f)
				if err != nil {
					return err
				}
				if err := mergeIntervalTx(tx, "factoryLogFilterIntervals", "factoryId", id, iv); err != nil {
					return err
				}

				emitter := emitterLogFilterFragment(f)
				emitterID, err := upsertLogFilterTx(tx, emitter)
				if err != nil {
					return err
				}
				if err := mergeIntervalTx(tx, "logFilterIntervals", "logFilterId", emitterID, iv); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
