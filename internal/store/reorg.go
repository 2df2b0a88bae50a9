package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joacorob/evmsync/internal/bigtext"
)

// DeleteRealtimeData truncates all speculative data on chainID strictly
// after fromBlock, in one transaction: blocks, transactions, logs, and
// rpcRequestResults rows are deleted; logFilterIntervals and
// factoryLogFilterIntervals rows that start after fromBlock are deleted,
// and rows that merely extend past it are clamped to fromBlock (spec
// §4.8). Never partial: any failure rolls back the whole transaction.
func (s *Store) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error {
	pivot := bigtext.EncodeUint64AsText(fromBlock)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM blocks WHERE chainId = ? AND number > ?`, chainID, pivot); err != nil {
			return fmt.Errorf("delete realtime blocks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM transactions WHERE chainId = ? AND blockNumber > ?`, chainID, pivot); err != nil {
			return fmt.Errorf("delete realtime transactions: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM logs WHERE chainId = ? AND blockNumber > ?`, chainID, pivot); err != nil {
			return fmt.Errorf("delete realtime logs: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM rpcRequestResults WHERE chainId = ? AND blockNumber > ?`, chainID, pivot); err != nil {
			return fmt.Errorf("delete realtime rpc cache: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM logFilterIntervals
			WHERE startBlock > ? AND logFilterId IN (SELECT id FROM logFilters WHERE chainId = ?)`,
			pivot, chainID); err != nil {
			return fmt.Errorf("delete realtime log filter intervals: %w", err)
		}
		if _, err := tx.Exec(`UPDATE logFilterIntervals SET endBlock = ?
			WHERE endBlock > ? AND logFilterId IN (SELECT id FROM logFilters WHERE chainId = ?)`,
			pivot, pivot, chainID); err != nil {
			return fmt.Errorf("clamp realtime log filter intervals: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM factoryLogFilterIntervals
			WHERE startBlock > ? AND factoryId IN (SELECT id FROM factories WHERE chainId = ?)`,
			pivot, chainID); err != nil {
			return fmt.Errorf("delete realtime factory intervals: %w", err)
		}
		if _, err := tx.Exec(`UPDATE factoryLogFilterIntervals SET endBlock = ?
			WHERE endBlock > ? AND factoryId IN (SELECT id FROM factories WHERE chainId = ?)`,
			pivot, pivot, chainID); err != nil {
			return fmt.Errorf("clamp realtime factory intervals: %w", err)
		}

		return nil
	})
}
