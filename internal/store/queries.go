package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/russross/meddler"

	"github.com/joacorob/evmsync/internal/bigtext"
	"github.com/joacorob/evmsync/internal/interval"
	"github.com/joacorob/evmsync/internal/logfilter"
	"github.com/joacorob/evmsync/internal/model"
)

// GetLogFilterIntervals returns the confirmed coverage for criteria: the
// intersection of its fragments' unioned intervals (spec §4.5). Each
// fragment's interval set is re-merged before reading so that queries
// always observe the canonical (maximally merged) form even if a prior
// writer left duplicate rows mid-merge.
func (s *Store) GetLogFilterIntervals(ctx context.Context, chainID uint64, criteria model.LogFilterCriteria) ([]interval.Interval, error) {
	fragments := logfilter.BuildLogFilterFragments(chainID, criteria)
	lists := make([][]interval.Interval, 0, len(fragments))

	for _, f := range fragments {
		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			id, err := upsertLogFilterTx(tx, f)
			if err != nil {
				return err
			}
			return canonicalizeIntervalsTx(tx, "logFilterIntervals", "logFilterId", id)
		}); err != nil {
			return nil, err
		}

		ivs, err := s.selectIntervals(ctx, "logFilterIntervals", "logFilterId", f.ID)
		if err != nil {
			return nil, err
		}
		lists = append(lists, ivs)
	}

	return interval.IntersectionMany(lists), nil
}

// GetFactoryLogFilterIntervals is the factory analogue of
// GetLogFilterIntervals (spec §4.5).
func (s *Store) GetFactoryLogFilterIntervals(ctx context.Context, chainID uint64, criteria model.FactoryCriteria) ([]interval.Interval, error) {
	fragments := logfilter.BuildFactoryFragments(chainID, criteria)
	lists := make([][]interval.Interval, 0, len(fragments))

	for _, f := range fragments {
		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			id, err := upsertFactoryTx(tx, f)
			if err != nil {
				return err
			}
			return canonicalizeIntervalsTx(tx, "factoryLogFilterIntervals", "factoryId", id)
		}); err != nil {
			return nil, err
		}

		ivs, err := s.selectIntervals(ctx, "factoryLogFilterIntervals", "factoryId", f.ID)
		if err != nil {
			return nil, err
		}
		lists = append(lists, ivs)
	}

	return interval.IntersectionMany(lists), nil
}

func (s *Store) selectIntervals(ctx context.Context, table, fkColumn, id string) ([]interval.Interval, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT startBlock, endBlock FROM %s WHERE %s = ? ORDER BY startBlock`, table, fkColumn), id)
	if err != nil {
		return nil, fmt.Errorf("select intervals: %w", err)
	}
	defer rows.Close()

	var out []interval.Interval
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			return nil, fmt.Errorf("select intervals: scan: %w", err)
		}
		out = append(out, interval.Interval{Start: decodeUint64(startStr), End: decodeUint64(endStr)})
	}
	return out, rows.Err()
}

// ChildAddressExpr returns the SQL substring expression that derives a
// factory's child address from a matching log, per spec §4.6. Exported so
// the event iterator package can reuse it for the factory-membership
// subquery in spec §4.7.
func ChildAddressExpr(location string) (string, error) {
	return childAddressExpr(location)
}

// childAddressExpr returns the SQL substring expression that derives a
// factory's child address from a matching log, per spec §4.6.
func childAddressExpr(location string) (string, error) {
	switch {
	case location == "topic1":
		return `'0x' || lower(substr(topic1, -40))`, nil
	case location == "topic2":
		return `'0x' || lower(substr(topic2, -40))`, nil
	case location == "topic3":
		return `'0x' || lower(substr(topic3, -40))`, nil
	case len(location) > len("offset") && location[:len("offset")] == "offset":
		var byteOffset int
		if _, err := fmt.Sscanf(location, "offset%d", &byteOffset); err != nil {
			return "", fmt.Errorf("invalid childAddressLocation %q: %w", location, err)
		}
		// offsetK names the 32-byte ABI word that starts at byte K of data;
		// the address lives in that word's low 20 bytes, after a 12-byte
		// left-pad.
		start := 3 + 2*(byteOffset+12) // SQLite substr is 1-indexed
		return fmt.Sprintf(`'0x' || lower(substr(data, %d, 40))`, start), nil
	default:
		return "", fmt.Errorf("invalid childAddressLocation %q", location)
	}
}

// GetFactoryChildAddresses yields pages of derived child addresses for logs
// matching (address, topic0 = eventSelector) with blockNumber <=
// upToBlockNumber, ordered ascending by blockNumber (spec §4.6). It returns
// a lazy, finite, non-restartable iterator: call Next until ok is false.
type ChildAddressIterator struct {
	s             *Store
	ctx           context.Context
	chainID       uint64
	address       string
	eventSelector string
	upToBlock     uint64
	pageSize      int
	childExpr     string

	cursor  uint64
	hasMore bool
	started bool
}

// GetFactoryChildAddresses constructs the iterator described above.
func (s *Store) GetFactoryChildAddresses(ctx context.Context, chainID uint64, upToBlockNumber uint64, factory model.FactoryCriteria, pageSize int) (*ChildAddressIterator, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	addr := ""
	if len(factory.Address) > 0 {
		addr = factory.Address[0]
	}
	expr, err := childAddressExpr(factory.ChildAddressLocation)
	if err != nil {
		return nil, err
	}
	return &ChildAddressIterator{
		s:             s,
		ctx:           ctx,
		chainID:       chainID,
		address:       addr,
		eventSelector: factory.EventSelector,
		upToBlock:     upToBlockNumber,
		pageSize:      pageSize,
		childExpr:     expr,
		hasMore:       true,
	}, nil
}

// Next returns the next page of derived addresses, or ok=false once
// exhausted (a page shorter than pageSize signals the end, per spec §4.6).
func (it *ChildAddressIterator) Next() (addresses []string, ok bool, err error) {
	if !it.hasMore {
		return nil, false, nil
	}

	// The first page has no cursor yet, so it starts at block 0 inclusive.
	lower := "blockNumber > ?"
	if !it.started {
		lower = "blockNumber >= ?"
	}
	q := fmt.Sprintf(`SELECT %s, blockNumber FROM logs
		WHERE chainId = ? AND address = ? AND topic0 = ? AND blockNumber <= ? AND %s
		ORDER BY blockNumber ASC LIMIT ?`, it.childExpr, lower)

	rows, err := it.s.db.QueryContext(it.ctx, q,
		it.chainID, it.address, it.eventSelector,
		bigtext.EncodeUint64AsText(it.upToBlock), bigtext.EncodeUint64AsText(it.cursor), it.pageSize,
	)
	if err != nil {
		return nil, false, fmt.Errorf("get factory child addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	var lastBlockStr string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr, &lastBlockStr); err != nil {
			return nil, false, fmt.Errorf("get factory child addresses: scan: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	it.started = true

	if len(out) < it.pageSize {
		it.hasMore = false
	}
	if lastBlockStr != "" {
		it.cursor = decodeUint64(lastBlockStr)
	}
	return out, len(out) > 0, nil
}

// InsertRpcRequestResult upserts a memoized RPC read, overwriting result on
// conflict (spec §4.9).
func (s *Store) InsertRpcRequestResult(ctx context.Context, chainID uint64, blockNumber uint64, request, result string) error {
	row := &rpcRequestResultRow{
		Request:     request,
		BlockNumber: bigtext.EncodeUint64AsText(blockNumber),
		ChainID:     int64(chainID),
		Result:      result,
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO rpcRequestResults (request, blockNumber, chainId, result)
			VALUES (?,?,?,?)
			ON CONFLICT (request, blockNumber, chainId) DO UPDATE SET result = excluded.result`,
			row.Request, row.BlockNumber, row.ChainID, row.Result,
		)
		if err != nil {
			return fmt.Errorf("insert rpc request result: %w", err)
		}
		return nil
	})
}

// GetRpcRequestResult returns the cached result, or ok=false if absent
// (NotFound is surfaced as an empty option, per spec §7).
func (s *Store) GetRpcRequestResult(ctx context.Context, chainID uint64, blockNumber uint64, request string) (result string, ok bool, err error) {
	var row rpcRequestResultRow
	err = meddler.QueryRow(s.db, &row, `SELECT * FROM rpcRequestResults WHERE request = ? AND blockNumber = ? AND chainId = ?`,
		request, bigtext.EncodeUint64AsText(blockNumber), int64(chainID))
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get rpc request result: %w", err)
	}
	return row.Result, true, nil
}
