package store_test

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joacorob/evmsync/internal/interval"
	"github.com/joacorob/evmsync/internal/model"
	"github.com/joacorob/evmsync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Kill() })
	return s
}

func zero() *big.Int { return big.NewInt(0) }

func testBlock(chainID, number uint64) model.Block {
	hash := "0xblock" + big.NewInt(int64(number)).String()
	return model.Block{
		ChainID: chainID, Hash: hash, Number: number, Timestamp: 1000 + number,
		ParentHash: "0xparent", Difficulty: zero(), ExtraData: "0x", GasLimit: zero(), GasUsed: zero(),
		LogsBloom: "0x", Miner: "0xminer", MixHash: "0x", Nonce: "0x",
		ReceiptsRoot: "0x", Sha3Uncles: "0x", Size: zero(), StateRoot: "0x",
		TotalDifficulty: zero(), TransactionsRoot: "0x",
	}
}

// TestGetLogFilterIntervalsUnionsTouchingRanges exercises spec scenario S1:
// two adjacent backfill writes for the same filter merge into one interval.
func TestGetLogFilterIntervalsUnionsTouchingRanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	criteria := model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}

	b1 := testBlock(1, 10)
	require.NoError(t, s.InsertLogFilterInterval(ctx, 1, criteria, b1, nil, nil, interval.Interval{Start: 1, End: 10}))

	b2 := testBlock(1, 20)
	require.NoError(t, s.InsertLogFilterInterval(ctx, 1, criteria, b2, nil, nil, interval.Interval{Start: 11, End: 20}))

	ivs, err := s.GetLogFilterIntervals(ctx, 1, criteria)
	require.NoError(t, err)
	require.Equal(t, []interval.Interval{{Start: 1, End: 20}}, ivs)
}

// TestGetLogFilterIntervalsCrossFragmentIntersection exercises spec scenario
// S2: a two-address filter's coverage is the intersection of each address's
// individually-tracked fragment coverage.
func TestGetLogFilterIntervalsCrossFragmentIntersection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	aOnly := model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}
	bOnly := model.LogFilterCriteria{Address: model.AddressSet{"0xbbb"}}
	both := model.LogFilterCriteria{Address: model.AddressSet{"0xaaa", "0xbbb"}}

	require.NoError(t, s.InsertLogFilterInterval(ctx, 1, aOnly, testBlock(1, 100), nil, nil, interval.Interval{Start: 1, End: 100}))
	require.NoError(t, s.InsertLogFilterInterval(ctx, 1, bOnly, testBlock(1, 50), nil, nil, interval.Interval{Start: 1, End: 50}))

	ivs, err := s.GetLogFilterIntervals(ctx, 1, both)
	require.NoError(t, err)
	require.Equal(t, []interval.Interval{{Start: 1, End: 50}}, ivs)
}

func TestGetLogFilterIntervalsEmptyWhenNeverWritten(t *testing.T) {
	s := openTestStore(t)
	ivs, err := s.GetLogFilterIntervals(context.Background(), 1, model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}})
	require.NoError(t, err)
	require.Empty(t, ivs)
}

func TestInsertLogFilterIntervalIsIdempotentOnReplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	criteria := model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}
	b := testBlock(1, 10)
	logs := []model.Log{{ID: "l1", Address: "0xaaa", LogIndex: 0, Data: "0x"}}

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertLogFilterInterval(ctx, 1, criteria, b, nil, logs, interval.Interval{Start: 10, End: 10}))
	}

	ivs, err := s.GetLogFilterIntervals(ctx, 1, criteria)
	require.NoError(t, err)
	require.Equal(t, []interval.Interval{{Start: 10, End: 10}}, ivs)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM logs WHERE id = ?`, "l1").Scan(&count))
	require.Equal(t, 1, count)
}

// TestInsertLogFilterIntervalDetectsStorageConflict exercises spec §7: a
// block hash reused with genuinely different content (not an idempotent
// replay) must surface ErrStorageConflict rather than be silently ignored.
func TestInsertLogFilterIntervalDetectsStorageConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	criteria := model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}

	b := testBlock(1, 10)
	require.NoError(t, s.InsertLogFilterInterval(ctx, 1, criteria, b, nil, nil, interval.Interval{Start: 10, End: 10}))

	conflicting := b
	conflicting.Timestamp = b.Timestamp + 1
	err := s.InsertLogFilterInterval(ctx, 1, criteria, conflicting, nil, nil, interval.Interval{Start: 10, End: 10})
	require.ErrorIs(t, err, store.ErrStorageConflict)
}

// TestDeleteRealtimeDataTruncatesAndClampsIntervals exercises spec scenario
// S4 (reorg truncation): data after the pivot is deleted and any interval
// extending past the pivot is clamped rather than deleted outright.
func TestDeleteRealtimeDataTruncatesAndClampsIntervals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	criteria := model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}

	require.NoError(t, s.InsertRealtimeInterval(ctx, 1, []model.LogFilterCriteria{criteria}, nil, interval.Interval{Start: 1, End: 100}))
	require.NoError(t, s.InsertRealtimeBlock(ctx, testBlock(1, 50), nil, nil))
	require.NoError(t, s.InsertRealtimeBlock(ctx, testBlock(1, 90), nil, nil))

	require.NoError(t, s.DeleteRealtimeData(ctx, 1, 60))

	ivs, err := s.GetLogFilterIntervals(ctx, 1, criteria)
	require.NoError(t, err)
	require.Equal(t, []interval.Interval{{Start: 1, End: 60}}, ivs)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM blocks WHERE number = ?`, "0000000000000000000000000000000000000000000000000000000000000000000000000000090").Scan(&count))
	require.Equal(t, 0, count)
}

func TestRpcRequestResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetRpcRequestResult(ctx, 1, 10, "eth_getBlockByNumber")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.InsertRpcRequestResult(ctx, 1, 10, "eth_getBlockByNumber", "result-v1"))
	result, ok, err := s.GetRpcRequestResult(ctx, 1, 10, "eth_getBlockByNumber")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "result-v1", result)

	require.NoError(t, s.InsertRpcRequestResult(ctx, 1, 10, "eth_getBlockByNumber", "result-v2"))
	result, ok, err = s.GetRpcRequestResult(ctx, 1, 10, "eth_getBlockByNumber")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "result-v2", result)
}

func TestGetFactoryChildAddressesDerivesFromTopic1(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	factory := model.FactoryCriteria{
		Address:              model.AddressSet{"0xfactory"},
		EventSelector:        "0xcreate00000000000000000000000000000000000000000000000000000000",
		ChildAddressLocation: "topic1",
	}
	childTopic := "0x" + strings.Repeat("0", 62) + "aa"
	logs := []model.Log{{
		Address: "0xfactory", LogIndex: 0, Data: "0x",
		Topics: []string{factory.EventSelector, childTopic},
	}}

	require.NoError(t, s.InsertFactoryLogFilterInterval(ctx, 1, factory, testBlock(1, 5), nil, logs, interval.Interval{Start: 5, End: 5}))

	it, err := s.GetFactoryChildAddresses(ctx, 1, 5, factory, 10)
	require.NoError(t, err)
	addrs, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"0x" + strings.Repeat("0", 38) + "aa"}, addrs)
}

// TestGetFactoryChildAddressesDerivesFromOffset exercises spec scenario S5:
// childAddressLocation="offset0" must read the low 20 bytes of the 32-byte
// ABI word at word index 0 (i.e. skip its 12-byte left-pad), not the 20
// bytes located literally at byte offset 0.
func TestGetFactoryChildAddressesDerivesFromOffset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	factory := model.FactoryCriteria{
		Address:              model.AddressSet{"0xfactory"},
		EventSelector:        "0xcreate00000000000000000000000000000000000000000000000000000000",
		ChildAddressLocation: "offset0",
	}
	data := "0x" + strings.Repeat("00", 12) + strings.Repeat("aa", 20)
	logs := []model.Log{{
		Address: "0xfactory", LogIndex: 0, Data: data,
		Topics: []string{factory.EventSelector},
	}}

	require.NoError(t, s.InsertFactoryLogFilterInterval(ctx, 1, factory, testBlock(1, 5), nil, logs, interval.Interval{Start: 5, End: 5}))

	it, err := s.GetFactoryChildAddresses(ctx, 1, 5, factory, 10)
	require.NoError(t, err)
	addrs, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"0x" + strings.Repeat("aa", 20)}, addrs)
}
