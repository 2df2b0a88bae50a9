package events_test

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joacorob/evmsync/internal/interval"
	"github.com/joacorob/evmsync/internal/model"
	"github.com/joacorob/evmsync/internal/store"
	"github.com/joacorob/evmsync/internal/store/events"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Kill() })
	return s
}

func zero() *big.Int { return big.NewInt(0) }

func seedBlock(t *testing.T, s *store.Store, chainID, number, timestamp uint64, logs []model.Log) {
	t.Helper()
	hash := "0xblock" + big.NewInt(int64(number)).String()
	block := model.Block{
		ChainID:    chainID,
		Hash:       hash,
		Number:     number,
		Timestamp:  timestamp,
		ParentHash: "0xparent",
		Difficulty: zero(), ExtraData: "0x", GasLimit: zero(), GasUsed: zero(),
		LogsBloom: "0x", Miner: "0xminer", MixHash: "0x", Nonce: "0x",
		ReceiptsRoot: "0x", Sha3Uncles: "0x", Size: zero(), StateRoot: "0x",
		TotalDifficulty: zero(), TransactionsRoot: "0x",
	}
	tx := model.Transaction{
		Hash: hash + "-tx", ChainID: chainID, BlockHash: hash, BlockNumber: number,
		From: "0xfrom", Value: zero(), Gas: zero(), Type: model.TxTypeLegacy, RawType: "0x0",
	}
	for i := range logs {
		logs[i].BlockHash = hash
		logs[i].BlockNumber = number
		logs[i].ChainID = chainID
		logs[i].TransactionHash = tx.Hash
		if logs[i].ID == "" {
			logs[i].ID = hash + "-" + big.NewInt(int64(logs[i].LogIndex)).String()
		}
	}

	criteria := model.LogFilterCriteria{}
	err := s.InsertLogFilterInterval(context.Background(), chainID, criteria, block, []model.Transaction{tx}, logs, interval.Interval{Start: number, End: number})
	require.NoError(t, err)
}

func TestLogEventIteratorTagsMatchingFilter(t *testing.T) {
	s := openTestStore(t)

	topic0 := "0xdeadbeef00000000000000000000000000000000000000000000000000000000"
	seedBlock(t, s, 1, 10, 1000, []model.Log{
		{Address: "0xaaa", LogIndex: 0, Topics: []string{topic0}, Data: "0x", TransactionIndex: 0},
	})
	seedBlock(t, s, 1, 11, 1001, []model.Log{
		{Address: "0xbbb", LogIndex: 0, Topics: []string{"0xother"}, Data: "0x", TransactionIndex: 0},
	})

	req := events.Request{
		FromTimestamp: 0,
		ToTimestamp:   9999,
		PageSize:      10,
		LogFilters: []events.LogFilterSpec{
			{EventSourceName: "widgets", ChainID: 1, Criteria: model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}},
		},
	}
	it := events.NewLogEventIterator(s.DB(), req)

	page, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page.Events, 1)
	require.Equal(t, "widgets", page.Events[0].EventSourceName)
	require.Equal(t, "0xaaa", page.Events[0].Log.Address)
}

func TestLogEventIteratorCountsPreamble(t *testing.T) {
	s := openTestStore(t)

	topicA := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	seedBlock(t, s, 1, 10, 1000, []model.Log{
		{Address: "0xaaa", LogIndex: 0, Topics: []string{topicA}, Data: "0x"},
	})
	seedBlock(t, s, 1, 11, 1001, []model.Log{
		{Address: "0xaaa", LogIndex: 0, Topics: []string{topicA}, Data: "0x"},
	})

	req := events.Request{
		FromTimestamp: 0,
		ToTimestamp:   9999,
		PageSize:      10,
		LogFilters: []events.LogFilterSpec{
			{EventSourceName: "widgets", ChainID: 1, Criteria: model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}},
		},
	}
	it := events.NewLogEventIterator(s.DB(), req)
	page, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page.Metadata.Counts, 1)
	require.Equal(t, int64(2), page.Metadata.Counts[0].Count)
	require.Equal(t, "widgets", page.Metadata.Counts[0].EventSourceName)
}

func TestLogEventIteratorPaginatesAndExhausts(t *testing.T) {
	s := openTestStore(t)

	topic0 := "0xcafe000000000000000000000000000000000000000000000000000000000000"
	for n := uint64(1); n <= 3; n++ {
		seedBlock(t, s, 1, n, 1000+n, []model.Log{
			{Address: "0xaaa", LogIndex: 0, Topics: []string{topic0}, Data: "0x"},
		})
	}

	req := events.Request{
		FromTimestamp: 0,
		ToTimestamp:   9999,
		PageSize:      2,
		LogFilters: []events.LogFilterSpec{
			{EventSourceName: "widgets", ChainID: 1, Criteria: model.LogFilterCriteria{Address: model.AddressSet{"0xaaa"}}},
		},
	}
	it := events.NewLogEventIterator(s.DB(), req)

	page1, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page1.Events, 2)

	page2, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page2.Events, 1)

	page3, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, page3.Events, 0)
}

// TestLogEventIteratorFactoryAppliesTopicConstraint exercises spec §4.7:
// a factory that names a topic0 constraint must only surface child-address
// logs matching that event, not every log the derived child contract emits.
func TestLogEventIteratorFactoryAppliesTopicConstraint(t *testing.T) {
	s := openTestStore(t)

	createSelector := "0xcreate0000000000000000000000000000000000000000000000000000000000"
	childAddr := "0x" + strings.Repeat("11", 20)
	childTopic1 := "0x" + strings.Repeat("00", 12) + strings.Repeat("11", 20)
	seedBlock(t, s, 1, 10, 1000, []model.Log{
		{Address: "0xfactory", LogIndex: 0, Topics: []string{createSelector, childTopic1}, Data: "0x"},
	})

	wantTopic := "0xswap00000000000000000000000000000000000000000000000000000000000"
	otherTopic := "0xother000000000000000000000000000000000000000000000000000000000"
	seedBlock(t, s, 1, 11, 1001, []model.Log{
		{Address: childAddr, LogIndex: 0, Topics: []string{wantTopic}, Data: "0x"},
		{Address: childAddr, LogIndex: 1, Topics: []string{otherTopic}, Data: "0x"},
	})

	req := events.Request{
		FromTimestamp: 0,
		ToTimestamp:   9999,
		PageSize:      10,
		Factories: []events.FactorySpec{
			{
				EventSourceName: "pools",
				ChainID:         1,
				Criteria: model.FactoryCriteria{
					Address:              model.AddressSet{"0xfactory"},
					EventSelector:        createSelector,
					ChildAddressLocation: "topic1",
					Topics:               [4]model.TopicSet{{wantTopic}},
				},
			},
		},
	}
	it := events.NewLogEventIterator(s.DB(), req)

	page, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page.Events, 1)
	require.Equal(t, wantTopic, page.Events[0].Log.Topic(0))
	require.Equal(t, childAddr, page.Events[0].Log.Address)
}

func TestLogEventIteratorNoFiltersMatchesNothing(t *testing.T) {
	s := openTestStore(t)
	seedBlock(t, s, 1, 10, 1000, []model.Log{{Address: "0xaaa", LogIndex: 0, Data: "0x"}})

	it := events.NewLogEventIterator(s.DB(), events.Request{FromTimestamp: 0, ToTimestamp: 9999, PageSize: 10})
	page, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, page.Events)
}
