package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joacorob/evmsync/internal/model"
)

func TestBuildLogFilterPredicateIncludesAllBoundSlots(t *testing.T) {
	from := uint64(10)
	to := uint64(20)
	f := LogFilterSpec{
		EventSourceName: "transfers",
		ChainID:         1,
		Criteria: model.LogFilterCriteria{
			Address:   model.AddressSet{"0xaaa", "0xbbb"},
			FromBlock: &from,
			ToBlock:   &to,
		},
	}
	p := buildLogFilterPredicate(f)
	require.Contains(t, p.clause, "logs.chainId = ?")
	require.Contains(t, p.clause, "logs.address IN (?,?)")
	require.Contains(t, p.clause, "logs.blockNumber >= ?")
	require.Contains(t, p.clause, "logs.blockNumber <= ?")
}

func TestBuildLogFilterPredicateNoSelectorsStripsSelectors(t *testing.T) {
	f := LogFilterSpec{
		ChainID: 1,
		Criteria: model.LogFilterCriteria{
			IncludeEventSelectors: []string{"0xdead"},
		},
	}
	withSel := buildLogFilterPredicate(f)
	noSel := buildLogFilterPredicateNoSelectors(f)
	require.Contains(t, withSel.clause, "logs.topic0 IN")
	require.NotContains(t, noSel.clause, "logs.topic0 IN")
}

func TestCursorPredicateBuildsFourBranchOrChain(t *testing.T) {
	p := cursorPredicate(model.Cursor{Timestamp: 100, ChainID: 1, BlockNumber: 5, LogIndex: 2})
	require.Contains(t, p.clause, "blocks.timestamp > ?")
	require.Contains(t, p.clause, "logs.chainId > ?")
	require.Contains(t, p.clause, "logs.blockNumber > ?")
	require.Contains(t, p.clause, "logs.logIndex > ?")
	require.Len(t, p.args, 10)
}

func TestBuildFactoryPredicateAppliesTopicConstraints(t *testing.T) {
	f := FactorySpec{
		ChainID: 1,
		Criteria: model.FactoryCriteria{
			Address:              model.AddressSet{"0xfactory"},
			EventSelector:        "0xcreate",
			ChildAddressLocation: "topic1",
			Topics: [4]model.TopicSet{
				{"0xswap"},
			},
		},
	}
	p, err := buildFactoryPredicate(f)
	require.NoError(t, err)
	require.Contains(t, p.clause, "logs.address IN (SELECT")
	require.Contains(t, p.clause, "logs.topic0 IN (?)")
	require.Contains(t, p.args, "0xswap")
}

func TestOrAllNoPredsMatchesNothing(t *testing.T) {
	p := orAll(nil)
	require.Equal(t, "0", p.clause)
}

func TestAndAllSkipsEmptyClauses(t *testing.T) {
	p := andAll(predicate{clause: ""}, predicate{clause: "a = ?", args: []any{1}}, predicate{clause: "b = ?", args: []any{2}})
	require.Equal(t, "a = ? AND b = ?", p.clause)
	require.Equal(t, []any{1, 2}, p.args)
}
