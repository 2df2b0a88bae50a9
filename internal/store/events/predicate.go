package events

import (
	"fmt"
	"strings"

	"github.com/joacorob/evmsync/internal/bigtext"
	"github.com/joacorob/evmsync/internal/model"
	"github.com/joacorob/evmsync/internal/store"
)

// predicate is a lowered SQL boolean expression (spec §9: "dynamic SQL
// construction by chained builder" / "a small expression AST that is
// lowered to the target SQL dialect"). clause references the logs/blocks
// aliases used by the iterator's FROM clause.
type predicate struct {
	clause string
	args   []any
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// inSet builds "column IN (?,?,...)" for a non-empty set, or "" (always
// true, no constraint) for an empty/nil one.
func inSet(column string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))), args
}

// buildLogFilterPredicate lowers one LogFilterSpec into the conjunction
// described in spec §4.7.
func buildLogFilterPredicate(f LogFilterSpec) predicate {
	var clauses []string
	var args []any

	clauses = append(clauses, "logs.chainId = ?")
	args = append(args, f.ChainID)

	if c, a := inSet("logs.address", f.Criteria.Address); c != "" {
		clauses = append(clauses, c)
		args = append(args, a...)
	}
	for i, topics := range f.Criteria.Topics {
		col := fmt.Sprintf("logs.topic%d", i)
		if c, a := inSet(col, topics); c != "" {
			clauses = append(clauses, c)
			args = append(args, a...)
		}
	}
	if f.Criteria.FromBlock != nil {
		clauses = append(clauses, "logs.blockNumber >= ?")
		args = append(args, bigtext.EncodeUint64AsText(*f.Criteria.FromBlock))
	}
	if f.Criteria.ToBlock != nil {
		clauses = append(clauses, "logs.blockNumber <= ?")
		args = append(args, bigtext.EncodeUint64AsText(*f.Criteria.ToBlock))
	}
	if len(f.Criteria.IncludeEventSelectors) > 0 {
		if c, a := inSet("logs.topic0", f.Criteria.IncludeEventSelectors); c != "" {
			clauses = append(clauses, c)
			args = append(args, a...)
		}
	}

	return predicate{clause: "(" + strings.Join(clauses, " AND ") + ")", args: args}
}

// buildLogFilterPredicateNoSelectors is the same predicate without the
// includeEventSelectors clause, used by the counts preamble query (spec
// §4.7: "the same predicate but without the includeEventSelectors clause").
func buildLogFilterPredicateNoSelectors(f LogFilterSpec) predicate {
	stripped := f
	stripped.Criteria.IncludeEventSelectors = nil
	return buildLogFilterPredicate(stripped)
}

// buildFactoryPredicate lowers one FactorySpec, adding the correlated
// child-address-membership subquery described in spec §4.6/§4.7: "up to
// that block" means up to the candidate row's own block number.
func buildFactoryPredicate(f FactorySpec) (predicate, error) {
	expr, err := store.ChildAddressExpr(f.Criteria.ChildAddressLocation)
	if err != nil {
		return predicate{}, err
	}

	var clauses []string
	var args []any

	clauses = append(clauses, "logs.chainId = ?")
	args = append(args, f.ChainID)

	emitterAddr := ""
	if len(f.Criteria.Address) > 0 {
		emitterAddr = f.Criteria.Address[0]
	}

	subquery := fmt.Sprintf(
		`logs.address IN (SELECT %s FROM logs AS emitter_logs
			WHERE emitter_logs.chainId = ? AND emitter_logs.address = ? AND emitter_logs.topic0 = ?
			AND emitter_logs.blockNumber <= logs.blockNumber)`,
		expr,
	)
	clauses = append(clauses, subquery)
	args = append(args, f.ChainID, emitterAddr, f.Criteria.EventSelector)

	for i, topics := range f.Criteria.Topics {
		col := fmt.Sprintf("logs.topic%d", i)
		if c, a := inSet(col, topics); c != "" {
			clauses = append(clauses, c)
			args = append(args, a...)
		}
	}

	return predicate{clause: "(" + strings.Join(clauses, " AND ") + ")", args: args}, nil
}

// cursorPredicate formulates "(t,c,b,l) > (T,C,B,L)" as the nested
// OR/AND chain spec §4.7 requires, so ties within a timestamp are never
// lost to a naive "timestamp > T" comparison.
func cursorPredicate(cur model.Cursor) predicate {
	ts := bigtext.EncodeUint64AsText(cur.Timestamp)
	bn := bigtext.EncodeUint64AsText(cur.BlockNumber)

	clause := `(
		blocks.timestamp > ?
		OR (blocks.timestamp = ? AND logs.chainId > ?)
		OR (blocks.timestamp = ? AND logs.chainId = ? AND logs.blockNumber > ?)
		OR (blocks.timestamp = ? AND logs.chainId = ? AND logs.blockNumber = ? AND logs.logIndex > ?)
	)`
	args := []any{
		ts,
		ts, cur.ChainID,
		ts, cur.ChainID, bn,
		ts, cur.ChainID, bn, cur.LogIndex,
	}
	return predicate{clause: clause, args: args}
}

func orAll(preds []predicate) predicate {
	if len(preds) == 0 {
		return predicate{clause: "0"} // no filters/factories: matches nothing
	}
	clauses := make([]string, len(preds))
	var args []any
	for i, p := range preds {
		clauses[i] = p.clause
		args = append(args, p.args...)
	}
	return predicate{clause: "(" + strings.Join(clauses, " OR ") + ")", args: args}
}

func andAll(preds ...predicate) predicate {
	clauses := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		if p.clause == "" {
			continue
		}
		clauses = append(clauses, p.clause)
		args = append(args, p.args...)
	}
	return predicate{clause: strings.Join(clauses, " AND "), args: args}
}
