// Package model defines the store's persisted entities and the event shape
// handed back to callers of the event iterator.
package model

import "math/big"

// Block mirrors the blocks table (spec §6). Numeric fields wider than 64
// bits are big.Int in memory and fixed-width padded text on disk (see
// internal/bigtext).
type Block struct {
	ChainID          uint64
	Hash             string
	Number           uint64
	Timestamp        uint64
	ParentHash       string
	BaseFeePerGas    *big.Int // nil when absent (pre-EIP-1559)
	Difficulty       *big.Int
	ExtraData        string
	GasLimit         *big.Int
	GasUsed          *big.Int
	LogsBloom        string
	Miner            string
	MixHash          string
	Nonce            string
	ReceiptsRoot     string
	Sha3Uncles       string
	Size             *big.Int
	StateRoot        string
	TotalDifficulty  *big.Int
	TransactionsRoot string
}

// TxType tags which payload variant a Transaction carries.
type TxType string

const (
	TxTypeLegacy  TxType = "legacy"
	TxTypeEIP2930 TxType = "eip2930"
	TxTypeEIP1559 TxType = "eip1559"
	TxTypeDeposit TxType = "deposit"
	TxTypeUnknown TxType = "unknown"
)

// Transaction is a sum type over the wire formats EVM chains use. Payload
// fields outside a variant's valid subset are left zero/nil. RawType holds
// the chain's numeric type as set by the parser; the store persists only
// Type, so a transaction read back from the store carries the Type tag in
// RawType and the original numeric type of a TxTypeUnknown is not kept.
type Transaction struct {
	Hash             string
	ChainID          uint64
	BlockHash        string
	BlockNumber      uint64
	TransactionIndex int
	From             string
	To               *string // nil for contract-creation transactions
	Value            *big.Int
	Input            string
	Gas              *big.Int
	Nonce            uint64
	R                string
	S                string
	V                string
	Type             TxType
	RawType          string

	// legacy: no extra fields beyond the common set above (Gas acts as
	// gasPrice's counterpart — see GasPrice below).
	GasPrice *big.Int // legacy, eip2930

	// eip2930
	AccessList string // opaque JSON-encoded access list, nil-equivalent is ""

	// eip1559 (and deposit, where applicable)
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Log mirrors the logs table. Topics holds only the non-null prefix of
// topic0..topic3, per spec §4.7's event shape.
type Log struct {
	ID               string // "<blockHash>-<logIndex>"
	ChainID          uint64
	Address          string
	BlockHash        string
	BlockNumber      uint64
	Data             string
	LogIndex         int
	Topics           []string // non-null prefix of topic0..3, len 0..4
	TransactionHash  string
	TransactionIndex int
}

// Topic returns topics[i] or "" if absent, matching the topic0..topic3
// column semantics (nullable, positional).
func (l Log) Topic(i int) string {
	if i < 0 || i >= len(l.Topics) {
		return ""
	}
	return l.Topics[i]
}

// LogFilterCriteria is the user-supplied filter shape from spec §4.3:
// address/topics slots may each be a scalar, a set, or absent (nil).
type LogFilterCriteria struct {
	Address               AddressSet
	Topics                [4]TopicSet // topics[0..3]; zero value means "absent"
	FromBlock             *uint64
	ToBlock               *uint64
	IncludeEventSelectors []string
}

// AddressSet holds zero or more lowercase hex addresses; nil/empty means
// "any address" (the slot was absent from the criteria).
type AddressSet []string

// TopicSet holds zero or more lowercase hex topic values for one position;
// nil/empty means "any value" (the slot was absent).
type TopicSet []string

// LogFilterFragment is a fully-bound single-value fragment of a
// LogFilterCriteria's cartesian expansion (spec §4.3). Empty string means
// "no constraint at this slot" (i.e. the original spec's null).
type LogFilterFragment struct {
	ID      string
	ChainID uint64
	Address string // "" = unconstrained
	Topic0  string
	Topic1  string
	Topic2  string
	Topic3  string
}

// FactoryCriteria describes a factory child-address filter before
// expansion (spec §3, §4.3).
type FactoryCriteria struct {
	ChainID              uint64
	Address              AddressSet
	EventSelector        string
	ChildAddressLocation string // "topic1"|"topic2"|"topic3"|"offset<N>"
	Topics               [4]TopicSet
}

// FactoryFragment is a fully-bound fragment of a FactoryCriteria's
// expansion; Address/EventSelector/ChildAddressLocation are always bound.
type FactoryFragment struct {
	ID                   string
	ChainID              uint64
	Address              string
	EventSelector        string
	ChildAddressLocation string
	Topic0               string
	Topic1               string
	Topic2               string
	Topic3               string
}

// Event is the fully-joined row the event iterator yields.
type Event struct {
	EventSourceName string
	ChainID         uint64
	Log             Log
	Block           Block
	Transaction     Transaction
}

// Cursor identifies a position in the event iterator's total order.
type Cursor struct {
	Timestamp   uint64
	ChainID     uint64
	BlockNumber uint64
	LogIndex    int
}

// Less reports whether c sorts strictly before other in the iterator's
// total order: (timestamp, chainId, blockNumber, logIndex) ascending.
func (c Cursor) Less(other Cursor) bool {
	if c.Timestamp != other.Timestamp {
		return c.Timestamp < other.Timestamp
	}
	if c.ChainID != other.ChainID {
		return c.ChainID < other.ChainID
	}
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber < other.BlockNumber
	}
	return c.LogIndex < other.LogIndex
}

// EventCount is one row of the counts-by-(eventSourceName,topic0) preamble
// query described in spec §4.7.
type EventCount struct {
	EventSourceName string
	Topic0          string
	Count           int64
}

// PageMetadata accompanies every page yielded by the event iterator.
type PageMetadata struct {
	PageEndsAtTimestamp uint64
	Counts              []EventCount
}
