package store

import (
	"math/big"

	"github.com/joacorob/evmsync/internal/bigtext"
	"github.com/joacorob/evmsync/internal/model"
)

func encodeBig(n *big.Int) string {
	if n == nil {
		return bigtext.EncodeUint64AsText(0)
	}
	s, err := bigtext.EncodeAsText(n)
	if err != nil {
		// Overflow here is a programmer error at the ingestion boundary;
		// the spec marks EncodeOverflow as surfaced, not swallowed.
		panic(err)
	}
	return s
}

func encodeBigPtr(n *big.Int) *string {
	if n == nil {
		return nil
	}
	s := encodeBig(n)
	return &s
}

func decodeBig(s string) *big.Int {
	n, err := bigtext.DecodeToBigInt(s)
	if err != nil {
		return big.NewInt(0)
	}
	return n
}

func decodeBigPtr(s *string) *big.Int {
	if s == nil {
		return nil
	}
	return decodeBig(*s)
}

func decodeUint64(s string) uint64 {
	n, err := bigtext.DecodeToUint64(s)
	if err != nil {
		return 0
	}
	return n
}

func blockToRow(b model.Block) *blockRow {
	return &blockRow{
		Hash:             b.Hash,
		ChainID:          int64(b.ChainID),
		Number:           bigtext.EncodeUint64AsText(b.Number),
		Timestamp:        bigtext.EncodeUint64AsText(b.Timestamp),
		BaseFeePerGas:    encodeBigPtr(b.BaseFeePerGas),
		Difficulty:       encodeBig(b.Difficulty),
		ExtraData:        b.ExtraData,
		GasLimit:         encodeBig(b.GasLimit),
		GasUsed:          encodeBig(b.GasUsed),
		LogsBloom:        b.LogsBloom,
		Miner:            b.Miner,
		MixHash:          b.MixHash,
		Nonce:            b.Nonce,
		ParentHash:       b.ParentHash,
		ReceiptsRoot:     b.ReceiptsRoot,
		Sha3Uncles:       b.Sha3Uncles,
		Size:             encodeBig(b.Size),
		StateRoot:        b.StateRoot,
		TotalDifficulty:  encodeBig(b.TotalDifficulty),
		TransactionsRoot: b.TransactionsRoot,
	}
}

func rowToBlock(r *blockRow) model.Block {
	return model.Block{
		ChainID:          uint64(r.ChainID),
		Hash:             r.Hash,
		Number:           decodeUint64(r.Number),
		Timestamp:        decodeUint64(r.Timestamp),
		ParentHash:       r.ParentHash,
		BaseFeePerGas:    decodeBigPtr(r.BaseFeePerGas),
		Difficulty:       decodeBig(r.Difficulty),
		ExtraData:        r.ExtraData,
		GasLimit:         decodeBig(r.GasLimit),
		GasUsed:          decodeBig(r.GasUsed),
		LogsBloom:        r.LogsBloom,
		Miner:            r.Miner,
		MixHash:          r.MixHash,
		Nonce:            r.Nonce,
		ReceiptsRoot:     r.ReceiptsRoot,
		Sha3Uncles:       r.Sha3Uncles,
		Size:             decodeBig(r.Size),
		StateRoot:        r.StateRoot,
		TotalDifficulty:  decodeBig(r.TotalDifficulty),
		TransactionsRoot: r.TransactionsRoot,
	}
}

func txToRow(tx model.Transaction) *transactionRow {
	return &transactionRow{
		Hash:                 tx.Hash,
		ChainID:              int64(tx.ChainID),
		BlockHash:            tx.BlockHash,
		BlockNumber:          bigtext.EncodeUint64AsText(tx.BlockNumber),
		TransactionIndex:     int64(tx.TransactionIndex),
		From:                 tx.From,
		To:                   tx.To,
		Value:                encodeBig(tx.Value),
		Input:                tx.Input,
		Gas:                  encodeBig(tx.Gas),
		GasPrice:             encodeBigPtr(tx.GasPrice),
		MaxFeePerGas:         encodeBigPtr(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: encodeBigPtr(tx.MaxPriorityFeePerGas),
		Nonce:                int64(tx.Nonce),
		R:                    tx.R,
		S:                    tx.S,
		V:                    tx.V,
		Type:                 string(tx.Type),
		AccessList:           strOrNil(tx.AccessList),
	}
}

func rowToTx(r *transactionRow) model.Transaction {
	return model.Transaction{
		Hash:                 r.Hash,
		ChainID:              uint64(r.ChainID),
		BlockHash:            r.BlockHash,
		BlockNumber:          decodeUint64(r.BlockNumber),
		TransactionIndex:     int(r.TransactionIndex),
		From:                 r.From,
		To:                   r.To,
		Value:                decodeBig(r.Value),
		Input:                r.Input,
		Gas:                  decodeBig(r.Gas),
		GasPrice:             decodeBigPtr(r.GasPrice),
		MaxFeePerGas:         decodeBigPtr(r.MaxFeePerGas),
		MaxPriorityFeePerGas: decodeBigPtr(r.MaxPriorityFeePerGas),
		Nonce:                uint64(r.Nonce),
		R:                    r.R,
		S:                    r.S,
		V:                    r.V,
		Type:                 model.TxType(r.Type),
		RawType:              r.Type,
		AccessList:           strFromPtr(r.AccessList),
	}
}

func logToRow(l model.Log) *logRow {
	return &logRow{
		ID:               l.ID,
		ChainID:          int64(l.ChainID),
		Address:          l.Address,
		BlockHash:        l.BlockHash,
		BlockNumber:      bigtext.EncodeUint64AsText(l.BlockNumber),
		Data:             l.Data,
		LogIndex:         int64(l.LogIndex),
		Topic0:           strOrNil(l.Topic(0)),
		Topic1:           strOrNil(l.Topic(1)),
		Topic2:           strOrNil(l.Topic(2)),
		Topic3:           strOrNil(l.Topic(3)),
		TransactionHash:  l.TransactionHash,
		TransactionIndex: int64(l.TransactionIndex),
	}
}

func rowToLog(r *logRow) model.Log {
	var topics []string
	for _, t := range []*string{r.Topic0, r.Topic1, r.Topic2, r.Topic3} {
		if t == nil {
			break
		}
		topics = append(topics, *t)
	}
	return model.Log{
		ID:               r.ID,
		ChainID:          uint64(r.ChainID),
		Address:          r.Address,
		BlockHash:        r.BlockHash,
		BlockNumber:      decodeUint64(r.BlockNumber),
		Data:             r.Data,
		LogIndex:         int(r.LogIndex),
		Topics:           topics,
		TransactionHash:  r.TransactionHash,
		TransactionIndex: int(r.TransactionIndex),
	}
}
