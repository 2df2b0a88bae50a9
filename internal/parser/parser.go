// Package parser converts go-ethereum's wire types (types.Block,
// types.Transaction, types.Log) into the sync store's model types, and
// derives event selectors from human-readable signatures. Adapted from the
// teacher's Parser, which decoded logs into generic sink.Event maps via a
// configured contract ABI; the store's typed schema replaces that decoding
// step, but the block/tx enrichment and signature-hashing logic (topic0
// derivation, transaction sender recovery) carries over.
package parser

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/joacorob/evmsync/internal/model"
)

// EventSelector hashes a human-readable event signature
// ("Transfer(address,address,uint256)") into its topic0 value, the same
// derivation go-ethereum's abi.Event.ID performs internally. The config
// loader does not call it: event_selector and topics in config are taken
// as raw hex values.
func EventSelector(signature string) string {
	return crypto.Keccak256Hash([]byte(signature)).Hex()
}

// EventSelectorFromABI looks up eventName in a parsed contract ABI and
// returns its topic0, mirroring the teacher's findEventByID but keyed by
// name instead of by pre-computed hash.
func EventSelectorFromABI(contractABI *abi.ABI, eventName string) (string, error) {
	ev, ok := contractABI.Events[eventName]
	if !ok {
		return "", fmt.Errorf("event %q not found in ABI", eventName)
	}
	return ev.ID.Hex(), nil
}

// ConvertBlock maps a go-ethereum block header into model.Block.
func ConvertBlock(chainID uint64, b *types.Block) model.Block {
	h := b.Header()
	mb := model.Block{
		ChainID:          chainID,
		Hash:             b.Hash().Hex(),
		Number:           b.NumberU64(),
		Timestamp:        b.Time(),
		ParentHash:       h.ParentHash.Hex(),
		Difficulty:       orZero(h.Difficulty),
		ExtraData:        common.Bytes2Hex(h.Extra),
		GasLimit:         new(big.Int).SetUint64(h.GasLimit),
		GasUsed:          new(big.Int).SetUint64(h.GasUsed),
		LogsBloom:        common.Bytes2Hex(h.Bloom.Bytes()),
		Miner:            h.Coinbase.Hex(),
		MixHash:          h.MixDigest.Hex(),
		Nonce:             fmt.Sprintf("0x%x", h.Nonce.Uint64()),
		ReceiptsRoot:     h.ReceiptHash.Hex(),
		Sha3Uncles:       h.UncleHash.Hex(),
		Size:             new(big.Int).SetUint64(b.Size()),
		StateRoot:        h.Root.Hex(),
		TotalDifficulty:  big.NewInt(0), // not carried on types.Block; left zero
		TransactionsRoot: h.TxHash.Hex(),
	}
	if h.BaseFee != nil {
		mb.BaseFeePerGas = h.BaseFee
	}
	return mb
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return n
}

// ConvertTransaction maps a go-ethereum transaction into model.Transaction,
// tagging its TxType variant and recovering the sender via the signer for
// chainID (the teacher's enrichWithBlockAndTx sender-recovery logic).
func ConvertTransaction(chainID uint64, blockHash string, blockNumber uint64, txIndex int, tx *types.Transaction) (model.Transaction, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	from, err := types.Sender(signer, tx)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("recover sender: %w", err)
	}

	out := model.Transaction{
		Hash:             tx.Hash().Hex(),
		ChainID:          chainID,
		BlockHash:        blockHash,
		BlockNumber:      blockNumber,
		TransactionIndex: txIndex,
		From:             from.Hex(),
		Value:            orZero(tx.Value()),
		Input:            common.Bytes2Hex(tx.Data()),
		Gas:              new(big.Int).SetUint64(tx.Gas()),
		Nonce:            tx.Nonce(),
		RawType:          fmt.Sprintf("%d", tx.Type()),
	}
	if to := tx.To(); to != nil {
		s := to.Hex()
		out.To = &s
	}

	v, r, s := tx.RawSignatureValues()
	out.V, out.R, out.S = v.String(), r.String(), s.String()

	switch tx.Type() {
	case types.LegacyTxType:
		out.Type = model.TxTypeLegacy
		out.GasPrice = tx.GasPrice()
	case types.AccessListTxType:
		out.Type = model.TxTypeEIP2930
		out.GasPrice = tx.GasPrice()
		out.AccessList = encodeAccessList(tx.AccessList())
	case types.DynamicFeeTxType:
		out.Type = model.TxTypeEIP1559
		out.MaxFeePerGas = tx.GasFeeCap()
		out.MaxPriorityFeePerGas = tx.GasTipCap()
		out.AccessList = encodeAccessList(tx.AccessList())
	default:
		out.Type = model.TxTypeUnknown
	}

	return out, nil
}

// encodeAccessList produces an opaque hex-joined encoding of an access
// list: good enough for storage and round-tripping, not re-parsed anywhere
// downstream.
func encodeAccessList(al types.AccessList) string {
	out := ""
	for _, entry := range al {
		out += entry.Address.Hex()
		for _, k := range entry.StorageKeys {
			out += k.Hex()
		}
	}
	return out
}

// ConvertLog maps a go-ethereum log into model.Log.
func ConvertLog(chainID uint64, lg *types.Log) model.Log {
	topics := make([]string, len(lg.Topics))
	for i, t := range lg.Topics {
		topics[i] = t.Hex()
	}
	return model.Log{
		ID:               fmt.Sprintf("%s-%d", lg.BlockHash.Hex(), lg.Index),
		ChainID:          chainID,
		Address:          lg.Address.Hex(),
		BlockHash:        lg.BlockHash.Hex(),
		BlockNumber:      lg.BlockNumber,
		Data:             common.Bytes2Hex(lg.Data),
		LogIndex:         int(lg.Index),
		Topics:           topics,
		TransactionHash:  lg.TxHash.Hex(),
		TransactionIndex: int(lg.TxIndex),
	}
}
