package store

// rows.go defines the meddler-tagged row shapes used to scan/insert raw
// SQL rows. Bigint-valued columns are plain strings here (already encoded
// via internal/bigtext by the caller) — meddler maps them verbatim; the
// conversion to/from math/big happens in convert.go.

type blockRow struct {
	Hash             string `meddler:"hash"`
	ChainID          int64  `meddler:"chainId"`
	Number           string `meddler:"number"`
	Timestamp        string `meddler:"timestamp"`
	BaseFeePerGas    *string `meddler:"baseFeePerGas"`
	Difficulty       string `meddler:"difficulty"`
	ExtraData        string `meddler:"extraData"`
	GasLimit         string `meddler:"gasLimit"`
	GasUsed          string `meddler:"gasUsed"`
	LogsBloom        string `meddler:"logsBloom"`
	Miner            string `meddler:"miner"`
	MixHash          string `meddler:"mixHash"`
	Nonce            string `meddler:"nonce"`
	ParentHash       string `meddler:"parentHash"`
	ReceiptsRoot     string `meddler:"receiptsRoot"`
	Sha3Uncles       string `meddler:"sha3Uncles"`
	Size             string `meddler:"size"`
	StateRoot        string `meddler:"stateRoot"`
	TotalDifficulty  string `meddler:"totalDifficulty"`
	TransactionsRoot string `meddler:"transactionsRoot"`
}

type transactionRow struct {
	Hash                 string  `meddler:"hash"`
	ChainID              int64   `meddler:"chainId"`
	BlockHash            string  `meddler:"blockHash"`
	BlockNumber          string  `meddler:"blockNumber"`
	TransactionIndex     int64   `meddler:"transactionIndex"`
	From                 string  `meddler:"from"`
	To                   *string `meddler:"to"`
	Value                string  `meddler:"value"`
	Input                string  `meddler:"input"`
	Gas                  string  `meddler:"gas"`
	GasPrice             *string `meddler:"gasPrice"`
	MaxFeePerGas         *string `meddler:"maxFeePerGas"`
	MaxPriorityFeePerGas *string `meddler:"maxPriorityFeePerGas"`
	Nonce                int64   `meddler:"nonce"`
	R                    string  `meddler:"r"`
	S                    string  `meddler:"s"`
	V                    string  `meddler:"v"`
	Type                 string  `meddler:"type"`
	AccessList           *string `meddler:"accessList"`
}

type logRow struct {
	ID               string  `meddler:"id"`
	ChainID          int64   `meddler:"chainId"`
	Address          string  `meddler:"address"`
	BlockHash        string  `meddler:"blockHash"`
	BlockNumber      string  `meddler:"blockNumber"`
	Data             string  `meddler:"data"`
	LogIndex         int64   `meddler:"logIndex"`
	Topic0           *string `meddler:"topic0"`
	Topic1           *string `meddler:"topic1"`
	Topic2           *string `meddler:"topic2"`
	Topic3           *string `meddler:"topic3"`
	TransactionHash  string  `meddler:"transactionHash"`
	TransactionIndex int64   `meddler:"transactionIndex"`
}

type rpcRequestResultRow struct {
	Request     string `meddler:"request"`
	BlockNumber string `meddler:"blockNumber"`
	ChainID     int64  `meddler:"chainId"`
	Result      string `meddler:"result"`
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strFromPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
