// Package chainclient adapts go-ethereum's ethclient into the narrow
// interface the indexer needs, with bounded retry/backoff in place of the
// teacher's hand-rolled sleep loops (spec §4.11, §9 "chain client
// interface").
package chainclient

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/joacorob/evmsync/internal/config"
)

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Client is the chain-reading surface the indexer depends on. Modeled on
// the teacher's rpc.Client but narrowed to an interface so tests can fake
// it without dialing a real node.
type Client interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	GetHeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// EthRPC is the production Client: an ethclient.Client with retry/backoff
// around every call.
type EthRPC struct {
	inner   *ethclient.Client
	retry   config.RetryConfig
	chainID uint64
	log     *logrus.Entry
}

// Dial establishes the RPC connection, retrying with bounded constant
// backoff (generalizing the teacher's attempts/delay_ms sleep loop).
func Dial(ctx context.Context, chainID uint64, url string, retry config.RetryConfig) (*EthRPC, error) {
	if retry.Attempts == 0 {
		retry.Attempts = 3
	}
	if retry.DelayMS == 0 {
		retry.DelayMS = 1500
	}

	log := logrus.WithFields(logrus.Fields{"component": "chainclient", "chainId": chainID})

	var cli *ethclient.Client
	err := runWithRetry(ctx, retry, log, "dial", func() error {
		var dialErr error
		cli, dialErr = ethclient.DialContext(ctx, url)
		return dialErr
	})
	if err != nil {
		return nil, err
	}

	return &EthRPC{inner: cli, retry: retry, chainID: chainID, log: log}, nil
}

// runWithRetry runs op up to retry.Attempts times, logging each failure at
// Warn and sleeping retry.DelayMS between attempts (capped by context
// cancellation). The final attempt's error is returned unwrapped so
// callers can still fmt.Errorf-wrap it with call-specific context.
func runWithRetry(ctx context.Context, retry config.RetryConfig, log *logrus.Entry, op string, fn func() error) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(
			newBoundedBackoff(retry.DelayMS),
			uint64(retry.Attempts-1),
		),
		ctx,
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err != nil {
			log.Warnf("%s failed (attempt %d/%d): %v", op, attempt, retry.Attempts, err)
		}
		return err
	}, bo)
}

func newBoundedBackoff(delayMS int) backoff.BackOff {
	b := backoff.NewConstantBackOff(msToDuration(delayMS))
	return b
}

func (c *EthRPC) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var num uint64
	err := runWithRetry(ctx, c.retry, c.log, "LatestBlockNumber", func() error {
		var err error
		num, err = c.inner.BlockNumber(ctx)
		return err
	})
	return num, err
}

func (c *EthRPC) GetBlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	var block *types.Block
	err := runWithRetry(ctx, c.retry, c.log, "GetBlockByNumber", func() error {
		var err error
		block, err = c.inner.BlockByNumber(ctx, number)
		return err
	})
	return block, err
}

func (c *EthRPC) GetHeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := runWithRetry(ctx, c.retry, c.log, "GetHeaderByNumber", func() error {
		var err error
		header, err = c.inner.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

func (c *EthRPC) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := runWithRetry(ctx, c.retry, c.log, "GetLogs", func() error {
		var err error
		logs, err = c.inner.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// Close releases the underlying RPC connection.
func (c *EthRPC) Close() {
	c.inner.Close()
}
