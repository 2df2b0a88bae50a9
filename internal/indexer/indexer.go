// Package indexer orchestrates backfilling the sync store: for every
// configured log filter and factory, it finds the gaps between the target
// range and the store's already-confirmed coverage (spec §4.5), fetches
// the missing ranges from the chain, and writes them back via
// InsertLogFilterInterval / InsertFactoryLogFilterInterval (spec §4.4).
//
// Adapted from the teacher's Indexer, which ran a fixed worker pool over
// block-number chunks and pushed decoded events straight to a Sink; here
// the chunking drives store writes instead, and per-chain concurrency
// replaces the teacher's flat per-range worker pool since coverage state
// is chain-scoped.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/joacorob/evmsync/internal/chainclient"
	"github.com/joacorob/evmsync/internal/config"
	"github.com/joacorob/evmsync/internal/interval"
	"github.com/joacorob/evmsync/internal/model"
	"github.com/joacorob/evmsync/internal/parser"
	"github.com/joacorob/evmsync/internal/sink"
	"github.com/joacorob/evmsync/internal/store"
)

// Store is the subset of *store.Store the indexer depends on; narrowed to
// an interface so tests can substitute a fake.
type Store interface {
	GetLogFilterIntervals(ctx context.Context, chainID uint64, criteria model.LogFilterCriteria) ([]interval.Interval, error)
	InsertLogFilterInterval(ctx context.Context, chainID uint64, criteria model.LogFilterCriteria, block model.Block, txs []model.Transaction, logs []model.Log, iv interval.Interval) error
	InsertRealtimeInterval(ctx context.Context, chainID uint64, logFilters []model.LogFilterCriteria, factories []model.FactoryCriteria, iv interval.Interval) error
	GetFactoryLogFilterIntervals(ctx context.Context, chainID uint64, criteria model.FactoryCriteria) ([]interval.Interval, error)
	InsertFactoryLogFilterInterval(ctx context.Context, chainID uint64, criteria model.FactoryCriteria, block model.Block, txs []model.Transaction, logs []model.Log, iv interval.Interval) error
}

var _ Store = (*store.Store)(nil)

// Indexer backfills one or more chains' log filters and factories into a
// Store, optionally forwarding matched events to a Sink for export.
type Indexer struct {
	cfg       *config.Config
	clients   map[uint64]chainclient.Client
	store     Store
	sink      sink.Sink
	chunkSize uint64
}

// New constructs an Indexer. clients must contain one entry per chain_id
// in cfg.Chains.
func New(cfg *config.Config, clients map[uint64]chainclient.Client, st Store, sk sink.Sink) *Indexer {
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = 1_000
	}
	return &Indexer{cfg: cfg, clients: clients, store: st, sink: sk, chunkSize: chunkSize}
}

// Run backfills every configured chain concurrently (bounded by
// cfg.Workers) and returns the first error encountered, if any.
func (idx *Indexer) Run(ctx context.Context) error {
	sem := make(chan struct{}, idx.cfg.Workers)
	errCh := make(chan error, len(idx.cfg.Chains))

	var wg sync.WaitGroup
	for _, chainCfg := range idx.cfg.Chains {
		chainCfg := chainCfg
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := idx.runChain(ctx, chainCfg); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (idx *Indexer) runChain(ctx context.Context, chainCfg config.ChainConfig) error {
	client, ok := idx.clients[chainCfg.ChainID]
	if !ok {
		return fmt.Errorf("no chain client configured for chain_id %d", chainCfg.ChainID)
	}

	latest, err := client.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	logrus.Infof("backfilling chain %d | start=%d latest=%d chunkSize=%d", chainCfg.ChainID, chainCfg.StartBlock, latest, idx.chunkSize)

	for _, f := range idx.cfg.Filters {
		if f.ChainID != chainCfg.ChainID {
			continue
		}
		if err := idx.backfillFilter(ctx, client, chainCfg, f, latest); err != nil {
			return err
		}
	}
	for _, fc := range idx.cfg.Factories {
		if fc.ChainID != chainCfg.ChainID {
			continue
		}
		if err := idx.backfillFactory(ctx, client, chainCfg, fc, latest); err != nil {
			return err
		}
	}
	return nil
}

// ToCriteria converts a config.FilterConfig into a model.LogFilterCriteria,
// exported so callers (e.g. cmd/indexer) can build events.Request values
// with the same conversion the backfiller uses.
func ToCriteria(f config.FilterConfig) model.LogFilterCriteria {
	return toCriteria(f)
}

// ToFactoryCriteria is the factory analogue of ToCriteria.
func ToFactoryCriteria(f config.FactoryConfig) model.FactoryCriteria {
	return toFactoryCriteria(f)
}

func toCriteria(f config.FilterConfig) model.LogFilterCriteria {
	c := model.LogFilterCriteria{
		Address:   model.AddressSet(f.Address),
		FromBlock: f.FromBlock,
		ToBlock:   f.ToBlock,
	}
	for i := 0; i < 4 && i < len(f.Topics); i++ {
		c.Topics[i] = model.TopicSet(f.Topics[i])
	}
	return c
}

func toFactoryCriteria(f config.FactoryConfig) model.FactoryCriteria {
	c := model.FactoryCriteria{
		ChainID:              f.ChainID,
		Address:              model.AddressSet(f.Address),
		EventSelector:        f.EventSelector,
		ChildAddressLocation: f.ChildAddressLocation,
	}
	for i := 0; i < 4 && i < len(f.Topics); i++ {
		c.Topics[i] = model.TopicSet(f.Topics[i])
	}
	return c
}

// backfillFilter finds the gaps between [chainCfg.StartBlock, latest] and
// the filter's already-confirmed coverage, then fetches and stores each
// gap in chunkSize-sized chunks.
func (idx *Indexer) backfillFilter(ctx context.Context, client chainclient.Client, chainCfg config.ChainConfig, f config.FilterConfig, latest uint64) error {
	criteria := toCriteria(f)
	covered, err := idx.store.GetLogFilterIntervals(ctx, chainCfg.ChainID, criteria)
	if err != nil {
		return err
	}

	addrs := toAddresses(f.Address)
	topics := toTopics(f.Topics)

	for _, gap := range missingRanges(chainCfg.StartBlock, latest, covered) {
		if err := idx.scanAndStoreGap(ctx, client, chainCfg.ChainID, criteria, nil, addrs, topics, gap, f.EventSourceName); err != nil {
			return err
		}
	}
	return nil
}

// backfillFactory is the factory analogue: it records emitter-contract
// child-address-announcement logs so GetFactoryChildAddresses (spec §4.6)
// can later derive the set of child addresses to track.
func (idx *Indexer) backfillFactory(ctx context.Context, client chainclient.Client, chainCfg config.ChainConfig, fc config.FactoryConfig, latest uint64) error {
	criteria := toFactoryCriteria(fc)
	covered, err := idx.store.GetFactoryLogFilterIntervals(ctx, chainCfg.ChainID, criteria)
	if err != nil {
		return err
	}

	addrs := toAddresses(fc.Address)
	topics := [][]common.Hash{{common.HexToHash(fc.EventSelector)}}

	for _, gap := range missingRanges(chainCfg.StartBlock, latest, covered) {
		if err := idx.scanAndStoreGap(ctx, client, chainCfg.ChainID, model.LogFilterCriteria{}, &criteria, addrs, topics, gap, fc.EventSourceName); err != nil {
			return err
		}
	}
	return nil
}

// scanAndStoreGap fetches logs in [gap.Start, gap.End], stores the blocks
// that actually contain a match (one InsertLogFilterInterval /
// InsertFactoryLogFilterInterval call per matched block, interval sized
// to that block), then marks each chunk confirmed with one
// InsertRealtimeInterval call once its blocks are stored — safe because
// union absorbs the narrower per-block intervals already recorded.
func (idx *Indexer) scanAndStoreGap(
	ctx context.Context,
	client chainclient.Client,
	chainID uint64,
	filterCriteria model.LogFilterCriteria,
	factoryCriteria *model.FactoryCriteria,
	addrs []common.Address,
	topics [][]common.Hash,
	gap interval.Interval,
	eventSourceName string,
) error {
	for from := gap.Start; from <= gap.End; {
		to := from + idx.chunkSize - 1
		if to > gap.End {
			to = gap.End
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: addrs,
			Topics:    topics,
		}
		rawLogs, err := client.GetLogs(ctx, query)
		if err != nil {
			return err
		}

		byBlock := make(map[uint64][]model.Log)
		for i := range rawLogs {
			l := parser.ConvertLog(chainID, &rawLogs[i])
			byBlock[l.BlockNumber] = append(byBlock[l.BlockNumber], l)
		}

		for blockNumber, logs := range byBlock {
			block, txs, err := idx.fetchBlockAndTxs(ctx, client, chainID, blockNumber, logs)
			if err != nil {
				return err
			}
			iv := interval.Interval{Start: blockNumber, End: blockNumber}

			if factoryCriteria != nil {
				if err := idx.store.InsertFactoryLogFilterInterval(ctx, chainID, *factoryCriteria, block, txs, logs, iv); err != nil {
					return err
				}
			} else {
				if err := idx.store.InsertLogFilterInterval(ctx, chainID, filterCriteria, block, txs, logs, iv); err != nil {
					return err
				}
			}

			if idx.sink != nil {
				for _, l := range logs {
					evt := model.Event{EventSourceName: eventSourceName, ChainID: chainID, Log: l, Block: block}
					for _, t := range txs {
						if t.Hash == l.TransactionHash {
							evt.Transaction = t
							break
						}
					}
					if err := idx.sink.Write(evt); err != nil {
						return err
					}
				}
			}
		}

		chunkIv := interval.Interval{Start: from, End: to}
		var lfs []model.LogFilterCriteria
		var facs []model.FactoryCriteria
		if factoryCriteria != nil {
			facs = []model.FactoryCriteria{*factoryCriteria}
		} else {
			lfs = []model.LogFilterCriteria{filterCriteria}
		}
		if err := idx.store.InsertRealtimeInterval(ctx, chainID, lfs, facs, chunkIv); err != nil {
			return err
		}

		if to == gap.End {
			break
		}
		from = to + 1
	}
	return nil
}

// fetchBlockAndTxs fetches the full block once per distinct block number
// and converts only the transactions referenced by logs, avoiding sender
// recovery for the rest of the block's transactions.
func (idx *Indexer) fetchBlockAndTxs(ctx context.Context, client chainclient.Client, chainID, blockNumber uint64, logs []model.Log) (model.Block, []model.Transaction, error) {
	rawBlock, err := client.GetBlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return model.Block{}, nil, err
	}
	block := parser.ConvertBlock(chainID, rawBlock)

	wanted := make(map[string]bool, len(logs))
	for _, l := range logs {
		wanted[l.TransactionHash] = true
	}

	var txs []model.Transaction
	for i, tx := range rawBlock.Transactions() {
		if !wanted[tx.Hash().Hex()] {
			continue
		}
		mt, err := parser.ConvertTransaction(chainID, block.Hash, blockNumber, i, tx)
		if err != nil {
			logrus.Warnf("failed to convert transaction %s: %v", tx.Hash().Hex(), err)
			continue
		}
		txs = append(txs, mt)
	}
	return block, txs, nil
}

func toAddresses(addrs []string) []common.Address {
	out := make([]common.Address, len(addrs))
	for i, a := range addrs {
		out[i] = common.HexToAddress(a)
	}
	return out
}

func toTopics(topics [][]string) [][]common.Hash {
	if len(topics) == 0 {
		return nil
	}
	out := make([][]common.Hash, len(topics))
	for i, slot := range topics {
		hs := make([]common.Hash, len(slot))
		for j, t := range slot {
			hs[j] = common.HexToHash(t)
		}
		out[i] = hs
	}
	return out
}

// missingRanges returns the gaps in [from, to] not covered by the
// (already disjoint, ascending) covered intervals.
func missingRanges(from, to uint64, covered []interval.Interval) []interval.Interval {
	var gaps []interval.Interval
	cursor := from
	for _, c := range covered {
		if cursor > to {
			break
		}
		if c.End < cursor {
			continue
		}
		if c.Start > cursor {
			gapEnd := c.Start - 1
			if gapEnd > to {
				gapEnd = to
			}
			gaps = append(gaps, interval.Interval{Start: cursor, End: gapEnd})
		}
		if c.End >= cursor {
			if c.End == ^uint64(0) {
				cursor = c.End
			} else {
				cursor = c.End + 1
			}
		}
	}
	if cursor <= to {
		gaps = append(gaps, interval.Interval{Start: cursor, End: to})
	}
	return gaps
}
