// Package config loads the sync indexer's YAML configuration: the
// database path, the chains to dial, the log filters and factories to
// track coverage for, and retry tuning. Follows the teacher's
// config.Load(path) shape: read, unmarshal, validate, default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	yaml "gopkg.in/yaml.v2"
)

// ChainConfig describes one chain to dial and index.
type ChainConfig struct {
	ChainID    uint64 `yaml:"chain_id"`
	RPCURL     string `yaml:"rpc_url"`
	StartBlock uint64 `yaml:"start_block"`
}

// FilterConfig binds a caller-chosen event source name to a log filter
// criteria (spec §4.3).
type FilterConfig struct {
	EventSourceName string   `yaml:"event_source_name"`
	ChainID         uint64   `yaml:"chain_id"`
	Address         []string `yaml:"address"`
	Topics          [][]string `yaml:"topics"`
	FromBlock       *uint64  `yaml:"from_block"`
	ToBlock         *uint64  `yaml:"to_block"`
}

// FactoryConfig is the factory analogue of FilterConfig (spec §4.6).
type FactoryConfig struct {
	EventSourceName      string     `yaml:"event_source_name"`
	ChainID              uint64     `yaml:"chain_id"`
	Address              []string   `yaml:"address"`
	EventSelector        string     `yaml:"event_selector"`
	ChildAddressLocation string     `yaml:"child_address_location"`
	Topics               [][]string `yaml:"topics"`
}

// RetryConfig tunes the chain client's backoff (spec's ambient stack).
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// Config is the top-level shape loaded from a sync indexer config file
// (SPEC_FULL.md §6.1).
type Config struct {
	DatabasePath string          `yaml:"database_path"`
	Chains       []ChainConfig   `yaml:"chains"`
	Filters      []FilterConfig  `yaml:"filters"`
	Factories    []FactoryConfig `yaml:"factories"`
	Retry        RetryConfig     `yaml:"retry"`
	// ChunkSize defines how many blocks are requested per getLogs call
	// when backfilling. Sensible default applied if unset.
	ChunkSize uint64 `yaml:"chunk_size"`
	// Workers defines how many chains are indexed concurrently. Defaults
	// to the number of available CPUs.
	Workers int `yaml:"workers"`
}

// Load reads and unmarshals the configuration file at path, validating
// required fields and applying defaults (mirrors the teacher's
// config.Load: read, unmarshal, validate, default, in that order).
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database_path is required")
	}
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("at least one chain must be defined")
	}
	seenChains := make(map[uint64]bool, len(cfg.Chains))
	for i, c := range cfg.Chains {
		if c.RPCURL == "" {
			return nil, fmt.Errorf("chain at index %d is missing rpc_url", i)
		}
		if seenChains[c.ChainID] {
			return nil, fmt.Errorf("duplicate chain_id %d", c.ChainID)
		}
		seenChains[c.ChainID] = true
	}

	if len(cfg.Filters) == 0 && len(cfg.Factories) == 0 {
		return nil, fmt.Errorf("at least one filter or factory must be defined")
	}
	for i, f := range cfg.Filters {
		if f.EventSourceName == "" {
			return nil, fmt.Errorf("filter at index %d is missing event_source_name", i)
		}
		if !seenChains[f.ChainID] {
			return nil, fmt.Errorf("filter %q references unknown chain_id %d", f.EventSourceName, f.ChainID)
		}
	}
	for i, f := range cfg.Factories {
		if f.EventSourceName == "" {
			return nil, fmt.Errorf("factory at index %d is missing event_source_name", i)
		}
		if !seenChains[f.ChainID] {
			return nil, fmt.Errorf("factory %q references unknown chain_id %d", f.EventSourceName, f.ChainID)
		}
		if f.EventSelector == "" {
			return nil, fmt.Errorf("factory %q is missing event_selector", f.EventSourceName)
		}
		if f.ChildAddressLocation == "" {
			return nil, fmt.Errorf("factory %q is missing child_address_location", f.EventSourceName)
		}
	}

	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.DelayMS == 0 {
		cfg.Retry.DelayMS = 1500
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1_000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}

	return &cfg, nil
}
