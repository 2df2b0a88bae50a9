package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joacorob/evmsync/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database_path: ./data/sync.db
chains:
  - chain_id: 1
    rpc_url: https://example.invalid
filters:
  - event_source_name: transfers
    chain_id: 1
    address: ["0xaaa"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Retry.Attempts)
	require.Equal(t, 1500, cfg.Retry.DelayMS)
	require.Equal(t, uint64(1_000), cfg.ChunkSize)
	require.GreaterOrEqual(t, cfg.Workers, 1)
}

func TestLoadRejectsMissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
chains:
  - chain_id: 1
    rpc_url: https://example.invalid
filters:
  - event_source_name: transfers
    chain_id: 1
`)
	_, err := config.Load(path)
	require.ErrorContains(t, err, "database_path")
}

func TestLoadRejectsFilterWithUnknownChain(t *testing.T) {
	path := writeConfig(t, `
database_path: ./data/sync.db
chains:
  - chain_id: 1
    rpc_url: https://example.invalid
filters:
  - event_source_name: transfers
    chain_id: 2
`)
	_, err := config.Load(path)
	require.ErrorContains(t, err, "unknown chain_id")
}

func TestLoadRequiresAtLeastOneFilterOrFactory(t *testing.T) {
	path := writeConfig(t, `
database_path: ./data/sync.db
chains:
  - chain_id: 1
    rpc_url: https://example.invalid
`)
	_, err := config.Load(path)
	require.ErrorContains(t, err, "at least one filter or factory")
}

func TestLoadRejectsFactoryMissingChildAddressLocation(t *testing.T) {
	path := writeConfig(t, `
database_path: ./data/sync.db
chains:
  - chain_id: 1
    rpc_url: https://example.invalid
factories:
  - event_source_name: pools
    chain_id: 1
    event_selector: "0xabc"
`)
	_, err := config.Load(path)
	require.ErrorContains(t, err, "child_address_location")
}
