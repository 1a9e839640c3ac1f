package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateConfig())

	assert.Equal(t, uint64(5), cfg.Factory.ProtocolFeeDenominator)
	assert.Equal(t, common.Address{}, cfg.FeeTo())
	assert.Equal(t, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), cfg.WETHAddress())
}

func TestValidateConfigAggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Factory.ProtocolFeeDenominator = 0
	cfg.Router.WETH = "weth"
	cfg.Indexer.CacheSize = 0
	cfg.Arbitrage.MaxHops = 1

	err := cfg.ValidateConfig()
	require.Error(t, err)
	for _, msg := range []string{
		"configuration validation failed",
		"protocol_fee_denominator",
		"router.weth",
		"indexer.cache_size",
		"max hops",
	} {
		assert.Contains(t, err.Error(), msg)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miniswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  debug: true
factory:
  fee_to: "0x000000000000000000000000000000000000fEE0"
  protocol_fee_denominator: 3
metrics:
  enabled: true
  report_interval: 1m30s
arbitrage:
  max_hops: 4
  min_profit: "1.5e18"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, uint64(3), cfg.Factory.ProtocolFeeDenominator)
	assert.Equal(t, common.HexToAddress("0xfee0"), cfg.FeeTo())
	assert.Equal(t, 90*time.Second, cfg.Metrics.ReportInterval.Duration)
	assert.Equal(t, 4, cfg.Arbitrage.MaxHops)
	assert.Equal(t, "1500000000000000000", cfg.Arbitrage.MinProfit.String())

	// untouched sections keep their defaults
	assert.Equal(t, 4096, cfg.Indexer.CacheSize)
	assert.Equal(t, DefaultConfig().Router, cfg.Router)
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miniswap.yml")
	require.NoError(t, os.WriteFile(path, []byte("factory:\n  fee: 3\n"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to decode config file")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = "/var/lib/miniswap"
	cfg.Arbitrage.ExecutionCost = MustAmount("25e15")

	for _, name := range []string{"miniswap.json", "miniswap.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveConfig(cfg, path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Store, loaded.Store)
			assert.Equal(t, cfg.Metrics, loaded.Metrics)
			assert.Equal(t, "25000000000000000", loaded.Arbitrage.ExecutionCost.String())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvFeeTo, "0x000000000000000000000000000000000000fEE0")
	t.Setenv(EnvMetricsListen, "127.0.0.1:9200")
	t.Setenv(EnvDebug, "true")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, common.HexToAddress("0xfee0"), cfg.FeeTo())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9200", cfg.Metrics.Listen)
	assert.True(t, cfg.Log.Debug)

	t.Setenv(EnvDebug, "maybe")
	assert.ErrorContains(t, ApplyEnv(DefaultConfig()), EnvDebug)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvStorePath+"=/tmp/miniswap-events\n"), 0o644))
	t.Setenv(EnvStorePath, "")
	os.Unsetenv(EnvStorePath)

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "/tmp/miniswap-events", GetEnvWithDefault(EnvStorePath, ""))
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1.5e3")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), a.Int64())

	_, err = ParseAmount("1.5")
	assert.ErrorContains(t, err, "not integral")

	_, err = ParseAmount("lots")
	assert.Error(t, err)
}
