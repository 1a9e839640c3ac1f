package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Factory   FactoryConfig   `json:"factory" yaml:"factory"`
	Router    RouterConfig    `json:"router" yaml:"router"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Indexer   IndexerConfig   `json:"indexer" yaml:"indexer"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Arbitrage ArbitrageConfig `json:"arbitrage" yaml:"arbitrage"`

	// Internal components
	Logger *zap.Logger `json:"-" yaml:"-"`
}

type LogConfig struct {
	Debug       bool     `json:"debug" yaml:"debug"`
	OutputPaths []string `json:"output_paths" yaml:"output_paths"`
}

type FactoryConfig struct {
	Address     string `json:"address" yaml:"address"`
	FeeToSetter string `json:"fee_to_setter" yaml:"fee_to_setter"`
	FeeTo       string `json:"fee_to" yaml:"fee_to"`
	// ProtocolFeeDenominator d gives the fee recipient 1/(d+1) of the growth in sqrt(k)
	ProtocolFeeDenominator uint64 `json:"protocol_fee_denominator" yaml:"protocol_fee_denominator"`
}

type RouterConfig struct {
	Address string `json:"address" yaml:"address"`
	WETH    string `json:"weth" yaml:"weth"`
}

type MetricsConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Listen         string   `json:"listen" yaml:"listen"`
	Namespace      string   `json:"namespace" yaml:"namespace"`
	ReportInterval Duration `json:"report_interval" yaml:"report_interval"`
	LogMetrics     bool     `json:"log_metrics" yaml:"log_metrics"`
}

type IndexerConfig struct {
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

type StoreConfig struct {
	// Path of the event journal; empty keeps it in memory
	Path string `json:"path" yaml:"path"`
}

type SimulatorConfig struct {
	OpsPerSecond float64 `json:"ops_per_second" yaml:"ops_per_second"`
	Burst        int     `json:"burst" yaml:"burst"`
}

type ArbitrageConfig struct {
	MaxHops       int    `json:"max_hops" yaml:"max_hops"`
	MinProfit     Amount `json:"min_profit" yaml:"min_profit"`
	ExecutionCost Amount `json:"execution_cost" yaml:"execution_cost"`
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.Factory.ProtocolFeeDenominator == 0 {
		errors = append(errors, "factory.protocol_fee_denominator must be positive")
	}
	for name, addr := range map[string]string{
		"factory.address":       c.Factory.Address,
		"factory.fee_to_setter": c.Factory.FeeToSetter,
		"router.address":        c.Router.Address,
		"router.weth":           c.Router.WETH,
	} {
		if !common.IsHexAddress(addr) {
			errors = append(errors, fmt.Sprintf("%s must be a hex address, got %q", name, addr))
		}
	}
	if c.Factory.FeeTo != "" && !common.IsHexAddress(c.Factory.FeeTo) {
		errors = append(errors, fmt.Sprintf("factory.fee_to must be empty or a hex address, got %q", c.Factory.FeeTo))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errors = append(errors, "metrics.listen must be specified when metrics are enabled")
	}
	if c.Metrics.LogMetrics && c.Metrics.ReportInterval.Duration <= 0 {
		errors = append(errors, "metrics.report_interval must be positive when log_metrics is set")
	}

	if c.Indexer.CacheSize <= 0 {
		errors = append(errors, "indexer.cache_size must be positive")
	}

	if err := c.Simulator.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("simulator config error: %v", err))
	}
	if err := c.Arbitrage.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("arbitrage config error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *SimulatorConfig) Validate() error {
	if s.OpsPerSecond <= 0 {
		return fmt.Errorf("ops per second must be positive")
	}
	if s.Burst <= 0 {
		return fmt.Errorf("burst must be positive")
	}
	return nil
}

func (a *ArbitrageConfig) Validate() error {
	if a.MaxHops < 2 {
		return fmt.Errorf("max hops must be at least 2")
	}
	if a.MinProfit.Sign() < 0 || a.ExecutionCost.Sign() < 0 {
		return fmt.Errorf("amounts must not be negative")
	}
	return nil
}

// FactoryAddress returns the configured factory identity
func (c *Config) FactoryAddress() common.Address {
	return common.HexToAddress(c.Factory.Address)
}

// FeeToSetter returns the configured fee-setting authority
func (c *Config) FeeToSetter() common.Address {
	return common.HexToAddress(c.Factory.FeeToSetter)
}

// FeeTo returns the protocol fee recipient, zero when the fee is off
func (c *Config) FeeTo() common.Address {
	if c.Factory.FeeTo == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Factory.FeeTo)
}

// RouterAddress returns the configured router identity
func (c *Config) RouterAddress() common.Address {
	return common.HexToAddress(c.Router.Address)
}

// WETHAddress returns the wrapped native token identifier
func (c *Config) WETHAddress() common.Address {
	return common.HexToAddress(c.Router.WETH)
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".miniswap.yaml"), nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads cfgFile over the defaults, applies environment overrides,
// and validates the result. The format follows the file extension.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		var err error
		if cfgFile, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(cfgFile) {
		err = yaml.UnmarshalStrict(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		var err error
		if cfgFile, err = defaultConfigPath(); err != nil {
			return err
		}
	}

	var (
		data []byte
		err  error
	)
	if isYAML(cfgFile) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(cfgFile, data, 0o644)
}

func DefaultConfig() *Config {
	return &Config{
		Logger: zap.NewNop(),
		Log: LogConfig{
			Debug:       false,
			OutputPaths: []string{"stdout"},
		},
		Factory: FactoryConfig{
			Address:                "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
			FeeToSetter:            "0x000000000000000000000000000000000000fEe5",
			ProtocolFeeDenominator: 5, // 1/6 of fee growth
		},
		Router: RouterConfig{
			Address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
			WETH:    "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			Listen:         ":9100",
			Namespace:      "miniswap",
			ReportInterval: Duration{10 * time.Second},
			LogMetrics:     false,
		},
		Indexer: IndexerConfig{
			CacheSize: 4096,
		},
		Store: StoreConfig{
			Path: "",
		},
		Simulator: SimulatorConfig{
			OpsPerSecond: 1000,
			Burst:        100,
		},
		Arbitrage: ArbitrageConfig{
			MaxHops:       3,
			MinProfit:     MustAmount("1000000000000000"), // 0.001 of the base token
			ExecutionCost: MustAmount("0"),
		},
	}
}
