package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvFeeTo         = "MINISWAP_FEE_TO"
	EnvFeeToSetter   = "MINISWAP_FEE_TO_SETTER"
	EnvStorePath     = "MINISWAP_STORE_PATH"
	EnvMetricsListen = "MINISWAP_METRICS_LISTEN"
	EnvDebug         = "MINISWAP_DEBUG"
)

// LoadEnv loads environment variables from the given files, or .env when
// none are named. Variables already set are not overridden.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides cfg with the MINISWAP_* variables that are set
func ApplyEnv(cfg *Config) error {
	cfg.Factory.FeeTo = GetEnvWithDefault(EnvFeeTo, cfg.Factory.FeeTo)
	cfg.Factory.FeeToSetter = GetEnvWithDefault(EnvFeeToSetter, cfg.Factory.FeeToSetter)
	cfg.Store.Path = GetEnvWithDefault(EnvStorePath, cfg.Store.Path)

	if listen := os.Getenv(EnvMetricsListen); listen != "" {
		cfg.Metrics.Listen = listen
		cfg.Metrics.Enabled = true
	}

	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Log.Debug = debug
	}

	return nil
}
