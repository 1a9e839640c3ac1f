package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	debug   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "miniswap",
	Short: "An in-process constant-product exchange ledger",
	Long: `MiniSwap runs a constant-product AMM ledger (factory, pairs, router)
in-process. Scenarios seed tokens and pools and replay liquidity and swap
operations; the resulting events feed metrics, an indexer, and a journal.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(*cobra.Command, []string) {
		utils.CleanupLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.miniswap.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file (default is ./.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// initConfig loads the dotenv file and configuration, then the logger. A
// missing default file falls back to the built-in defaults.
func initConfig(*cobra.Command, []string) error {
	if err := config.LoadEnv(envFiles()...); err != nil && (envFile != "" || !errors.Is(err, fs.ErrNotExist)) {
		return fmt.Errorf("failed to load env: %w", err)
	}

	loaded, err := config.LoadConfig(cfgFile)
	switch {
	case err == nil:
		cfg = loaded
	case cfgFile == "" && errors.Is(err, fs.ErrNotExist):
		cfg = config.DefaultConfig()
		if err := config.ApplyEnv(cfg); err != nil {
			return err
		}
		if err := cfg.ValidateConfig(); err != nil {
			return err
		}
	default:
		return err
	}

	paths := cfg.Log.OutputPaths
	if len(paths) == 0 {
		// stdout carries command output
		paths = []string{"stderr"}
	}
	cfg.Logger = utils.InitLogger(debug || cfg.Log.Debug, paths...)
	cfg.Logger.Debug("Configuration loaded", zap.String("config", cfgFile))

	return nil
}

func envFiles() []string {
	if envFile == "" {
		return nil
	}
	return []string{envFile}
}
