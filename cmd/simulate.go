package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var outputFormat string

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Run a scenario and print its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, cfg.Logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if err := write(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if failed := report.Failed(); failed > 0 {
			return fmt.Errorf("%d of %d steps failed", failed, len(report.Steps))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "yaml", "output format (yaml or json)")
}

// write encodes v to w in the selected output format
func write(w io.Writer, v interface{}) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
