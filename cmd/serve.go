package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/indexer"
	"github.com/michaelpento.lv/miniswap/utils/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve <scenario.yaml>",
	Short: "Run a scenario, then serve its metrics and events over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, cfg.Logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		if _, err := rt.run(ctx, args[0]); err != nil {
			return err
		}

		go rt.indexer.StartPruning(ctx)
		go rt.metrics.Run(ctx, &metrics.MetricsConfig{
			Namespace:      cfg.Metrics.Namespace,
			ReportInterval: cfg.Metrics.ReportInterval.Duration,
			LogMetrics:     cfg.Metrics.LogMetrics,
		}, cfg.Logger)

		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           rt.handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			cfg.Logger.Info("Serving", zap.String("listen", srv.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
			cfg.Logger.Info("Shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// handler serves /metrics, /pairs (last synced reserves) and
// /events?pair=0x...&n=10 (most recent indexed events of a pair)
func (rt *runtime) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/pairs", func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]indexer.Reserves)
		for _, pair := range rt.indexer.Pairs() {
			if reserves, ok := rt.indexer.Reserves(pair); ok {
				out[pair.Hex()] = reserves
			}
		}
		writeJSON(w, out)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		pair := r.URL.Query().Get("pair")
		if !common.IsHexAddress(pair) {
			http.Error(w, "pair must be a hex address", http.StatusBadRequest)
			return
		}
		n := 10
		if s := r.URL.Query().Get("n"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = v
		}
		writeJSON(w, rt.indexer.Recent(common.HexToAddress(pair), n))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
