package metrics

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/michaelpento.lv/miniswap/dex/uniswap"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

type MetricsConfig struct {
	Namespace      string
	ReportInterval time.Duration
	LogMetrics     bool
}

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// AMMMetrics tracks ledger activity from the event bus
type AMMMetrics struct {
	registry *prometheus.Registry

	Events       prometheus.Counter
	PairsCreated prometheus.Counter
	Swaps        *prometheus.CounterVec
	Mints        *prometheus.CounterVec
	Burns        *prometheus.CounterVec
	Reserves     *prometheus.GaugeVec
	RouterErrors *prometheus.CounterVec
	OpLatency    *prometheus.HistogramVec
}

func NewAMMMetrics(reg *prometheus.Registry, namespace string) *AMMMetrics {
	factory := promauto.With(reg)

	return &AMMMetrics{
		registry: reg,
		Events: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of committed ledger events",
		}),
		PairsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_created_total",
			Help:      "Total number of pairs registered",
		}),
		Swaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Total number of swaps per pair",
		}, []string{"pair"}),
		Mints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mints_total",
			Help:      "Total number of liquidity additions per pair",
		}, []string{"pair"}),
		Burns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "burns_total",
			Help:      "Total number of liquidity removals per pair",
		}, []string{"pair"}),
		Reserves: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reserve",
			Help:      "Last synced reserve per pair side",
		}, []string{"pair", "side"}),
		RouterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_errors_total",
			Help:      "Total number of failed router operations",
		}, []string{"op", "kind"}),
		OpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Router operation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
	}
}

// Handle is an events.Handler
func (m *AMMMetrics) Handle(r events.Record) {
	m.Events.Inc()

	pair := r.Event.Source().Hex()
	switch ev := r.Event.(type) {
	case *events.PairCreated:
		m.PairsCreated.Inc()
	case *events.Swap:
		m.Swaps.WithLabelValues(pair).Inc()
	case *events.Mint:
		m.Mints.WithLabelValues(pair).Inc()
	case *events.Burn:
		m.Burns.WithLabelValues(pair).Inc()
	case *events.Sync:
		m.Reserves.WithLabelValues(pair, "0").Set(toFloat(ev.Reserve0))
		m.Reserves.WithLabelValues(pair, "1").Set(toFloat(ev.Reserve1))
	}
}

// Observe records the outcome of a router operation started at start
func (m *AMMMetrics) Observe(op string, start time.Time, err error) {
	m.OpLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.RouterErrors.WithLabelValues(op, ErrorKind(err)).Inc()
	}
}

// errorKinds are the failures that get their own label, in match order
var errorKinds = []error{
	uniswap.ErrLocked,
	uniswap.ErrExpired,
	uniswap.ErrK,
	uniswap.ErrOverflow,
	uniswap.ErrInvalidTo,
	uniswap.ErrInvalidPath,
	uniswap.ErrPairNotFound,
	uniswap.ErrPairExists,
	uniswap.ErrIdenticalTokens,
	uniswap.ErrZeroToken,
	uniswap.ErrInsufficientLiquidity,
	uniswap.ErrInsufficientLiquidityMinted,
	uniswap.ErrInsufficientLiquidityBurned,
	uniswap.ErrInsufficientInputAmount,
	uniswap.ErrInsufficientOutputAmount,
	uniswap.ErrInsufficientAmount,
	uniswap.ErrInsufficientAAmount,
	uniswap.ErrInsufficientBAmount,
	uniswap.ErrExcessiveInputAmount,
	uniswap.ErrNoWrappedNative,
	token.ErrInsufficientBalance,
	token.ErrInsufficientAllowance,
	token.ErrUnknownToken,
	token.ErrNegativeAmount,
	context.DeadlineExceeded,
	context.Canceled,
}

// ErrorKind labels err by the known failure it wraps, or "other"
func ErrorKind(err error) string {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "other"
}

// Snapshot gathers every sample of the registry keyed as name{label="value",...}
func (m *AMMMetrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := sampleKey(mf.GetName(), metric.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

// Run logs a snapshot of the ledger metrics every cfg.ReportInterval until ctx is done
func (m *AMMMetrics) Run(ctx context.Context, cfg *MetricsConfig, logger *zap.Logger) {
	if !cfg.LogMetrics || cfg.ReportInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := m.Snapshot()
			if err != nil {
				logger.Warn("Failed to snapshot metrics", zap.Error(err))
				continue
			}
			fields := make([]zap.Field, 0, len(snap))
			for key, v := range snap {
				if cfg.Namespace != "" && !strings.HasPrefix(key, cfg.Namespace+"_") {
					continue
				}
				fields = append(fields, zap.Float64(key, v))
			}
			logger.Info("Ledger metrics", fields...)
		}
	}
}

func sampleKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}

	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

func toFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
