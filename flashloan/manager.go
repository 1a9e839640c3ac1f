package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// Manager runs flash swaps against pools: it borrows through the swap
// callback, hands the funds to a Borrower, and repays the pool
type Manager struct {
	custody dex.Custody
	logger  *zap.Logger
	metrics struct {
		executions       *prometheus.CounterVec
		volume           *prometheus.CounterVec
		executionLatency prometheus.Histogram
		activeLoans      prometheus.Gauge
		successRate      prometheus.Gauge
	}
}

// NewManager creates a manager resolving tokens through custody. Metrics are
// registered on reg when it is not nil.
func NewManager(custody dex.Custody, reg prometheus.Registerer, logger *zap.Logger) *Manager {
	m := &Manager{
		custody: custody,
		logger:  logger,
	}

	factory := promauto.With(reg)
	m.metrics.executions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flashswap_executions_total",
		Help: "Flash swaps by outcome",
	}, []string{"outcome"})

	m.metrics.volume = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flashswap_volume_total",
		Help: "Amount borrowed through successful flash swaps, by token",
	}, []string{"token"})

	m.metrics.executionLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashswap_execution_latency_seconds",
		Help:    "Latency of flash swap execution",
		Buckets: prometheus.DefBuckets,
	})

	m.metrics.activeLoans = factory.NewGauge(prometheus.GaugeOpts{
		Name: "flashswap_active_loans",
		Help: "Number of currently outstanding flash swaps",
	})

	m.metrics.successRate = factory.NewGauge(prometheus.GaugeOpts{
		Name: "flashswap_success_rate",
		Help: "Share of flash swaps that were repaid",
	})

	return m
}

// FlashSwap lends amount of tok from pool to receiver, runs fn, and takes
// RepaymentFor(amount) back from receiver. Nothing changes unless the pool is
// repaid and fn succeeds.
func (m *Manager) FlashSwap(ctx context.Context, pool Pool, receiver, tok common.Address, amount *big.Int, fn Borrower) (*Loan, error) {
	start := time.Now()
	defer func() {
		m.metrics.executionLatency.Observe(time.Since(start).Seconds())
	}()

	m.metrics.activeLoans.Inc()
	defer m.metrics.activeLoans.Dec()

	loan, err := m.flashSwap(ctx, pool, receiver, tok, amount, fn)
	if err != nil {
		m.metrics.executions.WithLabelValues("failed").Inc()
		m.updateSuccessRate()
		m.logger.Warn("Flash swap failed",
			zap.String("pool", pool.Address().Hex()),
			zap.String("token", tok.Hex()),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}

	m.metrics.executions.WithLabelValues("repaid").Inc()
	volume, _ := new(big.Float).SetInt(amount).Float64()
	m.metrics.volume.WithLabelValues(tok.Hex()).Add(volume)
	m.updateSuccessRate()

	m.logger.Debug("Flash swap repaid",
		zap.String("pool", loan.Pool.Hex()),
		zap.String("token", loan.Token.Hex()),
		zap.String("amount", loan.Amount.String()),
		zap.String("fee", loan.Fee().String()))

	return loan, nil
}

func (m *Manager) flashSwap(ctx context.Context, pool Pool, receiver, tok common.Address, amount *big.Int, fn Borrower) (*Loan, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	reserve0, reserve1, _ := pool.Reserves(ctx)
	amount0Out, amount1Out := new(big.Int), new(big.Int)
	switch tok {
	case pool.Token0():
		if amount.Cmp(reserve0) >= 0 {
			return nil, ErrNoLiquidity
		}
		amount0Out.Set(amount)
	case pool.Token1():
		if amount.Cmp(reserve1) >= 0 {
			return nil, ErrNoLiquidity
		}
		amount1Out.Set(amount)
	default:
		return nil, fmt.Errorf("%w: %s", ErrTokenNotInPool, tok.Hex())
	}

	asset, err := m.custody.Token(tok)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	loan := &Loan{
		Pool:      pool.Address(),
		Token:     tok,
		Receiver:  receiver,
		Amount:    new(big.Int).Set(amount),
		Repayment: RepaymentFor(amount),
	}

	callback := func(ctx context.Context, _ common.Address, _, _ *big.Int, _ []byte) error {
		if fn != nil {
			if err := fn(ctx, loan); err != nil {
				return fmt.Errorf("borrower: %w", err)
			}
		}
		if err := asset.Transfer(ctx, receiver, loan.Pool, loan.Repayment); err != nil {
			return fmt.Errorf("failed to repay: %w", err)
		}
		return nil
	}

	if err := pool.Swap(ctx, receiver, amount0Out, amount1Out, receiver, flashData, callback); err != nil {
		return nil, err
	}
	return loan, nil
}

// updateSuccessRate recomputes the success rate from the execution counters
func (m *Manager) updateSuccessRate() {
	repaid := counterValue(m.metrics.executions.WithLabelValues("repaid"))
	failed := counterValue(m.metrics.executions.WithLabelValues("failed"))

	if total := repaid + failed; total > 0 {
		m.metrics.successRate.Set(repaid / total)
	}
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil || metric.Counter == nil {
		return 0
	}
	return metric.Counter.GetValue()
}
