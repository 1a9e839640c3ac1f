package metrics

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex/uniswap"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var pair = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func publishAll(bus *events.Bus) {
	bus.Publish(&events.PairCreated{Pair: pair, AllPairsLength: 1})
	bus.Publish(&events.Sync{Pair: pair, Reserve0: big.NewInt(1000), Reserve1: big.NewInt(2500)})
	bus.Publish(&events.Mint{Pair: pair, Amount0: big.NewInt(1000), Amount1: big.NewInt(2500)})
	bus.Publish(&events.Swap{Pair: pair})
	bus.Publish(&events.Swap{Pair: pair})
	bus.Publish(&events.Burn{Pair: pair})
}

func TestAMMMetricsHandle(t *testing.T) {
	m := NewAMMMetrics(prometheus.NewRegistry(), "test")
	bus := events.NewBus()
	bus.Subscribe(m.Handle)
	publishAll(bus)

	label := pair.Hex()
	assert.Equal(t, float64(6), testutil.ToFloat64(m.Events))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PairsCreated))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Swaps.WithLabelValues(label)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Mints.WithLabelValues(label)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Burns.WithLabelValues(label)))
	assert.Equal(t, float64(1000), testutil.ToFloat64(m.Reserves.WithLabelValues(label, "0")))
	assert.Equal(t, float64(2500), testutil.ToFloat64(m.Reserves.WithLabelValues(label, "1")))
}

func TestObserve(t *testing.T) {
	m := NewAMMMetrics(prometheus.NewRegistry(), "test")

	m.Observe("swap", time.Now(), nil)
	m.Observe("swap", time.Now(), fmt.Errorf("hop 1: %w", uniswap.ErrK))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RouterErrors.WithLabelValues("swap", "MiniSwap: K")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OpLatency))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"wrapped sentinel", fmt.Errorf("a: %w", fmt.Errorf("b: %w", uniswap.ErrK)), "MiniSwap: K"},
		{"token", fmt.Errorf("pull: %w", token.ErrInsufficientAllowance), "token: insufficient allowance"},
		{"contention", fmt.Errorf("%w: %w", uniswap.ErrLocked, errors.New("busy")), "MiniSwap: LOCKED"},
		{"unknown", fmt.Errorf("unknown op %q", "bogus-1234"), "other"},
		{"plain", errors.New("something else"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}

	m := NewAMMMetrics(prometheus.NewRegistry(), "test")
	for i := 0; i < 5; i++ {
		m.Observe("swap", time.Now(), fmt.Errorf("unknown op %q", fmt.Sprint(i)))
	}
	assert.Equal(t, 1, testutil.CollectAndCount(m.RouterErrors))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.RouterErrors.WithLabelValues("swap", "other")))
}

func TestSnapshot(t *testing.T) {
	m := NewAMMMetrics(NewRegistry(), "test")
	bus := events.NewBus()
	bus.Subscribe(m.Handle)
	publishAll(bus)
	m.Observe("swap", time.Now(), nil)

	snap, err := m.Snapshot()
	require.NoError(t, err)

	label := pair.Hex()
	assert.Equal(t, float64(2), snap[fmt.Sprintf("test_swaps_total{pair=%q}", label)])
	assert.Equal(t, float64(2500), snap[fmt.Sprintf("test_reserve{pair=%q,side=\"1\"}", label)])
	assert.Equal(t, float64(1), snap["test_op_duration_seconds{op=\"swap\"}_count"])
	assert.Contains(t, snap, "go_goroutines")
}

func TestRunLogsSnapshots(t *testing.T) {
	m := NewAMMMetrics(NewRegistry(), "test")
	m.PairsCreated.Inc()

	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, &MetricsConfig{Namespace: "test", ReportInterval: time.Millisecond, LogMetrics: true}, zap.New(core))
		close(done)
	}()

	assert.Eventually(t, func() bool { return logs.FilterMessage("Ledger metrics").Len() > 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	entry := logs.FilterMessage("Ledger metrics").All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, float64(1), fields["test_pairs_created_total"])
	assert.NotContains(t, fields, "go_goroutines")
}

func TestRunDisabled(t *testing.T) {
	m := NewAMMMetrics(prometheus.NewRegistry(), "test")
	// returns at once when reporting is off
	m.Run(context.Background(), &MetricsConfig{ReportInterval: time.Second}, zap.NewNop())
}
