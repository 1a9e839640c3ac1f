package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	base  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	other = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestCalculateExpectedProfit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Arbitrage.ExecutionCost = config.MustAmount("10")
	cfg.Arbitrage.MinProfit = config.MustAmount("50")
	calc := NewProfitCalculator(cfg)

	tests := []struct {
		name       string
		in, out    int64
		profit     int64
		profitable bool
	}{
		{"clears minimum", 1000, 1100, 90, true},
		{"exactly minimum", 1000, 1060, 50, true},
		{"below minimum", 1000, 1050, 40, false},
		{"cost eats profit", 1000, 1005, -5, false},
		{"loss", 1000, 900, -110, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := &types.Route{
				TokenIn:   base,
				TokenOut:  base,
				AmountIn:  big.NewInt(tt.in),
				AmountOut: big.NewInt(tt.out),
			}
			profit, err := calc.CalculateExpectedProfit(route)
			require.NoError(t, err)
			assert.Equal(t, big.NewInt(tt.profit), profit)
			assert.Equal(t, tt.profitable, calc.IsProfitable(profit))
		})
	}
}

func TestCalculateExpectedProfitRejectsOpenRoutes(t *testing.T) {
	calc := NewProfitCalculator(config.DefaultConfig())

	_, err := calc.CalculateExpectedProfit(&types.Route{
		TokenIn:   base,
		TokenOut:  other,
		AmountIn:  big.NewInt(1),
		AmountOut: big.NewInt(2),
	})
	assert.Error(t, err)

	_, err = calc.CalculateExpectedProfit(nil)
	assert.Error(t, err)
}

func TestCalculatePriceImpact(t *testing.T) {
	calc := NewProfitCalculator(config.DefaultConfig())
	reserves := &dex.Reserves{Reserve0: big.NewInt(9000), Reserve1: big.NewInt(5000)}

	impact, err := calc.CalculatePriceImpact(reserves, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), impact)

	_, err = calc.CalculatePriceImpact(&dex.Reserves{Reserve0: new(big.Int), Reserve1: big.NewInt(1)}, big.NewInt(1))
	assert.Error(t, err)
}

func TestOpportunity(t *testing.T) {
	calc := NewProfitCalculator(config.DefaultConfig())
	route := &types.Route{
		TokenIn:   base,
		TokenOut:  base,
		AmountIn:  big.NewInt(100),
		AmountOut: big.NewInt(130),
		Path:      []common.Address{base, other, base},
	}

	opp, err := calc.Opportunity(route, 42)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30), opp.ExpectedProfit)
	assert.Equal(t, big.NewInt(100), opp.RequiredCapital)
	assert.Equal(t, uint64(42), opp.PriceImpact)
	assert.Same(t, route, opp.Route)
}
