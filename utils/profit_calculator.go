package utils

import (
	"errors"
	"math/big"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/types"
)

var bps = big.NewInt(10000)

// ProfitCalculator prices arbitrage routes against the configured thresholds
type ProfitCalculator struct {
	config *config.ArbitrageConfig
}

// NewProfitCalculator creates a new profit calculator
func NewProfitCalculator(cfg *config.Config) *ProfitCalculator {
	return &ProfitCalculator{
		config: &cfg.Arbitrage,
	}
}

// CalculateExpectedProfit returns what a route returns over its input, less
// the configured execution cost. The result is negative for losing routes.
func (p *ProfitCalculator) CalculateExpectedProfit(route *types.Route) (*big.Int, error) {
	if p.config == nil {
		return nil, errors.New("profit calculator not initialized with config")
	}
	if route == nil || route.AmountIn == nil || route.AmountOut == nil {
		return nil, errors.New("invalid parameters")
	}
	if route.TokenIn != route.TokenOut {
		return nil, errors.New("route does not return to its input token")
	}

	profit := new(big.Int).Sub(route.AmountOut, route.AmountIn)
	profit.Sub(profit, p.config.ExecutionCost.Big())

	return profit, nil
}

// IsProfitable reports whether profit clears the configured minimum
func (p *ProfitCalculator) IsProfitable(profit *big.Int) bool {
	return profit != nil && profit.Sign() > 0 && profit.Cmp(p.config.MinProfit.Big()) >= 0
}

// CalculatePriceImpact returns the share of the input reserve a trade of
// amountIn consumes, in basis points
func (p *ProfitCalculator) CalculatePriceImpact(reserves *dex.Reserves, amountIn *big.Int) (uint64, error) {
	if reserves == nil || amountIn == nil {
		return 0, errors.New("invalid parameters")
	}
	if reserves.Reserve0.Sign() == 0 {
		return 0, errors.New("empty reserves")
	}

	impact := new(big.Int).Mul(amountIn, bps)
	impact.Div(impact, new(big.Int).Add(reserves.Reserve0, amountIn))

	return impact.Uint64(), nil
}

// Opportunity assembles the opportunity for a priced route. worstImpact is the
// largest per-hop price impact in basis points.
func (p *ProfitCalculator) Opportunity(route *types.Route, worstImpact uint64) (*types.ArbitrageOpportunity, error) {
	profit, err := p.CalculateExpectedProfit(route)
	if err != nil {
		return nil, err
	}

	return &types.ArbitrageOpportunity{
		Route:           route,
		ExpectedProfit:  profit,
		RequiredCapital: new(big.Int).Set(route.AmountIn),
		PriceImpact:     worstImpact,
	}, nil
}
