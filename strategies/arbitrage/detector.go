package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/types"
	"github.com/michaelpento.lv/miniswap/utils"
	"go.uber.org/zap"
)

// ErrNoProfitableInput is returned when no input size makes a cycle pay
var ErrNoProfitableInput = errors.New("no profitable input amount")

// Market is an exchange whose routes can be enumerated and priced
type Market interface {
	dex.Exchange
	Paths(tokenIn, tokenOut common.Address, maxHops int) [][]common.Address
	Route(ctx context.Context, amountIn *big.Int, path []common.Address) (*types.Route, error)
}

// Detector looks for cycles through a market that return more of the base
// token than they take
type Detector struct {
	market  Market
	calc    *utils.ProfitCalculator
	maxHops int
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewDetector creates a new arbitrage detector
func NewDetector(market Market, cfg *config.Config, logger *zap.Logger) *Detector {
	return &Detector{
		market:  market,
		calc:    utils.NewProfitCalculator(cfg),
		maxHops: cfg.Arbitrage.MaxHops,
		logger:  logger,
	}
}

// FindArbitrage prices every cycle from base back to base with amountIn and
// returns the profitable ones, most profitable first
func (d *Detector) FindArbitrage(ctx context.Context, base common.Address, amountIn *big.Int) ([]*types.ArbitrageOpportunity, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("input amount must be positive")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var opportunities []*types.ArbitrageOpportunity
	for _, path := range d.market.Paths(base, base, d.maxHops) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		opp, err := d.price(ctx, amountIn, path)
		if err != nil {
			d.logger.Debug("Skipping cycle",
				zap.Int("hops", len(path)-1),
				zap.Error(err))
			continue
		}
		if !d.calc.IsProfitable(opp.ExpectedProfit) {
			continue
		}
		opportunities = append(opportunities, opp)
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if c := a.ExpectedProfit.Cmp(b.ExpectedProfit); c != 0 {
			return c > 0
		}
		return a.Route.Hops() < b.Route.Hops()
	})

	d.logger.Info("Arbitrage scan complete",
		zap.String("base", base.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.Int("opportunities", len(opportunities)))

	return opportunities, nil
}

// OptimizeInput searches [1, limit] for the input that maximises the cycle's
// return over its input and prices the cycle at that input
func (d *Detector) OptimizeInput(ctx context.Context, path []common.Address, limit *big.Int) (*types.ArbitrageOpportunity, error) {
	if len(path) < 3 || path[0] != path[len(path)-1] {
		return nil, fmt.Errorf("path is not a cycle")
	}

	gain := func(x *big.Int) *big.Int {
		out, err := d.market.EstimateReturn(ctx, x, path)
		if err != nil {
			return nil
		}
		return out.Sub(out, x)
	}
	less := func(a, b *big.Int) bool {
		if a == nil {
			return b != nil
		}
		return b != nil && a.Cmp(b) < 0
	}

	// the return of a constant-product cycle is concave in its input
	lo, hi := big.NewInt(1), new(big.Int).Set(limit)
	three := big.NewInt(3)
	for new(big.Int).Sub(hi, lo).Cmp(three) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		third := new(big.Int).Div(new(big.Int).Sub(hi, lo), three)
		m1 := new(big.Int).Add(lo, third)
		m2 := new(big.Int).Sub(hi, third)
		if less(gain(m1), gain(m2)) {
			lo = m1.Add(m1, big.NewInt(1))
		} else {
			hi = m2
		}
	}

	var best, bestGain *big.Int
	for x := new(big.Int).Set(lo); x.Cmp(hi) <= 0; x.Add(x, big.NewInt(1)) {
		if g := gain(x); less(bestGain, g) {
			best, bestGain = new(big.Int).Set(x), g
		}
	}
	if best == nil || bestGain.Sign() <= 0 {
		return nil, ErrNoProfitableInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.price(ctx, best, path)
}

// price routes amountIn along path and records the worst per-hop price impact
func (d *Detector) price(ctx context.Context, amountIn *big.Int, path []common.Address) (*types.ArbitrageOpportunity, error) {
	route, err := d.market.Route(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}

	var worst uint64
	for i := 0; i < len(path)-1; i++ {
		reserves, err := d.market.GetReserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		impact, err := d.calc.CalculatePriceImpact(reserves, route.Amounts[i])
		if err != nil {
			return nil, err
		}
		if impact > worst {
			worst = impact
		}
	}

	return d.calc.Opportunity(route, worst)
}
