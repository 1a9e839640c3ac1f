package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex"
)

// ExchangeName identifies the router as a dex.Exchange
const ExchangeName = "MiniSwapV2"

var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var _ dex.Exchange = (*Router)(nil)

// GetName returns the exchange name
func (r *Router) GetName() string {
	return ExchangeName
}

// GetPrice returns the price of token0 in units of token1, scaled by 1e18
func (r *Router) GetPrice(ctx context.Context, token0, token1 common.Address) (*big.Int, error) {
	reserves, err := r.GetReserves(ctx, token0, token1)
	if err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}

	if reserves.Reserve0.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	price := new(big.Int).Mul(reserves.Reserve1, priceScale)
	return price.Div(price, reserves.Reserve0), nil
}

// GetReserves returns the reserves of a token pair, ordered as requested
func (r *Router) GetReserves(ctx context.Context, token0, token1 common.Address) (*dex.Reserves, error) {
	pair, err := r.factory.pairFor(ctx, token0, token1)
	if err != nil {
		return nil, err
	}

	reserve0, reserve1, ts := pair.Reserves(ctx)
	if token0 != pair.Token0() {
		reserve0, reserve1 = reserve1, reserve0
	}

	return &dex.Reserves{
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: ts,
	}, nil
}

// EstimateReturn estimates the return amount for a swap along path
func (r *Router) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	amounts, err := r.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// GetAmountIn calculates the input required at path[0] for amountOut at the end of path
func (r *Router) GetAmountIn(ctx context.Context, amountOut *big.Int, path []common.Address) (*big.Int, error) {
	amounts, err := r.GetAmountsIn(ctx, amountOut, path)
	if err != nil {
		return nil, err
	}
	return amounts[0], nil
}
