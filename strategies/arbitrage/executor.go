package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/dex/uniswap"
	"github.com/michaelpento.lv/miniswap/flashloan"
	"github.com/michaelpento.lv/miniswap/types"
	"go.uber.org/zap"
)

// ErrNoLender is returned when no pair outside the route can lend the input
var ErrNoLender = errors.New("no pool can lend the route input")

// Execution is the outcome of an executed opportunity
type Execution struct {
	Lender  common.Address
	Loan    *flashloan.Loan
	Amounts []*big.Int
	// Profit is what the receiver kept after repaying the loan
	Profit *big.Int
}

// Executor runs opportunities with capital borrowed by flash swap from a
// pair the route does not touch
type Executor struct {
	router  *uniswap.Router
	custody dex.Custody
	flash   *flashloan.Manager
	logger  *zap.Logger
}

func NewExecutor(router *uniswap.Router, custody dex.Custody, flash *flashloan.Manager, logger *zap.Logger) *Executor {
	return &Executor{
		router:  router,
		custody: custody,
		flash:   flash,
		logger:  logger,
	}
}

// Execute borrows the opportunity's input, trades it around the cycle for
// receiver, and repays the lender from the proceeds. It fails without effect
// if the cycle no longer covers the loan.
func (e *Executor) Execute(ctx context.Context, opp *types.ArbitrageOpportunity, receiver common.Address, deadline time.Time) (*Execution, error) {
	route := opp.Route
	base := route.TokenIn

	lender, err := e.lender(route, opp.RequiredCapital)
	if err != nil {
		return nil, err
	}
	asset, err := e.custody.Token(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base token: %w", err)
	}

	before := asset.BalanceOf(ctx, receiver)
	exec := &Execution{Lender: lender.Address()}

	exec.Loan, err = e.flash.FlashSwap(ctx, lender, receiver, base, opp.RequiredCapital, func(ctx context.Context, loan *flashloan.Loan) error {
		if err := asset.Approve(ctx, receiver, e.router.Address(), loan.Amount); err != nil {
			return err
		}
		amounts, err := e.router.SwapExactTokensForTokens(ctx, receiver, loan.Amount, loan.Repayment, route.Path, receiver, deadline)
		if err != nil {
			return err
		}
		exec.Amounts = amounts
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute arbitrage: %w", err)
	}

	exec.Profit = new(big.Int).Sub(asset.BalanceOf(ctx, receiver), before)

	e.logger.Info("Arbitrage executed",
		zap.String("lender", exec.Lender.Hex()),
		zap.Int("hops", route.Hops()),
		zap.String("amount_in", exec.Loan.Amount.String()),
		zap.String("profit", exec.Profit.String()))

	return exec, nil
}

// lender picks the pair outside the route holding the most of the base token,
// which must exceed amount
func (e *Executor) lender(route *types.Route, amount *big.Int) (*uniswap.Pair, error) {
	onRoute := make(map[common.Address]bool, len(route.Pairs))
	for _, p := range route.Pairs {
		onRoute[p] = true
	}

	var (
		best        *uniswap.Pair
		bestReserve *big.Int
	)
	for _, pair := range e.router.Factory().Pairs() {
		if onRoute[pair.Address()] {
			continue
		}

		reserve0, reserve1, _ := pair.GetReserves()
		var reserve *big.Int
		switch route.TokenIn {
		case pair.Token0():
			reserve = reserve0
		case pair.Token1():
			reserve = reserve1
		default:
			continue
		}

		if reserve.Cmp(amount) <= 0 {
			continue
		}
		if best == nil || reserve.Cmp(bestReserve) > 0 {
			best, bestReserve = pair, reserve
		}
	}

	if best == nil {
		return nil, ErrNoLender
	}
	return best, nil
}
