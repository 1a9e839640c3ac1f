package uniswap

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/txn"
)

// AddLiquidityETH pairs token with native value. value is the native amount
// offered; only the amount actually deposited leaves sender.
func (r *Router) AddLiquidityETH(
	ctx context.Context,
	sender, token common.Address,
	amountTokenDesired, amountTokenMin, amountETHMin, value *big.Int,
	to common.Address,
	deadline time.Time,
) (amountToken, amountETH, liquidity *big.Int, err error) {
	if err := r.ensure(deadline); err != nil {
		return nil, nil, nil, err
	}
	if r.weth == nil {
		return nil, nil, nil, ErrNoWrappedNative
	}

	err = txn.Run(ctx, func(ctx context.Context) error {
		var pair *Pair
		pair, amountToken, amountETH, err = r.addLiquidity(ctx, token, r.weth.Address(), amountTokenDesired, value, amountTokenMin, amountETHMin)
		if err != nil {
			return err
		}

		if err := pair.token(token).TransferFrom(ctx, r.address, sender, pair.address, amountToken); err != nil {
			return err
		}
		if err := r.wrapTo(ctx, sender, pair.address, amountETH); err != nil {
			return err
		}

		liquidity, err = pair.Mint(ctx, r.address, to)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return amountToken, amountETH, liquidity, nil
}

// RemoveLiquidityETH burns shares of a token/WETH pair and pays the token and
// unwrapped native value to to
func (r *Router) RemoveLiquidityETH(
	ctx context.Context,
	sender, token common.Address,
	liquidity, amountTokenMin, amountETHMin *big.Int,
	to common.Address,
	deadline time.Time,
) (amountToken, amountETH *big.Int, err error) {
	if err := r.ensure(deadline); err != nil {
		return nil, nil, err
	}
	if r.weth == nil {
		return nil, nil, ErrNoWrappedNative
	}

	err = txn.Run(ctx, func(ctx context.Context) error {
		amountToken, amountETH, err = r.removeLiquidity(ctx, sender, token, r.weth.Address(), liquidity, amountTokenMin, amountETHMin, r.address)
		if err != nil {
			return err
		}

		pair, err := r.factory.pairFor(ctx, token, r.weth.Address())
		if err != nil {
			return err
		}
		if err := pair.token(token).Transfer(ctx, r.address, to, amountToken); err != nil {
			return err
		}
		return r.unwrapTo(ctx, to, amountETH)
	})
	if err != nil {
		return nil, nil, err
	}
	return amountToken, amountETH, nil
}

// SwapExactETHForTokens sells exactly value of native for at least amountOutMin
func (r *Router) SwapExactETHForTokens(
	ctx context.Context,
	sender common.Address,
	amountOutMin, value *big.Int,
	path []common.Address,
	to common.Address,
	deadline time.Time,
) ([]*big.Int, error) {
	if err := r.ensure(deadline); err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	if err := r.requireWETH(path[0]); err != nil {
		return nil, err
	}

	var amounts []*big.Int
	err := txn.Run(ctx, func(ctx context.Context) error {
		pairs, err := r.lockPath(ctx, path)
		if err != nil {
			return err
		}

		amounts, err = r.GetAmountsOut(ctx, value, path)
		if err != nil {
			return err
		}
		if amounts[len(amounts)-1].Cmp(amountOutMin) < 0 {
			return ErrInsufficientOutputAmount
		}

		if err := r.wrapTo(ctx, sender, pairs[0].address, amounts[0]); err != nil {
			return err
		}
		return r.swap(ctx, pairs, amounts, path, to)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactTokensForETH sells exactly amountIn of path[0] for at least
// amountOutMin of native value
func (r *Router) SwapExactTokensForETH(
	ctx context.Context,
	sender common.Address,
	amountIn, amountOutMin *big.Int,
	path []common.Address,
	to common.Address,
	deadline time.Time,
) ([]*big.Int, error) {
	if err := r.ensure(deadline); err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	if err := r.requireWETH(path[len(path)-1]); err != nil {
		return nil, err
	}

	var amounts []*big.Int
	err := txn.Run(ctx, func(ctx context.Context) error {
		pairs, err := r.lockPath(ctx, path)
		if err != nil {
			return err
		}

		amounts, err = r.GetAmountsOut(ctx, amountIn, path)
		if err != nil {
			return err
		}
		out := amounts[len(amounts)-1]
		if out.Cmp(amountOutMin) < 0 {
			return ErrInsufficientOutputAmount
		}

		if err := pairs[0].token(path[0]).TransferFrom(ctx, r.address, sender, pairs[0].address, amounts[0]); err != nil {
			return err
		}
		if err := r.swap(ctx, pairs, amounts, path, r.address); err != nil {
			return err
		}
		return r.unwrapTo(ctx, to, out)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapETHForExactTokens buys exactly amountOut of the last token with at most
// value of native; the unspent remainder never leaves sender
func (r *Router) SwapETHForExactTokens(
	ctx context.Context,
	sender common.Address,
	amountOut, value *big.Int,
	path []common.Address,
	to common.Address,
	deadline time.Time,
) ([]*big.Int, error) {
	if err := r.ensure(deadline); err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	if err := r.requireWETH(path[0]); err != nil {
		return nil, err
	}

	var amounts []*big.Int
	err := txn.Run(ctx, func(ctx context.Context) error {
		pairs, err := r.lockPath(ctx, path)
		if err != nil {
			return err
		}

		amounts, err = r.GetAmountsIn(ctx, amountOut, path)
		if err != nil {
			return err
		}
		if amounts[0].Cmp(value) > 0 {
			return ErrExcessiveInputAmount
		}

		if err := r.wrapTo(ctx, sender, pairs[0].address, amounts[0]); err != nil {
			return err
		}
		return r.swap(ctx, pairs, amounts, path, to)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

func (r *Router) requireWETH(token common.Address) error {
	if r.weth == nil {
		return ErrNoWrappedNative
	}
	if token != r.weth.Address() {
		return ErrInvalidPath
	}
	return nil
}

// wrapTo wraps amount of from's native value and delivers the WETH to to
func (r *Router) wrapTo(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := r.weth.Deposit(ctx, from, amount); err != nil {
		return err
	}
	return r.weth.Transfer(ctx, from, to, amount)
}

// unwrapTo unwraps amount of the router's WETH and sends the native value to to
func (r *Router) unwrapTo(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := r.weth.Withdraw(ctx, r.address, amount); err != nil {
		return err
	}
	return r.weth.TransferNative(ctx, r.address, to, amount)
}
