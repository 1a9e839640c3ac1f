package uniswap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/txn"
)

// Router computes amounts across pairs and executes liquidity and swap
// operations with slippage and deadline protection. It holds no balances
// outside the native-asset entry points.
type Router struct {
	address common.Address
	factory *Factory
	weth    dex.WrappedNative
	clock   Clock
}

// NewRouter creates a router over factory. weth may be nil, in which case
// the native-asset entry points fail.
func NewRouter(address common.Address, factory *Factory, weth dex.WrappedNative) *Router {
	return &Router{
		address: address,
		factory: factory,
		weth:    weth,
		clock:   factory.clock,
	}
}

// Address returns the router's identity, the spender of pulled tokens
func (r *Router) Address() common.Address {
	return r.address
}

// Factory returns the registry the router trades on
func (r *Router) Factory() *Factory {
	return r.factory
}

// WETH returns the wrapped native token, or nil
func (r *Router) WETH() dex.WrappedNative {
	return r.weth
}

// GetAmountsOut returns the amounts along path for an exact input
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	return getAmountsOut(ctx, r.reserves, amountIn, path)
}

// GetAmountsIn returns the amounts along path for an exact output
func (r *Router) GetAmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	return getAmountsIn(ctx, r.reserves, amountOut, path)
}

// AddLiquidity deposits up to the desired amounts at the pool ratio and mints
// shares to to. The pair is created if it does not exist yet.
func (r *Router) AddLiquidity(
	ctx context.Context,
	sender, tokenA, tokenB common.Address,
	amountADesired, amountBDesired, amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline time.Time,
) (amountA, amountB, liquidity *big.Int, err error) {
	if err := r.ensure(deadline); err != nil {
		return nil, nil, nil, err
	}

	err = txn.Run(ctx, func(ctx context.Context) error {
		var pair *Pair
		pair, amountA, amountB, err = r.addLiquidity(ctx, tokenA, tokenB, amountADesired, amountBDesired, amountAMin, amountBMin)
		if err != nil {
			return err
		}

		if err := pair.token(tokenA).TransferFrom(ctx, r.address, sender, pair.address, amountA); err != nil {
			return err
		}
		if err := pair.token(tokenB).TransferFrom(ctx, r.address, sender, pair.address, amountB); err != nil {
			return err
		}

		liquidity, err = pair.Mint(ctx, r.address, to)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

// RemoveLiquidity burns liquidity shares of sender and pays the underlying
// tokens to to
func (r *Router) RemoveLiquidity(
	ctx context.Context,
	sender, tokenA, tokenB common.Address,
	liquidity, amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline time.Time,
) (amountA, amountB *big.Int, err error) {
	if err := r.ensure(deadline); err != nil {
		return nil, nil, err
	}

	err = txn.Run(ctx, func(ctx context.Context) error {
		amountA, amountB, err = r.removeLiquidity(ctx, sender, tokenA, tokenB, liquidity, amountAMin, amountBMin, to)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// SwapExactTokensForTokens sells exactly amountIn of path[0] for at least
// amountOutMin of the last token
func (r *Router) SwapExactTokensForTokens(
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
		if amounts[len(amounts)-1].Cmp(amountOutMin) < 0 {
			return ErrInsufficientOutputAmount
		}

		if err := pairs[0].token(path[0]).TransferFrom(ctx, r.address, sender, pairs[0].address, amounts[0]); err != nil {
			return err
		}
		return r.swap(ctx, pairs, amounts, path, to)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactTokens buys exactly amountOut of the last token for at
// most amountInMax of path[0]
func (r *Router) SwapTokensForExactTokens(
	ctx context.Context,
	sender common.Address,
	amountOut, amountInMax *big.Int,
	path []common.Address,
	to common.Address,
	deadline time.Time,
) ([]*big.Int, error) {
	if err := r.ensure(deadline); err != nil {
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
		if amounts[0].Cmp(amountInMax) > 0 {
			return ErrExcessiveInputAmount
		}

		if err := pairs[0].token(path[0]).TransferFrom(ctx, r.address, sender, pairs[0].address, amounts[0]); err != nil {
			return err
		}
		return r.swap(ctx, pairs, amounts, path, to)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactTokensForTokensSupportingFeeOnTransferTokens sells amountIn of
// path[0], measuring each hop's input from the pair's balance instead of the
// nominal amount, and checks the output actually received by to
func (r *Router) SwapExactTokensForTokensSupportingFeeOnTransferTokens(
	ctx context.Context,
	sender common.Address,
	amountIn, amountOutMin *big.Int,
	path []common.Address,
	to common.Address,
	deadline time.Time,
) error {
	if err := r.ensure(deadline); err != nil {
		return err
	}

	return txn.Run(ctx, func(ctx context.Context) error {
		pairs, err := r.lockPath(ctx, path)
		if err != nil {
			return err
		}

		if err := pairs[0].token(path[0]).TransferFrom(ctx, r.address, sender, pairs[0].address, amountIn); err != nil {
			return err
		}

		last := len(path) - 1
		out := pairs[last-1].token(path[last])
		before := out.BalanceOf(ctx, to)

		if err := r.swapSupportingFee(ctx, pairs, path, to); err != nil {
			return err
		}

		received := new(big.Int).Sub(out.BalanceOf(ctx, to), before)
		if received.Cmp(amountOutMin) < 0 {
			return ErrInsufficientOutputAmount
		}
		return nil
	})
}

// Quote returns the amount of B worth amountA at the given reserves
func (r *Router) Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	return Quote(amountA, reserveA, reserveB)
}

// ensure fails once the router's clock has passed deadline
func (r *Router) ensure(deadline time.Time) error {
	if r.clock.Now().After(deadline) {
		return ErrExpired
	}
	return nil
}

// reserves returns the reserves of the pair for (tokenA, tokenB) ordered as requested
func (r *Router) reserves(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	pair, err := r.factory.pairFor(ctx, tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	reserveA, reserveB := pair.reservesFor(ctx, tokenA)
	return reserveA, reserveB, nil
}

// lockPath resolves the pairs along path and locks them in address order for
// the rest of the transaction. Amounts computed afterwards stay valid.
// A chain that already holds other locks fails with ErrLocked on contention.
func (r *Router) lockPath(ctx context.Context, path []common.Address) ([]*Pair, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}

	pairs := make([]*Pair, len(path)-1)
	for i := range pairs {
		pair, err := r.factory.pairFor(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		pairs[i] = pair
	}

	ordered := make([]*Pair, len(pairs))
	copy(ordered, pairs)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].address.Bytes(), ordered[j].address.Bytes()) < 0
	})

	locks := make([]txn.Resource, len(ordered))
	for i, pair := range ordered {
		locks[i] = pair.lock
	}
	if err := txn.Current(ctx).AcquireAll(ctx, locks...); err != nil {
		return nil, lockErr(err)
	}
	return pairs, nil
}

// swap executes the hops of a computed route. Intermediate outputs go
// straight to the next pair.
func (r *Router) swap(ctx context.Context, pairs []*Pair, amounts []*big.Int, path []common.Address, to common.Address) error {
	for i, pair := range pairs {
		amount0Out, amount1Out := outputs(pair, path[i], amounts[i+1])

		recipient := to
		if i < len(pairs)-1 {
			recipient = pairs[i+1].address
		}

		if err := pair.Swap(ctx, r.address, amount0Out, amount1Out, recipient, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) swapSupportingFee(ctx context.Context, pairs []*Pair, path []common.Address, to common.Address) error {
	for i, pair := range pairs {
		reserveIn, reserveOut := pair.reservesFor(ctx, path[i])
		input := new(big.Int).Sub(pair.token(path[i]).BalanceOf(ctx, pair.address), reserveIn)

		output, err := GetAmountOut(input, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		amount0Out, amount1Out := outputs(pair, path[i], output)

		recipient := to
		if i < len(pairs)-1 {
			recipient = pairs[i+1].address
		}

		if err := pair.Swap(ctx, r.address, amount0Out, amount1Out, recipient, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// addLiquidity picks the deposit amounts and locks the pair they go to
func (r *Router) addLiquidity(
	ctx context.Context,
	tokenA, tokenB common.Address,
	amountADesired, amountBDesired, amountAMin, amountBMin *big.Int,
) (*Pair, *big.Int, *big.Int, error) {
	pair, err := r.factory.pairFor(ctx, tokenA, tokenB)
	if errors.Is(err, ErrPairNotFound) {
		pair, err = r.factory.CreatePair(ctx, tokenA, tokenB)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	if err := txn.Current(ctx).Acquire(ctx, pair.lock); err != nil {
		return nil, nil, nil, lockErr(err)
	}

	reserveA, reserveB := pair.reservesFor(ctx, tokenA)
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		return pair, new(big.Int).Set(amountADesired), new(big.Int).Set(amountBDesired), nil
	}

	amountBOptimal, err := Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, nil, err
	}
	if amountBOptimal.Cmp(amountBDesired) <= 0 {
		if amountBOptimal.Cmp(amountBMin) < 0 {
			return nil, nil, nil, ErrInsufficientBAmount
		}
		return pair, new(big.Int).Set(amountADesired), amountBOptimal, nil
	}

	amountAOptimal, err := Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, nil, err
	}
	if amountAOptimal.Cmp(amountADesired) > 0 || amountAOptimal.Cmp(amountAMin) < 0 {
		return nil, nil, nil, ErrInsufficientAAmount
	}
	return pair, amountAOptimal, new(big.Int).Set(amountBDesired), nil
}

func (r *Router) removeLiquidity(
	ctx context.Context,
	sender, tokenA, tokenB common.Address,
	liquidity, amountAMin, amountBMin *big.Int,
	to common.Address,
) (*big.Int, *big.Int, error) {
	pair, err := r.factory.pairFor(ctx, tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}

	if err := pair.shares.TransferFrom(ctx, r.address, sender, pair.address, liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := pair.Burn(ctx, r.address, to)
	if err != nil {
		return nil, nil, err
	}

	amountA, amountB := amount0, amount1
	if tokenA != pair.Token0() {
		amountA, amountB = amount1, amount0
	}
	if amountA.Cmp(amountAMin) < 0 {
		return nil, nil, ErrInsufficientAAmount
	}
	if amountB.Cmp(amountBMin) < 0 {
		return nil, nil, ErrInsufficientBAmount
	}
	return amountA, amountB, nil
}

// outputs orders a hop's output for pair.Swap given the input token
func outputs(pair *Pair, input common.Address, amountOut *big.Int) (amount0Out, amount1Out *big.Int) {
	if input == pair.Token0() {
		return new(big.Int), amountOut
	}
	return amountOut, new(big.Int)
}
