package uniswap

import (
	"bytes"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MinimumLiquidity is locked forever at the first mint of every pair
const MinimumLiquidity = 1000

// DeadAddress receives the locked minimum liquidity
var DeadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// PairInitCodeHash is the fixed salt component of every derived pair handle
var PairInitCodeHash = crypto.Keccak256([]byte("MiniSwapPair"))

var (
	big997  = big.NewInt(997)
	big1000 = big.NewInt(1000)
	big3    = big.NewInt(3)
)

// SortTokens returns a and b in canonical order
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	}
	token0, token1 := a, b
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		token0, token1 = b, a
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroToken
	}
	return token0, token1, nil
}

// PairFor calculates the handle of the pair for two tokens without looking
// anything up. The order of a and b does not matter.
func PairFor(factory, a, b common.Address) common.Address {
	token0, token1 := a, b
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		token0, token1 = b, a
	}

	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{
		0xff,
	}, factory.Bytes(), salt, PairInitCodeHash))
}

// Quote returns the amount of B worth amountA at the current reserve ratio
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA.Sign() <= 0 {
		return nil, ErrInsufficientAmount
	}
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Div(out, reserveA), nil
}

// GetAmountOut calculates the output amount for a given input amount after the 0.3% fee
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrInsufficientAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big997)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big1000), amountInWithFee)

	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn calculates the input amount required for a given output amount
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), big1000)
	denominator := new(big.Int).Mul(new(big.Int).Sub(reserveOut, amountOut), big997)

	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, common.Big1), nil
}

// reservesFunc returns the reserves of the pair for (tokenA, tokenB) ordered as requested
type reservesFunc func(ctx context.Context, tokenA, tokenB common.Address) (reserveA, reserveB *big.Int, err error)

// getAmountsOut chains GetAmountOut along path
func getAmountsOut(ctx context.Context, reserves reservesFunc, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}

	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)

	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := reserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		amounts[i+1], err = GetAmountOut(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}

	return amounts, nil
}

// getAmountsIn chains GetAmountIn backwards along path
func getAmountsIn(ctx context.Context, reserves reservesFunc, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}

	amounts := make([]*big.Int, len(path))
	amounts[len(amounts)-1] = new(big.Int).Set(amountOut)

	for i := len(path) - 1; i > 0; i-- {
		reserveIn, reserveOut, err := reserves(ctx, path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		amounts[i-1], err = GetAmountIn(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}

	return amounts, nil
}
