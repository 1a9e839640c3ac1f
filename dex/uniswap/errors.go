package uniswap

import (
	"errors"
	"fmt"

	"github.com/michaelpento.lv/miniswap/txn"
)

// Factory errors
var (
	ErrIdenticalTokens = errors.New("MiniSwap: IDENTICAL_ADDRESSES")
	ErrZeroToken       = errors.New("MiniSwap: ZERO_ADDRESS")
	ErrPairExists      = errors.New("MiniSwap: PAIR_EXISTS")
	ErrForbidden       = errors.New("MiniSwap: FORBIDDEN")
)

// Pair errors
var (
	ErrLocked                      = errors.New("MiniSwap: LOCKED")
	ErrK                           = errors.New("MiniSwap: K")
	ErrOverflow                    = errors.New("MiniSwap: OVERFLOW")
	ErrInvalidTo                   = errors.New("MiniSwap: INVALID_TO")
	ErrInsufficientLiquidity       = errors.New("MiniSwap: INSUFFICIENT_LIQUIDITY")
	ErrInsufficientLiquidityMinted = errors.New("MiniSwap: INSUFFICIENT_LIQUIDITY_MINTED")
	ErrInsufficientLiquidityBurned = errors.New("MiniSwap: INSUFFICIENT_LIQUIDITY_BURNED")
	ErrInsufficientInputAmount     = errors.New("MiniSwap: INSUFFICIENT_INPUT_AMOUNT")
	ErrInsufficientOutputAmount    = errors.New("MiniSwap: INSUFFICIENT_OUTPUT_AMOUNT")
	ErrPeriodNotElapsed            = errors.New("MiniSwap: PERIOD_NOT_ELAPSED")
)

// Library and router errors
var (
	ErrInsufficientAmount   = errors.New("MiniSwapLibrary: INSUFFICIENT_AMOUNT")
	ErrInvalidPath          = errors.New("MiniSwapLibrary: INVALID_PATH")
	ErrPairNotFound         = errors.New("MiniSwapLibrary: PAIR_NOT_FOUND")
	ErrExpired              = errors.New("MiniSwapRouter: EXPIRED")
	ErrInsufficientAAmount  = errors.New("MiniSwapRouter: INSUFFICIENT_A_AMOUNT")
	ErrInsufficientBAmount  = errors.New("MiniSwapRouter: INSUFFICIENT_B_AMOUNT")
	ErrExcessiveInputAmount = errors.New("MiniSwapRouter: EXCESSIVE_INPUT_AMOUNT")
	ErrNoWrappedNative      = errors.New("MiniSwapRouter: NO_WETH")
)

// lockErr reports lock contention as ErrLocked
func lockErr(err error) error {
	if errors.Is(err, txn.ErrWouldBlock) {
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}
	return err
}
