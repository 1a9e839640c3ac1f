package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/txn"
)

// WETH wraps the bank's native asset 1:1
type WETH struct {
	*ERC20
	native *ERC20
}

// NewWETH issues a wrapped-native token at addr, issuing the native asset
// itself on first use.
func NewWETH(bank *Bank, addr common.Address) (*WETH, error) {
	native, err := bank.ERC20(NativeAddress)
	if errors.Is(err, ErrUnknownToken) {
		native, err = bank.Issue(NativeAddress, "ETH")
	}
	if err != nil {
		return nil, err
	}

	wrapped, err := bank.Issue(addr, "WETH")
	if err != nil {
		return nil, err
	}

	return &WETH{ERC20: wrapped, native: native}, nil
}

// Native returns the handle of the unwrapped asset
func (w *WETH) Native() *ERC20 {
	return w.native
}

// Deposit wraps amount of from's native balance
func (w *WETH) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	return txn.Run(ctx, func(ctx context.Context) error {
		if err := w.native.Transfer(ctx, from, w.address, amount); err != nil {
			return err
		}
		return w.Mint(ctx, from, amount)
	})
}

// Withdraw unwraps amount back to from's native balance
func (w *WETH) Withdraw(ctx context.Context, from common.Address, amount *big.Int) error {
	return txn.Run(ctx, func(ctx context.Context) error {
		if err := w.Burn(ctx, from, amount); err != nil {
			return err
		}
		return w.native.Transfer(ctx, w.address, from, amount)
	})
}

// NativeBalance returns holder's unwrapped balance
func (w *WETH) NativeBalance(ctx context.Context, holder common.Address) *big.Int {
	return w.native.BalanceOf(ctx, holder)
}

// TransferNative moves unwrapped value
func (w *WETH) TransferNative(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return w.native.Transfer(ctx, from, to, amount)
}
