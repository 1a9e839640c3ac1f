package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/txn"
)

// ERC20 is a handle on one asset held by a Bank. Holding the handle is the
// capability to mint and burn it.
type ERC20 struct {
	bank     *Bank
	address  common.Address
	symbol   string
	decimals uint8
}

// Address returns the token identifier
func (t *ERC20) Address() common.Address {
	return t.address
}

// Symbol returns the ticker
func (t *ERC20) Symbol() string {
	return t.symbol
}

// Decimals returns the display precision
func (t *ERC20) Decimals() uint8 {
	return t.decimals
}

// TotalSupply returns the outstanding supply
func (t *ERC20) TotalSupply(ctx context.Context) *big.Int {
	return t.bank.totalSupply(ctx, t.address)
}

// BalanceOf returns holder's balance as seen by the calling chain
func (t *ERC20) BalanceOf(ctx context.Context, holder common.Address) *big.Int {
	return t.bank.balanceOf(ctx, t.address, holder)
}

// Transfer moves amount from the caller to to
func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return txn.Run(ctx, func(ctx context.Context) error {
		return t.bank.transfer(ctx, t.address, from, to, amount)
	})
}

// TransferFrom moves amount from from to to on behalf of spender
func (t *ERC20) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	return txn.Run(ctx, func(ctx context.Context) error {
		if spender != from {
			if err := t.bank.spendAllowance(ctx, t.address, from, spender, amount); err != nil {
				return err
			}
		}
		return t.bank.transfer(ctx, t.address, from, to, amount)
	})
}

// Approve sets spender's allowance over owner's balance
func (t *ERC20) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return txn.Run(ctx, func(ctx context.Context) error {
		return t.bank.setAllowance(ctx, t.address, owner, spender, amount)
	})
}

// Allowance returns the remaining allowance
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) *big.Int {
	return t.bank.allowance(t.address, owner, spender)
}

// Mint creates amount and credits it to to
func (t *ERC20) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return txn.Run(ctx, func(ctx context.Context) error {
		if err := t.bank.adjustSupply(ctx, t.address, amount); err != nil {
			return err
		}
		return t.bank.credit(ctx, t.address, to, amount)
	})
}

// Burn destroys amount from from's balance
func (t *ERC20) Burn(ctx context.Context, from common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return txn.Run(ctx, func(ctx context.Context) error {
		if err := t.bank.debit(ctx, t.address, from, amount); err != nil {
			return err
		}
		return t.bank.adjustSupply(ctx, t.address, new(big.Int).Neg(amount))
	})
}
