package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Exchange represents a decentralized exchange
type Exchange interface {
	// GetName returns the exchange name
	GetName() string

	// GetPrice returns the price of token1 in terms of token0, scaled by 1e18
	GetPrice(ctx context.Context, token0, token1 common.Address) (*big.Int, error)

	// GetReserves returns the reserves of a token pair, ordered as requested
	GetReserves(ctx context.Context, token0, token1 common.Address) (*Reserves, error)

	// EstimateReturn estimates the return amount for a swap
	EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)

	// GetAmountIn calculates required input amount for desired output
	GetAmountIn(ctx context.Context, amountOut *big.Int, path []common.Address) (*big.Int, error)
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Token is a custodial asset. The holder argument of Transfer is the caller:
// in-process there is no implicit message sender.
type Token interface {
	Address() common.Address
	Symbol() string
	TotalSupply(ctx context.Context) *big.Int
	BalanceOf(ctx context.Context, holder common.Address) *big.Int
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Allowance(ctx context.Context, owner, spender common.Address) *big.Int
}

// MintableToken is a Token whose supply its issuer controls
type MintableToken interface {
	Token
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, from common.Address, amount *big.Int) error
}

// Custody resolves token identifiers to assets and issues share tokens
type Custody interface {
	Token(addr common.Address) (Token, error)
	NewShareToken(ctx context.Context, addr common.Address, symbol string) (MintableToken, error)
}

// WrappedNative wraps the host's native value 1:1
type WrappedNative interface {
	Token
	Deposit(ctx context.Context, from common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, from common.Address, amount *big.Int) error
	// NativeBalance returns the holder's unwrapped balance
	NativeBalance(ctx context.Context, holder common.Address) *big.Int
	// TransferNative moves unwrapped value between holders
	TransferNative(ctx context.Context, from, to common.Address, amount *big.Int) error
}
