package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex/uniswap"
)

// Pool lends its reserves through the swap callback
type Pool interface {
	Address() common.Address
	Token0() common.Address
	Token1() common.Address
	Reserves(ctx context.Context) (reserve0, reserve1 *big.Int, blockTimestampLast uint32)
	Swap(ctx context.Context, sender common.Address, amount0Out, amount1Out *big.Int, to common.Address, data []byte, callback uniswap.SwapCallback) error
}

// Borrower runs while the loan is outstanding. Every ledger call it makes
// must use ctx; returning an error undoes the whole flash swap.
type Borrower func(ctx context.Context, loan *Loan) error

var _ Pool = (*uniswap.Pair)(nil)
