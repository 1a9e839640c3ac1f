package flashloan

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/utils/math"
)

var (
	ErrInvalidAmount  = errors.New("flash swap amount must be positive")
	ErrTokenNotInPool = errors.New("token is not traded by the pool")
	ErrNoLiquidity    = errors.New("pool cannot lend the requested amount")
)

// flashData marks a swap as a flash swap so the pool runs the callback
var flashData = []byte("flash")

var (
	feeNumerator   = big.NewInt(1000)
	feeDenominator = big.NewInt(997)
)

// Loan describes an outstanding flash swap
type Loan struct {
	Pool     common.Address
	Token    common.Address
	Receiver common.Address
	Amount   *big.Int
	// Repayment is what the receiver returns to the pool in Token
	Repayment *big.Int
}

// Fee is what the loan costs over the borrowed amount
func (l *Loan) Fee() *big.Int {
	return new(big.Int).Sub(l.Repayment, l.Amount)
}

// RepaymentFor returns the least amount of the borrowed token that keeps the
// pool's fee-adjusted product from decreasing: ceil(amount * 1000 / 997)
func RepaymentFor(amount *big.Int) *big.Int {
	return math.MulDivRoundingUp(amount, feeNumerator, feeDenominator)
}
