package uniswap

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits of a UQ112x112 value
const Resolution = 112

// Observation is a snapshot of a pair's price accumulators
type Observation struct {
	Timestamp        uint32
	Price0Cumulative *uint256.Int
	Price1Cumulative *uint256.Int
}

// encode returns y as a UQ112x112
func encode(y *big.Int) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.MustFromBig(y), Resolution)
}

// accumulate adds reserve-weighted prices over elapsed seconds. Overflow
// wraps, consumers only ever use differences.
func accumulate(price0, price1 *uint256.Int, reserve0, reserve1 *big.Int, elapsed uint32) (*uint256.Int, *uint256.Int) {
	if elapsed == 0 || reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return price0, price1
	}

	dt := uint256.NewInt(uint64(elapsed))

	p0 := new(uint256.Int).Div(encode(reserve1), uint256.MustFromBig(reserve0))
	p0.Mul(p0, dt)
	p0.Add(p0, price0)

	p1 := new(uint256.Int).Div(encode(reserve0), uint256.MustFromBig(reserve1))
	p1.Mul(p1, dt)
	p1.Add(p1, price1)

	return p0, p1
}

// TWAP returns the UQ112x112 time-weighted average prices between two
// observations of the same pair
func TWAP(older, newer Observation) (price0, price1 *uint256.Int, err error) {
	elapsed := newer.Timestamp - older.Timestamp
	if elapsed == 0 {
		return nil, nil, ErrPeriodNotElapsed
	}

	dt := uint256.NewInt(uint64(elapsed))
	price0 = new(uint256.Int).Sub(newer.Price0Cumulative, older.Price0Cumulative)
	price0.Div(price0, dt)
	price1 = new(uint256.Int).Sub(newer.Price1Cumulative, older.Price1Cumulative)
	price1.Div(price1, dt)

	return price0, price1, nil
}

// Consult converts amountIn at a UQ112x112 price, truncating the fraction
func Consult(price *uint256.Int, amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(price.ToBig(), amountIn)
	return out.Rsh(out, Resolution)
}
