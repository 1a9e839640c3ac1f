package math

import (
	"math/big"
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// MaxUint112 is the largest value a reserve may hold
var MaxUint112 = new(big.Int).Sub(new(big.Int).Lsh(one, 112), one)

// Sqrt returns floor(sqrt(x)). Negative inputs yield zero.
func Sqrt(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(x)
}

// Min returns a copy of the smaller of x and y
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Set(y)
}

// Max returns a copy of the larger of x and y
func Max(x, y *big.Int) *big.Int {
	if x.Cmp(y) >= 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Set(y)
}

// MulDiv computes floor(a * b / c)
func MulDiv(a, b, c *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	return n.Quo(n, c)
}

// MulDivRoundingUp computes ceil(a * b / c) for non-negative operands
func MulDivRoundingUp(a, b, c *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(n, c, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}

// IsZero reports whether x is nil or zero
func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}

// IsPositive reports whether x is strictly greater than zero
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// Clone returns an independent copy, treating nil as zero
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// FitsUint112 reports whether 0 <= x <= 2^112-1
func FitsUint112(x *big.Int) bool {
	return x.Sign() >= 0 && x.Cmp(MaxUint112) <= 0
}

// SubFloorZero returns max(x - y, 0)
func SubFloorZero(x, y *big.Int) *big.Int {
	d := new(big.Int).Sub(x, y)
	if d.Sign() < 0 {
		return d.Set(zero)
	}
	return d
}

// Exp10 returns 10^n
func Exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// Ether scales x by 1e18
func Ether(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), Exp10(18))
}
