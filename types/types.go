package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Route represents a priced trading route through one or more pairs
type Route struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Path      []common.Address
	Pairs     []common.Address
	Amounts   []*big.Int
}

// Hops returns the number of swaps along the route
func (r *Route) Hops() int {
	return len(r.Path) - 1
}

// ArbitrageOpportunity represents a cycle that returns more than it costs
type ArbitrageOpportunity struct {
	Route           *Route
	ExpectedProfit  *big.Int
	RequiredCapital *big.Int
	// PriceImpact of the worst hop, in basis points
	PriceImpact uint64
}
