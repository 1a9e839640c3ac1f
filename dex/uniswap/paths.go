package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/types"
)

type edge struct {
	to   common.Address
	pair *Pair
}

// Paths enumerates the simple paths from tokenIn to tokenOut over registered
// pairs with at most maxHops swaps, never using a pair twice. When tokenIn
// equals tokenOut the paths are cycles.
func (r *Router) Paths(tokenIn, tokenOut common.Address, maxHops int) [][]common.Address {
	graph := make(map[common.Address][]edge)
	for _, p := range r.factory.Pairs() {
		t0, t1 := p.Token0(), p.Token1()
		graph[t0] = append(graph[t0], edge{to: t1, pair: p})
		graph[t1] = append(graph[t1], edge{to: t0, pair: p})
	}

	var out [][]common.Address
	visited := map[common.Address]bool{tokenIn: true}
	used := make(map[*Pair]bool)

	var walk func(path []common.Address)
	walk = func(path []common.Address) {
		if len(path)-1 >= maxHops {
			return
		}
		at := path[len(path)-1]

		for _, e := range graph[at] {
			if used[e.pair] {
				continue
			}
			if e.to == tokenOut {
				found := make([]common.Address, len(path), len(path)+1)
				copy(found, path)
				out = append(out, append(found, e.to))
				continue
			}
			if visited[e.to] {
				continue
			}

			visited[e.to] = true
			used[e.pair] = true
			next := make([]common.Address, len(path), len(path)+1)
			copy(next, path)
			walk(append(next, e.to))
			visited[e.to] = false
			used[e.pair] = false
		}
	}
	walk([]common.Address{tokenIn})

	return out
}

// BestTradeExactIn returns the route with at most maxHops swaps that turns
// amountIn of tokenIn into the most tokenOut. Ties go to the shorter route.
func (r *Router) BestTradeExactIn(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address, maxHops int) (*types.Route, error) {
	if tokenIn == tokenOut {
		return nil, ErrIdenticalTokens
	}
	if maxHops < 1 {
		return nil, ErrInvalidPath
	}
	if amountIn.Sign() <= 0 {
		return nil, ErrInsufficientAmount
	}

	var best *types.Route
	for _, path := range r.Paths(tokenIn, tokenOut, maxHops) {
		route, err := r.Route(ctx, amountIn, path)
		if err != nil {
			continue
		}
		if best == nil || better(route, best) {
			best = route
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no route from %s to %s", ErrPairNotFound, tokenIn.Hex(), tokenOut.Hex())
	}
	return best, nil
}

// Route prices amountIn along path
func (r *Router) Route(ctx context.Context, amountIn *big.Int, path []common.Address) (*types.Route, error) {
	amounts, err := r.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}

	pairs := make([]common.Address, len(path)-1)
	for i := range pairs {
		pair, err := r.factory.pairFor(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		pairs[i] = pair.address
	}

	return &types.Route{
		TokenIn:   path[0],
		TokenOut:  path[len(path)-1],
		AmountIn:  amounts[0],
		AmountOut: amounts[len(amounts)-1],
		Path:      path,
		Pairs:     pairs,
		Amounts:   amounts,
	}, nil
}

func better(a, b *types.Route) bool {
	if c := a.AmountOut.Cmp(b.AmountOut); c != 0 {
		return c > 0
	}
	return a.Hops() < b.Hops()
}
