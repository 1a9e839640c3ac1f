package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/txn"
	"github.com/michaelpento.lv/miniswap/utils/math"
)

// SwapCallback receives optimistically transferred outputs before the pair
// checks that it has been paid. Every ledger call it makes must use ctx.
type SwapCallback func(ctx context.Context, sender common.Address, amount0Out, amount1Out *big.Int, data []byte) error

// pairState is replaced as a whole on every write; its values are never mutated
type pairState struct {
	reserve0             *big.Int
	reserve1             *big.Int
	blockTimestampLast   uint32
	price0CumulativeLast *uint256.Int
	price1CumulativeLast *uint256.Int
	kLast                *big.Int
}

// staged is a transaction's uncommitted write to a pair
type staged struct {
	pair  *Pair
	state pairState
}

// Commit publishes the staged state to other call chains
func (s *staged) Commit() {
	s.pair.mu.Lock()
	s.pair.state = s.state
	s.pair.mu.Unlock()
}

// Pair is the reserve ledger of one canonical token pair. Writes are staged
// in the writing transaction and become visible to others when it commits.
type Pair struct {
	address common.Address
	factory *Factory
	token0  dex.Token
	token1  dex.Token
	shares  dex.MintableToken
	lock    *txn.Mutex

	mu    sync.RWMutex
	state pairState
}

func newPair(address common.Address, factory *Factory, token0, token1 dex.Token, shares dex.MintableToken) *Pair {
	return &Pair{
		address: address,
		factory: factory,
		token0:  token0,
		token1:  token1,
		shares:  shares,
		lock:    txn.NewMutex(),
		state: pairState{
			reserve0:             new(big.Int),
			reserve1:             new(big.Int),
			price0CumulativeLast: new(uint256.Int),
			price1CumulativeLast: new(uint256.Int),
			kLast:                new(big.Int),
		},
	}
}

// Address returns the pair handle
func (p *Pair) Address() common.Address {
	return p.address
}

// Token0 returns the lower token of the pair
func (p *Pair) Token0() common.Address {
	return p.token0.Address()
}

// Token1 returns the higher token of the pair
func (p *Pair) Token1() common.Address {
	return p.token1.Address()
}

// Shares returns the pair's liquidity share token
func (p *Pair) Shares() dex.Token {
	return p.shares
}

// TotalSupply returns the outstanding liquidity shares
func (p *Pair) TotalSupply(ctx context.Context) *big.Int {
	return p.shares.TotalSupply(ctx)
}

// BalanceOf returns holder's liquidity shares
func (p *Pair) BalanceOf(ctx context.Context, holder common.Address) *big.Int {
	return p.shares.BalanceOf(ctx, holder)
}

// GetReserves returns the committed reserves and the time they were last
// written. Reads do not wait for the pair lock.
func (p *Pair) GetReserves() (reserve0, reserve1 *big.Int, blockTimestampLast uint32) {
	st := p.committed()
	return new(big.Int).Set(st.reserve0), new(big.Int).Set(st.reserve1), st.blockTimestampLast
}

// Reserves returns the reserves as seen by the chain carried by ctx,
// including its own uncommitted writes
func (p *Pair) Reserves(ctx context.Context) (reserve0, reserve1 *big.Int, blockTimestampLast uint32) {
	st := p.snapshot(ctx)
	return new(big.Int).Set(st.reserve0), new(big.Int).Set(st.reserve1), st.blockTimestampLast
}

// Price0CumulativeLast returns the token0 price accumulator as of the last write
func (p *Pair) Price0CumulativeLast() *uint256.Int {
	return p.committed().price0CumulativeLast.Clone()
}

// Price1CumulativeLast returns the token1 price accumulator as of the last write
func (p *Pair) Price1CumulativeLast() *uint256.Int {
	return p.committed().price1CumulativeLast.Clone()
}

// KLast returns reserve0*reserve1 as of the last liquidity event, zero while
// the protocol fee is off
func (p *Pair) KLast() *big.Int {
	return new(big.Int).Set(p.committed().kLast)
}

// CurrentCumulativePrices returns the accumulators as they would read if the
// pair were written at now, without writing it. A now at or before the last
// write reads the stored accumulators.
func (p *Pair) CurrentCumulativePrices(now time.Time) Observation {
	st := p.committed()
	ts := blockTimestamp(now)
	if ts <= st.blockTimestampLast {
		return Observation{
			Timestamp:        st.blockTimestampLast,
			Price0Cumulative: st.price0CumulativeLast.Clone(),
			Price1Cumulative: st.price1CumulativeLast.Clone(),
		}
	}
	price0, price1 := accumulate(st.price0CumulativeLast, st.price1CumulativeLast, st.reserve0, st.reserve1, ts-st.blockTimestampLast)
	return Observation{
		Timestamp:        ts,
		Price0Cumulative: price0.Clone(),
		Price1Cumulative: price1.Clone(),
	}
}

// Mint issues liquidity shares to to for the tokens deposited since the last write
func (p *Pair) Mint(ctx context.Context, sender, to common.Address) (*big.Int, error) {
	var liquidity *big.Int

	err := p.execute(ctx, func(ctx context.Context, t *txn.Txn) error {
		st := p.snapshot(ctx)
		balance0 := p.token0.BalanceOf(ctx, p.address)
		balance1 := p.token1.BalanceOf(ctx, p.address)
		amount0 := new(big.Int).Sub(balance0, st.reserve0)
		amount1 := new(big.Int).Sub(balance1, st.reserve1)

		feeOn, err := p.mintFee(ctx, st)
		if err != nil {
			return err
		}

		totalSupply := p.shares.TotalSupply(ctx)
		first := totalSupply.Sign() == 0
		if first {
			liquidity = math.Sqrt(new(big.Int).Mul(amount0, amount1))
			liquidity.Sub(liquidity, big.NewInt(MinimumLiquidity))
		} else {
			if st.reserve0.Sign() == 0 || st.reserve1.Sign() == 0 {
				return ErrInsufficientLiquidityMinted
			}
			liquidity = math.Min(
				math.MulDiv(amount0, totalSupply, st.reserve0),
				math.MulDiv(amount1, totalSupply, st.reserve1),
			)
		}
		if liquidity.Sign() <= 0 {
			return ErrInsufficientLiquidityMinted
		}

		if first {
			if err := p.shares.Mint(ctx, DeadAddress, big.NewInt(MinimumLiquidity)); err != nil {
				return err
			}
		}
		if err := p.shares.Mint(ctx, to, liquidity); err != nil {
			return err
		}

		next, err := p.update(st, balance0, balance1)
		if err != nil {
			return err
		}
		next.kLast = p.nextKLast(feeOn, next)
		p.setState(t, next)

		p.publish(t, p.syncEvent(next), &events.Mint{
			Pair:    p.address,
			Sender:  sender,
			Amount0: amount0,
			Amount1: amount1,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the shares held by the pair itself and pays the underlying
// tokens to to
func (p *Pair) Burn(ctx context.Context, sender, to common.Address) (amount0, amount1 *big.Int, err error) {
	err = p.execute(ctx, func(ctx context.Context, t *txn.Txn) error {
		st := p.snapshot(ctx)
		liquidity := p.shares.BalanceOf(ctx, p.address)

		feeOn, err := p.mintFee(ctx, st)
		if err != nil {
			return err
		}

		totalSupply := p.shares.TotalSupply(ctx)
		if totalSupply.Sign() == 0 {
			return ErrInsufficientLiquidityBurned
		}
		amount0 = math.MulDiv(liquidity, st.reserve0, totalSupply)
		amount1 = math.MulDiv(liquidity, st.reserve1, totalSupply)
		if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
			return ErrInsufficientLiquidityBurned
		}

		if err := p.shares.Burn(ctx, p.address, liquidity); err != nil {
			return err
		}
		if err := p.token0.Transfer(ctx, p.address, to, amount0); err != nil {
			return err
		}
		if err := p.token1.Transfer(ctx, p.address, to, amount1); err != nil {
			return err
		}

		next, err := p.update(st, p.token0.BalanceOf(ctx, p.address), p.token1.BalanceOf(ctx, p.address))
		if err != nil {
			return err
		}
		next.kLast = p.nextKLast(feeOn, next)
		p.setState(t, next)

		p.publish(t, p.syncEvent(next), &events.Burn{
			Pair:    p.address,
			Sender:  sender,
			Amount0: new(big.Int).Set(amount0),
			Amount1: new(big.Int).Set(amount1),
			To:      to,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Swap sends the requested outputs to to, runs callback when data is
// non-empty, and then requires that the pair was paid enough input to keep
// the fee-adjusted constant product from decreasing
func (p *Pair) Swap(ctx context.Context, sender common.Address, amount0Out, amount1Out *big.Int, to common.Address, data []byte, callback SwapCallback) error {
	return p.execute(ctx, func(ctx context.Context, t *txn.Txn) error {
		if amount0Out.Sign() < 0 || amount1Out.Sign() < 0 {
			return ErrInsufficientOutputAmount
		}
		if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
			return ErrInsufficientOutputAmount
		}

		st := p.snapshot(ctx)
		if amount0Out.Cmp(st.reserve0) >= 0 || amount1Out.Cmp(st.reserve1) >= 0 {
			return ErrInsufficientLiquidity
		}
		if to == p.token0.Address() || to == p.token1.Address() {
			return ErrInvalidTo
		}

		if amount0Out.Sign() > 0 {
			if err := p.token0.Transfer(ctx, p.address, to, amount0Out); err != nil {
				return err
			}
		}
		if amount1Out.Sign() > 0 {
			if err := p.token1.Transfer(ctx, p.address, to, amount1Out); err != nil {
				return err
			}
		}

		if len(data) > 0 && callback != nil {
			if err := callback(ctx, sender, new(big.Int).Set(amount0Out), new(big.Int).Set(amount1Out), data); err != nil {
				return fmt.Errorf("swap callback: %w", err)
			}
		}

		balance0 := p.token0.BalanceOf(ctx, p.address)
		balance1 := p.token1.BalanceOf(ctx, p.address)

		amount0In := amountIn(balance0, st.reserve0, amount0Out)
		amount1In := amountIn(balance1, st.reserve1, amount1Out)
		if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
			return ErrInsufficientInputAmount
		}

		adjusted0 := new(big.Int).Sub(new(big.Int).Mul(balance0, big1000), new(big.Int).Mul(amount0In, big3))
		adjusted1 := new(big.Int).Sub(new(big.Int).Mul(balance1, big1000), new(big.Int).Mul(amount1In, big3))
		kAfter := new(big.Int).Mul(adjusted0, adjusted1)
		kBefore := new(big.Int).Mul(st.reserve0, st.reserve1)
		kBefore.Mul(kBefore, big.NewInt(1000*1000))
		if kAfter.Cmp(kBefore) < 0 {
			return ErrK
		}

		next, err := p.update(st, balance0, balance1)
		if err != nil {
			return err
		}
		p.setState(t, next)

		p.publish(t, p.syncEvent(next), &events.Swap{
			Pair:       p.address,
			Sender:     sender,
			Amount0In:  amount0In,
			Amount1In:  amount1In,
			Amount0Out: new(big.Int).Set(amount0Out),
			Amount1Out: new(big.Int).Set(amount1Out),
			To:         to,
		})
		return nil
	})
}

// Skim sends any balance above the reserves to to
func (p *Pair) Skim(ctx context.Context, to common.Address) error {
	return p.execute(ctx, func(ctx context.Context, t *txn.Txn) error {
		st := p.snapshot(ctx)
		excess0 := math.SubFloorZero(p.token0.BalanceOf(ctx, p.address), st.reserve0)
		excess1 := math.SubFloorZero(p.token1.BalanceOf(ctx, p.address), st.reserve1)

		if err := p.token0.Transfer(ctx, p.address, to, excess0); err != nil {
			return err
		}
		return p.token1.Transfer(ctx, p.address, to, excess1)
	})
}

// Sync sets the reserves to the current balances
func (p *Pair) Sync(ctx context.Context) error {
	return p.execute(ctx, func(ctx context.Context, t *txn.Txn) error {
		st := p.snapshot(ctx)
		next, err := p.update(st, p.token0.BalanceOf(ctx, p.address), p.token1.BalanceOf(ctx, p.address))
		if err != nil {
			return err
		}
		p.setState(t, next)
		p.publish(t, p.syncEvent(next))
		return nil
	})
}

// execute runs fn as an exclusive, all-or-nothing entry point of p.
// Re-entering p from inside fn fails with ErrLocked.
func (p *Pair) execute(ctx context.Context, fn func(ctx context.Context, t *txn.Txn) error) error {
	return txn.Run(ctx, func(ctx context.Context) error {
		exit, err := txn.Enter(ctx, p.lock, ErrLocked)
		if err != nil {
			return lockErr(err)
		}
		defer exit()
		return fn(ctx, txn.Current(ctx))
	})
}

func (p *Pair) committed() pairState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// snapshot returns the state staged by the chain carried by ctx, or the
// committed state
func (p *Pair) snapshot(ctx context.Context) pairState {
	if t := txn.Current(ctx); t != nil {
		if v, ok := t.Lookup(p); ok {
			return v.(*staged).state
		}
	}
	return p.committed()
}

// setState stages next in t. The caller holds the pair lock, so the
// committed state cannot move underneath the staged one.
func (p *Pair) setState(t *txn.Txn, next pairState) {
	s := t.Local(p, func() any {
		return &staged{pair: p, state: p.committed()}
	}).(*staged)

	prev := s.state
	s.state = next
	t.Journal(func() { s.state = prev })
}

// update returns st with balances as the new reserves. The accumulators and
// the timestamp only move forward; a clock at or behind the last write leaves
// both as they are.
func (p *Pair) update(st pairState, balance0, balance1 *big.Int) (pairState, error) {
	if !math.FitsUint112(balance0) || !math.FitsUint112(balance1) {
		return st, ErrOverflow
	}

	next := st
	if now := blockTimestamp(p.factory.clock.Now()); now > st.blockTimestampLast {
		next.price0CumulativeLast, next.price1CumulativeLast = accumulate(
			st.price0CumulativeLast, st.price1CumulativeLast,
			st.reserve0, st.reserve1,
			now-st.blockTimestampLast,
		)
		next.blockTimestampLast = now
	}
	next.reserve0 = new(big.Int).Set(balance0)
	next.reserve1 = new(big.Int).Set(balance1)
	return next, nil
}

// mintFee mints the protocol's share of the growth in sqrt(k) since the last
// liquidity event and reports whether the protocol fee is on
func (p *Pair) mintFee(ctx context.Context, st pairState) (bool, error) {
	feeTo := p.factory.FeeTo()
	if feeTo == (common.Address{}) {
		return false, nil
	}
	if st.kLast.Sign() == 0 {
		return true, nil
	}

	rootK := math.Sqrt(new(big.Int).Mul(st.reserve0, st.reserve1))
	rootKLast := math.Sqrt(st.kLast)
	if rootK.Cmp(rootKLast) <= 0 {
		return true, nil
	}

	numerator := new(big.Int).Mul(p.shares.TotalSupply(ctx), new(big.Int).Sub(rootK, rootKLast))
	denominator := new(big.Int).Mul(rootK, p.factory.feeDenominator)
	denominator.Add(denominator, rootKLast)
	liquidity := numerator.Div(numerator, denominator)

	if liquidity.Sign() > 0 {
		if err := p.shares.Mint(ctx, feeTo, liquidity); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (p *Pair) nextKLast(feeOn bool, next pairState) *big.Int {
	if !feeOn {
		return new(big.Int)
	}
	return new(big.Int).Mul(next.reserve0, next.reserve1)
}

func (p *Pair) syncEvent(st pairState) *events.Sync {
	return &events.Sync{
		Pair:     p.address,
		Reserve0: new(big.Int).Set(st.reserve0),
		Reserve1: new(big.Int).Set(st.reserve1),
	}
}

// publish delivers evs once the outermost transaction commits
func (p *Pair) publish(t *txn.Txn, evs ...events.Event) {
	bus := p.factory.bus
	t.OnCommit(func() {
		for _, ev := range evs {
			bus.Publish(ev)
		}
	})
}

// token returns the pair's handle for addr, or nil if addr is not in the pair
func (p *Pair) token(addr common.Address) dex.Token {
	switch addr {
	case p.token0.Address():
		return p.token0
	case p.token1.Address():
		return p.token1
	default:
		return nil
	}
}

// reservesFor returns the reserves seen by ctx ordered with tokenIn first
func (p *Pair) reservesFor(ctx context.Context, tokenIn common.Address) (reserveIn, reserveOut *big.Int) {
	st := p.snapshot(ctx)
	if tokenIn == p.token0.Address() {
		return st.reserve0, st.reserve1
	}
	return st.reserve1, st.reserve0
}

// amountIn returns balance - (reserve - amountOut), floored at zero
func amountIn(balance, reserve, amountOut *big.Int) *big.Int {
	return math.SubFloorZero(balance, new(big.Int).Sub(reserve, amountOut))
}
