package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/txn"
)

// ShareSymbol is the symbol of every pair's liquidity share token
const ShareSymbol = "MINI-LP"

// DefaultProtocolFeeDenominator gives the protocol 1/6 of the fee growth
const DefaultProtocolFeeDenominator = 5

type pairKey struct {
	token0, token1 common.Address
}

// Factory is the registry of pairs. It owns the protocol fee settings.
type Factory struct {
	address        common.Address
	custody        dex.Custody
	bus            *events.Bus
	clock          Clock
	feeDenominator *big.Int
	creating       *txn.Mutex

	mu          sync.RWMutex
	feeTo       common.Address
	feeToSetter common.Address
	pairs       map[pairKey]*Pair
	allPairs    []*Pair
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithEventBus publishes factory and pair events to bus
func WithEventBus(bus *events.Bus) FactoryOption {
	return func(f *Factory) { f.bus = bus }
}

// WithClock sets the time source of the factory and its pairs
func WithClock(clock Clock) FactoryOption {
	return func(f *Factory) { f.clock = clock }
}

// WithProtocolFeeDenominator mints the protocol 1/(d+1) of the growth in sqrt(k)
func WithProtocolFeeDenominator(d uint64) FactoryOption {
	return func(f *Factory) { f.feeDenominator = new(big.Int).SetUint64(d) }
}

// WithFeeTo turns the protocol fee on from the start
func WithFeeTo(feeTo common.Address) FactoryOption {
	return func(f *Factory) { f.feeTo = feeTo }
}

// NewFactory creates an empty registry at address. Pair tokens resolve
// through custody.
func NewFactory(address, feeToSetter common.Address, custody dex.Custody, opts ...FactoryOption) *Factory {
	f := &Factory{
		address:        address,
		custody:        custody,
		clock:          SystemClock{},
		feeDenominator: big.NewInt(DefaultProtocolFeeDenominator),
		creating:       txn.NewMutex(),
		feeToSetter:    feeToSetter,
		pairs:          make(map[pairKey]*Pair),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Address returns the factory handle pair addresses derive from
func (f *Factory) Address() common.Address {
	return f.address
}

// Clock returns the factory's time source
func (f *Factory) Clock() Clock {
	return f.clock
}

// Bus returns the event bus, which may be nil
func (f *Factory) Bus() *events.Bus {
	return f.bus
}

// CreatePair registers the pair for tokenA and tokenB. The pair becomes
// visible to other callers when the transaction carried by ctx commits.
func (f *Factory) CreatePair(ctx context.Context, tokenA, tokenB common.Address) (*Pair, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}

	var pair *Pair
	err = txn.Run(ctx, func(ctx context.Context) error {
		t := txn.Current(ctx)
		if err := t.Acquire(ctx, f.creating); err != nil {
			return lockErr(err)
		}
		if _, ok := f.lookup(ctx, token0, token1); ok {
			return ErrPairExists
		}

		t0, err := f.custody.Token(token0)
		if err != nil {
			return fmt.Errorf("failed to resolve token0: %w", err)
		}
		t1, err := f.custody.Token(token1)
		if err != nil {
			return fmt.Errorf("failed to resolve token1: %w", err)
		}

		address := PairFor(f.address, token0, token1)
		shares, err := f.custody.NewShareToken(ctx, address, ShareSymbol)
		if err != nil {
			return fmt.Errorf("failed to issue share token: %w", err)
		}

		pair = newPair(address, f, t0, t1, shares)
		f.pending(t).add(t, pair)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// GetPair returns the committed pair for tokenA and tokenB in either order
func (f *Factory) GetPair(tokenA, tokenB common.Address) (*Pair, bool) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	pair, ok := f.pairs[pairKey{token0, token1}]
	return pair, ok
}

// AllPairsLength returns the number of registered pairs
func (f *Factory) AllPairsLength() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allPairs)
}

// AllPairs returns the handle of the i-th pair in creation order
func (f *Factory) AllPairs(i int) (common.Address, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if i < 0 || i >= len(f.allPairs) {
		return common.Address{}, fmt.Errorf("%w: index %d of %d", ErrPairNotFound, i, len(f.allPairs))
	}
	return f.allPairs[i].address, nil
}

// Pairs returns every registered pair in creation order
func (f *Factory) Pairs() []*Pair {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*Pair, len(f.allPairs))
	copy(out, f.allPairs)
	return out
}

// FeeTo returns the protocol fee recipient, zero when the fee is off
func (f *Factory) FeeTo() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeTo
}

// FeeToSetter returns the identity allowed to change the fee settings
func (f *Factory) FeeToSetter() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeToSetter
}

// SetFeeTo changes the protocol fee recipient
func (f *Factory) SetFeeTo(caller, feeTo common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.feeToSetter {
		return ErrForbidden
	}
	f.feeTo = feeTo
	return nil
}

// SetFeeToSetter hands the fee settings to setter
func (f *Factory) SetFeeToSetter(caller, setter common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.feeToSetter {
		return ErrForbidden
	}
	f.feeToSetter = setter
	return nil
}

// lookup finds the pair for sorted tokens, including pairs created by the
// transaction carried by ctx
func (f *Factory) lookup(ctx context.Context, token0, token1 common.Address) (*Pair, bool) {
	f.mu.RLock()
	pair, ok := f.pairs[pairKey{token0, token1}]
	f.mu.RUnlock()
	if ok {
		return pair, true
	}

	if t := txn.Current(ctx); t != nil {
		for _, p := range f.pending(t).pairs {
			if p.Token0() == token0 && p.Token1() == token1 {
				return p, true
			}
		}
	}
	return nil, false
}

// pairFor resolves the pair for tokenA and tokenB in either order
func (f *Factory) pairFor(ctx context.Context, tokenA, tokenB common.Address) (*Pair, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	pair, ok := f.lookup(ctx, token0, token1)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, token0.Hex(), token1.Hex())
	}
	return pair, nil
}

// pendingPairs holds pairs created by a transaction until it commits
type pendingPairs struct {
	factory *Factory
	pairs   []*Pair
}

func (f *Factory) pending(t *txn.Txn) *pendingPairs {
	return t.Local(f, func() any {
		return &pendingPairs{factory: f}
	}).(*pendingPairs)
}

func (pp *pendingPairs) add(t *txn.Txn, pair *Pair) {
	n := len(pp.pairs)
	pp.pairs = append(pp.pairs, pair)
	t.Journal(func() { pp.pairs = pp.pairs[:n] })
}

// Commit registers the pairs and announces them
func (pp *pendingPairs) Commit() {
	f := pp.factory
	created := make([]*events.PairCreated, 0, len(pp.pairs))

	f.mu.Lock()
	for _, p := range pp.pairs {
		f.pairs[pairKey{p.Token0(), p.Token1()}] = p
		f.allPairs = append(f.allPairs, p)
		created = append(created, &events.PairCreated{
			Token0:         p.Token0(),
			Token1:         p.Token1(),
			Pair:           p.address,
			AllPairsLength: len(f.allPairs),
		})
	}
	f.mu.Unlock()

	for _, ev := range created {
		f.bus.Publish(ev)
	}
}
