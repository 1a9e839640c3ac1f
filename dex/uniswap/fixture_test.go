package uniswap

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/token"
	"github.com/michaelpento.lv/miniswap/utils/math"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr = common.HexToAddress("0xFAC7000000000000000000000000000000000001")
	routerAddr  = common.HexToAddress("0x7007E20000000000000000000000000000000002")
	wethAddr    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	tokenA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenC = common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenF = common.HexToAddress("0x4444444444444444444444444444444444444444")

	alice    = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob      = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
	setter   = common.HexToAddress("0x5E77E20000000000000000000000000000000003")
	feeVault = common.HexToAddress("0xFEE0000000000000000000000000000000000004")
)

var startTime = time.Unix(1_700_000_000, 0)

type fixture struct {
	t       *testing.T
	bank    *token.Bank
	clock   *ManualClock
	bus     *events.Bus
	factory *Factory
	router  *Router
	weth    *token.WETH
	tokens  map[common.Address]*token.ERC20

	mu      sync.Mutex
	records []events.Record
}

func newFixture(t *testing.T, opts ...FactoryOption) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		bank:   token.NewBank(),
		clock:  NewManualClock(startTime),
		bus:    events.NewBus(),
		tokens: make(map[common.Address]*token.ERC20),
	}
	f.bus.Subscribe(func(r events.Record) {
		f.mu.Lock()
		f.records = append(f.records, r)
		f.mu.Unlock()
	})

	opts = append([]FactoryOption{WithEventBus(f.bus), WithClock(f.clock)}, opts...)
	f.factory = NewFactory(factoryAddr, setter, f.bank, opts...)

	weth, err := token.NewWETH(f.bank, wethAddr)
	require.NoError(t, err)
	f.weth = weth
	f.tokens[wethAddr] = weth.ERC20
	f.router = NewRouter(routerAddr, f.factory, weth)

	ctx := context.Background()
	for addr, symbol := range map[common.Address]string{tokenA: "AAA", tokenB: "BBB", tokenC: "CCC"} {
		tok, err := f.bank.Issue(addr, symbol)
		require.NoError(t, err)
		f.tokens[addr] = tok
		require.NoError(t, tok.Mint(ctx, alice, math.Ether(1_000_000)))
		require.NoError(t, tok.Approve(ctx, alice, routerAddr, token.MaxUint256))
	}
	require.NoError(t, weth.Native().Mint(ctx, alice, math.Ether(1_000_000)))
	require.NoError(t, weth.Approve(ctx, alice, routerAddr, token.MaxUint256))

	return f
}

func (f *fixture) deadline() time.Time {
	return f.clock.Now().Add(time.Hour)
}

func (f *fixture) balance(tok, holder common.Address) *big.Int {
	return f.tokens[tok].BalanceOf(context.Background(), holder)
}

// pair creates the pair for a and b and seeds it directly with the given
// amounts of a and b, minting the shares to alice
func (f *fixture) pair(a, b common.Address, amountA, amountB *big.Int) *Pair {
	f.t.Helper()
	ctx := context.Background()

	pair, ok := f.factory.GetPair(a, b)
	if !ok {
		var err error
		pair, err = f.factory.CreatePair(ctx, a, b)
		require.NoError(f.t, err)
	}

	require.NoError(f.t, f.tokens[a].Transfer(ctx, alice, pair.Address(), amountA))
	require.NoError(f.t, f.tokens[b].Transfer(ctx, alice, pair.Address(), amountB))
	_, err := pair.Mint(ctx, alice, alice)
	require.NoError(f.t, err)
	return pair
}

func (f *fixture) emitted() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]events.Event, len(f.records))
	for i, r := range f.records {
		out[i] = r.Event
	}
	return out
}

func (f *fixture) eventNames() []string {
	var names []string
	for _, ev := range f.emitted() {
		names = append(names, ev.EventName())
	}
	return names
}

func (f *fixture) resetEvents() {
	f.mu.Lock()
	f.records = nil
	f.mu.Unlock()
}

func ether(x int64) *big.Int {
	return math.Ether(x)
}
