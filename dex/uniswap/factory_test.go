package uniswap

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/token"
	"github.com/michaelpento.lv/miniswap/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.factory.CreatePair(ctx, tokenB, tokenA)
	require.NoError(t, err)

	assert.Equal(t, tokenA, pair.Token0())
	assert.Equal(t, tokenB, pair.Token1())
	assert.Equal(t, PairFor(factoryAddr, tokenA, tokenB), pair.Address())
	assert.Equal(t, 1, f.factory.AllPairsLength())

	addr, err := f.factory.AllPairs(0)
	require.NoError(t, err)
	assert.Equal(t, pair.Address(), addr)

	_, err = f.factory.AllPairs(1)
	assert.ErrorIs(t, err, ErrPairNotFound)

	reserve0, reserve1, _ := pair.GetReserves()
	assert.Zero(t, reserve0.Sign())
	assert.Zero(t, reserve1.Sign())

	evs := f.emitted()
	require.Len(t, evs, 1)
	assert.Equal(t, &events.PairCreated{Token0: tokenA, Token1: tokenB, Pair: pair.Address(), AllPairsLength: 1}, evs[0])
}

func TestCreatePairValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.factory.CreatePair(ctx, tokenA, tokenA)
	assert.ErrorIs(t, err, ErrIdenticalTokens)

	_, err = f.factory.CreatePair(ctx, common.Address{}, tokenA)
	assert.ErrorIs(t, err, ErrZeroToken)

	_, err = f.factory.CreatePair(ctx, tokenA, common.HexToAddress("0x9999"))
	assert.ErrorIs(t, err, token.ErrUnknownToken)

	_, err = f.factory.CreatePair(ctx, tokenA, tokenB)
	require.NoError(t, err)

	for _, order := range [][2]common.Address{{tokenA, tokenB}, {tokenB, tokenA}} {
		_, err = f.factory.CreatePair(ctx, order[0], order[1])
		assert.ErrorIs(t, err, ErrPairExists)
	}
	assert.Equal(t, 1, f.factory.AllPairsLength())
}

func TestGetPairIsBidirectional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tokens := range [][2]common.Address{{tokenA, tokenB}, {tokenC, tokenB}, {tokenA, wethAddr}} {
		_, err := f.factory.CreatePair(ctx, tokens[0], tokens[1])
		require.NoError(t, err)
	}

	all := []common.Address{tokenA, tokenB, tokenC, wethAddr}
	for _, a := range all {
		for _, b := range all {
			ab, okAB := f.factory.GetPair(a, b)
			ba, okBA := f.factory.GetPair(b, a)
			assert.Equal(t, okAB, okBA)
			assert.Same(t, ab, ba)
		}
	}

	_, ok := f.factory.GetPair(tokenA, tokenC)
	assert.False(t, ok)
	assert.Len(t, f.factory.Pairs(), 3)
}

func TestCreatePairRollsBack(t *testing.T) {
	f := newFixture(t)
	abort := errors.New("abort")

	err := txn.Run(context.Background(), func(ctx context.Context) error {
		pair, err := f.factory.CreatePair(ctx, tokenA, tokenB)
		require.NoError(t, err)

		// visible to the creating chain only
		found, err := f.factory.pairFor(ctx, tokenB, tokenA)
		require.NoError(t, err)
		assert.Same(t, pair, found)
		_, ok := f.factory.GetPair(tokenA, tokenB)
		assert.False(t, ok)

		return abort
	})
	assert.ErrorIs(t, err, abort)

	_, ok := f.factory.GetPair(tokenA, tokenB)
	assert.False(t, ok)
	assert.Zero(t, f.factory.AllPairsLength())
	assert.Empty(t, f.emitted())

	_, err = f.factory.CreatePair(context.Background(), tokenA, tokenB)
	assert.NoError(t, err)
}

func TestFeeSettings(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, common.Address{}, f.factory.FeeTo())
	assert.Equal(t, setter, f.factory.FeeToSetter())

	assert.ErrorIs(t, f.factory.SetFeeTo(alice, feeVault), ErrForbidden)
	assert.ErrorIs(t, f.factory.SetFeeToSetter(alice, alice), ErrForbidden)

	require.NoError(t, f.factory.SetFeeTo(setter, feeVault))
	assert.Equal(t, feeVault, f.factory.FeeTo())

	require.NoError(t, f.factory.SetFeeToSetter(setter, alice))
	assert.Equal(t, alice, f.factory.FeeToSetter())
	assert.ErrorIs(t, f.factory.SetFeeTo(setter, common.Address{}), ErrForbidden)
	assert.NoError(t, f.factory.SetFeeTo(alice, common.Address{}))
}
