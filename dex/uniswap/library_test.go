package uniswap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAmountOut(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   int64
		reserveIn  int64
		reserveOut int64
		want       int64
		wantErr    error
	}{
		{"balanced pool", 100, 1000, 1000, 90, nil},
		{"deep pool", 1, 1_000_000, 1_000_000, 0, nil},
		{"skewed pool", 100, 500, 1000, 166, nil},
		{"zero input", 0, 1000, 1000, 0, ErrInsufficientAmount},
		{"empty reserve in", 100, 0, 1000, 0, ErrInsufficientLiquidity},
		{"empty reserve out", 100, 1000, 0, 0, ErrInsufficientLiquidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetAmountOut(big.NewInt(tt.amountIn), big.NewInt(tt.reserveIn), big.NewInt(tt.reserveOut))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestGetAmountIn(t *testing.T) {
	tests := []struct {
		name       string
		amountOut  int64
		reserveIn  int64
		reserveOut int64
		want       int64
		wantErr    error
	}{
		{"balanced pool", 90, 1000, 1000, 100, nil},
		{"one unit", 1, 1000, 1000, 2, nil},
		{"zero output", 0, 1000, 1000, 0, ErrInsufficientOutputAmount},
		{"drains pool", 1000, 1000, 1000, 0, ErrInsufficientLiquidity},
		{"empty reserve", 10, 0, 1000, 0, ErrInsufficientLiquidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetAmountIn(big.NewInt(tt.amountOut), big.NewInt(tt.reserveIn), big.NewInt(tt.reserveOut))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestGetAmountInCoversOutput(t *testing.T) {
	reserveIn, reserveOut := ether(1234), ether(987)
	for _, out := range []*big.Int{big.NewInt(1), big.NewInt(997), ether(1), ether(500)} {
		in, err := GetAmountIn(out, reserveIn, reserveOut)
		require.NoError(t, err)

		got, err := GetAmountOut(in, reserveIn, reserveOut)
		require.NoError(t, err)
		assert.True(t, got.Cmp(out) >= 0, "amountIn %s yields %s < %s", in, got, out)
	}
}

func TestQuote(t *testing.T) {
	got, err := Quote(big.NewInt(100), big.NewInt(1000), big.NewInt(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Int64())

	_, err = Quote(big.NewInt(0), big.NewInt(1000), big.NewInt(2000))
	assert.ErrorIs(t, err, ErrInsufficientAmount)

	_, err = Quote(big.NewInt(1), big.NewInt(0), big.NewInt(2000))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSortTokens(t *testing.T) {
	t0, t1, err := SortTokens(tokenB, tokenA)
	require.NoError(t, err)
	assert.Equal(t, tokenA, t0)
	assert.Equal(t, tokenB, t1)

	_, _, err = SortTokens(tokenA, tokenA)
	assert.ErrorIs(t, err, ErrIdenticalTokens)

	_, _, err = SortTokens(common.Address{}, tokenA)
	assert.ErrorIs(t, err, ErrZeroToken)
}

func TestPairFor(t *testing.T) {
	got := PairFor(factoryAddr, tokenB, tokenA)
	assert.Equal(t, got, PairFor(factoryAddr, tokenA, tokenB))

	salt := crypto.Keccak256(tokenA.Bytes(), tokenB.Bytes())
	hash := crypto.Keccak256([]byte{0xff}, factoryAddr.Bytes(), salt, PairInitCodeHash)
	assert.Equal(t, common.BytesToAddress(hash[12:]), got)

	assert.NotEqual(t, got, PairFor(routerAddr, tokenA, tokenB))
}
