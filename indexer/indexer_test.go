package indexer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	pairA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pairB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func syncEvent(pair common.Address, r0, r1 int64) *events.Sync {
	return &events.Sync{Pair: pair, Reserve0: big.NewInt(r0), Reserve1: big.NewInt(r1)}
}

func newIndexer(t *testing.T, config *IndexConfig) (*EventIndexer, *events.Bus) {
	t.Helper()

	indexer, err := NewEventIndexer(config, zaptest.NewLogger(t))
	require.NoError(t, err)

	bus := events.NewBus()
	bus.Subscribe(indexer.Index)
	return indexer, bus
}

func TestEventIndexer(t *testing.T) {
	indexer, bus := newIndexer(t, &IndexConfig{MaxSize: 100})

	bus.Publish(&events.PairCreated{Pair: pairA, AllPairsLength: 1})
	bus.Publish(syncEvent(pairA, 100, 200))
	bus.Publish(&events.Mint{Pair: pairA, Amount0: big.NewInt(100), Amount1: big.NewInt(200)})
	bus.Publish(syncEvent(pairB, 5, 5))
	bus.Publish(syncEvent(pairA, 110, 182))

	assert.Equal(t, 5, indexer.Len())
	assert.ElementsMatch(t, []common.Address{pairA, pairB}, indexer.Pairs())

	recent := indexer.Recent(pairA, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(5), recent[0].Seq)
	assert.Equal(t, uint64(3), recent[1].Seq)
	assert.Len(t, indexer.Recent(pairA, 10), 4)

	reserves, ok := indexer.Reserves(pairA)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(110), reserves.Reserve0)
	assert.Equal(t, big.NewInt(182), reserves.Reserve1)
	assert.Equal(t, uint64(5), reserves.Seq)

	_, ok = indexer.Reserves(common.Address{})
	assert.False(t, ok)

	id, err := EventID(recent[0])
	require.NoError(t, err)
	got, ok := indexer.Get(id)
	require.True(t, ok)
	assert.Equal(t, recent[0], got)
}

func TestEventIDIsStable(t *testing.T) {
	a := events.Record{Seq: 7, Event: syncEvent(pairA, 1, 2)}
	b := events.Record{Seq: 7, Event: syncEvent(pairA, 1, 2)}
	c := events.Record{Seq: 8, Event: syncEvent(pairA, 1, 2)}

	idA, err := EventID(a)
	require.NoError(t, err)
	idB, err := EventID(b)
	require.NoError(t, err)
	idC, err := EventID(c)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.NotEqual(t, idA, idC)
}

func TestEventIndexerEviction(t *testing.T) {
	indexer, bus := newIndexer(t, &IndexConfig{MaxSize: 3, PerPair: 10})

	for i := int64(1); i <= 5; i++ {
		bus.Publish(syncEvent(pairA, i, i))
	}

	assert.Equal(t, 3, indexer.Len())
	recent := indexer.Recent(pairA, 10)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(5), recent[0].Seq)
	assert.Equal(t, uint64(3), recent[2].Seq)

	assert.Equal(t, 2, indexer.prune())
	assert.Zero(t, indexer.prune())

	// reserves outlive the cached events
	reserves, ok := indexer.Reserves(pairA)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(5), reserves.Reserve0)
}

func TestPerPairBound(t *testing.T) {
	indexer, bus := newIndexer(t, &IndexConfig{MaxSize: 100, PerPair: 2})

	for i := int64(1); i <= 4; i++ {
		bus.Publish(syncEvent(pairA, i, i))
	}

	assert.Equal(t, 4, indexer.Len())
	assert.Len(t, indexer.Recent(pairA, 10), 2)
}

func TestStartPruning(t *testing.T) {
	indexer, bus := newIndexer(t, &IndexConfig{MaxSize: 1, PerPair: 10, PruneInterval: time.Millisecond})
	bus.Publish(syncEvent(pairA, 1, 1))
	bus.Publish(syncEvent(pairA, 2, 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		indexer.StartPruning(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		indexer.mu.RLock()
		defer indexer.mu.RUnlock()
		return len(indexer.byPair[pairA]) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
