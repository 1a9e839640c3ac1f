// Package indexer keeps a bounded, queryable window of recent ledger events.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/miniswap/events"
	"go.uber.org/zap"
)

type IndexConfig struct {
	// MaxSize bounds the number of cached events
	MaxSize int
	// PerPair bounds each pair's history; zero means MaxSize
	PerPair       int
	PruneInterval time.Duration
}

// Reserves is the last synced state of a pair
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
	Seq      uint64
}

type EventIndexer struct {
	config   *IndexConfig
	logger   *zap.Logger
	cache    *lru.Cache
	byPair   map[common.Address][]uint64
	reserves map[common.Address]Reserves
	mu       sync.RWMutex
}

func NewEventIndexer(config *IndexConfig, logger *zap.Logger) (*EventIndexer, error) {
	cache, err := lru.New(config.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	if config.PerPair <= 0 {
		config.PerPair = config.MaxSize
	}

	return &EventIndexer{
		config:   config,
		logger:   logger,
		cache:    cache,
		byPair:   make(map[common.Address][]uint64),
		reserves: make(map[common.Address]Reserves),
	}, nil
}

// EventID hashes the canonical encoding of r
func EventID(r events.Record) (uint64, error) {
	data, err := r.MarshalJSON()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// Index is an events.Handler
func (i *EventIndexer) Index(r events.Record) {
	id, err := EventID(r)
	if err != nil {
		i.logger.Warn("Failed to index event",
			zap.Uint64("seq", r.Seq),
			zap.String("event", r.Event.EventName()),
			zap.Error(err))
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.cache.Add(id, r)

	pair := r.Event.Source()
	ids := append(i.byPair[pair], id)
	if len(ids) > i.config.PerPair {
		ids = ids[len(ids)-i.config.PerPair:]
	}
	i.byPair[pair] = ids

	if ev, ok := r.Event.(*events.Sync); ok {
		i.reserves[pair] = Reserves{
			Reserve0: new(big.Int).Set(ev.Reserve0),
			Reserve1: new(big.Int).Set(ev.Reserve1),
			Seq:      r.Seq,
		}
	}
}

// Get returns a cached event by ID
func (i *EventIndexer) Get(id uint64) (events.Record, bool) {
	v, ok := i.cache.Get(id)
	if !ok {
		return events.Record{}, false
	}
	return v.(events.Record), true
}

// Recent returns up to n of pair's cached events, newest first
func (i *EventIndexer) Recent(pair common.Address, n int) []events.Record {
	i.mu.RLock()
	defer i.mu.RUnlock()

	ids := i.byPair[pair]
	out := make([]events.Record, 0, n)
	for k := len(ids) - 1; k >= 0 && len(out) < n; k-- {
		if v, ok := i.cache.Peek(ids[k]); ok {
			out = append(out, v.(events.Record))
		}
	}
	return out
}

// Len returns the number of cached events
func (i *EventIndexer) Len() int {
	return i.cache.Len()
}

// Reserves returns the last synced reserves of pair. Reserves survive cache
// eviction.
func (i *EventIndexer) Reserves(pair common.Address) (Reserves, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	r, ok := i.reserves[pair]
	if !ok {
		return Reserves{}, false
	}
	return Reserves{
		Reserve0: new(big.Int).Set(r.Reserve0),
		Reserve1: new(big.Int).Set(r.Reserve1),
		Seq:      r.Seq,
	}, true
}

// Pairs returns every pair seen so far
func (i *EventIndexer) Pairs() []common.Address {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]common.Address, 0, len(i.byPair))
	for pair := range i.byPair {
		out = append(out, pair)
	}
	return out
}

// prune drops history entries whose events the cache has evicted
func (i *EventIndexer) prune() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	dropped := 0
	for pair, ids := range i.byPair {
		kept := ids[:0]
		for _, id := range ids {
			if i.cache.Contains(id) {
				kept = append(kept, id)
			}
		}
		dropped += len(ids) - len(kept)
		i.byPair[pair] = kept
	}
	return dropped
}

func (i *EventIndexer) StartPruning(ctx context.Context) {
	ticker := time.NewTicker(i.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := i.prune(); n > 0 {
				i.logger.Debug("Pruned evicted events", zap.Int("count", n))
			}
		}
	}
}
