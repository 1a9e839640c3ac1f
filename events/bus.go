package events

import (
	"sync"

	"go.uber.org/zap"
)

// Handler consumes published records. Handlers run synchronously on the
// publishing goroutine and must not call back into the ledger.
type Handler func(Record)

// Bus delivers events to every subscriber in publication order
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler

	pubMu sync.Mutex
	seq   uint64
}

// NewBus creates a bus with no subscribers
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a handler
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish assigns the next sequence number and delivers ev. A nil Bus
// discards events.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.seq++
	rec := Record{Seq: b.seq, Event: ev}

	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(rec)
	}
}

// Seq returns the last assigned sequence number
func (b *Bus) Seq() uint64 {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.seq
}

// LogHandler writes every event to logger at debug level, swaps at info
func LogHandler(logger *zap.Logger) Handler {
	return func(rec Record) {
		fields := []zap.Field{
			zap.Uint64("seq", rec.Seq),
			zap.String("pair", rec.Event.Source().Hex()),
		}

		switch ev := rec.Event.(type) {
		case *PairCreated:
			logger.Info("Pair created", append(fields,
				zap.String("token0", ev.Token0.Hex()),
				zap.String("token1", ev.Token1.Hex()),
				zap.Int("all_pairs", ev.AllPairsLength),
			)...)
		case *Mint:
			logger.Info("Liquidity added", append(fields,
				zap.String("sender", ev.Sender.Hex()),
				zap.String("amount0", ev.Amount0.String()),
				zap.String("amount1", ev.Amount1.String()),
			)...)
		case *Burn:
			logger.Info("Liquidity removed", append(fields,
				zap.String("sender", ev.Sender.Hex()),
				zap.String("amount0", ev.Amount0.String()),
				zap.String("amount1", ev.Amount1.String()),
				zap.String("to", ev.To.Hex()),
			)...)
		case *Swap:
			logger.Info("Swap", append(fields,
				zap.String("sender", ev.Sender.Hex()),
				zap.String("amount0_in", ev.Amount0In.String()),
				zap.String("amount1_in", ev.Amount1In.String()),
				zap.String("amount0_out", ev.Amount0Out.String()),
				zap.String("amount1_out", ev.Amount1Out.String()),
				zap.String("to", ev.To.Hex()),
			)...)
		case *Sync:
			logger.Debug("Reserves synced", append(fields,
				zap.String("reserve0", ev.Reserve0.String()),
				zap.String("reserve1", ev.Reserve1.String()),
			)...)
		default:
			logger.Debug("Event", append(fields, zap.String("name", rec.Event.EventName()))...)
		}
	}
}
