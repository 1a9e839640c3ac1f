// Package store persists committed ledger events in a LevelDB journal.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/michaelpento.lv/miniswap/events"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("store: journal closed")
	ErrOutOfOrder = errors.New("store: event sequence out of order")
)

var (
	eventPrefix = []byte("e")
	headKey     = []byte("h")
)

// Journal is an append-only log of events keyed by bus sequence number
type Journal struct {
	mu     sync.Mutex
	db     *leveldb.DB
	head   uint64
	closed bool
}

// Open opens or creates a journal at path
func Open(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	return newJournal(db)
}

// OpenMemory opens a journal that lives only as long as the process
func OpenMemory() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory journal: %w", err)
	}
	return newJournal(db)
}

func newJournal(db *leveldb.DB) (*Journal, error) {
	j := &Journal{db: db}

	data, err := db.Get(headKey, nil)
	switch {
	case err == leveldb.ErrNotFound:
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to read journal head: %w", err)
	default:
		j.head = binary.BigEndian.Uint64(data)
	}
	return j, nil
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// Append writes records in one batch. Sequence numbers must increase past
// the journal head.
func (j *Journal) Append(records ...events.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	batch := new(leveldb.Batch)
	head := j.head
	for _, r := range records {
		if r.Seq <= head {
			return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, r.Seq, head)
		}
		data, err := r.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", r.Seq, err)
		}
		batch.Put(eventKey(r.Seq), data)
		head = r.Seq
	}
	batch.Put(headKey, encodeSeq(head))

	if err := j.db.Write(batch, &opt.WriteOptions{Sync: false}); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	j.head = head
	return nil
}

// Handler returns an events.Handler that appends every record, logging
// failures since the bus cannot propagate them
func (j *Journal) Handler(logger *zap.Logger) events.Handler {
	return func(r events.Record) {
		if err := j.Append(r); err != nil {
			logger.Error("Failed to journal event",
				zap.Uint64("seq", r.Seq),
				zap.String("event", r.Event.EventName()),
				zap.Error(err))
		}
	}
}

// Get returns the record with sequence number seq
func (j *Journal) Get(seq uint64) (events.Record, bool, error) {
	var r events.Record

	data, err := j.db.Get(eventKey(seq), nil)
	if err == leveldb.ErrNotFound {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	if err := r.UnmarshalJSON(data); err != nil {
		return r, false, fmt.Errorf("failed to decode event %d: %w", seq, err)
	}
	return r, true, nil
}

// Replay calls fn for every record with a sequence number of at least from,
// in order, stopping at the first error
func (j *Journal) Replay(from uint64, fn func(events.Record) error) error {
	rng := util.BytesPrefix(eventPrefix)
	rng.Start = eventKey(from)

	iter := j.db.NewIterator(rng, nil)
	defer iter.Release()

	for iter.Next() {
		var r events.Record
		if err := r.UnmarshalJSON(iter.Value()); err != nil {
			return fmt.Errorf("failed to decode event at key %x: %w", iter.Key(), err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns the number of journaled records
func (j *Journal) Count() (int, error) {
	iter := j.db.NewIterator(util.BytesPrefix(eventPrefix), nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Head returns the highest journaled sequence number
func (j *Journal) Head() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.head
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
