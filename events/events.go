// Package events defines the ledger's observable side effects and a
// synchronous fan-out bus that delivers them in commit order.
package events

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	NamePairCreated = "PairCreated"
	NameMint        = "Mint"
	NameBurn        = "Burn"
	NameSwap        = "Swap"
	NameSync        = "Sync"
)

// Event is emitted by the factory or a pair
type Event interface {
	EventName() string
	// Source is the pair the event concerns
	Source() common.Address
}

// PairCreated is emitted once per registered pair
type PairCreated struct {
	Token0         common.Address `json:"token0"`
	Token1         common.Address `json:"token1"`
	Pair           common.Address `json:"pair"`
	AllPairsLength int            `json:"allPairsLength"`
}

func (e *PairCreated) EventName() string      { return NamePairCreated }
func (e *PairCreated) Source() common.Address { return e.Pair }

// Mint is emitted when liquidity is added
type Mint struct {
	Pair    common.Address `json:"pair"`
	Sender  common.Address `json:"sender"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
}

func (e *Mint) EventName() string      { return NameMint }
func (e *Mint) Source() common.Address { return e.Pair }

// Burn is emitted when liquidity is removed
type Burn struct {
	Pair    common.Address `json:"pair"`
	Sender  common.Address `json:"sender"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
	To      common.Address `json:"to"`
}

func (e *Burn) EventName() string      { return NameBurn }
func (e *Burn) Source() common.Address { return e.Pair }

// Swap is emitted for every successful swap
type Swap struct {
	Pair       common.Address `json:"pair"`
	Sender     common.Address `json:"sender"`
	Amount0In  *big.Int       `json:"amount0In"`
	Amount1In  *big.Int       `json:"amount1In"`
	Amount0Out *big.Int       `json:"amount0Out"`
	Amount1Out *big.Int       `json:"amount1Out"`
	To         common.Address `json:"to"`
}

func (e *Swap) EventName() string      { return NameSwap }
func (e *Swap) Source() common.Address { return e.Pair }

// Sync is emitted whenever reserves are written
type Sync struct {
	Pair     common.Address `json:"pair"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
}

func (e *Sync) EventName() string      { return NameSync }
func (e *Sync) Source() common.Address { return e.Pair }

// Record is a published event with its bus sequence number
type Record struct {
	Seq   uint64 `json:"seq"`
	Event Event  `json:"-"`
}

type envelope struct {
	Seq     uint64          `json:"seq"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the record with its event type name
func (r Record) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(r.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Seq: r.Seq, Name: r.Event.EventName(), Payload: payload})
}

// UnmarshalJSON decodes a record produced by MarshalJSON
func (r *Record) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	ev, err := newEvent(env.Name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Name, err)
	}

	r.Seq = env.Seq
	r.Event = ev
	return nil
}

func newEvent(name string) (Event, error) {
	switch name {
	case NamePairCreated:
		return &PairCreated{}, nil
	case NameMint:
		return &Mint{}, nil
	case NameBurn:
		return &Burn{}, nil
	case NameSwap:
		return &Swap{}, nil
	case NameSync:
		return &Sync{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", name)
	}
}
