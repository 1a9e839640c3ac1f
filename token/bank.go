// Package token implements an in-process multi-asset custody ledger.
//
// Every mutation runs inside a txn transaction and stays private to it until
// it commits. Debits reserve the debited amount at once, so no other call
// chain can spend it; credits cannot be spent by others before they commit.
// Committed balances and supply change together, so every observer sees
// sum(balances) == totalSupply.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/miniswap/dex"
	"github.com/michaelpento.lv/miniswap/txn"
)

var (
	ErrUnknownToken          = errors.New("token: unknown token")
	ErrTokenExists           = errors.New("token: token already issued")
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrNegativeAmount        = errors.New("token: negative amount")
)

// NativeAddress identifies the host's native value inside the bank
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// MaxUint256 is treated as an infinite allowance
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Option configures an issued asset
type Option func(*asset)

// WithDecimals sets the display precision
func WithDecimals(decimals uint8) Option {
	return func(a *asset) { a.decimals = decimals }
}

// WithTransferFee burns bps/10000 of every transfer
func WithTransferFee(bps uint16) Option {
	return func(a *asset) { a.feeBps = bps }
}

type allowanceKey struct {
	owner, spender common.Address
}

type balanceKey struct {
	token, holder common.Address
}

type asset struct {
	address    common.Address
	symbol     string
	decimals   uint8
	feeBps     uint16
	supply     *big.Int
	balances   map[common.Address]*big.Int
	reserved   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

func (a *asset) balance(holder common.Address) *big.Int {
	if v, ok := a.balances[holder]; ok {
		return v
	}
	v := new(big.Int)
	a.balances[holder] = v
	return v
}

// Bank holds every asset's balances, allowances, and supply
type Bank struct {
	mu     sync.RWMutex
	assets map[common.Address]*asset
}

// NewBank creates an empty bank
func NewBank() *Bank {
	return &Bank{assets: make(map[common.Address]*asset)}
}

// Issue registers a new asset at addr
func (b *Bank) Issue(addr common.Address, symbol string, opts ...Option) (*ERC20, error) {
	a := &asset{
		address:    addr,
		symbol:     symbol,
		decimals:   18,
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		reserved:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
	for _, opt := range opts {
		opt(a)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.assets[addr]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, addr.Hex())
	}
	b.assets[addr] = a

	return &ERC20{bank: b, address: addr, symbol: symbol, decimals: a.decimals}, nil
}

// ERC20 returns the handle of an issued asset
func (b *Bank) ERC20(addr common.Address) (*ERC20, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return &ERC20{bank: b, address: addr, symbol: a.symbol, decimals: a.decimals}, nil
}

// Token implements dex.Custody
func (b *Bank) Token(addr common.Address) (dex.Token, error) {
	t, err := b.ERC20(addr)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewShareToken implements dex.Custody. The issuance is undone if the
// transaction carried by ctx rolls back.
func (b *Bank) NewShareToken(ctx context.Context, addr common.Address, symbol string) (dex.MintableToken, error) {
	var tok *ERC20
	err := txn.Run(ctx, func(ctx context.Context) error {
		var err error
		tok, err = b.Issue(addr, symbol)
		if err != nil {
			return err
		}
		txn.Current(ctx).Journal(func() {
			b.mu.Lock()
			delete(b.assets, addr)
			b.mu.Unlock()
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// pending is a transaction's effects that are not yet visible to other chains
type pending struct {
	bank    *Bank
	credits map[balanceKey]*big.Int
	debits  map[balanceKey]*big.Int
	supply  map[common.Address]*big.Int
}

func entry[K comparable](m map[K]*big.Int, k K) *big.Int {
	if v, ok := m[k]; ok {
		return v
	}
	v := new(big.Int)
	m[k] = v
	return v
}

// Commit settles the debits and credits and applies the supply changes
func (p *pending) Commit() {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()

	for k, v := range p.debits {
		if v.Sign() <= 0 {
			continue
		}
		if a, ok := p.bank.assets[k.token]; ok {
			bal := a.balance(k.holder)
			bal.Sub(bal, v)
			a.release(k.holder, v)
		}
	}
	for k, v := range p.credits {
		if v.Sign() <= 0 {
			continue
		}
		if a, ok := p.bank.assets[k.token]; ok {
			bal := a.balance(k.holder)
			bal.Add(bal, v)
		}
	}
	for addr, v := range p.supply {
		if a, ok := p.bank.assets[addr]; ok {
			a.supply.Add(a.supply, v)
		}
	}
}

func (b *Bank) pending(t *txn.Txn) *pending {
	return t.Local(b, func() any {
		return &pending{
			bank:    b,
			credits: make(map[balanceKey]*big.Int),
			debits:  make(map[balanceKey]*big.Int),
			supply:  make(map[common.Address]*big.Int),
		}
	}).(*pending)
}

// available returns what holder can still debit from the committed balance
func (a *asset) available(holder common.Address) *big.Int {
	out := new(big.Int)
	if v, ok := a.balances[holder]; ok {
		out.Set(v)
	}
	if r, ok := a.reserved[holder]; ok {
		out.Sub(out, r)
	}
	return out
}

func (a *asset) release(holder common.Address, amount *big.Int) {
	r, ok := a.reserved[holder]
	if !ok {
		return
	}
	r.Sub(r, amount)
	if r.Sign() <= 0 {
		delete(a.reserved, holder)
	}
}

func (b *Bank) asset(addr common.Address) (*asset, error) {
	a, ok := b.assets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return a, nil
}

// balanceOf returns the committed balance adjusted by the caller's pending
// credits and debits
func (b *Bank) balanceOf(ctx context.Context, token, holder common.Address) *big.Int {
	b.mu.RLock()
	out := new(big.Int)
	if a, ok := b.assets[token]; ok {
		if v, ok := a.balances[holder]; ok {
			out.Set(v)
		}
	}
	b.mu.RUnlock()

	if t := txn.Current(ctx); t != nil {
		p := b.pending(t)
		k := balanceKey{token, holder}
		if v, ok := p.credits[k]; ok {
			out.Add(out, v)
		}
		if v, ok := p.debits[k]; ok {
			out.Sub(out, v)
		}
	}
	return out
}

// totalSupply returns the committed supply adjusted by the caller's pending
// mints and burns
func (b *Bank) totalSupply(ctx context.Context, token common.Address) *big.Int {
	b.mu.RLock()
	out := new(big.Int)
	if a, ok := b.assets[token]; ok {
		out.Set(a.supply)
	}
	b.mu.RUnlock()

	if t := txn.Current(ctx); t != nil {
		if v, ok := b.pending(t).supply[token]; ok {
			out.Add(out, v)
		}
	}
	return out
}

func (b *Bank) credit(ctx context.Context, token, to common.Address, amount *big.Int) error {
	t := txn.Current(ctx)
	if t == nil {
		return txn.ErrNoTransaction
	}
	if amount.Sign() == 0 {
		return nil
	}

	p := b.pending(t)
	v := entry(p.credits, balanceKey{token, to})
	v.Add(v, amount)
	delta := new(big.Int).Set(amount)
	t.Journal(func() { v.Sub(v, delta) })
	return nil
}

func (b *Bank) debit(ctx context.Context, token, from common.Address, amount *big.Int) error {
	t := txn.Current(ctx)
	if t == nil {
		return txn.ErrNoTransaction
	}
	if amount.Sign() == 0 {
		return nil
	}

	p := b.pending(t)
	k := balanceKey{token, from}
	credit := new(big.Int)
	if v, ok := p.credits[k]; ok && v.Sign() > 0 {
		credit.Set(v)
	}

	b.mu.Lock()
	a, err := b.asset(token)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if new(big.Int).Add(a.available(from), credit).Cmp(amount) < 0 {
		b.mu.Unlock()
		return ErrInsufficientBalance
	}

	// pending credits are spent first, the rest is reserved from the
	// committed balance until commit
	take := new(big.Int).Set(credit)
	if take.Cmp(amount) > 0 {
		take.Set(amount)
	}
	rest := new(big.Int).Sub(amount, take)
	if rest.Sign() > 0 {
		r := entry(a.reserved, from)
		r.Add(r, rest)
	}
	b.mu.Unlock()

	if take.Sign() > 0 {
		v := p.credits[k]
		v.Sub(v, take)
		t.Journal(func() { v.Add(v, take) })
	}
	if rest.Sign() > 0 {
		d := entry(p.debits, k)
		d.Add(d, rest)
		t.Journal(func() {
			d.Sub(d, rest)
			b.mu.Lock()
			a.release(from, rest)
			b.mu.Unlock()
		})
	}
	return nil
}

func (b *Bank) adjustSupply(ctx context.Context, token common.Address, delta *big.Int) error {
	t := txn.Current(ctx)
	if t == nil {
		return txn.ErrNoTransaction
	}

	b.mu.RLock()
	_, err := b.asset(token)
	b.mu.RUnlock()
	if err != nil {
		return err
	}

	v := entry(b.pending(t).supply, token)
	v.Add(v, delta)
	d := new(big.Int).Set(delta)
	t.Journal(func() { v.Sub(v, d) })
	return nil
}

func (b *Bank) transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	b.mu.RLock()
	a, err := b.asset(token)
	var feeBps uint16
	if err == nil {
		feeBps = a.feeBps
	}
	b.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := b.debit(ctx, token, from, amount); err != nil {
		return err
	}

	received := new(big.Int).Set(amount)
	if feeBps > 0 {
		fee := new(big.Int).Mul(amount, big.NewInt(int64(feeBps)))
		fee.Quo(fee, big.NewInt(10000))
		if fee.Sign() > 0 {
			received.Sub(received, fee)
			if err := b.adjustSupply(ctx, token, new(big.Int).Neg(fee)); err != nil {
				return err
			}
		}
	}

	return b.credit(ctx, token, to, received)
}

func (b *Bank) allowance(token, owner, spender common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if a, ok := b.assets[token]; ok {
		if v, ok := a.allowances[allowanceKey{owner, spender}]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (b *Bank) setAllowance(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	t := txn.Current(ctx)
	if t == nil {
		return txn.ErrNoTransaction
	}

	b.mu.Lock()
	a, err := b.asset(token)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	key := allowanceKey{owner, spender}
	prev, had := a.allowances[key]
	a.allowances[key] = new(big.Int).Set(amount)
	b.mu.Unlock()

	t.Journal(func() {
		b.mu.Lock()
		if had {
			a.allowances[key] = prev
		} else {
			delete(a.allowances, key)
		}
		b.mu.Unlock()
	})
	return nil
}

func (b *Bank) spendAllowance(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	current := b.allowance(token, owner, spender)
	if current.Cmp(MaxUint256) == 0 {
		return nil
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	return b.setAllowance(ctx, token, owner, spender, current.Sub(current, amount))
}
