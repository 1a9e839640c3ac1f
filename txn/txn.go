// Package txn provides all-or-nothing execution for in-process ledger calls.
//
// A transaction travels inside a context.Context. The outermost Run opens it;
// nested Runs open savepoints. Mutations register undo closures with Journal,
// and everything registered after a savepoint is unwound when the nested call
// fails. Resources locked through a transaction stay locked until the
// outermost Run returns, so no other call chain can build on state that may
// still be rolled back.
//
// Only a transaction that holds no locks yet waits for one. Once it holds
// any, contention fails at once with ErrWouldBlock, so two chains that lock
// in different orders abort instead of waiting on each other. AcquireAll
// takes a set of locks in the caller's order, waiting as needed, when it is
// the transaction's first acquisition.
package txn

import (
	"context"
	"errors"
	"sync"
)

// ErrNoTransaction is returned when an operation that needs a transaction
// is called with a context that carries none.
var ErrNoTransaction = errors.New("txn: no transaction in context")

// ErrWouldBlock is returned when a transaction that already holds locks
// finds the next one taken by another call chain.
var ErrWouldBlock = errors.New("txn: resource held by another transaction")

type ctxKey struct{}

// Resource is a lock that a transaction can hold.
type Resource interface {
	Lock(ctx context.Context) error
	TryLock() bool
	Unlock()
}

// Committer is implemented by transaction-local values that need to flush
// state when the outermost transaction commits.
type Committer interface {
	Commit()
}

// Txn is a single call chain's unit of work.
type Txn struct {
	mu       sync.Mutex
	undo     []func()
	hooks    []func()
	locals   map[any]any
	order    []any
	held     map[Resource]struct{}
	acquired []Resource
	entered  map[Resource]struct{}
}

type savepoint struct {
	undo  int
	hooks int
}

// Current returns the transaction carried by ctx, or nil.
func Current(ctx context.Context) *Txn {
	t, _ := ctx.Value(ctxKey{}).(*Txn)
	return t
}

// Run executes fn atomically. If ctx already carries a transaction, fn runs
// under a savepoint of it; otherwise a new transaction is opened and committed
// when fn succeeds. On error (or panic) every effect journaled by fn is undone.
func Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if t := Current(ctx); t != nil {
		sp := t.savepoint()
		defer func() {
			if r := recover(); r != nil {
				t.revertTo(sp)
				panic(r)
			}
			if err != nil {
				t.revertTo(sp)
			}
		}()
		return fn(ctx)
	}

	t := &Txn{
		locals:  make(map[any]any),
		held:    make(map[Resource]struct{}),
		entered: make(map[Resource]struct{}),
	}
	ctx = context.WithValue(ctx, ctxKey{}, t)

	defer func() {
		if r := recover(); r != nil {
			t.revertTo(savepoint{})
			t.release()
			panic(r)
		}
		if err != nil {
			t.revertTo(savepoint{})
		} else {
			t.commit()
		}
		t.release()
	}()

	return fn(ctx)
}

// Journal registers an undo closure for an effect that has already been applied.
func (t *Txn) Journal(undo func()) {
	t.mu.Lock()
	t.undo = append(t.undo, undo)
	t.mu.Unlock()
}

// OnCommit registers fn to run after the outermost transaction commits.
// Hooks registered inside a failed savepoint are discarded.
func (t *Txn) OnCommit(fn func()) {
	t.mu.Lock()
	t.hooks = append(t.hooks, fn)
	t.mu.Unlock()
}

// Local returns the transaction-local value stored under key, creating it
// with init on first use. Values implementing Committer are committed in
// creation order before commit hooks run.
func (t *Txn) Local(key any, init func() any) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.locals[key]; ok {
		return v
	}
	v := init()
	t.locals[key] = v
	t.order = append(t.order, key)
	return v
}

// Lookup returns the transaction-local value stored under key without
// creating it.
func (t *Txn) Lookup(key any) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.locals[key]
	return v, ok
}

// Acquire locks r for the rest of the transaction. Acquiring a resource the
// transaction already holds is a no-op.
func (t *Txn) Acquire(ctx context.Context, r Resource) error {
	return t.AcquireAll(ctx, r)
}

// AcquireAll locks rs in the given order for the rest of the transaction.
// Callers that lock several resources at once must pass them in one global
// order; the transaction may only wait if it held nothing beforehand.
func (t *Txn) AcquireAll(ctx context.Context, rs ...Resource) error {
	t.mu.Lock()
	wait := len(t.acquired) == 0
	t.mu.Unlock()

	for _, r := range rs {
		if t.Holds(r) {
			continue
		}

		if wait {
			if err := r.Lock(ctx); err != nil {
				return err
			}
		} else if !r.TryLock() {
			return ErrWouldBlock
		}

		t.mu.Lock()
		t.held[r] = struct{}{}
		t.acquired = append(t.acquired, r)
		t.mu.Unlock()
	}
	return nil
}

// Holds reports whether the transaction holds r.
func (t *Txn) Holds(r Resource) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[r]
	return ok
}

// Enter acquires r and marks it as executing. A second Enter of the same
// resource before the returned exit func runs fails with errLocked. The exit
// func must always be called.
func Enter(ctx context.Context, r Resource, errLocked error) (func(), error) {
	t := Current(ctx)
	if t == nil {
		return nil, ErrNoTransaction
	}

	t.mu.Lock()
	if _, ok := t.entered[r]; ok {
		t.mu.Unlock()
		return nil, errLocked
	}
	t.mu.Unlock()

	if err := t.Acquire(ctx, r); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.entered[r] = struct{}{}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.entered, r)
		t.mu.Unlock()
	}, nil
}

func (t *Txn) savepoint() savepoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return savepoint{undo: len(t.undo), hooks: len(t.hooks)}
}

func (t *Txn) revertTo(sp savepoint) {
	t.mu.Lock()
	undo := t.undo[sp.undo:]
	t.undo = t.undo[:sp.undo]
	t.hooks = t.hooks[:sp.hooks]
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

func (t *Txn) commit() {
	t.mu.Lock()
	locals := make([]any, 0, len(t.order))
	for _, key := range t.order {
		locals = append(locals, t.locals[key])
	}
	hooks := t.hooks
	t.undo = nil
	t.hooks = nil
	t.mu.Unlock()

	for _, v := range locals {
		if c, ok := v.(Committer); ok {
			c.Commit()
		}
	}
	for _, fn := range hooks {
		fn()
	}
}

func (t *Txn) release() {
	t.mu.Lock()
	acquired := t.acquired
	t.acquired = nil
	t.held = make(map[Resource]struct{})
	t.mu.Unlock()

	for i := len(acquired) - 1; i >= 0; i-- {
		acquired[i].Unlock()
	}
}
