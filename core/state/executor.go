package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"guildhall/storage"
)

// Executor serializes every call against a world state. A call runs to
// completion while holding the lock; its writes are committed together or,
// when the call fails, reverted together.
type Executor struct {
	mu    sync.Mutex
	state *Manager
	hooks []func(committed bool)
}

// NewExecutor wraps db in a world state guarded by a single lock.
func NewExecutor(db storage.Database) *Executor {
	return &Executor{state: NewManager(db)}
}

// OnFinish registers fn to run at the end of every Execute call, still under
// the executor lock, in registration order. committed reports whether the
// call's writes reached the database.
func (e *Executor) OnFinish(fn func(committed bool)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// Execute runs fn as one transaction. Any returned error or panic discards all
// writes fn made.
func (e *Executor) Execute(fn func(*Manager) error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	committed := false
	defer func() {
		if committed {
			return
		}
		e.state.Discard()
		if r := recover(); r != nil {
			e.runHooks(false)
			panic(r)
		}
		e.runHooks(false)
	}()

	if err = fn(e.state); err != nil {
		return err
	}
	if err = e.state.Commit(); err != nil {
		return err
	}
	committed = true
	e.runHooks(true)
	return nil
}

// View runs fn against committed state. Writes fn attempts are discarded.
func (e *Executor) View(fn func(*Manager) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.state.Discard()
	return fn(e.state)
}

// Root returns the digest of committed state.
func (e *Executor) Root() (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Root()
}

func (e *Executor) runHooks(committed bool) {
	for _, hook := range e.hooks {
		hook(committed)
	}
}
