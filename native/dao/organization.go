package dao

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"guildhall/core/clock"
	"guildhall/core/events"
	"guildhall/core/state"
	"guildhall/core/types"
	"guildhall/crypto"
	"guildhall/native/adapters"
	nativecommon "guildhall/native/common"
	"guildhall/native/treasury"
)

var (
	initializedKey = []byte("dao/initialized")
	founderKey     = []byte("dao/founder")

	errNoAddress = errors.New("dao: organization address required")
	errNoFounder = errors.New("dao: founder address required")
)

// Config describes how an organization is opened.
type Config struct {
	Address crypto.Address
	Founder crypto.Address
	Clock   clock.Clock
	Emitter events.Emitter
	Logger  *slog.Logger
	Pauses  nativecommon.PauseView
}

// Organization is the root of one DAO's state: its treasury ledger, proposal
// registry and adapter registry. All of it lives under a key prefix of the
// shared world state so several organizations can coexist.
type Organization struct {
	addr     crypto.Address
	founder  crypto.Address
	world    *state.Executor
	clock    clock.Clock
	emitter  events.Emitter
	logger   *slog.Logger
	pauses   nativecommon.PauseView
	registry *adapters.Registry

	// pending is only touched while the world executor lock is held.
	pending []events.Event

	mu      sync.RWMutex
	history []*types.Event
}

// Namespace returns the world-state prefix that holds the organization at
// addr.
func Namespace(addr crypto.Address) string {
	return "dao/" + addr.Hex() + "/"
}

// Open binds an organization to world. A fresh organization grants its founder
// one voting share; an existing one is reloaded as persisted.
func Open(world *state.Executor, cfg Config) (*Organization, error) {
	if world == nil {
		return nil, fmt.Errorf("dao: world state required")
	}
	if cfg.Address.IsZero() {
		return nil, errNoAddress
	}
	o := &Organization{
		addr:     cfg.Address,
		founder:  cfg.Founder,
		world:    world,
		clock:    cfg.Clock,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
		pauses:   cfg.Pauses,
		registry: adapters.NewRegistry(cfg.Address),
	}
	if o.clock == nil {
		o.clock = clock.System{}
	}
	if o.emitter == nil {
		o.emitter = events.NoopEmitter{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("org", o.addr.String())
	world.OnFinish(o.finish)

	err := o.Execute(func(tx *Tx) error {
		var initialized bool
		ok, err := tx.view.KVGet(initializedKey, &initialized)
		if err != nil {
			return err
		}
		if ok && initialized {
			var founder [20]byte
			if _, err := tx.view.KVGet(founderKey, &founder); err != nil {
				return err
			}
			o.founder = founder
			return nil
		}
		if cfg.Founder.IsZero() {
			return errNoFounder
		}
		if err := tx.ledger.AddUnits(cfg.Founder, treasury.UnitShares, one()); err != nil {
			return err
		}
		if err := tx.view.KVPut(founderKey, [20]byte(cfg.Founder)); err != nil {
			return err
		}
		return tx.view.KVPut(initializedKey, true)
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("organization opened", "founder", o.founder.String())
	return o, nil
}

// Address returns the organization identifier. Token stakes are held by it.
func (o *Organization) Address() crypto.Address { return o.addr }

// Founder returns the account that received the first voting share.
func (o *Organization) Founder() crypto.Address { return o.founder }

// Adapters returns the organization's adapter registry.
func (o *Organization) Adapters() *adapters.Registry { return o.registry }

// Clock returns the injected time source.
func (o *Organization) Clock() clock.Clock { return o.clock }

// Logger returns the organization-scoped logger.
func (o *Organization) Logger() *slog.Logger { return o.logger }

// Paused reports whether module is paused for this organization.
func (o *Organization) Paused(module string) error {
	return nativecommon.Guard(o.pauses, module)
}

// Execute runs fn as one serialized transaction. Every write fn makes to the
// organization, the world tokens or the ledger is committed together or, when
// fn fails, discarded together. Events fn emits are published after the
// commit, in order.
func (o *Organization) Execute(fn func(tx *Tx) error) error {
	return o.world.Execute(func(m *state.Manager) error {
		return fn(o.newTx(m, emitterFunc(o.buffer)))
	})
}

// View runs fn against committed state without publishing anything.
func (o *Organization) View(fn func(tx *Tx) error) error {
	return o.world.View(func(m *state.Manager) error {
		return fn(o.newTx(m, events.NoopEmitter{}))
	})
}

// Root returns the digest of the committed world state.
func (o *Organization) Root() (common.Hash, error) {
	return o.world.Root()
}

// Events returns the payloads of every event the organization published, in
// publication order.
func (o *Organization) Events() []*types.Event {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*types.Event, len(o.history))
	for i, evt := range o.history {
		out[i] = evt.Clone()
	}
	return out
}

func (o *Organization) buffer(evt events.Event) {
	o.pending = append(o.pending, evt)
}

func (o *Organization) finish(committed bool) {
	pending := o.pending
	o.pending = nil
	if !committed || len(pending) == 0 {
		return
	}
	o.mu.Lock()
	for _, evt := range pending {
		if payload, ok := events.Payload(evt); ok {
			o.history = append(o.history, payload.Clone())
		}
	}
	o.mu.Unlock()
	for _, evt := range pending {
		o.emitter.Emit(evt)
	}
}

type emitterFunc func(events.Event)

func (f emitterFunc) Emit(evt events.Event) { f(evt) }
