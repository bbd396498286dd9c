package node

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"guildhall/config"
	"guildhall/core/clock"
	"guildhall/core/events"
	"guildhall/core/state"
	nativecommon "guildhall/native/common"
	"guildhall/native/dao"
	"guildhall/native/onboarding"
	"guildhall/native/token"
	"guildhall/native/voting"
	"guildhall/observability"
	"guildhall/services/guildd/archive"
	"guildhall/storage"
)

// Node is one organization with its adapters, served from a single world
// state.
type Node struct {
	DB         storage.Database
	World      *state.Executor
	Org        *dao.Organization
	Voting     *voting.Adapter
	Onboarding *onboarding.Adapter
	Pauses     *nativecommon.Pauses
	Archive    *archive.Archive
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Options override parts of the assembly, mainly for tests.
type Options struct {
	Clock  clock.Clock
	DB     storage.Database
	Logger *slog.Logger
}

type publishedCounter struct{}

func (publishedCounter) Emit(evt events.Event) {
	if evt != nil {
		observability.Events().RecordPublished(evt.EventType())
	}
}

func openDB(cfg *config.Config) (storage.Database, error) {
	if cfg.Node.InMemory {
		return storage.NewMemLevelDB()
	}
	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return storage.NewLevelDB(cfg.Node.DataDir)
}

// Open builds the node described by cfg.
func Open(cfg *config.Config, opts Options) (*Node, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{Clock: opts.Clock, Logger: logger, DB: opts.DB}
	if n.Clock == nil {
		n.Clock = clock.System{}
	}
	if n.DB == nil {
		db, err := openDB(cfg)
		if err != nil {
			return nil, err
		}
		n.DB = db
	}
	n.World = state.NewExecutor(n.DB)
	n.Pauses = nativecommon.NewPauses(cfg.Pauses.PausedModules()...)

	emitters := events.Multi{publishedCounter{}}
	if cfg.Archive.Enabled {
		a, err := archive.Open(cfg.Archive.DSN, logger)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.Archive = a
		emitters = append(emitters, a)
	}

	orgAddr, founder, err := cfg.Addresses()
	if err != nil {
		n.Close()
		return nil, err
	}
	n.Org, err = dao.Open(n.World, dao.Config{
		Address: orgAddr,
		Founder: founder,
		Clock:   n.Clock,
		Emitter: emitters,
		Logger:  logger,
		Pauses:  n.Pauses,
	})
	if err != nil {
		n.Close()
		return nil, err
	}
	if n.Voting, err = voting.Register(n.Org); err != nil {
		n.Close()
		return nil, err
	}
	obCfg, err := cfg.OnboardingConfig()
	if err != nil {
		n.Close()
		return nil, err
	}
	if n.Onboarding, err = onboarding.Register(n.Org, obCfg); err != nil {
		n.Close()
		return nil, err
	}
	if !obCfg.Asset.IsNative() {
		if err := n.bootstrapToken(cfg, obCfg); err != nil {
			n.Close()
			return nil, err
		}
	}
	return n, nil
}

// bootstrapToken records the stake token metadata and its initial
// allocations the first time the node starts.
func (n *Node) bootstrapToken(cfg *config.Config, obCfg onboarding.Config) error {
	allocations, err := cfg.TokenAllocations()
	if err != nil {
		return err
	}
	return n.Org.Execute(func(tx *dao.Tx) error {
		tok := tx.Token(obCfg.Asset.Token)
		if _, ok, err := tok.Metadata(); err != nil {
			return err
		} else if ok {
			return nil
		}
		meta := token.Metadata{Name: cfg.Token.Name, Symbol: cfg.Token.Symbol, Decimals: cfg.Token.Decimals}
		if err := tok.SetMetadata(meta); err != nil {
			return err
		}
		for _, alloc := range allocations {
			if err := tok.Mint(alloc.Account, alloc.Amount); err != nil {
				return fmt.Errorf("token allocation %s: %w", alloc.Account, err)
			}
		}
		n.Logger.Info("stake token created", "token", obCfg.Asset.Token.String(), "symbol", meta.Symbol, "allocations", len(allocations))
		return nil
	})
}

// Close releases the archive and the database.
func (n *Node) Close() error {
	var errs []error
	if n.Archive != nil {
		errs = append(errs, n.Archive.Close())
	}
	if n.DB != nil {
		errs = append(errs, n.DB.Close())
	}
	return errors.Join(errs...)
}
