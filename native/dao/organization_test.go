package dao

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"guildhall/core/clock"
	"guildhall/core/events"
	"guildhall/core/state"
	"guildhall/crypto"
	nativecommon "guildhall/native/common"
	"guildhall/native/proposals"
	"guildhall/native/treasury"
	"guildhall/storage"
)

var (
	orgA    = crypto.BytesToAddress([]byte("org-a"))
	orgB    = crypto.BytesToAddress([]byte("org-b"))
	founder = crypto.BytesToAddress([]byte("founder"))
	outside = crypto.BytesToAddress([]byte("outsider"))
)

func openOrg(t *testing.T, world *state.Executor, addr crypto.Address, rec events.Emitter) *Organization {
	t.Helper()
	org, err := Open(world, Config{
		Address: addr,
		Founder: founder,
		Clock:   clock.NewManual(time.Unix(1_700_000_000, 0)),
		Emitter: rec,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return org
}

func TestOpenGrantsFounderShare(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	org := openOrg(t, world, orgA, nil)
	shares, err := org.SharesOf(founder)
	if err != nil {
		t.Fatalf("shares: %v", err)
	}
	if shares.Uint64() != 1 {
		t.Fatalf("expected founder share, got %s", shares.Dec())
	}
	member, _ := org.IsMember(founder)
	stranger, _ := org.IsMember(outside)
	if !member || stranger {
		t.Fatalf("unexpected membership founder=%v outsider=%v", member, stranger)
	}
}

func TestOpenReloadsExistingState(t *testing.T) {
	db := storage.NewMemDB()
	org := openOrg(t, state.NewExecutor(db), orgA, nil)
	if err := org.Execute(func(tx *Tx) error {
		return tx.DepositEscrow(outside, treasury.Native(), uint256.NewInt(9))
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	reopened, err := Open(state.NewExecutor(db), Config{Address: orgA})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Founder() != founder {
		t.Fatalf("founder not reloaded")
	}
	shares, _ := reopened.SharesOf(founder)
	escrow, _ := reopened.BalanceOf(crypto.EscrowAddress, treasury.Native())
	if shares.Uint64() != 1 || escrow.Uint64() != 9 {
		t.Fatalf("unexpected reloaded state shares=%s escrow=%s", shares.Dec(), escrow.Dec())
	}
}

func TestOpenRequiresAddresses(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	if _, err := Open(world, Config{Founder: founder}); err == nil {
		t.Fatalf("expected missing address to fail")
	}
	if _, err := Open(world, Config{Address: orgA}); !errors.Is(err, errNoFounder) {
		t.Fatalf("expected missing founder to fail, got %v", err)
	}
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	rec := &events.Recorder{}
	org := openOrg(t, world, orgA, rec)
	before, _ := org.Root()

	errBoom := errors.New("boom")
	err := org.Execute(func(tx *Tx) error {
		if err := tx.DepositEscrow(outside, treasury.Native(), uint256.NewInt(5)); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	after, _ := org.Root()
	if before != after {
		t.Fatalf("failed transaction changed state")
	}
	if len(rec.Events()) != 0 || len(org.Events()) != 0 {
		t.Fatalf("failed transaction published events")
	}
}

func TestEventsPublishedAfterCommitInOrder(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	rec := &events.Recorder{}
	org := openOrg(t, world, orgA, rec)

	err := org.Execute(func(tx *Tx) error {
		if err := tx.DepositEscrow(outside, treasury.Native(), uint256.NewInt(50)); err != nil {
			return err
		}
		if len(rec.Events()) != 0 {
			t.Fatalf("events must not escape before commit")
		}
		return tx.Payout(outside, treasury.Native(), uint256.NewInt(20), "remainder")
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	history := org.Events()
	if len(history) != 2 || history[0].Type != events.TypeStakeReceived || history[1].Type != events.TypePayout {
		t.Fatalf("unexpected history %+v", history)
	}
	if len(rec.Events()) != 2 {
		t.Fatalf("expected emitter to see both events")
	}
	if err := org.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestOrganizationsCoexist(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	a := openOrg(t, world, orgA, nil)
	b := openOrg(t, world, orgB, nil)
	if err := a.Execute(func(tx *Tx) error {
		return tx.DepositEscrow(outside, treasury.Native(), uint256.NewInt(7))
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balA, _ := a.BalanceOf(crypto.EscrowAddress, treasury.Native())
	balB, _ := b.BalanceOf(crypto.EscrowAddress, treasury.Native())
	if balA.Uint64() != 7 || !balB.IsZero() {
		t.Fatalf("organizations share state: a=%s b=%s", balA.Dec(), balB.Dec())
	}
	if len(b.Events()) != 0 {
		t.Fatalf("events leaked across organizations")
	}
}

func TestPausedGuard(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	pauses := nativecommon.NewPauses(nativecommon.ModuleOnboarding)
	org, err := Open(world, Config{Address: orgA, Founder: founder, Pauses: pauses})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := org.Paused(nativecommon.ModuleOnboarding); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused onboarding, got %v", err)
	}
	if err := org.Paused(nativecommon.ModuleVoting); err != nil {
		t.Fatalf("voting should run: %v", err)
	}
}

func TestIssuedLootCountsReservations(t *testing.T) {
	world := state.NewExecutor(storage.NewMemDB())
	org := openOrg(t, world, orgA, nil)
	err := org.Execute(func(tx *Tx) error {
		if err := tx.DepositEscrow(outside, treasury.Native(), uint256.NewInt(10)); err != nil {
			return err
		}
		if _, err := tx.SubmitProposal(outside, outside, treasury.Native(), uint256.NewInt(10), uint256.NewInt(4), proposalsPeriods()); err != nil {
			return err
		}
		issued, err := tx.IssuedLoot()
		if err != nil {
			return err
		}
		if issued.Uint64() != 4 {
			t.Fatalf("expected 4 reserved units, got %s", issued.Dec())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func proposalsPeriods() proposals.Periods {
	return proposals.Periods{Voting: time.Minute, Grace: time.Minute}
}
