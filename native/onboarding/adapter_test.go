package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"guildhall/core/clock"
	coreerrors "guildhall/core/errors"
	"guildhall/core/events"
	"guildhall/core/state"
	"guildhall/core/types"
	"guildhall/crypto"
	"guildhall/native/adapters"
	nativecommon "guildhall/native/common"
	"guildhall/native/dao"
	"guildhall/native/proposals"
	"guildhall/native/treasury"
	"guildhall/native/voting"
	"guildhall/storage"
)

const (
	chunkPrice   = 120_000_000_000_000_000
	lootPerChunk = 1_000_000_000_000_000
	votingPeriod = time.Hour
	gracePeriod  = 30 * time.Minute
)

var (
	orgAddr   = crypto.BytesToAddress([]byte("guild-org"))
	founder   = crypto.BytesToAddress([]byte("founder"))
	proposer  = crypto.BytesToAddress([]byte("proposer"))
	outsider  = crypto.BytesToAddress([]byte("outsider"))
	tokenAddr = crypto.BytesToAddress([]byte("stake-token"))
)

type harness struct {
	org     *dao.Organization
	adapter *Adapter
	voting  *voting.Adapter
	clock   *clock.Manual
	pauses  *nativecommon.Pauses
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	c := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	pauses := nativecommon.NewPauses()
	org, err := dao.Open(state.NewExecutor(storage.NewMemDB()), dao.Config{
		Address: orgAddr,
		Founder: founder,
		Clock:   c,
		Pauses:  pauses,
	})
	if err != nil {
		t.Fatalf("open organization: %v", err)
	}
	v, err := voting.Register(org)
	if err != nil {
		t.Fatalf("register voting: %v", err)
	}
	a, err := Register(org, cfg)
	if err != nil {
		t.Fatalf("register onboarding: %v", err)
	}
	return &harness{org: org, adapter: a, voting: v, clock: c, pauses: pauses}
}

func nativeConfig() Config {
	return Config{
		UnitPrice:     uint256.NewInt(chunkPrice),
		UnitsPerChunk: uint256.NewInt(lootPerChunk),
		MaxUnits:      uint256.NewInt(1_000_000_000_000_000_000),
		VotingPeriod:  votingPeriod,
		GracePeriod:   gracePeriod,
		Asset:         treasury.Native(),
	}
}

func tokenConfig() Config {
	return Config{
		UnitPrice:     uint256.NewInt(10),
		UnitsPerChunk: uint256.NewInt(100_000_000),
		MaxUnits:      uint256.NewInt(100_000_000),
		VotingPeriod:  votingPeriod,
		GracePeriod:   gracePeriod,
		Asset:         treasury.Token(tokenAddr),
	}
}

func (h *harness) mint(t *testing.T, to crypto.Address, amount uint64) {
	t.Helper()
	if err := h.org.Execute(func(tx *dao.Tx) error {
		return tx.Token(tokenAddr).Mint(to, uint256.NewInt(amount))
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (h *harness) approve(t *testing.T, owner, spender crypto.Address, amount uint64) {
	t.Helper()
	if err := h.org.Execute(func(tx *dao.Tx) error {
		return tx.Token(tokenAddr).Approve(owner, spender, uint256.NewInt(amount))
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (h *harness) tokenBalance(t *testing.T, owner crypto.Address) uint64 {
	t.Helper()
	var out uint64
	if err := h.org.View(func(tx *dao.Tx) error {
		bal, err := tx.Token(tokenAddr).BalanceOf(owner)
		if err != nil {
			return err
		}
		out = bal.Uint64()
		return nil
	}); err != nil {
		t.Fatalf("token balance: %v", err)
	}
	return out
}

func (h *harness) loot(t *testing.T, account crypto.Address) *uint256.Int {
	t.Helper()
	bal, err := h.org.LootBalanceOf(account)
	if err != nil {
		t.Fatalf("loot balance: %v", err)
	}
	return bal
}

func (h *harness) balance(t *testing.T, account crypto.Address, asset treasury.AssetKind) *uint256.Int {
	t.Helper()
	bal, err := h.org.BalanceOf(account, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

// approveAndWait sponsors id, votes with the founder and moves the clock past
// the grace period.
func (h *harness) approveAndWait(t *testing.T, id uint64, choice adapters.Choice) {
	t.Helper()
	ctx := context.Background()
	if err := h.adapter.SponsorProposal(ctx, adapters.Call{Caller: founder}, id, nil); err != nil {
		t.Fatalf("sponsor: %v", err)
	}
	if err := h.voting.SubmitVote(ctx, adapters.Call{Caller: founder}, id, choice); err != nil {
		t.Fatalf("vote: %v", err)
	}
	h.clock.Advance(votingPeriod + gracePeriod)
}

func TestNativeOnboardingIssuesLootForWholeChunks(t *testing.T) {
	h := newHarness(t, nativeConfig())
	ctx := context.Background()

	value := uint256.NewInt(3*chunkPrice + 5)
	id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer, Value: value}, uint256.NewInt(1))
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected first proposal id 0, got %d", id)
	}
	escrow := h.balance(t, crypto.EscrowAddress, treasury.Native())
	if escrow.Uint64() != 3*chunkPrice {
		t.Fatalf("expected escrow to hold 3 chunks, got %s", escrow.Dec())
	}

	h.approveAndWait(t, id, adapters.ChoiceYes)
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: outsider}, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := h.loot(t, proposer); got.Uint64() != 3*lootPerChunk {
		t.Fatalf("expected loot 3e15, got %s", got.Dec())
	}
	if got := h.balance(t, crypto.GuildAddress, treasury.Native()); got.Uint64() != 3*chunkPrice {
		t.Fatalf("expected guild 3.6e17, got %s", got.Dec())
	}
	if got := h.balance(t, crypto.EscrowAddress, treasury.Native()); !got.IsZero() {
		t.Fatalf("expected empty escrow, got %s", got.Dec())
	}
	if err := h.org.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}

	var remainder *types.Event
	for _, evt := range h.org.Events() {
		if evt.Type == events.TypePayout {
			remainder = evt
		}
	}
	if remainder == nil || remainder.Attr("amount") != "5" || remainder.Attr("reason") != "remainder" {
		t.Fatalf("expected remainder payout of 5, got %+v", remainder)
	}
}

func TestNativeOnboardingBelowPriceRejected(t *testing.T) {
	h := newHarness(t, nativeConfig())
	_, err := h.adapter.Onboard(context.Background(), adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice - 1)}, nil)
	if !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if got := h.balance(t, crypto.EscrowAddress, treasury.Native()); !got.IsZero() {
		t.Fatalf("rejected call left escrow %s", got.Dec())
	}
}

func TestTokenOnboardingAllowancePaths(t *testing.T) {
	h := newHarness(t, tokenConfig())
	ctx := context.Background()
	h.mint(t, proposer, 100)

	_, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer}, uint256.NewInt(10))
	if !errors.Is(err, coreerrors.ErrTransferNotAuthorized) {
		t.Fatalf("expected transfer not authorized, got %v", err)
	}
	if err.Error() != "ERC20 transfer not allowed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if coreerrors.Code(err) != "ERC20_TRANSFER_NOT_ALLOWED" {
		t.Fatalf("unexpected code %q", coreerrors.Code(err))
	}

	h.approve(t, proposer, h.adapter.Address(), 100)
	id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer}, uint256.NewInt(10))
	if err != nil {
		t.Fatalf("onboard via adapter allowance: %v", err)
	}
	if got := h.tokenBalance(t, orgAddr); got != 10 {
		t.Fatalf("expected organization to hold 10 tokens, got %d", got)
	}
	if got := h.tokenBalance(t, h.adapter.Address()); got != 0 {
		t.Fatalf("adapter must forward what it pulls, holds %d", got)
	}

	h.approveAndWait(t, id, adapters.ChoiceYes)
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: proposer}, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := h.loot(t, proposer); got.Uint64() != 100_000_000 {
		t.Fatalf("expected loot 1e8, got %s", got.Dec())
	}
	if got := h.balance(t, crypto.GuildAddress, treasury.Token(tokenAddr)); got.Uint64() != 10 {
		t.Fatalf("expected guild 10, got %s", got.Dec())
	}
}

func TestTokenOnboardingThroughOrganizationAllowance(t *testing.T) {
	h := newHarness(t, tokenConfig())
	h.mint(t, proposer, 100)
	h.approve(t, proposer, orgAddr, 10)

	if _, err := h.adapter.Onboard(context.Background(), adapters.Call{Caller: proposer}, uint256.NewInt(10)); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if got := h.tokenBalance(t, proposer); got != 90 {
		t.Fatalf("expected proposer to keep 90, got %d", got)
	}
	if got := h.tokenBalance(t, orgAddr); got != 10 {
		t.Fatalf("expected organization to hold 10, got %d", got)
	}
}

func TestTokenOnboardingRejectsNativeValue(t *testing.T) {
	h := newHarness(t, tokenConfig())
	h.mint(t, proposer, 100)
	h.approve(t, proposer, orgAddr, 10)
	_, err := h.adapter.Onboard(context.Background(), adapters.Call{Caller: proposer, Value: uint256.NewInt(1)}, uint256.NewInt(10))
	if !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestCapCountsReservationsAndRollsBackTokens(t *testing.T) {
	h := newHarness(t, tokenConfig())
	ctx := context.Background()
	h.mint(t, proposer, 100)
	h.approve(t, proposer, orgAddr, 100)

	if _, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer}, uint256.NewInt(10)); err != nil {
		t.Fatalf("first onboard: %v", err)
	}
	before, err := h.org.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	_, err = h.adapter.Onboard(ctx, adapters.Call{Caller: proposer}, uint256.NewInt(10))
	if !errors.Is(err, coreerrors.ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	after, err := h.org.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if before != after {
		t.Fatalf("failed onboarding changed state")
	}
	if got := h.tokenBalance(t, proposer); got != 90 {
		t.Fatalf("token pull was not rolled back, proposer holds %d", got)
	}
}

func TestProcessBeforeDeadline(t *testing.T) {
	h := newHarness(t, nativeConfig())
	ctx := context.Background()
	id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, nil)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: proposer}, id); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("expected invalid state before sponsor, got %v", err)
	}
	if err := h.adapter.SponsorProposal(ctx, adapters.Call{Caller: founder}, id, nil); err != nil {
		t.Fatalf("sponsor: %v", err)
	}
	h.clock.Advance(votingPeriod)
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: proposer}, id); !errors.Is(err, coreerrors.ErrVotingNotConcluded) {
		t.Fatalf("expected voting not concluded, got %v", err)
	}
	if got := h.loot(t, proposer); !got.IsZero() {
		t.Fatalf("early process issued loot %s", got.Dec())
	}
}

func TestDoubleProcessLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nativeConfig())
	ctx := context.Background()
	id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer, Value: uint256.NewInt(2 * chunkPrice)}, nil)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	h.approveAndWait(t, id, adapters.ChoiceYes)
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: proposer}, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	root, err := h.org.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	eventsBefore := len(h.org.Events())

	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: proposer}, id); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("expected invalid state on second process, got %v", err)
	}
	again, err := h.org.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if root != again {
		t.Fatalf("second process changed state root")
	}
	if len(h.org.Events()) != eventsBefore {
		t.Fatalf("second process published events")
	}
	if got := h.loot(t, proposer); got.Uint64() != 2*lootPerChunk {
		t.Fatalf("loot issued twice: %s", got.Dec())
	}
}

func TestFailedVoteRefundsStake(t *testing.T) {
	h := newHarness(t, tokenConfig())
	ctx := context.Background()
	h.mint(t, proposer, 100)
	h.approve(t, proposer, orgAddr, 10)
	id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer}, uint256.NewInt(10))
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	h.approveAndWait(t, id, adapters.ChoiceNo)
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: outsider}, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	p, err := h.org.Proposal(id)
	if err != nil {
		t.Fatalf("proposal: %v", err)
	}
	if p.Status != proposals.StatusProcessed || p.Outcome != adapters.OutcomeFailed {
		t.Fatalf("unexpected proposal state %s/%s", p.Status, p.Outcome)
	}
	if got := h.tokenBalance(t, proposer); got != 100 {
		t.Fatalf("expected full refund, proposer holds %d", got)
	}
	if got := h.loot(t, proposer); !got.IsZero() {
		t.Fatalf("failed vote issued loot %s", got.Dec())
	}
	if got := h.balance(t, crypto.GuildAddress, treasury.Token(tokenAddr)); !got.IsZero() {
		t.Fatalf("failed vote credited guild %s", got.Dec())
	}
	if err := h.org.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestSponsorRequiresMember(t *testing.T) {
	h := newHarness(t, nativeConfig())
	ctx := context.Background()
	id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, nil)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if err := h.adapter.SponsorProposal(ctx, adapters.Call{Caller: outsider}, id, nil); !errors.Is(err, coreerrors.ErrNotMember) {
		t.Fatalf("expected not member, got %v", err)
	}
	if err := h.adapter.SponsorProposal(ctx, adapters.Call{Caller: founder}, 42, nil); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOnboardingPaused(t *testing.T) {
	h := newHarness(t, nativeConfig())
	h.pauses.Set(nativecommon.ModuleOnboarding, true)
	_, err := h.adapter.Onboard(context.Background(), adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, nil)
	if !errors.Is(err, coreerrors.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
	h.pauses.Set(nativecommon.ModuleOnboarding, false)
	if _, err := h.adapter.Onboard(context.Background(), adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, nil); err != nil {
		t.Fatalf("onboard after resume: %v", err)
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	h := newHarness(t, nativeConfig())
	if _, err := h.adapter.Onboard(context.Background(), adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, nil); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	root, _ := h.org.Root()
	for i := 0; i < 3; i++ {
		h.loot(t, proposer)
		h.balance(t, crypto.EscrowAddress, treasury.Native())
		if _, err := h.org.Proposals(); err != nil {
			t.Fatalf("proposals: %v", err)
		}
	}
	again, _ := h.org.Root()
	if root != again {
		t.Fatalf("reads changed state")
	}
}

func TestOnboardApplicantGrantsToApplicant(t *testing.T) {
	h := newHarness(t, nativeConfig())
	ctx := context.Background()
	beneficiary := crypto.BytesToAddress([]byte("beneficiary"))
	id, err := h.adapter.OnboardApplicant(ctx, adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, beneficiary, nil)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	h.approveAndWait(t, id, adapters.ChoiceYes)
	if err := h.adapter.ProcessProposal(ctx, adapters.Call{Caller: proposer}, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := h.loot(t, beneficiary); got.Uint64() != lootPerChunk {
		t.Fatalf("expected beneficiary loot, got %s", got.Dec())
	}
	if got := h.loot(t, proposer); !got.IsZero() {
		t.Fatalf("proposer must not receive loot")
	}
}

func TestSubmissionEventsCarryIDsInOrder(t *testing.T) {
	h := newHarness(t, nativeConfig())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.adapter.Onboard(ctx, adapters.Call{Caller: proposer, Value: uint256.NewInt(chunkPrice)}, nil); err != nil {
			t.Fatalf("onboard %d: %v", i, err)
		}
	}
	var ids []string
	for _, evt := range h.org.Events() {
		if evt.Type == events.TypeProposalSubmitted {
			ids = append(ids, evt.Attr("proposalId"))
		}
	}
	if len(ids) != 3 || ids[0] != "0" || ids[1] != "1" || ids[2] != "2" {
		t.Fatalf("unexpected submission ids %v", ids)
	}
}

func TestConcurrentOnboardingAssignsUniqueIDs(t *testing.T) {
	const callers = 32
	h := newHarness(t, nativeConfig())
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]int)
		errs = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := crypto.BytesToAddress([]byte(fmt.Sprintf("applicant-%d", i)))
			id, err := h.adapter.Onboard(ctx, adapters.Call{Caller: caller, Value: uint256.NewInt(chunkPrice)}, nil)
			if err != nil {
				errs <- fmt.Errorf("onboard %d: %w", i, err)
				return
			}
			mu.Lock()
			seen[id]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if len(seen) != callers {
		t.Fatalf("expected %d distinct ids, got %d", callers, len(seen))
	}
	for id := uint64(0); id < callers; id++ {
		if seen[id] != 1 {
			t.Fatalf("id %d assigned %d times", id, seen[id])
		}
	}
	if err := h.org.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
	want := new(uint256.Int).Mul(uint256.NewInt(chunkPrice), uint256.NewInt(callers))
	if got := h.balance(t, crypto.EscrowAddress, treasury.Native()); !got.Eq(want) {
		t.Fatalf("expected escrow %s, got %s", want.Dec(), got.Dec())
	}

	var submitted []string
	for _, evt := range h.org.Events() {
		if evt.Type == events.TypeProposalSubmitted {
			submitted = append(submitted, evt.Attr("proposalId"))
		}
	}
	if len(submitted) != callers {
		t.Fatalf("expected %d submission events, got %d", callers, len(submitted))
	}
	for i, id := range submitted {
		if id != fmt.Sprint(i) {
			t.Fatalf("submission events out of order: %v", submitted)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := nativeConfig()
	cfg.UnitPrice = uint256.NewInt(0)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero price to be rejected")
	}
	cfg = nativeConfig()
	cfg.VotingPeriod = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative period to be rejected")
	}
}
