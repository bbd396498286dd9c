package proposals

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	coreerrors "guildhall/core/errors"
	"guildhall/core/events"
	"guildhall/crypto"
	"guildhall/native/adapters"
	"guildhall/native/treasury"
)

var (
	seqKey          = []byte("proposals/seq")
	pendingUnitsKey = []byte("proposals/pending-units")
	indexKey        = []byte("proposals/index")
	proposalPrefix  = []byte("proposals/p/")

	errStateNotConfigured = errors.New("proposals: state not configured")
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type ledger interface {
	Transfer(from, to crypto.Address, asset treasury.AssetKind, amount *uint256.Int) error
	AddUnits(account crypto.Address, class treasury.UnitClass, count *uint256.Int) error
}

type votingResolver interface {
	Voting(name string) (adapters.VotingCapability, error)
}

// Registry stores proposals and drives them through their lifecycle. It is
// the only component that decides whether a proposal has been processed.
type Registry struct {
	org     crypto.Address
	state   registryState
	ledger  ledger
	voting  votingResolver
	emitter events.Emitter
}

// NewRegistry constructs a registry for org with default no-op dependencies.
func NewRegistry(org crypto.Address) *Registry {
	return &Registry{org: org, emitter: events.NoopEmitter{}}
}

// SetState wires the registry to its persistence backend.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetLedger wires the treasury ledger used when a proposal passes.
func (r *Registry) SetLedger(l ledger) { r.ledger = l }

// SetVoting wires the resolver used to find the voting adapter.
func (r *Registry) SetVoting(resolver votingResolver) { r.voting = resolver }

// SetEmitter configures the event emitter used by the registry. Passing nil
// resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func proposalKey(id uint64) []byte {
	key := make([]byte, len(proposalPrefix)+8)
	copy(key, proposalPrefix)
	binary.BigEndian.PutUint64(key[len(proposalPrefix):], id)
	return key
}

// Next returns the identifier the next submission will receive.
func (r *Registry) Next() (uint64, error) {
	if r.state == nil {
		return 0, errStateNotConfigured
	}
	var next uint64
	if _, err := r.state.KVGet(seqKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}

// PendingUnits returns the units reserved by proposals that are not yet
// processed.
func (r *Registry) PendingUnits() (*uint256.Int, error) {
	if r.state == nil {
		return nil, errStateNotConfigured
	}
	stored := new(big.Int)
	ok, err := r.state.KVGet(pendingUnitsKey, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, fmt.Errorf("proposals: pending units out of range")
	}
	return value, nil
}

func (r *Registry) put(p *Proposal) error {
	return r.state.KVPut(proposalKey(p.ID), toStored(p))
}

// Get loads a proposal.
func (r *Registry) Get(id uint64) (*Proposal, error) {
	if r.state == nil {
		return nil, errStateNotConfigured
	}
	stored := new(storedProposal)
	ok, err := r.state.KVGet(proposalKey(id), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("proposals: proposal %d: %w", id, coreerrors.ErrNotFound)
	}
	return fromStored(stored)
}

// List returns every proposal in submission order.
func (r *Registry) List() ([]*Proposal, error) {
	if r.state == nil {
		return nil, errStateNotConfigured
	}
	var ids [][]byte
	if err := r.state.KVGetList(indexKey, &ids); err != nil {
		return nil, err
	}
	out := make([]*Proposal, 0, len(ids))
	for _, raw := range ids {
		if len(raw) != 8 {
			return nil, fmt.Errorf("proposals: malformed index entry")
		}
		p, err := r.Get(binary.BigEndian.Uint64(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Submit stores a new proposal in the Submitted state and returns its
// identifier. Units are reserved against the issuance cap until the proposal
// is processed.
func (r *Registry) Submit(proposer, applicant crypto.Address, asset treasury.AssetKind, amount, units *uint256.Int, periods Periods, now time.Time) (uint64, error) {
	if r.state == nil {
		return 0, errStateNotConfigured
	}
	if err := asset.Validate(); err != nil {
		return 0, err
	}
	if amount == nil || amount.IsZero() || units == nil || units.IsZero() {
		return 0, fmt.Errorf("proposals: empty stake: %w", coreerrors.ErrInvalidAmount)
	}
	if periods.Voting < 0 || periods.Grace < 0 {
		return 0, fmt.Errorf("proposals: negative period")
	}
	id, err := r.Next()
	if err != nil {
		return 0, err
	}
	if id == ^uint64(0) {
		return 0, fmt.Errorf("proposals: sequence exhausted: %w", coreerrors.ErrOverflow)
	}
	pending, err := r.PendingUnits()
	if err != nil {
		return 0, err
	}
	nextPending, overflow := new(uint256.Int).AddOverflow(pending, units)
	if overflow {
		return 0, fmt.Errorf("proposals: pending units: %w", coreerrors.ErrOverflow)
	}

	p := &Proposal{
		ID:           id,
		Proposer:     proposer,
		Applicant:    applicant,
		Asset:        asset,
		Amount:       amount.Clone(),
		Units:        units.Clone(),
		Status:       StatusSubmitted,
		CreatedAt:    now.UTC(),
		VotingPeriod: periods.Voting,
		GracePeriod:  periods.Grace,
	}
	if err := r.put(p); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(seqKey, id+1); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(pendingUnitsKey, nextPending.ToBig()); err != nil {
		return 0, err
	}
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, id)
	if err := r.state.KVAppend(indexKey, idBytes); err != nil {
		return 0, err
	}

	r.emitter.Emit(events.ProposalSubmitted{
		Org:       r.org,
		ID:        id,
		Proposer:  proposer,
		Applicant: applicant,
		Asset:     asset.String(),
		Amount:    p.Amount,
		Units:     p.Units,
	})
	return id, nil
}

// Sponsor moves a Submitted proposal into voting. data is passed through to
// the voting adapter untouched.
func (r *Registry) Sponsor(id uint64, sponsor crypto.Address, data []byte, now time.Time) error {
	if r.state == nil {
		return errStateNotConfigured
	}
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	if p.Status != StatusSubmitted {
		return fmt.Errorf("proposals: sponsor proposal %d in state %s: %w", id, p.Status, coreerrors.ErrInvalidState)
	}
	voting, err := r.resolveVoting()
	if err != nil {
		return err
	}
	p.Status = StatusSponsored
	p.Sponsor = sponsor
	p.SponsoredAt = now.UTC()
	p.VotingData = append([]byte(nil), data...)
	if err := r.put(p); err != nil {
		return err
	}
	if err := voting.OpenVoting(r.state, id, p.SponsoredAt, p.VotingPeriod, p.VotingData); err != nil {
		return fmt.Errorf("proposals: open voting: %w", err)
	}
	r.emitter.Emit(events.ProposalSponsored{Org: r.org, ID: id, Sponsor: sponsor, Start: p.SponsoredAt.Unix()})
	return nil
}

func (r *Registry) resolveVoting() (adapters.VotingCapability, error) {
	if r.voting == nil {
		return nil, fmt.Errorf("proposals: voting adapter not configured")
	}
	return r.voting.Voting(adapters.NameVoting)
}

// Process finalizes a Sponsored proposal once voting and grace periods have
// elapsed. A passed vote moves the escrowed stake into the Guild account and
// grants the applicant its Loot; both happen or neither does. The proposal
// becomes Processed whatever the outcome and the updated record is returned.
func (r *Registry) Process(id uint64, now time.Time) (*Proposal, error) {
	if r.state == nil {
		return nil, errStateNotConfigured
	}
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusSponsored {
		return nil, fmt.Errorf("proposals: process proposal %d in state %s: %w", id, p.Status, coreerrors.ErrInvalidState)
	}
	if now.Before(p.Deadline()) {
		return nil, fmt.Errorf("proposals: proposal %d processable at %s: %w", id, p.Deadline().Format(time.RFC3339), coreerrors.ErrVotingNotConcluded)
	}
	voting, err := r.resolveVoting()
	if err != nil {
		return nil, err
	}
	elapsed, err := voting.IsPeriodElapsed(r.state, id, now)
	if err != nil {
		return nil, err
	}
	outcome := adapters.OutcomeNotConcluded
	if elapsed {
		if outcome, err = voting.OutcomeOf(r.state, id, now); err != nil {
			return nil, err
		}
	}
	if outcome == adapters.OutcomeNotConcluded {
		return nil, fmt.Errorf("proposals: proposal %d: %w", id, coreerrors.ErrVotingNotConcluded)
	}

	if outcome == adapters.OutcomePassed {
		if err := r.finalize(p); err != nil {
			return nil, err
		}
	}

	pending, err := r.PendingUnits()
	if err != nil {
		return nil, err
	}
	if pending.Lt(p.Units) {
		return nil, fmt.Errorf("proposals: pending units below reservation of %d", id)
	}
	if err := r.state.KVPut(pendingUnitsKey, new(uint256.Int).Sub(pending, p.Units).ToBig()); err != nil {
		return nil, err
	}
	p.Status = StatusProcessed
	p.Outcome = outcome
	p.ProcessedAt = now.UTC()
	if err := r.put(p); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.ProposalProcessed{Org: r.org, ID: id, Outcome: outcome.String(), Units: p.Units, Amount: p.Amount})
	return p, nil
}

func (r *Registry) finalize(p *Proposal) error {
	if r.ledger == nil {
		return fmt.Errorf("proposals: ledger not configured")
	}
	snap := r.state.Snapshot()
	if err := r.ledger.Transfer(crypto.EscrowAddress, crypto.GuildAddress, p.Asset, p.Amount); err != nil {
		r.state.RevertToSnapshot(snap)
		return fmt.Errorf("proposals: credit guild for %d: %w", p.ID, err)
	}
	if err := r.ledger.AddUnits(p.Applicant, treasury.UnitLoot, p.Units); err != nil {
		r.state.RevertToSnapshot(snap)
		return fmt.Errorf("proposals: issue loot for %d: %w", p.ID, err)
	}
	r.emitter.Emit(events.LootIssued{Org: r.org, ID: p.ID, Account: p.Applicant, Units: p.Units})
	return nil
}
