package dao

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"guildhall/core/events"
	"guildhall/core/state"
	"guildhall/crypto"
	"guildhall/native/proposals"
	"guildhall/native/token"
	"guildhall/native/treasury"
)

// Tx is the organization as seen from inside one transaction. It is only
// valid until the function handed to Execute or View returns.
type Tx struct {
	org       *Organization
	world     *state.Manager
	view      *state.View
	ledger    *treasury.Ledger
	proposals *proposals.Registry
	sink      events.Emitter
	now       time.Time
}

func (o *Organization) newTx(m *state.Manager, sink events.Emitter) *Tx {
	view := m.Prefixed(Namespace(o.addr))
	ledger := treasury.NewLedger(view)
	registry := proposals.NewRegistry(o.addr)
	registry.SetState(view)
	registry.SetLedger(ledger)
	registry.SetVoting(o.registry)
	registry.SetEmitter(sink)
	return &Tx{
		org:       o,
		world:     m,
		view:      view,
		ledger:    ledger,
		proposals: registry,
		sink:      sink,
		now:       o.clock.Now(),
	}
}

func one() *uint256.Int { return uint256.NewInt(1) }

// Org returns the organization the transaction belongs to.
func (tx *Tx) Org() *Organization { return tx.org }

// Now is the instant the transaction started at.
func (tx *Tx) Now() time.Time { return tx.now }

// Store exposes the organization state to adapters.
func (tx *Tx) Store() *state.View { return tx.view }

// Ledger returns the organization's treasury ledger.
func (tx *Tx) Ledger() *treasury.Ledger { return tx.ledger }

// Proposals returns the organization's proposal registry.
func (tx *Tx) Proposals() *proposals.Registry { return tx.proposals }

// Token binds the token at addr to this transaction.
func (tx *Tx) Token(addr crypto.Address) *token.Token {
	tok := token.Open(tx.world, addr)
	tok.SetEmitter(tx.sink)
	return tok
}

// Emit queues evt for publication after commit.
func (tx *Tx) Emit(evt events.Event) {
	if evt != nil {
		tx.sink.Emit(evt)
	}
}

// Snapshot marks the current write position.
func (tx *Tx) Snapshot() int { return tx.world.Snapshot() }

// RevertToSnapshot undoes writes made after id.
func (tx *Tx) RevertToSnapshot(id int) { tx.world.RevertToSnapshot(id) }

// DepositEscrow books a stake received from from into the escrow account.
func (tx *Tx) DepositEscrow(from crypto.Address, asset treasury.AssetKind, amount *uint256.Int) error {
	if err := tx.ledger.Credit(crypto.EscrowAddress, asset, amount); err != nil {
		return err
	}
	tx.Emit(events.StakeReceived{Org: tx.org.addr, From: from, Asset: asset.String(), Amount: amount.Clone()})
	return nil
}

// Payout releases amount of asset from escrow to to and asks the settlement
// layer to deliver it.
func (tx *Tx) Payout(to crypto.Address, asset treasury.AssetKind, amount *uint256.Int, reason string) error {
	if err := tx.ledger.Debit(crypto.EscrowAddress, asset, amount); err != nil {
		return err
	}
	tx.Emit(events.Payout{Org: tx.org.addr, To: to, Asset: asset.String(), Amount: amount.Clone(), Reason: reason})
	return nil
}

// SubmitProposal stores a new onboarding proposal.
func (tx *Tx) SubmitProposal(proposer, applicant crypto.Address, asset treasury.AssetKind, amount, units *uint256.Int, periods proposals.Periods) (uint64, error) {
	return tx.proposals.Submit(proposer, applicant, asset, amount, units, periods, tx.now)
}

// SponsorProposal opens voting on a submitted proposal.
func (tx *Tx) SponsorProposal(id uint64, sponsor crypto.Address, data []byte) error {
	return tx.proposals.Sponsor(id, sponsor, data, tx.now)
}

// ProcessProposal finalizes a sponsored proposal.
func (tx *Tx) ProcessProposal(id uint64) (*proposals.Proposal, error) {
	return tx.proposals.Process(id, tx.now)
}

// IsMember reports whether account holds voting shares.
func (tx *Tx) IsMember(account crypto.Address) (bool, error) {
	shares, err := tx.ledger.SharesOf(account)
	if err != nil {
		return false, err
	}
	return !shares.IsZero(), nil
}

// IssuedLoot returns the Loot granted so far plus the Loot reserved by
// unprocessed proposals.
func (tx *Tx) IssuedLoot() (*uint256.Int, error) {
	issued, err := tx.ledger.TotalUnits(treasury.UnitLoot)
	if err != nil {
		return nil, err
	}
	pending, err := tx.proposals.PendingUnits()
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(issued, pending)
	if overflow {
		return nil, fmt.Errorf("dao: issued loot overflow")
	}
	return total, nil
}
