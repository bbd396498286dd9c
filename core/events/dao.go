package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"guildhall/core/types"
	"guildhall/crypto"
)

const (
	// TypeProposalSubmitted is emitted when an onboarding proposal is stored.
	TypeProposalSubmitted = "dao.proposal.submitted"
	// TypeProposalSponsored is emitted when a member sponsors a proposal and
	// voting opens.
	TypeProposalSponsored = "dao.proposal.sponsored"
	// TypeProposalProcessed is emitted once per proposal when it reaches the
	// terminal state.
	TypeProposalProcessed = "dao.proposal.processed"
	// TypeVoteCast records a single member vote.
	TypeVoteCast = "dao.vote.cast"
	// TypeStakeReceived records value escrowed at intake.
	TypeStakeReceived = "dao.stake.received"
	// TypePayout instructs the settlement layer to send value out of the
	// organization.
	TypePayout = "dao.payout"
	// TypeLootIssued records Loot minted to a new member.
	TypeLootIssued = "dao.loot.issued"
	// TypeTokenTransfer records a fungible token movement.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval records an allowance change.
	TypeTokenApproval = "token.approval"
)

// ProposalSubmitted describes a freshly stored proposal.
type ProposalSubmitted struct {
	Org       crypto.Address
	ID        uint64
	Proposer  crypto.Address
	Applicant crypto.Address
	Asset     string
	Amount    *uint256.Int
	Units     *uint256.Int
}

// EventType satisfies the Event interface.
func (ProposalSubmitted) EventType() string { return TypeProposalSubmitted }

// Event converts the structured payload into a broadcastable event.
func (e ProposalSubmitted) Event() *types.Event {
	return &types.Event{
		Type: TypeProposalSubmitted,
		Attributes: map[string]string{
			"org":        e.Org.String(),
			"proposalId": formatID(e.ID),
			"proposer":   e.Proposer.String(),
			"applicant":  e.Applicant.String(),
			"asset":      e.Asset,
			"amount":     formatAmount(e.Amount),
			"units":      formatAmount(e.Units),
		},
	}
}

// ProposalSponsored marks the start of voting.
type ProposalSponsored struct {
	Org     crypto.Address
	ID      uint64
	Sponsor crypto.Address
	Start   int64
}

// EventType satisfies the Event interface.
func (ProposalSponsored) EventType() string { return TypeProposalSponsored }

// Event converts the structured payload into a broadcastable event.
func (e ProposalSponsored) Event() *types.Event {
	return &types.Event{
		Type: TypeProposalSponsored,
		Attributes: map[string]string{
			"org":        e.Org.String(),
			"proposalId": formatID(e.ID),
			"sponsor":    e.Sponsor.String(),
			"start":      strconv.FormatInt(e.Start, 10),
		},
	}
}

// ProposalProcessed reports the final disposition of a proposal.
type ProposalProcessed struct {
	Org     crypto.Address
	ID      uint64
	Outcome string
	Units   *uint256.Int
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (ProposalProcessed) EventType() string { return TypeProposalProcessed }

// Event converts the structured payload into a broadcastable event.
func (e ProposalProcessed) Event() *types.Event {
	return &types.Event{
		Type: TypeProposalProcessed,
		Attributes: map[string]string{
			"org":        e.Org.String(),
			"proposalId": formatID(e.ID),
			"outcome":    e.Outcome,
			"units":      formatAmount(e.Units),
			"amount":     formatAmount(e.Amount),
		},
	}
}

// VoteCast records one ballot.
type VoteCast struct {
	Org    crypto.Address
	ID     uint64
	Voter  crypto.Address
	Choice string
}

// EventType satisfies the Event interface.
func (VoteCast) EventType() string { return TypeVoteCast }

// Event converts the structured payload into a broadcastable event.
func (e VoteCast) Event() *types.Event {
	return &types.Event{
		Type: TypeVoteCast,
		Attributes: map[string]string{
			"org":        e.Org.String(),
			"proposalId": formatID(e.ID),
			"voter":      e.Voter.String(),
			"choice":     e.Choice,
		},
	}
}

// StakeReceived records value moved into escrow.
type StakeReceived struct {
	Org    crypto.Address
	From   crypto.Address
	Asset  string
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeReceived) EventType() string { return TypeStakeReceived }

// Event converts the structured payload into a broadcastable event.
func (e StakeReceived) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeReceived,
		Attributes: map[string]string{
			"org":    e.Org.String(),
			"from":   e.From.String(),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}

// Payout asks the settlement layer to deliver value leaving the ledger.
type Payout struct {
	Org    crypto.Address
	To     crypto.Address
	Asset  string
	Amount *uint256.Int
	Reason string
}

// EventType satisfies the Event interface.
func (Payout) EventType() string { return TypePayout }

// Event converts the structured payload into a broadcastable event.
func (e Payout) Event() *types.Event {
	return &types.Event{
		Type: TypePayout,
		Attributes: map[string]string{
			"org":    e.Org.String(),
			"to":     e.To.String(),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
			"reason": e.Reason,
		},
	}
}

// LootIssued records newly minted non-voting units.
type LootIssued struct {
	Org     crypto.Address
	ID      uint64
	Account crypto.Address
	Units   *uint256.Int
}

// EventType satisfies the Event interface.
func (LootIssued) EventType() string { return TypeLootIssued }

// Event converts the structured payload into a broadcastable event.
func (e LootIssued) Event() *types.Event {
	return &types.Event{
		Type: TypeLootIssued,
		Attributes: map[string]string{
			"org":        e.Org.String(),
			"proposalId": formatID(e.ID),
			"account":    e.Account.String(),
			"units":      formatAmount(e.Units),
		},
	}
}

// TokenTransfer records a balance movement on a fungible token.
type TokenTransfer struct {
	Token  crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenTransfer) EventType() string { return TypeTokenTransfer }

// Event converts the structured payload into a broadcastable event.
func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"token":  e.Token.String(),
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// TokenApproval records an allowance being set.
type TokenApproval struct {
	Token   crypto.Address
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenApproval) EventType() string { return TypeTokenApproval }

// Event converts the structured payload into a broadcastable event.
func (e TokenApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApproval,
		Attributes: map[string]string{
			"token":   e.Token.String(),
			"owner":   e.Owner.String(),
			"spender": e.Spender.String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}
