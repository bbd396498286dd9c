package proposals

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"guildhall/crypto"
	"guildhall/native/adapters"
	"guildhall/native/treasury"
)

// Status enumerates the lifecycle phases of an onboarding proposal.
type Status uint8

const (
	// StatusUnspecified never appears in state.
	StatusUnspecified Status = iota
	// StatusSubmitted proposals hold an escrowed stake and await a sponsor.
	StatusSubmitted
	// StatusSponsored proposals are open for voting.
	StatusSponsored
	// StatusProcessed is terminal.
	StatusProcessed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusSponsored:
		return "sponsored"
	case StatusProcessed:
		return "processed"
	default:
		return "unspecified"
	}
}

// Periods are the voting and grace durations captured on a proposal when it
// is submitted.
type Periods struct {
	Voting time.Duration
	Grace  time.Duration
}

// Proposal is a request to join the organization. Amount and Units are fixed
// at submission; processing uses them verbatim.
type Proposal struct {
	ID           uint64             `json:"id"`
	Proposer     crypto.Address     `json:"proposer"`
	Applicant    crypto.Address     `json:"applicant"`
	Asset        treasury.AssetKind `json:"asset"`
	Amount       *uint256.Int       `json:"amount"`
	Units        *uint256.Int       `json:"units"`
	Status       Status             `json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
	Sponsor      crypto.Address     `json:"sponsor"`
	SponsoredAt  time.Time          `json:"sponsored_at"`
	ProcessedAt  time.Time          `json:"processed_at"`
	VotingPeriod time.Duration      `json:"voting_period"`
	GracePeriod  time.Duration      `json:"grace_period"`
	VotingData   []byte             `json:"voting_data,omitempty"`
	Outcome      adapters.Outcome   `json:"-"`
}

// Deadline is the earliest instant the proposal may be processed.
func (p *Proposal) Deadline() time.Time {
	if p.SponsoredAt.IsZero() {
		return time.Time{}
	}
	return p.SponsoredAt.Add(p.VotingPeriod).Add(p.GracePeriod)
}

// storedProposal is the RLP persistence form of Proposal.
type storedProposal struct {
	ID           uint64
	Proposer     [20]byte
	Applicant    [20]byte
	AssetClass   uint8
	AssetToken   [20]byte
	Amount       *big.Int
	Units        *big.Int
	Status       uint8
	CreatedAt    []byte
	Sponsor      [20]byte
	SponsoredAt  []byte
	ProcessedAt  []byte
	VotingPeriod uint64
	GracePeriod  uint64
	VotingData   []byte
	Outcome      uint8
}

// encodeTime stores t in its binary form, which covers the full time.Time
// range. The zero time is stored as an empty value.
func encodeTime(t time.Time) []byte {
	if t.IsZero() {
		return nil
	}
	out, _ := t.UTC().MarshalBinary()
	return out
}

func decodeTime(raw []byte) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, nil
	}
	var t time.Time
	if err := t.UnmarshalBinary(raw); err != nil {
		return time.Time{}, fmt.Errorf("proposals: decode time: %w", err)
	}
	return t.UTC(), nil
}

func toStored(p *Proposal) *storedProposal {
	return &storedProposal{
		ID:           p.ID,
		Proposer:     p.Proposer,
		Applicant:    p.Applicant,
		AssetClass:   uint8(p.Asset.Class),
		AssetToken:   p.Asset.Token,
		Amount:       p.Amount.ToBig(),
		Units:        p.Units.ToBig(),
		Status:       uint8(p.Status),
		CreatedAt:    encodeTime(p.CreatedAt),
		Sponsor:      p.Sponsor,
		SponsoredAt:  encodeTime(p.SponsoredAt),
		ProcessedAt:  encodeTime(p.ProcessedAt),
		VotingPeriod: uint64(p.VotingPeriod),
		GracePeriod:  uint64(p.GracePeriod),
		VotingData:   append([]byte(nil), p.VotingData...),
		Outcome:      uint8(p.Outcome),
	}
}

func fromStored(s *storedProposal) (*Proposal, error) {
	createdAt, err := decodeTime(s.CreatedAt)
	if err != nil {
		return nil, err
	}
	sponsoredAt, err := decodeTime(s.SponsoredAt)
	if err != nil {
		return nil, err
	}
	processedAt, err := decodeTime(s.ProcessedAt)
	if err != nil {
		return nil, err
	}
	amount, units := new(uint256.Int), new(uint256.Int)
	if s.Amount != nil {
		amount, _ = uint256.FromBig(s.Amount)
	}
	if s.Units != nil {
		units, _ = uint256.FromBig(s.Units)
	}
	return &Proposal{
		ID:           s.ID,
		Proposer:     s.Proposer,
		Applicant:    s.Applicant,
		Asset:        treasury.AssetKind{Class: treasury.AssetClass(s.AssetClass), Token: s.AssetToken},
		Amount:       amount,
		Units:        units,
		Status:       Status(s.Status),
		CreatedAt:    createdAt,
		Sponsor:      s.Sponsor,
		SponsoredAt:  sponsoredAt,
		ProcessedAt:  processedAt,
		VotingPeriod: time.Duration(s.VotingPeriod),
		GracePeriod:  time.Duration(s.GracePeriod),
		VotingData:   append([]byte(nil), s.VotingData...),
		Outcome:      adapters.Outcome(s.Outcome),
	}, nil
}
