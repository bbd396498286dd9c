package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"guildhall/crypto"
)

// Symbolic names of the adapters an organization ships with.
const (
	NameVoting              = "voting"
	NameNonVotingOnboarding = "nonvoting-onboarding"
)

// Call carries the identity and attached value of an external caller.
type Call struct {
	Caller crypto.Address
	Value  *uint256.Int
}

// Outcome is the ternary result a voting adapter reports for a proposal.
type Outcome uint8

const (
	OutcomeNotConcluded Outcome = iota
	OutcomePassed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	default:
		return "not_concluded"
	}
}

// Choice is a member's ballot selection.
type Choice uint8

const (
	ChoiceYes Choice = iota + 1
	ChoiceNo
)

func (c Choice) String() string {
	switch c {
	case ChoiceYes:
		return "yes"
	case ChoiceNo:
		return "no"
	default:
		return "unspecified"
	}
}

// ParseChoice accepts "yes" or "no" in any case.
func ParseChoice(raw string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		return ChoiceYes, nil
	case "no":
		return ChoiceNo, nil
	default:
		return 0, fmt.Errorf("adapters: invalid vote choice %q", raw)
	}
}

// Store is the organization state an adapter reads and writes while it runs
// inside the caller's transaction.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// VotingCapability decides proposals. OpenVoting, OutcomeOf and
// IsPeriodElapsed run inside the caller's transaction against st; SubmitVote
// is an entry point that starts its own.
type VotingCapability interface {
	OpenVoting(st Store, id uint64, start time.Time, period time.Duration, data []byte) error
	OutcomeOf(st Store, id uint64, now time.Time) (Outcome, error)
	IsPeriodElapsed(st Store, id uint64, now time.Time) (bool, error)
	SubmitVote(ctx context.Context, call Call, id uint64, choice Choice) error
}

// OnboardingCapability admits new members. Every method is an entry point
// that runs as one transaction.
type OnboardingCapability interface {
	Onboard(ctx context.Context, call Call, declared *uint256.Int) (uint64, error)
	SponsorProposal(ctx context.Context, call Call, id uint64, data []byte) error
	ProcessProposal(ctx context.Context, call Call, id uint64) error
}
