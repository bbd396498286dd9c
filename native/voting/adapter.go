package voting

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	coreerrors "guildhall/core/errors"
	"guildhall/core/events"
	"guildhall/crypto"
	"guildhall/native/adapters"
	nativecommon "guildhall/native/common"
	"guildhall/native/dao"
	"guildhall/observability/metrics"
)

var (
	roundPrefix  = []byte("voting/round/")
	ballotPrefix = []byte("voting/ballot/")
)

// round is the persisted voting window and tally of one proposal.
type round struct {
	Start  []byte
	Period uint64
	Yes    uint64
	No     uint64
	Data   []byte

	start time.Time
}

func (r *round) end() time.Time {
	return r.start.Add(time.Duration(r.Period))
}

// Adapter is a one-member-one-vote ballot box. A proposal passes when it has
// more yes than no votes once its voting period is over.
type Adapter struct {
	org *dao.Organization
}

// New creates the adapter for org without registering it.
func New(org *dao.Organization) *Adapter {
	return &Adapter{org: org}
}

// Register creates the adapter and registers it under adapters.NameVoting.
func Register(org *dao.Organization) (*Adapter, error) {
	a := New(org)
	if _, err := org.Adapters().Register(adapters.NameVoting, a); err != nil {
		return nil, err
	}
	return a, nil
}

func roundKey(id uint64) []byte {
	key := make([]byte, len(roundPrefix)+8)
	copy(key, roundPrefix)
	binary.BigEndian.PutUint64(key[len(roundPrefix):], id)
	return key
}

func ballotKey(id uint64, voter crypto.Address) []byte {
	key := make([]byte, len(ballotPrefix)+8, len(ballotPrefix)+8+crypto.AddressLength)
	copy(key, ballotPrefix)
	binary.BigEndian.PutUint64(key[len(ballotPrefix):], id)
	return append(key, voter[:]...)
}

func loadRound(st adapters.Store, id uint64) (*round, error) {
	r := new(round)
	ok, err := st.KVGet(roundKey(id), r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("voting: no round for proposal %d: %w", id, coreerrors.ErrNotFound)
	}
	if err := r.start.UnmarshalBinary(r.Start); err != nil {
		return nil, fmt.Errorf("voting: round %d start: %w", id, err)
	}
	return r, nil
}

// OpenVoting starts the voting window of proposal id.
func (a *Adapter) OpenVoting(st adapters.Store, id uint64, start time.Time, period time.Duration, data []byte) error {
	if ok, err := st.KVGet(roundKey(id), nil); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("voting: round for proposal %d already open: %w", id, coreerrors.ErrInvalidState)
	}
	if period < 0 {
		return fmt.Errorf("voting: negative period")
	}
	encoded, err := start.UTC().MarshalBinary()
	if err != nil {
		return fmt.Errorf("voting: encode start: %w", err)
	}
	r := &round{Start: encoded, Period: uint64(period), Data: append([]byte(nil), data...)}
	return st.KVPut(roundKey(id), r)
}

// IsPeriodElapsed reports whether the voting window of id has closed.
func (a *Adapter) IsPeriodElapsed(st adapters.Store, id uint64, now time.Time) (bool, error) {
	r, err := loadRound(st, id)
	if err != nil {
		return false, err
	}
	return !now.Before(r.end()), nil
}

// OutcomeOf reports the result of id as of now.
func (a *Adapter) OutcomeOf(st adapters.Store, id uint64, now time.Time) (adapters.Outcome, error) {
	r, err := loadRound(st, id)
	if err != nil {
		return adapters.OutcomeNotConcluded, err
	}
	if now.Before(r.end()) {
		return adapters.OutcomeNotConcluded, nil
	}
	if r.Yes > r.No {
		return adapters.OutcomePassed, nil
	}
	return adapters.OutcomeFailed, nil
}

// SubmitVote records call.Caller's ballot on proposal id.
func (a *Adapter) SubmitVote(ctx context.Context, call adapters.Call, id uint64, choice adapters.Choice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if choice != adapters.ChoiceYes && choice != adapters.ChoiceNo {
		return fmt.Errorf("voting: invalid choice %d", choice)
	}
	if err := a.org.Paused(nativecommon.ModuleVoting); err != nil {
		return err
	}
	err := a.org.Execute(func(tx *dao.Tx) error {
		member, err := tx.IsMember(call.Caller)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("voting: %s: %w", call.Caller, coreerrors.ErrNotMember)
		}
		st := tx.Store()
		r, err := loadRound(st, id)
		if err != nil {
			return err
		}
		now := tx.Now()
		if now.Before(r.start) || !now.Before(r.end()) {
			return fmt.Errorf("voting: proposal %d not accepting votes: %w", id, coreerrors.ErrInvalidState)
		}
		if voted, err := st.KVGet(ballotKey(id, call.Caller), nil); err != nil {
			return err
		} else if voted {
			return fmt.Errorf("voting: %s on proposal %d: %w", call.Caller, id, coreerrors.ErrAlreadyVoted)
		}
		switch choice {
		case adapters.ChoiceYes:
			r.Yes++
		case adapters.ChoiceNo:
			r.No++
		}
		if err := st.KVPut(ballotKey(id, call.Caller), uint8(choice)); err != nil {
			return err
		}
		if err := st.KVPut(roundKey(id), r); err != nil {
			return err
		}
		tx.Emit(events.VoteCast{Org: tx.Org().Address(), ID: id, Voter: call.Caller, Choice: choice.String()})
		return nil
	})
	if err != nil {
		return err
	}
	metrics.DAO().ObserveVote(choice.String())
	return nil
}

// Tally returns the yes and no counts of id.
func (a *Adapter) Tally(id uint64) (yes, no uint64, err error) {
	err = a.org.View(func(tx *dao.Tx) error {
		r, err := loadRound(tx.Store(), id)
		if err != nil {
			return err
		}
		yes, no = r.Yes, r.No
		return nil
	})
	return yes, no, err
}
