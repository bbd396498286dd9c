package onboarding

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "guildhall/core/errors"
	"guildhall/crypto"
	"guildhall/native/adapters"
	nativecommon "guildhall/native/common"
	"guildhall/native/dao"
	"guildhall/native/funding"
	"guildhall/native/pricing"
	"guildhall/native/proposals"
	"guildhall/native/treasury"
	"guildhall/observability/metrics"
)

var errNoApplicant = errors.New("onboarding: applicant address required")

// Config fixes the terms on which the adapter admits new members.
type Config struct {
	UnitPrice     *uint256.Int
	UnitsPerChunk *uint256.Int
	MaxUnits      *uint256.Int
	VotingPeriod  time.Duration
	GracePeriod   time.Duration
	Asset         treasury.AssetKind
}

func (c Config) schedule() pricing.Schedule {
	return pricing.Schedule{UnitPrice: c.UnitPrice, UnitsPerChunk: c.UnitsPerChunk, MaxUnits: c.MaxUnits}
}

// Validate checks the price schedule, the periods and the staked asset.
func (c Config) Validate() error {
	if err := c.schedule().Validate(); err != nil {
		return err
	}
	if c.VotingPeriod < 0 || c.GracePeriod < 0 {
		return fmt.Errorf("onboarding: periods must not be negative")
	}
	return c.Asset.Validate()
}

// Adapter admits applicants in exchange for a stake. Accepted applicants
// receive Loot, a non-voting ownership unit, and their stake joins the Guild
// treasury.
type Adapter struct {
	org     *dao.Organization
	cfg     Config
	addr    crypto.Address
	tracer  trace.Tracer
	metrics *metrics.DAOMetrics
}

// New creates the adapter for org without registering it.
func New(org *dao.Organization, cfg Config) (*Adapter, error) {
	if org == nil {
		return nil, fmt.Errorf("onboarding: organization required")
	}
	if cfg.Asset.Class == 0 {
		cfg.Asset = treasury.Native()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.UnitPrice = cfg.UnitPrice.Clone()
	cfg.MaxUnits = cfg.MaxUnits.Clone()
	if cfg.UnitsPerChunk != nil {
		cfg.UnitsPerChunk = cfg.UnitsPerChunk.Clone()
	}
	return &Adapter{
		org:     org,
		cfg:     cfg,
		addr:    adapters.AddressFor(org.Address(), adapters.NameNonVotingOnboarding),
		tracer:  otel.Tracer("guildhall/onboarding"),
		metrics: metrics.DAO(),
	}, nil
}

// Register creates the adapter and registers it under
// adapters.NameNonVotingOnboarding.
func Register(org *dao.Organization, cfg Config) (*Adapter, error) {
	a, err := New(org, cfg)
	if err != nil {
		return nil, err
	}
	entry, err := org.Adapters().Register(adapters.NameNonVotingOnboarding, a)
	if err != nil {
		return nil, err
	}
	a.addr = entry.Address
	return a, nil
}

// Address is the account token allowances to the adapter are granted to.
func (a *Adapter) Address() crypto.Address { return a.addr }

// Config returns the adapter terms.
func (a *Adapter) Config() Config { return a.cfg }

func (a *Adapter) periods() proposals.Periods {
	return proposals.Periods{Voting: a.cfg.VotingPeriod, Grace: a.cfg.GracePeriod}
}

func (a *Adapter) intake(tx *dao.Tx) *funding.Intake {
	return &funding.Intake{
		Org:       a.org.Address(),
		Adapter:   a.addr,
		UnitPrice: a.cfg.UnitPrice,
		Treasury:  tx,
		Tokens: func(token crypto.Address) funding.TokenLedger {
			return tx.Token(token)
		},
		Logger: a.org.Logger(),
	}
}

func (a *Adapter) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	code := coreerrors.Code(err)
	a.metrics.ObserveFailure(op, code)
	a.org.Logger().Warn("onboarding call refused", "op", op, "code", code, "error", err)
	return err
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

// Onboard stakes on behalf of the caller, who is also the applicant.
func (a *Adapter) Onboard(ctx context.Context, call adapters.Call, declared *uint256.Int) (uint64, error) {
	return a.OnboardApplicant(ctx, call, call.Caller, declared)
}

// OnboardApplicant takes the caller's stake, prices it and files a proposal
// granting the resulting Loot to applicant. For native stakes the call value
// is authoritative and declared is ignored.
func (a *Adapter) OnboardApplicant(ctx context.Context, call adapters.Call, applicant crypto.Address, declared *uint256.Int) (uint64, error) {
	ctx, span := a.tracer.Start(ctx, "onboarding.onboard",
		trace.WithAttributes(
			attribute.String("org", a.org.Address().String()),
			attribute.String("asset", a.cfg.Asset.String()),
		))
	defer span.End()
	if err := ctx.Err(); err != nil {
		return 0, a.fail(span, "onboard", err)
	}
	if applicant.IsZero() {
		return 0, a.fail(span, "onboard", errNoApplicant)
	}
	if err := a.org.Paused(nativecommon.ModuleOnboarding); err != nil {
		return 0, a.fail(span, "onboard", err)
	}

	var (
		id       uint64
		received *uint256.Int
		units    *uint256.Int
	)
	err := a.org.Execute(func(tx *dao.Tx) error {
		var err error
		received, err = a.intake(tx).Receive(a.cfg.Asset, declared, funding.Call{Proposer: call.Caller, Value: call.Value})
		if err != nil {
			return err
		}
		issued, err := tx.IssuedLoot()
		if err != nil {
			return err
		}
		units, err = pricing.UnitsFor(received, a.cfg.schedule(), issued)
		if err != nil {
			return err
		}
		id, err = tx.SubmitProposal(call.Caller, applicant, a.cfg.Asset, received, units, a.periods())
		return err
	})
	if err != nil {
		return 0, a.fail(span, "onboard", err)
	}

	span.SetAttributes(attribute.Int64("proposal.id", int64(id)), attribute.String("units", units.Dec()))
	span.SetStatus(codes.Ok, "proposal submitted")
	a.metrics.ObserveSubmitted(a.cfg.Asset.String())
	a.metrics.ObserveStake(a.cfg.Asset.String(), toFloat(received))
	a.org.Logger().Info("onboarding proposal submitted",
		"proposalId", id,
		"proposer", call.Caller.String(),
		"applicant", applicant.String(),
		"amount", received.Dec(),
		"units", units.Dec())
	return id, nil
}

// SponsorProposal opens voting on proposal id. Only members may sponsor.
func (a *Adapter) SponsorProposal(ctx context.Context, call adapters.Call, id uint64, data []byte) error {
	ctx, span := a.tracer.Start(ctx, "onboarding.sponsor",
		trace.WithAttributes(attribute.Int64("proposal.id", int64(id))))
	defer span.End()
	if err := ctx.Err(); err != nil {
		return a.fail(span, "sponsor", err)
	}
	if err := a.org.Paused(nativecommon.ModuleOnboarding); err != nil {
		return a.fail(span, "sponsor", err)
	}
	err := a.org.Execute(func(tx *dao.Tx) error {
		member, err := tx.IsMember(call.Caller)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("onboarding: sponsor %s: %w", call.Caller, coreerrors.ErrNotMember)
		}
		return tx.SponsorProposal(id, call.Caller, data)
	})
	if err != nil {
		return a.fail(span, "sponsor", err)
	}
	span.SetStatus(codes.Ok, "voting opened")
	a.metrics.ObserveSponsored(a.org.Address().String())
	a.org.Logger().Info("onboarding proposal sponsored", "proposalId", id, "sponsor", call.Caller.String())
	return nil
}

// ProcessProposal finalizes proposal id once its voting and grace periods
// are over. Anyone may call it. A passed vote issues the Loot and moves the
// stake into the Guild account; a failed vote returns the stake to the
// proposer.
func (a *Adapter) ProcessProposal(ctx context.Context, call adapters.Call, id uint64) error {
	ctx, span := a.tracer.Start(ctx, "onboarding.process",
		trace.WithAttributes(attribute.Int64("proposal.id", int64(id))))
	defer span.End()
	if err := ctx.Err(); err != nil {
		return a.fail(span, "process", err)
	}
	if err := a.org.Paused(nativecommon.ModuleProcessing); err != nil {
		return a.fail(span, "process", err)
	}
	var processed *proposals.Proposal
	err := a.org.Execute(func(tx *dao.Tx) error {
		p, err := tx.ProcessProposal(id)
		if err != nil {
			return err
		}
		if p.Outcome == adapters.OutcomeFailed {
			if err := a.intake(tx).Refund(p.Asset, p.Amount, p.Proposer); err != nil {
				return err
			}
		}
		processed = p
		return nil
	})
	if err != nil {
		return a.fail(span, "process", err)
	}

	outcome := processed.Outcome.String()
	span.SetAttributes(attribute.String("outcome", outcome))
	span.SetStatus(codes.Ok, "proposal processed")
	a.metrics.ObserveProcessed(outcome)
	if processed.Outcome == adapters.OutcomePassed {
		a.metrics.ObserveLootIssued(a.org.Address().String(), toFloat(processed.Units))
	}
	a.org.Logger().Info("onboarding proposal processed",
		"proposalId", id,
		"caller", call.Caller.String(),
		"outcome", outcome,
		"applicant", processed.Applicant.String(),
		"units", processed.Units.Dec())
	return nil
}
