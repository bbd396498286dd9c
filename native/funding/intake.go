package funding

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	coreerrors "guildhall/core/errors"
	"guildhall/crypto"
	"guildhall/native/pricing"
	"guildhall/native/treasury"
)

// Payout reasons attached to value leaving escrow.
const (
	ReasonRemainder = "remainder"
	ReasonRefund    = "refund"
)

// Treasury is the slice of the organization the intake writes to. Both calls
// run inside the caller's transaction.
type Treasury interface {
	DepositEscrow(from crypto.Address, asset treasury.AssetKind, amount *uint256.Int) error
	Payout(to crypto.Address, asset treasury.AssetKind, amount *uint256.Int, reason string) error
}

// TokenLedger is the fungible token surface used for allowance pulls.
type TokenLedger interface {
	Transfer(from, to crypto.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to crypto.Address, amount *uint256.Int) error
}

// Source is one allowance the intake may pull a token stake through.
type Source struct {
	Name string
	// Spender is the account whose allowance is consumed.
	Spender crypto.Address
	// Recipient receives the pulled tokens.
	Recipient crypto.Address
	// Forward is set when Recipient must pass the tokens on to the
	// organization.
	Forward bool
}

// Sources returns the allowance sources in the order they are tried: the
// proposer's allowance to the organization first, then the allowance to the
// adapter, which forwards what it receives.
func Sources(org, adapter crypto.Address) []Source {
	sources := []Source{{Name: "organization", Spender: org, Recipient: org}}
	if adapter != org && !adapter.IsZero() {
		sources = append(sources, Source{Name: "adapter", Spender: adapter, Recipient: adapter, Forward: true})
	}
	return sources
}

// Call is the funding side of an external call.
type Call struct {
	Proposer crypto.Address
	// Value is the native currency accompanying the call.
	Value *uint256.Int
}

// Intake normalizes a native or token stake into one received amount held in
// escrow.
type Intake struct {
	Org       crypto.Address
	Adapter   crypto.Address
	UnitPrice *uint256.Int
	Treasury  Treasury
	Tokens    func(token crypto.Address) TokenLedger
	Logger    *slog.Logger
}

func (in *Intake) logger() *slog.Logger {
	if in.Logger == nil {
		return slog.Default()
	}
	return in.Logger
}

// Receive takes the stake for asset from the call and returns the amount that
// went into escrow. For native currency the call value is authoritative and
// declared is ignored; the part of the value that does not buy a whole chunk
// is paid back to the proposer. For tokens declared is pulled through the
// first allowance source that succeeds.
func (in *Intake) Receive(asset treasury.AssetKind, declared *uint256.Int, call Call) (*uint256.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	if in.Treasury == nil {
		return nil, fmt.Errorf("funding: treasury not configured")
	}
	if asset.IsNative() {
		return in.receiveNative(asset, call)
	}
	return in.receiveToken(asset, declared, call)
}

func (in *Intake) receiveNative(asset treasury.AssetKind, call Call) (*uint256.Int, error) {
	if call.Value == nil || call.Value.IsZero() {
		return nil, fmt.Errorf("funding: no value attached: %w", coreerrors.ErrInvalidAmount)
	}
	accepted, remainder := pricing.Split(call.Value, in.UnitPrice)
	if accepted.IsZero() {
		return nil, fmt.Errorf("funding: value %s below unit price: %w", call.Value.Dec(), coreerrors.ErrInvalidAmount)
	}
	if err := in.Treasury.DepositEscrow(call.Proposer, asset, call.Value); err != nil {
		return nil, err
	}
	if !remainder.IsZero() {
		if err := in.Treasury.Payout(call.Proposer, asset, remainder, ReasonRemainder); err != nil {
			return nil, err
		}
	}
	return accepted, nil
}

func (in *Intake) receiveToken(asset treasury.AssetKind, declared *uint256.Int, call Call) (*uint256.Int, error) {
	if call.Value != nil && !call.Value.IsZero() {
		return nil, fmt.Errorf("funding: native value sent with %s stake: %w", asset, coreerrors.ErrInvalidAmount)
	}
	if declared == nil || declared.IsZero() {
		return nil, fmt.Errorf("funding: zero token stake: %w", coreerrors.ErrInvalidAmount)
	}
	if in.Tokens == nil {
		return nil, fmt.Errorf("funding: token ledger not configured")
	}
	tok := in.Tokens(asset.Token)
	if tok == nil {
		return nil, fmt.Errorf("funding: unknown token %s", asset.Token)
	}
	if err := in.pull(tok, declared, call.Proposer); err != nil {
		return nil, err
	}
	if err := in.Treasury.DepositEscrow(call.Proposer, asset, declared); err != nil {
		return nil, err
	}
	return declared.Clone(), nil
}

func (in *Intake) pull(tok TokenLedger, amount *uint256.Int, proposer crypto.Address) error {
	for _, src := range Sources(in.Org, in.Adapter) {
		err := tok.TransferFrom(src.Spender, proposer, src.Recipient, amount)
		if err != nil {
			in.logger().Debug("allowance pull refused", "source", src.Name, "proposer", proposer.String(), "error", err)
			continue
		}
		if src.Forward {
			if err := tok.Transfer(src.Recipient, in.Org, amount); err != nil {
				return fmt.Errorf("funding: forward from %s: %w", src.Name, err)
			}
		}
		return nil
	}
	return coreerrors.ErrTransferNotAuthorized
}

// Refund returns amount of escrowed asset to to. Token stakes move back on the
// token ledger; native refunds surface as a payout for the settlement layer.
func (in *Intake) Refund(asset treasury.AssetKind, amount *uint256.Int, to crypto.Address) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if !asset.IsNative() {
		if in.Tokens == nil {
			return fmt.Errorf("funding: token ledger not configured")
		}
		tok := in.Tokens(asset.Token)
		if tok == nil {
			return fmt.Errorf("funding: unknown token %s", asset.Token)
		}
		if err := tok.Transfer(in.Org, to, amount); err != nil {
			return fmt.Errorf("funding: refund: %w", err)
		}
	}
	return in.Treasury.Payout(to, asset, amount, ReasonRefund)
}
