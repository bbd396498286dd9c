package funding

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "guildhall/core/errors"
	"guildhall/core/state"
	"guildhall/crypto"
	"guildhall/native/token"
	"guildhall/native/treasury"
	"guildhall/storage"
)

type payout struct {
	to     crypto.Address
	amount uint64
	reason string
}

type mockTreasury struct {
	escrowed map[treasury.AssetKind]uint64
	payouts  []payout
}

func newMockTreasury() *mockTreasury {
	return &mockTreasury{escrowed: make(map[treasury.AssetKind]uint64)}
}

func (m *mockTreasury) DepositEscrow(from crypto.Address, asset treasury.AssetKind, amount *uint256.Int) error {
	m.escrowed[asset] += amount.Uint64()
	return nil
}

func (m *mockTreasury) Payout(to crypto.Address, asset treasury.AssetKind, amount *uint256.Int, reason string) error {
	m.escrowed[asset] -= amount.Uint64()
	m.payouts = append(m.payouts, payout{to: to, amount: amount.Uint64(), reason: reason})
	return nil
}

var (
	orgAddr     = crypto.BytesToAddress([]byte("org"))
	adapterAddr = crypto.BytesToAddress([]byte("adapter"))
	tokenAddr   = crypto.BytesToAddress([]byte("token"))
	applicant   = crypto.BytesToAddress([]byte("applicant"))
)

func newTokenIntake(t *testing.T) (*Intake, *token.Token, *mockTreasury) {
	t.Helper()
	world := state.NewManager(storage.NewMemDB())
	tok := token.Open(world, tokenAddr)
	mt := newMockTreasury()
	in := &Intake{
		Org:       orgAddr,
		Adapter:   adapterAddr,
		UnitPrice: uint256.NewInt(10),
		Treasury:  mt,
		Tokens: func(addr crypto.Address) TokenLedger {
			if addr != tokenAddr {
				return nil
			}
			return tok
		},
	}
	return in, tok, mt
}

func TestSourcesOrder(t *testing.T) {
	sources := Sources(orgAddr, adapterAddr)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Spender != orgAddr || sources[0].Recipient != orgAddr || sources[0].Forward {
		t.Fatalf("organization allowance must be tried first: %+v", sources[0])
	}
	if sources[1].Spender != adapterAddr || sources[1].Recipient != adapterAddr || !sources[1].Forward {
		t.Fatalf("adapter allowance must forward: %+v", sources[1])
	}
	if got := Sources(orgAddr, orgAddr); len(got) != 1 {
		t.Fatalf("identical spender must not be tried twice")
	}
}

func TestNativeValueIsAuthoritative(t *testing.T) {
	mt := newMockTreasury()
	in := &Intake{Org: orgAddr, UnitPrice: uint256.NewInt(100), Treasury: mt}
	received, err := in.Receive(treasury.Native(), uint256.NewInt(1), Call{Proposer: applicant, Value: uint256.NewInt(345)})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Uint64() != 300 {
		t.Fatalf("expected 300 accepted, got %s", received.Dec())
	}
	if mt.escrowed[treasury.Native()] != 300 {
		t.Fatalf("expected 300 left in escrow, got %d", mt.escrowed[treasury.Native()])
	}
	if len(mt.payouts) != 1 || mt.payouts[0].amount != 45 || mt.payouts[0].reason != ReasonRemainder || mt.payouts[0].to != applicant {
		t.Fatalf("unexpected payouts %+v", mt.payouts)
	}
}

func TestNativeRejectsMissingOrTinyValue(t *testing.T) {
	in := &Intake{Org: orgAddr, UnitPrice: uint256.NewInt(100), Treasury: newMockTreasury()}
	for _, value := range []*uint256.Int{nil, uint256.NewInt(0), uint256.NewInt(99)} {
		if _, err := in.Receive(treasury.Native(), nil, Call{Proposer: applicant, Value: value}); !errors.Is(err, coreerrors.ErrInvalidAmount) {
			t.Fatalf("value %v: expected ErrInvalidAmount, got %v", value, err)
		}
	}
}

func TestTokenWithoutAllowanceFailsWithStableMessage(t *testing.T) {
	in, tok, mt := newTokenIntake(t)
	if err := tok.Mint(applicant, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err := in.Receive(treasury.Token(tokenAddr), uint256.NewInt(10), Call{Proposer: applicant})
	if !errors.Is(err, coreerrors.ErrTransferNotAuthorized) {
		t.Fatalf("expected ErrTransferNotAuthorized, got %v", err)
	}
	if err.Error() != "ERC20 transfer not allowed" {
		t.Fatalf("unstable message %q", err.Error())
	}
	if coreerrors.Code(err) != "ERC20_TRANSFER_NOT_ALLOWED" {
		t.Fatalf("unexpected code %s", coreerrors.Code(err))
	}
	if len(mt.escrowed) != 0 {
		t.Fatalf("nothing may be escrowed on failure")
	}
}

func TestTokenOrganizationAllowance(t *testing.T) {
	in, tok, mt := newTokenIntake(t)
	_ = tok.Mint(applicant, uint256.NewInt(100))
	_ = tok.Approve(applicant, orgAddr, uint256.NewInt(10))
	if _, err := in.Receive(treasury.Token(tokenAddr), uint256.NewInt(10), Call{Proposer: applicant}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	held, _ := tok.BalanceOf(orgAddr)
	if held.Uint64() != 10 {
		t.Fatalf("organization should hold 10, got %s", held.Dec())
	}
	if mt.escrowed[treasury.Token(tokenAddr)] != 10 {
		t.Fatalf("expected escrow 10")
	}
}

func TestTokenAdapterAllowanceForwards(t *testing.T) {
	in, tok, _ := newTokenIntake(t)
	_ = tok.Mint(applicant, uint256.NewInt(100))
	_ = tok.Approve(applicant, adapterAddr, uint256.NewInt(100))
	received, err := in.Receive(treasury.Token(tokenAddr), uint256.NewInt(10), Call{Proposer: applicant})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Uint64() != 10 {
		t.Fatalf("expected 10 received, got %s", received.Dec())
	}
	orgHeld, _ := tok.BalanceOf(orgAddr)
	adapterHeld, _ := tok.BalanceOf(adapterAddr)
	left, _ := tok.Allowance(applicant, adapterAddr)
	if orgHeld.Uint64() != 10 || !adapterHeld.IsZero() || left.Uint64() != 90 {
		t.Fatalf("unexpected token state org=%s adapter=%s allowance=%s", orgHeld.Dec(), adapterHeld.Dec(), left.Dec())
	}
}

func TestTokenRejectsNativeValue(t *testing.T) {
	in, _, _ := newTokenIntake(t)
	_, err := in.Receive(treasury.Token(tokenAddr), uint256.NewInt(10), Call{Proposer: applicant, Value: uint256.NewInt(1)})
	if !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRefundToken(t *testing.T) {
	in, tok, mt := newTokenIntake(t)
	_ = tok.Mint(orgAddr, uint256.NewInt(10))
	mt.escrowed[treasury.Token(tokenAddr)] = 10
	if err := in.Refund(treasury.Token(tokenAddr), uint256.NewInt(10), applicant); err != nil {
		t.Fatalf("refund: %v", err)
	}
	back, _ := tok.BalanceOf(applicant)
	if back.Uint64() != 10 || mt.escrowed[treasury.Token(tokenAddr)] != 0 {
		t.Fatalf("refund did not return the stake")
	}
	if mt.payouts[0].reason != ReasonRefund {
		t.Fatalf("unexpected reason %s", mt.payouts[0].reason)
	}
}
