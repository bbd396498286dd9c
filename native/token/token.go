package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"guildhall/core/events"
	"guildhall/core/state"
	"guildhall/crypto"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrOverflow              = errors.New("token: amount overflow")
)

var (
	balancePrefix   = []byte("balance/")
	allowancePrefix = []byte("allowance/")
	supplyKey       = []byte("supply")
	metadataKey     = []byte("metadata")
)

type tokenState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Metadata describes a token deployment.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Token is a fungible token with an owner/spender allowance model. Its
// balances live in the world state next to the organizations that hold it so
// a failed call rolls token movements back together with ledger writes.
type Token struct {
	addr    crypto.Address
	state   tokenState
	emitter events.Emitter
}

// Namespace returns the world-state prefix that holds the token at addr.
func Namespace(addr crypto.Address) string {
	return "token/" + addr.Hex() + "/"
}

// Open binds the token at addr to the world state.
func Open(world *state.Manager, addr crypto.Address) *Token {
	return New(addr, world.Prefixed(Namespace(addr)))
}

// New binds the token at addr to an already scoped state.
func New(addr crypto.Address, st tokenState) *Token {
	return &Token{addr: addr, state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the token. Passing nil
// resets the emitter to a no-op implementation.
func (t *Token) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

// Address returns the token identifier.
func (t *Token) Address() crypto.Address { return t.addr }

// SetMetadata stores descriptive metadata.
func (t *Token) SetMetadata(meta Metadata) error {
	return t.state.KVPut(metadataKey, &meta)
}

// Metadata returns the stored metadata, if any.
func (t *Token) Metadata() (Metadata, bool, error) {
	var meta Metadata
	ok, err := t.state.KVGet(metadataKey, &meta)
	return meta, ok, err
}

func balanceKey(owner crypto.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), owner[:]...)
}

func allowanceKey(owner, spender crypto.Address) []byte {
	key := append([]byte(nil), allowancePrefix...)
	key = append(key, owner[:]...)
	return append(key, spender[:]...)
}

func (t *Token) load(key []byte) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := t.state.KVGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, ErrOverflow
	}
	return value, nil
}

func (t *Token) store(key []byte, value *uint256.Int) error {
	return t.state.KVPut(key, value.ToBig())
}

// BalanceOf returns the balance of owner.
func (t *Token) BalanceOf(owner crypto.Address) (*uint256.Int, error) {
	return t.load(balanceKey(owner))
}

// Allowance returns how much spender may still pull from owner.
func (t *Token) Allowance(owner, spender crypto.Address) (*uint256.Int, error) {
	return t.load(allowanceKey(owner, spender))
}

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() (*uint256.Int, error) {
	return t.load(supplyKey)
}

// Mint creates amount new tokens for to.
func (t *Token) Mint(to crypto.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("token: amount required")
	}
	supply, err := t.TotalSupply()
	if err != nil {
		return err
	}
	balance, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrOverflow
	}
	if err := t.store(supplyKey, nextSupply); err != nil {
		return err
	}
	if err := t.store(balanceKey(to), new(uint256.Int).Add(balance, amount)); err != nil {
		return err
	}
	t.emitter.Emit(events.TokenTransfer{Token: t.addr, From: crypto.ZeroAddress, To: to, Amount: amount.Clone()})
	return nil
}

// Approve sets the allowance spender may pull from owner.
func (t *Token) Approve(owner, spender crypto.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("token: amount required")
	}
	if err := t.store(allowanceKey(owner, spender), amount); err != nil {
		return err
	}
	t.emitter.Emit(events.TokenApproval{Token: t.addr, Owner: owner, Spender: spender, Amount: amount.Clone()})
	return nil
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("token: amount required")
	}
	fromBalance, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, fromBalance.Dec(), amount.Dec())
	}
	if from != to {
		toBalance, err := t.BalanceOf(to)
		if err != nil {
			return err
		}
		nextTo, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
		if overflow {
			return ErrOverflow
		}
		if err := t.store(balanceKey(from), new(uint256.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		if err := t.store(balanceKey(to), nextTo); err != nil {
			return err
		}
	}
	t.emitter.Emit(events.TokenTransfer{Token: t.addr, From: from, To: to, Amount: amount.Clone()})
	return nil
}

// TransferFrom lets spender move amount out of from's balance within the
// allowance from granted it.
func (t *Token) TransferFrom(spender, from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("token: amount required")
	}
	allowance, err := t.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s %s, needs %s", ErrInsufficientAllowance, from, spender, allowance.Dec(), amount.Dec())
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	return t.store(allowanceKey(from, spender), new(uint256.Int).Sub(allowance, amount))
}
