package treasury

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "guildhall/core/errors"
	"guildhall/crypto"
)

var (
	balancePrefix   = []byte("treasury/balance/")
	unitsPrefix     = []byte("treasury/units/")
	unitTotalPrefix = []byte("treasury/units-total/")
	receivedPrefix  = []byte("treasury/received/")
	disbursedPrefix = []byte("treasury/disbursed/")
	supplyPrefix    = []byte("treasury/supply/")
	accountsPrefix  = []byte("treasury/accounts/")
	holdersPrefix   = []byte("treasury/holders/")
	assetsIndexKey  = []byte("treasury/assets")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Ledger keeps per-account balances for every asset kind together with the
// two ownership-unit classes. Every balance mutation goes through Credit,
// Debit, Transfer or AddUnits; each of them leaves the ledger satisfying
// supply == received - disbursed for the touched asset or fails without
// writing.
type Ledger struct {
	state ledgerState
}

// NewLedger binds a ledger to its backing state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func composite(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	out := make([]byte, 0, size)
	out = append(out, prefix...)
	for i, p := range parts {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, p...)
	}
	return out
}

func balanceKey(account crypto.Address, asset AssetKind) []byte {
	return composite(balancePrefix, asset.Key(), account[:])
}

func unitsKey(account crypto.Address, class UnitClass) []byte {
	return composite(unitsPrefix, []byte{byte(class)}, account[:])
}

func (l *Ledger) loadAmount(key []byte) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := l.state.KVGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, fmt.Errorf("treasury: stored amount out of range")
	}
	return value, nil
}

func (l *Ledger) storeAmount(key []byte, value *uint256.Int) error {
	return l.state.KVPut(key, value.ToBig())
}

func checkAmount(amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("treasury: amount required: %w", coreerrors.ErrInvalidAmount)
	}
	return nil
}

func (l *Ledger) index(asset AssetKind, account crypto.Address) error {
	if err := l.state.KVAppend(assetsIndexKey, asset.Key()); err != nil {
		return err
	}
	return l.state.KVAppend(composite(accountsPrefix, asset.Key()), account.Bytes())
}

// Credit records value entering the organization for account.
func (l *Ledger) Credit(account crypto.Address, asset AssetKind, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	balance, err := l.loadAmount(balanceKey(account, asset))
	if err != nil {
		return err
	}
	received, err := l.loadAmount(composite(receivedPrefix, asset.Key()))
	if err != nil {
		return err
	}
	supply, err := l.loadAmount(composite(supplyPrefix, asset.Key()))
	if err != nil {
		return err
	}
	nextBalance, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("treasury: credit %s: %w", asset, coreerrors.ErrOverflow)
	}
	nextReceived, overflow := new(uint256.Int).AddOverflow(received, amount)
	if overflow {
		return fmt.Errorf("treasury: received %s: %w", asset, coreerrors.ErrOverflow)
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return fmt.Errorf("treasury: supply %s: %w", asset, coreerrors.ErrOverflow)
	}
	if err := l.storeAmount(balanceKey(account, asset), nextBalance); err != nil {
		return err
	}
	if err := l.storeAmount(composite(receivedPrefix, asset.Key()), nextReceived); err != nil {
		return err
	}
	if err := l.storeAmount(composite(supplyPrefix, asset.Key()), nextSupply); err != nil {
		return err
	}
	if err := l.index(asset, account); err != nil {
		return err
	}
	return l.checkFlows(asset)
}

// Debit records value leaving the organization from account.
func (l *Ledger) Debit(account crypto.Address, asset AssetKind, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	balance, err := l.loadAmount(balanceKey(account, asset))
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("treasury: debit %s of %s from %s: %w", amount.Dec(), asset, account, coreerrors.ErrInsufficientBalance)
	}
	disbursed, err := l.loadAmount(composite(disbursedPrefix, asset.Key()))
	if err != nil {
		return err
	}
	supply, err := l.loadAmount(composite(supplyPrefix, asset.Key()))
	if err != nil {
		return err
	}
	nextDisbursed, overflow := new(uint256.Int).AddOverflow(disbursed, amount)
	if overflow {
		return fmt.Errorf("treasury: disbursed %s: %w", asset, coreerrors.ErrOverflow)
	}
	if supply.Lt(amount) {
		return fmt.Errorf("treasury: supply %s below debit: %w", asset, coreerrors.ErrInsufficientBalance)
	}
	if err := l.storeAmount(balanceKey(account, asset), new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := l.storeAmount(composite(disbursedPrefix, asset.Key()), nextDisbursed); err != nil {
		return err
	}
	if err := l.storeAmount(composite(supplyPrefix, asset.Key()), new(uint256.Int).Sub(supply, amount)); err != nil {
		return err
	}
	return l.checkFlows(asset)
}

// Transfer moves value between two ledger accounts without touching the flow
// counters.
func (l *Ledger) Transfer(from, to crypto.Address, asset AssetKind, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() || from == to {
		return nil
	}
	fromBalance, err := l.loadAmount(balanceKey(from, asset))
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("treasury: transfer %s of %s from %s: %w", amount.Dec(), asset, from, coreerrors.ErrInsufficientBalance)
	}
	toBalance, err := l.loadAmount(balanceKey(to, asset))
	if err != nil {
		return err
	}
	nextTo, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
	if overflow {
		return fmt.Errorf("treasury: transfer %s: %w", asset, coreerrors.ErrOverflow)
	}
	if err := l.storeAmount(balanceKey(from, asset), new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.storeAmount(balanceKey(to, asset), nextTo); err != nil {
		return err
	}
	if err := l.index(asset, to); err != nil {
		return err
	}
	return l.checkFlows(asset)
}

// AddUnits grants count units of class to account.
func (l *Ledger) AddUnits(account crypto.Address, class UnitClass, count *uint256.Int) error {
	if !class.valid() {
		return fmt.Errorf("treasury: unknown unit class %d", class)
	}
	if count == nil {
		return fmt.Errorf("treasury: unit count required: %w", coreerrors.ErrInvalidAmount)
	}
	if count.IsZero() {
		return nil
	}
	held, err := l.loadAmount(unitsKey(account, class))
	if err != nil {
		return err
	}
	total, err := l.loadAmount(composite(unitTotalPrefix, []byte{byte(class)}))
	if err != nil {
		return err
	}
	nextHeld, overflow := new(uint256.Int).AddOverflow(held, count)
	if overflow {
		return fmt.Errorf("treasury: %s for %s: %w", class, account, coreerrors.ErrOverflow)
	}
	nextTotal, overflow := new(uint256.Int).AddOverflow(total, count)
	if overflow {
		return fmt.Errorf("treasury: total %s: %w", class, coreerrors.ErrOverflow)
	}
	if err := l.storeAmount(unitsKey(account, class), nextHeld); err != nil {
		return err
	}
	if err := l.storeAmount(composite(unitTotalPrefix, []byte{byte(class)}), nextTotal); err != nil {
		return err
	}
	return l.state.KVAppend(composite(holdersPrefix, []byte{byte(class)}), account.Bytes())
}

// checkFlows enforces supply == received - disbursed for asset.
func (l *Ledger) checkFlows(asset AssetKind) error {
	totals, err := l.Totals(asset)
	if err != nil {
		return err
	}
	if totals.Received.Lt(totals.Disbursed) {
		return fmt.Errorf("treasury: %s disbursed more than received", asset)
	}
	expected := new(uint256.Int).Sub(totals.Received, totals.Disbursed)
	if !expected.Eq(totals.Supply) {
		return fmt.Errorf("treasury: %s supply %s does not match flows %s", asset, totals.Supply.Dec(), expected.Dec())
	}
	return nil
}
