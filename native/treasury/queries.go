package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	"guildhall/crypto"
)

// BalanceOf returns the balance account holds in asset.
func (l *Ledger) BalanceOf(account crypto.Address, asset AssetKind) (*uint256.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	return l.loadAmount(balanceKey(account, asset))
}

// UnitsOf returns the units of class held by account.
func (l *Ledger) UnitsOf(account crypto.Address, class UnitClass) (*uint256.Int, error) {
	if !class.valid() {
		return nil, fmt.Errorf("treasury: unknown unit class %d", class)
	}
	return l.loadAmount(unitsKey(account, class))
}

// LootBalanceOf returns the non-voting units held by account.
func (l *Ledger) LootBalanceOf(account crypto.Address) (*uint256.Int, error) {
	return l.UnitsOf(account, UnitLoot)
}

// SharesOf returns the voting shares held by account.
func (l *Ledger) SharesOf(account crypto.Address) (*uint256.Int, error) {
	return l.UnitsOf(account, UnitShares)
}

// TotalUnits returns the units of class issued across all accounts.
func (l *Ledger) TotalUnits(class UnitClass) (*uint256.Int, error) {
	if !class.valid() {
		return nil, fmt.Errorf("treasury: unknown unit class %d", class)
	}
	return l.loadAmount(composite(unitTotalPrefix, []byte{byte(class)}))
}

// Totals returns the flow counters for asset.
func (l *Ledger) Totals(asset AssetKind) (Totals, error) {
	received, err := l.loadAmount(composite(receivedPrefix, asset.Key()))
	if err != nil {
		return Totals{}, err
	}
	disbursed, err := l.loadAmount(composite(disbursedPrefix, asset.Key()))
	if err != nil {
		return Totals{}, err
	}
	supply, err := l.loadAmount(composite(supplyPrefix, asset.Key()))
	if err != nil {
		return Totals{}, err
	}
	return Totals{Received: received, Disbursed: disbursed, Supply: supply}, nil
}

// Accounts lists every account that ever held asset, in first-seen order.
func (l *Ledger) Accounts(asset AssetKind) ([]crypto.Address, error) {
	var raw [][]byte
	if err := l.state.KVGetList(composite(accountsPrefix, asset.Key()), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		out = append(out, crypto.BytesToAddress(entry))
	}
	return out, nil
}

// Holders lists every account that ever received units of class.
func (l *Ledger) Holders(class UnitClass) ([]crypto.Address, error) {
	var raw [][]byte
	if err := l.state.KVGetList(composite(holdersPrefix, []byte{byte(class)}), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		out = append(out, crypto.BytesToAddress(entry))
	}
	return out, nil
}

// Assets lists every asset kind the ledger has seen.
func (l *Ledger) Assets() ([]AssetKind, error) {
	var raw [][]byte
	if err := l.state.KVGetList(assetsIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]AssetKind, 0, len(raw))
	for _, entry := range raw {
		kind, err := assetFromKey(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, kind)
	}
	return out, nil
}

// CheckConservation sums every account balance of asset and verifies the sum
// equals total received minus total disbursed.
func (l *Ledger) CheckConservation(asset AssetKind) error {
	accounts, err := l.Accounts(asset)
	if err != nil {
		return err
	}
	sum := new(uint256.Int)
	for _, account := range accounts {
		balance, err := l.BalanceOf(account, asset)
		if err != nil {
			return err
		}
		if _, overflow := sum.AddOverflow(sum, balance); overflow {
			return fmt.Errorf("treasury: %s balances overflow", asset)
		}
	}
	totals, err := l.Totals(asset)
	if err != nil {
		return err
	}
	if totals.Received.Lt(totals.Disbursed) {
		return fmt.Errorf("treasury: %s disbursed more than received", asset)
	}
	expected := new(uint256.Int).Sub(totals.Received, totals.Disbursed)
	if !sum.Eq(expected) {
		return fmt.Errorf("treasury: %s balances sum to %s, flows say %s", asset, sum.Dec(), expected.Dec())
	}
	if !sum.Eq(totals.Supply) {
		return fmt.Errorf("treasury: %s balances sum to %s, supply says %s", asset, sum.Dec(), totals.Supply.Dec())
	}
	return nil
}
