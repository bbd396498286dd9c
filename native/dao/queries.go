package dao

import (
	"github.com/holiman/uint256"

	"guildhall/crypto"
	"guildhall/native/proposals"
	"guildhall/native/treasury"
)

// LootBalanceOf returns the Loot held by account.
func (o *Organization) LootBalanceOf(account crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.ledger.LootBalanceOf(account)
		return err
	})
	return out, err
}

// SharesOf returns the voting shares held by account.
func (o *Organization) SharesOf(account crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.ledger.SharesOf(account)
		return err
	})
	return out, err
}

// BalanceOf returns the ledger balance of account in asset. Use
// crypto.GuildAddress for the treasury total.
func (o *Organization) BalanceOf(account crypto.Address, asset treasury.AssetKind) (*uint256.Int, error) {
	var out *uint256.Int
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.ledger.BalanceOf(account, asset)
		return err
	})
	return out, err
}

// Totals returns the flow counters of asset.
func (o *Organization) Totals(asset treasury.AssetKind) (treasury.Totals, error) {
	var out treasury.Totals
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.ledger.Totals(asset)
		return err
	})
	return out, err
}

// CheckConservation verifies every asset the ledger has seen.
func (o *Organization) CheckConservation() error {
	return o.View(func(tx *Tx) error {
		assets, err := tx.ledger.Assets()
		if err != nil {
			return err
		}
		for _, asset := range assets {
			if err := tx.ledger.CheckConservation(asset); err != nil {
				return err
			}
		}
		return nil
	})
}

// Proposal loads one proposal.
func (o *Organization) Proposal(id uint64) (*proposals.Proposal, error) {
	var out *proposals.Proposal
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.proposals.Get(id)
		return err
	})
	return out, err
}

// Proposals lists every proposal in submission order.
func (o *Organization) Proposals() ([]*proposals.Proposal, error) {
	var out []*proposals.Proposal
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.proposals.List()
		return err
	})
	return out, err
}

// IsMember reports whether account holds voting shares.
func (o *Organization) IsMember(account crypto.Address) (bool, error) {
	var out bool
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.IsMember(account)
		return err
	})
	return out, err
}

// Members lists every account that ever held units of class, in first-seen
// order.
func (o *Organization) Members(class treasury.UnitClass) ([]crypto.Address, error) {
	var out []crypto.Address
	err := o.View(func(tx *Tx) error {
		var err error
		out, err = tx.ledger.Holders(class)
		return err
	})
	return out, err
}
