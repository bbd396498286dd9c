package pricing

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "guildhall/core/errors"
)

// Schedule prices Loot in whole chunks. Every UnitPrice of stake buys
// UnitsPerChunk units, and the organization never issues more than MaxUnits in
// total.
type Schedule struct {
	UnitPrice     *uint256.Int
	UnitsPerChunk *uint256.Int
	MaxUnits      *uint256.Int
}

// Validate reports configuration errors.
func (s Schedule) Validate() error {
	if s.UnitPrice == nil || s.UnitPrice.IsZero() {
		return fmt.Errorf("pricing: unit price must be positive")
	}
	if s.UnitsPerChunk != nil && s.UnitsPerChunk.IsZero() {
		return fmt.Errorf("pricing: units per chunk must be positive")
	}
	if s.MaxUnits == nil || s.MaxUnits.IsZero() {
		return fmt.Errorf("pricing: max units must be positive")
	}
	return nil
}

func (s Schedule) perChunk() *uint256.Int {
	if s.UnitsPerChunk == nil {
		return uint256.NewInt(1)
	}
	return s.UnitsPerChunk
}

// UnitsFor converts a received amount into Loot units. issued is the number of
// units already granted or reserved by the organization. The result depends
// only on its inputs.
func UnitsFor(amount *uint256.Int, s Schedule, issued *uint256.Int) (*uint256.Int, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("pricing: zero stake: %w", coreerrors.ErrInvalidAmount)
	}
	chunks, rem := new(uint256.Int).DivMod(amount, s.UnitPrice, new(uint256.Int))
	if !rem.IsZero() {
		return nil, fmt.Errorf("pricing: stake %s is not a multiple of %s: %w", amount.Dec(), s.UnitPrice.Dec(), coreerrors.ErrInvalidAmount)
	}
	units, overflow := new(uint256.Int).MulOverflow(chunks, s.perChunk())
	if overflow {
		return nil, fmt.Errorf("pricing: units overflow: %w", coreerrors.ErrLimitExceeded)
	}
	base := issued
	if base == nil {
		base = new(uint256.Int)
	}
	total, overflow := new(uint256.Int).AddOverflow(base, units)
	if overflow || total.Gt(s.MaxUnits) {
		return nil, fmt.Errorf("pricing: %s units on top of %s exceed cap %s: %w", units.Dec(), base.Dec(), s.MaxUnits.Dec(), coreerrors.ErrLimitExceeded)
	}
	return units, nil
}

// Split separates amount into the largest exact multiple of price and the
// remainder.
func Split(amount, price *uint256.Int) (accepted, remainder *uint256.Int) {
	if amount == nil {
		return new(uint256.Int), new(uint256.Int)
	}
	if price == nil || price.IsZero() {
		return new(uint256.Int), amount.Clone()
	}
	remainder = new(uint256.Int).Mod(amount, price)
	accepted = new(uint256.Int).Sub(amount, remainder)
	return accepted, remainder
}
