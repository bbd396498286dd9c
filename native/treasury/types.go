package treasury

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"guildhall/crypto"
)

// AssetClass enumerates the funding instruments the ledger tracks.
type AssetClass uint8

const (
	AssetNative AssetClass = iota + 1
	AssetToken
)

// AssetKind identifies one balance column. Native currency always carries the
// zero token address so the zero value of Token is meaningful.
type AssetKind struct {
	Class AssetClass
	Token crypto.Address
}

// Native returns the native-currency asset kind.
func Native() AssetKind { return AssetKind{Class: AssetNative} }

// Token returns the asset kind for the fungible token at addr.
func Token(addr crypto.Address) AssetKind { return AssetKind{Class: AssetToken, Token: addr} }

// IsNative reports whether the kind denotes native currency.
func (a AssetKind) IsNative() bool { return a.Class == AssetNative }

// Validate checks that the kind is well formed.
func (a AssetKind) Validate() error {
	switch a.Class {
	case AssetNative:
		if !a.Token.IsZero() {
			return fmt.Errorf("treasury: native asset must not name a token")
		}
	case AssetToken:
		if a.Token.IsZero() {
			return fmt.Errorf("treasury: token asset requires a token address")
		}
	default:
		return fmt.Errorf("treasury: unknown asset class %d", a.Class)
	}
	return nil
}

// String renders "native" or "token:<address>".
func (a AssetKind) String() string {
	if a.Class == AssetToken {
		return "token:" + a.Token.String()
	}
	return "native"
}

// MarshalText implements encoding.TextMarshaler.
func (a AssetKind) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AssetKind) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetKind(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAssetKind parses the text form produced by String.
func ParseAssetKind(s string) (AssetKind, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "native") {
		return Native(), nil
	}
	raw, ok := strings.CutPrefix(trimmed, "token:")
	if !ok {
		return AssetKind{}, fmt.Errorf("treasury: unknown asset %q", s)
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return AssetKind{}, fmt.Errorf("treasury: asset token: %w", err)
	}
	kind := Token(addr)
	if err := kind.Validate(); err != nil {
		return AssetKind{}, err
	}
	return kind, nil
}

// Key is the compact binary identifier used in storage keys.
func (a AssetKind) Key() []byte {
	out := make([]byte, 0, 1+crypto.AddressLength)
	out = append(out, byte(a.Class))
	return append(out, a.Token[:]...)
}

func assetFromKey(key []byte) (AssetKind, error) {
	if len(key) != 1+crypto.AddressLength {
		return AssetKind{}, fmt.Errorf("treasury: malformed asset key")
	}
	kind := AssetKind{Class: AssetClass(key[0]), Token: crypto.BytesToAddress(key[1:])}
	return kind, kind.Validate()
}

// UnitClass distinguishes voting shares from non-voting Loot.
type UnitClass uint8

const (
	UnitShares UnitClass = iota + 1
	UnitLoot
)

func (c UnitClass) String() string {
	switch c {
	case UnitShares:
		return "shares"
	case UnitLoot:
		return "loot"
	default:
		return fmt.Sprintf("unit(%d)", uint8(c))
	}
}

func (c UnitClass) valid() bool { return c == UnitShares || c == UnitLoot }

// Totals aggregates the flow counters of one asset.
type Totals struct {
	Received  *uint256.Int
	Disbursed *uint256.Int
	Supply    *uint256.Int
}
