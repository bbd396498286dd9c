package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// AddressLength is the byte length of every account identifier.
const AddressLength = 20

// AddressPrefix is the human-readable part of the bech32 text form.
const AddressPrefix = "guild"

// Address identifies a member, an external account, a token contract or one of
// the distinguished organization accounts. It is comparable and therefore safe
// to use as a map key.
type Address [AddressLength]byte

var (
	// ZeroAddress is the unset address. Native currency is keyed by it.
	ZeroAddress = Address{}
	// GuildAddress holds the organization's shared treasury balances.
	GuildAddress = addressFromTail(0xde, 0xad)
	// EscrowAddress holds stakes that were received but not yet processed.
	EscrowAddress = addressFromTail(0xbe, 0xef)
)

func addressFromTail(tail ...byte) Address {
	var a Address
	copy(a[AddressLength-len(tail):], tail)
	return a
}

// BytesToAddress converts b into an address. Longer inputs keep the trailing
// bytes and shorter inputs are left padded, mirroring common.BytesToAddress.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Hex renders the address as 0x-prefixed lowercase hex.
func (a Address) Hex() string {
	return strings.ToLower(common.BytesToAddress(a[:]).Hex())
}

// String renders the bech32 text form used throughout logs and APIs.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses either the bech32 form or a 0x-prefixed hex string.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address must not be empty")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return Address{}, fmt.Errorf("invalid hex address %q", trimmed)
		}
		return BytesToAddress(common.HexToAddress(trimmed).Bytes()), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long", AddressLength)
	}
	return BytesToAddress(conv), nil
}

// MustDecodeAddress is DecodeAddress for constants and tests.
func MustDecodeAddress(addrStr string) Address {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		panic(err)
	}
	return addr
}
