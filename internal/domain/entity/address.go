package entity

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// AddressLength is the size in bytes of an on-chain account key.
const AddressLength = 32

// Address is an on-chain account key. Its text form is base58.
type Address [AddressLength]byte

// ParseAddress decodes a base58 account key.
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, fmt.Errorf("address must not be empty")
	}
	raw := base58.Decode(s)
	if len(raw) != AddressLength {
		return a, fmt.Errorf("invalid address length: expected %d, got %d", AddressLength, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on invalid input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address length: expected %d, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all-zero key.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Equal reports whether a and other are the same key.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
