package domain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the size of an address in bytes.
const AddressLength = 32

// contractMarker is appended to derivation seeds, like Solana's PDA marker.
const contractMarker = "TimeLedgerContract"

// Address identifies an account or a contract on the ledger.
// User addresses are ed25519 public keys; contract addresses are derived
// off the curve so no private key can ever sign for them.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. Tokens minted come from it and
// burned tokens go to it.
var ZeroAddress Address

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return a, fmt.Errorf("address %q: expected %d bytes, got %d", s, AddressLength, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromPublicKey converts an ed25519 public key into a user address.
func AddressFromPublicKey(pub ed25519.PublicKey) (Address, error) {
	var a Address
	if len(pub) != AddressLength {
		return a, fmt.Errorf("public key: expected %d bytes, got %d", AddressLength, len(pub))
	}
	copy(a[:], pub)
	if !a.IsOnCurve() {
		return a, fmt.Errorf("public key %s is not a curve point", a)
	}
	return a, nil
}

// DeriveContractAddress returns the first off-curve hash of
// seed || bump || marker, searching bumps from 255 downward.
func DeriveContractAddress(seed string) (Address, error) {
	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, len(seed)+1+len(contractMarker))
		data = append(data, seed...)
		data = append(data, byte(bump))
		data = append(data, contractMarker...)

		hash := sha256.Sum256(data)
		a := Address(hash)
		if !a.IsOnCurve() {
			return a, nil
		}
	}
	return ZeroAddress, fmt.Errorf("no off-curve address for seed %q", seed)
}

// IsOnCurve reports whether the address decodes to an ed25519 point.
func (a Address) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short returns an abbreviated form for logs.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 10 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
