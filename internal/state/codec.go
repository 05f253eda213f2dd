package state

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"time-ledger/internal/domain"
)

// Codec converts values to and from their canonical storage text.
type Codec[T any] interface {
	Encode(T) string
	Decode(string) (T, error)
	Zero() T
	Clone(T) T
	IsZero(T) bool
}

// AmountCodec stores *big.Int values in base 10. Negative values are allowed
// so signed corrections can share the codec.
type AmountCodec struct{}

func (AmountCodec) Encode(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (AmountCodec) Decode(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("decode amount %q", s)
	}
	return v, nil
}

func (AmountCodec) Zero() *big.Int { return new(big.Int) }

func (AmountCodec) Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (AmountCodec) IsZero(v *big.Int) bool { return v == nil || v.Sign() == 0 }

// BoolCodec stores flags as "true"/"false".
type BoolCodec struct{}

func (BoolCodec) Encode(v bool) string          { return strconv.FormatBool(v) }
func (BoolCodec) Decode(s string) (bool, error) { return strconv.ParseBool(s) }
func (BoolCodec) Zero() bool                    { return false }
func (BoolCodec) Clone(v bool) bool             { return v }
func (BoolCodec) IsZero(v bool) bool            { return !v }

// HeightCodec stores ledger heights.
type HeightCodec struct{}

func (HeightCodec) Encode(v uint64) string          { return strconv.FormatUint(v, 10) }
func (HeightCodec) Decode(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }
func (HeightCodec) Zero() uint64                    { return 0 }
func (HeightCodec) Clone(v uint64) uint64           { return v }
func (HeightCodec) IsZero(v uint64) bool            { return v == 0 }

// AddressCodec keys records by base58 address.
type AddressCodec struct{}

func (AddressCodec) Encode(a domain.Address) string { return a.String() }
func (AddressCodec) Decode(s string) (domain.Address, error) {
	return domain.ParseAddress(s)
}
func (AddressCodec) Zero() domain.Address                  { return domain.ZeroAddress }
func (AddressCodec) Clone(a domain.Address) domain.Address { return a }
func (AddressCodec) IsZero(a domain.Address) bool          { return a.IsZero() }

// PairKey identifies an ordered pair of addresses, such as owner and spender.
type PairKey struct {
	First  domain.Address
	Second domain.Address
}

// PairCodec keys records by "first:second".
type PairCodec struct{}

func (PairCodec) Encode(k PairKey) string {
	return k.First.String() + ":" + k.Second.String()
}

func (PairCodec) Decode(s string) (PairKey, error) {
	first, second, ok := strings.Cut(s, ":")
	if !ok {
		return PairKey{}, fmt.Errorf("decode pair key %q", s)
	}
	a, err := domain.ParseAddress(first)
	if err != nil {
		return PairKey{}, err
	}
	b, err := domain.ParseAddress(second)
	if err != nil {
		return PairKey{}, err
	}
	return PairKey{First: a, Second: b}, nil
}

func (PairCodec) Zero() PairKey           { return PairKey{} }
func (PairCodec) Clone(k PairKey) PairKey { return k }
func (PairCodec) IsZero(k PairKey) bool   { return k.First.IsZero() && k.Second.IsZero() }
