// Package fixedpoint provides the integer arithmetic used by the ledger.
// Amounts are *big.Int base units; the token carries Decimals decimals.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of decimals of the token and of the base asset.
const Decimals = 18

// Unit is 10^Decimals, one whole token expressed in base units.
var Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Zero returns a fresh zero amount.
func Zero() *big.Int {
	return new(big.Int)
}

// Clone returns a copy of a, treating nil as zero.
func Clone(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}

// Tokens returns n whole units.
func Tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Unit)
}

// Add returns a+b without touching the operands.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(Clone(a), Clone(b))
}

// Sub returns a-b without touching the operands.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(Clone(a), Clone(b))
}

// MulDiv returns floor(a*b/c). A zero divisor yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if c == nil || c.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(Clone(a), Clone(b))
	return out.Quo(out, c)
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if Clone(a).Cmp(Clone(b)) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// IsPositive reports whether a > 0.
func IsPositive(a *big.Int) bool {
	return a != nil && a.Sign() > 0
}

// IsZero reports whether a is nil or zero.
func IsZero(a *big.Int) bool {
	return a == nil || a.Sign() == 0
}

// FromDecimal converts a whole-unit decimal into base units, truncating
// anything below one base unit.
func FromDecimal(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).Truncate(0).BigInt()
}

// Parse reads a base-unit integer string ("1500000000000000000").
func Parse(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// ParseUnits reads a whole-unit decimal string ("1.5") into base units.
func ParseUnits(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Format renders base units as a whole-unit decimal string.
func Format(a *big.Int) string {
	return decimal.NewFromBigInt(Clone(a), -Decimals).String()
}

// FormatFixed renders base units with exactly places decimals.
func FormatFixed(a *big.Int, places int32) string {
	return decimal.NewFromBigInt(Clone(a), -Decimals).StringFixed(places)
}
