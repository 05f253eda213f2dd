package fixedpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Fraction is an exact rational in [0, 1] used for fee splits.
type Fraction struct {
	num *big.Int
	den *big.Int
}

// NewFraction returns num/den. den must be positive.
func NewFraction(num, den int64) Fraction {
	return Fraction{num: big.NewInt(num), den: big.NewInt(den)}
}

// ParseFraction accepts "a/b" or a decimal such as "0.02".
func ParseFraction(s string) (Fraction, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Fraction{}, fmt.Errorf("empty fraction")
	}

	var f Fraction
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, okN := new(big.Int).SetString(strings.TrimSpace(num), 10)
		d, okD := new(big.Int).SetString(strings.TrimSpace(den), 10)
		if !okN || !okD {
			return Fraction{}, fmt.Errorf("invalid fraction %q", s)
		}
		f = Fraction{num: n, den: d}
	} else {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Fraction{}, fmt.Errorf("invalid fraction %q: %w", s, err)
		}
		exp := d.Exponent()
		if exp >= 0 {
			f = Fraction{num: d.BigInt(), den: big.NewInt(1)}
		} else {
			den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
			f = Fraction{num: d.Coefficient(), den: den}
		}
	}

	if err := f.Validate(); err != nil {
		return Fraction{}, fmt.Errorf("fraction %q: %w", s, err)
	}
	return f, nil
}

// MustFraction is ParseFraction for constants.
func MustFraction(s string) Fraction {
	f, err := ParseFraction(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate checks that the fraction lies in [0, 1].
func (f Fraction) Validate() error {
	if f.den == nil || f.den.Sign() <= 0 {
		return fmt.Errorf("denominator must be positive")
	}
	if f.num == nil || f.num.Sign() < 0 {
		return fmt.Errorf("numerator must not be negative")
	}
	if f.num.Cmp(f.den) > 0 {
		return fmt.Errorf("must not exceed 1")
	}
	return nil
}

// IsSet reports whether the fraction was initialised.
func (f Fraction) IsSet() bool {
	return f.den != nil
}

// Of returns floor(a * f).
func (f Fraction) Of(a *big.Int) *big.Int {
	if !f.IsSet() {
		return new(big.Int)
	}
	return MulDiv(a, f.num, f.den)
}

// Complement returns 1 - f.
func (f Fraction) Complement() Fraction {
	return Fraction{num: new(big.Int).Sub(f.den, f.num), den: new(big.Int).Set(f.den)}
}

// Cmp compares two fractions.
func (f Fraction) Cmp(g Fraction) int {
	left := new(big.Int).Mul(f.num, g.den)
	right := new(big.Int).Mul(g.num, f.den)
	return left.Cmp(right)
}

// Decimal approximates the fraction for display.
func (f Fraction) Decimal() decimal.Decimal {
	if !f.IsSet() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(f.num, 0).DivRound(decimal.NewFromBigInt(f.den, 0), 8)
}

func (f Fraction) String() string {
	if !f.IsSet() {
		return "0/1"
	}
	return f.num.String() + "/" + f.den.String()
}

// MarshalJSON encodes the fraction as "num/den".
func (f Fraction) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts a quoted "a/b", a quoted decimal, or a bare number.
func (f *Fraction) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	parsed, err := ParseFraction(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Plus returns f + g. The result may exceed 1 and is meant for comparisons.
func (f Fraction) Plus(g Fraction) Fraction {
	num := new(big.Int).Add(new(big.Int).Mul(f.num, g.den), new(big.Int).Mul(g.num, f.den))
	return Fraction{num: num, den: new(big.Int).Mul(f.den, g.den)}
}
