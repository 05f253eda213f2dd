package exchange

import (
	"fmt"
	"math/big"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// Params are the economic constants of the engine.
type Params struct {
	// Address holds the token side of the curve and receives swaps.
	Address domain.Address
	// FeeRecipient receives developer fees.
	FeeRecipient domain.Address

	// BaseFee is the native enrollment fee at a zero mining rate.
	BaseFee *big.Int
	// TokenBaseFee is the token enrollment fee at a zero mining rate.
	TokenBaseFee *big.Int
	// BaseLiquidity is minted to Address at genesis.
	BaseLiquidity *big.Int

	// DeveloperFee is taken from swaps and enrollment payments.
	DeveloperFee fixedpoint.Fraction
	// DividendFee of every swap's native leg is shared among holders.
	DividendFee fixedpoint.Fraction
	// EnrollmentShare of an enrollment payment is shared among holders.
	EnrollmentShare fixedpoint.Fraction
	// DonationShare of a donation is shared among holders; the rest deepens the pool.
	DonationShare fixedpoint.Fraction
}

// DefaultParams returns the production constants.
func DefaultParams(address, feeRecipient domain.Address) Params {
	return Params{
		Address:         address,
		FeeRecipient:    feeRecipient,
		BaseFee:         new(big.Int).Div(fixedpoint.Unit, big.NewInt(100)),
		TokenBaseFee:    fixedpoint.Tokens(1),
		BaseLiquidity:   fixedpoint.Tokens(900_000),
		DeveloperFee:    fixedpoint.NewFraction(1, 100),
		DividendFee:     fixedpoint.NewFraction(1, 100),
		EnrollmentShare: fixedpoint.NewFraction(1, 2),
		DonationShare:   fixedpoint.NewFraction(1, 2),
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Address.IsZero() {
		return fmt.Errorf("exchange address is required")
	}
	if p.FeeRecipient.IsZero() {
		return fmt.Errorf("fee recipient is required")
	}
	if p.FeeRecipient == p.Address {
		return fmt.Errorf("fee recipient must differ from the exchange address")
	}
	if !fixedpoint.IsPositive(p.BaseFee) || !fixedpoint.IsPositive(p.TokenBaseFee) {
		return fmt.Errorf("base fees must be positive")
	}
	if !fixedpoint.IsPositive(p.BaseLiquidity) {
		return fmt.Errorf("base liquidity must be positive")
	}

	fractions := map[string]fixedpoint.Fraction{
		"developer fee":    p.DeveloperFee,
		"dividend fee":     p.DividendFee,
		"enrollment share": p.EnrollmentShare,
		"donation share":   p.DonationShare,
	}
	for name, f := range fractions {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// Swap and enrollment splits must leave something for the pool.
	one := fixedpoint.NewFraction(1, 1)
	if p.DeveloperFee.Plus(p.DividendFee).Cmp(one) >= 0 {
		return fmt.Errorf("developer fee plus dividend fee must be below 1")
	}
	if p.DeveloperFee.Plus(p.EnrollmentShare).Cmp(one) > 0 {
		return fmt.Errorf("developer fee plus enrollment share must not exceed 1")
	}
	return nil
}
