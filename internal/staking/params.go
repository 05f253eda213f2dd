package staking

import (
	"fmt"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// DefaultOneYear is one year of height units at one height per 15 seconds.
const DefaultOneYear uint64 = 2_102_400

// Params are the economic constants of the ledger.
type Params struct {
	// Address holds deposits, locked tokens and the available pool.
	Address domain.Address
	// FeeRecipient receives deposit commissions.
	FeeRecipient domain.Address

	// OneYear is the earning horizon in height units.
	OneYear uint64

	// DepositFee of every deposit is withheld from principal.
	DepositFee fixedpoint.Fraction
	// Commission of every deposit goes to FeeRecipient. It is part of
	// DepositFee; the rest of the withheld amount becomes available.
	Commission fixedpoint.Fraction
	// DepositBurnShare of the tokens pulled by a deposit or an anticipation
	// is burned.
	DepositBurnShare fixedpoint.Fraction
	// AnticipationTokenShare of the anticipation fee buys tokens for the ledger.
	AnticipationTokenShare fixedpoint.Fraction
	// AnticipationFeeMultiplier scales the exchange enrollment fee into the
	// anticipation fee.
	AnticipationFeeMultiplier uint64
}

// DefaultParams returns the production constants.
func DefaultParams(address, feeRecipient domain.Address) Params {
	return Params{
		Address:                   address,
		FeeRecipient:              feeRecipient,
		OneYear:                   DefaultOneYear,
		DepositFee:                fixedpoint.NewFraction(1, 50),
		Commission:                fixedpoint.NewFraction(1, 240),
		DepositBurnShare:          fixedpoint.NewFraction(1, 2),
		AnticipationTokenShare:    fixedpoint.NewFraction(1, 2),
		AnticipationFeeMultiplier: 2,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Address.IsZero() {
		return fmt.Errorf("staking address is required")
	}
	if p.FeeRecipient.IsZero() {
		return fmt.Errorf("fee recipient is required")
	}
	if p.FeeRecipient == p.Address {
		return fmt.Errorf("fee recipient must differ from the staking address")
	}
	if p.OneYear == 0 {
		return fmt.Errorf("one year must be positive")
	}
	if p.AnticipationFeeMultiplier == 0 {
		return fmt.Errorf("anticipation fee multiplier must be positive")
	}

	fractions := map[string]fixedpoint.Fraction{
		"deposit fee":              p.DepositFee,
		"commission":               p.Commission,
		"deposit burn share":       p.DepositBurnShare,
		"anticipation token share": p.AnticipationTokenShare,
	}
	for name, f := range fractions {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if p.Commission.Cmp(p.DepositFee) > 0 {
		return fmt.Errorf("commission must not exceed the deposit fee")
	}
	if p.DepositFee.Cmp(fixedpoint.NewFraction(1, 1)) >= 0 {
		return fmt.Errorf("deposit fee must be below 1")
	}
	return nil
}
