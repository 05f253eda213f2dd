package staking

import "errors"

// Staking ledger errors.
var (
	// ErrNotInitialized is returned before Genesis has run.
	ErrNotInitialized = errors.New("staking ledger not initialized")

	// ErrNotEligible is returned when anticipation is used without enabling it.
	ErrNotEligible = errors.New("address is not enabled for anticipation")

	// ErrAlreadyEnabled is returned when anticipation is enabled twice.
	ErrAlreadyEnabled = errors.New("anticipation already enabled")

	// ErrUnderpayment is returned when the anticipation payment is below the fee.
	ErrUnderpayment = errors.New("payment below anticipation fee")

	// ErrNoEarnings is returned when a withdrawal would pay nothing.
	ErrNoEarnings = errors.New("no earnings to withdraw")

	// ErrNoDeposit is returned when the caller has no principal.
	ErrNoDeposit = errors.New("no deposit")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvariantViolation is returned when the ledger could not cover
	// principal and available earnings with its native balance.
	ErrInvariantViolation = errors.New("staking invariant violation")
)
