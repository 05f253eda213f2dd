package exchange

import "errors"

// Exchange engine errors.
var (
	// ErrNotInitialized is returned before Genesis has run.
	ErrNotInitialized = errors.New("exchange not initialized")

	// ErrNotEligible is returned when mining is called without enrollment.
	ErrNotEligible = errors.New("address is not enabled for mining")

	// ErrAlreadyEnabled is returned when an enrolled address enrolls again.
	ErrAlreadyEnabled = errors.New("address already enabled for mining")

	// ErrUnderpayment is returned when the native payment is below the current fee.
	ErrUnderpayment = errors.New("payment below current fee")

	// ErrInsufficientBalance is returned when a token balance cannot cover an amount.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrInsufficientAllowance is returned when a spender exceeds its approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrInsufficientLiquidity is returned when the curve has no native reserve.
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")

	// ErrAmountTooSmall is returned when a swap would yield nothing.
	ErrAmountTooSmall = errors.New("amount too small to swap")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvariantViolation is returned when an operation would break reserve
	// or dividend accounting.
	ErrInvariantViolation = errors.New("exchange invariant violation")
)
