package chain

import "errors"

// Native value errors.
var (
	// ErrInsufficientFunds is returned when a native balance cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient native funds")

	// ErrTransferRejected is returned when the recipient does not accept native value.
	ErrTransferRejected = errors.New("recipient rejected native transfer")

	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)
