package services

import "errors"

// Rejection kinds surfaced to callers. Anything else coming out of the
// services is a fault (storage or provider failure) and the caller must
// assume no state changed.
var (
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrSelfTransfer          = errors.New("cannot transfer to yourself")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrDuplicateConfirmation = errors.New("deposit is no longer pending")
)
