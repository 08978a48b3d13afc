package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidDuration = errors.New("duration must be a positive number of days")

	// Ownership resolution. These are security relevant and never downgraded to a guest purchase.
	ErrOwnerMismatch = errors.New("payment is owned by another account")
	ErrEmailMismatch = errors.New("caller email does not match purchase email")

	// Idempotent no-ops, absorbed by the use cases.
	ErrAlreadyClaimed = errors.New("guest purchase already claimed")
	ErrAlreadyGranted = errors.New("access already granted for this payment")

	// One-time offers
	ErrExpiredOffer   = errors.New("offer has expired")
	ErrUsageExhausted = errors.New("offer usage exhausted")

	// Payment state machine
	ErrInvalidTransition = errors.New("payment event is already in a terminal state")
	ErrAmountMismatch    = errors.New("provider amount does not match payment event")
	ErrPaymentPending    = errors.New("payment not confirmed by the provider yet")

	// Storage
	ErrConflict           = errors.New("concurrent update conflict")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrInternal           = errors.New("internal error")
)
