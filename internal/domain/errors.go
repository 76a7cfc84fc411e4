package domain

import "errors"

// Sale creation validation errors.
var (
	ErrInvalidCapRange   = errors.New("soft cap exceeds hard cap")
	ErrZeroCap           = errors.New("hard cap cannot be zero")
	ErrInvalidTimeWindow = errors.New("start time must be before end time")
	ErrTimeInPast        = errors.New("end time is in the past")
	ErrZeroAmount        = errors.New("amount cannot be zero")
)

// Sale state and settlement errors.
var (
	ErrSaleNotActive         = errors.New("sale is not active")
	ErrHardCapReached        = errors.New("hard cap reached")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrInsufficientInventory = errors.New("not enough tokens in the vault")
	ErrInsufficientFunds     = errors.New("not enough native balance")
)

// Transfer policy violations, one per gate.
var (
	ErrTradingClosed          = errors.New("trading is currently closed")
	ErrExceedsMaxTransfer     = errors.New("transfer amount exceeds maximum limit")
	ErrBelowMinTransfer       = errors.New("transfer amount is below minimum limit")
	ErrNotWhitelisted         = errors.New("wallet is not whitelisted")
	ErrMissingRequiredHolding = errors.New("wallet does not hold the required gating asset")
)

// Infrastructure and access errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAccountMissing      = errors.New("account missing")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
)

// IsPolicyViolation reports whether err is one of the four gate failures.
// The caller uses this to distinguish a denied transfer from an
// infrastructure fault.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrTradingClosed) ||
		errors.Is(err, ErrExceedsMaxTransfer) ||
		errors.Is(err, ErrBelowMinTransfer) ||
		errors.Is(err, ErrNotWhitelisted) ||
		errors.Is(err, ErrMissingRequiredHolding)
}
