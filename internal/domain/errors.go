package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("conflict")
	ErrIdempotencyRequired   = errors.New("idempotency key required")
	ErrIdempotencyConflict   = errors.New("idempotency conflict")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrUnsupportedEventType  = errors.New("unsupported event type")

	// Ordering core.
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrLimitExceeded      = errors.New("monthly limit exceeded")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrAllocationConflict = errors.New("product not allocated to store")
	ErrNetworkFailure     = errors.New("network failure")
	ErrChangeInFlight     = errors.New("cart change still in flight")
)
