package biddingerrors

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrExhausted     = errors.New("exhausted")
	ErrInternal      = errors.New("internal error")
	ErrValidation    = errors.New("validation failed")
)

// Repository-level errors
var (
	ErrAuctionNotFound = fmt.Errorf("auction %w", ErrNotFound)
	ErrBidNotFound     = fmt.Errorf("bid %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrTokenNotFound   = fmt.Errorf("token %w", ErrNotFound)
	ErrNoBids          = fmt.Errorf("no bids: %w", ErrNotFound)
	ErrDuplicateKey    = fmt.Errorf("duplicate key: %w", ErrConflict)
	ErrTxConflict      = fmt.Errorf("transaction conflict retries exhausted: %w", ErrInternal)
	ErrTimeout         = fmt.Errorf("storage timeout: %w", ErrInternal)
)

// business logic errors
var (
	ErrInvalidBid        = fmt.Errorf("invalid bid: %w", ErrInvalidAmount)
	ErrBelowFloor        = fmt.Errorf("bid amount is below the auction starting amount: %w", ErrInvalidAmount)
	ErrBidTooLow         = fmt.Errorf("bid amount must exceed the current highest bid: %w", ErrInvalidAmount)
	ErrAuctionClosed     = fmt.Errorf("auction is not active yet or has ended: %w", ErrInvalidState)
	ErrAuctionEnded      = fmt.Errorf("auction has already ended: %w", ErrInvalidState)
	ErrFloorFrozen       = fmt.Errorf("starting amount cannot change once bids exist: %w", ErrInvalidState)
	ErrCloseInPast       = fmt.Errorf("closing time must be in the future: %w", ErrInvalidState)
	ErrUserAlreadyActive = fmt.Errorf("user is already active: %w", ErrInvalidState)
	ErrBidderIneligible  = fmt.Errorf("no active verified user found: %w", ErrForbidden)
	ErrNotBidOwner       = fmt.Errorf("user does not own this bid: %w", ErrForbidden)
	ErrAlreadyBid        = fmt.Errorf("already placed a bid on this auction, withdraw or raise it instead: %w", ErrConflict)
	ErrAuctionIDTaken    = fmt.Errorf("auction id already exists: %w", ErrConflict)
	ErrTokenMismatch     = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrTokenExpired      = fmt.Errorf("token expired: %w", ErrUnauthorized)
	ErrBadCredentials    = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	ErrIDSpaceExhausted  = fmt.Errorf("auction id space retry cap reached: %w", ErrExhausted)
	ErrInvalidInput      = fmt.Errorf("invalid input: %w", ErrValidation)
)

// FieldConflict reports a uniqueness violation on a named field.
func FieldConflict(field, value string) error {
	return fmt.Errorf("%s %q already exists: %w", field, value, ErrConflict)
}

// Retryable reports whether the caller may retry the operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrInternal) || errors.Is(err, context.DeadlineExceeded)
}

// FromContext converts a context failure into the storage timeout error.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Kind names the error kind err wraps, "ok" for nil and "internal" when none matches.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
