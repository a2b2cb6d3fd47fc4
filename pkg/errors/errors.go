package errors

import (
	"errors"
	"fmt"
)

// Error classes. Every business-rule violation returned by the services wraps
// exactly one of them.
var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidState           = errors.New("invalid state")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidStateTransition = errors.New("invalid status transition")
)

var (
	ErrListingNotFound     = fmt.Errorf("listing %w", ErrNotFound)
	ErrOfferNotFound       = fmt.Errorf("offer %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	ErrNotListingOwner     = fmt.Errorf("%w: not your listing", ErrForbidden)
	ErrNotOfferOwner       = fmt.Errorf("%w: not your offer", ErrForbidden)
	ErrOwnListing          = fmt.Errorf("%w: cannot make an offer on your own listing", ErrForbidden)
	ErrNotTransactionParty = fmt.Errorf("%w: not a party to this transaction", ErrForbidden)
	ErrUnauthenticated     = fmt.Errorf("%w: user not authenticated", ErrForbidden)

	ErrListingNotActive = fmt.Errorf("%w: listing is not active", ErrInvalidState)
	ErrListingSold      = fmt.Errorf("%w: listing is already sold", ErrInvalidState)
	ErrOfferNotPending  = fmt.Errorf("%w: offer is not pending", ErrInvalidState)

	ErrNegativeAmount     = fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	ErrNegativePrice      = fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	ErrMissingListingID   = fmt.Errorf("%w: listing id is required", ErrInvalidArgument)
	ErrInvalidStatus      = fmt.Errorf("%w: unknown status", ErrInvalidArgument)
	ErrInvalidCondition   = fmt.Errorf("%w: unknown condition", ErrInvalidArgument)
	ErrSoldOnlyByAccept   = fmt.Errorf("%w: status SOLD is set only by accepting an offer", ErrInvalidArgument)
	ErrInvalidInput       = fmt.Errorf("%w: invalid input", ErrInvalidArgument)
)

// TransitionError builds the error returned for a rejected transaction status
// change. The message always names the attempted from → to pair.
func TransitionError(from, to string) error {
	return fmt.Errorf("%w from %s to %s", ErrInvalidStateTransition, from, to)
}

const (
	CodeNotFound               = "NOT_FOUND"
	CodeForbidden              = "FORBIDDEN"
	CodeInvalidState           = "INVALID_STATE"
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeInternal               = "INTERNAL"
)

// Code returns the client-visible class of err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidStateTransition):
		return CodeInvalidStateTransition
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}
