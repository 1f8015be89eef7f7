// Package types holds the error taxonomy shared by the ledger packages
package types

import "errors"

var (
	// Request path
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnauthenticated   = errors.New("invalid or missing one-time code")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrValidation        = errors.New("validation error")

	// Background path. Never surfaced to callers.
	ErrDuplicateEvent = errors.New("duplicate event")

	// Chain RPC, signing, storage or cache failure
	ErrExternalUnavailable = errors.New("external service unavailable")
)

// IsRequestError reports whether err belongs to the caller-visible request taxonomy.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrValidation)
}
