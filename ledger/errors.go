package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrPositionNotFound   = errors.New("position not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSetting     = errors.New("invalid setting")

	// ErrPersistence marks a transaction that could not commit. Nothing
	// it touched was applied and the caller may retry.
	ErrPersistence = errors.New("persistence failure")
)

// storeErr keeps domain errors from the store as they are and marks
// everything else as a persistence failure.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrInsufficientFunds,
		ErrPositionNotFound,
		ErrAccountNotFound,
		ErrAccountExists,
		ErrInvalidSetting,
		ErrPersistence,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
