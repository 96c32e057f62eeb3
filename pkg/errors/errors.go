// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Payment intake errors
	ErrValidation          = errors.New("validation error")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDispatchQueueFull   = errors.New("settlement dispatch queue full")

	// Transaction state errors
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTerminalState       = errors.New("transaction already in terminal state")

	// Settlement engine errors
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	ErrSettlementNotFound = errors.New("settlement not found")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
