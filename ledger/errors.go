/*
errors.go - Centralized error types for the accounting engine

PURPOSE:
  All error types in one place. Every failure the engine can produce is
  one of three kinds, and each kind unwraps to a sentinel so callers can
  branch with errors.Is without knowing the concrete struct.

ERROR CATEGORIES:
  1. ValidationError        - bad input (non-positive payment, term < 1,
                              down payment above price, missing decision)
  2. NotFoundError          - unknown contract, lot, payment or contact
  3. InvalidTransitionError - state machine refused (cancel twice,
                              activate twice, pay a cancelled contract)

NOTHING IS DEFAULTED:
  A missing term is an error, not 12 months. A missing commission
  decision is an error, not "keep". Every error aborts the operation and
  the store transaction is rolled back.

USAGE:
  acct, err := svc.ApplyPayment(ctx, id, p)
  switch {
  case errors.Is(err, ledger.ErrValidation):
  case errors.Is(err, ledger.ErrNotFound):
  case errors.Is(err, ledger.ErrInvalidTransition):
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the kind of record and the id that was looked up.
type NotFoundError struct {
	Kind string // "contract", "lot", "payment", "contact"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InvalidTransitionError struct {
	ContractID ContractID
	From       ContractStatus
	Action     string
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("contract %s: cannot %s from %s", e.ContractID, e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
