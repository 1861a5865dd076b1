package reconciler

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the reconciler. Use errors.Is to check them.
var (
	// ErrMalformedQuantity indicates that a units, rate or amount field is
	// not a valid decimal value.
	ErrMalformedQuantity = errors.New("malformed quantity")

	// ErrDivisionByZero indicates that the dependent field would be
	// recomputed from a zero rounded denominator.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrUnknownMode indicates an unrecognised reconciliation mode.
	ErrUnknownMode = errors.New("unknown reconciliation mode")
)

// QuantityError describes a single field that failed to parse or to be
// recomputed.
type QuantityError struct {
	Field Field
	Value string
	Err   error
}

// Error implements the error interface.
func (e *QuantityError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *QuantityError) Unwrap() error {
	return e.Err
}

// RecordError ties a failure to the fee record that caused it.
type RecordError struct {
	Index      int
	ChargeDate string
	Err        error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("fee record %d (charge date %s): %v", e.Index+1, e.ChargeDate, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *RecordError) Unwrap() error {
	return e.Err
}
