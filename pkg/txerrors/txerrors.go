// Package txerrors defines the error kinds surfaced by the transaction
// coordinator. Callers classify failures with errors.Is against the sentinels.
package txerrors

import (
	"errors"
	"fmt"

	"github.com/chris/fuelpay/pkg/models"
)

var (
	// ErrValidation is returned for malformed input or an illegal transition.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when the referenced transaction or wallet does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleState is returned when another actor already moved the record.
	ErrStaleState = errors.New("transaction already resolved")

	// ErrInsufficientFunds is returned when the customer balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrChannel is returned when a subscription could not be kept alive.
	ErrChannel = errors.New("subscription channel failed")

	// ErrUnavailable wraps record store failures that have no more specific kind.
	ErrUnavailable = errors.New("record store unavailable")

	// ErrExpiryNotDue is a validation failure for an expire request issued before the deadline.
	ErrExpiryNotDue = fmt.Errorf("%w: expiry not yet due", ErrValidation)
)

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps a store failure as ErrUnavailable. The cause stays in the
// chain for errors.Is and errors.As but is left out of the message.
func Unavailable(cause error) error {
	return &unavailableError{cause: cause}
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string { return ErrUnavailable.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.cause} }

// StaleStateError carries the authoritative record observed after a lost race.
type StaleStateError struct {
	Current *models.Transaction
}

func (e *StaleStateError) Error() string {
	if e.Current == nil {
		return ErrStaleState.Error()
	}
	return fmt.Sprintf("%s: transaction %s is %s", ErrStaleState, e.Current.Id, e.Current.Status)
}

// Is makes errors.Is(err, ErrStaleState) hold for *StaleStateError.
func (e *StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}

// Stale builds a *StaleStateError for the given current record.
func Stale(current *models.Transaction) error {
	return &StaleStateError{Current: current}
}

// CurrentOf extracts the authoritative record from a stale-state error, if any.
func CurrentOf(err error) (*models.Transaction, bool) {
	var stale *StaleStateError
	if errors.As(err, &stale) && stale.Current != nil {
		return stale.Current, true
	}
	return nil, false
}
