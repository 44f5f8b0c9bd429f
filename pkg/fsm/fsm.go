// Package fsm holds the transaction state machine: the legal transitions,
// which actor may trigger each one, and the guards that do not need I/O.
package fsm

import (
	"time"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// DefaultTimeout is the confirmation window given to every new transaction.
const DefaultTimeout = 60 * time.Second

// Transition is one edge of the state graph.
type Transition struct {
	From  models.TransactionStatus
	To    models.TransactionStatus
	Actor models.Actor
}

// Transitions is the complete state graph. Anything not listed is illegal.
var Transitions = []Transition{
	{From: models.PENDING, To: models.CONFIRMED, Actor: models.CUSTOMER},
	{From: models.PENDING, To: models.REJECTED, Actor: models.CUSTOMER},
	{From: models.PENDING, To: models.CANCELLED, Actor: models.ATTENDANT},
	{From: models.PENDING, To: models.EXPIRED, Actor: models.SYSTEM},
	{From: models.CONFIRMED, To: models.COMPLETED, Actor: models.ATTENDANT},
}

// rank orders statuses along the lifecycle so a request that targets an
// earlier step than the record has reached reads as stale, not invalid.
func rank(s models.TransactionStatus) int {
	switch s {
	case models.PENDING:
		return 0
	case models.CONFIRMED:
		return 1
	default:
		return 2
	}
}

// Lookup returns the edge from -> to, if one exists.
func Lookup(from, to models.TransactionStatus) (Transition, bool) {
	for _, t := range Transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// Validate checks a requested transition against the graph.
//
// It returns nil when the edge exists and the actor may trigger it,
// txerrors.ErrValidation when the target can never be reached this way (unknown
// status, no inbound edge, wrong actor or a premature step), and a
// *txerrors.StaleStateError when the record has already moved past the
// state the edge starts from.
func Validate(current *models.Transaction, to models.TransactionStatus, actor models.Actor) error {
	if !to.Valid() {
		return txerrors.Validationf("unknown status %q", to)
	}

	if t, ok := Lookup(current.Status, to); ok {
		if t.Actor != actor {
			return txerrors.Validationf("%s may not move a transaction to %s", actor, to)
		}
		return nil
	}

	inbound := false
	for _, t := range Transitions {
		if t.To != to {
			continue
		}
		inbound = true
		if t.Actor != actor {
			return txerrors.Validationf("%s may not move a transaction to %s", actor, to)
		}
		if rank(current.Status) > rank(t.From) {
			return txerrors.Stale(current)
		}
	}
	if !inbound {
		return txerrors.Validationf("transactions cannot be moved to %s", to)
	}
	if current.Status.Terminal() {
		return txerrors.Stale(current)
	}
	return txerrors.Validationf("cannot move a %s transaction to %s", current.Status, to)
}

// ValidateCreation checks the guard for the initial pending state.
func ValidateCreation(amount int64, liters float64) error {
	if amount <= 0 {
		return txerrors.Validationf("amount must be positive")
	}
	if liters <= 0 {
		return txerrors.Validationf("liters must be positive")
	}
	return nil
}

// Deadline is the instant after which a pending transaction may expire.
func Deadline(createdAt time.Time, timeout time.Duration) time.Time {
	return createdAt.Add(timeout)
}

// ExpiryDue reports whether elapsed >= timeout.
func ExpiryDue(createdAt, now time.Time, timeout time.Duration) bool {
	return !now.Before(Deadline(createdAt, timeout))
}

// Remaining is the time left before the deadline, never negative.
func Remaining(createdAt, now time.Time, timeout time.Duration) time.Duration {
	left := Deadline(createdAt, timeout).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
