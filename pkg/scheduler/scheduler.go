package scheduler

import (
	"context"
	"time"

	"github.com/chris/fuelpay/pkg/models"
)

// Scheduler defines the interface for a component that arranges for a
// transaction to be expired once its confirmation window has passed.
type Scheduler interface {
	// ScheduleExpiry requests a call to the expiry handler for txID at or after at.
	ScheduleExpiry(ctx context.Context, txID string, at time.Time) error
}

// Canceller is implemented by schedulers that can drop a pending expiry.
// Schedulers that cannot (a delayed queue message) rely on the expiry being
// rejected by the conditional update instead.
type Canceller interface {
	CancelExpiry(txID string)
}

// ExpiryHandler performs the expiry transition.
type ExpiryHandler interface {
	Expire(ctx context.Context, txID string) (*models.Transaction, error)
}

// ExpiryMessage is the body of a delayed expiry message.
type ExpiryMessage struct {
	TransactionID string    `json:"transaction_id"`
	Deadline      time.Time `json:"deadline"`
}
