package storage

import (
	"context"
	"time"

	"github.com/chris/fuelpay/pkg/models"
)

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit int32 = 100

// ListQuery narrows ListTransactionsByUserID. Results are always newest first.
type ListQuery struct {
	Statuses []models.TransactionStatus
	Limit    int32
}

// Matches reports whether tx passes the status filter.
func (q ListQuery) Matches(tx *models.Transaction) bool {
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if tx.Status == s {
			return true
		}
	}
	return false
}

// EffectiveLimit returns the limit with the default applied.
func (q ListQuery) EffectiveLimit() int32 {
	if q.Limit <= 0 {
		return DefaultListLimit
	}
	return q.Limit
}

// TransactionReader defines the interface for reading transaction data.
type TransactionReader interface {
	// GetTransaction retrieves a transaction by its ID.
	GetTransaction(ctx context.Context, txID string) (*models.Transaction, error)

	// ListTransactionsByUserID retrieves a customer's transactions, newest first.
	ListTransactionsByUserID(ctx context.Context, userID string, q ListQuery) ([]models.Transaction, error)

	// GetStuckTransactions retrieves pending transactions created before the cutoff.
	GetStuckTransactions(ctx context.Context, createdBefore time.Time) ([]models.Transaction, error)
}

// TransactionManager defines the interface for creating transactions and moving them between states.
type TransactionManager interface {
	// InsertTransaction persists a new record. It fails with ErrAlreadyExists on an id collision.
	InsertTransaction(ctx context.Context, tx *models.Transaction) error

	// UpdateTransactionStatus moves a record from one status to another as a single
	// conditional write. It returns the updated record, ErrNotFound, or
	// ErrPreconditionFailed when the record is no longer in status from.
	UpdateTransactionStatus(ctx context.Context, txID string, from, to models.TransactionStatus, actor models.Actor, at time.Time) (*models.Transaction, error)
}

// TransactionStore combines the reader and manager interfaces.
type TransactionStore interface {
	TransactionReader
	TransactionManager
}
