package storage

import (
	"context"
	"time"

	"github.com/chris/fuelpay/pkg/models"
)

// SettlementStore defines the privileged interface for settling a transaction.
// This operation writes across the transactions, wallets and ledger tables atomically.
// It should only be exposed to the settlement module.
type SettlementStore interface {
	// SettleTransaction moves tx from pending to confirmed and debits the customer's
	// wallet by tx.Amount in one atomic write, recording a ledger entry.
	// Nothing is written when it fails. It returns ErrPreconditionFailed if the
	// transaction is no longer pending, ErrInsufficientFunds if the balance does
	// not cover the amount, and ErrNotFound if the wallet does not exist.
	SettleTransaction(ctx context.Context, tx *models.Transaction, at time.Time) (*models.Transaction, error)
}
