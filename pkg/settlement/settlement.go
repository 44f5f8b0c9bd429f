// Package settlement debits a customer's balance when a transaction is
// confirmed and credits it on top-up.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/money"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// Store is the storage surface settlement needs.
type Store interface {
	storage.WalletReader
	storage.SettlementStore
	TopUpWallet(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error)
}

// InsufficientFundsError reports the shortfall of a rejected settlement.
type InsufficientFundsError struct {
	UserID  string
	Balance int64
	Amount  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: balance %s is below %s", txerrors.ErrInsufficientFunds,
		money.Format(e.Balance), money.Format(e.Amount))
}

// Is makes errors.Is(err, txerrors.ErrInsufficientFunds) hold.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == txerrors.ErrInsufficientFunds
}

// Settler applies balance changes.
type Settler struct {
	store Store
}

// New creates a Settler.
func New(store Store) *Settler {
	return &Settler{store: store}
}

// Settle debits tx.Amount from the customer and confirms tx as one atomic
// store write. The balance is checked first so an underfunded confirm fails
// without touching any record; the store re-checks it inside the write.
//
// storage.ErrPreconditionFailed is returned unchanged when tx is no longer
// pending, which is how a second settlement of the same id is refused.
func (s *Settler) Settle(ctx context.Context, tx *models.Transaction, at time.Time) (*models.Transaction, error) {
	w, err := s.wallet(ctx, tx.UserId)
	if err != nil {
		return nil, err
	}
	if w.Balance < tx.Amount {
		return nil, &InsufficientFundsError{UserID: tx.UserId, Balance: w.Balance, Amount: tx.Amount}
	}

	settled, err := s.store.SettleTransaction(ctx, tx, at)
	switch {
	case err == nil:
		return settled, nil
	case errors.Is(err, storage.ErrInsufficientFunds):
		// Another debit landed between the read and the write.
		balance := w.Balance
		if latest, err := s.store.GetWallet(ctx, tx.UserId); err == nil {
			balance = latest.Balance
		}
		return nil, &InsufficientFundsError{UserID: tx.UserId, Balance: balance, Amount: tx.Amount}
	case errors.Is(err, storage.ErrNotFound):
		if _, werr := s.wallet(ctx, tx.UserId); werr != nil {
			return nil, werr
		}
		return nil, err
	default:
		return nil, err
	}
}

// TopUp credits amount to the customer's balance. Credits commute, so the
// store applies them as an atomic increment rather than a compare-and-swap.
func (s *Settler) TopUp(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, txerrors.Validationf("top-up amount must be positive")
	}
	w, err := s.store.TopUpWallet(ctx, userID, amount, at)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: customer %s has no wallet", txerrors.ErrNotFound, userID)
	}
	return w, err
}

// Balance returns the customer's current balance.
func (s *Settler) Balance(ctx context.Context, userID string) (int64, error) {
	w, err := s.wallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *Settler) wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, txerrors.Validationf("customer %s has no wallet", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet: %w", err)
	}
	return w, nil
}
