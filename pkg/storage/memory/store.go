// Package memory is an in-process implementation of the storage interfaces,
// used for local development and tests. All writes are serialized by a
// single mutex, which makes every conditional update a true compare-and-swap.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

// Store implements storage.Storage in memory.
type Store struct {
	mu           sync.Mutex
	transactions map[string]*models.Transaction
	wallets      map[string]*models.Wallet
	ledger       []models.LedgerEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		transactions: make(map[string]*models.Transaction),
		wallets:      make(map[string]*models.Wallet),
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// InsertTransaction stores a copy of tx.
func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[tx.Id]; ok {
		return storage.ErrAlreadyExists
	}
	s.transactions[tx.Id] = tx.Clone()
	return nil
}

// GetTransaction returns a copy of the stored record.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
	}
	return tx.Clone(), nil
}

// UpdateTransactionStatus performs the compare-and-swap on status.
func (s *Store) UpdateTransactionStatus(ctx context.Context, txID string, from, to models.TransactionStatus, actor models.Actor, at time.Time) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
	}
	if tx.Status != from {
		return nil, storage.ErrPreconditionFailed
	}
	tx.Status = to
	tx.UpdatedBy = actor
	tx.UpdatedAt = at
	return tx.Clone(), nil
}

// ListTransactionsByUserID returns the customer's records, newest first.
func (s *Store) ListTransactionsByUserID(ctx context.Context, userID string, q storage.ListQuery) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.UserId == userID && q.Matches(tx) {
			out = append(out, *tx.Clone())
		}
	}
	sortNewestFirst(out)
	if limit := int(q.EffectiveLimit()); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetStuckTransactions returns pending records created before the cutoff.
func (s *Store) GetStuckTransactions(ctx context.Context, createdBefore time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.Status == models.PENDING && tx.CreatedAt.Before(createdBefore) {
			out = append(out, *tx.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// SettleTransaction flips pending -> confirmed and debits the wallet under one lock.
func (s *Store) SettleTransaction(ctx context.Context, tx *models.Transaction, at time.Time) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transactions[tx.Id]
	if !ok {
		return nil, fmt.Errorf("transaction with ID %s: %w", tx.Id, storage.ErrNotFound)
	}
	if stored.Status != models.PENDING {
		return nil, storage.ErrPreconditionFailed
	}
	wallet, ok := s.wallets[stored.UserId]
	if !ok {
		return nil, fmt.Errorf("wallet for user ID %s: %w", stored.UserId, storage.ErrNotFound)
	}
	if wallet.Balance < stored.Amount {
		return nil, storage.ErrInsufficientFunds
	}

	wallet.Balance -= stored.Amount
	wallet.Version++
	stored.Status = models.CONFIRMED
	stored.UpdatedBy = models.CUSTOMER
	stored.UpdatedAt = at
	s.ledger = append(s.ledger, storage.SettlementEntry(stored, at))
	return stored.Clone(), nil
}

// CreateWallet stores a new wallet.
func (s *Store) CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet.UserId]; ok {
		return nil, fmt.Errorf("wallet for user ID %s: %w", wallet.UserId, storage.ErrAlreadyExists)
	}
	stored, out := *wallet, *wallet
	s.wallets[wallet.UserId] = &stored
	return &out, nil
}

// GetWallet returns a copy of the user's wallet.
func (s *Store) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}
	c := *w
	return &c, nil
}

// DeleteWallet removes the user's wallet.
func (s *Store) DeleteWallet(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[userID]; !ok {
		return fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}
	delete(s.wallets, userID)
	return nil
}

// ListWallets returns every wallet, newest first.
func (s *Store) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// TopUpWallet credits the wallet.
func (s *Store) TopUpWallet(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}
	w.Balance += amount
	w.Version++
	s.ledger = append(s.ledger, storage.TopUpEntry(userID, amount, at))
	c := *w
	return &c, nil
}

// ListLedgerEntries returns the most recent entries first.
func (s *Store) ListLedgerEntries(ctx context.Context, limit int32) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LedgerEntry, 0, len(s.ledger))
	for i := len(s.ledger) - 1; i >= 0; i-- {
		out = append(out, s.ledger[i])
		if limit > 0 && int32(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func sortNewestFirst(txs []models.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
