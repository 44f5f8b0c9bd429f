// Package storagetest is a behavioural test suite shared by the storage
// implementations that can run without mocks.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Transaction builds a pending transaction for userID created at base+offset.
func Transaction(userID string, amount int64, offset time.Duration) *models.Transaction {
	at := base.Add(offset)
	return &models.Transaction{
		Id:          uuid.New().String(),
		UserId:      userID,
		WalletId:    "wallet-" + userID,
		StationId:   "station-1",
		StationName: "Main St",
		FuelType:    "Diesel",
		Amount:      amount,
		Liters:      25.3,
		Status:      models.PENDING,
		UpdatedBy:   models.ATTENDANT,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// Run exercises newStore against the storage contract. newStore must return
// an empty store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	ctx := context.Background()

	t.Run("Insert And Get", func(t *testing.T) {
		s := newStore(t)
		tx := Transaction("u1", 4575, 0)
		require.NoError(t, s.InsertTransaction(ctx, tx))

		got, err := s.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, tx.Id, got.Id)
		assert.Equal(t, models.PENDING, got.Status)
		assert.True(t, tx.CreatedAt.Equal(got.CreatedAt))

		err = s.InsertTransaction(ctx, tx)
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		_, err = s.GetTransaction(ctx, uuid.New().String())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Conditional Status Update", func(t *testing.T) {
		s := newStore(t)
		tx := Transaction("u1", 1000, 0)
		require.NoError(t, s.InsertTransaction(ctx, tx))

		updated, err := s.UpdateTransactionStatus(ctx, tx.Id, models.PENDING, models.CANCELLED, models.ATTENDANT, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, models.CANCELLED, updated.Status)
		assert.Equal(t, models.ATTENDANT, updated.UpdatedBy)
		assert.True(t, tx.CreatedAt.Equal(updated.CreatedAt))

		_, err = s.UpdateTransactionStatus(ctx, tx.Id, models.PENDING, models.EXPIRED, models.SYSTEM, base.Add(2*time.Second))
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

		_, err = s.UpdateTransactionStatus(ctx, uuid.New().String(), models.PENDING, models.EXPIRED, models.SYSTEM, base)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Concurrent Updates Commit Once", func(t *testing.T) {
		s := newStore(t)
		tx := Transaction("u1", 1000, 0)
		require.NoError(t, s.InsertTransaction(ctx, tx))

		targets := []models.TransactionStatus{models.CANCELLED, models.EXPIRED, models.REJECTED, models.CANCELLED}
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for _, to := range targets {
			wg.Add(1)
			go func(to models.TransactionStatus) {
				defer wg.Done()
				if _, err := s.UpdateTransactionStatus(ctx, tx.Id, models.PENDING, to, models.SYSTEM, base); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(to)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("List By User", func(t *testing.T) {
		s := newStore(t)
		older := Transaction("u1", 100, 0)
		newer := Transaction("u1", 200, time.Minute)
		other := Transaction("u2", 300, 2*time.Minute)
		done := Transaction("u1", 400, 3*time.Minute)
		for _, tx := range []*models.Transaction{older, newer, other, done} {
			require.NoError(t, s.InsertTransaction(ctx, tx))
		}
		_, err := s.UpdateTransactionStatus(ctx, done.Id, models.PENDING, models.REJECTED, models.CUSTOMER, base)
		require.NoError(t, err)

		pending, err := s.ListTransactionsByUserID(ctx, "u1", storage.ListQuery{Statuses: []models.TransactionStatus{models.PENDING}})
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, newer.Id, pending[0].Id)
		assert.Equal(t, older.Id, pending[1].Id)

		all, err := s.ListTransactionsByUserID(ctx, "u1", storage.ListQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, done.Id, all[0].Id)
	})

	t.Run("Stuck Transactions", func(t *testing.T) {
		s := newStore(t)
		old := Transaction("u1", 100, 0)
		fresh := Transaction("u1", 100, 5*time.Minute)
		require.NoError(t, s.InsertTransaction(ctx, old))
		require.NoError(t, s.InsertTransaction(ctx, fresh))

		stuck, err := s.GetStuckTransactions(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, stuck, 1)
		assert.Equal(t, old.Id, stuck[0].Id)
	})

	t.Run("Settlement", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateWallet(ctx, &models.Wallet{UserId: "u1", Name: "Customer", Balance: 50000, CreatedAt: base})
		require.NoError(t, err)
		tx := Transaction("u1", 4575, 0)
		require.NoError(t, s.InsertTransaction(ctx, tx))

		settled, err := s.SettleTransaction(ctx, tx, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, models.CONFIRMED, settled.Status)

		w, err := s.GetWallet(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(45425), w.Balance)

		_, err = s.SettleTransaction(ctx, tx, base.Add(2*time.Second))
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

		w, err = s.GetWallet(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(45425), w.Balance, "second settlement must not debit")

		entries, err := s.ListLedgerEntries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, tx.Id, entries[0].TransactionID)
		assert.Equal(t, int64(4575), entries[0].Debit)
	})

	t.Run("Settlement Insufficient Funds", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateWallet(ctx, &models.Wallet{UserId: "u1", Balance: 500, CreatedAt: base})
		require.NoError(t, err)
		tx := Transaction("u1", 1000, 0)
		require.NoError(t, s.InsertTransaction(ctx, tx))

		_, err = s.SettleTransaction(ctx, tx, base)
		assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

		got, err := s.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.PENDING, got.Status)
		w, err := s.GetWallet(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), w.Balance)
	})

	t.Run("Wallets", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateWallet(ctx, &models.Wallet{UserId: "u1", Name: "Ada", Balance: 100, CreatedAt: base})
		require.NoError(t, err)
		_, err = s.CreateWallet(ctx, &models.Wallet{UserId: "u1", Balance: 100, CreatedAt: base})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		w, err := s.TopUpWallet(ctx, "u1", 250, base)
		require.NoError(t, err)
		assert.Equal(t, int64(350), w.Balance)

		_, err = s.TopUpWallet(ctx, "nobody", 250, base)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		list, err := s.ListWallets(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteWallet(ctx, "u1"))
		assert.ErrorIs(t, s.DeleteWallet(ctx, "u1"), storage.ErrNotFound)
		_, err = s.GetWallet(ctx, "u1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
