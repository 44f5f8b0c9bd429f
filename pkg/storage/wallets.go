package storage

import (
	"context"
	"time"

	"github.com/chris/fuelpay/pkg/models"
)

// WalletReader defines read access to wallets.
type WalletReader interface {
	// GetWallet retrieves a user's wallet by their user ID.
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
}

// WalletStore defines the interface for managing wallets.
type WalletStore interface {
	WalletReader

	// CreateWallet creates a new wallet for a user.
	CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)

	// DeleteWallet deletes a user's wallet.
	DeleteWallet(ctx context.Context, userID string) error

	// ListWallets retrieves all wallets from the storage.
	ListWallets(ctx context.Context) ([]models.Wallet, error)

	// TopUpWallet adds amount to the balance and records a credit ledger entry.
	TopUpWallet(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error)
}
