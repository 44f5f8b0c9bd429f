package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chris/fuelpay/pkg/models"
)

// LedgerGSI1PK partitions all ledger entries into one index for time-ordered listing.
const LedgerGSI1PK = "LEDGER_ENTRIES"

// LedgerReader defines the interface for reading ledger data.
type LedgerReader interface {
	// ListLedgerEntries retrieves the most recent ledger entries.
	ListLedgerEntries(ctx context.Context, limit int32) ([]models.LedgerEntry, error)
}

// SettlementEntry is the debit written when tx is confirmed.
func SettlementEntry(tx *models.Transaction, at time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		EntryID:       uuid.New().String(),
		TransactionID: tx.Id,
		AccountID:     tx.UserId,
		Debit:         tx.Amount,
		Description:   fmt.Sprintf("Fuel purchase %s at %s", tx.Id, tx.StationName),
		Timestamp:     at,
		GSI1PK:        LedgerGSI1PK,
	}
}

// TopUpEntry is the credit written when a wallet is topped up.
func TopUpEntry(userID string, amount int64, at time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		EntryID:     uuid.New().String(),
		AccountID:   userID,
		Credit:      amount,
		Description: "Wallet top-up",
		Timestamp:   at,
		GSI1PK:      LedgerGSI1PK,
	}
}
