// Package api holds the HTTP wire types and the chi server binding.
// Money and volumes travel as decimal strings ("45.75"); records store cents.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
)

// TransactionStatus defines model for TransactionStatus.
type TransactionStatus string

const (
	Pending   TransactionStatus = "pending"
	Confirmed TransactionStatus = "confirmed"
	Rejected  TransactionStatus = "rejected"
	Completed TransactionStatus = "completed"
	Cancelled TransactionStatus = "cancelled"
	Expired   TransactionStatus = "expired"
)

// NewTransaction is the attendant's payment request.
type NewTransaction struct {
	UserId       string          `json:"user_id"`
	WalletId     string          `json:"wallet_id"`
	StationId    string          `json:"station_id"`
	StationName  string          `json:"station_name"`
	FuelType     string          `json:"fuel_type"`
	Amount       decimal.Decimal `json:"amount"`
	Liters       decimal.Decimal `json:"liters"`
	VehicleId    *string         `json:"vehicle_id,omitempty"`
	VehiclePlate *string         `json:"vehicle_plate,omitempty"`
	AttendantId  *string         `json:"attendant_id,omitempty"`
}

// Transaction defines model for Transaction.
type Transaction struct {
	Id           openapi_types.UUID `json:"id"`
	UserId       string             `json:"user_id"`
	WalletId     string             `json:"wallet_id"`
	StationId    string             `json:"station_id"`
	StationName  string             `json:"station_name"`
	FuelType     string             `json:"fuel_type"`
	Amount       decimal.Decimal    `json:"amount"`
	Liters       decimal.Decimal    `json:"liters"`
	Status       TransactionStatus  `json:"status"`
	VehicleId    *string            `json:"vehicle_id,omitempty"`
	VehiclePlate *string            `json:"vehicle_plate,omitempty"`
	AttendantId  *string            `json:"attendant_id,omitempty"`
	UpdatedBy    string             `json:"updated_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	// Deadline is when a pending transaction expires.
	Deadline time.Time `json:"deadline"`
	// RemainingSeconds is zero once the deadline has passed or the transaction is resolved.
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// NewWallet defines model for NewWallet.
type NewWallet struct {
	UserId  string           `json:"user_id"`
	Name    string           `json:"name,omitempty"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// Wallet defines model for Wallet.
type Wallet struct {
	UserId    string          `json:"user_id"`
	Name      string          `json:"name,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
}

// TopUp defines model for TopUp.
type TopUp struct {
	Amount decimal.Decimal `json:"amount"`
}

// LedgerEntry defines model for LedgerEntry.
type LedgerEntry struct {
	EntryId       *string          `json:"entry_id,omitempty"`
	TransactionId *string          `json:"transaction_id,omitempty"`
	AccountId     string           `json:"account_id"`
	Debit         *decimal.Decimal `json:"debit,omitempty"`
	Credit        *decimal.Decimal `json:"credit,omitempty"`
	Description   string           `json:"description"`
	Timestamp     time.Time        `json:"timestamp"`
}

// QuoteRequest prices either a volume or an amount; exactly one must be set.
type QuoteRequest struct {
	FuelType string           `json:"fuel_type"`
	Liters   *decimal.Decimal `json:"liters,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
}

// Quote defines model for Quote.
type Quote struct {
	FuelType      string          `json:"fuel_type"`
	PricePerLiter decimal.Decimal `json:"price_per_liter"`
	Liters        decimal.Decimal `json:"liters"`
	Amount        decimal.Decimal `json:"amount"`
}

// QrVehicle defines model for QrVehicle.
type QrVehicle struct {
	Id           string `json:"id"`
	LicensePlate string `json:"licensePlate"`
	FuelType     string `json:"fuelType,omitempty"`
}

// QrPayload is the decoded content of a wallet QR code.
type QrPayload struct {
	UserId    string     `json:"userId"`
	WalletId  string     `json:"walletId"`
	Name      string     `json:"name"`
	Vehicle   *QrVehicle `json:"vehicle,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Error is the body of every non-2xx response. Transaction is set on 409
// and carries the record as it is now.
type Error struct {
	Message     string       `json:"message"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// ListTransactionHistoryParams defines parameters for ListTransactionHistory.
type ListTransactionHistoryParams struct {
	Limit *int32 `form:"limit,omitempty" json:"limit,omitempty"`
}

// ListLedgerEntriesParams defines parameters for ListLedgerEntries.
type ListLedgerEntriesParams struct {
	Limit *int32 `form:"limit,omitempty" json:"limit,omitempty"`
}
