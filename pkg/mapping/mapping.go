package mapping

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/coordinator"
	"github.com/chris/fuelpay/pkg/fuel"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/money"
	"github.com/chris/fuelpay/pkg/qr"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// ToApiTransaction converts a domain Transaction model to an API Transaction model.
// remaining is reported only while the transaction is pending.
func ToApiTransaction(tx *models.Transaction, deadline time.Time, remaining time.Duration) *api.Transaction {
	if tx.Status != models.PENDING {
		remaining = 0
	}
	id, _ := uuid.Parse(tx.Id)
	return &api.Transaction{
		Id:               id,
		UserId:           tx.UserId,
		WalletId:         tx.WalletId,
		StationId:        tx.StationId,
		StationName:      tx.StationName,
		FuelType:         tx.FuelType,
		Amount:           money.ToDecimal(tx.Amount),
		Liters:           decimal.NewFromFloat(tx.Liters).Round(2),
		Status:           api.TransactionStatus(tx.Status),
		VehicleId:        tx.VehicleId,
		VehiclePlate:     tx.VehiclePlate,
		AttendantId:      tx.AttendantId,
		UpdatedBy:        string(tx.UpdatedBy),
		CreatedAt:        tx.CreatedAt,
		UpdatedAt:        tx.UpdatedAt,
		Deadline:         deadline,
		RemainingSeconds: remaining.Seconds(),
	}
}

// ToDomainNewTransaction converts an API NewTransaction model to a coordinator request.
func ToDomainNewTransaction(in *api.NewTransaction) (coordinator.NewTransaction, error) {
	amount, err := money.FromDecimal(in.Amount)
	if err != nil {
		return coordinator.NewTransaction{}, txerrors.Validationf("%v", err)
	}
	liters := in.Liters.Round(2)
	if in.Liters.IsPositive() && !liters.IsPositive() {
		return coordinator.NewTransaction{}, txerrors.Validationf("liters %s is below the 0.01 resolution", in.Liters.String())
	}
	return coordinator.NewTransaction{
		UserId:       in.UserId,
		WalletId:     in.WalletId,
		StationId:    in.StationId,
		StationName:  in.StationName,
		FuelType:     in.FuelType,
		Amount:       amount,
		Liters:       liters.InexactFloat64(),
		VehicleId:    in.VehicleId,
		VehiclePlate: in.VehiclePlate,
		AttendantId:  in.AttendantId,
	}, nil
}

// ToApiWallet converts a domain Wallet model to an API Wallet model.
func ToApiWallet(wallet *models.Wallet) *api.Wallet {
	return &api.Wallet{
		UserId:    wallet.UserId,
		Name:      wallet.Name,
		Balance:   money.ToDecimal(wallet.Balance),
		Version:   wallet.Version,
		CreatedAt: wallet.CreatedAt,
	}
}

// ToDomainNewWallet converts an API NewWallet model to a domain Wallet model.
// Wallets start empty unless an opening balance is given.
func ToDomainNewWallet(newWallet *api.NewWallet, now time.Time) (*models.Wallet, error) {
	if newWallet.UserId == "" {
		return nil, txerrors.Validationf("user_id is required")
	}
	var balance int64
	if newWallet.Balance != nil {
		b, err := money.FromDecimal(*newWallet.Balance)
		if err != nil {
			return nil, txerrors.Validationf("%v", err)
		}
		if b < 0 {
			return nil, txerrors.Validationf("balance must not be negative")
		}
		balance = b
	}
	return &models.Wallet{
		UserId:    newWallet.UserId,
		Name:      newWallet.Name,
		Balance:   balance,
		Version:   1,
		CreatedAt: now,
	}, nil
}

// ToApiLedgerEntry converts a domain LedgerEntry to an API LedgerEntry.
func ToApiLedgerEntry(entry *models.LedgerEntry) *api.LedgerEntry {
	out := &api.LedgerEntry{
		EntryId:     &entry.EntryID,
		AccountId:   entry.AccountID,
		Description: entry.Description,
		Timestamp:   entry.Timestamp,
	}
	if entry.TransactionID != "" {
		out.TransactionId = &entry.TransactionID
	}
	if entry.Debit != 0 {
		d := money.ToDecimal(entry.Debit)
		out.Debit = &d
	}
	if entry.Credit != 0 {
		c := money.ToDecimal(entry.Credit)
		out.Credit = &c
	}
	return out
}

// ToApiQuote converts a fuel quote.
func ToApiQuote(q fuel.Quote) *api.Quote {
	return &api.Quote{
		FuelType:      q.Grade.Name,
		PricePerLiter: q.Grade.PricePerLiter,
		Liters:        q.Liters,
		Amount:        money.ToDecimal(q.Amount),
	}
}

// ToApiQrPayload converts a decoded QR payload.
func ToApiQrPayload(p *qr.Payload) *api.QrPayload {
	out := &api.QrPayload{
		UserId:    p.UserId,
		WalletId:  p.WalletId,
		Name:      p.Name,
		Timestamp: p.Timestamp,
	}
	if p.Vehicle != nil {
		out.Vehicle = &api.QrVehicle{
			Id:           p.Vehicle.Id,
			LicensePlate: p.Vehicle.LicensePlate,
			FuelType:     p.Vehicle.FuelType,
		}
	}
	return out
}
