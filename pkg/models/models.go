package models

import (
	"time"
)

// TransactionStatus defines the possible states of a transaction.
type TransactionStatus string

const (
	PENDING   TransactionStatus = "pending"
	CONFIRMED TransactionStatus = "confirmed"
	REJECTED  TransactionStatus = "rejected"
	COMPLETED TransactionStatus = "completed"
	CANCELLED TransactionStatus = "cancelled"
	EXPIRED   TransactionStatus = "expired"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []TransactionStatus{PENDING, CONFIRMED, REJECTED, COMPLETED, CANCELLED, EXPIRED}

// Valid reports whether s is one of the known statuses.
func (s TransactionStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case REJECTED, COMPLETED, CANCELLED, EXPIRED:
		return true
	}
	return false
}

// Actor identifies which side authored a transition.
type Actor string

const (
	ATTENDANT Actor = "attendant"
	CUSTOMER  Actor = "customer"
	SYSTEM    Actor = "system"
)

// Transaction represents the internal domain model for a fuel payment request.
// Amount is stored in cents.
type Transaction struct {
	Id           string            `json:"id" dynamodbav:"id" db:"id"`
	UserId       string            `json:"user_id" dynamodbav:"user_id" db:"user_id"`
	WalletId     string            `json:"wallet_id" dynamodbav:"wallet_id" db:"wallet_id"`
	StationId    string            `json:"station_id" dynamodbav:"station_id" db:"station_id"`
	StationName  string            `json:"station_name" dynamodbav:"station_name" db:"station_name"`
	FuelType     string            `json:"fuel_type" dynamodbav:"fuel_type" db:"fuel_type"`
	Amount       int64             `json:"amount" dynamodbav:"amount" db:"amount"`
	Liters       float64           `json:"liters" dynamodbav:"liters" db:"liters"`
	Status       TransactionStatus `json:"status" dynamodbav:"status" db:"status"`
	VehicleId    *string           `json:"vehicle_id,omitempty" dynamodbav:"vehicle_id,omitempty" db:"vehicle_id"`
	VehiclePlate *string           `json:"vehicle_plate,omitempty" dynamodbav:"vehicle_plate,omitempty" db:"vehicle_plate"`
	AttendantId  *string           `json:"attendant_id,omitempty" dynamodbav:"attendant_id,omitempty" db:"attendant_id"`
	UpdatedBy    Actor             `json:"updated_by" dynamodbav:"updated_by" db:"updated_by"`
	CreatedAt    time.Time         `json:"created_at" dynamodbav:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" dynamodbav:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.VehicleId = cloneString(t.VehicleId)
	c.VehiclePlate = cloneString(t.VehiclePlate)
	c.AttendantId = cloneString(t.AttendantId)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Wallet represents a customer's stored balance, in cents.
type Wallet struct {
	UserId    string    `json:"user_id" dynamodbav:"user_id" db:"user_id"`
	Name      string    `json:"name" dynamodbav:"name" db:"name"`
	Balance   int64     `json:"balance" dynamodbav:"balance" db:"balance"`
	Version   int64     `json:"version" dynamodbav:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at" db:"created_at"`
}

// LedgerEntry represents a single balance movement.
type LedgerEntry struct {
	EntryID       string    `json:"entry_id" dynamodbav:"entry_id" db:"entry_id"`
	TransactionID string    `json:"transaction_id" dynamodbav:"transaction_id" db:"transaction_id"`
	AccountID     string    `json:"account_id" dynamodbav:"account_id" db:"account_id"`
	Debit         int64     `json:"debit,omitempty" dynamodbav:"debit,omitempty" db:"debit"`
	Credit        int64     `json:"credit,omitempty" dynamodbav:"credit,omitempty" db:"credit"`
	Description   string    `json:"description" dynamodbav:"description" db:"description"`
	Timestamp     time.Time `json:"timestamp" dynamodbav:"timestamp" db:"timestamp"`
	GSI1PK        string    `json:"-" dynamodbav:"gsi1pk" db:"-"`
}
