package storage

import "errors"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when an insert collides with an existing key.
var ErrAlreadyExists = errors.New("record already exists")

// ErrPreconditionFailed is returned when a conditional update finds the record
// no longer in the expected status.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrInsufficientFunds is returned when a wallet has an insufficient balance for a settlement.
var ErrInsufficientFunds = errors.New("insufficient funds")
