package websockets

import "github.com/chris/fuelpay/pkg/api"

// MessageType defines the type of a WebSocket message.
type MessageType string

const (
	// MessageTypeTransactionSnapshot carries a record read from the store
	// after (re)subscribing.
	MessageTypeTransactionSnapshot MessageType = "transaction.snapshot"
	// MessageTypeTransactionUpdated carries a committed change.
	MessageTypeTransactionUpdated MessageType = "transaction.updated"
	// MessageTypePendingSnapshot carries a customer's whole pending set.
	MessageTypePendingSnapshot MessageType = "pending.snapshot"
	// MessageTypePendingUpdated carries the pending set after a change.
	MessageTypePendingUpdated MessageType = "pending.updated"
	// MessageTypeConnectivityWarning is sent once before the server gives up
	// on a session whose feed could not be recovered.
	MessageTypeConnectivityWarning MessageType = "connectivity.warning"
)

// Message represents a generic WebSocket message.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// TransactionPayload is the payload of transaction.* messages.
type TransactionPayload struct {
	Transaction *api.Transaction `json:"transaction"`
	Actor       string           `json:"actor,omitempty"`
}

// PendingPayload is the payload of pending.* messages. Transaction is the
// record whose change produced the update and is absent on snapshots.
type PendingPayload struct {
	Pending     []*api.Transaction `json:"pending"`
	Transaction *api.Transaction   `json:"transaction,omitempty"`
}

// WarningPayload is the payload for a connectivity.warning message.
type WarningPayload struct {
	Message string `json:"message"`
}
