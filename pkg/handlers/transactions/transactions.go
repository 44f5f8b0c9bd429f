package transactions

import (
	"context"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/coordinator"
	"github.com/chris/fuelpay/pkg/handlers/respond"
	"github.com/chris/fuelpay/pkg/mapping"
	"github.com/chris/fuelpay/pkg/models"
)

// Coordinator is the lifecycle surface the handlers drive.
type Coordinator interface {
	CreateTransaction(ctx context.Context, in coordinator.NewTransaction) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	Confirm(ctx context.Context, id string) (*models.Transaction, error)
	Decline(ctx context.Context, id string) (*models.Transaction, error)
	Cancel(ctx context.Context, id string) (*models.Transaction, error)
	Complete(ctx context.Context, id string) (*models.Transaction, error)
	GetPending(ctx context.Context, userID string) ([]models.Transaction, error)
	GetHistory(ctx context.Context, userID string, limit int32) ([]models.Transaction, error)
	Deadline(tx *models.Transaction) time.Time
	Remaining(tx *models.Transaction) time.Duration
}

// TransactionsHandler holds the dependencies for transaction-related handlers.
type TransactionsHandler struct {
	Coordinator Coordinator
}

// NewTransactionsHandler creates a new TransactionsHandler.
func NewTransactionsHandler(c Coordinator) *TransactionsHandler {
	return &TransactionsHandler{Coordinator: c}
}

// Present renders tx with its deadline and remaining time.
func (h *TransactionsHandler) Present(tx *models.Transaction) *api.Transaction {
	return mapping.ToApiTransaction(tx, h.Coordinator.Deadline(tx), h.Coordinator.Remaining(tx))
}

func (h *TransactionsHandler) list(txs []models.Transaction) []*api.Transaction {
	out := make([]*api.Transaction, len(txs))
	for i := range txs {
		out[i] = h.Present(&txs[i])
	}
	return out
}

// CreateTransaction starts a payment request on behalf of the attendant.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var newTx api.NewTransaction
	if err := respond.Decode(r, &newTx); err != nil {
		respond.Error(w, err, nil)
		return
	}

	in, err := mapping.ToDomainNewTransaction(&newTx)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}

	created, err := h.Coordinator.CreateTransaction(r.Context(), in)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusCreated, h.Present(created))
}

// GetTransactionById handles the logic for retrieving a transaction by its ID.
func (h *TransactionsHandler) GetTransactionById(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	tx, err := h.Coordinator.GetTransaction(r.Context(), transactionId.String())
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusOK, h.Present(tx))
}

func (h *TransactionsHandler) transition(w http.ResponseWriter, r *http.Request, id openapi_types.UUID,
	fn func(ctx context.Context, id string) (*models.Transaction, error)) {
	tx, err := fn(r.Context(), id.String())
	if err != nil {
		respond.Error(w, err, h.Present)
		return
	}
	respond.JSON(w, http.StatusOK, h.Present(tx))
}

// ConfirmTransaction is the customer's acceptance.
func (h *TransactionsHandler) ConfirmTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	h.transition(w, r, transactionId, h.Coordinator.Confirm)
}

// DeclineTransaction is the customer's refusal.
func (h *TransactionsHandler) DeclineTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	h.transition(w, r, transactionId, h.Coordinator.Decline)
}

// CancelTransaction is the attendant's withdrawal. Cancelling a resolved
// transaction returns it unchanged.
func (h *TransactionsHandler) CancelTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	h.transition(w, r, transactionId, h.Coordinator.Cancel)
}

// CompleteTransaction is the attendant's acknowledgement.
func (h *TransactionsHandler) CompleteTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	h.transition(w, r, transactionId, h.Coordinator.Complete)
}

// ListPendingTransactions returns the customer's pending transactions, newest first.
func (h *TransactionsHandler) ListPendingTransactions(w http.ResponseWriter, r *http.Request, userId string) {
	txs, err := h.Coordinator.GetPending(r.Context(), userId)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusOK, h.list(txs))
}

// ListTransactionHistory returns the customer's settled transactions, newest first.
func (h *TransactionsHandler) ListTransactionHistory(w http.ResponseWriter, r *http.Request, userId string, params api.ListTransactionHistoryParams) {
	var limit int32
	if params.Limit != nil {
		limit = *params.Limit
	}
	txs, err := h.Coordinator.GetHistory(r.Context(), userId, limit)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusOK, h.list(txs))
}
