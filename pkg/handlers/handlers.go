package handlers

import (
	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/handlers/ledger"
	"github.com/chris/fuelpay/pkg/handlers/quotes"
	"github.com/chris/fuelpay/pkg/handlers/transactions"
	"github.com/chris/fuelpay/pkg/handlers/wallets"
	"github.com/chris/fuelpay/pkg/handlers/websockets"
)

// ApiHandler implements the server interface by composing the per-resource handlers.
type ApiHandler struct {
	*transactions.TransactionsHandler
	*wallets.WalletsHandler
	*ledger.LedgerHandler
	*quotes.QuotesHandler
	*websockets.Handler
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(
	tx *transactions.TransactionsHandler,
	wallet *wallets.WalletsHandler,
	led *ledger.LedgerHandler,
	quote *quotes.QuotesHandler,
	ws *websockets.Handler,
) *ApiHandler {
	return &ApiHandler{
		TransactionsHandler: tx,
		WalletsHandler:      wallet,
		LedgerHandler:       led,
		QuotesHandler:       quote,
		Handler:             ws,
	}
}

// Make sure we conform to the interface
var _ api.ServerInterface = (*ApiHandler)(nil)
