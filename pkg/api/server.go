package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Decode a wallet QR payload
	// (POST /qr/parse)
	ParseQr(w http.ResponseWriter, r *http.Request)
	// Price a fuel volume or amount
	// (POST /quotes)
	CreateQuote(w http.ResponseWriter, r *http.Request)
	// Create a pending transaction
	// (POST /transactions)
	CreateTransaction(w http.ResponseWriter, r *http.Request)
	// (GET /transactions/{transactionId})
	GetTransactionById(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/confirm)
	ConfirmTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/decline)
	DeclineTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/cancel)
	CancelTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/complete)
	CompleteTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (GET /customers/{userId}/transactions/pending)
	ListPendingTransactions(w http.ResponseWriter, r *http.Request, userId string)
	// (GET /customers/{userId}/transactions/history)
	ListTransactionHistory(w http.ResponseWriter, r *http.Request, userId string, params ListTransactionHistoryParams)
	// (GET /wallets)
	ListWallets(w http.ResponseWriter, r *http.Request)
	// (POST /wallets)
	CreateWallet(w http.ResponseWriter, r *http.Request)
	// (GET /wallets/{userId})
	GetWalletByUserId(w http.ResponseWriter, r *http.Request, userId string)
	// (DELETE /wallets/{userId})
	DeleteWallet(w http.ResponseWriter, r *http.Request, userId string)
	// (POST /wallets/{userId}/topup)
	TopUpWallet(w http.ResponseWriter, r *http.Request, userId string)
	// (GET /ledger)
	ListLedgerEntries(w http.ResponseWriter, r *http.Request, params ListLedgerEntriesParams)
	// Customer session: the pending set
	// (GET /ws/customers/{userId})
	WatchCustomer(w http.ResponseWriter, r *http.Request, userId string)
	// Attendant session: one transaction
	// (GET /ws/transactions/{transactionId})
	WatchTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
}

// MiddlewareFunc wraps a single operation.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts requests to handler parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError is passed to ErrorHandlerFunc when a parameter does not bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	handler := http.Handler(fn)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) transactionID(w http.ResponseWriter, r *http.Request) (openapi_types.UUID, bool) {
	var transactionId openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "transactionId", chi.URLParam(r, "transactionId"), &transactionId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "transactionId", Err: err})
		return transactionId, false
	}
	return transactionId, true
}

func (siw *ServerInterfaceWrapper) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var userId string
	err := runtime.BindStyledParameterWithOptions("simple", "userId", chi.URLParam(r, "userId"), &userId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "userId", Err: err})
		return userId, false
	}
	return userId, true
}

func (siw *ServerInterfaceWrapper) limit(w http.ResponseWriter, r *http.Request) (*int32, bool) {
	var limit *int32
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return nil, false
	}
	return limit, true
}

func (siw *ServerInterfaceWrapper) ParseQr(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ParseQr)
}

func (siw *ServerInterfaceWrapper) CreateQuote(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateQuote)
}

func (siw *ServerInterfaceWrapper) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateTransaction)
}

func (siw *ServerInterfaceWrapper) withTransactionID(fn func(http.ResponseWriter, *http.Request, openapi_types.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := siw.transactionID(w, r)
		if !ok {
			return
		}
		siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { fn(w, r, id) })
	}
}

func (siw *ServerInterfaceWrapper) withUserID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := siw.userID(w, r)
		if !ok {
			return
		}
		siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { fn(w, r, id) })
	}
}

func (siw *ServerInterfaceWrapper) ListTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userId, ok := siw.userID(w, r)
	if !ok {
		return
	}
	limit, ok := siw.limit(w, r)
	if !ok {
		return
	}
	params := ListTransactionHistoryParams{Limit: limit}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListTransactionHistory(w, r, userId, params)
	})
}

func (siw *ServerInterfaceWrapper) ListWallets(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ListWallets)
}

func (siw *ServerInterfaceWrapper) CreateWallet(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateWallet)
}

func (siw *ServerInterfaceWrapper) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	limit, ok := siw.limit(w, r)
	if !ok {
		return
	}
	params := ListLedgerEntriesParams{Limit: limit}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListLedgerEntries(w, r, params)
	})
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerFromMux mounts si on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}
	base := options.BaseURL

	r.Group(func(r chi.Router) {
		r.Post(base+"/qr/parse", wrapper.ParseQr)
		r.Post(base+"/quotes", wrapper.CreateQuote)

		r.Post(base+"/transactions", wrapper.CreateTransaction)
		r.Get(base+"/transactions/{transactionId}", wrapper.withTransactionID(si.GetTransactionById))
		r.Post(base+"/transactions/{transactionId}/confirm", wrapper.withTransactionID(si.ConfirmTransaction))
		r.Post(base+"/transactions/{transactionId}/decline", wrapper.withTransactionID(si.DeclineTransaction))
		r.Post(base+"/transactions/{transactionId}/cancel", wrapper.withTransactionID(si.CancelTransaction))
		r.Post(base+"/transactions/{transactionId}/complete", wrapper.withTransactionID(si.CompleteTransaction))

		r.Get(base+"/customers/{userId}/transactions/pending", wrapper.withUserID(si.ListPendingTransactions))
		r.Get(base+"/customers/{userId}/transactions/history", wrapper.ListTransactionHistory)

		r.Get(base+"/wallets", wrapper.ListWallets)
		r.Post(base+"/wallets", wrapper.CreateWallet)
		r.Get(base+"/wallets/{userId}", wrapper.withUserID(si.GetWalletByUserId))
		r.Delete(base+"/wallets/{userId}", wrapper.withUserID(si.DeleteWallet))
		r.Post(base+"/wallets/{userId}/topup", wrapper.withUserID(si.TopUpWallet))

		r.Get(base+"/ledger", wrapper.ListLedgerEntries)

		r.Get(base+"/ws/customers/{userId}", wrapper.withUserID(si.WatchCustomer))
		r.Get(base+"/ws/transactions/{transactionId}", wrapper.withTransactionID(si.WatchTransaction))
	})
	return r
}
