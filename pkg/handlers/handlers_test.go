package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/changefeed"
	"github.com/chris/fuelpay/pkg/coordinator"
	"github.com/chris/fuelpay/pkg/fanout"
	"github.com/chris/fuelpay/pkg/fuel"
	"github.com/chris/fuelpay/pkg/handlers"
	"github.com/chris/fuelpay/pkg/handlers/ledger"
	"github.com/chris/fuelpay/pkg/handlers/quotes"
	"github.com/chris/fuelpay/pkg/handlers/transactions"
	"github.com/chris/fuelpay/pkg/handlers/wallets"
	"github.com/chris/fuelpay/pkg/handlers/websockets"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/settlement"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/storage/memory"
)

const newTransactionBody = `{"user_id":"u1","wallet_id":"w1","station_id":"s1","station_name":"Main St","fuel_type":"Diesel","amount":"45.75","liters":"25.3"}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newServerWithStore(t, memory.New())
}

func newServerWithStore(t *testing.T, store storage.Storage) *httptest.Server {
	t.Helper()
	broker := changefeed.NewLocal(16)
	settler := settlement.New(store)
	coord := coordinator.New(store, settler, nil, broker)
	session := fanout.NewSession(broker, coord, fanout.Config{}, zap.NewNop())

	txHandler := transactions.NewTransactionsHandler(coord)
	h := handlers.NewApiHandler(
		txHandler,
		wallets.NewWalletsHandler(store, settler),
		ledger.NewLedgerHandler(store),
		quotes.NewQuotesHandler(fuel.DefaultCatalog()),
		websockets.NewHandler(session, txHandler.Present, 0, zap.NewNop()),
	)

	srv := httptest.NewServer(api.Handler(h))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func createTransaction(t *testing.T, srv *httptest.Server, body string) api.Transaction {
	t.Helper()
	status, data := do(t, srv, http.MethodPost, "/transactions", body)
	require.Equal(t, http.StatusCreated, status, string(data))
	var tx api.Transaction
	require.NoError(t, json.Unmarshal(data, &tx))
	return tx
}

func TestPaymentFlow(t *testing.T) {
	t.Run("Confirm Debits Wallet", func(t *testing.T) {
		srv := newServer(t)
		status, _ := do(t, srv, http.MethodPost, "/wallets", `{"user_id":"u1","balance":"500.00"}`)
		require.Equal(t, http.StatusCreated, status)

		tx := createTransaction(t, srv, newTransactionBody)
		assert.Equal(t, api.Pending, tx.Status)
		assert.Positive(t, tx.RemainingSeconds)

		status, data := do(t, srv, http.MethodGet, "/customers/u1/transactions/pending", "")
		require.Equal(t, http.StatusOK, status)
		var pending []api.Transaction
		require.NoError(t, json.Unmarshal(data, &pending))
		require.Len(t, pending, 1)
		assert.Equal(t, tx.Id, pending[0].Id)

		status, data = do(t, srv, http.MethodPost, "/transactions/"+tx.Id.String()+"/confirm", "")
		require.Equal(t, http.StatusOK, status, string(data))

		status, data = do(t, srv, http.MethodGet, "/wallets/u1", "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(data), `"balance":"454.25"`)

		status, data = do(t, srv, http.MethodGet, "/ledger", "")
		require.Equal(t, http.StatusOK, status)
		var entries []api.LedgerEntry
		require.NoError(t, json.Unmarshal(data, &entries))
		require.NotEmpty(t, entries)
		require.NotNil(t, entries[0].TransactionId)
		assert.Equal(t, tx.Id.String(), *entries[0].TransactionId)

		status, data = do(t, srv, http.MethodPost, "/transactions/"+tx.Id.String()+"/complete", "")
		require.Equal(t, http.StatusOK, status)

		status, data = do(t, srv, http.MethodGet, "/customers/u1/transactions/history", "")
		require.Equal(t, http.StatusOK, status)
		var history []api.Transaction
		require.NoError(t, json.Unmarshal(data, &history))
		require.Len(t, history, 1)
		assert.Equal(t, api.Completed, history[0].Status)
	})

	t.Run("Second Resolution Conflicts", func(t *testing.T) {
		srv := newServer(t)
		do(t, srv, http.MethodPost, "/wallets", `{"user_id":"u1","balance":"500.00"}`)
		tx := createTransaction(t, srv, newTransactionBody)

		status, _ := do(t, srv, http.MethodPost, "/transactions/"+tx.Id.String()+"/cancel", "")
		require.Equal(t, http.StatusOK, status)

		status, data := do(t, srv, http.MethodPost, "/transactions/"+tx.Id.String()+"/confirm", "")
		assert.Equal(t, http.StatusConflict, status)
		var body api.Error
		require.NoError(t, json.Unmarshal(data, &body))
		require.NotNil(t, body.Transaction)
		assert.Equal(t, api.Cancelled, body.Transaction.Status)

		status, data = do(t, srv, http.MethodGet, "/wallets/u1", "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(data), `"balance":"500"`)
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		srv := newServer(t)
		do(t, srv, http.MethodPost, "/wallets", `{"user_id":"u1","balance":"10.00"}`)
		tx := createTransaction(t, srv, newTransactionBody)

		status, _ := do(t, srv, http.MethodPost, "/transactions/"+tx.Id.String()+"/confirm", "")
		assert.Equal(t, http.StatusUnprocessableEntity, status)

		status, data := do(t, srv, http.MethodGet, "/transactions/"+tx.Id.String(), "")
		require.Equal(t, http.StatusOK, status)
		var got api.Transaction
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, api.Pending, got.Status)
	})
}

func TestRouting(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"Invalid Transaction Id", http.MethodGet, "/transactions/not-a-uuid", "", http.StatusBadRequest},
		{"Unknown Transaction", http.MethodGet, "/transactions/6f1c1a52-8c1e-4c55-9f0e-3f7d2b8a4e10", "", http.StatusNotFound},
		{"Invalid Limit", http.MethodGet, "/ledger?limit=many", "", http.StatusBadRequest},
		{"Negative Amount", http.MethodPost, "/transactions", strings.Replace(newTransactionBody, "45.75", "-1", 1), http.StatusBadRequest},
		{"Unknown Wallet", http.MethodGet, "/wallets/ghost", "", http.StatusNotFound},
		{"Quote Needs One Input", http.MethodPost, "/quotes", `{"fuel_type":"Diesel"}`, http.StatusBadRequest},
		{"QR Missing Wallet", http.MethodPost, "/qr/parse", `{"userId":"u1"}`, http.StatusBadRequest},
		{"Amount Out Of Range", http.MethodPost, "/transactions", strings.Replace(newTransactionBody, "45.75", "184467440737095516.17", 1), http.StatusBadRequest},
		{"Opening Balance Out Of Range", http.MethodPost, "/wallets", `{"user_id":"u9","balance":"184467440737095516.17"}`, http.StatusBadRequest},
		{"Top Up Out Of Range", http.MethodPost, "/wallets/u9/topup", `{"amount":"184467440737095516.17"}`, http.StatusBadRequest},
		{"Liters Below Resolution", http.MethodPost, "/transactions", strings.Replace(newTransactionBody, `"25.3"`, `"0.004"`, 1), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(data))
		})
	}
}

type unreachableStore struct {
	*memory.Store
}

func (unreachableStore) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	return nil, errors.New("operation error DynamoDB: GetItem, dial tcp 10.0.0.7:443: connection refused")
}

func TestStoreFailureIsHidden(t *testing.T) {
	srv := newServerWithStore(t, unreachableStore{Store: memory.New()})

	status, data := do(t, srv, http.MethodGet, "/transactions/6f1c1a52-8c1e-4c55-9f0e-3f7d2b8a4e10", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NotContains(t, string(data), "DynamoDB")
	assert.NotContains(t, string(data), "connection refused")

	var body api.Error
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "record store unavailable", body.Message)
}

func TestQuotesAndQr(t *testing.T) {
	srv := newServer(t)

	t.Run("Quote Liters", func(t *testing.T) {
		status, data := do(t, srv, http.MethodPost, "/quotes", `{"fuel_type":"Diesel","liters":"25.3"}`)
		require.Equal(t, http.StatusOK, status, string(data))
		var q api.Quote
		require.NoError(t, json.Unmarshal(data, &q))
		assert.Equal(t, "94.88", q.Amount.StringFixed(2))
		assert.Equal(t, "Diesel", q.FuelType)
	})

	t.Run("Parse QR", func(t *testing.T) {
		status, data := do(t, srv, http.MethodPost, "/qr/parse", `{"userId":"u1","walletId":"w1","vehicle":{"id":"v1","licensePlate":"ABC-123"}}`)
		require.Equal(t, http.StatusOK, status, string(data))
		var p api.QrPayload
		require.NoError(t, json.Unmarshal(data, &p))
		assert.Equal(t, "Customer", p.Name)
		require.NotNil(t, p.Vehicle)
		assert.Equal(t, "ABC-123", p.Vehicle.LicensePlate)
	})
}
