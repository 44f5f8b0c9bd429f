package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/config"
	"github.com/chris/fuelpay/pkg/scheduler"
	"github.com/chris/fuelpay/pkg/storage/memory"
	ws "github.com/chris/fuelpay/pkg/websockets"
)

func testConfig() config.Config {
	return config.Config{
		HTTPPort:               "0",
		StorageBackend:         config.StorageMemory,
		BrokerBackend:          config.BrokerLocal,
		SchedulerBackend:       config.SchedulerLocal,
		TransactionTimeout:     time.Minute,
		HistoryLimit:           10,
		SubscriptionMaxRetries: 3,
		SubscriptionBackoff:    time.Millisecond,
	}
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

type message struct {
	Type    ws.MessageType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type pendingPayload struct {
	Pending     []api.Transaction `json:"pending"`
	Transaction *api.Transaction  `json:"transaction"`
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestNew(t *testing.T) {
	t.Run("Memory Backends", func(t *testing.T) {
		a := newTestApp(t, testConfig())

		assert.IsType(t, &memory.Store{}, a.Store)
		local, ok := a.Scheduler.(*scheduler.Local)
		require.True(t, ok)
		assert.Equal(t, time.Minute, a.Coordinator.Timeout())
		assert.Zero(t, local.Pending())
	})

	t.Run("Created Transactions Arm A Timer", func(t *testing.T) {
		a := newTestApp(t, testConfig())
		srv := httptest.NewServer(a.Router())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/transactions", "application/json", strings.NewReader(
			`{"user_id":"u1","wallet_id":"w1","station_id":"s1","fuel_type":"Diesel","amount":"45.75","liters":"25.3"}`))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		assert.Equal(t, 1, a.Scheduler.(*scheduler.Local).Pending())
	})
}

func TestRouter(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Bad Path Parameter Is JSON", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/transactions/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})
}

func TestCustomerSession(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/customers/u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	require.Equal(t, ws.MessageTypePendingSnapshot, first.Type)
	var snapshot pendingPayload
	require.NoError(t, json.Unmarshal(first.Payload, &snapshot))
	assert.Empty(t, snapshot.Pending)

	resp, err := http.Post(srv.URL+"/transactions", "application/json", strings.NewReader(
		`{"user_id":"u1","wallet_id":"w1","station_id":"s1","fuel_type":"Diesel","amount":"45.75","liters":"25.3"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	next := readMessage(t, conn)
	require.Equal(t, ws.MessageTypePendingUpdated, next.Type)
	var update pendingPayload
	require.NoError(t, json.Unmarshal(next.Payload, &update))
	require.Len(t, update.Pending, 1)
	require.NotNil(t, update.Transaction)
	assert.Equal(t, update.Transaction.Id, update.Pending[0].Id)
	assert.Equal(t, api.Pending, update.Pending[0].Status)
}

func TestTransactionSession(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/transactions", "application/json", strings.NewReader(
		`{"user_id":"u1","wallet_id":"w1","station_id":"s1","fuel_type":"Diesel","amount":"45.75","liters":"25.3"}`))
	require.NoError(t, err)
	var created api.Transaction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/transactions/" + created.Id.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	require.Equal(t, ws.MessageTypeTransactionSnapshot, first.Type)

	resp, err = http.Post(srv.URL+"/transactions/"+created.Id.String()+"/decline", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	next := readMessage(t, conn)
	require.Equal(t, ws.MessageTypeTransactionUpdated, next.Type)
	var payload struct {
		Transaction api.Transaction `json:"transaction"`
		Actor       string          `json:"actor"`
	}
	require.NoError(t, json.Unmarshal(next.Payload, &payload))
	assert.Equal(t, api.Rejected, payload.Transaction.Status)
	assert.Equal(t, "customer", payload.Actor)
}
