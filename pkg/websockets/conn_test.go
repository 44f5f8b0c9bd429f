package websockets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newConnPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-accepted:
		return NewConn(server, time.Second, zap.NewNop()), client
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not accepted")
		return nil, nil
	}
}

func TestSend(t *testing.T) {
	t.Run("Full Queue", func(t *testing.T) {
		conn, client := newConnPair(t)

		for i := 0; i < sendBuffer; i++ {
			require.NoError(t, conn.Send(Message{Type: MessageTypePendingUpdated}))
		}
		assert.ErrorIs(t, conn.Send(Message{Type: MessageTypePendingUpdated}), ErrSlowClient)

		// Queued messages are flushed before the close frame.
		require.NoError(t, conn.Serve(context.Background(), func(ctx context.Context) error { return nil }))
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		for i := 0; i < sendBuffer; i++ {
			var m Message
			require.NoError(t, client.ReadJSON(&m))
			assert.Equal(t, MessageTypePendingUpdated, m.Type)
		}
		_, _, err := client.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	})

	t.Run("After Close", func(t *testing.T) {
		conn, _ := newConnPair(t)
		require.NoError(t, conn.Serve(context.Background(), func(ctx context.Context) error { return nil }))
		assert.ErrorIs(t, conn.Send(Message{Type: MessageTypeTransactionUpdated}), ErrClosed)
	})
}

func TestServe(t *testing.T) {
	t.Run("Client Disconnect Cancels Stream", func(t *testing.T) {
		conn, client := newConnPair(t)
		started := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- conn.Serve(context.Background(), func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			})
		}()

		<-started
		require.NoError(t, client.Close())

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("stream was not cancelled")
		}
	})

	t.Run("Delivers Sent Messages", func(t *testing.T) {
		conn, client := newConnPair(t)
		go func() {
			_ = conn.Serve(context.Background(), func(ctx context.Context) error {
				if err := conn.Send(Message{Type: MessageTypeConnectivityWarning, Payload: WarningPayload{Message: "offline"}}); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			})
		}()

		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m struct {
			Type    MessageType    `json:"type"`
			Payload WarningPayload `json:"payload"`
		}
		require.NoError(t, client.ReadJSON(&m))
		assert.Equal(t, MessageTypeConnectivityWarning, m.Type)
		assert.Equal(t, "offline", m.Payload.Message)
	})
}
