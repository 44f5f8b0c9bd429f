package websockets

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/changefeed"
	"github.com/chris/fuelpay/pkg/fanout"
	"github.com/chris/fuelpay/pkg/handlers/respond"
	"github.com/chris/fuelpay/pkg/txerrors"
	ws "github.com/chris/fuelpay/pkg/websockets"
)

// Watcher runs fan-out sessions.
type Watcher interface {
	WatchCustomer(ctx context.Context, userID string, handle fanout.Handler) error
	WatchTransaction(ctx context.Context, txID string, handle fanout.Handler) error
}

// Handler upgrades session requests and streams updates to them.
type Handler struct {
	watcher      Watcher
	present      respond.Presenter
	writeTimeout time.Duration
	log          *zap.Logger
	upgrader     websocket.Upgrader
}

// NewHandler creates a new Handler.
func NewHandler(watcher Watcher, present respond.Presenter, writeTimeout time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		watcher:      watcher,
		present:      present,
		writeTimeout: writeTimeout,
		log:          log.Named("websockets"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// WatchCustomer streams the customer's pending set.
func (h *Handler) WatchCustomer(w http.ResponseWriter, r *http.Request, userId string) {
	h.serve(w, r, zap.String("user_id", userId), func(ctx context.Context, conn *ws.Conn) error {
		return h.watcher.WatchCustomer(ctx, userId, func(u fanout.Update) error {
			return conn.Send(h.pendingMessage(u))
		})
	})
}

// WatchTransaction streams one transaction to the attendant.
func (h *Handler) WatchTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	h.serve(w, r, zap.String("transaction_id", transactionId.String()), func(ctx context.Context, conn *ws.Conn) error {
		return h.watcher.WatchTransaction(ctx, transactionId.String(), func(u fanout.Update) error {
			return conn.Send(h.transactionMessage(u))
		})
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, field zap.Field, stream func(context.Context, *ws.Conn) error) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", field, zap.Error(err))
		return
	}
	log := h.log.With(field)
	log.Info("session opened")

	conn := ws.NewConn(socket, h.writeTimeout, log)
	err = conn.Serve(r.Context(), func(ctx context.Context) error {
		err := stream(ctx, conn)
		if errors.Is(err, txerrors.ErrChannel) {
			_ = conn.Send(ws.Message{
				Type:    ws.MessageTypeConnectivityWarning,
				Payload: ws.WarningPayload{Message: "Live updates are unavailable. Refresh to try again."},
			})
		}
		return err
	})

	switch {
	case err == nil, errors.Is(err, ws.ErrClosed):
		log.Info("session closed")
	case errors.Is(err, txerrors.ErrNotFound), errors.Is(err, txerrors.ErrValidation):
		log.Info("session rejected", zap.Error(err))
	default:
		log.Warn("session ended", zap.Error(err))
	}
}

func (h *Handler) transactionMessage(u fanout.Update) ws.Message {
	typ := ws.MessageTypeTransactionUpdated
	if u.Event.Type == changefeed.Snapshot {
		typ = ws.MessageTypeTransactionSnapshot
	}
	return ws.Message{Type: typ, Payload: ws.TransactionPayload{
		Transaction: h.present(u.Event.Transaction),
		Actor:       string(u.Event.Actor),
	}}
}

func (h *Handler) pendingMessage(u fanout.Update) ws.Message {
	typ := ws.MessageTypePendingUpdated
	if u.Event.Type == changefeed.Snapshot {
		typ = ws.MessageTypePendingSnapshot
	}
	payload := ws.PendingPayload{Pending: make([]*api.Transaction, len(u.Pending))}
	for i := range u.Pending {
		payload.Pending[i] = h.present(&u.Pending[i])
	}
	if u.Event.Transaction != nil {
		payload.Transaction = h.present(u.Event.Transaction)
	}
	return ws.Message{Type: typ, Payload: payload}
}

var _ Watcher = (*fanout.Session)(nil)
