package main

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/scheduler/mocks"
	"github.com/chris/fuelpay/pkg/txerrors"
)

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) Expire(ctx context.Context, txID string) (*models.Transaction, error) {
	args := m.Called(ctx, txID)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func record(id, body string) events.SQSMessage {
	return events.SQSMessage{MessageId: id, Body: body}
}

func TestHandleRequest(t *testing.T) {
	deadline := time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC)
	body := `{"transaction_id":"tx-1","deadline":"2026-03-14T09:01:00Z"}`

	t.Run("Success", func(t *testing.T) {
		expirer := &mockExpirer{}
		expirer.On("Expire", mock.Anything, "tx-1").Return(&models.Transaction{Id: "tx-1", Status: models.EXPIRED}, nil)
		h := &expiryHandler{expirer: expirer, scheduler: mocks.NewScheduler(t), log: zap.NewNop()}

		resp, err := h.HandleRequest(context.Background(), events.SQSEvent{Records: []events.SQSMessage{record("m1", body)}})
		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
		expirer.AssertExpectations(t)
	})

	t.Run("Not Due Is Rescheduled", func(t *testing.T) {
		expirer := &mockExpirer{}
		expirer.On("Expire", mock.Anything, "tx-1").Return(nil, txerrors.ErrExpiryNotDue)
		sched := mocks.NewScheduler(t)
		sched.On("ScheduleExpiry", mock.Anything, "tx-1", deadline).Return(nil)
		h := &expiryHandler{expirer: expirer, scheduler: sched, log: zap.NewNop()}

		resp, err := h.HandleRequest(context.Background(), events.SQSEvent{Records: []events.SQSMessage{record("m1", body)}})
		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
	})

	t.Run("Already Resolved Is Acknowledged", func(t *testing.T) {
		expirer := &mockExpirer{}
		expirer.On("Expire", mock.Anything, "tx-1").Return(nil, txerrors.Stale(&models.Transaction{Id: "tx-1", Status: models.CONFIRMED}))
		h := &expiryHandler{expirer: expirer, scheduler: mocks.NewScheduler(t), log: zap.NewNop()}

		resp, err := h.HandleRequest(context.Background(), events.SQSEvent{Records: []events.SQSMessage{record("m1", body)}})
		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
	})

	t.Run("Storage Error Is Redelivered", func(t *testing.T) {
		expirer := &mockExpirer{}
		expirer.On("Expire", mock.Anything, "tx-1").Return(nil, txerrors.ErrUnavailable).Once()
		expirer.On("Expire", mock.Anything, "tx-2").Return(&models.Transaction{Id: "tx-2"}, nil).Once()
		h := &expiryHandler{expirer: expirer, scheduler: mocks.NewScheduler(t), log: zap.NewNop()}

		resp, err := h.HandleRequest(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
			record("m1", body),
			record("m2", `{"transaction_id":"tx-2","deadline":"2026-03-14T09:01:00Z"}`),
		}})
		require.NoError(t, err)
		require.Len(t, resp.BatchItemFailures, 1)
		assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
	})

	t.Run("Malformed Body Is Dropped", func(t *testing.T) {
		h := &expiryHandler{expirer: &mockExpirer{}, scheduler: mocks.NewScheduler(t), log: zap.NewNop()}

		resp, err := h.HandleRequest(context.Background(), events.SQSEvent{Records: []events.SQSMessage{record("m1", "{")}})
		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
	})
}
