package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/scheduler/mocks"
	"github.com/chris/fuelpay/pkg/txerrors"
)

func TestSQSScheduler(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		client := mocks.NewSQSAPI(t)
		client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
			msg, err := ParseExpiryMessage(*in.MessageBody)
			return err == nil && msg.TransactionID == "tx-1" &&
				*in.QueueUrl == "https://sqs.local/expiry" &&
				in.DelaySeconds == 60
		})).Return(&sqs.SendMessageOutput{}, nil)

		s := NewSQSScheduler(client, "https://sqs.local/expiry")
		s.Now = func() time.Time { return now }
		assert.NoError(t, s.ScheduleExpiry(context.Background(), "tx-1", now.Add(60*time.Second)))
	})

	t.Run("Storage Error", func(t *testing.T) {
		client := mocks.NewSQSAPI(t)
		client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		s := NewSQSScheduler(client, "q")
		err := s.ScheduleExpiry(context.Background(), "tx-1", time.Now())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send message to SQS")
	})
}

func TestDelaySeconds(t *testing.T) {
	assert.Equal(t, int32(0), delaySeconds(-time.Second))
	assert.Equal(t, int32(1), delaySeconds(10*time.Millisecond))
	assert.Equal(t, int32(60), delaySeconds(60*time.Second))
	assert.Equal(t, int32(61), delaySeconds(60*time.Second+time.Millisecond))
	assert.Equal(t, int32(900), delaySeconds(time.Hour))
}

func TestParseExpiryMessage(t *testing.T) {
	msg, err := ParseExpiryMessage(`{"transaction_id":"tx-9","deadline":"2026-03-14T09:01:00Z"}`)
	require.NoError(t, err)
	assert.Equal(t, "tx-9", msg.TransactionID)

	_, err = ParseExpiryMessage(`{}`)
	assert.Error(t, err)
	_, err = ParseExpiryMessage(`nope`)
	assert.Error(t, err)
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	errs  []error
	fired chan string
}

func newRecordingHandler(errs ...error) *recordingHandler {
	return &recordingHandler{errs: errs, fired: make(chan string, 8)}
}

func (h *recordingHandler) Expire(ctx context.Context, txID string) (*models.Transaction, error) {
	h.mu.Lock()
	n := len(h.calls)
	h.calls = append(h.calls, txID)
	var err error
	if n < len(h.errs) {
		err = h.errs[n]
	}
	h.mu.Unlock()
	h.fired <- txID
	return nil, err
}

func waitFired(t *testing.T, h *recordingHandler) string {
	t.Helper()
	select {
	case id := <-h.fired:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("expiry did not fire")
		return ""
	}
}

func TestLocalScheduler(t *testing.T) {
	ctx := context.Background()

	t.Run("Fires At Deadline", func(t *testing.T) {
		s := NewLocal(zap.NewNop())
		h := newRecordingHandler()
		s.SetHandler(h)

		start := time.Now()
		require.NoError(t, s.ScheduleExpiry(ctx, "tx-1", start.Add(30*time.Millisecond)))
		assert.Equal(t, 1, s.Pending())

		assert.Equal(t, "tx-1", waitFired(t, h))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("Cancel Prevents Firing", func(t *testing.T) {
		s := NewLocal(zap.NewNop())
		h := newRecordingHandler()
		s.SetHandler(h)

		require.NoError(t, s.ScheduleExpiry(ctx, "tx-1", time.Now().Add(20*time.Millisecond)))
		s.CancelExpiry("tx-1")
		assert.Equal(t, 0, s.Pending())

		select {
		case <-h.fired:
			t.Fatal("cancelled expiry fired")
		case <-time.After(80 * time.Millisecond):
		}
	})

	t.Run("Retries When Not Yet Due", func(t *testing.T) {
		s := NewLocal(zap.NewNop())
		s.retry = 10 * time.Millisecond
		h := newRecordingHandler(txerrors.ErrExpiryNotDue)
		s.SetHandler(h)

		require.NoError(t, s.ScheduleExpiry(ctx, "tx-1", time.Now()))
		waitFired(t, h)
		waitFired(t, h)
	})

	t.Run("Stale Is Not Retried", func(t *testing.T) {
		s := NewLocal(zap.NewNop())
		s.retry = 10 * time.Millisecond
		h := newRecordingHandler(txerrors.Stale(&models.Transaction{Id: "tx-1", Status: models.CONFIRMED}))
		s.SetHandler(h)

		require.NoError(t, s.ScheduleExpiry(ctx, "tx-1", time.Now()))
		waitFired(t, h)
		select {
		case <-h.fired:
			t.Fatal("stale expiry was retried")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Stop", func(t *testing.T) {
		s := NewLocal(zap.NewNop())
		s.SetHandler(newRecordingHandler())
		require.NoError(t, s.ScheduleExpiry(ctx, "a", time.Now().Add(time.Hour)))
		require.NoError(t, s.ScheduleExpiry(ctx, "b", time.Now().Add(time.Hour)))
		assert.Equal(t, 2, s.Pending())
		s.Stop()
		assert.Equal(t, 0, s.Pending())
	})
}
