package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/app"
	"github.com/chris/fuelpay/pkg/config"
	"github.com/chris/fuelpay/pkg/logging"
	"github.com/chris/fuelpay/pkg/scheduler"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// expiryHandler consumes delayed expiry messages.
type expiryHandler struct {
	expirer   scheduler.ExpiryHandler
	scheduler scheduler.Scheduler
	log       *zap.Logger
}

// HandleRequest expires the transaction named by each message. A message
// that arrives before its deadline (the queue caps the delay) is sent again
// for the remainder. Failed records are reported back so SQS redelivers
// only those.
func (h *expiryHandler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, message := range sqsEvent.Records {
		if err := h.handle(ctx, message); err != nil {
			h.log.Error("failed to process expiry message", zap.String("message_id", message.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
		}
	}
	return resp, nil
}

func (h *expiryHandler) handle(ctx context.Context, message events.SQSMessage) error {
	msg, err := scheduler.ParseExpiryMessage(message.Body)
	if err != nil {
		// Redelivery cannot fix a malformed body; drop it.
		h.log.Warn("dropping malformed expiry message", zap.String("message_id", message.MessageId), zap.Error(err))
		return nil
	}
	log := h.log.With(zap.String("transaction_id", msg.TransactionID))

	_, err = h.expirer.Expire(ctx, msg.TransactionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, txerrors.ErrExpiryNotDue):
		log.Debug("expiry not due, rescheduling", zap.Time("deadline", msg.Deadline))
		return h.scheduler.ScheduleExpiry(ctx, msg.TransactionID, msg.Deadline)
	case errors.Is(err, txerrors.ErrStaleState), errors.Is(err, txerrors.ErrNotFound):
		log.Debug("expiry skipped", zap.Error(err))
		return nil
	default:
		return err
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	h := &expiryHandler{
		expirer:   application.Coordinator,
		scheduler: application.Scheduler,
		log:       logger.Named("expiry"),
	}
	lambda.Start(h.HandleRequest)
}
