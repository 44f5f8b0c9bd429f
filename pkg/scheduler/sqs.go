package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// MaxDelay is the longest delivery delay SQS accepts.
const MaxDelay = 15 * time.Minute

// SQSAPI is the subset of the SQS client used by SQSScheduler.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSScheduler implements the Scheduler interface with delayed SQS messages.
type SQSScheduler struct {
	Client   SQSAPI
	QueueURL string
	Now      func() time.Time
}

// NewSQSScheduler creates a new SQSScheduler.
func NewSQSScheduler(client SQSAPI, queueURL string) *SQSScheduler {
	return &SQSScheduler{
		Client:   client,
		QueueURL: queueURL,
		Now:      time.Now,
	}
}

// Make sure we conform to the interface
var _ Scheduler = (*SQSScheduler)(nil)

// ScheduleExpiry sends an expiry message delayed until at. The delay is
// rounded up to whole seconds so the message never arrives early; windows
// longer than MaxDelay arrive early and are rescheduled by the consumer.
func (s *SQSScheduler) ScheduleExpiry(ctx context.Context, txID string, at time.Time) error {
	body, err := json.Marshal(ExpiryMessage{TransactionID: txID, Deadline: at})
	if err != nil {
		return fmt.Errorf("failed to marshal expiry message for SQS: %w", err)
	}

	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.QueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds(at.Sub(s.Now())),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	return nil
}

func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > MaxDelay {
		d = MaxDelay
	}
	return int32(math.Ceil(d.Seconds()))
}

// ParseExpiryMessage decodes the body of a delayed expiry message.
func ParseExpiryMessage(body string) (ExpiryMessage, error) {
	var msg ExpiryMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return ExpiryMessage{}, fmt.Errorf("failed to unmarshal expiry message: %w", err)
	}
	if msg.TransactionID == "" {
		return ExpiryMessage{}, fmt.Errorf("expiry message has no transaction_id")
	}
	return msg, nil
}
