package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka publishes events to a topic keyed by transaction id, so the hash
// balancer keeps every change of one transaction on one partition and in
// commit order. Each instance reads the whole topic under its own consumer
// group and fans the events out to its local subscriptions.
type Kafka struct {
	writer  *kafka.Writer
	reader  *kafka.Reader
	hub     *Local
	backoff time.Duration
	log     *zap.Logger
}

// KafkaConfig configures a Kafka broker.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID must be unique per instance so every instance sees every event.
	GroupID string
	Buffer  int
	Backoff time.Duration
}

// NewKafka creates a Kafka broker. Run must be started for subscriptions to
// receive anything.
func NewKafka(cfg KafkaConfig, log *zap.Logger) *Kafka {
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
		}),
		hub:     NewLocal(cfg.Buffer),
		backoff: cfg.Backoff,
		log:     log.Named("changefeed.kafka"),
	}
}

var _ Broker = (*Kafka)(nil)

// Publish writes e to the topic.
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	data, err := encode(e)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.Transaction.Id), Value: data, Time: e.At}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe registers a local subscription fed by Run.
func (k *Kafka) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	return k.hub.Subscribe(ctx, f)
}

// Run consumes the topic until ctx is done. A read error fails every open
// subscription, since their streams now have a gap, and reading resumes
// after the backoff.
func (k *Kafka) Run(ctx context.Context) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.log.Warn("kafka read failed", zap.Error(err))
			k.hub.FailAll(err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(k.backoff):
			}
			continue
		}

		e, err := decode(msg.Value)
		if err != nil {
			k.log.Warn("dropping malformed change event",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		if err := k.hub.Publish(ctx, e); err != nil {
			return err
		}
	}
}

// Close flushes the writer and leaves the consumer group.
func (k *Kafka) Close() error {
	return errors.Join(k.writer.Close(), k.reader.Close())
}
