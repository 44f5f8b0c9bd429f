package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Redis fans events out across instances over a Redis pub/sub channel. Each
// subscription holds its own PubSub connection; when that connection drops
// the subscription fails instead of reconnecting behind the consumer's back,
// because messages published during the gap are lost.
type Redis struct {
	client  *redis.Client
	channel string
	buffer  int
	log     *zap.Logger
}

// NewRedis creates a Redis broker publishing on channel.
func NewRedis(client *redis.Client, channel string, buffer int, log *zap.Logger) *Redis {
	return &Redis{client: client, channel: channel, buffer: buffer, log: log.Named("changefeed.redis")}
}

var _ Broker = (*Redis)(nil)

// Publish sends e to every instance subscribed to the channel.
func (r *Redis) Publish(ctx context.Context, e Event) error {
	data, err := encode(e)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe opens a PubSub connection and waits for the server to confirm it
// before returning, so no event published after Subscribe returns is missed.
func (r *Redis) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(f, r.buffer, func() {
		cancel()
		ps.Close()
	})

	go r.receive(loopCtx, ps, sub)
	return sub, nil
}

func (r *Redis) receive(ctx context.Context, ps *redis.PubSub, sub *Subscription) {
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Warn("redis subscription failed", zap.Error(err))
			}
			sub.fail(err)
			return
		}
		e, err := decode([]byte(msg.Payload))
		if err != nil {
			r.log.Warn("dropping malformed change event", zap.Error(err))
			continue
		}
		sub.deliver(e)
	}
}
