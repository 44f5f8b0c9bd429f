package changefeed

import (
	"context"
	"sync"
)

// Local is an in-process broker. Publish delivers to subscribers in call
// order, so events for one transaction arrive in commit order.
type Local struct {
	buffer int

	publishMu sync.Mutex
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
}

// NewLocal creates a Local broker with the given per-subscription buffer.
func NewLocal(buffer int) *Local {
	return &Local{buffer: buffer, subs: make(map[*Subscription]struct{})}
}

var _ Broker = (*Local)(nil)

// Publish fans e out to every matching subscription.
func (l *Local) Publish(ctx context.Context, e Event) error {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()
	for sub := range l.subs {
		sub.deliver(e)
	}
	return nil
}

// Subscribe registers a new subscription.
func (l *Local) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sub *Subscription
	sub = newSubscription(f, l.buffer, func() { l.remove(sub) })

	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()
	return sub, nil
}

// FailAll ends every open subscription with err.
func (l *Local) FailAll(err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for sub := range l.subs {
		sub.fail(err)
	}
}

// Len is the number of registered subscriptions.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

func (l *Local) remove(sub *Subscription) {
	l.mu.Lock()
	delete(l.subs, sub)
	l.mu.Unlock()
}
