// Package changefeed carries transaction change events from the writer that
// committed them to every live subscription whose filter matches.
//
// Delivery is at-least-once while a subscription is open. A subscription that
// cannot keep up, or whose transport fails, is closed with an error wrapping
// txerrors.ErrChannel; the consumer is expected to subscribe again and
// reconcile with a point read.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// EventType tells an insert from a status change.
type EventType string

const (
	Inserted EventType = "inserted"
	Updated  EventType = "updated"
	// Snapshot marks records produced by a reconciliation read rather than the feed.
	Snapshot EventType = "snapshot"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 64

// Event is one committed change.
type Event struct {
	Type        EventType           `json:"type"`
	Transaction *models.Transaction `json:"transaction"`
	Actor       models.Actor        `json:"actor"`
	At          time.Time           `json:"at"`
}

// Filter selects events. Empty fields match everything.
type Filter struct {
	UserID        string
	TransactionID string
	Statuses      []models.TransactionStatus
	Types         []EventType
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	tx := e.Transaction
	if tx == nil {
		return false
	}
	if f.UserID != "" && tx.UserId != f.UserID {
		return false
	}
	if f.TransactionID != "" && tx.Id != f.TransactionID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, tx.Status) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	return true
}

func containsStatus(list []models.TransactionStatus, s models.TransactionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(list []EventType, t EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

// Publisher emits committed changes.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber opens filtered subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
}

// Broker is both halves of the feed.
type Broker interface {
	Publisher
	Subscriber
}

// Subscription is a live, filtered stream of events. Events is closed when
// the subscription ends; Err then tells a failure from a normal Close.
type Subscription struct {
	filter Filter
	events chan Event

	mu      sync.Mutex
	closed  bool
	err     error
	onClose func()
	once    sync.Once
}

func newSubscription(f Filter, buffer int, onClose func()) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscription{filter: f, events: make(chan Event, buffer), onClose: onClose}
}

// Events returns the event stream.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err returns the failure that ended the subscription, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.end(nil)
	s.mu.Unlock()

	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// deliver enqueues e without blocking. A full queue fails the subscription,
// since dropping the event silently would break at-least-once delivery.
func (s *Subscription) deliver(e Event) {
	if !s.filter.Match(e) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e.Transaction = e.Transaction.Clone()
	select {
	case s.events <- e:
	default:
		s.end(fmt.Errorf("%w: subscriber fell behind", txerrors.ErrChannel))
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end(fmt.Errorf("%w: %v", txerrors.ErrChannel, err))
}

// end must be called with mu held.
func (s *Subscription) end(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}

func encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode change event: %w", err)
	}
	if e.Transaction == nil {
		return Event{}, fmt.Errorf("change event has no transaction")
	}
	return e, nil
}
