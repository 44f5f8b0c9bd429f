// Package fanout keeps a client session's view of transactions current.
//
// A session subscribes to the change feed first and only then reads the
// store, so nothing committed between the two is missed. When the
// subscription fails the session subscribes and reads again; only after
// MaxRetries consecutive failures does it give up with txerrors.ErrChannel.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/changefeed"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/txerrors"
)

const (
	DefaultMaxRetries = 5
	DefaultBackoff    = 500 * time.Millisecond
	maxBackoff        = 10 * time.Second
)

// Reconciler is the point-read half of the store.
type Reconciler interface {
	GetPending(ctx context.Context, userID string) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
}

// Config tunes resubscription.
type Config struct {
	MaxRetries int
	Backoff    time.Duration
}

// Update is one change delivered to a session.
type Update struct {
	// Event is the change. Reconciliation reads arrive as changefeed.Snapshot;
	// a customer snapshot carries no Transaction, only Pending.
	Event changefeed.Event
	// Pending is the customer's pending set after Event. Nil for single
	// transaction watches.
	Pending []models.Transaction
}

// Handler receives updates. Returning an error ends the watch with it.
type Handler func(Update) error

// Session watches the feed on behalf of one client connection.
type Session struct {
	feed changefeed.Subscriber
	rec  Reconciler
	cfg  Config
	now  func() time.Time
	log  *zap.Logger
}

// NewSession creates a Session.
func NewSession(feed changefeed.Subscriber, rec Reconciler, cfg Config, log *zap.Logger) *Session {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{feed: feed, rec: rec, cfg: cfg, now: time.Now, log: log.Named("fanout")}
}

// WatchCustomer streams userID's pending set until ctx ends, handle fails or
// the feed cannot be recovered.
func (s *Session) WatchCustomer(ctx context.Context, userID string, handle Handler) error {
	set := NewPendingSet()
	filter := changefeed.Filter{UserID: userID}

	reconcile := func(ctx context.Context) error {
		txs, err := s.rec.GetPending(ctx, userID)
		if err != nil {
			return err
		}
		set.Replace(txs)
		return handle(Update{
			Event:   changefeed.Event{Type: changefeed.Snapshot, At: s.now().UTC()},
			Pending: set.List(),
		})
	}
	apply := func(e changefeed.Event) error {
		if !set.Apply(e.Transaction) {
			return nil
		}
		return handle(Update{Event: e, Pending: set.List()})
	}
	return s.watch(ctx, filter, reconcile, apply, zap.String("user_id", userID))
}

// WatchTransaction streams one record to the attendant until ctx ends, handle
// fails or the feed cannot be recovered. Changes the attendant made are
// tracked but not delivered; snapshots always are. An unknown id fails
// immediately with txerrors.ErrNotFound.
func (s *Session) WatchTransaction(ctx context.Context, txID string, handle Handler) error {
	var known *models.Transaction
	filter := changefeed.Filter{TransactionID: txID}

	reconcile := func(ctx context.Context) error {
		tx, err := s.rec.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if known != nil && !advances(known, tx) {
			// Nothing new since the last snapshot; resend it so the client
			// knows the stream is live again.
			tx = known
		}
		known = tx.Clone()
		return handle(Update{Event: changefeed.Event{Type: changefeed.Snapshot, Transaction: tx.Clone(), Actor: tx.UpdatedBy, At: s.now().UTC()}})
	}
	apply := func(e changefeed.Event) error {
		if known != nil && !advances(known, e.Transaction) {
			return nil
		}
		known = e.Transaction.Clone()
		if e.Actor == models.ATTENDANT {
			return nil
		}
		return handle(Update{Event: e})
	}
	return s.watch(ctx, filter, reconcile, apply, zap.String("transaction_id", txID))
}

func (s *Session) watch(ctx context.Context, filter changefeed.Filter, reconcile func(context.Context) error, apply func(changefeed.Event) error, field zap.Field) error {
	log := s.log.With(field)
	failures := 0
	for {
		connected, err := s.stream(ctx, filter, reconcile, apply)
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, txerrors.ErrChannel) {
			return err
		}
		if connected {
			failures = 0
		}
		failures++
		if failures > s.cfg.MaxRetries {
			log.Warn("giving up on subscription", zap.Int("attempts", failures), zap.Error(err))
			return fmt.Errorf("giving up after %d attempts: %w", failures, err)
		}

		wait := s.backoff(failures)
		log.Info("resubscribing", zap.Int("attempt", failures), zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// stream runs one subscription. connected reports whether the reconciliation
// read succeeded, which resets the failure count.
func (s *Session) stream(ctx context.Context, filter changefeed.Filter, reconcile func(context.Context) error, apply func(changefeed.Event) error) (connected bool, err error) {
	sub, err := s.feed.Subscribe(ctx, filter)
	if err != nil {
		if errors.Is(err, txerrors.ErrChannel) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", txerrors.ErrChannel, err)
	}
	defer sub.Close()

	if err := reconcile(ctx); err != nil {
		if errors.Is(err, txerrors.ErrUnavailable) {
			return false, fmt.Errorf("%w: reconciliation failed: %v", txerrors.ErrChannel, err)
		}
		return false, err
	}

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case e, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return true, err
				}
				return true, fmt.Errorf("%w: subscription closed", txerrors.ErrChannel)
			}
			if err := apply(e); err != nil {
				return true, err
			}
		}
	}
}

func (s *Session) backoff(attempt int) time.Duration {
	d := s.cfg.Backoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func progress(s models.TransactionStatus) int {
	switch s {
	case models.PENDING:
		return 0
	case models.CONFIRMED:
		return 1
	default:
		return 2
	}
}

// advances reports whether next is a later state of the record than known.
func advances(known, next *models.Transaction) bool {
	if next == nil {
		return false
	}
	return progress(next.Status) > progress(known.Status)
}
