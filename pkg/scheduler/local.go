package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/txerrors"
)

// DefaultRetry is how long Local waits before retrying an expiry that fired
// a little before the deadline.
const DefaultRetry = 100 * time.Millisecond

// failureRetry spaces out retries after a store failure.
const failureRetry = time.Second

type entry struct {
	timer *time.Timer
}

// Local schedules expiries with in-process timers.
type Local struct {
	mu      sync.Mutex
	timers  map[string]*entry
	handler ExpiryHandler
	retry   time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewLocal creates a Local scheduler. SetHandler must be called before the
// first timer fires.
func NewLocal(log *zap.Logger) *Local {
	return &Local{
		timers: make(map[string]*entry),
		retry:  DefaultRetry,
		now:    time.Now,
		log:    log.Named("scheduler"),
	}
}

var (
	_ Scheduler = (*Local)(nil)
	_ Canceller = (*Local)(nil)
)

// SetHandler sets the component that performs the expiry.
func (l *Local) SetHandler(h ExpiryHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// ScheduleExpiry arms a timer for txID, replacing any existing one.
func (l *Local) ScheduleExpiry(ctx context.Context, txID string, at time.Time) error {
	l.arm(txID, at.Sub(l.now()))
	return nil
}

// CancelExpiry stops the timer for txID, if any.
func (l *Local) CancelExpiry(txID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.timers[txID]; ok {
		e.timer.Stop()
		delete(l.timers, txID)
	}
}

// Pending is the number of armed timers.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Stop disarms every timer.
func (l *Local) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.timers {
		e.timer.Stop()
		delete(l.timers, id)
	}
}

func (l *Local) arm(txID string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.timers[txID]; ok {
		old.timer.Stop()
	}
	e := &entry{}
	e.timer = time.AfterFunc(delay, func() { l.fire(txID, e) })
	l.timers[txID] = e
}

func (l *Local) fire(txID string, e *entry) {
	l.mu.Lock()
	if l.timers[txID] != e {
		// Cancelled or replaced after this timer was already running.
		l.mu.Unlock()
		return
	}
	delete(l.timers, txID)
	h := l.handler
	l.mu.Unlock()

	if h == nil {
		l.log.Error("expiry fired with no handler", zap.String("transaction_id", txID))
		return
	}

	_, err := h.Expire(context.Background(), txID)
	switch {
	case err == nil:
	case errors.Is(err, txerrors.ErrExpiryNotDue):
		l.arm(txID, l.retry)
	case errors.Is(err, txerrors.ErrStaleState), errors.Is(err, txerrors.ErrNotFound):
		l.log.Debug("expiry skipped", zap.String("transaction_id", txID), zap.Error(err))
	default:
		l.log.Warn("expiry failed, retrying", zap.String("transaction_id", txID), zap.Error(err))
		l.arm(txID, failureRetry)
	}
}
