// Package coordinator runs the transaction lifecycle: it creates pending
// transactions, applies guarded transitions with conditional writes, arms the
// confirmation timeout and publishes every committed change.
//
// Every error returned by the coordinator is classified with the txerrors
// sentinels; store and driver errors never pass through unwrapped.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/changefeed"
	"github.com/chris/fuelpay/pkg/fsm"
	"github.com/chris/fuelpay/pkg/fuel"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/scheduler"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// DefaultHistoryLimit caps GetHistory when no limit is given.
const DefaultHistoryLimit int32 = 10

// Settler performs the pending -> confirmed transition together with the debit.
type Settler interface {
	Settle(ctx context.Context, tx *models.Transaction, at time.Time) (*models.Transaction, error)
}

// NewTransaction is the attendant's payment request.
type NewTransaction struct {
	UserId       string
	WalletId     string
	StationId    string
	StationName  string
	FuelType     string
	Amount       int64
	Liters       float64
	VehicleId    *string
	VehiclePlate *string
	AttendantId  *string
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store     storage.TransactionStore
	settler   Settler
	scheduler scheduler.Scheduler
	publisher changefeed.Publisher

	now                   func() time.Time
	timeout               time.Duration
	catalog               *fuel.Catalog
	priceCheck            bool
	tolerance             int64
	declineOnInsufficient bool
	historyLimit          int32
	log                   *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTimeout sets the confirmation window.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPriceCheck rejects creations whose amount differs from liters x price
// by more than tolerance cents.
func WithPriceCheck(catalog *fuel.Catalog, tolerance int64) Option {
	return func(c *Coordinator) {
		c.catalog = catalog
		c.priceCheck = true
		c.tolerance = tolerance
	}
}

// WithDeclineOnInsufficientFunds makes an underfunded confirm also move the
// transaction to rejected, instead of leaving it pending.
func WithDeclineOnInsufficientFunds(enabled bool) Option {
	return func(c *Coordinator) { c.declineOnInsufficient = enabled }
}

// WithHistoryLimit sets the default GetHistory size.
func WithHistoryLimit(n int32) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// New creates a Coordinator. sched and pub may be nil for processes that
// never create transactions or have nobody to notify.
func New(store storage.TransactionStore, settler Settler, sched scheduler.Scheduler, pub changefeed.Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		settler:      settler,
		scheduler:    sched,
		publisher:    pub,
		now:          time.Now,
		timeout:      fsm.DefaultTimeout,
		historyLimit: DefaultHistoryLimit,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("coordinator")
	return c
}

// Timeout is the confirmation window.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Deadline is when tx may be expired.
func (c *Coordinator) Deadline(tx *models.Transaction) time.Time {
	return fsm.Deadline(tx.CreatedAt, c.timeout)
}

// Remaining is the time left before the deadline, zero once it has passed.
func (c *Coordinator) Remaining(tx *models.Transaction) time.Duration {
	return fsm.Remaining(tx.CreatedAt, c.clock(), c.timeout)
}

// CreateTransaction validates and persists a new pending transaction, arms
// its expiry and announces it.
func (c *Coordinator) CreateTransaction(ctx context.Context, in NewTransaction) (*models.Transaction, error) {
	if err := c.validate(in); err != nil {
		return nil, err
	}

	now := c.clock()
	tx := &models.Transaction{
		Id:           uuid.New().String(),
		UserId:       strings.TrimSpace(in.UserId),
		WalletId:     strings.TrimSpace(in.WalletId),
		StationId:    strings.TrimSpace(in.StationId),
		StationName:  in.StationName,
		FuelType:     strings.TrimSpace(in.FuelType),
		Amount:       in.Amount,
		Liters:       in.Liters,
		Status:       models.PENDING,
		VehicleId:    in.VehicleId,
		VehiclePlate: in.VehiclePlate,
		AttendantId:  in.AttendantId,
		UpdatedBy:    models.ATTENDANT,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.store.InsertTransaction(ctx, tx); err != nil {
		return nil, c.classify(err)
	}

	log := c.log.With(zap.String("transaction_id", tx.Id))
	log.Info("transaction created",
		zap.String("user_id", tx.UserId),
		zap.String("station_id", tx.StationId),
		zap.Int64("amount", tx.Amount),
		zap.Float64("liters", tx.Liters))

	if c.scheduler != nil {
		// A lost expiry is recovered by ExpireOverdue, so this does not fail the request.
		if err := c.scheduler.ScheduleExpiry(ctx, tx.Id, c.Deadline(tx)); err != nil {
			log.Error("failed to schedule expiry", zap.Error(err))
		}
	}
	c.publish(ctx, changefeed.Inserted, tx, models.ATTENDANT)
	return tx.Clone(), nil
}

func (c *Coordinator) validate(in NewTransaction) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"user_id", in.UserId},
		{"wallet_id", in.WalletId},
		{"station_id", in.StationId},
		{"fuel_type", in.FuelType},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return txerrors.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if err := fsm.ValidateCreation(in.Amount, in.Liters); err != nil {
		return err
	}
	if c.priceCheck {
		if err := c.catalog.CheckConsistent(in.FuelType, in.Amount, in.Liters, c.tolerance); err != nil {
			return txerrors.Validationf("%v", err)
		}
	}
	return nil
}

// RequestTransition moves transaction id to target on behalf of actor.
//
// The write is conditioned on the status that was read, so of several
// racing requests exactly one commits. The others get a
// *txerrors.StaleStateError carrying the record as it is now.
func (c *Coordinator) RequestTransition(ctx context.Context, id string, target models.TransactionStatus, actor models.Actor) (*models.Transaction, error) {
	current, err := c.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fsm.Validate(current, target, actor); err != nil {
		if errors.Is(err, txerrors.ErrStaleState) {
			c.log.Debug("transition on resolved transaction",
				zap.String("transaction_id", id), zap.String("status", string(current.Status)), zap.String("to", string(target)))
		}
		return nil, err
	}

	now := c.clock()
	if target == models.EXPIRED && !fsm.ExpiryDue(current.CreatedAt, now, c.timeout) {
		return nil, fmt.Errorf("%w: %s remaining", txerrors.ErrExpiryNotDue,
			fsm.Remaining(current.CreatedAt, now, c.timeout))
	}

	var updated *models.Transaction
	if target == models.CONFIRMED {
		updated, err = c.settler.Settle(ctx, current, now)
	} else {
		updated, err = c.store.UpdateTransactionStatus(ctx, id, current.Status, target, actor, now)
	}
	if err != nil {
		return nil, c.resolveFailure(ctx, current, target, err)
	}

	c.committed(ctx, current.Status, updated, actor)
	return updated, nil
}

func (c *Coordinator) resolveFailure(ctx context.Context, current *models.Transaction, target models.TransactionStatus, err error) error {
	log := c.log.With(zap.String("transaction_id", current.Id), zap.String("to", string(target)))

	switch {
	case errors.Is(err, storage.ErrPreconditionFailed):
		latest, rerr := c.GetTransaction(ctx, current.Id)
		if rerr != nil {
			return rerr
		}
		log.Debug("lost transition race", zap.String("status", string(latest.Status)))
		return txerrors.Stale(latest)

	case errors.Is(err, txerrors.ErrInsufficientFunds):
		log.Info("confirmation refused", zap.Error(err))
		if c.declineOnInsufficient {
			c.declineUnderfunded(ctx, current)
		}
		return err

	default:
		return c.classify(err)
	}
}

// declineUnderfunded moves an underfunded transaction to rejected. A lost
// race here is fine: someone else already resolved it.
func (c *Coordinator) declineUnderfunded(ctx context.Context, current *models.Transaction) {
	rejected, err := c.store.UpdateTransactionStatus(ctx, current.Id, models.PENDING, models.REJECTED, models.CUSTOMER, c.clock())
	if err != nil {
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			c.log.Warn("failed to decline underfunded transaction", zap.String("transaction_id", current.Id), zap.Error(err))
		}
		return
	}
	c.committed(ctx, models.PENDING, rejected, models.CUSTOMER)
}

func (c *Coordinator) committed(ctx context.Context, from models.TransactionStatus, tx *models.Transaction, actor models.Actor) {
	c.log.Info("transaction transitioned",
		zap.String("transaction_id", tx.Id),
		zap.String("from", string(from)),
		zap.String("to", string(tx.Status)),
		zap.String("actor", string(actor)))

	if canceller, ok := c.scheduler.(scheduler.Canceller); ok && from == models.PENDING {
		canceller.CancelExpiry(tx.Id)
	}
	c.publish(ctx, changefeed.Updated, tx, actor)
}

func (c *Coordinator) publish(ctx context.Context, typ changefeed.EventType, tx *models.Transaction, actor models.Actor) {
	if c.publisher == nil {
		return
	}
	e := changefeed.Event{Type: typ, Transaction: tx.Clone(), Actor: actor, At: tx.UpdatedAt}
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.log.Warn("failed to publish change event",
			zap.String("transaction_id", tx.Id), zap.String("type", string(typ)), zap.Error(err))
	}
}

// Confirm is the customer's acceptance; it debits the balance.
func (c *Coordinator) Confirm(ctx context.Context, id string) (*models.Transaction, error) {
	return c.RequestTransition(ctx, id, models.CONFIRMED, models.CUSTOMER)
}

// Decline is the customer's refusal.
func (c *Coordinator) Decline(ctx context.Context, id string) (*models.Transaction, error) {
	return c.RequestTransition(ctx, id, models.REJECTED, models.CUSTOMER)
}

// Complete is the attendant's acknowledgement of a confirmed payment.
func (c *Coordinator) Complete(ctx context.Context, id string) (*models.Transaction, error) {
	return c.RequestTransition(ctx, id, models.COMPLETED, models.ATTENDANT)
}

// Expire is the system timeout. It fails with txerrors.ErrExpiryNotDue before the deadline.
func (c *Coordinator) Expire(ctx context.Context, id string) (*models.Transaction, error) {
	return c.RequestTransition(ctx, id, models.EXPIRED, models.SYSTEM)
}

// Cancel is the attendant's withdrawal. On a transaction that is no longer
// pending it returns the current record without error, so repeated cancel
// clicks are harmless.
func (c *Coordinator) Cancel(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := c.RequestTransition(ctx, id, models.CANCELLED, models.ATTENDANT)
	if err == nil {
		return tx, nil
	}
	if current, ok := txerrors.CurrentOf(err); ok && current.Status != models.PENDING {
		return current, nil
	}
	return nil, err
}

// GetTransaction is a classified point read.
func (c *Coordinator) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, txerrors.Validationf("transaction id is required")
	}
	tx, err := c.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, c.classify(err)
	}
	return tx, nil
}

// GetPending returns the customer's pending transactions, newest first.
func (c *Coordinator) GetPending(ctx context.Context, userID string) ([]models.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, txerrors.Validationf("user id is required")
	}
	txs, err := c.store.ListTransactionsByUserID(ctx, userID, storage.ListQuery{
		Statuses: []models.TransactionStatus{models.PENDING},
	})
	if err != nil {
		return nil, c.classify(err)
	}
	return txs, nil
}

// GetHistory returns the customer's settled transactions, newest first.
func (c *Coordinator) GetHistory(ctx context.Context, userID string, limit int32) ([]models.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, txerrors.Validationf("user id is required")
	}
	if limit <= 0 {
		limit = c.historyLimit
	}
	txs, err := c.store.ListTransactionsByUserID(ctx, userID, storage.ListQuery{
		Statuses: []models.TransactionStatus{models.COMPLETED, models.CONFIRMED},
		Limit:    limit,
	})
	if err != nil {
		return nil, c.classify(err)
	}
	return txs, nil
}

// ExpireOverdue expires every pending transaction past its deadline and
// reports how many it moved. It recovers expiries whose timer or delayed
// message was lost.
func (c *Coordinator) ExpireOverdue(ctx context.Context) (int, error) {
	stuck, err := c.store.GetStuckTransactions(ctx, c.clock().Add(-c.timeout))
	if err != nil {
		return 0, c.classify(err)
	}

	expired := 0
	var errs []error
	for _, tx := range stuck {
		_, err := c.Expire(ctx, tx.Id)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, txerrors.ErrStaleState), errors.Is(err, txerrors.ErrExpiryNotDue), errors.Is(err, txerrors.ErrNotFound):
		default:
			c.log.Warn("failed to expire overdue transaction", zap.String("transaction_id", tx.Id), zap.Error(err))
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.Id, err))
		}
	}
	if expired > 0 {
		c.log.Info("expired overdue transactions", zap.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

func (c *Coordinator) clock() time.Time {
	return c.now().UTC()
}

// classify maps store errors onto the coordinator's error kinds. Store
// failures without a kind are logged here and reach callers only as ErrUnavailable.
func (c *Coordinator) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, txerrors.ErrValidation),
		errors.Is(err, txerrors.ErrNotFound),
		errors.Is(err, txerrors.ErrStaleState),
		errors.Is(err, txerrors.ErrInsufficientFunds),
		errors.Is(err, txerrors.ErrUnavailable):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", txerrors.ErrNotFound, err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return txerrors.Validationf("%v", err)
	case errors.Is(err, storage.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", txerrors.ErrInsufficientFunds, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return txerrors.Unavailable(err)
	default:
		c.log.Error("record store failure", zap.Error(err))
		return txerrors.Unavailable(err)
	}
}
