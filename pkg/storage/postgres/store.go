// Package postgres implements the storage interfaces on PostgreSQL.
// Status changes are single UPDATE ... WHERE status = $from statements, and
// settlement runs the status flip, debit and ledger insert in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    wallet_id     TEXT NOT NULL,
    station_id    TEXT NOT NULL,
    station_name  TEXT NOT NULL,
    fuel_type     TEXT NOT NULL,
    amount        BIGINT NOT NULL CHECK (amount > 0),
    liters        DOUBLE PRECISION NOT NULL CHECK (liters > 0),
    status        TEXT NOT NULL,
    vehicle_id    TEXT,
    vehicle_plate TEXT,
    attendant_id  TEXT,
    updated_by    TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_user_created_idx ON transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS transactions_status_created_idx ON transactions (status, created_at);

CREATE TABLE IF NOT EXISTS wallets (
    user_id    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    balance    BIGINT NOT NULL CHECK (balance >= 0),
    version    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    entry_id       TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL DEFAULT '',
    account_id     TEXT NOT NULL,
    debit          BIGINT NOT NULL DEFAULT 0,
    credit         BIGINT NOT NULL DEFAULT 0,
    description    TEXT NOT NULL,
    "timestamp"    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_timestamp_idx ON ledger_entries ("timestamp" DESC);
`

const transactionColumns = `id, user_id, wallet_id, station_id, station_name, fuel_type, amount, liters,
    status, vehicle_id, vehicle_plate, attendant_id, updated_by, created_at, updated_at`

const walletColumns = `user_id, name, balance, version, created_at`

const ledgerColumns = `entry_id, transaction_id, account_id, debit, credit, description, "timestamp"`

// Store implements storage.Storage on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool opens a connection pool for dsn.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

// New creates a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ storage.Storage = (*Store)(nil)

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// InsertTransaction writes a new transaction row.
func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		tx.Id, tx.UserId, tx.WalletId, tx.StationId, tx.StationName, tx.FuelType, tx.Amount, tx.Liters,
		tx.Status, tx.VehicleId, tx.VehiclePlate, tx.AttendantId, tx.UpdatedBy, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("transaction with ID %s: %w", tx.Id, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransaction reads one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)
	tx, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Transaction])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransactionStatus is a conditional UPDATE. When no row matches, a
// second read tells a missing id apart from a lost race.
func (s *Store) UpdateTransactionStatus(ctx context.Context, txID string, from, to models.TransactionStatus, actor models.Actor, at time.Time) (*models.Transaction, error) {
	rows, _ := s.pool.Query(ctx, `UPDATE transactions
        SET status = $3, updated_by = $4, updated_at = $5
        WHERE id = $1 AND status = $2
        RETURNING `+transactionColumns, txID, from, to, actor, at)
	tx, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Transaction])
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	if _, err := s.GetTransaction(ctx, txID); err != nil {
		return nil, err
	}
	return nil, storage.ErrPreconditionFailed
}

// ListTransactionsByUserID returns the customer's transactions newest first.
func (s *Store) ListTransactionsByUserID(ctx context.Context, userID string, q storage.ListQuery) ([]models.Transaction, error) {
	statuses := make([]string, len(q.Statuses))
	for i, st := range q.Statuses {
		statuses[i] = string(st)
	}

	rows, _ := s.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
        ORDER BY created_at DESC
        LIMIT $3`, userID, statuses, q.EffectiveLimit())
	txs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Transaction])
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by user ID: %w", err)
	}
	return txs, nil
}

// GetStuckTransactions returns pending transactions created before the cutoff.
func (s *Store) GetStuckTransactions(ctx context.Context, createdBefore time.Time) ([]models.Transaction, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE status = $1 AND created_at < $2
        ORDER BY created_at DESC`, models.PENDING, createdBefore)
	txs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Transaction])
	if err != nil {
		return nil, fmt.Errorf("failed to query for stuck transactions: %w", err)
	}
	return txs, nil
}

// SettleTransaction confirms and debits in one database transaction. The
// status row is updated first so a resolved transaction fails before the
// wallet is touched.
func (s *Store) SettleTransaction(ctx context.Context, tx *models.Transaction, at time.Time) (*models.Transaction, error) {
	var settled *models.Transaction
	err := pgx.BeginFunc(ctx, s.pool, func(dbtx pgx.Tx) error {
		rows, _ := dbtx.Query(ctx, `UPDATE transactions
            SET status = $2, updated_by = $3, updated_at = $4
            WHERE id = $1 AND status = $5
            RETURNING `+transactionColumns, tx.Id, models.CONFIRMED, models.CUSTOMER, at, models.PENDING)
		updated, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Transaction])
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrPreconditionFailed
		}
		if err != nil {
			return fmt.Errorf("failed to confirm transaction: %w", err)
		}

		tag, err := dbtx.Exec(ctx, `UPDATE wallets
            SET balance = balance - $2, version = version + 1
            WHERE user_id = $1 AND balance >= $2`, updated.UserId, updated.Amount)
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := dbtx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE user_id = $1)`, updated.UserId).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check wallet: %w", err)
			}
			if !exists {
				return fmt.Errorf("wallet for user ID %s: %w", updated.UserId, storage.ErrNotFound)
			}
			return storage.ErrInsufficientFunds
		}

		if err := insertLedgerEntry(ctx, dbtx, storage.SettlementEntry(updated, at)); err != nil {
			return err
		}
		settled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// CreateWallet inserts a new wallet row.
func (s *Store) CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`) VALUES ($1,$2,$3,$4,$5)`,
		wallet.UserId, wallet.Name, wallet.Balance, wallet.Version, wallet.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("wallet for user ID %s: %w", wallet.UserId, storage.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return wallet, nil
}

// GetWallet reads a wallet by user id.
func (s *Store) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	w, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Wallet])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// DeleteWallet removes a wallet row.
func (s *Store) DeleteWallet(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}
	return nil
}

// ListWallets returns every wallet, newest first.
func (s *Store) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at DESC`)
	wallets, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Wallet])
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// TopUpWallet increments the balance and records a credit entry.
func (s *Store) TopUpWallet(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := pgx.BeginFunc(ctx, s.pool, func(dbtx pgx.Tx) error {
		rows, _ := dbtx.Query(ctx, `UPDATE wallets
            SET balance = balance + $2, version = version + 1
            WHERE user_id = $1
            RETURNING `+walletColumns, userID, amount)
		w, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Wallet])
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to top up wallet: %w", err)
		}
		if err := insertLedgerEntry(ctx, dbtx, storage.TopUpEntry(userID, amount, at)); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// ListLedgerEntries returns the most recent entries first.
func (s *Store) ListLedgerEntries(ctx context.Context, limit int32) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	rows, _ := s.pool.Query(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries
        ORDER BY "timestamp" DESC LIMIT $1`, limit)
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.LedgerEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func insertLedgerEntry(ctx context.Context, dbtx pgx.Tx, e models.LedgerEntry) error {
	_, err := dbtx.Exec(ctx, `INSERT INTO ledger_entries (`+ledgerColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.EntryID, e.TransactionID, e.AccountID, e.Debit, e.Credit, e.Description, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}
