package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/storage/storagetest"
)

// The suite needs a disposable database; it truncates every table per subtest.
func TestStore(t *testing.T) {
	dsn := os.Getenv("FUELPAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FUELPAY_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.EnsureSchema(ctx))

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		_, err := pool.Exec(ctx, `TRUNCATE transactions, wallets, ledger_entries`)
		require.NoError(t, err)
		return s
	})
}
