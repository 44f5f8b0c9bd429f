package changefeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/models"
)

func TestRedis(t *testing.T) {
	addr := os.Getenv("FUELPAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FUELPAY_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(addr, "")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	b := NewRedis(client, "fuelpay-test:"+uuid.NewString(), 8, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, Filter{UserID: "u1"})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, event("tx-1", "u2", models.PENDING, Inserted)))
	require.NoError(t, b.Publish(ctx, event("tx-2", "u1", models.PENDING, Inserted)))

	select {
	case e := <-sub.Events():
		assert.Equal(t, "tx-2", e.Transaction.Id)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
