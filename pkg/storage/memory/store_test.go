package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage { return New() })
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	tx := storagetest.Transaction("u1", 100, 0)
	require.NoError(t, s.InsertTransaction(context.Background(), tx))

	tx.Status = models.COMPLETED
	got, err := s.GetTransaction(context.Background(), tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.PENDING, got.Status)

	got.Status = models.EXPIRED
	again, err := s.GetTransaction(context.Background(), tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.PENDING, again.Status)
}
