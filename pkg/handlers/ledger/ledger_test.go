package ledger_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/handlers/ledger"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage/mocks"
)

func TestListLedgerEntries(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockStorage := mocks.NewStorage(t)
		expectedEntries := []models.LedgerEntry{
			{EntryID: uuid.New().String(), TransactionID: "tx-1", AccountID: "u1", Debit: 4575, Timestamp: time.Now()},
			{EntryID: uuid.New().String(), AccountID: "u1", Credit: 50000, Timestamp: time.Now().Add(-1 * time.Minute)},
		}
		mockStorage.On("ListLedgerEntries", mock.Anything, ledger.DefaultLimit).Return(expectedEntries, nil)

		h := ledger.NewLedgerHandler(mockStorage)
		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger", nil), api.ListLedgerEntriesParams{})

		assert.Equal(t, http.StatusOK, rr.Code)

		var returnedEntries []api.LedgerEntry
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &returnedEntries))
		require.Len(t, returnedEntries, 2)
		assert.Equal(t, expectedEntries[0].EntryID, *returnedEntries[0].EntryId)
		assert.Equal(t, "45.75", returnedEntries[0].Debit.StringFixed(2))
		assert.Nil(t, returnedEntries[0].Credit)
		assert.Nil(t, returnedEntries[1].TransactionId)
		assert.Equal(t, "500.00", returnedEntries[1].Credit.StringFixed(2))
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockStorage := mocks.NewStorage(t)
		mockStorage.On("ListLedgerEntries", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		h := ledger.NewLedgerHandler(mockStorage)
		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger", nil), api.ListLedgerEntriesParams{})

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("With Limit", func(t *testing.T) {
		mockStorage := mocks.NewStorage(t)
		limit := int32(10)
		mockStorage.On("ListLedgerEntries", mock.Anything, limit).Return([]models.LedgerEntry{{EntryID: uuid.New().String()}}, nil)

		h := ledger.NewLedgerHandler(mockStorage)
		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger?limit=10", nil), api.ListLedgerEntriesParams{Limit: &limit})

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
