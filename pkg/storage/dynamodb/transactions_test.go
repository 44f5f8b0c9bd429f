package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/storage/dynamodb/mocks"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestTransaction() *models.Transaction {
	return &models.Transaction{
		Id:          uuid.New().String(),
		UserId:      "user-1",
		WalletId:    "wallet-1",
		StationId:   "station-7",
		StationName: "Main St",
		FuelType:    "Diesel",
		Amount:      4575,
		Liters:      25.3,
		Status:      models.PENDING,
		UpdatedBy:   models.ATTENDANT,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
}

func newTestStore(client *mocks.DynamoDBAPI) *Store {
	return New(client, "transactions", "wallets", "ledger")
}

func TestInsertTransaction(t *testing.T) {
	tx := newTestTransaction()

	t.Run("Success", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			return *in.TableName == "transactions" && *in.ConditionExpression == "attribute_not_exists(id)"
		})).Return(&dynamodb.PutItemOutput{}, nil)

		err := newTestStore(mockClient).InsertTransaction(context.Background(), tx)
		assert.NoError(t, err)
	})

	t.Run("Conflict", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		err := newTestStore(mockClient).InsertTransaction(context.Background(), tx)
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

		err := newTestStore(mockClient).InsertTransaction(context.Background(), tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to put transaction in DynamoDB")
	})
}

func TestGetTransaction(t *testing.T) {
	tx := newTestTransaction()

	t.Run("Success", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		item, err := attributevalue.MarshalMap(tx)
		require.NoError(t, err)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: item}, nil)

		got, err := newTestStore(mockClient).GetTransaction(context.Background(), tx.Id)
		require.NoError(t, err)
		assert.Equal(t, tx.Id, got.Id)
		assert.Equal(t, models.PENDING, got.Status)
		assert.Equal(t, int64(4575), got.Amount)
		assert.True(t, tx.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

		_, err := newTestStore(mockClient).GetTransaction(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

		_, err := newTestStore(mockClient).GetTransaction(context.Background(), tx.Id)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get transaction from DynamoDB")
	})
}

func TestUpdateTransactionStatus(t *testing.T) {
	tx := newTestTransaction()

	t.Run("Success", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		updated := tx.Clone()
		updated.Status = models.CANCELLED
		updated.UpdatedBy = models.ATTENDANT
		attrs, err := attributevalue.MarshalMap(updated)
		require.NoError(t, err)

		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
			from := in.ExpressionAttributeValues[":from"].(*types.AttributeValueMemberS).Value
			to := in.ExpressionAttributeValues[":to"].(*types.AttributeValueMemberS).Value
			return from == "pending" && to == "cancelled" &&
				*in.ConditionExpression == "attribute_exists(id) AND #status = :from"
		})).Return(&dynamodb.UpdateItemOutput{Attributes: attrs}, nil)

		got, err := newTestStore(mockClient).UpdateTransactionStatus(context.Background(), tx.Id, models.PENDING, models.CANCELLED, models.ATTENDANT, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.CANCELLED, got.Status)
	})

	t.Run("Precondition Failed", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		old, err := attributevalue.MarshalMap(tx)
		require.NoError(t, err)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{Item: old})

		_, err = newTestStore(mockClient).UpdateTransactionStatus(context.Background(), tx.Id, models.PENDING, models.EXPIRED, models.SYSTEM, testNow)
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		_, err := newTestStore(mockClient).UpdateTransactionStatus(context.Background(), "missing", models.PENDING, models.EXPIRED, models.SYSTEM, testNow)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		_, err := newTestStore(mockClient).UpdateTransactionStatus(context.Background(), tx.Id, models.PENDING, models.EXPIRED, models.SYSTEM, testNow)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrPreconditionFailed)
		assert.Contains(t, err.Error(), "failed to update transaction status")
	})
}

func canceled(codes ...string) *types.TransactionCanceledException {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestSettleTransaction(t *testing.T) {
	tx := newTestTransaction()

	t.Run("Success", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			return len(in.TransactItems) == 3 &&
				*in.TransactItems[settleWalletItem].Update.TableName == "wallets" &&
				*in.TransactItems[settleTransactionItem].Update.TableName == "transactions" &&
				*in.TransactItems[settleLedgerItem].Put.TableName == "ledger"
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

		settled, err := newTestStore(mockClient).SettleTransaction(context.Background(), tx, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.CONFIRMED, settled.Status)
		assert.Equal(t, models.CUSTOMER, settled.UpdatedBy)
		assert.Equal(t, models.PENDING, tx.Status, "input must not be mutated")
	})

	t.Run("Already Resolved", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).
			Return(nil, canceled("ConditionalCheckFailed", "ConditionalCheckFailed", "None"))

		_, err := newTestStore(mockClient).SettleTransaction(context.Background(), tx, testNow)
		assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		exc := canceled("ConditionalCheckFailed", "None", "None")
		exc.CancellationReasons[0].Item = map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: tx.UserId},
			"balance": &types.AttributeValueMemberN{Value: "500"},
		}
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, exc)

		_, err := newTestStore(mockClient).SettleTransaction(context.Background(), tx, testNow)
		assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
	})

	t.Run("Wallet Not Found", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).
			Return(nil, canceled("ConditionalCheckFailed", "None", "None"))

		_, err := newTestStore(mockClient).SettleTransaction(context.Background(), tx, testNow)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Transaction Fails", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("transaction failed"))

		_, err := newTestStore(mockClient).SettleTransaction(context.Background(), tx, testNow)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute settlement transaction")
	})
}

func TestListTransactionsByUserID(t *testing.T) {
	first, second, third := newTestTransaction(), newTestTransaction(), newTestTransaction()

	marshalAll := func(t *testing.T, txs ...*models.Transaction) []map[string]types.AttributeValue {
		var items []map[string]types.AttributeValue
		for _, tx := range txs {
			av, err := attributevalue.MarshalMap(tx)
			require.NoError(t, err)
			items = append(items, av)
		}
		return items
	}

	t.Run("Follows Pages", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		lastKey := map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: second.Id}}

		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey == nil
		})).Return(&dynamodb.QueryOutput{Items: marshalAll(t, first, second), LastEvaluatedKey: lastKey}, nil).Once()
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey != nil
		})).Return(&dynamodb.QueryOutput{Items: marshalAll(t, third)}, nil).Once()

		got, err := newTestStore(mockClient).ListTransactionsByUserID(context.Background(), "user-1", storage.ListQuery{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, third.Id, got[2].Id)
	})

	t.Run("Status Filter And Limit", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.FilterExpression != nil &&
				*in.FilterExpression == "#status IN (:s0, :s1)" &&
				!*in.ScanIndexForward &&
				*in.IndexName == userIDIndex
		})).Return(&dynamodb.QueryOutput{Items: marshalAll(t, first, second, third)}, nil)

		q := storage.ListQuery{Statuses: []models.TransactionStatus{models.COMPLETED, models.CONFIRMED}, Limit: 2}
		got, err := newTestStore(mockClient).ListTransactionsByUserID(context.Background(), "user-1", q)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("query failed"))

		_, err := newTestStore(mockClient).ListTransactionsByUserID(context.Background(), "user-1", storage.ListQuery{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query for transactions by user ID")
	})
}

func TestGetStuckTransactions(t *testing.T) {
	stuck := newTestTransaction()

	t.Run("Success", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		av, err := attributevalue.MarshalMap(stuck)
		require.NoError(t, err)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return *in.IndexName == stuckTransactionGSI &&
				in.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value == "pending" &&
				in.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberS).Value == "2026-03-14T09:30:00.000000000Z"
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{av}}, nil)

		got, err := newTestStore(mockClient).GetStuckTransactions(context.Background(), testNow)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, stuck.Id, got[0].Id)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("query failed"))

		_, err := newTestStore(mockClient).GetStuckTransactions(context.Background(), testNow)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query for stuck transactions")
	})
}

func TestSortableTime(t *testing.T) {
	earlier := time.Date(2026, 3, 14, 9, 30, 5, 100_000_000, time.UTC)
	later := time.Date(2026, 3, 14, 9, 30, 5, 120_000_000, time.UTC)

	a, err := marshal(earlier)
	require.NoError(t, err)
	b, err := marshal(later)
	require.NoError(t, err)
	assert.Less(t, a.(*types.AttributeValueMemberS).Value, b.(*types.AttributeValueMemberS).Value)

	tx := newTestTransaction()
	tx.CreatedAt = earlier.In(time.FixedZone("CET", 3600))
	item, err := marshalMap(tx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T09:30:05.100000000Z", item["created_at"].(*types.AttributeValueMemberS).Value)

	var got models.Transaction
	require.NoError(t, attributevalue.UnmarshalMap(item, &got))
	assert.True(t, earlier.Equal(got.CreatedAt))
}

func TestListLedgerEntries(t *testing.T) {
	entry := storage.SettlementEntry(newTestTransaction(), testNow)

	t.Run("Success", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		av, err := attributevalue.MarshalMap(entry)
		require.NoError(t, err)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return *in.Limit == 5 && *in.IndexName == ledgerGSI
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{av}}, nil)

		got, err := newTestStore(mockClient).ListLedgerEntries(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, entry.EntryID, got[0].EntryID)
		assert.Equal(t, int64(4575), got[0].Debit)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := mocks.NewDynamoDBAPI(t)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("query failed"))

		_, err := newTestStore(mockClient).ListLedgerEntries(context.Background(), 5)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query for ledger entries")
	})
}
