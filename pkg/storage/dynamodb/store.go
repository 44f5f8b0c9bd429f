package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chris/fuelpay/pkg/storage"
)

const (
	userIDIndex         = "user_id-created_at-index"
	stuckTransactionGSI = "status-created_at-index"
	ledgerGSI           = "gsi1pk-timestamp-index"

	conditionalCheckFailed = "ConditionalCheckFailed"

	// sortableTime is fixed width so that created_at and timestamp range keys
	// compare lexically in time order. The default RFC3339Nano trims zeros.
	sortableTime = "2006-01-02T15:04:05.000000000Z07:00"
)

// DynamoDBAPI is the subset of the DynamoDB client used by Store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// Store implements the Storage interface using AWS DynamoDB.
type Store struct {
	Client                DynamoDBAPI
	TransactionsTableName string
	WalletsTableName      string
	LedgerTableName       string
}

// New creates a new Store.
func New(client DynamoDBAPI, transactionsTable, walletsTable, ledgerTable string) *Store {
	return &Store{
		Client:                client,
		TransactionsTableName: transactionsTable,
		WalletsTableName:      walletsTable,
		LedgerTableName:       ledgerTable,
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// cancellationReason returns the reason code for the i-th item of a cancelled
// TransactWriteItems call, and whether that item failed its condition.
func cancellationReason(err error, i int) (types.CancellationReason, bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) <= i {
		return types.CancellationReason{}, false
	}
	r := tce.CancellationReasons[i]
	return r, r.Code != nil && *r.Code == conditionalCheckFailed
}

func encodeTime(t time.Time) (types.AttributeValue, error) {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(sortableTime)}, nil
}

func withSortableTime(o *attributevalue.EncoderOptions) {
	o.EncodeTime = encodeTime
}

func marshal(v any) (types.AttributeValue, error) {
	return attributevalue.MarshalWithOptions(v, withSortableTime)
}

func marshalMap(v any) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMapWithOptions(v, withSortableTime)
}
