package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

// GetStuckTransactions returns pending transactions created before the cutoff.
func (s *Store) GetStuckTransactions(ctx context.Context, createdBefore time.Time) ([]models.Transaction, error) {
	cutoffAV, err := marshal(createdBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cutoff time: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.TransactionsTableName),
		IndexName:              aws.String(stuckTransactionGSI),
		KeyConditionExpression: aws.String("#status = :status AND created_at < :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(models.PENDING)},
			":cutoff": cutoffAV,
		},
		ScanIndexForward: aws.Bool(false),
	}

	var transactions []models.Transaction
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query for stuck transactions: %w", err)
		}

		var page []models.Transaction
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stuck transactions: %w", err)
		}
		transactions = append(transactions, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return transactions, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// ListTransactionsByUserID queries the customer's transactions newest first.
// The status filter is applied server side, so pages are followed until the
// limit is reached or the index is exhausted.
func (s *Store) ListTransactionsByUserID(ctx context.Context, userID string, q storage.ListQuery) ([]models.Transaction, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.TransactionsTableName),
		IndexName:              aws.String(userIDIndex),
		KeyConditionExpression: aws.String("user_id = :userID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userID": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	}

	if len(q.Statuses) > 0 {
		placeholders := make([]string, len(q.Statuses))
		for i, status := range q.Statuses {
			p := fmt.Sprintf(":s%d", i)
			placeholders[i] = p
			input.ExpressionAttributeValues[p] = &types.AttributeValueMemberS{Value: string(status)}
		}
		input.FilterExpression = aws.String(fmt.Sprintf("#status IN (%s)", strings.Join(placeholders, ", ")))
		input.ExpressionAttributeNames = map[string]string{"#status": "status"}
	}

	limit := int(q.EffectiveLimit())
	var transactions []models.Transaction
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query for transactions by user ID: %w", err)
		}

		var page []models.Transaction
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transactions: %w", err)
		}
		transactions = append(transactions, page...)

		if len(transactions) >= limit {
			return transactions[:limit], nil
		}
		if len(result.LastEvaluatedKey) == 0 {
			return transactions, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// ListLedgerEntries returns the most recent ledger entries first.
func (s *Store) ListLedgerEntries(ctx context.Context, limit int32) ([]models.LedgerEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.LedgerTableName),
		IndexName:              aws.String(ledgerGSI),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: storage.LedgerGSI1PK},
		},
		ScanIndexForward: aws.Bool(false), // Sort by timestamp in descending order
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query for ledger entries: %w", err)
	}

	var entries []models.LedgerEntry
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entries: %w", err)
	}

	return entries, nil
}
