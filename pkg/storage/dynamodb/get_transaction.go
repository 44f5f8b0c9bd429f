package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

// GetTransaction retrieves a transaction from DynamoDB by its ID.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	key, err := marshalMap(map[string]string{"id": txID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction ID: %w", err)
	}

	input := &dynamodb.GetItemInput{
		TableName:      &s.TransactionsTableName,
		Key:            key,
		ConsistentRead: aws.Bool(true),
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
	}

	var tx models.Transaction
	if err := attributevalue.UnmarshalMap(result.Item, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	return &tx, nil
}

// UpdateTransactionStatus moves a transaction from one status to another with a
// single conditional UpdateItem, so only one of several racing writers commits.
func (s *Store) UpdateTransactionStatus(ctx context.Context, txID string, from, to models.TransactionStatus, actor models.Actor, at time.Time) (*models.Transaction, error) {
	atAV, err := marshal(at)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp for status update: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.TransactionsTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: txID},
		},
		UpdateExpression:    aws.String("SET #status = :to, updated_by = :actor, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND #status = :from"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":    &types.AttributeValueMemberS{Value: string(to)},
			":from":  &types.AttributeValueMemberS{Value: string(from)},
			":actor": &types.AttributeValueMemberS{Value: string(actor)},
			":now":   atAV,
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	result, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			if condCheckFailed.Item == nil {
				return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
			}
			return nil, storage.ErrPreconditionFailed
		}
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	var tx models.Transaction
	if err := attributevalue.UnmarshalMap(result.Attributes, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated transaction: %w", err)
	}
	return &tx, nil
}
